// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Messages are immutable once persisted.
package domain

import (
	"time"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// Message represents a persisted chat message.
// Sequence is assigned by the pipeline and is gap-free within a room.
type Message struct {
	ID          string
	RoomID      RoomID
	SenderID    UserID
	Content     string
	ContentType ContentType
	CreatedAt   time.Time
	Sequence    int64
}
