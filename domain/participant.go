// Package domain contains core concepts of the chat system.
// This file defines users as seen by the relay.
// No runtime, network, or UI logic should be added here.
package domain

type UserID string

// User is owned by the identity collaborator; the relay only reads it.
type User struct {
	ID          UserID
	DisplayName string
	Avatar      string
}

// Identity is what a verified token yields.
type Identity struct {
	UserID      UserID
	DisplayName string
	Roles       []string
}
