package event

import (
	"time"

	"chat-relay/domain"
)

type Name string

const (
	MessageDeliveredName Name = "new-message"
	TypingStartName      Name = "typing-start"
	TypingStopName       Name = "typing-stop"
	UserOnlineName       Name = "user-online"
	UserOfflineName      Name = "user-offline"
)

// DomainEvent is anything a session can receive from the relay.
type DomainEvent interface {
	Name() Name
}

// RoomScoped events are only delivered to sessions joined to the room.
type RoomScoped interface {
	DomainEvent
	RoomID() domain.RoomID
}

type MessageDelivered struct {
	Message domain.Message
}

func (MessageDelivered) Name() Name { return MessageDeliveredName }

func (m MessageDelivered) RoomID() domain.RoomID { return m.Message.RoomID }

// TypingChanged is emitted on typing state changes only, never on repeats.
type TypingChanged struct {
	Room    domain.RoomID
	User    domain.UserID
	Started bool
}

func (t TypingChanged) Name() Name {
	if t.Started {
		return TypingStartName
	}
	return TypingStopName
}

func (t TypingChanged) RoomID() domain.RoomID { return t.Room }

// PresenceChanged is emitted on the first-session and last-session transitions of a user.
type PresenceChanged struct {
	User   domain.UserID
	Online bool
	At     time.Time
}

func (p PresenceChanged) Name() Name {
	if p.Online {
		return UserOnlineName
	}
	return UserOfflineName
}
