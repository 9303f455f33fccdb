// Package domain contains core concepts of the chat system.
// Rooms, messages and users reference each other by identifier only.
package domain

import (
	"fmt"
	"strings"
	"time"

	"chat-relay/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type RoomID string

type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomGroup   RoomKind = "group"
)

// Room is the persisted room metadata. Participants is ordered and unique.
type Room struct {
	ID            RoomID
	Kind          RoomKind
	Name          string
	AdminID       UserID
	Participants  []UserID
	LastMessageID string
	LastSequence  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPrivateRoom builds the one-to-one room between two distinct users.
func NewPrivateRoom(a, b UserID, at time.Time) (Room, error) {
	room := Room{
		ID:           RoomID(uuid.NewString()),
		Kind:         RoomPrivate,
		Participants: []UserID{a, b},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return room, room.Validate()
}

// NewGroupRoom builds a named group administered by admin. The admin is always
// the first participant and duplicates are dropped.
func NewGroupRoom(name string, admin UserID, members []UserID, at time.Time) (Room, error) {
	room := Room{
		ID:           RoomID(uuid.NewString()),
		Kind:         RoomGroup,
		Name:         strings.TrimSpace(name),
		AdminID:      admin,
		Participants: lo.Uniq(append([]UserID{admin}, members...)),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return room, room.Validate()
}

// Validate checks the structural rules of a room.
func (r Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", errors.ErrInvalidRoom)
	}
	if len(lo.Uniq(r.Participants)) != len(r.Participants) {
		return fmt.Errorf("%w: duplicate participants", errors.ErrInvalidRoom)
	}
	if lo.Contains(r.Participants, "") {
		return fmt.Errorf("%w: empty participant id", errors.ErrInvalidRoom)
	}
	switch r.Kind {
	case RoomPrivate:
		if len(r.Participants) != 2 {
			return fmt.Errorf("%w: private room needs exactly two participants", errors.ErrInvalidRoom)
		}
	case RoomGroup:
		if r.Name == "" {
			return fmt.Errorf("%w: group room needs a name", errors.ErrInvalidRoom)
		}
		if r.AdminID == "" || !r.HasParticipant(r.AdminID) {
			return fmt.Errorf("%w: group admin must be a participant", errors.ErrInvalidRoom)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errors.ErrInvalidRoom, r.Kind)
	}
	return nil
}

func (r Room) HasParticipant(userID UserID) bool {
	return lo.Contains(r.Participants, userID)
}

// Peer returns the other participant of a private room.
func (r Room) Peer(userID UserID) (UserID, bool) {
	if r.Kind != RoomPrivate {
		return "", false
	}
	return lo.Find(r.Participants, func(p UserID) bool { return p != userID })
}
