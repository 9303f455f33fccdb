//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"iter"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives live events. Consume must never block the caller.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// PresenceFeed is the source of presence transitions and of the sessions
// they must be broadcast to.
type PresenceFeed interface {
	Transitions(ctx context.Context) iter.Seq[event.PresenceChanged]
	Audience() []EventSink
}

// IdentityVerifier turns a bearer token into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// RoomDirectory answers membership questions about persisted rooms.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID domain.RoomID) (domain.Room, error)
	IsParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error)
	RoomsOf(ctx context.Context, userID domain.UserID) ([]domain.Room, error)
}

// MessageStore is the durable, per-room ordered message log.
type MessageStore interface {
	// AppendMessage persists msg and moves the room's last-message pointer
	// in one write. It fails if msg.Sequence does not follow the last
	// persisted sequence of the room.
	AppendMessage(ctx context.Context, msg domain.Message) error
	LastSequence(ctx context.Context, roomID domain.RoomID) (int64, error)
	// History returns up to limit messages in ascending sequence order,
	// all strictly below before when before is positive.
	History(ctx context.Context, roomID domain.RoomID, limit int, before int64) ([]domain.Message, error)
}

// MessageIndex is the full-text view over persisted messages.
type MessageIndex interface {
	Index(ctx context.Context, msgs ...domain.Message) error
	Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.Message, error)
}

// ContentFilter rewrites message content before it is persisted.
type ContentFilter interface {
	Filter(roomID domain.RoomID, content string) string
}
