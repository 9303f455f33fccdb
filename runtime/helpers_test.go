package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory MessageStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	messages map[domain.RoomID][]domain.Message
	failures int
	appends  int
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[domain.RoomID][]domain.Message)}
}

// failNext makes the next n appends fail.
func (m *memStore) failNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *memStore) AppendMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.failures > 0 {
		m.failures--
		return fmt.Errorf("disk unavailable")
	}
	if int64(len(m.messages[msg.RoomID]))+1 != msg.Sequence {
		return errors.ErrSequenceConflict
	}
	m.messages[msg.RoomID] = append(m.messages[msg.RoomID], msg)
	return nil
}

func (m *memStore) LastSequence(_ context.Context, roomID domain.RoomID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.messages[roomID])), nil
}

func (m *memStore) History(_ context.Context, roomID domain.RoomID, limit int, _ int64) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[roomID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.Message(nil), all...), nil
}

func (m *memStore) persisted(roomID domain.RoomID) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.messages[roomID]...)
}

// fakeDirectory serves rooms from memory.
type fakeDirectory struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]domain.Room
	err   error
}

func newFakeDirectory(rooms ...domain.Room) *fakeDirectory {
	d := &fakeDirectory{rooms: make(map[domain.RoomID]domain.Room)}
	for _, r := range rooms {
		d.rooms[r.ID] = r
	}
	return d
}

func (d *fakeDirectory) GetRoom(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return domain.Room{}, d.err
	}
	room, ok := d.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	return room, nil
}

func (d *fakeDirectory) IsParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	room, err := d.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.HasParticipant(userID), nil
}

func (d *fakeDirectory) RoomsOf(_ context.Context, userID domain.UserID) ([]domain.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var rooms []domain.Room
	for _, r := range d.rooms {
		if r.HasParticipant(userID) {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

// tokenVerifier accepts "token-<user>" and rejects anything else.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	var user string
	if _, err := fmt.Sscanf(token, "token-%s", &user); err != nil || user == "" {
		return domain.Identity{}, fmt.Errorf("unknown token")
	}
	return domain.Identity{UserID: domain.UserID(user), DisplayName: user}, nil
}

type fixture struct {
	log       *slog.Logger
	store     *memStore
	directory *fakeDirectory
	index     *RoomIndex
	presence  *PresenceRegistry
	typing    *TypingRelay
	manager   *SessionManager
	pipeline  *Pipeline
	telemetry chan event.Event
}

func group(id domain.RoomID, users ...domain.UserID) domain.Room {
	return domain.Room{
		ID:           id,
		Kind:         domain.RoomGroup,
		Name:         string(id),
		AdminID:      users[0],
		Participants: users,
	}
}

func newFixture(t *testing.T, outboxSize int, rooms ...domain.Room) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := &fixture{
		log:       log,
		store:     newMemStore(),
		directory: newFakeDirectory(rooms...),
		index:     NewRoomIndex(),
		presence:  NewPresenceRegistry(),
		telemetry: make(chan event.Event, 1000),
	}
	f.typing = NewTypingRelay(log, f.index)
	f.manager = NewSessionManager(log, tokenVerifier{}, f.directory, f.index, f.presence, f.typing,
		SessionManagerConfig{AuthTimeout: time.Second, OutboxSize: outboxSize})
	f.pipeline = NewPipeline(log, f.store, f.index, f.typing, WithTelemetry(f.telemetry))
	return f
}

func (f *fixture) connect(t *testing.T, user domain.UserID) *Session {
	t.Helper()
	s, err := f.manager.Authenticate(context.Background(), "token-"+string(user))
	require.NoError(t, err)
	return s
}

func (f *fixture) join(t *testing.T, s *Session, roomID domain.RoomID) {
	t.Helper()
	require.NoError(t, f.manager.Join(context.Background(), s, roomID))
}

// drain empties the outbox without blocking.
func drain(s *Session) []event.DomainEvent {
	var events []event.DomainEvent
	for {
		select {
		case e := <-s.Outbox():
			events = append(events, e)
		default:
			return events
		}
	}
}

func messagesOf(events []event.DomainEvent) []domain.Message {
	var msgs []domain.Message
	for _, e := range events {
		if delivered, ok := e.(event.MessageDelivered); ok {
			msgs = append(msgs, delivered.Message)
		}
	}
	return msgs
}

func typingOf(events []event.DomainEvent) []event.TypingChanged {
	var typing []event.TypingChanged
	for _, e := range events {
		if t, ok := e.(event.TypingChanged); ok {
			typing = append(typing, t)
		}
	}
	return typing
}
