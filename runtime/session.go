package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Session is one live, authenticated connection.
// It is the unit of delivery: every event reaching a client goes through
// its outbox, which the transport drains in a dedicated goroutine.
//
// Lock order is Session.mu then the room index locks. Consume never takes
// Session.mu so fan-out cannot deadlock against Join or Close.
type Session struct {
	ID          uint64
	User        domain.UserID
	DisplayName string

	mu     sync.Mutex
	state  domain.SessionState
	rooms  map[domain.RoomID]struct{}
	typing map[domain.RoomID]struct{}

	outbox chan event.DomainEvent
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newSession(ctx context.Context, id uint64, identity domain.Identity, outboxSize int) *Session {
	sessionCtx, cancel := context.WithCancelCause(ctx)
	return &Session{
		ID:          id,
		User:        identity.UserID,
		DisplayName: identity.DisplayName,
		state:       domain.StateAuthenticated,
		rooms:       make(map[domain.RoomID]struct{}),
		typing:      make(map[domain.RoomID]struct{}),
		outbox:      make(chan event.DomainEvent, outboxSize),
		ctx:         sessionCtx,
		cancel:      cancel,
	}
}

// Consume enqueues e without ever blocking. A full outbox cancels the
// session with ErrSlowConsumer; the transport then closes it.
func (s *Session) Consume(_ context.Context, e event.DomainEvent) error {
	if s.ctx.Err() != nil {
		return errors.ErrSessionClosed
	}
	select {
	case s.outbox <- e:
		return nil
	default:
		s.cancel(errors.ErrSlowConsumer)
		return errors.ErrSlowConsumer
	}
}

// Outbox is drained by the transport writer.
func (s *Session) Outbox() <-chan event.DomainEvent {
	return s.outbox
}

// Done is closed once the session is closed or dropped as a slow consumer.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Err returns why the session ended, nil while it is live.
func (s *Session) Err() error {
	return context.Cause(s.ctx)
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Joined(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the joined rooms, sorted.
func (s *Session) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := lo.Keys(s.rooms)
	slices.Sort(rooms)
	return rooms
}

func (s *Session) IsTyping(roomID domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.typing[roomID]
	return ok
}

// setTyping records the typing state of a joined room and reports whether it changed.
func (s *Session) setTyping(roomID domain.RoomID, typing bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateClosed {
		return false, errors.ErrSessionClosed
	}
	if _, joined := s.rooms[roomID]; !joined {
		return false, errors.ErrNotJoined
	}
	_, was := s.typing[roomID]
	if was == typing {
		return false, nil
	}
	if typing {
		s.typing[roomID] = struct{}{}
	} else {
		delete(s.typing, roomID)
	}
	return true, nil
}

func (s *Session) refreshStateLocked() {
	if s.state == domain.StateClosed {
		return
	}
	if len(s.rooms) > 0 {
		s.state = domain.StateJoined
		return
	}
	s.state = domain.StateAuthenticated
}
