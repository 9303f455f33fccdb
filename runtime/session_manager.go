package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

const (
	defaultAuthTimeout = 10 * time.Second
	defaultOutboxSize  = 256
)

// SessionManager owns the lifecycle of sessions:
//
//	connecting -> authenticated <-> joined -> closed
//
// Every failure path leaves the room index and the presence registry as
// they were before the call.
type SessionManager struct {
	log         *slog.Logger
	verifier    contract.IdentityVerifier
	directory   contract.RoomDirectory
	index       *RoomIndex
	presence    *PresenceRegistry
	typing      *TypingRelay
	authTimeout time.Duration
	outboxSize  int
	nextID      atomic.Uint64
}

type SessionManagerConfig struct {
	AuthTimeout time.Duration
	OutboxSize  int
}

func NewSessionManager(log *slog.Logger, verifier contract.IdentityVerifier,
	directory contract.RoomDirectory, index *RoomIndex, presence *PresenceRegistry,
	typing *TypingRelay, cfg SessionManagerConfig) *SessionManager {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}
	return &SessionManager{
		log:         log,
		verifier:    verifier,
		directory:   directory,
		index:       index,
		presence:    presence,
		typing:      typing,
		authTimeout: cfg.AuthTimeout,
		outboxSize:  cfg.OutboxSize,
	}
}

type verification struct {
	identity domain.Identity
	err      error
}

// Authenticate verifies rawToken within the auth timeout and registers the
// new session as online. The session lives as long as ctx.
// On failure nothing is registered anywhere.
func (m *SessionManager) Authenticate(ctx context.Context, rawToken string) (*Session, error) {
	token := strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: token is missing", errors.ErrAuth)
	}

	authCtx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()

	// The verifier may ignore ctx, the wait is bounded regardless.
	done := make(chan verification, 1)
	go func() {
		identity, err := m.verifier.Verify(authCtx, token)
		done <- verification{identity: identity, err: err}
	}()

	var result verification
	select {
	case <-authCtx.Done():
		return nil, fmt.Errorf("%w: %w", errors.ErrAuth, authCtx.Err())
	case result = <-done:
	}
	if result.err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrAuth, result.err)
	}
	if result.identity.UserID == "" {
		return nil, fmt.Errorf("%w: empty identity", errors.ErrAuth)
	}

	s := newSession(ctx, m.nextID.Add(1), result.identity, m.outboxSize)
	m.presence.MarkOnline(s)
	m.log.Debug("session authenticated", "session_id", s.ID, "user_id", s.User)
	return s, nil
}

// Join subscribes s to a room its user participates in. Joining twice is a
// successful no-op.
func (m *SessionManager) Join(ctx context.Context, s *Session, roomID domain.RoomID) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is missing", errors.ErrProtocol)
	}
	if s.State() == domain.StateClosed {
		return errors.ErrSessionClosed
	}
	if s.Joined(roomID) {
		return nil
	}

	ok, err := m.directory.IsParticipant(ctx, roomID, s.User)
	switch {
	case errors.Is(err, errors.ErrRoomNotFound):
		return fmt.Errorf("%w: %w", errors.ErrMembership, err)
	case err != nil:
		return fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	case !ok:
		return errors.ErrMembership
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateClosed {
		return errors.ErrSessionClosed
	}
	if _, joined := s.rooms[roomID]; joined {
		return nil
	}
	m.index.Subscribe(roomID, s)
	s.rooms[roomID] = struct{}{}
	s.refreshStateLocked()
	return nil
}

// JoinAll joins every room the user participates in and returns them.
// Rooms already joined are kept; a collaborator failure joins nothing new.
func (m *SessionManager) JoinAll(ctx context.Context, s *Session) ([]domain.RoomID, error) {
	rooms, err := m.directory.RoomsOf(ctx, s.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.StateClosed {
		return nil, errors.ErrSessionClosed
	}
	ids := lo.FilterMap(rooms, func(r domain.Room, _ int) (domain.RoomID, bool) {
		return r.ID, r.HasParticipant(s.User)
	})
	for _, roomID := range ids {
		if _, joined := s.rooms[roomID]; joined {
			continue
		}
		m.index.Subscribe(roomID, s)
		s.rooms[roomID] = struct{}{}
	}
	s.refreshStateLocked()
	return ids, nil
}

// Leave always acknowledges. A pending typing indicator is stopped.
func (m *SessionManager) Leave(ctx context.Context, s *Session, roomID domain.RoomID) error {
	s.mu.Lock()
	if _, joined := s.rooms[roomID]; !joined {
		s.mu.Unlock()
		return nil
	}
	delete(s.rooms, roomID)
	m.index.Unsubscribe(roomID, s)
	_, wasTyping := s.typing[roomID]
	delete(s.typing, roomID)
	s.refreshStateLocked()
	s.mu.Unlock()

	if wasTyping {
		m.typing.relay(ctx, s, roomID, false)
	}
	return nil
}

// Close removes s from every index before returning. It is idempotent.
// Typing indicators left open are stopped for the remaining subscribers,
// then the presence count of the user is decremented.
func (m *SessionManager) Close(s *Session) {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = domain.StateClosed
	for roomID := range s.rooms {
		m.index.Unsubscribe(roomID, s)
	}
	typingRooms := lo.Keys(s.typing)
	rooms := len(s.rooms)
	clear(s.rooms)
	clear(s.typing)
	s.mu.Unlock()

	for _, roomID := range typingRooms {
		m.typing.relay(context.Background(), s, roomID, false)
	}
	wentOffline := m.presence.MarkOffline(s)
	s.cancel(errors.ErrSessionClosed)
	m.log.Debug("session closed",
		"session_id", s.ID, "user_id", s.User, "rooms", rooms, "offline", wentOffline, "cause", s.Err())
}

// Presence exposes the registry to the transport for snapshots.
func (m *SessionManager) Presence() *PresenceRegistry {
	return m.presence
}
