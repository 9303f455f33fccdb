package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
)

// TypingRelay forwards typing indicators to the other subscribers of a room.
// Nothing is persisted and repeated signals with no state change are dropped.
type TypingRelay struct {
	log   *slog.Logger
	index *RoomIndex
}

func NewTypingRelay(log *slog.Logger, index *RoomIndex) *TypingRelay {
	return &TypingRelay{log: log, index: index}
}

func (t *TypingRelay) Start(ctx context.Context, s *Session, roomID domain.RoomID) error {
	return t.set(ctx, s, roomID, true)
}

func (t *TypingRelay) Stop(ctx context.Context, s *Session, roomID domain.RoomID) error {
	return t.set(ctx, s, roomID, false)
}

func (t *TypingRelay) set(ctx context.Context, s *Session, roomID domain.RoomID, typing bool) error {
	changed, err := s.setTyping(roomID, typing)
	if err != nil {
		return err
	}
	if changed {
		t.relay(ctx, s, roomID, typing)
	}
	return nil
}

// relay delivers to the current subscribers, never to the origin.
func (t *TypingRelay) relay(ctx context.Context, origin *Session, roomID domain.RoomID, typing bool) {
	e := event.TypingChanged{Room: roomID, User: origin.User, Started: typing}
	for _, sub := range t.index.SubscribersOf(roomID) {
		if sub.ID == origin.ID {
			continue
		}
		if err := sub.Consume(ctx, e); err != nil {
			t.log.Debug("typing indicator not delivered",
				"room_id", roomID, "session_id", sub.ID, "error", err)
		}
	}
}
