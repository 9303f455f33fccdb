package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// lane serializes sequence assignment, persistence and fan-out of one room.
// last is only trusted once loaded from the store. refs counts the
// submissions holding the lane and is guarded by Pipeline.lanesMu.
type lane struct {
	mu     sync.Mutex
	last   int64
	loaded bool
	refs   int
}

// Pipeline turns a send-message request into a persisted, sequenced message
// delivered to every live subscriber of its room.
type Pipeline struct {
	log       *slog.Logger
	store     contract.MessageStore
	index     *RoomIndex
	typing    *TypingRelay
	filter    contract.ContentFilter
	indexing  chan<- domain.Message
	telemetry chan<- event.Event
	now       func() time.Time

	lanesMu sync.Mutex
	lanes   map[domain.RoomID]*lane
}

type PipelineOption func(*Pipeline)

// WithContentFilter rewrites content before it is persisted.
func WithContentFilter(filter contract.ContentFilter) PipelineOption {
	return func(p *Pipeline) { p.filter = filter }
}

// WithIndexing hands every persisted message to the search indexer.
// A full channel drops the message from the index, never from the room.
func WithIndexing(indexing chan<- domain.Message) PipelineOption {
	return func(p *Pipeline) { p.indexing = indexing }
}

func WithTelemetry(telemetry chan<- event.Event) PipelineOption {
	return func(p *Pipeline) { p.telemetry = telemetry }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(log *slog.Logger, store contract.MessageStore, index *RoomIndex,
	typing *TypingRelay, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		log:    log,
		store:  store,
		index:  index,
		typing: typing,
		now:    time.Now,
		lanes:  make(map[domain.RoomID]*lane),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit persists and fans out a message posted by s.
// Nothing is delivered unless the message has been persisted.
func (p *Pipeline) Submit(ctx context.Context, s *Session, cmd domain.PostMessageCommand) (domain.Message, error) {
	if cmd.ContentType == "" {
		cmd.ContentType = domain.ContentText
	}
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	if !s.Joined(cmd.RoomID) {
		return domain.Message{}, errors.ErrNotJoined
	}

	msg, recipients, dropped, err := p.sequence(ctx, s, cmd)
	if err != nil {
		return domain.Message{}, err
	}

	// Posting ends the sender's typing state in that room.
	if err = p.typing.Stop(ctx, s, cmd.RoomID); err != nil {
		p.log.Debug("typing state not cleared", "session_id", s.ID, "error", err)
	}
	if p.indexing != nil {
		select {
		case p.indexing <- msg:
		default:
			p.log.Warn("search indexing queue full, message not indexed",
				"room_id", msg.RoomID, "sequence", msg.Sequence)
		}
	}
	publish(p.telemetry, event.MessageSentType, event.MessageSent{
		Room:       msg.RoomID,
		Sequence:   msg.Sequence,
		Recipients: recipients,
		Dropped:    dropped,
		At:         msg.CreatedAt,
	})
	return msg, nil
}

// sequence runs under the room lane: assign last+1, persist, then deliver.
// The lane is held during delivery so every subscriber receives the room's
// messages in sequence order.
func (p *Pipeline) sequence(ctx context.Context, s *Session,
	cmd domain.PostMessageCommand) (domain.Message, int, int, error) {
	l := p.acquire(cmd.RoomID)
	defer p.release(l)
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		last, err := p.store.LastSequence(ctx, cmd.RoomID)
		if err != nil {
			return domain.Message{}, 0, 0, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
		}
		l.last, l.loaded = last, true
	}

	content := cmd.Content
	// Only text is moderated: image and file contents are references.
	if p.filter != nil && cmd.ContentType == domain.ContentText {
		content = p.filter.Filter(cmd.RoomID, content)
	}
	msg := domain.Message{
		ID:          uuid.NewString(),
		RoomID:      cmd.RoomID,
		SenderID:    s.User,
		Content:     content,
		ContentType: cmd.ContentType,
		CreatedAt:   p.now().UTC(),
		Sequence:    l.last + 1,
	}
	if err := p.store.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, errors.ErrSequenceConflict) {
			// Someone else wrote to the room, reload before the next attempt.
			l.loaded = false
		}
		p.log.Warn("message not persisted", "room_id", msg.RoomID, "sequence", msg.Sequence, "error", err)
		return domain.Message{}, 0, 0, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	l.last = msg.Sequence

	recipients := p.index.SubscribersOf(msg.RoomID)
	dropped := 0
	delivered := event.MessageDelivered{Message: msg}
	for _, sub := range recipients {
		if err := sub.Consume(ctx, delivered); err != nil {
			dropped++
			if errors.Is(err, errors.ErrSlowConsumer) {
				publish(p.telemetry, event.SlowConsumerType, event.SlowConsumer{SessionID: sub.ID, User: sub.User})
			}
		}
	}
	return msg, len(recipients), dropped, nil
}

func (p *Pipeline) acquire(roomID domain.RoomID) *lane {
	p.lanesMu.Lock()
	defer p.lanesMu.Unlock()
	l, ok := p.lanes[roomID]
	if !ok {
		l = &lane{}
		p.lanes[roomID] = l
	}
	l.refs++
	return l
}

func (p *Pipeline) release(l *lane) {
	p.lanesMu.Lock()
	l.refs--
	p.lanesMu.Unlock()
}

// Prune drops the lanes of rooms nobody is subscribed to and no submission
// holds. A dropped lane reloads its last sequence from the store on next use.
// It returns the number of lanes dropped.
func (p *Pipeline) Prune() int {
	p.lanesMu.Lock()
	defer p.lanesMu.Unlock()
	dropped := 0
	for roomID, l := range p.lanes {
		if l.refs == 0 && p.index.Len(roomID) == 0 {
			delete(p.lanes, roomID)
			dropped++
		}
	}
	return dropped
}

// Lanes is the number of rooms with a cached lane.
func (p *Pipeline) Lanes() int {
	p.lanesMu.Lock()
	defer p.lanesMu.Unlock()
	return len(p.lanes)
}
