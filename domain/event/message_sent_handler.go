package event

import (
	"chat-relay/errors"
	"log/slog"
	"time"
)

// MessageSentHandler handles events when a message has been persisted and fanned out.
// It counts deliveries and drops, and warns when the end-to-end latency is high.
type MessageSentHandler struct {
	log              *slog.Logger
	counter          *Counter
	latencyThreshold time.Duration
}

func NewMessageSentHandler(log *slog.Logger, counter *Counter, latencyThreshold time.Duration) *MessageSentHandler {
	return &MessageSentHandler{log: log, counter: counter, latencyThreshold: latencyThreshold}
}

func (p *MessageSentHandler) Handle(event Event) {
	switch event.Type {
	case MessageSentType:
		payload, ok := event.Payload.(MessageSent)
		if !ok {
			p.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		p.counter.Increment(MessageSentType)

		leadTime := event.CreatedAt.Sub(payload.At)
		p.log.Debug("telemetry: message sent",
			"room_id", payload.Room,
			"sequence", payload.Sequence,
			"recipients", payload.Recipients,
			"dropped", payload.Dropped,
			"lead_time_ms", leadTime.Milliseconds(),
		)
		if p.latencyThreshold > 0 && leadTime > p.latencyThreshold {
			p.log.Warn("high latency detected", "room_id", payload.Room, "lead_time", leadTime)
		}
	}
}
