package event

import (
	"chat-relay/errors"
	"fmt"
	"log/slog"
)

type ProcessTrackerHandler struct {
	log *slog.Logger
}

func NewProcessTrackerHandler(log *slog.Logger) *ProcessTrackerHandler {
	return &ProcessTrackerHandler{log: log}
}

func (h ProcessTrackerHandler) Handle(event Event) {
	switch event.Type {
	case PIDTrackerType:
		payload, ok := event.Payload.(ProcessTracker)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.log.Debug(fmt.Sprintf("[RELAY] PID %d | CPU %.2f%% | RAM %.2f%% | GOROUTINES %d",
			payload.PID, payload.Cpu, payload.Ram, payload.Goroutines))
	}
}

// SlowConsumerHandler counts sessions dropped because their outbox was full.
type SlowConsumerHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewSlowConsumerHandler(log *slog.Logger, counter *Counter) *SlowConsumerHandler {
	return &SlowConsumerHandler{log: log, counter: counter}
}

func (h *SlowConsumerHandler) Handle(event Event) {
	switch event.Type {
	case SlowConsumerType:
		payload, ok := event.Payload.(SlowConsumer)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(SlowConsumerType)
		h.log.Warn("slow consumer dropped", "session_id", payload.SessionID, "user_id", payload.User)
	}
}
