package event

import (
	"chat-relay/errors"
	"log/slog"
	"sync"
)

type CensoredHandler struct {
	mu      sync.Mutex
	log     *slog.Logger
	counter *Counter
	hit     map[string]uint64
}

func NewCensoredHandler(log *slog.Logger, counter *Counter) *CensoredHandler {
	return &CensoredHandler{
		log:     log,
		counter: counter,
		hit:     make(map[string]uint64),
	}
}

func (h *CensoredHandler) Handle(event Event) {
	switch event.Type {
	case CensorshipHit:
		payload, ok := event.Payload.(Censored)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.mu.Lock()
		h.hit[payload.Word]++
		h.mu.Unlock()
		h.counter.Increment(CensorshipHit)
		h.log.Debug("censorship hit", "room_id", payload.Room, "language", payload.Language)
	}
}

// Hits returns how often a word has been censored.
func (h *CensoredHandler) Hits(word string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hit[word]
}
