package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
)

// PresenceFanout broadcasts online/offline transitions to every
// authenticated session.
//
// Delivery is best-effort: a session whose outbox is full is dropped by
// its own Consume, never waited for. Transitions are consumed in the order
// the registry produced them.
type PresenceFanout struct {
	log  *slog.Logger
	feed contract.PresenceFeed
}

func NewPresenceFanout(log *slog.Logger, feed contract.PresenceFeed) *PresenceFanout {
	return &PresenceFanout{log: log, feed: feed}
}

func (w *PresenceFanout) Run(ctx context.Context) error {
	for transition := range w.feed.Transitions(ctx) {
		audience := w.feed.Audience()
		delivered := 0
		for _, sink := range audience {
			if err := sink.Consume(ctx, transition); err == nil {
				delivered++
			}
		}
		w.log.Debug("Presence transition broadcast",
			"user_id", transition.User, "online", transition.Online,
			"audience", len(audience), "delivered", delivered)
	}
	w.log.Debug("Context done, stopping presence fanout")
	return nil
}
