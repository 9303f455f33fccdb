package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"time"
)

// SearchIndexer feeds persisted messages to the full-text index in batches.
// The index is a derived view: a failed batch is logged and skipped, the
// message log stays the source of truth.
type SearchIndexer struct {
	log           *slog.Logger
	index         contract.MessageIndex
	messages      <-chan domain.Message
	batchSize     int
	flushInterval time.Duration
}

func NewSearchIndexer(log *slog.Logger, index contract.MessageIndex,
	messages <-chan domain.Message, batchSize int, flushInterval time.Duration) *SearchIndexer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &SearchIndexer{
		log:           log,
		index:         index,
		messages:      messages,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (w *SearchIndexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Message, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.index.Index(ctx, batch...); err != nil {
			w.log.Error("Indexing batch failed", "size", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Best effort on the way out, with a fresh context.
			if len(batch) > 0 {
				if err := w.index.Index(context.Background(), batch...); err != nil {
					w.log.Error("Final indexing batch failed", "size", len(batch), "error", err)
				}
			}
			return nil
		case msg, ok := <-w.messages:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, msg)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
