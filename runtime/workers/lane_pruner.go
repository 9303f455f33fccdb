package workers

import (
	"context"
	"log/slog"
	"time"
)

// LanePruner periodically releases the per-room lanes of rooms nobody listens to.
type LanePruner struct {
	log      *slog.Logger
	prune    func() int
	interval time.Duration
}

func NewLanePruner(log *slog.Logger, prune func() int, interval time.Duration) *LanePruner {
	return &LanePruner{log: log, prune: prune, interval: interval}
}

func (w *LanePruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping lane pruning")
			return nil
		case <-ticker.C:
			if n := w.prune(); n > 0 {
				w.log.Debug("Idle room lanes dropped", "count", n)
			}
		}
	}
}
