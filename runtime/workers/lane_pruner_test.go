package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestLanePruner_Prunes_On_Every_Tick_Until_Cancelled(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Given a pruner ticking every 10ms
	pruner := NewLanePruner(log, func() int { return int(calls.Add(1)) % 2 }, 10*time.Millisecond)

	// When it runs for a while
	go func() { done <- pruner.Run(ctx) }()
	req.Eventually(func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	// Then cancelling stops it cleanly
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
