package workers

import (
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples CPU and memory of the relay process itself.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	telemetryChan  chan<- event.Event
	metricInterval time.Duration
	pid            int32
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	telemetryChan chan<- event.Event,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			tracker, err := Sample(p)
			if err != nil {
				w.log.Error("Error while sampling process", "pid", w.pid, "err", err)
				continue
			}
			select {
			case w.telemetryChan <- event.Event{Type: event.PIDTrackerType, CreatedAt: time.Now().UTC(), Payload: tracker}:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

// Sample reads the current usage of p.
func Sample(p *process.Process) (event.ProcessTracker, error) {
	cpu, err := p.CPUPercent()
	if err != nil {
		return event.ProcessTracker{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return event.ProcessTracker{}, err
	}
	return event.ProcessTracker{
		PID:        p.Pid,
		Cpu:        cpu,
		Ram:        ram,
		Goroutines: runtime.NumGoroutine(),
	}, nil
}
