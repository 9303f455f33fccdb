// Package runtime owns the live state of the relay: sessions, presence,
// room subscriptions and the per-room message lanes.
// It orchestrates delivery without containing transport concerns.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Config struct {
	AuthTimeout          time.Duration
	OutboxSize           int
	IndexQueueSize       int
	IndexBatchSize       int
	IndexFlushInterval   time.Duration
	MetricInterval       time.Duration
	LowCapacityThreshold int
	LatencyThreshold     time.Duration
	LanePruneInterval    time.Duration
}

// Dependencies are the collaborators the relay consumes.
// Search and Filter are optional.
type Dependencies struct {
	Verifier  contract.IdentityVerifier
	Directory contract.RoomDirectory
	Store     contract.MessageStore
	Search    contract.MessageIndex
	Filter    contract.ContentFilter
	Telemetry chan event.Event
	Handlers  []event.Handler
}

// Orchestrator is created at startup and torn down at shutdown. It owns
// every registry and the supervised background workers.
type Orchestrator struct {
	log        *slog.Logger
	supervisor *workers.Supervisor
	telemetry  chan event.Event
	indexing   chan domain.Message
	counter    *event.Counter
	mu         sync.Mutex
	cancel     context.CancelFunc

	Index    *RoomIndex
	Presence *PresenceRegistry
	Typing   *TypingRelay
	Sessions *SessionManager
	Pipeline *Pipeline
}

func NewOrchestrator(log *slog.Logger, deps Dependencies, cfg Config) *Orchestrator {
	telemetry := deps.Telemetry
	if telemetry == nil {
		telemetry = make(chan event.Event, 1024)
	}
	o := &Orchestrator{
		log:        log,
		supervisor: workers.NewSupervisor(log).WithTelemetry(telemetry),
		telemetry:  telemetry,
		counter:    event.NewCounter(),
		Index:      NewRoomIndex(),
		Presence:   NewPresenceRegistry(),
	}
	o.Typing = NewTypingRelay(log, o.Index)
	o.Sessions = NewSessionManager(log, deps.Verifier, deps.Directory, o.Index, o.Presence, o.Typing,
		SessionManagerConfig{AuthTimeout: cfg.AuthTimeout, OutboxSize: cfg.OutboxSize})

	opts := []PipelineOption{WithTelemetry(telemetry)}
	if deps.Filter != nil {
		opts = append(opts, WithContentFilter(deps.Filter))
	}
	if deps.Search != nil {
		o.indexing = make(chan domain.Message, max(cfg.IndexQueueSize, 1))
		opts = append(opts, WithIndexing(o.indexing))
	}
	o.Pipeline = NewPipeline(log, deps.Store, o.Index, o.Typing, opts...)

	o.prepareWorkers(deps, cfg)
	return o
}

func (o *Orchestrator) prepareWorkers(deps Dependencies, cfg Config) {
	handlers := []event.Handler{
		event.NewMessageSentHandler(o.log, o.counter, cfg.LatencyThreshold),
		event.NewCensoredHandler(o.log, o.counter),
		event.NewSlowConsumerHandler(o.log, o.counter),
		event.NewWorkerRestartedAfterPanicHandler(o.log, o.counter),
		event.NewChannelCapacityHandler(o.log, cfg.LowCapacityThreshold),
		event.NewProcessTrackerHandler(o.log),
	}
	handlers = append(handlers, deps.Handlers...)

	o.supervisor.Add(
		workers.NewPresenceFanout(o.log, o.Presence),
		workers.NewTelemetryWorker(o.log, o.telemetry, handlers...),
		workers.NewLanePruner(o.log, o.Pipeline.Prune, orDefault(cfg.LanePruneInterval, time.Minute)),
	)
	if deps.Search != nil {
		o.supervisor.Add(workers.NewSearchIndexer(o.log, deps.Search, o.indexing,
			max(cfg.IndexBatchSize, 1), orDefault(cfg.IndexFlushInterval, time.Second)))
	}
	if cfg.MetricInterval > 0 {
		o.supervisor.Add(
			workers.NewChannelCapacityWorker(o.log, o.sampleChannels, o.telemetry, cfg.MetricInterval),
			workers.NewHealthMonitoringWorker(o.log, o.telemetry, cfg.MetricInterval),
		)
	}
}

// Start runs every supervised worker and blocks until ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

// Stop initiates a graceful shutdown of the background workers.
// Sessions are closed by their transports.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

type Stats struct {
	Sessions        int               `json:"sessions"`
	OnlineUsers     int               `json:"online_users"`
	ActiveRooms     int               `json:"active_rooms"`
	PendingPresence int               `json:"pending_presence"`
	Counters        map[string]uint64 `json:"counters"`
}

func (o *Orchestrator) Stats() Stats {
	counters := make(map[string]uint64)
	for t, v := range o.counter.Snapshot() {
		counters[string(t)] = v
	}
	return Stats{
		Sessions:        len(o.Presence.Sessions()),
		OnlineUsers:     len(o.Presence.OnlineUsers()),
		ActiveRooms:     o.Index.Rooms(),
		PendingPresence: o.Presence.Pending(),
		Counters:        counters,
	}
}

// sampleChannels reports the shared queues and the fullest session outbox.
func (o *Orchestrator) sampleChannels() []workers.NamedChannel {
	channels := []workers.NamedChannel{{Name: "telemetry", Channel: o.telemetry}}
	if o.indexing != nil {
		channels = append(channels, workers.NamedChannel{Name: "indexing", Channel: o.indexing})
	}
	var fullest *Session
	for _, s := range o.Presence.Sessions() {
		if fullest == nil || len(s.outbox) > len(fullest.outbox) {
			fullest = s
		}
	}
	if fullest != nil {
		channels = append(channels, workers.NamedChannel{
			Name:    fmt.Sprintf("outbox:%d", fullest.ID),
			Channel: fullest.outbox,
		})
	}
	return channels
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
