package observability

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const recentMessagesKept = 20

// RecentMessageInfo is one delivered message as shown on the debug page.
type RecentMessageInfo struct {
	RoomID     domain.RoomID `json:"room_id"`
	Sequence   int64         `json:"sequence"`
	Recipients int           `json:"recipients"`
	Dropped    int           `json:"dropped"`
	Timestamp  string        `json:"timestamp"`
}

// MonitoringStats aggregates the live metrics exposed by the debug server.
type MonitoringStats struct {
	// delivery
	MessagesPerSecond float64 `json:"messages_per_second"`
	MessagesSent      uint64  `json:"messages_sent"`
	Deliveries        uint64  `json:"deliveries"`
	Drops             uint64  `json:"drops"`

	// process
	Cpu        float64 `json:"cpu"`
	RamPercent float32 `json:"ram_percent"`
	Goroutines int     `json:"goroutines"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`

	Queues         map[string]int      `json:"queues"`
	RecentMessages []RecentMessageInfo `json:"recent_messages"`
}

// MonitoringManager turns telemetry into a rolling snapshot.
// It is registered as an event.Handler on the telemetry worker.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	windowMessages uint64
	messagesSent   uint64
	deliveries     uint64
	drops          uint64
	lastCheck      time.Time
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{
		log:       log,
		lastCheck: time.Now(),
		latestStats: MonitoringStats{
			Queues:         make(map[string]int),
			RecentMessages: make([]RecentMessageInfo, 0),
		},
	}
}

func (mm *MonitoringManager) Handle(e event.Event) {
	switch payload := e.Payload.(type) {
	case event.MessageSent:
		atomic.AddUint64(&mm.windowMessages, 1)
		atomic.AddUint64(&mm.messagesSent, 1)
		atomic.AddUint64(&mm.deliveries, uint64(payload.Recipients-payload.Dropped))
		atomic.AddUint64(&mm.drops, uint64(payload.Dropped))
		mm.addRecent(payload)
	case event.ProcessTracker:
		mm.mu.Lock()
		mm.latestStats.Cpu = payload.Cpu
		mm.latestStats.RamPercent = payload.Ram
		mm.latestStats.Goroutines = payload.Goroutines
		mm.mu.Unlock()
	case event.ChannelCapacity:
		mm.mu.Lock()
		mm.latestStats.Queues[payload.ChannelName] = payload.Length
		mm.mu.Unlock()
	}
}

func (mm *MonitoringManager) addRecent(payload event.MessageSent) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	info := RecentMessageInfo{
		RoomID:     payload.Room,
		Sequence:   payload.Sequence,
		Recipients: payload.Recipients,
		Dropped:    payload.Dropped,
		Timestamp:  payload.At.Format("15:04:05"),
	}
	mm.latestStats.RecentMessages = append([]RecentMessageInfo{info}, mm.latestStats.RecentMessages...)
	if len(mm.latestStats.RecentMessages) > recentMessagesKept {
		mm.latestStats.RecentMessages = mm.latestStats.RecentMessages[:recentMessagesKept]
	}
}

// Listen refreshes the derived rates every interval until ctx is done.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Info("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(mm.lastCheck).Seconds()
	if duration > 0 {
		sent := atomic.SwapUint64(&mm.windowMessages, 0)
		mm.latestStats.MessagesPerSecond = float64(sent) / duration
	}
	mm.lastCheck = now

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC

	mm.log.Debug("Stats updated",
		"messages_per_second", mm.latestStats.MessagesPerSecond,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

// GetLatest returns a copy safe to encode concurrently.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	stats := mm.latestStats
	stats.MessagesSent = atomic.LoadUint64(&mm.messagesSent)
	stats.Deliveries = atomic.LoadUint64(&mm.deliveries)
	stats.Drops = atomic.LoadUint64(&mm.drops)
	stats.Queues = make(map[string]int, len(mm.latestStats.Queues))
	for name, length := range mm.latestStats.Queues {
		stats.Queues[name] = length
	}
	stats.RecentMessages = append([]RecentMessageInfo(nil), mm.latestStats.RecentMessages...)
	return stats
}
