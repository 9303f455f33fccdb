package event

import (
	"time"

	"chat-relay/domain"
)

// Type identifies a technical event travelling on the telemetry channel.
type Type string

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	PIDTrackerType          Type = "PID_TRACKER"
	MessageSentType         Type = "MESSAGE_SENT"
	CensorshipHit           Type = "CENSORSHIP_HIT"
	SlowConsumerType        Type = "SLOW_CONSUMER"
)

// Event is a technical event. It never reaches a client.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type ProcessTracker struct {
	PID        int32
	Cpu        float64
	Ram        float32
	Goroutines int
}

// MessageSent is reported once per persisted message, after fan-out.
type MessageSent struct {
	Room       domain.RoomID
	Sequence   int64
	Recipients int
	Dropped    int
	At         time.Time
}

type Censored struct {
	Room     domain.RoomID
	Language string
	Word     string
}

type SlowConsumer struct {
	SessionID uint64
	User      domain.UserID
}
