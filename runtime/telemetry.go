package runtime

import (
	"chat-relay/domain/event"
	"time"
)

// publish never blocks: telemetry is sampled, losing an event is acceptable.
func publish(telemetry chan<- event.Event, t event.Type, payload any) {
	if telemetry == nil {
		return
	}
	select {
	case telemetry <- event.Event{Type: t, CreatedAt: time.Now().UTC(), Payload: payload}:
	default:
	}
}
