package moderation

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
)

// Filter censors message content before it is persisted and reports
// every hit on the telemetry channel.
type Filter struct {
	log       *slog.Logger
	moderator *Moderator
	telemetry chan<- event.Event
}

func NewFilter(log *slog.Logger, moderator *Moderator, telemetry chan<- event.Event) *Filter {
	return &Filter{log: log, moderator: moderator, telemetry: telemetry}
}

func (f *Filter) Filter(roomID domain.RoomID, content string) string {
	sanitized, found := f.moderator.Censor(content)
	if len(found) == 0 {
		return content
	}
	lang := whatlanggo.Detect(content).Lang.Iso6391()
	for _, word := range found {
		f.report(event.Censored{Room: roomID, Language: lang, Word: word})
	}
	f.log.Debug("message censored", "room_id", roomID, "lang", lang, "hits", len(found))
	return sanitized
}

func (f *Filter) report(payload event.Censored) {
	if f.telemetry == nil {
		return
	}
	select {
	case f.telemetry <- event.Event{Type: event.CensorshipHit, CreatedAt: time.Now().UTC(), Payload: payload}:
	default:
	}
}
