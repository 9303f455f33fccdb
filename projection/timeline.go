// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and gap tracking.
// Does not emit events or interact with UI directly.
package projection

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Gap is a missing range of sequences in a room, both bounds included.
type Gap struct {
	RoomID domain.RoomID
	From   int64
	To     int64
}

type roomTimeline struct {
	messages []domain.Message
	typing   map[domain.UserID]struct{}
}

func (r *roomTimeline) last() int64 {
	if len(r.messages) == 0 {
		return 0
	}
	return r.messages[len(r.messages)-1].Sequence
}

func (r *roomTimeline) has(seq int64) bool {
	_, found := slices.BinarySearchFunc(r.messages, seq, func(m domain.Message, s int64) int {
		return int(m.Sequence - s)
	})
	return found
}

func (r *roomTimeline) insert(m domain.Message) bool {
	i, found := slices.BinarySearchFunc(r.messages, m.Sequence, func(x domain.Message, s int64) int {
		return int(x.Sequence - s)
	})
	if found {
		return false
	}
	r.messages = slices.Insert(r.messages, i, m)
	return true
}

// Timeline is a client-side view of the rooms its owner follows.
// Messages are kept in sequence order whatever order they arrive in:
// duplicates are dropped and holes are reported by Gaps until backfilled.
type Timeline struct {
	Owner domain.UserID

	mu     sync.Mutex
	rooms  map[domain.RoomID]*roomTimeline
	online map[domain.UserID]struct{}
}

func NewTimeline(owner domain.UserID) *Timeline {
	return &Timeline{
		Owner:  owner,
		rooms:  make(map[domain.RoomID]*roomTimeline),
		online: make(map[domain.UserID]struct{}),
	}
}

// Consume applies one live event. It satisfies contract.EventSink.
func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.MessageDelivered:
		t.room(evt.Message.RoomID).insert(evt.Message)
		delete(t.room(evt.Message.RoomID).typing, evt.Message.SenderID)
	case event.TypingChanged:
		room := t.room(evt.Room)
		if evt.Started {
			room.typing[evt.User] = struct{}{}
		} else {
			delete(room.typing, evt.User)
		}
	case event.PresenceChanged:
		if evt.Online {
			t.online[evt.User] = struct{}{}
			return nil
		}
		delete(t.online, evt.User)
		for _, room := range t.rooms {
			delete(room.typing, evt.User)
		}
	}
	return nil
}

// Backfill merges fetched history, typically the answer to a Gaps query.
// It returns how many messages were new.
func (t *Timeline) Backfill(roomID domain.RoomID, messages []domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	room := t.room(roomID)
	added := 0
	for _, m := range messages {
		if m.RoomID == roomID && room.insert(m) {
			added++
		}
	}
	return added
}

// SetOnline replaces the presence view, as given by the authenticated frame.
func (t *Timeline) SetOnline(users []domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.online)
	for _, u := range users {
		t.online[u] = struct{}{}
	}
}

func (t *Timeline) Messages(roomID domain.RoomID) []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(room.messages)
}

// LastSequence is the highest sequence seen in the room, 0 if none.
func (t *Timeline) LastSequence(roomID domain.RoomID) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room, ok := t.rooms[roomID]; ok {
		return room.last()
	}
	return 0
}

// Gaps lists the holes between the first and last known message of each room.
// Sequences start at 1, so a room whose first known message is 5 reports 1..4.
func (t *Timeline) Gaps() []Gap {
	t.mu.Lock()
	defer t.mu.Unlock()
	var gaps []Gap
	for _, roomID := range t.sortedRooms() {
		room := t.rooms[roomID]
		expected := int64(1)
		for _, m := range room.messages {
			if m.Sequence > expected {
				gaps = append(gaps, Gap{RoomID: roomID, From: expected, To: m.Sequence - 1})
			}
			expected = m.Sequence + 1
		}
	}
	return gaps
}

func (t *Timeline) Contains(roomID domain.RoomID, seq int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	return ok && room.has(seq)
}

func (t *Timeline) Typing(roomID domain.RoomID) []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	users := lo.Keys(room.typing)
	slices.Sort(users)
	return users
}

func (t *Timeline) Online() []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := lo.Keys(t.online)
	slices.Sort(users)
	return users
}

func (t *Timeline) room(roomID domain.RoomID) *roomTimeline {
	room, ok := t.rooms[roomID]
	if !ok {
		room = &roomTimeline{typing: make(map[domain.UserID]struct{})}
		t.rooms[roomID] = room
	}
	return room
}

func (t *Timeline) sortedRooms() []domain.RoomID {
	ids := lo.Keys(t.rooms)
	slices.Sort(ids)
	return ids
}
