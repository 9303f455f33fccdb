package runtime

import (
	"chat-relay/domain"
	"sync"
)

// roomSubscribers is the live subscriber set of one room.
// retired is set when the set is dropped from the index; a subscriber that
// raced with the removal retries on a fresh set.
type roomSubscribers struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	retired  bool
}

// RoomIndex tracks which sessions are listening to which room right now.
// It is distinct from persisted participants: being allowed to listen is
// checked before Subscribe is called.
// The outer lock only guards lookup and creation of per-room sets, so
// activity on one room never contends with another.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomSubscribers
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[domain.RoomID]*roomSubscribers)}
}

// Subscribe adds s to the room. It reports false when s was already there.
func (i *RoomIndex) Subscribe(roomID domain.RoomID, s *Session) bool {
	for {
		r := i.getOrCreate(roomID)
		r.mu.Lock()
		if r.retired {
			r.mu.Unlock()
			continue
		}
		_, exists := r.sessions[s.ID]
		r.sessions[s.ID] = s
		r.mu.Unlock()
		return !exists
	}
}

// Unsubscribe removes s from the room. Empty rooms are dropped from the index
// to prevent memory leaks over time.
func (i *RoomIndex) Unsubscribe(roomID domain.RoomID, s *Session) bool {
	r := i.get(roomID)
	if r == nil {
		return false
	}
	r.mu.Lock()
	_, exists := r.sessions[s.ID]
	delete(r.sessions, s.ID)
	empty := len(r.sessions) == 0
	r.mu.Unlock()

	if empty {
		i.retire(roomID, r)
	}
	return exists
}

// SubscribersOf returns a snapshot of the room's sessions.
// The slice is owned by the caller and is never mutated by the index.
func (i *RoomIndex) SubscribersOf(roomID domain.RoomID) []*Session {
	r := i.get(roomID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Len is the number of subscribers of a room.
func (i *RoomIndex) Len(roomID domain.RoomID) int {
	r := i.get(roomID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Rooms is the number of rooms with at least one subscriber.
func (i *RoomIndex) Rooms() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.rooms)
}

func (i *RoomIndex) get(roomID domain.RoomID) *roomSubscribers {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.rooms[roomID]
}

func (i *RoomIndex) getOrCreate(roomID domain.RoomID) *roomSubscribers {
	if r := i.get(roomID); r != nil {
		return r
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if r, ok := i.rooms[roomID]; ok {
		return r
	}
	r := &roomSubscribers{sessions: make(map[uint64]*Session)}
	i.rooms[roomID] = r
	return r
}

func (i *RoomIndex) retire(roomID domain.RoomID, r *roomSubscribers) {
	i.mu.Lock()
	defer i.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 && i.rooms[roomID] == r {
		r.retired = true
		delete(i.rooms, roomID)
	}
}
