package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// PresenceRegistry maps every user to its live sessions.
// A user is online iff it has at least one. Transitions are queued while
// the registry lock is held, so their order always matches the order of
// the count changes that produced them.
type PresenceRegistry struct {
	mu     sync.Mutex
	users  map[domain.UserID]map[uint64]*Session
	queue  []event.PresenceChanged
	notify chan struct{}
	now    func() time.Time
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		users:  make(map[domain.UserID]map[uint64]*Session),
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

// MarkOnline registers s. It reports true when its user just came online.
func (p *PresenceRegistry) MarkOnline(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessions, ok := p.users[s.User]
	if !ok {
		sessions = make(map[uint64]*Session)
		p.users[s.User] = sessions
	}
	if _, exists := sessions[s.ID]; exists {
		return false
	}
	sessions[s.ID] = s
	if len(sessions) != 1 {
		return false
	}
	p.enqueueLocked(event.PresenceChanged{User: s.User, Online: true, At: p.now().UTC()})
	return true
}

// MarkOffline removes s. It reports true when its user just went offline.
// Removing an unknown session is a no-op, so the count never goes negative.
func (p *PresenceRegistry) MarkOffline(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessions, ok := p.users[s.User]
	if !ok {
		return false
	}
	if _, exists := sessions[s.ID]; !exists {
		return false
	}
	delete(sessions, s.ID)
	if len(sessions) > 0 {
		return false
	}
	delete(p.users, s.User)
	p.enqueueLocked(event.PresenceChanged{User: s.User, Online: false, At: p.now().UTC()})
	return true
}

func (p *PresenceRegistry) IsOnline(userID domain.UserID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[userID]) > 0
}

func (p *PresenceRegistry) SessionCount(userID domain.UserID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users[userID])
}

// OnlineUsers returns the online users, sorted.
func (p *PresenceRegistry) OnlineUsers() []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := lo.Keys(p.users)
	slices.Sort(users)
	return users
}

// Sessions is a snapshot of every authenticated session.
func (p *PresenceRegistry) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []*Session
	for _, sessions := range p.users {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	return all
}

// Audience is every authenticated session, as delivery targets.
func (p *PresenceRegistry) Audience() []contract.EventSink {
	return lo.Map(p.Sessions(), func(s *Session, _ int) contract.EventSink { return s })
}

// Transitions yields queued presence transitions in FIFO order, waiting for
// new ones until ctx is done. The queue outlives the iterator: a consumer
// that stops and calls Transitions again resumes where it left off.
// Only one consumer is expected at a time.
func (p *PresenceRegistry) Transitions(ctx context.Context) iter.Seq[event.PresenceChanged] {
	return func(yield func(event.PresenceChanged) bool) {
		for {
			if next, ok := p.pop(); ok {
				if !yield(next) {
					return
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-p.notify:
			}
		}
	}
}

// Pending is the number of transitions not yet consumed.
func (p *PresenceRegistry) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *PresenceRegistry) pop() (event.PresenceChanged, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return event.PresenceChanged{}, false
	}
	next := p.queue[0]
	p.queue[0] = event.PresenceChanged{}
	p.queue = p.queue[1:]
	return next, true
}

func (p *PresenceRegistry) enqueueLocked(e event.PresenceChanged) {
	p.queue = append(p.queue, e)
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
