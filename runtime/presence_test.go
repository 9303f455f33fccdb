package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(ctx context.Context, p *PresenceRegistry, n int) []event.PresenceChanged {
	var out []event.PresenceChanged
	for transition := range p.Transitions(ctx) {
		out = append(out, transition)
		if len(out) == n {
			break
		}
	}
	return out
}

func TestPresence_Transitions_Only_On_Boundaries(t *testing.T) {
	req := require.New(t)
	p := NewPresenceRegistry()
	identity := domain.Identity{UserID: "alice"}
	s1 := newSession(context.Background(), 1, identity, 1)
	s2 := newSession(context.Background(), 2, identity, 1)

	// Given alice opens two sessions
	req.True(p.MarkOnline(s1))
	req.False(p.MarkOnline(s2))
	req.False(p.MarkOnline(s2))
	req.True(p.IsOnline("alice"))
	req.Equal(2, p.SessionCount("alice"))

	// When the first one closes alice stays online
	req.False(p.MarkOffline(s1))
	req.True(p.IsOnline("alice"))

	// When the last one closes alice goes offline exactly once
	req.True(p.MarkOffline(s2))
	req.False(p.MarkOffline(s2))
	req.False(p.IsOnline("alice"))
	req.Equal(0, p.SessionCount("alice"))

	// Then exactly one online and one offline transition were produced
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	transitions := collect(ctx, p, 2)
	req.Len(transitions, 2)
	req.True(transitions[0].Online)
	req.False(transitions[1].Online)
	req.Equal(domain.UserID("alice"), transitions[1].User)
	req.Equal(0, p.Pending())
}

func TestPresence_Transitions_Are_Restartable(t *testing.T) {
	req := require.New(t)
	p := NewPresenceRegistry()
	for i, user := range []domain.UserID{"a", "b", "c"} {
		p.MarkOnline(newSession(context.Background(), uint64(i+1), domain.Identity{UserID: user}, 1))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// When a consumer stops after the first transition
	first := collect(ctx, p, 1)
	req.Equal(domain.UserID("a"), first[0].User)

	// Then a new consumer resumes with the next ones, in order
	rest := collect(ctx, p, 2)
	req.Equal(domain.UserID("b"), rest[0].User)
	req.Equal(domain.UserID("c"), rest[1].User)
}

func TestPresence_Transitions_Wait_For_New_Events(t *testing.T) {
	req := require.New(t)
	p := NewPresenceRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan event.PresenceChanged, 1)
	go func() {
		for transition := range p.Transitions(ctx) {
			got <- transition
			return
		}
	}()

	// When a user comes online after the consumer started waiting
	time.Sleep(20 * time.Millisecond)
	p.MarkOnline(newSession(context.Background(), 1, domain.Identity{UserID: "late"}, 1))

	// Then the waiting consumer is woken up
	select {
	case transition := <-got:
		req.Equal(domain.UserID("late"), transition.User)
		req.True(transition.Online)
	case <-time.After(time.Second):
		req.Fail("transition never observed")
	}
}

func TestPresence_Transitions_Stop_With_Context(t *testing.T) {
	req := require.New(t)
	p := NewPresenceRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		for range p.Transitions(ctx) {
		}
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("iterator did not stop with its context")
	}
}

func TestPresence_OnlineUsers_And_Audience(t *testing.T) {
	req := require.New(t)
	p := NewPresenceRegistry()
	p.MarkOnline(newSession(context.Background(), 1, domain.Identity{UserID: "bob"}, 1))
	p.MarkOnline(newSession(context.Background(), 2, domain.Identity{UserID: "alice"}, 1))
	p.MarkOnline(newSession(context.Background(), 3, domain.Identity{UserID: "alice"}, 1))

	req.Equal([]domain.UserID{"alice", "bob"}, p.OnlineUsers())
	req.Len(p.Sessions(), 3)
	req.Len(p.Audience(), 3)
}
