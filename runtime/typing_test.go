package runtime

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypingRelay_Relays_State_Changes_To_Others(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob", "carol"))
	alice, bob, carol := f.connect(t, "alice"), f.connect(t, "bob"), f.connect(t, "carol")
	f.join(t, alice, "r1")
	f.join(t, bob, "r1")
	f.join(t, carol, "r1")
	ctx := context.Background()

	// When alice starts typing twice then stops
	req.NoError(f.typing.Start(ctx, alice, "r1"))
	req.NoError(f.typing.Start(ctx, alice, "r1"))
	req.True(alice.IsTyping("r1"))
	req.NoError(f.typing.Stop(ctx, alice, "r1"))
	req.NoError(f.typing.Stop(ctx, alice, "r1"))

	// Then the others see one start and one stop, alice sees nothing
	expected := []event.TypingChanged{
		{Room: "r1", User: "alice", Started: true},
		{Room: "r1", User: "alice", Started: false},
	}
	req.Equal(expected, typingOf(drain(bob)))
	req.Equal(expected, typingOf(drain(carol)))
	req.Empty(drain(alice))
}

func TestTypingRelay_Requires_Joined_Room(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob"))
	alice, bob := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, bob, "r1")

	err := f.typing.Start(context.Background(), alice, "r1")
	req.ErrorIs(err, errors.ErrNotJoined)
	req.Empty(drain(bob))
}

func TestTypingChanged_Names(t *testing.T) {
	req := require.New(t)
	req.Equal(event.TypingStartName, event.TypingChanged{Started: true}.Name())
	req.Equal(event.TypingStopName, event.TypingChanged{}.Name())
}
