package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func post(roomID domain.RoomID, content string) domain.PostMessageCommand {
	return domain.PostMessageCommand{RoomID: roomID, Content: content}
}

func TestPipeline_Two_Sessions_Observe_Same_Sequence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob"))
	a, b := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	ctx := context.Background()

	// When A says hi
	hi, err := f.pipeline.Submit(ctx, a, post("r1", "hi"))
	req.NoError(err)
	req.Equal(int64(1), hi.Sequence)
	req.Equal(domain.ContentText, hi.ContentType)

	// Then both receive it with sequence 1
	for _, s := range []*Session{a, b} {
		msgs := messagesOf(drain(s))
		req.Len(msgs, 1)
		req.Equal("hi", msgs[0].Content)
		req.Equal(int64(1), msgs[0].Sequence)
	}

	// When B answers yo
	yo, err := f.pipeline.Submit(ctx, b, post("r1", "yo"))
	req.NoError(err)

	// Then both receive it with sequence 2
	req.Equal(int64(2), yo.Sequence)
	for _, s := range []*Session{a, b} {
		req.Equal([]domain.Message{yo}, messagesOf(drain(s)))
	}
	req.Equal([]domain.Message{hi, yo}, f.store.persisted("r1"))
}

func TestPipeline_Rejects_Room_Not_Joined(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob"))
	a, b := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, b, "r1")

	// When alice posts to a room she has not joined
	_, err := f.pipeline.Submit(context.Background(), a, post("r1", "hi"))

	// Then nothing is persisted nor delivered
	req.ErrorIs(err, errors.ErrNotJoined)
	req.Empty(f.store.persisted("r1"))
	req.Zero(f.store.appends)
	req.Empty(drain(b))
}

func TestPipeline_Rejects_Malformed_Command(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")

	for _, cmd := range []domain.PostMessageCommand{
		{RoomID: "r1"},
		{Content: "no room"},
		{RoomID: "r1", Content: "x", ContentType: "video"},
		{RoomID: "r1", Content: strings.Repeat("x", 4001)},
	} {
		_, err := f.pipeline.Submit(context.Background(), a, cmd)
		req.ErrorIs(err, errors.ErrProtocol)
	}
	req.Zero(f.store.appends)
}

func TestPipeline_Persistence_Failure_Is_Never_Fanned_Out(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob"))
	a, b := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	ctx := context.Background()

	first, err := f.pipeline.Submit(ctx, a, post("r1", "one"))
	req.NoError(err)
	drain(a)
	drain(b)

	// Given the storage fails for one submission
	f.store.failNext(1)
	_, err = f.pipeline.Submit(ctx, a, post("r1", "lost"))

	// Then the sender gets a persistence error and nobody sees the message
	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(drain(a))
	req.Empty(drain(b))

	// And the next successful submission gets a strictly greater, gap-free sequence
	next, err := f.pipeline.Submit(ctx, b, post("r1", "two"))
	req.NoError(err)
	req.Equal(first.Sequence+1, next.Sequence)
	req.Equal([]domain.Message{next}, messagesOf(drain(a)))
}

func TestPipeline_Resumes_From_Persisted_Sequence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")
	ctx := context.Background()

	// Given a room already holding 3 messages written by a previous run
	for seq := int64(1); seq <= 3; seq++ {
		req.NoError(f.store.AppendMessage(ctx, domain.Message{RoomID: "r1", Sequence: seq}))
	}

	msg, err := f.pipeline.Submit(ctx, a, post("r1", "four"))
	req.NoError(err)
	req.Equal(int64(4), msg.Sequence)
}

func TestPipeline_Reloads_After_Sequence_Conflict(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")
	ctx := context.Background()

	_, err := f.pipeline.Submit(ctx, a, post("r1", "one"))
	req.NoError(err)

	// Given another writer appended behind the pipeline's back
	req.NoError(f.store.AppendMessage(ctx, domain.Message{RoomID: "r1", Sequence: 2}))

	// Then the stale lane fails once, then resumes after the foreign write
	_, err = f.pipeline.Submit(ctx, a, post("r1", "stale"))
	req.ErrorIs(err, errors.ErrPersistence)
	req.ErrorIs(err, errors.ErrSequenceConflict)
	msg, err := f.pipeline.Submit(ctx, a, post("r1", "three"))
	req.NoError(err)
	req.Equal(int64(3), msg.Sequence)
}

func TestPipeline_Slow_Consumer_Is_Dropped_Not_Waited_For(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 1, group("r1", "alice", "bob"))
	a, b := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	ctx := context.Background()

	// Given bob never reads his outbox
	_, err := f.pipeline.Submit(ctx, a, post("r1", "one"))
	req.NoError(err)
	drain(a)

	// When a second message does not fit in bob's outbox
	_, err = f.pipeline.Submit(ctx, a, post("r1", "two"))

	// Then the sender is not affected and bob is cancelled as a slow consumer
	req.NoError(err)
	req.Len(messagesOf(drain(a)), 1)
	req.ErrorIs(b.Err(), errors.ErrSlowConsumer)
	req.Eventually(func() bool {
		for {
			select {
			case evt := <-f.telemetry:
				if evt.Type == event.SlowConsumerType {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}

func TestPipeline_Posting_Stops_Typing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice", "bob"))
	a, b := f.connect(t, "alice"), f.connect(t, "bob")
	f.join(t, a, "r1")
	f.join(t, b, "r1")
	ctx := context.Background()

	req.NoError(f.typing.Start(ctx, a, "r1"))
	_, err := f.pipeline.Submit(ctx, a, post("r1", "done typing"))
	req.NoError(err)

	events := drain(b)
	req.Len(events, 3)
	req.Equal(event.TypingStartName, events[0].Name())
	req.Equal(event.MessageDeliveredName, events[1].Name())
	req.Equal(event.TypingStopName, events[2].Name())
	req.False(a.IsTyping("r1"))
}

type upperFilter struct{}

func (upperFilter) Filter(_ domain.RoomID, content string) string { return strings.ToUpper(content) }

func TestPipeline_Filters_And_Queues_For_Indexing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"))
	indexing := make(chan domain.Message, 1)
	f.pipeline = NewPipeline(f.log, f.store, f.index, f.typing,
		WithContentFilter(upperFilter{}), WithIndexing(indexing))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")

	msg, err := f.pipeline.Submit(context.Background(), a, post("r1", "quiet"))
	req.NoError(err)
	req.Equal("QUIET", msg.Content)
	req.Equal(msg, <-indexing)

	// A full indexing queue never blocks nor fails the submission
	indexing <- domain.Message{}
	_, err = f.pipeline.Submit(context.Background(), a, post("r1", "again"))
	req.NoError(err)
}

func TestPipeline_Moderates_Text_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"))
	moderator, err := moderation.NewModerator([]string{"shit"}, '*', f.log)
	req.NoError(err)
	f.pipeline = NewPipeline(f.log, f.store, f.index, f.typing,
		WithContentFilter(moderation.NewFilter(f.log, moderator, nil)))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")
	ctx := context.Background()

	// When a picture whose reference contains a censored word is posted
	image, err := f.pipeline.Submit(ctx, a, domain.PostMessageCommand{
		RoomID: "r1", Content: "https://cdn.example.com/uploads/bullshit_chart.png", ContentType: domain.ContentImage,
	})
	req.NoError(err)

	// Then the reference is persisted untouched
	req.Equal("https://cdn.example.com/uploads/bullshit_chart.png", image.Content)

	// While the same word in text is still censored
	text, err := f.pipeline.Submit(ctx, a, post("r1", "what a shit day"))
	req.NoError(err)
	req.Equal("what a **** day", text.Content)
	req.Equal([]domain.Message{image, text}, f.store.persisted("r1"))
}

func TestPipeline_Prune_Drops_Idle_Lanes_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 8, group("r1", "alice"), group("r2", "alice"))
	a := f.connect(t, "alice")
	f.join(t, a, "r1")
	f.join(t, a, "r2")
	ctx := context.Background()
	for _, roomID := range []domain.RoomID{"r1", "r1", "r2"} {
		_, err := f.pipeline.Submit(ctx, a, post(roomID, "hello"))
		req.NoError(err)
	}
	req.Equal(2, f.pipeline.Lanes())

	// Given nobody listens to r1 anymore
	req.NoError(f.manager.Leave(ctx, a, "r1"))

	// When pruning
	req.Equal(1, f.pipeline.Prune())

	// Then only the r2 lane is left, and r1 resumes from the store
	req.Equal(1, f.pipeline.Lanes())
	f.join(t, a, "r1")
	msg, err := f.pipeline.Submit(ctx, a, post("r1", "back"))
	req.NoError(err)
	req.Equal(int64(3), msg.Sequence)
}

// Every subscriber must observe the room's messages in the same order,
// strictly increasing and without gaps, whatever the number of concurrent senders.
func TestPipeline_Concurrent_Senders_Keep_Order(t *testing.T) {
	req := require.New(t)
	const senders, perSender = 8, 50
	const total = senders * perSender
	users := make([]domain.UserID, senders)
	for i := range users {
		users[i] = domain.UserID(fmt.Sprintf("user-%d", i))
	}
	f := newFixture(t, total+10, group("r1", users...), group("r2", users...))

	sessions := make([]*Session, senders)
	for i, u := range users {
		sessions[i] = f.connect(t, u)
		f.join(t, sessions[i], "r1")
		f.join(t, sessions[i], "r2")
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < perSender; n++ {
				room := domain.RoomID("r1")
				if n%5 == 0 {
					room = "r2"
				}
				_, err := f.pipeline.Submit(context.Background(), s, post(room, fmt.Sprintf("%d-%d", i, n)))
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	var reference []domain.Message
	for _, s := range sessions {
		byRoom := map[domain.RoomID][]int64{}
		var r1 []domain.Message
		for _, msg := range messagesOf(drain(s)) {
			byRoom[msg.RoomID] = append(byRoom[msg.RoomID], msg.Sequence)
			if msg.RoomID == "r1" {
				r1 = append(r1, msg)
			}
		}
		for room, seqs := range byRoom {
			for i, seq := range seqs {
				req.Equal(int64(i+1), seq, "room %s", room)
			}
		}
		req.Len(byRoom["r1"], total-total/5)
		if reference == nil {
			reference = r1
		}
		req.Equal(reference, r1)
	}
	req.Len(f.store.persisted("r1"), total-total/5)
	req.Len(f.store.persisted("r2"), total/5)
}
