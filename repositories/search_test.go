package repositories

import (
	"chat-relay/domain"
	"context"
	"testing"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func openIndex(t *testing.T) *SearchIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewSearchIndex(writer, testLogger(), 10)
}

func TestSearchIndex_Finds_Messages_Newest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)

	// Given a few indexed messages
	req.NoError(index.Index(ctx,
		message("r1", 1, "the deploy is broken"),
		message("r1", 2, "lunch anyone?"),
		message("r1", 3, "Deploy fixed, sorry"),
	))

	// When searching case-insensitively
	hits, err := index.Search(ctx, "r1", "DEPLOY", 0)

	// Then both matches come back, full, newest first
	req.NoError(err)
	req.Equal([]int64{3, 1}, sequences(hits))
	req.Equal(message("r1", 3, "Deploy fixed, sorry"), hits[0])
}

func TestSearchIndex_Is_Scoped_To_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	req.NoError(index.Index(ctx,
		message("r1", 1, "secret plan"),
		message("r2", 1, "secret recipe"),
	))

	hits, err := index.Search(ctx, "r2", "secret", 10)

	req.NoError(err)
	req.Len(hits, 1)
	req.Equal(domain.RoomID("r2"), hits[0].RoomID)
}

func TestSearchIndex_Limit_And_Reindex(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	index := openIndex(t)
	for i := int64(1); i <= 5; i++ {
		req.NoError(index.Index(ctx, message("r1", i, "ping")))
	}
	// Reindexing the same message does not duplicate it
	req.NoError(index.Index(ctx, message("r1", 5, "ping")))

	hits, err := index.Search(ctx, "r1", "ping", 3)

	req.NoError(err)
	req.Equal([]int64{5, 4, 3}, sequences(hits))
}

func TestSearchIndex_Empty_Query(t *testing.T) {
	req := require.New(t)
	index := openIndex(t)

	hits, err := index.Search(context.Background(), "r1", "   ", 10)

	req.NoError(err)
	req.Empty(hits)
	req.NoError(index.Index(context.Background()))
}
