package repositories

import (
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func message(roomID domain.RoomID, sequence int64, content string) domain.Message {
	return domain.Message{
		ID:          fmt.Sprintf("%s-%d", roomID, sequence),
		RoomID:      roomID,
		SenderID:    "alice",
		Content:     content,
		ContentType: domain.ContentText,
		CreatedAt:   time.Unix(1_700_000_000, sequence).UTC(),
		Sequence:    sequence,
	}
}
