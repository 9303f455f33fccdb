package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blugelabs/bluge"
)

const (
	fieldRoom     = "room_id"
	fieldContent  = "content"
	fieldSequence = "sequence"
	fieldSource   = "_source"
)

// SearchIndex is the full-text view over persisted messages. Each document
// keeps the encoded message in a stored-only field, so a hit never needs a
// second lookup in badger.
type SearchIndex struct {
	writer       *bluge.Writer
	log          *slog.Logger
	defaultLimit int
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger, defaultLimit int) *SearchIndex {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &SearchIndex{writer: writer, log: log, defaultLimit: defaultLimit}
}

// Index adds or replaces messages in one batch. Document ids are the message ids.
func (s *SearchIndex) Index(_ context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := bluge.NewBatch()
	for _, msg := range msgs {
		source, err := codec.Marshal(fromMessage(msg))
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		doc := bluge.NewDocument(msg.ID).
			AddField(bluge.NewKeywordField(fieldRoom, string(msg.RoomID))).
			AddField(bluge.NewTextField(fieldContent, msg.Content)).
			AddField(bluge.NewNumericField(fieldSequence, float64(msg.Sequence)).Sortable()).
			AddField(bluge.NewStoredOnlyField(fieldSource, source))
		batch.Update(doc.ID(), doc)
	}
	if err := s.writer.Batch(batch); err != nil {
		return err
	}
	s.log.Debug("messages indexed", "count", len(msgs))
	return nil
}

// Search matches query against message content within one room, newest first.
func (s *SearchIndex) Search(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(fieldRoom)).
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent))
	request := bluge.NewTopNSearch(limit, q).SortBy([]string{"-" + fieldSequence})

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	match, err := iterator.Next()
	for err == nil && match != nil {
		var decodeErr error
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != fieldSource {
				return true
			}
			var d diskMessage
			if decodeErr = codec.Unmarshal(value, &d); decodeErr == nil {
				messages = append(messages, toMessage(d))
			}
			return false
		})
		if visitErr != nil {
			return nil, visitErr
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return messages, nil
}
