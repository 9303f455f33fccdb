package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// MessageRepository is the badger-backed, per-room ordered message log.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// AppendMessage persists a message in BadgerDB.
// The key is formatted as "msg:{room_id}:{sequence_padded}": the 19-digit zero
// padding keeps lexicographical order equal to sequence order.
// The message, the room sequence counter and the room last-message pointer are
// written in the same transaction, so they can never disagree.
func (m MessageRepository) AppendMessage(_ context.Context, msg domain.Message) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		last, err := lastSequence(txn, msg.RoomID)
		if err != nil {
			return err
		}
		if msg.Sequence != last+1 {
			return fmt.Errorf("%w: room %s expects %d, got %d",
				errors.ErrSequenceConflict, msg.RoomID, last+1, msg.Sequence)
		}

		var room diskRoom
		switch err := get(txn, roomKey(msg.RoomID), &room); {
		case errors.Is(err, badger.ErrKeyNotFound):
			return errors.ErrRoomNotFound
		case err != nil:
			return err
		}
		room.LastMessageID = msg.ID
		room.LastSequence = msg.Sequence
		room.UpdatedAt = msg.CreatedAt.UnixNano()

		if err := set(txn, messageKey(msg.RoomID, msg.Sequence), fromMessage(msg)); err != nil {
			return err
		}
		if err := set(txn, sequenceKey(msg.RoomID), msg.Sequence); err != nil {
			return err
		}
		return set(txn, roomKey(msg.RoomID), room)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", errors.ErrSequenceConflict, err)
	}
	return err
}

// LastSequence returns the highest persisted sequence of the room, 0 if none.
func (m MessageRepository) LastSequence(_ context.Context, roomID domain.RoomID) (int64, error) {
	var last int64
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = lastSequence(txn, roomID)
		return err
	})
	return last, err
}

func lastSequence(txn *badger.Txn, roomID domain.RoomID) (int64, error) {
	var last int64
	err := get(txn, sequenceKey(roomID), &last)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	return last, err
}

// History walks the room log backwards from before (exclusive) and returns
// at most limit messages in ascending sequence order. A non-positive limit
// returns everything, a non-positive before starts from the newest message.
func (m MessageRepository) History(_ context.Context, roomID domain.RoomID, limit int, before int64) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(roomID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch {
		case before > 0:
			seekKey = messageKey(roomID, before-1)
		default:
			seekKey = append(slices.Clone(prefix), strings.Repeat("9", 19)...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			var d diskMessage
			err := it.Item().Value(func(val []byte) error {
				return codec.Unmarshal(val, &d)
			})
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(d))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
