//go:generate go run go.uber.org/mock/mockgen -source=room.go -destination=../mocks/mock_room_repository.go -package=mocks
package repositories

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

type IRoomRepository interface {
	contract.RoomDirectory
	CreateRoom(ctx context.Context, room domain.Room) error
	FindOrCreatePrivateRoom(ctx context.Context, candidate domain.Room) (domain.Room, bool, error)
}

// RoomRepository stores rooms under "room:{id}" and one "member:{user}:{room}"
// marker per participant, so the rooms of a user are a prefix scan.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) *RoomRepository {
	return &RoomRepository{db: db, log: log}
}

// CreateRoom persists a new room and its membership markers.
func (r *RoomRepository) CreateRoom(_ context.Context, room domain.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("%w: room %s already exists", errors.ErrInvalidRoom, room.ID)
		}
		return createRoom(txn, room)
	})
}

// FindOrCreatePrivateRoom returns the private room of the candidate's two
// participants, creating it from candidate when none exists yet.
// The boolean reports whether it was created.
func (r *RoomRepository) FindOrCreatePrivateRoom(_ context.Context, candidate domain.Room) (domain.Room, bool, error) {
	if err := candidate.Validate(); err != nil {
		return domain.Room{}, false, err
	}
	if candidate.Kind != domain.RoomPrivate {
		return domain.Room{}, false, fmt.Errorf("%w: not a private room", errors.ErrInvalidRoom)
	}

	room, created, err := r.findOrCreatePrivate(candidate)
	if errors.Is(err, badger.ErrConflict) {
		// A concurrent opener committed the pair first: the retry finds its room.
		room, created, err = r.findOrCreatePrivate(candidate)
	}
	if err != nil {
		return domain.Room{}, false, err
	}
	if created {
		r.log.Debug("private room created", "room_id", room.ID)
	}
	return room, created, nil
}

func (r *RoomRepository) findOrCreatePrivate(candidate domain.Room) (room domain.Room, created bool, err error) {
	err = r.db.Update(func(txn *badger.Txn) error {
		pairKey := privateKey(candidate.Participants[0], candidate.Participants[1])
		var existingID string
		switch err := get(txn, pairKey, &existingID); {
		case err == nil:
			var d diskRoom
			if err := get(txn, roomKey(domain.RoomID(existingID)), &d); err != nil {
				return err
			}
			room = toRoom(d)
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := createRoom(txn, candidate); err != nil {
			return err
		}
		room, created = candidate, true
		return set(txn, pairKey, string(candidate.ID))
	})
	return room, created, err
}

func createRoom(txn *badger.Txn, room domain.Room) error {
	if err := set(txn, roomKey(room.ID), fromRoom(room)); err != nil {
		return err
	}
	for _, userID := range room.Participants {
		if err := txn.Set(memberKey(userID, room.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *RoomRepository) GetRoom(_ context.Context, roomID domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = getRoom(txn, roomID)
		return err
	})
	return room, err
}

func getRoom(txn *badger.Txn, roomID domain.RoomID) (domain.Room, error) {
	var d diskRoom
	err := get(txn, roomKey(roomID), &d)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Room{}, errors.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, err
	}
	return toRoom(d), nil
}

// IsParticipant fails with ErrRoomNotFound for unknown rooms.
func (r *RoomRepository) IsParticipant(_ context.Context, roomID domain.RoomID, userID domain.UserID) (bool, error) {
	var member bool
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(roomID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrRoomNotFound
			}
			return err
		}
		_, err := txn.Get(memberKey(userID, roomID))
		switch {
		case err == nil:
			member = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return nil
	})
	return member, err
}

// RoomsOf returns the rooms of userID ordered by room id.
func (r *RoomRepository) RoomsOf(_ context.Context, userID domain.UserID) ([]domain.Room, error) {
	var rooms []domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []domain.RoomID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.RoomID(bytes.TrimPrefix(it.Item().KeyCopy(nil), prefix)))
		}
		for _, id := range ids {
			room, err := getRoom(txn, id)
			if errors.Is(err, errors.ErrRoomNotFound) {
				r.log.Warn("dangling membership marker", "user_id", userID, "room_id", id)
				continue
			}
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return nil
	})
	return rooms, err
}
