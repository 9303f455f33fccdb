package repositories

import (
	"chat-relay/codec"
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

// Stored records use integer keys so values stay compact and stable when
// fields are renamed. Times are stored as Unix nanoseconds.

type diskMessage struct {
	ID          string `cbor:"1,keyasint"`
	RoomID      string `cbor:"2,keyasint"`
	SenderID    string `cbor:"3,keyasint"`
	Content     string `cbor:"4,keyasint"`
	ContentType string `cbor:"5,keyasint"`
	CreatedAt   int64  `cbor:"6,keyasint"`
	Sequence    int64  `cbor:"7,keyasint"`
}

type diskRoom struct {
	ID            string   `cbor:"1,keyasint"`
	Kind          string   `cbor:"2,keyasint"`
	Name          string   `cbor:"3,keyasint,omitempty"`
	AdminID       string   `cbor:"4,keyasint,omitempty"`
	Participants  []string `cbor:"5,keyasint"`
	LastMessageID string   `cbor:"6,keyasint,omitempty"`
	LastSequence  int64    `cbor:"7,keyasint"`
	CreatedAt     int64    `cbor:"8,keyasint"`
	UpdatedAt     int64    `cbor:"9,keyasint"`
}

type diskUser struct {
	ID           string   `cbor:"1,keyasint"`
	Email        string   `cbor:"2,keyasint"`
	PasswordHash string   `cbor:"3,keyasint"`
	DisplayName  string   `cbor:"4,keyasint"`
	Roles        []string `cbor:"5,keyasint"`
	CreatedAt    int64    `cbor:"6,keyasint"`
	Avatar       string   `cbor:"7,keyasint,omitempty"`
}

func messageKey(roomID domain.RoomID, sequence int64) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d", roomID, sequence)
}

func messagePrefix(roomID domain.RoomID) []byte {
	return fmt.Appendf(nil, "msg:%s:", roomID)
}

func sequenceKey(roomID domain.RoomID) []byte {
	return fmt.Appendf(nil, "seq:%s", roomID)
}

func roomKey(roomID domain.RoomID) []byte {
	return fmt.Appendf(nil, "room:%s", roomID)
}

func memberKey(userID domain.UserID, roomID domain.RoomID) []byte {
	return fmt.Appendf(nil, "member:%s:%s", userID, roomID)
}

func memberPrefix(userID domain.UserID) []byte {
	return fmt.Appendf(nil, "member:%s:", userID)
}

// privateKey is symmetric: both orderings of the pair map to the same key.
func privateKey(a, b domain.UserID) []byte {
	if b < a {
		a, b = b, a
	}
	return fmt.Appendf(nil, "private:%s:%s", a, b)
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

const userIDPrefix = "userid:"

func userIDKey(id string) []byte {
	return []byte(userIDPrefix + id)
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:          m.ID,
		RoomID:      string(m.RoomID),
		SenderID:    string(m.SenderID),
		Content:     m.Content,
		ContentType: string(m.ContentType),
		CreatedAt:   m.CreatedAt.UnixNano(),
		Sequence:    m.Sequence,
	}
}

func toMessage(d diskMessage) domain.Message {
	return domain.Message{
		ID:          d.ID,
		RoomID:      domain.RoomID(d.RoomID),
		SenderID:    domain.UserID(d.SenderID),
		Content:     d.Content,
		ContentType: domain.ContentType(d.ContentType),
		CreatedAt:   time.Unix(0, d.CreatedAt).UTC(),
		Sequence:    d.Sequence,
	}
}

func fromRoom(r domain.Room) diskRoom {
	return diskRoom{
		ID:            string(r.ID),
		Kind:          string(r.Kind),
		Name:          r.Name,
		AdminID:       string(r.AdminID),
		Participants:  lo.Map(r.Participants, func(p domain.UserID, _ int) string { return string(p) }),
		LastMessageID: r.LastMessageID,
		LastSequence:  r.LastSequence,
		CreatedAt:     r.CreatedAt.UnixNano(),
		UpdatedAt:     r.UpdatedAt.UnixNano(),
	}
}

func toRoom(d diskRoom) domain.Room {
	return domain.Room{
		ID:            domain.RoomID(d.ID),
		Kind:          domain.RoomKind(d.Kind),
		Name:          d.Name,
		AdminID:       domain.UserID(d.AdminID),
		Participants:  lo.Map(d.Participants, func(p string, _ int) domain.UserID { return domain.UserID(p) }),
		LastMessageID: d.LastMessageID,
		LastSequence:  d.LastSequence,
		CreatedAt:     time.Unix(0, d.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, d.UpdatedAt).UTC(),
	}
}

// get decodes the value stored at key into v.
func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return codec.Unmarshal(val, v)
	})
}

// set encodes v and stores it at key.
func set(txn *badger.Txn, key []byte, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}
