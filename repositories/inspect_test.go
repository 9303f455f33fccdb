package repositories

import (
	"chat-relay/codec"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescribe_Message_And_Sequence(t *testing.T) {
	req := require.New(t)
	msg := message("r1", 3, "hello there")
	raw, err := codec.Marshal(fromMessage(msg))
	req.NoError(err)

	record := Describe(string(messageKey("r1", 3)), raw)

	req.Equal("MESSAGE", record.Kind)
	req.Contains(record.Summary, "#3")
	req.Contains(record.Summary, "hello there")
	req.True(msg.CreatedAt.Equal(record.Time))

	raw, err = codec.Marshal(int64(3))
	req.NoError(err)
	req.Equal(Record{Kind: "SEQ", Summary: "3"}, Describe(string(sequenceKey("r1")), raw))
}

func TestDescribe_User_Hides_Password_Hash(t *testing.T) {
	req := require.New(t)
	raw, err := codec.Marshal(diskUser{ID: "u1", Email: "ada@example.com", PasswordHash: "$argon2id$secret", DisplayName: "Ada"})
	req.NoError(err)

	record := Describe(string(userKey("ada@example.com")), raw)

	req.Equal("USER", record.Kind)
	req.Contains(record.Summary, "ada@example.com")
	req.NotContains(record.Summary, "argon2id")
}

func TestDescribe_Garbage(t *testing.T) {
	record := Describe("room:r1", []byte{0xff, 0x00})
	require.Contains(t, record.Summary, "undecodable")
}
