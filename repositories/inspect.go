package repositories

import (
	"chat-relay/codec"
	"fmt"
	"strings"
	"time"
)

// Record is a human-readable view of one stored key, for inspection tools.
type Record struct {
	Kind    string
	Time    time.Time
	Summary string
}

// Prefixes lists the key families the repositories write.
var Prefixes = []string{"msg:", "seq:", "room:", "member:", "private:", "user:", "userid:"}

// Describe decodes a raw key/value pair. Password hashes are never rendered.
func Describe(key string, val []byte) Record {
	kind, _, _ := strings.Cut(key, ":")
	switch kind {
	case "msg":
		var d diskMessage
		if err := codec.Unmarshal(val, &d); err != nil {
			return undecodable(kind, err)
		}
		m := toMessage(d)
		return Record{Kind: "MESSAGE", Time: m.CreatedAt,
			Summary: fmt.Sprintf("#%d %s: %s", m.Sequence, m.SenderID, m.Content)}
	case "room":
		var d diskRoom
		if err := codec.Unmarshal(val, &d); err != nil {
			return undecodable(kind, err)
		}
		r := toRoom(d)
		return Record{Kind: "ROOM", Time: r.UpdatedAt,
			Summary: fmt.Sprintf("%s %q %d participants, last #%d", r.Kind, r.Name, len(r.Participants), r.LastSequence)}
	case "user":
		var d diskUser
		if err := codec.Unmarshal(val, &d); err != nil {
			return undecodable(kind, err)
		}
		return Record{Kind: "USER", Time: time.Unix(0, d.CreatedAt).UTC(),
			Summary: fmt.Sprintf("%s %s (%s)", d.ID, d.Email, d.DisplayName)}
	case "member":
		return Record{Kind: "MEMBER", Summary: strings.TrimPrefix(key, "member:")}
	default:
		if len(val) == 0 {
			return Record{Kind: strings.ToUpper(kind)}
		}
		diag, err := codec.Diagnose(val)
		if err != nil {
			return undecodable(kind, err)
		}
		return Record{Kind: strings.ToUpper(kind), Summary: diag}
	}
}

func undecodable(kind string, err error) Record {
	return Record{Kind: strings.ToUpper(kind), Summary: "undecodable: " + err.Error()}
}
