package domain

type Command interface {
	Room() RoomID
}

// PostMessageCommand is a send-message request as received from a session.
type PostMessageCommand struct {
	RoomID      RoomID      `validate:"required"`
	Content     string      `validate:"required,max=4000"`
	ContentType ContentType `validate:"omitempty,oneof=text image file"`
}

func (p PostMessageCommand) Room() RoomID {
	return p.RoomID
}

// GetHistoryCommand asks for the most recent messages of a room, optionally
// strictly before a given sequence.
type GetHistoryCommand struct {
	RoomID         RoomID `validate:"required"`
	Limit          int    `validate:"gte=0,lte=200"`
	BeforeSequence int64  `validate:"gte=0"`
}

func (g GetHistoryCommand) Room() RoomID {
	return g.RoomID
}

type SearchCommand struct {
	RoomID RoomID `validate:"required"`
	Query  string `validate:"required,max=256"`
	Limit  int    `validate:"gte=0,lte=100"`
}

func (s SearchCommand) Room() RoomID {
	return s.RoomID
}

type OpenPrivateRoomCommand struct {
	PeerID UserID `validate:"required"`
}

// CreateGroupRoomCommand creates a group administered by its caller.
// The caller does not need to list itself among the participants.
type CreateGroupRoomCommand struct {
	Name         string   `validate:"required,max=100"`
	Participants []UserID `validate:"max=100,dive,required"`
}
