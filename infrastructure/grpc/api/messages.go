package api

import (
	"chat-relay/domain"
	"encoding/json"
	"time"

	"github.com/samber/lo"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// User is the public view of an account: no email, no password hash.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Online      bool   `json:"online"`
}

type ListUsersRequest struct{}

type ListUsersResponse struct {
	Users []User `json:"users"`
}

type GetUserRequest struct {
	UserID string `json:"user_id"`
}

type UserResponse struct {
	User User `json:"user"`
}

type Room struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Name          string    `json:"name,omitempty"`
	AdminID       string    `json:"admin_id,omitempty"`
	Participants  []string  `json:"participants"`
	LastMessageID string    `json:"last_message_id,omitempty"`
	LastSequence  int64     `json:"last_sequence"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
	Sequence    int64     `json:"sequence"`
}

type OpenPrivateRoomRequest struct {
	PeerID string `json:"peer_id"`
}

type CreateGroupRoomRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type RoomResponse struct {
	Room Room `json:"room"`
}

type ListRoomsRequest struct{}

type ListRoomsResponse struct {
	Rooms []Room `json:"rooms"`
}

type GetHistoryRequest struct {
	RoomID         string `json:"room_id"`
	Limit          int    `json:"limit,omitempty"`
	BeforeSequence int64  `json:"before_sequence,omitempty"`
}

type SearchMessagesRequest struct {
	RoomID string `json:"room_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

type GetStatsRequest struct{}

// StatsResponse carries the live relay counters and the last monitoring snapshot.
type StatsResponse struct {
	Sessions        int               `json:"sessions"`
	OnlineUsers     int               `json:"online_users"`
	ActiveRooms     int               `json:"active_rooms"`
	PendingPresence int               `json:"pending_presence"`
	Counters        map[string]uint64 `json:"counters"`
	Monitoring      json.RawMessage   `json:"monitoring,omitempty"`
}

func FromUser(u domain.User, online bool) User {
	return User{ID: string(u.ID), DisplayName: u.DisplayName, Avatar: u.Avatar, Online: online}
}

func FromRoom(r domain.Room) Room {
	return Room{
		ID:            string(r.ID),
		Kind:          string(r.Kind),
		Name:          r.Name,
		AdminID:       string(r.AdminID),
		Participants:  lo.Map(r.Participants, func(p domain.UserID, _ int) string { return string(p) }),
		LastMessageID: r.LastMessageID,
		LastSequence:  r.LastSequence,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func FromMessage(m domain.Message) Message {
	return Message{
		ID:          m.ID,
		RoomID:      string(m.RoomID),
		SenderID:    string(m.SenderID),
		Content:     m.Content,
		ContentType: string(m.ContentType),
		CreatedAt:   m.CreatedAt,
		Sequence:    m.Sequence,
	}
}

func (m Message) ToDomain() domain.Message {
	return domain.Message{
		ID:          m.ID,
		RoomID:      domain.RoomID(m.RoomID),
		SenderID:    domain.UserID(m.SenderID),
		Content:     m.Content,
		ContentType: domain.ContentType(m.ContentType),
		CreatedAt:   m.CreatedAt,
		Sequence:    m.Sequence,
	}
}

func ToUserIDs(ids []string) []domain.UserID {
	return lo.Map(ids, func(id string, _ int) domain.UserID { return domain.UserID(id) })
}
