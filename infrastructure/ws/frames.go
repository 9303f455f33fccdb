package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"
)

// Frame types exchanged on the live channel.
const (
	TypeAuthenticate  = "authenticate"
	TypeAuthenticated = "authenticated"
	TypeJoinRoom      = "join-room"
	TypeJoinRooms     = "join-rooms"
	TypeLeaveRoom     = "leave-room"
	TypeSendMessage   = "send-message"
	TypeNewMessage    = string(event.MessageDeliveredName)
	TypeTypingStart   = string(event.TypingStartName)
	TypeTypingStop    = string(event.TypingStopName)
	TypeUserOnline    = string(event.UserOnlineName)
	TypeUserOffline   = string(event.UserOfflineName)
	TypeAck           = "ack"
	TypeError         = "error"
)

type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type AuthenticatedPayload struct {
	UserID      domain.UserID   `json:"user_id"`
	SessionID   uint64          `json:"session_id"`
	OnlineUsers []domain.UserID `json:"online_users"`
}

type RoomPayload struct {
	RoomID domain.RoomID `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID      domain.RoomID      `json:"room_id"`
	Content     string             `json:"content"`
	ContentType domain.ContentType `json:"content_type,omitempty"`
}

type MessagePayload struct {
	ID          string             `json:"id"`
	RoomID      domain.RoomID      `json:"room_id"`
	SenderID    domain.UserID      `json:"sender_id"`
	Content     string             `json:"content"`
	ContentType domain.ContentType `json:"content_type"`
	CreatedAt   time.Time          `json:"created_at"`
	Sequence    int64              `json:"sequence"`
}

type TypingPayload struct {
	RoomID domain.RoomID `json:"room_id"`
	UserID domain.UserID `json:"user_id"`
}

type PresencePayload struct {
	UserID domain.UserID `json:"user_id"`
	At     time.Time     `json:"at"`
}

type AckPayload struct {
	MessageID string          `json:"message_id,omitempty"`
	Sequence  int64           `json:"sequence,omitempty"`
	Rooms     []domain.RoomID `json:"rooms,omitempty"`
}

type ErrorPayload struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func newFrame(frameType, requestID string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, RequestID: requestID, Payload: raw}, nil
}

func errorFrame(requestID string, err error) Frame {
	frame, _ := newFrame(TypeError, requestID, ErrorPayload{Code: errors.CodeOf(err), Message: err.Error()})
	return frame
}

func toMessagePayload(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		ContentType: m.ContentType,
		CreatedAt:   m.CreatedAt,
		Sequence:    m.Sequence,
	}
}

// toFrame renders a live event for the wire.
func toFrame(e event.DomainEvent) (Frame, error) {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return newFrame(TypeNewMessage, "", toMessagePayload(evt.Message))
	case event.TypingChanged:
		return newFrame(string(evt.Name()), "", TypingPayload{RoomID: evt.Room, UserID: evt.User})
	case event.PresenceChanged:
		return newFrame(string(evt.Name()), "", PresencePayload{UserID: evt.User, At: evt.At})
	default:
		return Frame{}, fmt.Errorf("unsupported event %T", e)
	}
}

// decode unmarshals a client payload, turning any failure into a protocol error.
func decode(frame Frame, v any) error {
	if len(frame.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", errors.ErrProtocol, frame.Type)
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	return nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// ToEvent turns a server frame back into the live event it carries.
func ToEvent(frame Frame) (event.DomainEvent, error) {
	switch frame.Type {
	case TypeNewMessage:
		var p MessagePayload
		if err := decode(frame, &p); err != nil {
			return nil, err
		}
		return event.MessageDelivered{Message: domain.Message{
			ID:          p.ID,
			RoomID:      p.RoomID,
			SenderID:    p.SenderID,
			Content:     p.Content,
			ContentType: p.ContentType,
			CreatedAt:   p.CreatedAt,
			Sequence:    p.Sequence,
		}}, nil
	case TypeTypingStart, TypeTypingStop:
		var p TypingPayload
		if err := decode(frame, &p); err != nil {
			return nil, err
		}
		return event.TypingChanged{Room: p.RoomID, User: p.UserID, Started: frame.Type == TypeTypingStart}, nil
	case TypeUserOnline, TypeUserOffline:
		var p PresencePayload
		if err := decode(frame, &p); err != nil {
			return nil, err
		}
		return event.PresenceChanged{User: p.UserID, Online: frame.Type == TypeUserOnline, At: p.At}, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an event frame", errors.ErrProtocol, frame.Type)
	}
}
