//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const defaultHistoryLimit = 50

var validate = validator.New()

// IChatService is the request/response side of the relay: room management,
// history and search. Live delivery goes through the runtime.
type IChatService interface {
	OpenPrivateRoom(ctx context.Context, caller domain.UserID, cmd domain.OpenPrivateRoomCommand) (domain.Room, error)
	CreateGroupRoom(ctx context.Context, caller domain.UserID, cmd domain.CreateGroupRoomCommand) (domain.Room, error)
	ListRooms(ctx context.Context, caller domain.UserID) ([]domain.Room, error)
	GetHistory(ctx context.Context, caller domain.UserID, cmd domain.GetHistoryCommand) ([]domain.Message, error)
	SearchMessages(ctx context.Context, caller domain.UserID, cmd domain.SearchCommand) ([]domain.Message, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
}

type ChatService struct {
	log   *slog.Logger
	rooms repositories.IRoomRepository
	users repositories.IUserRepository
	store contract.MessageStore
	index contract.MessageIndex
	now   func() time.Time
}

// NewChatService wires the service. index may be nil when search is disabled.
func NewChatService(log *slog.Logger, rooms repositories.IRoomRepository, users repositories.IUserRepository,
	store contract.MessageStore, index contract.MessageIndex) *ChatService {
	return &ChatService{log: log, rooms: rooms, users: users, store: store, index: index, now: time.Now}
}

// OpenPrivateRoom finds or creates the private room between caller and the peer.
func (s *ChatService) OpenPrivateRoom(ctx context.Context, caller domain.UserID, cmd domain.OpenPrivateRoomCommand) (domain.Room, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	if err := s.ensureUsers(cmd.PeerID); err != nil {
		return domain.Room{}, err
	}
	candidate, err := domain.NewPrivateRoom(caller, cmd.PeerID, s.now().UTC())
	if err != nil {
		return domain.Room{}, err
	}
	room, created, err := s.rooms.FindOrCreatePrivateRoom(ctx, candidate)
	if err != nil {
		return domain.Room{}, err
	}
	s.log.Debug("private room opened", "room_id", room.ID, "created", created)
	return room, nil
}

// CreateGroupRoom creates a group administered by caller.
func (s *ChatService) CreateGroupRoom(ctx context.Context, caller domain.UserID, cmd domain.CreateGroupRoomCommand) (domain.Room, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	room, err := domain.NewGroupRoom(cmd.Name, caller, cmd.Participants, s.now().UTC())
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.ensureUsers(slices.DeleteFunc(slices.Clone(room.Participants),
		func(id domain.UserID) bool { return id == caller })...); err != nil {
		return domain.Room{}, err
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	s.log.Info("group room created", "room_id", room.ID, "participants", len(room.Participants))
	return room, nil
}

func (s *ChatService) ListRooms(ctx context.Context, caller domain.UserID) ([]domain.Room, error) {
	return s.rooms.RoomsOf(ctx, caller)
}

// GetHistory returns messages in ascending sequence order. Only participants may read.
func (s *ChatService) GetHistory(ctx context.Context, caller domain.UserID, cmd domain.GetHistoryCommand) ([]domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	if err := s.ensureParticipant(ctx, cmd.RoomID, caller); err != nil {
		return nil, err
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	return s.store.History(ctx, cmd.RoomID, limit, cmd.BeforeSequence)
}

// SearchMessages runs a full-text query within one room, newest first.
func (s *ChatService) SearchMessages(ctx context.Context, caller domain.UserID, cmd domain.SearchCommand) ([]domain.Message, error) {
	if s.index == nil {
		return nil, fmt.Errorf("%w: search is disabled", errors.ErrUnavailable)
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrProtocol, err)
	}
	if err := s.ensureParticipant(ctx, cmd.RoomID, caller); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, cmd.RoomID, cmd.Query, cmd.Limit)
}

// ListUsers returns the public profile of every registered user, sorted by name.
func (s *ChatService) ListUsers(_ context.Context) ([]domain.User, error) {
	users, err := s.users.ListUsers()
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u repositories.User, _ int) domain.User { return toDomainUser(u) }), nil
}

func (s *ChatService) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.users.GetUserByID(string(id))
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(u), nil
}

func toDomainUser(u repositories.User) domain.User {
	return domain.User{ID: domain.UserID(u.ID), DisplayName: u.DisplayName, Avatar: u.Avatar}
}

func (s *ChatService) ensureParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	ok, err := s.rooms.IsParticipant(ctx, roomID, userID)
	switch {
	case errors.Is(err, errors.ErrRoomNotFound):
		return fmt.Errorf("%w: %w", errors.ErrMembership, err)
	case err != nil:
		return err
	case !ok:
		return errors.ErrMembership
	}
	return nil
}

func (s *ChatService) ensureUsers(ids ...domain.UserID) error {
	for _, id := range ids {
		if _, err := s.users.GetUserByID(string(id)); err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
	}
	return nil
}
