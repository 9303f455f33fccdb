package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/services"
	"context"
	"log/slog"

	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ChatServer is the request/response side of the relay. Live traffic goes
// through the websocket channel; this server handles rooms, history and search.
type ChatServer struct {
	log         *slog.Logger
	chatService services.IChatService
	isOnline    func(domain.UserID) bool
}

func NewChatServer(log *slog.Logger, chatService services.IChatService) *ChatServer {
	return &ChatServer{log: log, chatService: chatService}
}

// WithPresence fills the online flag of the user directory.
func (s *ChatServer) WithPresence(isOnline func(domain.UserID) bool) *ChatServer {
	s.isOnline = isOnline
	return s
}

func (s *ChatServer) OpenPrivateRoom(ctx context.Context, req *api.OpenPrivateRoomRequest) (*api.RoomResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	room, err := s.chatService.OpenPrivateRoom(ctx, caller, domain.OpenPrivateRoomCommand{
		PeerID: domain.UserID(req.PeerID),
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.RoomResponse{Room: api.FromRoom(room)}, nil
}

func (s *ChatServer) CreateGroupRoom(ctx context.Context, req *api.CreateGroupRoomRequest) (*api.RoomResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	room, err := s.chatService.CreateGroupRoom(ctx, caller, domain.CreateGroupRoomCommand{
		Name:         req.Name,
		Participants: api.ToUserIDs(req.Participants),
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.RoomResponse{Room: api.FromRoom(room)}, nil
}

func (s *ChatServer) ListRooms(ctx context.Context, _ *api.ListRoomsRequest) (*api.ListRoomsResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	rooms, err := s.chatService.ListRooms(ctx, caller)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListRoomsResponse{Rooms: lo.Map(rooms, func(r domain.Room, _ int) api.Room { return api.FromRoom(r) })}, nil
}

func (s *ChatServer) GetHistory(ctx context.Context, req *api.GetHistoryRequest) (*api.MessagesResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.chatService.GetHistory(ctx, caller, domain.GetHistoryCommand{
		RoomID:         domain.RoomID(req.RoomID),
		Limit:          req.Limit,
		BeforeSequence: req.BeforeSequence,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return toMessagesResponse(messages), nil
}

func (s *ChatServer) SearchMessages(ctx context.Context, req *api.SearchMessagesRequest) (*api.MessagesResponse, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.chatService.SearchMessages(ctx, caller, domain.SearchCommand{
		RoomID: domain.RoomID(req.RoomID),
		Query:  req.Query,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return toMessagesResponse(messages), nil
}

func (s *ChatServer) ListUsers(ctx context.Context, _ *api.ListUsersRequest) (*api.ListUsersResponse, error) {
	if _, err := callerOf(ctx); err != nil {
		return nil, err
	}
	users, err := s.chatService.ListUsers(ctx)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.ListUsersResponse{Users: lo.Map(users, func(u domain.User, _ int) api.User { return s.toUser(u) })}, nil
}

func (s *ChatServer) GetUser(ctx context.Context, req *api.GetUserRequest) (*api.UserResponse, error) {
	if _, err := callerOf(ctx); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id is required")
	}
	user, err := s.chatService.GetUser(ctx, domain.UserID(req.UserID))
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &api.UserResponse{User: s.toUser(user)}, nil
}

func (s *ChatServer) toUser(u domain.User) api.User {
	return api.FromUser(u, s.isOnline != nil && s.isOnline(u.ID))
}

func callerOf(ctx context.Context) (domain.UserID, error) {
	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "caller identity is missing")
	}
	return userID, nil
}

func toMessagesResponse(messages []domain.Message) *api.MessagesResponse {
	return &api.MessagesResponse{
		Messages: lo.Map(messages, func(m domain.Message, _ int) api.Message { return api.FromMessage(m) }),
	}
}
