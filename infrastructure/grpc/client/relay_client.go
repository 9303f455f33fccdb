package client

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/grpc/api"
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// RelayClient wraps the relay gRPC services. Once Login or Register succeeds,
// every call carries the issued bearer token.
type RelayClient struct {
	conn       *grpc.ClientConn
	auth       api.AuthServiceClient
	chat       api.ChatServiceClient
	monitoring api.MonitoringServiceClient

	mu     sync.RWMutex
	token  string
	userID domain.UserID
}

func Dial(address string, opts ...grpc.DialOption) (*RelayClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewRelayClient(conn), nil
}

func NewRelayClient(conn *grpc.ClientConn) *RelayClient {
	return &RelayClient{
		conn:       conn,
		auth:       api.NewAuthServiceClient(conn),
		chat:       api.NewChatServiceClient(conn),
		monitoring: api.NewMonitoringServiceClient(conn),
	}
}

func (c *RelayClient) Close() error {
	return c.conn.Close()
}

// Token is the bearer token of the logged-in user, empty before login.
func (c *RelayClient) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *RelayClient) UserID() domain.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// UseToken sets the bearer token directly, for callers that already hold one.
func (c *RelayClient) UseToken(token string, userID domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.userID = token, userID
}

func (c *RelayClient) Register(ctx context.Context, email, password, displayName string) error {
	resp, err := c.auth.Register(ctx, &api.RegisterRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return err
	}
	c.UseToken(resp.Token, domain.UserID(resp.UserID))
	return nil
}

func (c *RelayClient) Login(ctx context.Context, email, password string) error {
	resp, err := c.auth.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return err
	}
	c.UseToken(resp.Token, domain.UserID(resp.UserID))
	return nil
}

func (c *RelayClient) OpenPrivateRoom(ctx context.Context, peer domain.UserID) (api.Room, error) {
	resp, err := c.chat.OpenPrivateRoom(c.authorized(ctx), &api.OpenPrivateRoomRequest{PeerID: string(peer)})
	if err != nil {
		return api.Room{}, err
	}
	return resp.Room, nil
}

func (c *RelayClient) CreateGroupRoom(ctx context.Context, name string, participants ...domain.UserID) (api.Room, error) {
	resp, err := c.chat.CreateGroupRoom(c.authorized(ctx), &api.CreateGroupRoomRequest{
		Name:         name,
		Participants: lo.Map(participants, func(p domain.UserID, _ int) string { return string(p) }),
	})
	if err != nil {
		return api.Room{}, err
	}
	return resp.Room, nil
}

func (c *RelayClient) ListRooms(ctx context.Context) ([]api.Room, error) {
	resp, err := c.chat.ListRooms(c.authorized(ctx), &api.ListRoomsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// ListUsers returns the user directory, online users flagged.
func (c *RelayClient) ListUsers(ctx context.Context) ([]api.User, error) {
	resp, err := c.chat.ListUsers(c.authorized(ctx), &api.ListUsersRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *RelayClient) GetUser(ctx context.Context, id domain.UserID) (api.User, error) {
	resp, err := c.chat.GetUser(c.authorized(ctx), &api.GetUserRequest{UserID: string(id)})
	if err != nil {
		return api.User{}, err
	}
	return resp.User, nil
}

func (c *RelayClient) GetHistory(ctx context.Context, roomID domain.RoomID, limit int, before int64) ([]domain.Message, error) {
	resp, err := c.chat.GetHistory(c.authorized(ctx), &api.GetHistoryRequest{
		RoomID: string(roomID), Limit: limit, BeforeSequence: before,
	})
	if err != nil {
		return nil, err
	}
	return toDomain(resp.Messages), nil
}

func (c *RelayClient) SearchMessages(ctx context.Context, roomID domain.RoomID, query string, limit int) ([]domain.Message, error) {
	resp, err := c.chat.SearchMessages(c.authorized(ctx), &api.SearchMessagesRequest{
		RoomID: string(roomID), Query: query, Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	return toDomain(resp.Messages), nil
}

func (c *RelayClient) Stats(ctx context.Context) (*api.StatsResponse, error) {
	return c.monitoring.GetStats(c.authorized(ctx), &api.GetStatsRequest{})
}

func (c *RelayClient) authorized(ctx context.Context) context.Context {
	token := c.Token()
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func toDomain(messages []api.Message) []domain.Message {
	return lo.Map(messages, func(m api.Message, _ int) domain.Message { return m.ToDomain() })
}
