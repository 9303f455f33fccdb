package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	AuthService_Register_FullMethodName = "/relay.AuthService/Register"
	AuthService_Login_FullMethodName    = "/relay.AuthService/Login"

	ChatService_OpenPrivateRoom_FullMethodName = "/relay.ChatService/OpenPrivateRoom"
	ChatService_CreateGroupRoom_FullMethodName = "/relay.ChatService/CreateGroupRoom"
	ChatService_ListRooms_FullMethodName       = "/relay.ChatService/ListRooms"
	ChatService_GetHistory_FullMethodName      = "/relay.ChatService/GetHistory"
	ChatService_SearchMessages_FullMethodName  = "/relay.ChatService/SearchMessages"
	ChatService_ListUsers_FullMethodName       = "/relay.ChatService/ListUsers"
	ChatService_GetUser_FullMethodName         = "/relay.ChatService/GetUser"

	MonitoringService_GetStats_FullMethodName = "/relay.MonitoringService/GetStats"
)

// PublicMethods need no bearer token.
var PublicMethods = []string{
	AuthService_Register_FullMethodName,
	AuthService_Login_FullMethodName,
}

// unary builds a method handler that decodes Req and runs it through the
// server interceptor chain.
func unary[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, append([]grpc.CallOption{CallOption()}, opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}

// AuthService

type AuthServiceServer interface {
	Register(context.Context, *RegisterRequest) (*AuthResponse, error)
	Login(context.Context, *LoginRequest) (*AuthResponse, error)
}

var AuthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.AuthService",
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unary(AuthService_Register_FullMethodName, AuthServiceServer.Register)},
		{MethodName: "Login", Handler: unary(AuthService_Login_FullMethodName, AuthServiceServer.Login)},
	},
	Metadata: "relay/auth",
}

func RegisterAuthServiceServer(s grpc.ServiceRegistrar, srv AuthServiceServer) {
	s.RegisterService(&AuthService_ServiceDesc, srv)
}

type AuthServiceClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error)
}

type authServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthServiceClient(cc grpc.ClientConnInterface) AuthServiceClient {
	return &authServiceClient{cc: cc}
}

func (c *authServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, AuthService_Register_FullMethodName, in, opts)
}

func (c *authServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*AuthResponse, error) {
	return invoke[AuthResponse](ctx, c.cc, AuthService_Login_FullMethodName, in, opts)
}

// ChatService

type ChatServiceServer interface {
	OpenPrivateRoom(context.Context, *OpenPrivateRoomRequest) (*RoomResponse, error)
	CreateGroupRoom(context.Context, *CreateGroupRoomRequest) (*RoomResponse, error)
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*MessagesResponse, error)
	SearchMessages(context.Context, *SearchMessagesRequest) (*MessagesResponse, error)
	ListUsers(context.Context, *ListUsersRequest) (*ListUsersResponse, error)
	GetUser(context.Context, *GetUserRequest) (*UserResponse, error)
}

var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.ChatService",
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenPrivateRoom", Handler: unary(ChatService_OpenPrivateRoom_FullMethodName, ChatServiceServer.OpenPrivateRoom)},
		{MethodName: "CreateGroupRoom", Handler: unary(ChatService_CreateGroupRoom_FullMethodName, ChatServiceServer.CreateGroupRoom)},
		{MethodName: "ListRooms", Handler: unary(ChatService_ListRooms_FullMethodName, ChatServiceServer.ListRooms)},
		{MethodName: "GetHistory", Handler: unary(ChatService_GetHistory_FullMethodName, ChatServiceServer.GetHistory)},
		{MethodName: "SearchMessages", Handler: unary(ChatService_SearchMessages_FullMethodName, ChatServiceServer.SearchMessages)},
		{MethodName: "ListUsers", Handler: unary(ChatService_ListUsers_FullMethodName, ChatServiceServer.ListUsers)},
		{MethodName: "GetUser", Handler: unary(ChatService_GetUser_FullMethodName, ChatServiceServer.GetUser)},
	},
	Metadata: "relay/chat",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

type ChatServiceClient interface {
	OpenPrivateRoom(ctx context.Context, in *OpenPrivateRoomRequest, opts ...grpc.CallOption) (*RoomResponse, error)
	CreateGroupRoom(ctx context.Context, in *CreateGroupRoomRequest, opts ...grpc.CallOption) (*RoomResponse, error)
	ListRooms(ctx context.Context, in *ListRoomsRequest, opts ...grpc.CallOption) (*ListRoomsResponse, error)
	GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*MessagesResponse, error)
	SearchMessages(ctx context.Context, in *SearchMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error)
	ListUsers(ctx context.Context, in *ListUsersRequest, opts ...grpc.CallOption) (*ListUsersResponse, error)
	GetUser(ctx context.Context, in *GetUserRequest, opts ...grpc.CallOption) (*UserResponse, error)
}

type chatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) ChatServiceClient {
	return &chatServiceClient{cc: cc}
}

func (c *chatServiceClient) OpenPrivateRoom(ctx context.Context, in *OpenPrivateRoomRequest, opts ...grpc.CallOption) (*RoomResponse, error) {
	return invoke[RoomResponse](ctx, c.cc, ChatService_OpenPrivateRoom_FullMethodName, in, opts)
}

func (c *chatServiceClient) CreateGroupRoom(ctx context.Context, in *CreateGroupRoomRequest, opts ...grpc.CallOption) (*RoomResponse, error) {
	return invoke[RoomResponse](ctx, c.cc, ChatService_CreateGroupRoom_FullMethodName, in, opts)
}

func (c *chatServiceClient) ListRooms(ctx context.Context, in *ListRoomsRequest, opts ...grpc.CallOption) (*ListRoomsResponse, error) {
	return invoke[ListRoomsResponse](ctx, c.cc, ChatService_ListRooms_FullMethodName, in, opts)
}

func (c *chatServiceClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatService_GetHistory_FullMethodName, in, opts)
}

func (c *chatServiceClient) SearchMessages(ctx context.Context, in *SearchMessagesRequest, opts ...grpc.CallOption) (*MessagesResponse, error) {
	return invoke[MessagesResponse](ctx, c.cc, ChatService_SearchMessages_FullMethodName, in, opts)
}

func (c *chatServiceClient) ListUsers(ctx context.Context, in *ListUsersRequest, opts ...grpc.CallOption) (*ListUsersResponse, error) {
	return invoke[ListUsersResponse](ctx, c.cc, ChatService_ListUsers_FullMethodName, in, opts)
}

func (c *chatServiceClient) GetUser(ctx context.Context, in *GetUserRequest, opts ...grpc.CallOption) (*UserResponse, error) {
	return invoke[UserResponse](ctx, c.cc, ChatService_GetUser_FullMethodName, in, opts)
}

// MonitoringService

type MonitoringServiceServer interface {
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
}

var MonitoringService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.MonitoringService",
	HandlerType: (*MonitoringServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: unary(MonitoringService_GetStats_FullMethodName, MonitoringServiceServer.GetStats)},
	},
	Metadata: "relay/monitoring",
}

func RegisterMonitoringServiceServer(s grpc.ServiceRegistrar, srv MonitoringServiceServer) {
	s.RegisterService(&MonitoringService_ServiceDesc, srv)
}

type MonitoringServiceClient interface {
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
}

type monitoringServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMonitoringServiceClient(cc grpc.ClientConnInterface) MonitoringServiceClient {
	return &monitoringServiceClient{cc: cc}
}

func (c *monitoringServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, MonitoringService_GetStats_FullMethodName, in, opts)
}
