package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chat.v1.ChatService"

// Method returns the full method path for name.
func Method(name string) string {
	return "/" + ServiceName + "/" + name
}

// ChatServer is the handler set behind ServiceDesc.
type ChatServer interface {
	GetAllUsers(ctx context.Context, req *UserRequest) (*UsersResponse, error)
	GetUser(ctx context.Context, req *UserRequest) (*UserResponse, error)
	RegisterUser(ctx context.Context, req *RegisterRequest) (*UserResponse, error)
	GetOrCreateChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	GetUserChats(ctx context.Context, req *UserRequest) (*ChatsResponse, error)
	GetChatMessages(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error)
	SendMessage(ctx context.Context, req *SendRequest) (*MessageResponse, error)
	GetPermissionStatus(ctx context.Context) (*StatusResponse, error)
	RefreshPermissions(ctx context.Context) (*StatusResponse, error)
	WatchMessages(req *MessagesRequest, stream EventStream) error
	WatchChatUpdates(req *UserRequest, stream EventStream) error
}

// EventStream is the sending side of a watch stream.
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

// ServiceDesc describes the chat service. Requests and responses travel as
// google.protobuf.Struct values; the status methods take google.protobuf.Empty.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetAllUsers", ChatServer.GetAllUsers),
		unary("GetUser", ChatServer.GetUser),
		unary("RegisterUser", ChatServer.RegisterUser),
		unary("GetOrCreateChat", ChatServer.GetOrCreateChat),
		unary("GetUserChats", ChatServer.GetUserChats),
		unary("GetChatMessages", ChatServer.GetChatMessages),
		unary("SendMessage", ChatServer.SendMessage),
		noArgs("GetPermissionStatus", ChatServer.GetPermissionStatus),
		noArgs("RefreshPermissions", ChatServer.RefreshPermissions),
	},
	Streams: []grpc.StreamDesc{
		watch("WatchMessages", ChatServer.WatchMessages),
		watch("WatchChatUpdates", ChatServer.WatchChatUpdates),
	},
	Metadata: "chat/v1/chat.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(ChatServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(ctx context.Context, msg any) (any, error) {
				req := new(Req)
				if err := FromStruct(msg.(*structpb.Struct), req); err != nil {
					return nil, ToStatus(invalidRequest(err))
				}
				resp, err := call(srv.(ChatServer), ctx, req)
				if err != nil {
					return nil, ToStatus(err)
				}
				return ToStruct(resp)
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: Method(name)}, handle)
		},
	}
}

func noArgs[Resp any](name string, call func(ChatServer, context.Context) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(ctx context.Context, _ any) (any, error) {
				resp, err := call(srv.(ChatServer), ctx)
				if err != nil {
					return nil, ToStatus(err)
				}
				return ToStruct(resp)
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: Method(name)}, handle)
		},
	}
}

func watch[Req any](name string, call func(ChatServer, *Req, EventStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			req := new(Req)
			if err := FromStruct(in, req); err != nil {
				return ToStatus(invalidRequest(err))
			}
			return ToStatus(call(srv.(ChatServer), req, &eventStream{stream}))
		},
	}
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *Event) error {
	msg, err := ToStruct(e)
	if err != nil {
		return err
	}
	return s.SendMsg(msg)
}
