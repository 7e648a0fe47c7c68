// Package client talks to a running chatd over its Unix socket.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/room"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ room.Backend = (*Client)(nil)

// Client is a chat backend served by the daemon.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	logger *zap.Logger
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	c := New(conn, logger)
	c.closer = conn
	return c, nil
}

// New wraps an existing connection. Close does not close conn.
func New(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, logger: logger}
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := api.ToStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.Method(method), in, out); err != nil {
		return api.FromStatus(err)
	}
	return api.FromStruct(out, resp)
}

func (c *Client) callEmpty(ctx context.Context, method string, resp any) error {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.Method(method), &emptypb.Empty{}, out); err != nil {
		return api.FromStatus(err)
	}
	return api.FromStruct(out, resp)
}

func (c *Client) GetAllUsers(ctx context.Context, currentUserID string) ([]chat.User, error) {
	var resp api.UsersResponse
	if err := c.call(ctx, "GetAllUsers", &api.UserRequest{UserID: currentUserID}, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) GetUserByID(ctx context.Context, userID string) (*chat.User, error) {
	var resp api.UserResponse
	if err := c.call(ctx, "GetUser", &api.UserRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) RegisterUser(ctx context.Context, nu chat.NewUser) (*chat.User, error) {
	var resp api.UserResponse
	err := c.call(ctx, "RegisterUser", &api.RegisterRequest{
		UserID:   nu.ID,
		Username: nu.Username,
		Email:    nu.Email,
		Number:   nu.Number,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (c *Client) GetOrCreateChat(ctx context.Context, userA, userB string) (*chat.Chat, error) {
	var resp api.ChatResponse
	if err := c.call(ctx, "GetOrCreateChat", &api.ChatRequest{UserA: userA, UserB: userB}, &resp); err != nil {
		return nil, err
	}
	return resp.Chat, nil
}

func (c *Client) GetUserChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	var resp api.ChatsResponse
	if err := c.call(ctx, "GetUserChats", &api.UserRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

func (c *Client) GetChatMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error) {
	var resp api.MessagesResponse
	if err := c.call(ctx, "GetChatMessages", &api.MessagesRequest{ChatID: chatID, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) SendMessage(ctx context.Context, out chat.Outgoing) (*chat.Message, error) {
	var resp api.MessageResponse
	err := c.call(ctx, "SendMessage", &api.SendRequest{
		ChatID:     out.ChatID,
		SenderID:   out.SenderID,
		Body:       out.Body,
		Type:       out.Type,
		Attachment: out.Attachment,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Status returns the daemon state and the cached backend capabilities.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.callEmpty(ctx, "GetPermissionStatus", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh re-probes the backend and returns the new status.
func (c *Client) Refresh(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.callEmpty(ctx, "RefreshPermissions", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPermissionStatus(ctx context.Context) (chat.PermissionStatus, error) {
	resp, err := c.Status(ctx)
	if err != nil {
		return chat.PermissionStatus{}, err
	}
	return resp.Permissions, nil
}

func (c *Client) RefreshPermissions(ctx context.Context) (chat.PermissionStatus, error) {
	resp, err := c.Refresh(ctx)
	if err != nil {
		return chat.PermissionStatus{}, err
	}
	return resp.Permissions, nil
}

func (c *Client) SubscribeToMessages(ctx context.Context, chatID string, onMessage func(chat.Message)) (*chat.Subscription, error) {
	return c.watch(ctx, 0, &api.MessagesRequest{ChatID: chatID}, func(e *api.Event) {
		if e.Kind == api.KindMessageCreated && e.Message != nil {
			onMessage(*e.Message)
		}
	})
}

func (c *Client) SubscribeToChatUpdates(ctx context.Context, userID string, onChat func(chat.Chat)) (*chat.Subscription, error) {
	return c.watch(ctx, 1, &api.UserRequest{UserID: userID}, func(e *api.Event) {
		if e.Kind == api.KindChatUpdated && e.Chat != nil {
			onChat(*e.Chat)
		}
	})
}

// watch opens stream i of the service and returns once the daemon has
// registered the subscription.
func (c *Client) watch(ctx context.Context, i int, req any, fn func(*api.Event)) (*chat.Subscription, error) {
	desc := &api.ServiceDesc.Streams[i]
	in, err := api.ToStruct(req)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(streamCtx, desc, api.Method(desc.StreamName))
	if err != nil {
		cancel()
		return nil, api.FromStatus(err)
	}
	if err := stream.SendMsg(in); err != nil {
		cancel()
		return nil, api.FromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, api.FromStatus(err)
	}

	first, err := recvEvent(stream)
	if err != nil {
		cancel()
		return nil, api.FromStatus(err)
	}
	if first.Kind != api.KindSubscribed {
		cancel()
		return nil, fmt.Errorf("%s: unexpected first event %q", desc.StreamName, first.Kind)
	}

	go func() {
		for {
			e, err := recvEvent(stream)
			if err != nil {
				if !errors.Is(err, io.EOF) && streamCtx.Err() == nil {
					c.logger.Warn("watch stream ended",
						zap.String("stream", desc.StreamName), zap.Error(err))
				}
				return
			}
			fn(e)
		}
	}()
	return chat.NewSubscription(cancel), nil
}

func recvEvent(stream grpc.ClientStream) (*api.Event, error) {
	msg := new(structpb.Struct)
	if err := stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	var e api.Event
	if err := api.FromStruct(msg, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
