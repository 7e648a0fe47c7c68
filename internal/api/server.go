package api

import (
	"context"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/status"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// watchBuffer bounds the events queued for one slow watch stream.
const watchBuffer = 64

// ChatService is the sync engine surface served over gRPC.
type ChatService interface {
	GetAllUsers(ctx context.Context, currentUserID string) ([]chat.User, error)
	GetUserByID(ctx context.Context, userID string) (*chat.User, error)
	RegisterUser(ctx context.Context, nu chat.NewUser) (*chat.User, error)
	GetOrCreateChat(ctx context.Context, userA, userB string) (*chat.Chat, error)
	GetUserChats(ctx context.Context, userID string) ([]chat.Chat, error)
	GetChatMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error)
	SendMessage(ctx context.Context, out chat.Outgoing) (*chat.Message, error)
	GetPermissionStatus(ctx context.Context) chat.PermissionStatus
	RefreshPermissions(ctx context.Context) chat.PermissionStatus
	SubscribeToMessages(ctx context.Context, chatID string, onMessage func(chat.Message)) (*chat.Subscription, error)
	SubscribeToChatUpdates(ctx context.Context, userID string, onChat func(chat.Chat)) (*chat.Subscription, error)
}

var (
	_ ChatService = (*chat.Service)(nil)
	_ ChatServer  = (*Server)(nil)
)

// Server implements ChatServer on top of a ChatService.
type Server struct {
	svc         ChatService
	machine     *status.Machine
	profileName string
	startedAt   time.Time
	logger      *zap.Logger
}

// NewServer creates the gRPC handler set.
func NewServer(svc ChatService, machine *status.Machine, profileName string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		svc:         svc,
		machine:     machine,
		profileName: profileName,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

func (s *Server) GetAllUsers(ctx context.Context, req *UserRequest) (*UsersResponse, error) {
	users, err := s.svc.GetAllUsers(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &UsersResponse{Users: users}, nil
}

func (s *Server) GetUser(ctx context.Context, req *UserRequest) (*UserResponse, error) {
	u, err := s.svc.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: u}, nil
}

func (s *Server) RegisterUser(ctx context.Context, req *RegisterRequest) (*UserResponse, error) {
	u, err := s.svc.RegisterUser(ctx, chat.NewUser{
		ID:       req.UserID,
		Username: req.Username,
		Email:    req.Email,
		Number:   req.Number,
	})
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: u}, nil
}

func (s *Server) GetOrCreateChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	c, err := s.svc.GetOrCreateChat(ctx, req.UserA, req.UserB)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Chat: c}, nil
}

func (s *Server) GetUserChats(ctx context.Context, req *UserRequest) (*ChatsResponse, error) {
	chats, err := s.svc.GetUserChats(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &ChatsResponse{Chats: chats}, nil
}

func (s *Server) GetChatMessages(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	msgs, err := s.svc.GetChatMessages(ctx, req.ChatID, req.Limit)
	if err != nil {
		return nil, err
	}
	return &MessagesResponse{Messages: msgs}, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendRequest) (*MessageResponse, error) {
	m, err := s.svc.SendMessage(ctx, chat.Outgoing{
		ChatID:     req.ChatID,
		SenderID:   req.SenderID,
		Body:       req.Body,
		Type:       req.Type,
		Attachment: req.Attachment,
	})
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *Server) GetPermissionStatus(ctx context.Context) (*StatusResponse, error) {
	return s.statusResponse(s.svc.GetPermissionStatus(ctx)), nil
}

// RefreshPermissions re-probes the backend and settles the daemon state on
// the result.
func (s *Server) RefreshPermissions(ctx context.Context) (*StatusResponse, error) {
	if s.machine != nil {
		if err := s.machine.Transition(status.Probing); err != nil {
			s.logger.Warn("cannot enter probing state", zap.Error(err))
		}
	}
	perms := s.svc.RefreshPermissions(ctx)
	if s.machine != nil && s.machine.Current() == status.Probing {
		if err := s.machine.Settle(perms.AllAccessible()); err != nil {
			s.logger.Warn("cannot settle state", zap.Error(err))
		}
	}
	return s.statusResponse(perms), nil
}

func (s *Server) statusResponse(perms chat.PermissionStatus) *StatusResponse {
	resp := &StatusResponse{
		Profile:     s.profileName,
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
		Permissions: perms,
	}
	if s.machine != nil {
		resp.State = s.machine.Current()
		resp.StateSince = s.machine.Since().UnixMilli()
	}
	return resp
}

func (s *Server) WatchMessages(req *MessagesRequest, stream EventStream) error {
	events := make(chan *Event, watchBuffer)
	sub, err := s.svc.SubscribeToMessages(stream.Context(), req.ChatID, func(m chat.Message) {
		s.offer(events, &Event{Kind: KindMessageCreated, Message: &m}, req.ChatID)
	})
	if err != nil {
		return err
	}
	defer sub.Close()
	return pump(stream, events)
}

func (s *Server) WatchChatUpdates(req *UserRequest, stream EventStream) error {
	events := make(chan *Event, watchBuffer)
	sub, err := s.svc.SubscribeToChatUpdates(stream.Context(), req.UserID, func(c chat.Chat) {
		s.offer(events, &Event{Kind: KindChatUpdated, Chat: &c}, req.UserID)
	})
	if err != nil {
		return err
	}
	defer sub.Close()
	return pump(stream, events)
}

// offer queues e without blocking the publisher.
func (s *Server) offer(events chan<- *Event, e *Event, key string) {
	e.EventID = uuid.NewString()
	e.OccurredAtUnixMs = time.Now().UnixMilli()
	select {
	case events <- e:
	default:
		s.logger.Warn("watch stream full, dropping event",
			zap.String("kind", e.Kind), zap.String("key", key))
	}
}

func pump(stream EventStream, events <-chan *Event) error {
	if err := stream.Send(&Event{
		EventID:          uuid.NewString(),
		Kind:             KindSubscribed,
		OccurredAtUnixMs: time.Now().UnixMilli(),
	}); err != nil {
		return err
	}
	for {
		select {
		case e := <-events:
			if err := stream.Send(e); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
