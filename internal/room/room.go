// Package room drives one user's chat session: it opens a conversation,
// loads its history, follows the live feeds and merges everything into
// local state.
package room

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/timeline"
	"go.uber.org/zap"
)

// Backend is the chat operation surface a room needs. Both the in-process
// service and the daemon client satisfy it.
type Backend interface {
	GetAllUsers(ctx context.Context, currentUserID string) ([]chat.User, error)
	GetUserChats(ctx context.Context, userID string) ([]chat.Chat, error)
	GetOrCreateChat(ctx context.Context, userA, userB string) (*chat.Chat, error)
	GetChatMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error)
	SendMessage(ctx context.Context, out chat.Outgoing) (*chat.Message, error)
	SubscribeToMessages(ctx context.Context, chatID string, onMessage func(chat.Message)) (*chat.Subscription, error)
	SubscribeToChatUpdates(ctx context.Context, userID string, onChat func(chat.Chat)) (*chat.Subscription, error)
}

var (
	_ Backend = (*chat.Service)(nil)
)

// Options are optional callbacks fired after local state changes.
type Options struct {
	// OnMessage is called once per message newly added to the timeline.
	OnMessage func(chat.Message)
	// OnChat is called for every chat update merged into the chat list.
	OnChat func(chat.Chat)
	Logger *zap.Logger
}

// Room is the session of one user.
type Room struct {
	be     Backend
	userID string
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *chat.Chat
	users   []chat.User
	msgSub  *chat.Subscription
	chatSub *chat.Subscription

	timeline *timeline.Timeline
	chats    *timeline.ChatList
}

// New creates a room for userID.
func New(be Backend, userID string, opts Options) *Room {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		be:       be,
		userID:   userID,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		timeline: timeline.New(),
		chats:    timeline.NewChatList(),
	}
}

// Start opens the chat with otherUserID, loads its history and subscribes to
// its live feeds. A previously started chat is torn down first.
func (r *Room) Start(ctx context.Context, otherUserID string) (*chat.Chat, error) {
	if r.userID == "" || strings.TrimSpace(otherUserID) == "" {
		return nil, apperr.Invalid("user IDs are required to start a chat")
	}

	c, err := r.be.GetOrCreateChat(ctx, r.userID, otherUserID)
	if err != nil {
		r.reset()
		return nil, err
	}
	msgs, err := r.be.GetChatMessages(ctx, c.ID, 0)
	if err != nil {
		r.reset()
		return nil, err
	}

	r.mu.Lock()
	r.closeSubsLocked()
	r.current = c
	r.timeline.Load(msgs)
	r.mu.Unlock()
	r.chats.Upsert(*c)

	msgSub, err := r.be.SubscribeToMessages(r.ctx, c.ID, r.mergeMessage)
	if err != nil {
		return c, fmt.Errorf("subscribe to messages: %w", err)
	}
	chatSub, err := r.be.SubscribeToChatUpdates(r.ctx, r.userID, r.mergeChat)
	if err != nil {
		msgSub.Close()
		return c, fmt.Errorf("subscribe to chat updates: %w", err)
	}

	r.mu.Lock()
	r.msgSub, r.chatSub = msgSub, chatSub
	r.mu.Unlock()

	r.logger.Info("chat started", zap.String("chat_id", c.ID), zap.Int("messages", len(msgs)))
	return c, nil
}

// Send sends text to the current chat and merges the result locally.
func (r *Room) Send(ctx context.Context, text string) (*chat.Message, error) {
	text = strings.TrimSpace(text)
	r.mu.Lock()
	c := r.current
	r.mu.Unlock()
	if c == nil || text == "" {
		return nil, apperr.Invalid("missing required data to send message")
	}

	m, err := r.be.SendMessage(ctx, chat.Outgoing{ChatID: c.ID, SenderID: r.userID, Body: text})
	if err != nil {
		return nil, err
	}
	r.mergeMessage(*m)
	return m, nil
}

// LoadChats replaces the chat list with the user's chats.
func (r *Room) LoadChats(ctx context.Context) ([]chat.Chat, error) {
	chats, err := r.be.GetUserChats(ctx, r.userID)
	if err != nil {
		r.chats.Load(nil)
		return nil, fmt.Errorf("load chats: %w", err)
	}
	r.chats.Load(chats)
	return r.chats.Chats(), nil
}

// LoadUsers replaces the user list with the directory.
func (r *Room) LoadUsers(ctx context.Context) ([]chat.User, error) {
	users, err := r.be.GetAllUsers(ctx, r.userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.users = nil
		return nil, fmt.Errorf("load users: %w", err)
	}
	r.users = users
	return users, nil
}

// Current returns the open chat, or nil.
func (r *Room) Current() *chat.Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Messages returns the open chat's messages in display order.
func (r *Room) Messages() []chat.Message {
	return r.timeline.Messages()
}

// Chats returns the chat list, most recently active first.
func (r *Room) Chats() []chat.Chat {
	return r.chats.Chats()
}

// Users returns the last loaded directory.
func (r *Room) Users() []chat.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.User(nil), r.users...)
}

// Close tears down both subscriptions.
func (r *Room) Close() {
	r.mu.Lock()
	r.closeSubsLocked()
	r.mu.Unlock()
	r.cancel()
}

func (r *Room) mergeMessage(m chat.Message) {
	r.mu.Lock()
	c := r.current
	r.mu.Unlock()
	if c == nil || m.ChatID != c.ID {
		return
	}
	if !r.timeline.Merge(m) {
		r.logger.Debug("duplicate message ignored", zap.String("msg_id", m.ID))
		return
	}
	if r.opts.OnMessage != nil {
		r.opts.OnMessage(m)
	}
}

func (r *Room) mergeChat(c chat.Chat) {
	r.chats.Upsert(c)
	if r.opts.OnChat != nil {
		r.opts.OnChat(c)
	}
}

func (r *Room) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeSubsLocked()
	r.current = nil
	r.timeline.Load(nil)
}

func (r *Room) closeSubsLocked() {
	r.msgSub.Close()
	r.chatSub.Close()
	r.msgSub, r.chatSub = nil, nil
}
