package api

import (
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/status"
)

// UserRequest names one user: the caller for GetAllUsers, GetUserChats and
// WatchChatUpdates, the target for GetUser.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// ChatRequest names the two participants of a chat.
type ChatRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
}

// MessagesRequest selects a chat's history or live feed.
type MessagesRequest struct {
	ChatID string `json:"chat_id"`
	Limit  int    `json:"limit,omitempty"`
}

// SendRequest is a message to send.
type SendRequest struct {
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	Body       string `json:"message"`
	Type       string `json:"type,omitempty"`
	Attachment string `json:"attachments,omitempty"`
}

// RegisterRequest is a directory record to create.
type RegisterRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Number   string `json:"number,omitempty"`
}

type UsersResponse struct {
	Users []chat.User `json:"users"`
}

type UserResponse struct {
	User *chat.User `json:"user,omitempty"`
}

type ChatsResponse struct {
	Chats []chat.Chat `json:"chats"`
}

type MessagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// StatusResponse reports the daemon state and the backend capabilities.
type StatusResponse struct {
	Profile     string                `json:"profile"`
	State       status.State          `json:"state"`
	StateSince  int64                 `json:"state_since_unix_ms,omitempty"`
	UptimeMs    int64                 `json:"uptime_ms"`
	Permissions chat.PermissionStatus `json:"permissions"`
}

// Event kinds sent on watch streams.
const (
	KindSubscribed     = "subscribed"
	KindMessageCreated = "message.created"
	KindChatUpdated    = "chat.updated"
)

// Event is one envelope on a watch stream. The first envelope of every
// stream has kind "subscribed" and no payload.
type Event struct {
	EventID          string        `json:"event_id"`
	Kind             string        `json:"kind"`
	OccurredAtUnixMs int64         `json:"occurred_at_unix_ms"`
	Message          *chat.Message `json:"message,omitempty"`
	Chat             *chat.Chat    `json:"chat,omitempty"`
}

type ChatResponse struct {
	Chat *chat.Chat `json:"chat"`
}

type MessageResponse struct {
	Message *chat.Message `json:"message"`
}
