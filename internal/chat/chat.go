// Package chat is the synchronization engine between two users and the
// document backend: user directory, chat resolution, message history and
// sends, and live change subscriptions.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/jobs"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"go.uber.org/zap"
)

// Display sentinels for missing user fields.
const (
	UnknownUser = "Unknown User"
	NoEmail     = "No Email"
	NoNumber    = "No Number"
)

const (
	StatusSent  = "sent"
	TypeText    = "text"
	defaultMsgs = 50
	defaultUsrs = 100
	defaultChat = 50
)

// User is a directory entry.
type User struct {
	ID        string `json:"$id"`
	Username  string `json:"Username"`
	Email     string `json:"Email"`
	Number    string `json:"Number"`
	CreatedAt string `json:"$createdAt,omitempty"`
}

// NewUser is the directory record written at sign-up.
type NewUser struct {
	ID       string
	Username string
	Email    string
	Number   string
}

// Chat is a two-party conversation.
type Chat struct {
	ID          string `json:"$id"`
	User1ID     string `json:"user1_id"`
	User2ID     string `json:"user2_id"`
	CreatedAt   string `json:"created_at"`
	LastUpdated string `json:"last_updated"`
	LastMessage string `json:"last_message,omitempty"`
	IsGroup     bool   `json:"is_group"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// Message is an immutable chat entry.
type Message struct {
	ID          string `json:"$id"`
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	Body        string `json:"message"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	Attachments string `json:"attachments,omitempty"`
}

// Outgoing is a message to send. An empty Type means text.
type Outgoing struct {
	ChatID     string
	SenderID   string
	Body       string
	Type       string
	Attachment string
}

// Config names the backend collections and tunes the service.
type Config struct {
	Collections  capability.Collections
	Retry        retry.Policy
	MessageLimit int
	UserLimit    int
	ChatLimit    int
}

func (c Config) withDefaults() Config {
	if c.Retry.MaxAttempts == 0 && c.Retry.BaseDelay == 0 {
		c.Retry = retry.Default
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = defaultMsgs
	}
	if c.UserLimit <= 0 {
		c.UserLimit = defaultUsrs
	}
	if c.ChatLimit <= 0 {
		c.ChatLimit = defaultChat
	}
	return c
}

// Backend groups the collaborators the service talks to. Account may be nil.
type Backend struct {
	Databases backend.Databases
	Realtime  backend.Realtime
	Account   backend.Account
}

// Service implements the caller-facing chat operations.
type Service struct {
	db      backend.Databases
	rt      backend.Realtime
	account backend.Account
	caps    *capability.Cache
	jobs    *jobs.Runner
	cfg     Config
	logger  *zap.Logger
}

// NewService creates a service. A nil caps probes through be.Databases. A nil
// runner runs detached work on its own goroutine.
func NewService(be Backend, caps *capability.Cache, runner *jobs.Runner, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	if caps == nil {
		caps = capability.New(be.Databases, cfg.Collections, logger)
	}
	return &Service{
		db:      be.Databases,
		rt:      be.Realtime,
		account: be.Account,
		caps:    caps,
		jobs:    runner,
		cfg:     cfg,
		logger:  logger,
	}
}

// Capabilities returns the cache guarding every operation.
func (s *Service) Capabilities() *capability.Cache {
	return s.caps
}

// PermissionStatus is the capability record plus the identity probe result.
type PermissionStatus struct {
	capability.Status
	Connection *capability.Connection `json:"connection,omitempty"`
}

// GetPermissionStatus returns the cached capability record, probing first if needed.
func (s *Service) GetPermissionStatus(ctx context.Context) PermissionStatus {
	return s.permissionStatus(ctx, s.caps.Status(ctx))
}

// RefreshPermissions re-probes every resource and returns the new record.
func (s *Service) RefreshPermissions(ctx context.Context) PermissionStatus {
	return s.permissionStatus(ctx, s.caps.Refresh(ctx))
}

func (s *Service) permissionStatus(ctx context.Context, st capability.Status) PermissionStatus {
	ps := PermissionStatus{Status: st}
	if s.account != nil {
		conn := capability.CheckConnection(ctx, s.account)
		ps.Connection = &conn
	}
	return ps
}

// policy returns the configured retry policy for calls against r.
func (s *Service) policy(r capability.Resource) retry.Policy {
	return s.cfg.Retry.For(r.String())
}

// require fails with PermissionDenied when r is not reachable.
func (s *Service) require(ctx context.Context, r capability.Resource) error {
	if !s.caps.Accessible(ctx, r) {
		return apperr.Inaccessible(r.String())
	}
	return nil
}

func (s *Service) dbID() string {
	return s.cfg.Collections.DatabaseID
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}

func decodeAll[T any](list *backend.DocumentList) ([]T, error) {
	out := make([]T, 0, len(list.Documents))
	for i := range list.Documents {
		var v T
		if err := list.Documents[i].Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeOne[T any](doc *backend.Document) (*T, error) {
	var v T
	if err := doc.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", doc.CollectionID, err)
	}
	return &v, nil
}
