package chat

import (
	"context"
	"fmt"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"go.uber.org/zap"
)

// GetOrCreateChat returns the chat between userA and userB in either
// participant order, creating it on first contact. Find-then-create is not
// atomic: two callers racing on a new pair can both create a chat.
func (s *Service) GetOrCreateChat(ctx context.Context, userA, userB string) (*Chat, error) {
	if blank(userA) || blank(userB) {
		return nil, apperr.Invalid("both user IDs are required")
	}

	c, err := s.FindExistingChat(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("get or create chat: %w", err)
	}
	if c != nil {
		return c, nil
	}
	c, err = s.CreateChat(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("get or create chat: %w", err)
	}
	return c, nil
}

// FindExistingChat looks up the chat between two users. It returns nil and
// no error when there is none.
func (s *Service) FindExistingChat(ctx context.Context, userA, userB string) (*Chat, error) {
	if blank(userA) || blank(userB) {
		return nil, apperr.Invalid("both user IDs are required")
	}
	if err := s.require(ctx, capability.Chats); err != nil {
		return nil, err
	}

	list, err := retry.Do(ctx, s.policy(capability.Chats), func(ctx context.Context) (*backend.DocumentList, error) {
		return s.db.ListDocuments(ctx, s.dbID(), s.cfg.Collections.Chats,
			backend.Or(
				backend.And(backend.Equal("user1_id", userA), backend.Equal("user2_id", userB)),
				backend.And(backend.Equal("user1_id", userB), backend.Equal("user2_id", userA)),
			),
			backend.Limit(1))
	})
	if err != nil {
		return nil, fmt.Errorf("find chat: %w", err)
	}
	if len(list.Documents) == 0 {
		return nil, nil
	}
	c, err := decodeOne[Chat](&list.Documents[0])
	if err != nil {
		return nil, fmt.Errorf("find chat: %w", err)
	}
	s.logger.Debug("found existing chat", zap.String("chat_id", c.ID))
	return c, nil
}

// CreateChat creates a new chat between two users.
func (s *Service) CreateChat(ctx context.Context, userA, userB string) (*Chat, error) {
	if blank(userA) || blank(userB) {
		return nil, apperr.Invalid("both user IDs are required")
	}
	if err := s.require(ctx, capability.Chats); err != nil {
		return nil, err
	}

	now := backend.Now()
	attrs := map[string]any{
		"user1_id":     userA,
		"user2_id":     userB,
		"created_at":   now,
		"last_updated": now,
		"is_group":     false,
	}
	doc, err := retry.Do(ctx, s.policy(capability.Chats), func(ctx context.Context) (*backend.Document, error) {
		return s.db.CreateDocument(ctx, s.dbID(), s.cfg.Collections.Chats, backend.UniqueID(), attrs)
	})
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	c, err := decodeOne[Chat](doc)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.Info("chat created", zap.String("chat_id", c.ID), zap.String("user1_id", userA), zap.String("user2_id", userB))
	return c, nil
}

// GetUserChats lists the chats userID takes part in, most recently active first.
func (s *Service) GetUserChats(ctx context.Context, userID string) ([]Chat, error) {
	if blank(userID) {
		return nil, apperr.Invalid("user ID is required")
	}
	if err := s.require(ctx, capability.Chats); err != nil {
		return nil, err
	}

	list, err := retry.Do(ctx, s.policy(capability.Chats), func(ctx context.Context) (*backend.DocumentList, error) {
		return s.db.ListDocuments(ctx, s.dbID(), s.cfg.Collections.Chats,
			backend.Or(backend.Equal("user1_id", userID), backend.Equal("user2_id", userID)),
			backend.OrderDesc("last_updated"),
			backend.Limit(s.cfg.ChatLimit))
	})
	if err != nil {
		return nil, fmt.Errorf("get chats: %w", err)
	}
	chats, err := decodeAll[Chat](list)
	if err != nil {
		return nil, fmt.Errorf("get chats: %w", err)
	}
	return chats, nil
}
