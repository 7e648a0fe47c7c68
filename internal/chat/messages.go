package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/jobs"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"go.uber.org/zap"
)

// GetChatMessages returns up to limit messages of a chat in ascending
// timestamp order. A limit of zero or less uses the configured default.
func (s *Service) GetChatMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if blank(chatID) {
		return nil, apperr.Invalid("chat ID is required")
	}
	if err := s.require(ctx, capability.Messages); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.MessageLimit
	}

	list, err := retry.Do(ctx, s.policy(capability.Messages), func(ctx context.Context) (*backend.DocumentList, error) {
		return s.db.ListDocuments(ctx, s.dbID(), s.cfg.Collections.Messages,
			backend.Equal("chat_id", chatID),
			backend.OrderAsc("timestamp"),
			backend.Limit(limit))
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	msgs, err := decodeAll[Message](list)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	SortMessages(msgs)
	s.logger.Debug("loaded messages", zap.String("chat_id", chatID), zap.Int("count", len(msgs)))
	return msgs, nil
}

// SortMessages orders msgs by timestamp, keeping the given order for ties.
// Unparseable timestamps compare as strings.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return timestampLess(msgs[i].Timestamp, msgs[j].Timestamp)
	})
}

func timestampLess(a, b string) bool {
	ta, errA := backend.ParseTime(a)
	tb, errB := backend.ParseTime(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}

// SendMessage stores a new message with status sent. The parent chat's last
// message is updated afterwards as detached work; its failure never fails
// the send.
func (s *Service) SendMessage(ctx context.Context, out Outgoing) (*Message, error) {
	if blank(out.ChatID) || blank(out.SenderID) || blank(out.Body) {
		return nil, apperr.Invalid("chat ID, sender ID, and message are required")
	}
	if err := s.require(ctx, capability.Messages); err != nil {
		return nil, err
	}
	if out.Type == "" {
		out.Type = TypeText
	}

	attrs := map[string]any{
		"chat_id":   out.ChatID,
		"sender_id": out.SenderID,
		"message":   out.Body,
		"timestamp": backend.Now(),
		"status":    StatusSent,
		"type":      out.Type,
	}
	if out.Attachment != "" {
		attrs["attachments"] = out.Attachment
	}
	doc, err := retry.Do(ctx, s.policy(capability.Messages), func(ctx context.Context) (*backend.Document, error) {
		return s.db.CreateDocument(ctx, s.dbID(), s.cfg.Collections.Messages, backend.UniqueID(), attrs)
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	msg, err := decodeOne[Message](doc)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	s.detach(jobs.Task{
		Name: "update-last-message:" + out.ChatID,
		Run: func(ctx context.Context) error {
			return s.UpdateChatLastMessage(ctx, out.ChatID, out.Body)
		},
	})
	s.logger.Info("message sent", zap.String("chat_id", msg.ChatID), zap.String("msg_id", msg.ID))
	return msg, nil
}

// UpdateChatLastMessage refreshes the denormalized last message and activity
// time of a chat. Empty arguments are ignored.
func (s *Service) UpdateChatLastMessage(ctx context.Context, chatID, text string) error {
	if chatID == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	return retry.Run(ctx, s.policy(capability.Chats), func(ctx context.Context) error {
		_, err := s.db.UpdateDocument(ctx, s.dbID(), s.cfg.Collections.Chats, chatID, map[string]any{
			"last_message": text,
			"last_updated": backend.Now(),
		})
		return err
	})
}

// detach hands t to the job runner, or to its own goroutine without one.
func (s *Service) detach(t jobs.Task) {
	if s.jobs != nil {
		s.jobs.Submit(t)
		return
	}
	go func() {
		if err := t.Run(context.Background()); err != nil {
			s.logger.Warn("task failed", zap.String("task", t.Name), zap.Error(err))
		}
	}()
}
