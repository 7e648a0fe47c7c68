package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"go.uber.org/zap"
)

// Subscription is a live feed registration. Close is safe to call any
// number of times.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a transport cancel function.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Close tears the subscription down.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// SubscribeToMessages calls onMessage for every message created in chatID.
// Updates and deletes are ignored. Delivery is at least once; callers must
// merge by message ID.
func (s *Service) SubscribeToMessages(ctx context.Context, chatID string, onMessage func(Message)) (*Subscription, error) {
	if blank(chatID) {
		return nil, apperr.Invalid("chat ID is required for subscription")
	}
	channel := backend.DocumentsChannel(s.dbID(), s.cfg.Collections.Messages)
	return s.subscribe(ctx, channel, func(evt backend.Event) {
		if !evt.Ops.Has(backend.OpCreate) {
			return
		}
		var m Message
		if !s.decodeEvent(evt, &m) || m.ChatID != chatID {
			return
		}
		onMessage(m)
	})
}

// SubscribeToChatUpdates calls onChat for every chat created or updated that
// has userID as a participant.
func (s *Service) SubscribeToChatUpdates(ctx context.Context, userID string, onChat func(Chat)) (*Subscription, error) {
	if blank(userID) {
		return nil, apperr.Invalid("user ID is required for subscription")
	}
	channel := backend.DocumentsChannel(s.dbID(), s.cfg.Collections.Chats)
	return s.subscribe(ctx, channel, func(evt backend.Event) {
		if !evt.Ops.Has(backend.OpCreate | backend.OpUpdate) {
			return
		}
		var c Chat
		if !s.decodeEvent(evt, &c) || !c.HasParticipant(userID) {
			return
		}
		onChat(c)
	})
}

func (s *Service) subscribe(ctx context.Context, channel string, fn func(backend.Event)) (*Subscription, error) {
	if s.rt == nil {
		return nil, apperr.Invalid("no realtime channel configured")
	}
	cancel, err := s.rt.Subscribe(ctx, channel, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	s.logger.Debug("subscribed", zap.String("channel", channel))
	return &Subscription{cancel: cancel}, nil
}

func (s *Service) decodeEvent(evt backend.Event, v any) bool {
	doc := backend.Document{Data: evt.Payload}
	if err := doc.Decode(v); err != nil {
		s.logger.Warn("skipping undecodable event", zap.Strings("events", evt.Labels), zap.Error(err))
		return false
	}
	return true
}
