package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// rawUser accepts the loose shapes found in the users collection.
type rawUser struct {
	ID        string          `json:"$id"`
	Username  string          `json:"Username"`
	Email     string          `json:"Email"`
	Number    json.RawMessage `json:"Number"`
	CreatedAt string          `json:"$createdAt"`
}

// GetAllUsers lists the directory newest first, without the caller and
// without records that have no usable display name.
func (s *Service) GetAllUsers(ctx context.Context, currentUserID string) ([]User, error) {
	if blank(currentUserID) {
		return nil, apperr.Invalid("current user ID is required")
	}
	if err := s.require(ctx, capability.Users); err != nil {
		return nil, err
	}

	list, err := retry.Do(ctx, s.policy(capability.Users), func(ctx context.Context) (*backend.DocumentList, error) {
		return s.db.ListDocuments(ctx, s.dbID(), s.cfg.Collections.Users,
			backend.OrderDesc("$createdAt"),
			backend.Limit(s.cfg.UserLimit))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}

	users := make([]User, 0, len(list.Documents))
	for i := range list.Documents {
		doc := &list.Documents[i]
		if doc.ID == currentUserID {
			continue
		}
		u, ok := s.normalizeDocument(doc)
		if !ok || u.ID == currentUserID || u.Username == UnknownUser {
			continue
		}
		users = append(users, u)
	}
	s.logger.Debug("loaded users", zap.Int("count", len(users)))
	return users, nil
}

// GetUserByID returns one normalized user, or nil when none exists.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	if blank(userID) {
		return nil, apperr.Invalid("user ID is required")
	}
	if err := s.require(ctx, capability.Users); err != nil {
		return nil, err
	}

	doc, err := retry.Do(ctx, s.policy(capability.Users), func(ctx context.Context) (*backend.Document, error) {
		doc, err := s.db.GetDocument(ctx, s.dbID(), s.cfg.Collections.Users, userID)
		if errors.Is(err, backend.ErrDocumentNotFound) {
			return nil, nil
		}
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	u, ok := s.normalizeDocument(doc)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// RegisterUser writes the directory record for a freshly created identity.
func (s *Service) RegisterUser(ctx context.Context, nu NewUser) (*User, error) {
	if blank(nu.ID) || blank(nu.Username) || blank(nu.Email) {
		return nil, apperr.Invalid("user ID, username, and email are required")
	}
	if err := s.require(ctx, capability.Users); err != nil {
		return nil, err
	}

	attrs := map[string]any{
		"Username": displayName(nu.Username),
		"Email":    strings.TrimSpace(nu.Email),
		"Number":   strings.TrimSpace(nu.Number),
	}
	doc, err := retry.Do(ctx, s.policy(capability.Users), func(ctx context.Context) (*backend.Document, error) {
		return s.db.CreateDocument(ctx, s.dbID(), s.cfg.Collections.Users, nu.ID, attrs)
	})
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}
	u, ok := s.normalizeDocument(doc)
	if !ok {
		return nil, fmt.Errorf("register user: stored record for %s is unreadable", nu.ID)
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return &u, nil
}

func (s *Service) normalizeDocument(doc *backend.Document) (User, bool) {
	var raw rawUser
	if err := doc.Decode(&raw); err != nil {
		s.logger.Warn("skipping malformed user record", zap.String("user_id", doc.ID), zap.Error(err))
		return User{}, false
	}
	if raw.ID == "" {
		raw.ID = doc.ID
	}
	return normalizeUser(raw)
}

// normalizeUser fills absent display fields with sentinels. A record without
// an ID is rejected.
func normalizeUser(raw rawUser) (User, bool) {
	if raw.ID == "" {
		return User{}, false
	}
	u := User{
		ID:        raw.ID,
		Username:  displayName(raw.Username),
		Email:     strings.TrimSpace(raw.Email),
		Number:    numberString(raw.Number),
		CreatedAt: raw.CreatedAt,
	}
	if u.Username == "" {
		u.Username = UnknownUser
	}
	if u.Email == "" {
		u.Email = NoEmail
	}
	if u.Number == "" {
		u.Number = NoNumber
	}
	if u.CreatedAt == "" {
		u.CreatedAt = backend.FormatTime(time.Now())
	}
	return u, true
}

func displayName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// numberString accepts phone numbers stored either as strings or as numbers.
func numberString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
