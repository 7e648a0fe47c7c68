// Package capability probes which backend resources are reachable under the
// current credentials and caches the answer.
package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"go.uber.org/zap"
)

// Resource names one of the three collections the core depends on.
type Resource int

const (
	Users Resource = iota
	Chats
	Messages
)

// Resources lists every probed resource in report order.
var Resources = []Resource{Users, Chats, Messages}

// String returns the human-readable name used in error messages.
func (r Resource) String() string {
	switch r {
	case Users:
		return "Users collection"
	case Chats:
		return "Chats collection"
	case Messages:
		return "Messages collection"
	}
	return fmt.Sprintf("Resource(%d)", int(r))
}

// Status is the cached reachability record.
type Status struct {
	UsersAccessible    bool      `json:"users_accessible"`
	ChatsAccessible    bool      `json:"chats_accessible"`
	MessagesAccessible bool      `json:"messages_accessible"`
	Errors             []string  `json:"errors"`
	CheckedAt          time.Time `json:"checked_at"`
}

// Accessible reports the recorded reachability of r.
func (s Status) Accessible(r Resource) bool {
	switch r {
	case Users:
		return s.UsersAccessible
	case Chats:
		return s.ChatsAccessible
	case Messages:
		return s.MessagesAccessible
	}
	return false
}

// AllAccessible reports whether every resource is reachable.
func (s Status) AllAccessible() bool {
	return s.UsersAccessible && s.ChatsAccessible && s.MessagesAccessible
}

// Collections maps each resource to its collection ID in one database.
type Collections struct {
	DatabaseID string
	Users      string
	Chats      string
	Messages   string
}

// ID returns the collection ID backing r.
func (c Collections) ID(r Resource) string {
	switch r {
	case Users:
		return c.Users
	case Chats:
		return c.Chats
	case Messages:
		return c.Messages
	}
	return ""
}

// Cache memoizes one Status. It is computed on first use and replaced only
// by Refresh. Concurrent first callers may each compute it; the last store wins.
type Cache struct {
	db     backend.Databases
	cols   Collections
	logger *zap.Logger
	status atomic.Pointer[Status]
}

// New creates a cache that probes cols through db.
func New(db backend.Databases, cols Collections, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{db: db, cols: cols, logger: logger}
}

// Ensure returns the cached status, probing the backend first if needed.
func (c *Cache) Ensure(ctx context.Context) Status {
	if s := c.status.Load(); s != nil {
		return *s
	}
	return c.Refresh(ctx)
}

// Status is Ensure under the name callers use for reporting.
func (c *Cache) Status(ctx context.Context) Status {
	return c.Ensure(ctx)
}

// Accessible reports whether r is reachable per the cached status.
func (c *Cache) Accessible(ctx context.Context, r Resource) bool {
	return c.Ensure(ctx).Accessible(r)
}

// Refresh re-runs every probe and replaces the cached status.
func (c *Cache) Refresh(ctx context.Context) Status {
	s := c.probe(ctx)
	c.status.Store(&s)
	if len(s.Errors) > 0 {
		c.logger.Warn("collection permission issues detected", zap.Strings("errors", s.Errors))
	} else {
		c.logger.Info("all collections accessible")
	}
	return s
}

func (c *Cache) probe(ctx context.Context) Status {
	errs := make([]error, len(Resources))
	var wg sync.WaitGroup
	for i, r := range Resources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.db.ListDocuments(ctx, c.cols.DatabaseID, c.cols.ID(r), backend.Limit(1))
		}()
	}
	wg.Wait()

	s := Status{CheckedAt: time.Now(), Errors: []string{}}
	for i, r := range Resources {
		if err := errs[i]; err != nil {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", r, err))
			continue
		}
		switch r {
		case Users:
			s.UsersAccessible = true
		case Chats:
			s.ChatsAccessible = true
		case Messages:
			s.MessagesAccessible = true
		}
	}
	return s
}

// noSessionMarkers identify identity-probe failures that still prove the
// backend itself is reachable.
var noSessionMarkers = []string{"missing scope", "unauthorized"}

// Connection is the result of CheckConnection.
type Connection struct {
	Connected bool
	Identity  *backend.Identity
	Error     string
}

// CheckConnection uses the identity probe to tell whether the backend
// answers at all. A "no session" rejection counts as connected.
func CheckConnection(ctx context.Context, account backend.Account) Connection {
	id, err := account.Get(ctx)
	if err == nil {
		return Connection{Connected: true, Identity: id}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range noSessionMarkers {
		if strings.Contains(msg, m) {
			return Connection{Connected: true, Error: err.Error()}
		}
	}
	return Connection{Connected: false, Error: err.Error()}
}
