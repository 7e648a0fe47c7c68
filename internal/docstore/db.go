// Package docstore is a local document backend on SQLite. It implements the
// backend contract: documents in named collections, filtered list queries,
// per-collection access flags, and a change feed published on the bus.
package docstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/VedantVallal/chatapplication-63/internal/bus"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrCollectionNotFound is returned for operations on an unregistered collection.
	ErrCollectionNotFound = errors.New("collection with the requested ID could not be found")
	// ErrNotAuthorized is returned when a collection denies the requested access.
	ErrNotAuthorized = errors.New("the current user is not authorized to perform the requested action")
	// ErrDocumentExists is returned when creating a document with a taken ID.
	ErrDocumentExists = errors.New("document with the requested ID already exists")
)

// DB wraps the SQLite connection holding every collection.
type DB struct {
	*sql.DB
	bus *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
// Changes are published on b; b may be nil.
func Open(path string, b *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, bus: b}, nil
}
