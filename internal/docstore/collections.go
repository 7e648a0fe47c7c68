package docstore

import (
	"context"
	"database/sql"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
)

// Collection is a registered collection and its access flags.
type Collection struct {
	DatabaseID string
	ID         string
	Name       string
	Readable   bool
	Writable   bool
}

// EnsureCollection registers a collection or updates its name and access flags.
func (db *DB) EnsureCollection(ctx context.Context, c Collection) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO collections (database_id, collection_id, name, readable, writable, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(database_id, collection_id) DO UPDATE SET
			name = excluded.name,
			readable = excluded.readable,
			writable = excluded.writable`,
		c.DatabaseID, c.ID, c.Name, c.Readable, c.Writable, backend.Now())
	return err
}

// ListCollections returns every collection registered in a database.
func (db *DB) ListCollections(ctx context.Context, databaseID string) ([]Collection, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT database_id, collection_id, name, readable, writable
		FROM collections WHERE database_id = ? ORDER BY collection_id`, databaseID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.DatabaseID, &c.ID, &c.Name, &c.Readable, &c.Writable); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// authorize checks that the collection exists and grants the access kind.
func authorize(ctx context.Context, q querier, databaseID, collectionID string, write bool) error {
	var readable, writable bool
	err := q.QueryRowContext(ctx, `
		SELECT readable, writable FROM collections
		WHERE database_id = ? AND collection_id = ?`, databaseID, collectionID).
		Scan(&readable, &writable)
	if err == sql.ErrNoRows {
		return ErrCollectionNotFound
	}
	if err != nil {
		return err
	}
	if !readable || (write && !writable) {
		return ErrNotAuthorized
	}
	return nil
}
