package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/bus"
	"github.com/mattn/go-sqlite3"
)

var _ backend.Databases = (*DB)(nil)

// CreateDocument stores data as a new document. An empty documentID gets a
// generated one. Attributes starting with '$' in data are ignored.
func (db *DB) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (*backend.Document, error) {
	attrs, err := attributes(data)
	if err != nil {
		return nil, err
	}
	if documentID == "" {
		documentID = backend.UniqueID()
	}
	if err := authorize(ctx, db, databaseID, collectionID, true); err != nil {
		return nil, err
	}

	now := backend.Now()
	attrs["$id"] = documentID
	attrs["$collectionId"] = collectionID
	attrs["$databaseId"] = databaseID
	attrs["$createdAt"] = now
	attrs["$updatedAt"] = now
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (database_id, collection_id, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		databaseID, collectionID, documentID, string(raw), now, now)
	if isUniqueViolation(err) {
		return nil, ErrDocumentExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	doc, err := newDocument(databaseID, collectionID, documentID, raw, now, now)
	if err != nil {
		return nil, err
	}
	db.publish(doc, backend.OpCreate)
	return doc, nil
}

// GetDocument returns one document by ID.
func (db *DB) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (*backend.Document, error) {
	if err := authorize(ctx, db, databaseID, collectionID, false); err != nil {
		return nil, err
	}
	var raw, createdAt, updatedAt string
	err := db.QueryRowContext(ctx, `
		SELECT data, created_at, updated_at FROM documents
		WHERE database_id = ? AND collection_id = ? AND id = ?`,
		databaseID, collectionID, documentID).
		Scan(&raw, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, backend.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return newDocument(databaseID, collectionID, documentID, []byte(raw), createdAt, updatedAt)
}

// ListDocuments returns the documents of a collection matching queries.
func (db *DB) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...backend.Query) (*backend.DocumentList, error) {
	q, err := compileQueries(queries)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, db, databaseID, collectionID, false); err != nil {
		return nil, err
	}

	args := append([]any{databaseID, collectionID}, q.args...)
	args = append(args, q.limit)
	rows, err := db.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE database_id = ? AND collection_id = ?`+q.where+`
		ORDER BY `+q.order+`
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := &backend.DocumentList{Documents: []backend.Document{}}
	for rows.Next() {
		var id, raw, createdAt, updatedAt string
		if err := rows.Scan(&id, &raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc, err := newDocument(databaseID, collectionID, id, []byte(raw), createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		list.Documents = append(list.Documents, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	list.Total = len(list.Documents)
	return list, nil
}

// UpdateDocument merges data into an existing document's attributes.
func (db *DB) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (*backend.Document, error) {
	patch, err := attributes(data)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := authorize(ctx, tx, databaseID, collectionID, true); err != nil {
		return nil, err
	}

	var raw, createdAt string
	err = tx.QueryRowContext(ctx, `
		SELECT data, created_at FROM documents
		WHERE database_id = ? AND collection_id = ? AND id = ?`,
		databaseID, collectionID, documentID).
		Scan(&raw, &createdAt)
	if err == sql.ErrNoRows {
		return nil, backend.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("decode stored document %s: %w", documentID, err)
	}
	for k, v := range patch {
		attrs[k] = v
	}
	now := backend.Now()
	attrs["$updatedAt"] = now
	merged, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, updated_at = ?
		WHERE database_id = ? AND collection_id = ? AND id = ?`,
		string(merged), now, databaseID, collectionID, documentID); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	doc, err := newDocument(databaseID, collectionID, documentID, merged, createdAt, now)
	if err != nil {
		return nil, err
	}
	db.publish(doc, backend.OpUpdate)
	return doc, nil
}

// DocumentCount returns the number of documents in a collection.
func (db *DB) DocumentCount(ctx context.Context, databaseID, collectionID string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE database_id = ? AND collection_id = ?`,
		databaseID, collectionID).Scan(&count)
	return count, err
}

// publish fans a change out on every channel a subscriber may listen on.
func (db *DB) publish(doc *backend.Document, op backend.Op) {
	if db.bus == nil {
		return
	}
	collectionChannel := backend.DocumentsChannel(doc.DatabaseID, doc.CollectionID)
	db.bus.Publish(bus.Event{
		Channels: []string{
			"documents",
			collectionChannel,
			collectionChannel + "." + doc.ID,
		},
		Labels: []string{
			backend.OpLabel(doc.DatabaseID, doc.CollectionID, doc.ID, op),
			"databases.*.collections.*.documents.*." + op.String(),
		},
		Timestamp: time.Now(),
		Payload:   doc.Data,
	})
}

// attributes turns caller data into an attribute map without system fields.
func attributes(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	attrs := map[string]any{}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("attributes must be a JSON object: %w", err)
	}
	for k := range attrs {
		if strings.HasPrefix(k, "$") {
			delete(attrs, k)
		}
	}
	return attrs, nil
}

func newDocument(databaseID, collectionID, id string, raw []byte, createdAt, updatedAt string) (*backend.Document, error) {
	created, err := backend.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("document %s created_at: %w", id, err)
	}
	updated, err := backend.ParseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("document %s updated_at: %w", id, err)
	}
	return &backend.Document{
		ID:           id,
		CollectionID: collectionID,
		DatabaseID:   databaseID,
		CreatedAt:    created,
		UpdatedAt:    updated,
		Data:         json.RawMessage(raw),
	}, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
