// Package backend defines the contract between the chat core and the
// document store it synchronizes against: document operations, list
// queries, an identity probe, and a push channel of change events.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp
// attribute, so string order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrDocumentNotFound is returned by GetDocument and UpdateDocument when no
// document has the requested ID.
var ErrDocumentNotFound = errors.New("document with the requested ID could not be found")

// Databases is the document surface of the backend.
type Databases interface {
	CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (*Document, error)
	GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (*Document, error)
	ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...Query) (*DocumentList, error)
	UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data any) (*Document, error)
}

// Account is the identity probe. Get succeeds when the caller holds a valid session.
type Account interface {
	Get(ctx context.Context) (*Identity, error)
}

// Realtime is the push channel. Subscribe delivers every event published on
// channel to fn until the returned cancel function is called.
type Realtime interface {
	Subscribe(ctx context.Context, channel string, fn func(Event)) (cancel func(), err error)
}

// Identity is the session holder reported by Account.Get.
type Identity struct {
	ID    string `json:"$id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Document is a stored record. Data holds the full JSON object including
// the $-prefixed system attributes.
type Document struct {
	ID           string
	CollectionID string
	DatabaseID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Data         json.RawMessage
}

// Decode unmarshals the document JSON into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// DocumentList is the result of ListDocuments.
type DocumentList struct {
	Total     int
	Documents []Document
}

// UniqueID returns a fresh document ID.
func UniqueID() string {
	return uuid.NewString()
}

// Now returns the current time formatted with TimeLayout.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime formats t in UTC with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp attribute. RFC 3339 values with other
// precisions are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// DocumentsChannel returns the push channel for every document of a collection.
func DocumentsChannel(databaseID, collectionID string) string {
	return fmt.Sprintf("databases.%s.collections.%s.documents", databaseID, collectionID)
}
