package chat

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/bus"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/docstore"
	"github.com/VedantVallal/chatapplication-63/internal/jobs"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testCols = capability.Collections{DatabaseID: "chat", Users: "users", Chats: "chats", Messages: "messages"}

func noWait(context.Context, time.Duration) error { return nil }

func testConfig() Config {
	return Config{
		Collections: testCols,
		Retry:       retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Wait: noWait},
	}
}

type env struct {
	svc *Service
	db  *docstore.DB
	bus *bus.Bus
}

func testEnv(t *testing.T, denied ...string) *env {
	t.Helper()
	b := bus.New()
	db, err := docstore.Open(filepath.Join(t.TempDir(), "chat.db"), b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)

	deny := map[string]bool{}
	for _, d := range denied {
		deny[d] = true
	}
	for _, id := range []string{"users", "chats", "messages"} {
		require.NoError(t, db.EnsureCollection(context.Background(), docstore.Collection{
			DatabaseID: "chat", ID: id, Name: id, Readable: !deny[id], Writable: !deny[id],
		}))
	}

	runner := jobs.NewRunner(16, nil)
	runner.Start(context.Background())
	t.Cleanup(runner.Stop)

	svc := NewService(Backend{Databases: db, Realtime: docstore.NewFeed(b)}, nil, runner, testConfig(), nil)
	return &env{svc: svc, db: db, bus: b}
}

func TestAliceBobScenario(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	c1, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, c1.ID)
	assert.Equal(t, "alice", c1.User1ID)
	assert.Equal(t, "bob", c1.User2ID)
	assert.False(t, c1.IsGroup)

	m1, err := e.svc.SendMessage(ctx, Outgoing{ChatID: c1.ID, SenderID: "alice", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, m1.Status)
	assert.Equal(t, TypeText, m1.Type)
	assert.Equal(t, "hi", m1.Body)

	msgs, err := e.svc.GetChatMessages(ctx, c1.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m1.ID, msgs[0].ID)

	again, err := e.svc.GetOrCreateChat(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, again.ID, "reversed pair must resolve to the same chat")

	same, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, same.ID)

	n, err := e.db.DocumentCount(ctx, "chat", "chats")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSendUpdatesLastMessage(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	c, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = e.svc.SendMessage(ctx, Outgoing{ChatID: c.ID, SenderID: "bob", Body: "hello there"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		chats, err := e.svc.GetUserChats(ctx, "alice")
		return err == nil && len(chats) == 1 && chats[0].LastMessage == "hello there"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetUserChatsOrder(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	older, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	newer, err := e.svc.GetOrCreateChat(ctx, "carol", "alice")
	require.NoError(t, err)
	_, err = e.svc.GetOrCreateChat(ctx, "bob", "carol")
	require.NoError(t, err)

	require.NoError(t, e.svc.UpdateChatLastMessage(ctx, older.ID, "bump"))

	chats, err := e.svc.GetUserChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, older.ID, chats[0].ID, "most recently updated first")
	assert.Equal(t, newer.ID, chats[1].ID)
}

func TestGetAllUsersFiltersCallerAndMalformed(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	for id, attrs := range map[string]map[string]any{
		"alice":     {"Username": "Alice", "Email": "alice@example.com"},
		"bob":       {"Username": "Bob", "Number": 5551234},
		"malformed": {"Email": "ghost@example.com"},
	} {
		_, err := e.db.CreateDocument(ctx, "chat", "users", id, attrs)
		require.NoError(t, err)
	}

	users, err := e.svc.GetAllUsers(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
	assert.Equal(t, "Bob", users[0].Username)
	assert.Equal(t, NoEmail, users[0].Email)
	assert.Equal(t, "5551234", users[0].Number)
	assert.NotEmpty(t, users[0].CreatedAt)
}

func TestGetUserByIDAndRegister(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	u, err := e.svc.GetUserByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	reg, err := e.svc.RegisterUser(ctx, NewUser{ID: "dave", Username: "  Dave ", Email: "dave@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Dave", reg.Username)
	assert.Equal(t, NoNumber, reg.Number)

	got, err := e.svc.GetUserByID(ctx, "dave")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dave@example.com", got.Email)

	_, err = e.svc.RegisterUser(ctx, NewUser{ID: "x", Email: "x@example.com"})
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestInvalidArgumentsFailBeforeNetwork(t *testing.T) {
	db := &scriptedDB{}
	svc := NewService(Backend{Databases: db}, nil, nil, testConfig(), nil)
	ctx := context.Background()

	calls := []struct {
		name string
		run  func() error
	}{
		{"users", func() error { _, err := svc.GetAllUsers(ctx, ""); return err }},
		{"user by id", func() error { _, err := svc.GetUserByID(ctx, " "); return err }},
		{"chat missing a", func() error { _, err := svc.GetOrCreateChat(ctx, "", "bob"); return err }},
		{"chat missing b", func() error { _, err := svc.GetOrCreateChat(ctx, "alice", ""); return err }},
		{"messages", func() error { _, err := svc.GetChatMessages(ctx, "", 10); return err }},
		{"send no body", func() error {
			_, err := svc.SendMessage(ctx, Outgoing{ChatID: "c", SenderID: "a", Body: "   "})
			return err
		}},
		{"send no sender", func() error { _, err := svc.SendMessage(ctx, Outgoing{ChatID: "c", Body: "x"}); return err }},
		{"user chats", func() error { _, err := svc.GetUserChats(ctx, ""); return err }},
		{"subscribe messages", func() error { _, err := svc.SubscribeToMessages(ctx, "", func(Message) {}); return err }},
		{"subscribe chats", func() error { _, err := svc.SubscribeToChatUpdates(ctx, "", func(Chat) {}); return err }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			err := c.run()
			assert.True(t, apperr.Is(err, apperr.InvalidArgument), "got %v", err)
		})
	}
	assert.Zero(t, db.lists.Load(), "no backend call may be issued")
	assert.Zero(t, db.creates.Load())
}

func TestInaccessibleResourceIsNamed(t *testing.T) {
	e := testEnv(t, "messages")
	ctx := context.Background()

	_, err := e.svc.SendMessage(ctx, Outgoing{ChatID: "c1", SenderID: "alice", Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PermissionDenied))
	assert.Contains(t, err.Error(), "Messages collection is not accessible")

	_, err = e.svc.GetChatMessages(ctx, "c1", 10)
	assert.True(t, apperr.Is(err, apperr.PermissionDenied))

	// The other resources stay usable.
	_, err = e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)

	st := e.svc.GetPermissionStatus(ctx)
	assert.True(t, st.ChatsAccessible)
	assert.False(t, st.MessagesAccessible)
	require.Len(t, st.Errors, 1)
	assert.Contains(t, st.Errors[0], "Messages collection: ")
}

func TestRefreshPermissions(t *testing.T) {
	e := testEnv(t, "users")
	ctx := context.Background()
	require.False(t, e.svc.GetPermissionStatus(ctx).UsersAccessible)

	require.NoError(t, e.db.EnsureCollection(ctx, docstore.Collection{DatabaseID: "chat", ID: "users", Readable: true, Writable: true}))
	assert.False(t, e.svc.GetPermissionStatus(ctx).UsersAccessible, "no implicit refresh")
	assert.True(t, e.svc.RefreshPermissions(ctx).UsersAccessible)

	_, err := e.svc.GetAllUsers(ctx, "alice")
	assert.NoError(t, err)
}

func TestPermissionStatusReportsConnection(t *testing.T) {
	auth := docstore.NewAuthenticator("k", "chatd", time.Hour)
	svc := NewService(Backend{Databases: &scriptedDB{}, Account: docstore.NewAccount(auth, "")}, nil, nil, testConfig(), nil)

	st := svc.GetPermissionStatus(context.Background())
	require.NotNil(t, st.Connection)
	assert.True(t, st.Connection.Connected, "guest session still proves connectivity")
	assert.True(t, st.AllAccessible())
}

// scriptedDB is a backend.Databases whose responses are set per test.
type scriptedDB struct {
	mu       sync.Mutex
	listDocs []backend.Document
	failures []error // consumed by CreateDocument, one per call
	updErr   error
	lists    atomic.Int32
	creates  atomic.Int32
}

func (d *scriptedDB) ListDocuments(_ context.Context, _, collectionID string, _ ...backend.Query) (*backend.DocumentList, error) {
	d.lists.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if collectionID != "messages" {
		return &backend.DocumentList{}, nil
	}
	return &backend.DocumentList{Total: len(d.listDocs), Documents: d.listDocs}, nil
}

func (d *scriptedDB) CreateDocument(_ context.Context, databaseID, collectionID, documentID string, data any) (*backend.Document, error) {
	d.creates.Add(1)
	d.mu.Lock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	attrs := data.(map[string]any)
	attrs["$id"] = documentID
	raw, _ := json.Marshal(attrs)
	return &backend.Document{ID: documentID, CollectionID: collectionID, DatabaseID: databaseID, Data: raw}, nil
}

func (d *scriptedDB) GetDocument(context.Context, string, string, string) (*backend.Document, error) {
	return nil, backend.ErrDocumentNotFound
}

func (d *scriptedDB) UpdateDocument(context.Context, string, string, string, any) (*backend.Document, error) {
	return nil, d.updErr
}

func messageDoc(t *testing.T, id, ts string) backend.Document {
	t.Helper()
	raw, err := json.Marshal(Message{ID: id, ChatID: "c1", SenderID: "a", Body: id, Timestamp: ts, Status: StatusSent, Type: TypeText})
	require.NoError(t, err)
	return backend.Document{ID: id, CollectionID: "messages", Data: raw}
}

func TestGetChatMessagesSortsBackendOutput(t *testing.T) {
	db := &scriptedDB{}
	db.listDocs = []backend.Document{
		messageDoc(t, "m3", "2024-03-01T10:00:02.000Z"),
		messageDoc(t, "m1", "2024-03-01T10:00:00.000Z"),
		messageDoc(t, "m2a", "2024-03-01T10:00:01.000Z"),
		messageDoc(t, "m2b", "2024-03-01T10:00:01Z"),
	}
	svc := NewService(Backend{Databases: db}, nil, nil, testConfig(), nil)

	msgs, err := svc.GetChatMessages(context.Background(), "c1", 50)
	require.NoError(t, err)
	got := make([]string, len(msgs))
	for i, m := range msgs {
		got[i] = m.ID
	}
	assert.Equal(t, []string{"m1", "m2a", "m2b", "m3"}, got, "ties keep backend order")
}

func TestSendRetriesTransientFailures(t *testing.T) {
	db := &scriptedDB{failures: []error{errors.New("connection reset"), errors.New("timeout")}}
	var waits atomic.Int32
	cfg := testConfig()
	cfg.Retry.Wait = func(context.Context, time.Duration) error {
		waits.Add(1)
		return nil
	}
	svc := NewService(Backend{Databases: db}, nil, nil, cfg, nil)

	m, err := svc.SendMessage(context.Background(), Outgoing{ChatID: "c1", SenderID: "a", Body: "hi", Type: "image", Attachment: "file-1"})
	require.NoError(t, err)
	assert.Equal(t, "image", m.Type)
	assert.Equal(t, "file-1", m.Attachments)
	assert.EqualValues(t, 3, db.creates.Load())
	assert.EqualValues(t, 2, waits.Load())
}

func TestSendStopsOnBackendPermissionError(t *testing.T) {
	db := &scriptedDB{failures: []error{errors.New("The current user is not authorized to perform the requested action.")}}
	svc := NewService(Backend{Databases: db}, nil, nil, testConfig(), nil)

	_, err := svc.SendMessage(context.Background(), Outgoing{ChatID: "c1", SenderID: "a", Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PermissionDenied))
	assert.Contains(t, err.Error(), "Messages collection is not accessible")
	assert.EqualValues(t, 1, db.creates.Load(), "permission failures are not retried")
}

func TestRevokedWriteNamesCollection(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()
	require.True(t, e.svc.GetPermissionStatus(ctx).AllAccessible())

	require.NoError(t, e.db.EnsureCollection(ctx, docstore.Collection{
		DatabaseID: "chat", ID: "messages", Name: "messages", Readable: true, Writable: false,
	}))

	_, err := e.svc.SendMessage(ctx, Outgoing{ChatID: "c1", SenderID: "alice", Body: "hi"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PermissionDenied))
	assert.Contains(t, err.Error(), "Messages collection is not accessible")
	assert.ErrorIs(t, err, docstore.ErrNotAuthorized)
}

func TestOversizedLimitIsNotRetried(t *testing.T) {
	b := bus.New()
	db, err := docstore.Open(filepath.Join(t.TempDir(), "chat.db"), b)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Migrate()
	require.NoError(t, err)
	for _, id := range []string{"users", "chats", "messages"} {
		require.NoError(t, db.EnsureCollection(context.Background(), docstore.Collection{
			DatabaseID: "chat", ID: id, Name: id, Readable: true, Writable: true,
		}))
	}

	var waits atomic.Int32
	cfg := testConfig()
	cfg.Retry.Wait = func(context.Context, time.Duration) error {
		waits.Add(1)
		return nil
	}
	svc := NewService(Backend{Databases: db}, nil, nil, cfg, nil)

	_, err = svc.GetChatMessages(context.Background(), "c1", 6000)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument), "got %v", err)
	assert.Contains(t, err.Error(), "invalid limit 6000")
	assert.Zero(t, waits.Load(), "invalid input is not retried")
}

func TestLastMessageFailureIsOnlyLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	runner := jobs.NewRunner(4, logger)
	runner.Start(context.Background())
	defer runner.Stop()

	db := &scriptedDB{updErr: errors.New("chat document locked")}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	svc := NewService(Backend{Databases: db}, nil, runner, cfg, logger)

	m, err := svc.SendMessage(context.Background(), Outgoing{ChatID: "c1", SenderID: "a", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, m.Status)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("task failed").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateChatLastMessageIgnoresEmpty(t *testing.T) {
	db := &scriptedDB{updErr: errors.New("must not be called")}
	svc := NewService(Backend{Databases: db}, nil, nil, testConfig(), nil)
	assert.NoError(t, svc.UpdateChatLastMessage(context.Background(), "", "x"))
	assert.NoError(t, svc.UpdateChatLastMessage(context.Background(), "c1", ""))
}

func TestSubscribeToMessagesFilters(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	c, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	other, err := e.svc.GetOrCreateChat(ctx, "alice", "carol")
	require.NoError(t, err)

	got := make(chan Message, 10)
	sub, err := e.svc.SubscribeToMessages(ctx, c.ID, func(m Message) { got <- m })
	require.NoError(t, err)
	defer sub.Close()

	_, err = e.svc.SendMessage(ctx, Outgoing{ChatID: other.ID, SenderID: "alice", Body: "elsewhere"})
	require.NoError(t, err)
	sent, err := e.svc.SendMessage(ctx, Outgoing{ChatID: c.ID, SenderID: "bob", Body: "here"})
	require.NoError(t, err)
	// An update on a message document is not a new message.
	_, err = e.db.UpdateDocument(ctx, "chat", "messages", sent.ID, map[string]any{"status": "read"})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, "here", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message event")
	}
	select {
	case m := <-got:
		t.Fatalf("unexpected extra event %+v", m)
	case <-time.After(100 * time.Millisecond):
	}

	sub.Close()
	sub.Close()
}

func TestSubscribeToChatUpdates(t *testing.T) {
	e := testEnv(t)
	ctx := context.Background()

	got := make(chan Chat, 10)
	sub, err := e.svc.SubscribeToChatUpdates(ctx, "bob", func(c Chat) { got <- c })
	require.NoError(t, err)
	defer sub.Close()

	_, err = e.svc.GetOrCreateChat(ctx, "alice", "carol")
	require.NoError(t, err)
	c, err := e.svc.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, e.svc.UpdateChatLastMessage(ctx, c.ID, "yo"))

	var seen []Chat
	for len(seen) < 2 {
		select {
		case ch := <-got:
			seen = append(seen, ch)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout; got %d events", len(seen))
		}
	}
	assert.Equal(t, c.ID, seen[0].ID)
	assert.Empty(t, seen[0].LastMessage)
	assert.Equal(t, "yo", seen[1].LastMessage)

	select {
	case ch := <-got:
		t.Fatalf("event for chat without bob: %+v", ch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseWithoutEvents(t *testing.T) {
	e := testEnv(t)
	sub, err := e.svc.SubscribeToMessages(context.Background(), "c1", func(Message) {})
	require.NoError(t, err)
	sub.Close()
	sub.Close()
	assert.Zero(t, e.bus.Subscribers())

	var nilSub *Subscription
	nilSub.Close()
}

func TestNormalizeUser(t *testing.T) {
	tests := []struct {
		name string
		raw  rawUser
		want User
		ok   bool
	}{
		{"no id", rawUser{Username: "x"}, User{}, false},
		{"sentinels", rawUser{ID: "u1", CreatedAt: "2024-01-01T00:00:00.000Z"},
			User{ID: "u1", Username: UnknownUser, Email: NoEmail, Number: NoNumber, CreatedAt: "2024-01-01T00:00:00.000Z"}, true},
		{"nfc and trim", rawUser{ID: "u2", Username: " Jose\u0301 ", Email: "j@x", Number: json.RawMessage(`"123"`), CreatedAt: "t"},
			User{ID: "u2", Username: "Jos\u00e9", Email: "j@x", Number: "123", CreatedAt: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeUser(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	u, ok := normalizeUser(rawUser{ID: "u3", Username: "Dan"})
	require.True(t, ok)
	assert.NotEmpty(t, u.CreatedAt, "missing creation time defaults to now")
}
