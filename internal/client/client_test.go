package client

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/apperr"
	"github.com/VedantVallal/chatapplication-63/internal/bus"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/docstore"
	"github.com/VedantVallal/chatapplication-63/internal/jobs"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"github.com/VedantVallal/chatapplication-63/internal/room"
	"github.com/VedantVallal/chatapplication-63/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

type env struct {
	client  *Client
	bus     *bus.Bus
	machine *status.Machine
}

func setup(t *testing.T, denied ...string) *env {
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

	svc := chat.NewService(chat.Backend{Databases: db, Realtime: docstore.NewFeed(b)}, nil, runner, chat.Config{
		Collections: capability.Collections{DatabaseID: "chat", Users: "users", Chats: "chats", Messages: "messages"},
		Retry:       retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, nil)
	machine := status.NewMachine(b)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.Register(srv, api.NewServer(svc, machine, "test", nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{client: New(conn, nil), bus: b, machine: machine}
}

func TestChatRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	c, err := e.client.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	again, err := e.client.GetOrCreateChat(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	m, err := e.client.SendMessage(ctx, chat.Outgoing{ChatID: c.ID, SenderID: "alice", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, chat.StatusSent, m.Status)

	msgs, err := e.client.GetChatMessages(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)

	assert.Eventually(t, func() bool {
		chats, err := e.client.GetUserChats(ctx, "bob")
		return err == nil && len(chats) == 1 && chats[0].LastMessage == "hi"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUsersRoundTrip(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.client.RegisterUser(ctx, chat.NewUser{ID: "alice", Username: "Alice", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = e.client.RegisterUser(ctx, chat.NewUser{ID: "bob", Username: "Bob", Email: "b@example.com", Number: "555"})
	require.NoError(t, err)

	users, err := e.client.GetAllUsers(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
	assert.Equal(t, "555", users[0].Number)

	u, err := e.client.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.Username)

	missing, err := e.client.GetUserByID(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestErrorKindsSurviveTransport(t *testing.T) {
	e := setup(t, "messages")
	ctx := context.Background()

	_, err := e.client.SendMessage(ctx, chat.Outgoing{ChatID: "c1", SenderID: "alice"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
	assert.Equal(t, "chat ID, sender ID, and message are required", err.Error())

	_, err = e.client.GetChatMessages(ctx, "c1", 10)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.PermissionDenied))
	assert.Contains(t, err.Error(), "Messages collection")
}

func TestStatusAndRefresh(t *testing.T) {
	e := setup(t, "users")
	ctx := context.Background()

	st, err := e.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Profile)
	assert.Equal(t, status.Booting, st.State)
	assert.False(t, st.Permissions.UsersAccessible)
	assert.True(t, st.Permissions.ChatsAccessible)

	st, err = e.client.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.Degraded, st.State)

	perms, err := e.client.GetPermissionStatus(ctx)
	require.NoError(t, err)
	assert.False(t, perms.AllAccessible())
}

func TestWatchMessages(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c, err := e.client.GetOrCreateChat(ctx, "alice", "bob")
	require.NoError(t, err)

	got := make(chan chat.Message, 4)
	sub, err := e.client.SubscribeToMessages(ctx, c.ID, func(m chat.Message) { got <- m })
	require.NoError(t, err)

	sent, err := e.client.SendMessage(ctx, chat.Outgoing{ChatID: c.ID, SenderID: "bob", Body: "yo"})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, "yo", m.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	before := e.bus.Subscribers()
	sub.Close()
	sub.Close()
	assert.Eventually(t, func() bool { return e.bus.Subscribers() < before }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchRejectsMissingID(t *testing.T) {
	e := setup(t)
	_, err := e.client.SubscribeToChatUpdates(context.Background(), "", func(chat.Chat) {})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}

func TestRoomOverDaemon(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	alice := room.New(e.client, "alice", room.Options{})
	t.Cleanup(alice.Close)
	_, err := alice.Start(ctx, "bob")
	require.NoError(t, err)

	_, err = alice.Send(ctx, "hello")
	require.NoError(t, err)

	assert.Never(t, func() bool { return len(alice.Messages()) > 1 }, 200*time.Millisecond, 10*time.Millisecond)
	msgs := alice.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
}
