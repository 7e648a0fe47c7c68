package capability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probeDB answers ListDocuments per collection and counts calls.
type probeDB struct {
	backend.Databases
	mu     sync.Mutex
	denied map[string]error
	calls  atomic.Int32
}

func (p *probeDB) ListDocuments(_ context.Context, _, collectionID string, _ ...backend.Query) (*backend.DocumentList, error) {
	p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.denied[collectionID]; err != nil {
		return nil, err
	}
	return &backend.DocumentList{}, nil
}

var cols = Collections{DatabaseID: "chat", Users: "users", Chats: "chats", Messages: "messages"}

func TestEnsureProbesOnce(t *testing.T) {
	db := &probeDB{}
	c := New(db, cols, nil)

	s := c.Ensure(context.Background())
	assert.True(t, s.AllAccessible())
	assert.Empty(t, s.Errors)
	assert.EqualValues(t, 3, db.calls.Load())

	c.Ensure(context.Background())
	c.Status(context.Background())
	assert.True(t, c.Accessible(context.Background(), Chats))
	assert.EqualValues(t, 3, db.calls.Load(), "cached status must not re-probe")
}

func TestProbeFailureIsRecorded(t *testing.T) {
	db := &probeDB{denied: map[string]error{
		"messages": errors.New("The current user is not authorized to perform the requested action."),
	}}
	c := New(db, cols, nil)

	s := c.Status(context.Background())
	assert.True(t, s.UsersAccessible)
	assert.True(t, s.ChatsAccessible)
	assert.False(t, s.MessagesAccessible)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "Messages collection: The current user is not authorized to perform the requested action.", s.Errors[0])
}

func TestRefreshReplacesStatus(t *testing.T) {
	db := &probeDB{denied: map[string]error{"users": errors.New("missing scope")}}
	c := New(db, cols, nil)
	require.False(t, c.Accessible(context.Background(), Users))

	db.mu.Lock()
	db.denied = nil
	db.mu.Unlock()

	assert.False(t, c.Accessible(context.Background(), Users), "status is not refreshed implicitly")
	s := c.Refresh(context.Background())
	assert.True(t, s.UsersAccessible)
	assert.True(t, c.Accessible(context.Background(), Users))
	assert.EqualValues(t, 6, db.calls.Load())
}

func TestConcurrentFirstCallers(t *testing.T) {
	c := New(&probeDB{}, cols, nil)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, c.Ensure(context.Background()).AllAccessible())
		}()
	}
	wg.Wait()
}

type fakeAccount struct {
	id  *backend.Identity
	err error
}

func (f fakeAccount) Get(context.Context) (*backend.Identity, error) {
	return f.id, f.err
}

func TestCheckConnection(t *testing.T) {
	ok := CheckConnection(context.Background(), fakeAccount{id: &backend.Identity{ID: "alice"}})
	assert.True(t, ok.Connected)
	assert.Equal(t, "alice", ok.Identity.ID)

	guest := CheckConnection(context.Background(), fakeAccount{err: errors.New("User (role: guests) missing scope (account)")})
	assert.True(t, guest.Connected)
	assert.NotEmpty(t, guest.Error)

	down := CheckConnection(context.Background(), fakeAccount{err: errors.New("dial tcp: connection refused")})
	assert.False(t, down.Connected)
}

func TestResourceNames(t *testing.T) {
	assert.Equal(t, "Chats collection", Chats.String())
	assert.Equal(t, "messages", cols.ID(Messages))
}
