// Package timeline holds the caller-side copies of chat state and merges
// live events into them idempotently.
package timeline

import (
	"sort"
	"sync"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
)

// Timeline is the message set of one chat keyed by message ID. Display
// order is rebuilt from timestamps on every read, with arrival order
// breaking ties.
type Timeline struct {
	mu   sync.Mutex
	byID map[string]int
	msgs []chat.Message
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{byID: make(map[string]int)}
}

// Load replaces the contents with msgs. Duplicate IDs keep the first copy.
func (t *Timeline) Load(msgs []chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID = make(map[string]int, len(msgs))
	t.msgs = t.msgs[:0]
	for _, m := range msgs {
		t.add(m)
	}
}

// Merge adds m unless a message with the same ID is already present. It
// reports whether m was added.
func (t *Timeline) Merge(m chat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(m)
}

func (t *Timeline) add(m chat.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := t.byID[m.ID]; ok {
		return false
	}
	t.byID[m.ID] = len(t.msgs)
	t.msgs = append(t.msgs, m)
	return true
}

// Contains reports whether a message with id is present.
func (t *Timeline) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byID[id]
	return ok
}

// Len returns the number of distinct messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Messages returns a sorted copy of the messages.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	out := make([]chat.Message, len(t.msgs))
	copy(out, t.msgs)
	t.mu.Unlock()
	chat.SortMessages(out)
	return out
}

// ChatList is the caller's chat index keyed by chat ID.
type ChatList struct {
	mu    sync.Mutex
	chats map[string]chat.Chat
}

// NewChatList creates an empty list.
func NewChatList() *ChatList {
	return &ChatList{chats: make(map[string]chat.Chat)}
}

// Load replaces the contents with chats.
func (l *ChatList) Load(chats []chat.Chat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chats = make(map[string]chat.Chat, len(chats))
	for _, c := range chats {
		l.chats[c.ID] = c
	}
}

// Upsert replaces the chat with the same ID or inserts c. It reports whether
// c was new.
func (l *ChatList) Upsert(c chat.Chat) bool {
	if c.ID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, existed := l.chats[c.ID]
	l.chats[c.ID] = c
	return !existed
}

// Chats returns the chats, most recently active first.
func (l *ChatList) Chats() []chat.Chat {
	l.mu.Lock()
	out := make([]chat.Chat, 0, len(l.chats))
	for _, c := range l.chats {
		out = append(out, c)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, _ := backend.ParseTime(out[i].LastUpdated)
		tj, _ := backend.ParseTime(out[j].LastUpdated)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
