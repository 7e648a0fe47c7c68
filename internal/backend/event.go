package backend

import (
	"encoding/json"
	"strings"
	"time"
)

// Op is a set of document operation kinds carried by a change event.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Has reports whether any of the kinds in k are present in o.
func (o Op) Has(k Op) bool {
	return o&k != 0
}

func (o Op) String() string {
	var parts []string
	if o.Has(OpCreate) {
		parts = append(parts, "create")
	}
	if o.Has(OpUpdate) {
		parts = append(parts, "update")
	}
	if o.Has(OpDelete) {
		parts = append(parts, "delete")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseOp maps a single label suffix to its kind.
func ParseOp(name string) (Op, bool) {
	switch name {
	case "create":
		return OpCreate, true
	case "update":
		return OpUpdate, true
	case "delete":
		return OpDelete, true
	}
	return 0, false
}

// ParseOps decodes event labels such as
// "databases.chat.collections.messages.documents.abc.create" into a set.
// Labels with an unknown final segment are ignored.
func ParseOps(labels []string) Op {
	var ops Op
	for _, l := range labels {
		name := l
		if i := strings.LastIndexByte(l, '.'); i >= 0 {
			name = l[i+1:]
		}
		if op, ok := ParseOp(name); ok {
			ops |= op
		}
	}
	return ops
}

// OpLabel builds the event label for op on a document.
func OpLabel(databaseID, collectionID, documentID string, op Op) string {
	return DocumentsChannel(databaseID, collectionID) + "." + documentID + "." + op.String()
}

// Event is a change notification delivered by a Realtime subscription.
// Ops is decoded from Labels once, at the transport boundary.
type Event struct {
	Labels    []string
	Channels  []string
	Ops       Op
	Timestamp time.Time
	Payload   json.RawMessage
}
