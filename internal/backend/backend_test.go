package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOps(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   Op
	}{
		{"create", []string{"databases.d.collections.m.documents.x.create"}, OpCreate},
		{"update and wildcard", []string{"databases.*.collections.*.documents.*.update", "databases.d.collections.c.documents.x.update"}, OpUpdate},
		{"mixed", []string{"a.create", "a.delete"}, OpCreate | OpDelete},
		{"substring is not a match", []string{"databases.d.collections.c.documents.x.created"}, 0},
		{"bare label", []string{"update"}, OpUpdate},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOps(tt.labels))
		})
	}
}

func TestOpLabelRoundTrip(t *testing.T) {
	l := OpLabel("chat", "messages", "m1", OpCreate)
	assert.Equal(t, "databases.chat.collections.messages.documents.m1.create", l)
	assert.Equal(t, OpCreate, ParseOps([]string{l}))
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(1500 * time.Millisecond)
	fa, fb := FormatTime(a), FormatTime(b)
	assert.Len(t, fb, len(fa))
	assert.Less(t, fa, fb)

	parsed, err := ParseTime(fb)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(b))
}

func TestParseTimeAcceptsRFC3339(t *testing.T) {
	parsed, err := ParseTime("2024-05-01T10:00:00.123456+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, parsed.UTC().Hour())
}
