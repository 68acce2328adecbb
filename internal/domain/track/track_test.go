package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRef_DisplayTitle(t *testing.T) {
	tests := []struct {
		name     string
		ref      Ref
		expected string
	}{
		{
			name:     "unresolved ref uses query",
			ref:      Ref{Query: "daft punk around the world"},
			expected: "daft punk around the world",
		},
		{
			name: "resolved ref uses handle title",
			ref: Ref{
				Query:  "daft punk around the world",
				Handle: &Handle{Title: "Around the World"},
			},
			expected: "Around the World",
		},
		{
			name: "resolved ref with empty title falls back to query",
			ref: Ref{
				Query:  "some obscure demo",
				Handle: &Handle{ID: "abc"},
			},
			expected: "some obscure demo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ref.DisplayTitle())
		})
	}
}

func TestNewRef(t *testing.T) {
	req := Requester{ID: "user-1", Name: "Alice", Type: RequesterTypeUser}
	ref := NewRef("never gonna give you up", req)

	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "never gonna give you up", ref.Query)
	assert.Equal(t, req, ref.Requester)
	assert.False(t, ref.Resolved())
	assert.WithinDuration(t, time.Now(), ref.AddedAt, time.Second)

	other := NewRef("never gonna give you up", req)
	assert.NotEqual(t, ref.ID, other.ID, "each ref gets its own ID")
}

func TestRef_Resolved(t *testing.T) {
	ref := NewRef("query", Requester{ID: "u"})
	assert.False(t, ref.Resolved())

	ref.Handle = &Handle{ID: "yt:123", Title: "Query (Official Video)", Duration: 3 * time.Minute}
	assert.True(t, ref.Resolved())
}
