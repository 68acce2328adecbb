package spotify

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain ID",
			input: "37i9dQZF1DXcBWIGoYBM5M",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "URI",
			input: "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "URL",
			input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "URL with query parameters",
			input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "intl URL",
			input: "https://open.spotify.com/intl-ja/playlist/37i9dQZF1DXcBWIGoYBM5M/",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			name:  "surrounding whitespace",
			input: "  spotify:playlist:37i9dQZF1DXcBWIGoYBM5M  ",
			want:  "37i9dQZF1DXcBWIGoYBM5M",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPlaylistID(tt.input))
		})
	}
}

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain ID",
			input: "4uLU6hMCjMI75M1A2tKUQC",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:  "URI",
			input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:  "URL with query parameters",
			input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=xyz",
			want:  "4uLU6hMCjMI75M1A2tKUQC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTrackID(tt.input))
		})
	}
}

func TestIsTrackLink(t *testing.T) {
	assert.True(t, isTrackLink("spotify:track:4uLU6hMCjMI75M1A2tKUQC"))
	assert.True(t, isTrackLink("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"))
	assert.False(t, isTrackLink("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"))
	assert.False(t, isTrackLink("Karma Police Radiohead"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429", errors.New("HTTP 429 Too Many Requests"), true},
		{"503", errors.New("HTTP 503 Service Unavailable"), true},
		{"not found", errors.New("HTTP 404 Not Found"), false},
		{"bad request", errors.New("HTTP 400 Bad Request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(t.Context(), Config{ClientID: "id"})
	assert.ErrorContains(t, err, "credentials")
}
