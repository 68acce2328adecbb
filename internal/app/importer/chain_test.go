package importer

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

type fakeLister struct {
	pl  *playlist.Playlist
	err error
}

func (f *fakeLister) PlaylistEntries(ctx context.Context, ref string) (*playlist.Playlist, error) {
	return f.pl, f.err
}

func samplePlaylist(n int) *playlist.Playlist {
	pl := &playlist.Playlist{Ref: "ref", Name: "Sample"}
	for i := 0; i < n; i++ {
		pl.Entries = append(pl.Entries, playlist.Entry{Title: "Track", Artists: []string{"Artist"}})
	}
	return pl
}

func TestSpotifyProvider_CanHandle(t *testing.T) {
	p := NewSpotifyProvider(&fakeLister{}, 0)

	assert.True(t, p.CanHandle("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"))
	assert.True(t, p.CanHandle("spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"))
	assert.False(t, p.CanHandle("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"))
	assert.False(t, p.CanHandle("Karma Police Radiohead"))
}

func TestYouTubeProvider_CanHandle(t *testing.T) {
	p := NewYouTubeProvider(&fakeLister{}, 0)

	assert.True(t, p.CanHandle("https://www.youtube.com/playlist?list=PL0123"))
	assert.True(t, p.CanHandle("https://youtu.be/abc?list=PL0123"))
	assert.False(t, p.CanHandle("https://www.youtube.com/watch?v=abc"))
	assert.False(t, p.CanHandle("https://open.spotify.com/playlist/xyz"))
}

func TestProvider_MaxTracksTruncates(t *testing.T) {
	p := NewSpotifyProvider(&fakeLister{pl: samplePlaylist(10)}, 3)

	pl, err := p.Expand(context.Background(), "https://open.spotify.com/playlist/xyz")
	require.NoError(t, err)
	assert.Len(t, pl.Entries, 3)
}

func TestChain_RoutesToFirstMatchingProvider(t *testing.T) {
	spotify := NewSpotifyProvider(&fakeLister{pl: samplePlaylist(2)}, 0)
	youtube := NewYouTubeProvider(&fakeLister{pl: samplePlaylist(5)}, 0)
	chain := NewChain(spotify, youtube)

	assert.Equal(t, []string{"spotify", "youtube"}, chain.Providers())

	pl, err := chain.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL0123")
	require.NoError(t, err)
	assert.Len(t, pl.Entries, 5)

	pl, err = chain.Expand(context.Background(), "https://open.spotify.com/playlist/xyz")
	require.NoError(t, err)
	assert.Len(t, pl.Entries, 2)
}

func TestChain_NoFallbackOnProviderError(t *testing.T) {
	broken := NewSpotifyProvider(&fakeLister{err: errors.New("boom")}, 0)
	chain := NewChain(broken)

	_, err := chain.Expand(context.Background(), "https://open.spotify.com/playlist/xyz")
	assert.ErrorContains(t, err, "importer spotify failed")
}

func TestChain_UnrecognizedReference(t *testing.T) {
	chain := NewChain(NewSpotifyProvider(&fakeLister{}, 0))

	assert.False(t, chain.CanHandle("Karma Police Radiohead"))
	_, err := chain.Expand(context.Background(), "Karma Police Radiohead")
	assert.ErrorIs(t, err, ErrNoProvider)
}
