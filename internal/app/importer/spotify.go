package importer

import (
	"context"
	"strings"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

// SpotifyLister fetches Spotify playlist contents.
type SpotifyLister interface {
	PlaylistEntries(ctx context.Context, ref string) (*playlist.Playlist, error)
}

// SpotifyProvider imports Spotify playlists.
type SpotifyProvider struct {
	client    SpotifyLister
	maxTracks int
}

// NewSpotifyProvider creates a Spotify playlist importer. maxTracks
// limits the number of imported entries; zero means no limit.
func NewSpotifyProvider(client SpotifyLister, maxTracks int) *SpotifyProvider {
	return &SpotifyProvider{client: client, maxTracks: maxTracks}
}

func (p *SpotifyProvider) Name() string {
	return "spotify"
}

func (p *SpotifyProvider) CanHandle(ref string) bool {
	return strings.Contains(ref, "spotify.com/playlist") ||
		strings.HasPrefix(ref, "spotify:playlist:")
}

func (p *SpotifyProvider) Expand(ctx context.Context, ref string) (*playlist.Playlist, error) {
	pl, err := p.client.PlaylistEntries(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.maxTracks > 0 && len(pl.Entries) > p.maxTracks {
		pl.Entries = pl.Entries[:p.maxTracks]
	}
	return pl, nil
}
