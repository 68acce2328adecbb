package importer

import (
	"context"
	"strings"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

// YouTubeLister fetches YouTube playlist contents.
type YouTubeLister interface {
	PlaylistEntries(ctx context.Context, ref string) (*playlist.Playlist, error)
}

// YouTubeProvider imports YouTube playlists.
type YouTubeProvider struct {
	client    YouTubeLister
	maxTracks int
}

// NewYouTubeProvider creates a YouTube playlist importer. maxTracks
// limits the number of imported entries; zero means no limit.
func NewYouTubeProvider(client YouTubeLister, maxTracks int) *YouTubeProvider {
	return &YouTubeProvider{client: client, maxTracks: maxTracks}
}

func (p *YouTubeProvider) Name() string {
	return "youtube"
}

func (p *YouTubeProvider) CanHandle(ref string) bool {
	if !strings.Contains(ref, "youtube.com") && !strings.Contains(ref, "youtu.be") {
		return false
	}
	return strings.Contains(ref, "list=")
}

func (p *YouTubeProvider) Expand(ctx context.Context, ref string) (*playlist.Playlist, error) {
	pl, err := p.client.PlaylistEntries(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.maxTracks > 0 && len(pl.Entries) > p.maxTracks {
		pl.Entries = pl.Entries[:p.maxTracks]
	}
	return pl, nil
}
