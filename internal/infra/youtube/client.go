// Package youtube provides YouTube playlist listing via the ytdlp library.
package youtube

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ytget/ytdlp/v2"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

const defaultFetchTimeout = 60 * time.Second

// Client lists YouTube playlists.
type Client struct {
	timeout time.Duration
}

// New creates a YouTube playlist client.
func New() *Client {
	return &Client{timeout: defaultFetchTimeout}
}

// SetTimeout overrides the per-fetch timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// PlaylistEntries fetches all items of the playlist referenced by a
// YouTube URL carrying a list= parameter.
func (c *Client) PlaylistEntries(ctx context.Context, ref string) (*playlist.Playlist, error) {
	playlistID := extractPlaylistID(ref)
	if playlistID == "" {
		return nil, errors.Newf("could not extract playlist ID from %q", ref)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}

	pl := &playlist.Playlist{Ref: ref, Name: playlistID}
	for _, it := range items {
		if it.Title == "" {
			continue
		}
		// YouTube titles usually already carry the artist name, so the
		// title alone is the resolver query.
		pl.Entries = append(pl.Entries, playlist.Entry{Title: it.Title})
	}
	return pl, nil
}

// extractPlaylistID extracts the list= parameter value from a YouTube URL.
func extractPlaylistID(url string) string {
	const param = "list="
	idx := strings.Index(url, param)
	if idx < 0 {
		return ""
	}
	id := url[idx+len(param):]
	if amp := strings.IndexAny(id, "&#"); amp >= 0 {
		id = id[:amp]
	}
	return id
}
