// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// ErrNoMatch is returned when a search query yields no usable track.
var ErrNoMatch = errors.New("no matching track found")

// searchLimit is how many candidates a resolve search fetches.
const searchLimit = 5

// Client is a Spotify API client. It backs both track resolution and
// playlist expansion.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
		),
	)

	// The HTTP client refreshes the access token automatically.
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	httpClient := auth.Client(ctx, token)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(httpClient),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Resolve turns a free-text query or a Spotify track link into a
// playable track handle. Free text goes through search; the first
// playable candidate wins.
func (c *Client) Resolve(ctx context.Context, query string) (*track.Handle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if isTrackLink(query) {
		return c.resolveTrackLink(ctx, query)
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(searchLimit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	for i := range result.Tracks.Tracks {
		t := &result.Tracks.Tracks[i]
		if t.IsPlayable != nil && !*t.IsPlayable {
			continue
		}
		return c.convertTrack(t), nil
	}
	return nil, errors.Wrapf(ErrNoMatch, "query %q", query)
}

// resolveTrackLink fetches track metadata for a direct track URL or URI.
func (c *Client) resolveTrackLink(ctx context.Context, link string) (*track.Handle, error) {
	id := extractTrackID(link)

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}
	return c.convertTrack(result), nil
}

// PlaylistEntries retrieves all tracks from a playlist URL or URI.
func (c *Client) PlaylistEntries(ctx context.Context, ref string) (*playlist.Playlist, error) {
	playlistID := extractPlaylistID(ref)
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var meta *spotify.FullPlaylist
	err := c.retry(func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(playlistID))
		if err != nil {
			return err
		}
		meta = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist")
	}

	pl := &playlist.Playlist{Ref: ref, Name: meta.Name}
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Episodes have no track payload, skip them.
			t := item.Track.Track
			if t == nil || t.ID == "" {
				continue
			}
			artists := make([]string, len(t.Artists))
			for i, a := range t.Artists {
				artists[i] = a.Name
			}
			pl.Entries = append(pl.Entries, playlist.Entry{Title: t.Name, Artists: artists})
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return pl, nil
}

// convertTrack converts a Spotify FullTrack to a playable handle.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Handle {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	title := t.Name
	if len(artists) > 0 {
		title = fmt.Sprintf("%s - %s", t.Name, strings.Join(artists, ", "))
	}

	return &track.Handle{
		ID:       string(t.ID),
		Title:    title,
		URL:      trackURL(string(t.ID)),
		Source:   "spotify",
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

// trackURL returns the Spotify URL for a track.
func trackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isTrackLink reports whether the input is a direct track URL or URI.
func isTrackLink(input string) bool {
	return strings.HasPrefix(input, "spotify:track:") ||
		(strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/"))
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:playlist:PLAYLIST_ID
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	// Handle URL format: https://open.spotify.com/playlist/PLAYLIST_ID or
	// https://open.spotify.com/intl-XX/playlist/PLAYLIST_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a playlist ID
	return input
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return input
}
