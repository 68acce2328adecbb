// Package track provides the track reference domain entities.
package track

import (
	"time"

	"github.com/google/uuid"
)

// Handle is the opaque playable reference produced by a resolver.
// It is attached to a Ref only after successful resolution.
type Handle struct {
	ID       string        // Source-specific media ID
	Title    string        // Display title reported by the source
	URL      string        // Canonical page URL for the media
	Source   string        // Resolver name that produced the handle
	Duration time.Duration // Media duration (zero if unknown)
}

// RequesterType represents the origin of a track request.
type RequesterType string

const (
	RequesterTypeUser     RequesterType = "USER"
	RequesterTypePlaylist RequesterType = "PLAYLIST"
)

// Requester identifies who asked for a track.
type Requester struct {
	ID   string        // External user ID (chat platform user)
	Name string        // Display name
	Type RequesterType // Origin of the request
}

// Ref is one queued playback request. The query is fixed at enqueue time;
// the handle is attached once, after resolution, and never replaced.
type Ref struct {
	ID        string    // Internal UUID, assigned at enqueue
	Query     string    // Free text or playlist-derived "title artists"
	Requester Requester // Who requested it
	Handle    *Handle   // Resolved media handle, nil until resolved
	AddedAt   time.Time // Time when added to the queue
}

// NewRef creates an unresolved track reference for the given query.
func NewRef(query string, requester Requester) Ref {
	return Ref{
		ID:        uuid.New().String(),
		Query:     query,
		Requester: requester,
		AddedAt:   time.Now(),
	}
}

// Resolved reports whether a media handle has been attached.
func (r *Ref) Resolved() bool {
	return r.Handle != nil
}

// DisplayTitle returns the resolved title when available, otherwise the
// original query text.
func (r *Ref) DisplayTitle() string {
	if r.Handle != nil && r.Handle.Title != "" {
		return r.Handle.Title
	}
	return r.Query
}
