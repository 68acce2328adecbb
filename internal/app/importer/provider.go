// Package importer expands playlist links into individual track queries.
package importer

import (
	"context"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

// Provider expands playlist references from one source.
type Provider interface {
	// Name returns the provider name (used in config and logs).
	Name() string
	// CanHandle reports whether the reference looks like a playlist link
	// this provider understands.
	CanHandle(ref string) bool
	// Expand fetches the playlist and returns its entries.
	Expand(ctx context.Context, ref string) (*playlist.Playlist, error)
}
