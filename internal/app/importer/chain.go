package importer

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tunedeck/tunedeck/internal/domain/playlist"
)

// ErrNoProvider is returned when no provider recognizes a reference.
var ErrNoProvider = errors.New("no importer recognizes this link")

// Chain routes playlist references to the first provider that can
// handle them.
type Chain struct {
	providers []Provider
}

// NewChain creates an importer chain from the given providers.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// CanHandle reports whether any provider recognizes the reference.
func (c *Chain) CanHandle(ref string) bool {
	for _, p := range c.providers {
		if p.CanHandle(ref) {
			return true
		}
	}
	return false
}

// Expand expands the reference using the first provider that recognizes
// it. A recognized-but-failing reference is an error; there is no
// fallback to later providers.
func (c *Chain) Expand(ctx context.Context, ref string) (*playlist.Playlist, error) {
	for _, p := range c.providers {
		if !p.CanHandle(ref) {
			continue
		}
		zlog.Debug().Msgf("expanding playlist via %s: %s", p.Name(), ref)
		pl, err := p.Expand(ctx, ref)
		if err != nil {
			return nil, errors.Wrapf(err, "importer %s failed", p.Name())
		}
		zlog.Info().Msgf("imported %d tracks from %s playlist %q", len(pl.Entries), p.Name(), pl.Name)
		return pl, nil
	}
	return nil, ErrNoProvider
}

// Providers returns the provider names in chain order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}
