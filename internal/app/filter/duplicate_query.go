package filter

import (
	"context"
	"strings"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

func init() {
	Register("duplicate_query", func() Filter { return &duplicateQueryFilter{} })
}

// duplicateQueryFilter rejects a request whose query is already pending
// in the chat's queue.
type duplicateQueryFilter struct{}

func (f *duplicateQueryFilter) Name() string {
	return "duplicate_query"
}

func (f *duplicateQueryFilter) Description() string {
	return "Rejects tracks whose query is already in the queue"
}

func (f *duplicateQueryFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *duplicateQueryFilter) AppliesTo(requesterType track.RequesterType) bool {
	// Playlist imports are allowed to carry repeats.
	return requesterType == track.RequesterTypeUser
}

func (f *duplicateQueryFilter) Check(ctx context.Context, req Request, queue QueueView) Result {
	if queue.ContainsQuery(strings.TrimSpace(req.Query)) {
		return Reject("duplicate_track")
	}
	return Accept()
}
