// Package filter provides the enqueue-time request filter chain.
package filter

import (
	"context"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

// Request represents a track request to be validated before enqueueing.
type Request struct {
	ChatID    string
	Requester track.Requester
	Query     string
}

// QueueView is the read-only view of a chat's queue that filters may
// inspect.
type QueueView interface {
	QueueLen() int
	ContainsQuery(query string) bool
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g. "duplicate_track", "queue_full"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if the filter applies to the given requester type.
	AppliesTo(requesterType track.RequesterType) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request, queue QueueView) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
