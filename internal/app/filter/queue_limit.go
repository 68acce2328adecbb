package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/tunedeck/tunedeck/internal/domain/track"
)

func init() {
	Register("queue_limit", func() Filter {
		return &queueLimitFilter{config: queueLimitConfig{MaxTracks: 50}}
	})
}

type queueLimitConfig struct {
	MaxTracks int `mapstructure:"max_tracks"`
}

// queueLimitFilter rejects a request when the chat's queue already holds
// the configured maximum number of tracks.
type queueLimitFilter struct {
	config queueLimitConfig
}

func (f *queueLimitFilter) Name() string {
	return "queue_limit"
}

func (f *queueLimitFilter) Description() string {
	return "Rejects tracks when the queue is full"
}

func (f *queueLimitFilter) ValidateConfig(settings map[string]any) error {
	if settings == nil {
		return nil
	}
	var cfg queueLimitConfig
	cfg.MaxTracks = f.config.MaxTracks
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return errors.Wrap(err, "failed to decode queue_limit settings")
	}
	if cfg.MaxTracks <= 0 {
		return errors.New("max_tracks must be positive")
	}
	f.config = cfg
	return nil
}

func (f *queueLimitFilter) AppliesTo(requesterType track.RequesterType) bool {
	return true
}

func (f *queueLimitFilter) Check(ctx context.Context, req Request, queue QueueView) Result {
	if queue.QueueLen() >= f.config.MaxTracks {
		return Reject("queue_full")
	}
	return Accept()
}
