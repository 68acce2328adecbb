package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Chain executes filters in order.
type Chain struct {
	filters []Filter
}

// NewChain creates a filter chain from the given filters.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// NewChainFromConfig builds a filter chain from configuration.
// Unknown filter names are an error; invalid settings are an error.
func NewChainFromConfig(configs map[string]map[string]any) (*Chain, error) {
	var filters []Filter
	for name, settings := range configs {
		factory, ok := registry[name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(settings); err != nil {
			return nil, errors.Wrapf(err, "invalid config for filter %s", name)
		}
		filters = append(filters, f)
	}
	return &Chain{filters: filters}, nil
}

// Execute runs all applicable filters against the request. The first
// rejection wins.
func (c *Chain) Execute(ctx context.Context, req Request, queue QueueView) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Requester.Type) {
			continue
		}
		result := f.Check(ctx, req, queue)
		if !result.Accepted {
			zlog.Debug().Msgf("filter %s rejected request in chat %s: %s",
				f.Name(), req.ChatID, result.Code)
			return result
		}
	}
	return Accept()
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int {
	return len(c.filters)
}
