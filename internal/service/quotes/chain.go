package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
)

// Chain asks each source in order. A source that cannot serve the asset class,
// is rate limited or is unavailable hands over to the next one. Unknown
// symbols and invalid payloads stop the chain.
type Chain struct {
	sources []drepo.QuoteSource
}

func NewChain(sources ...drepo.QuoteSource) *Chain {
	return &Chain{sources: sources}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		names = append(names, s.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Len returns the number of configured sources.
func (c *Chain) Len() int { return len(c.sources) }

// QuoteFrom behaves like Quote and also reports which source answered.
func (c *Chain) QuoteFrom(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, string, error) {
	if len(c.sources) == 0 {
		return models.RawQuote{}, "", fmt.Errorf("no quote providers configured: %w", models.ErrUpstreamUnavailable)
	}

	var lastErr error
	for _, s := range c.sources {
		q, err := s.Quote(ctx, symbol, class)
		if err == nil {
			return q, s.Name(), nil
		}
		if ctx.Err() != nil {
			return models.RawQuote{}, "", err
		}
		switch {
		case errors.Is(err, models.ErrUnsupportedAsset):
			if lastErr == nil {
				lastErr = err
			}
		case errors.Is(err, models.ErrRateLimited), errors.Is(err, models.ErrUpstreamUnavailable):
			lastErr = err
		default:
			return models.RawQuote{}, "", err
		}
	}

	// Nobody could serve the class at all: treat it as unavailable so the
	// caller falls back instead of surfacing a provider detail.
	if errors.Is(lastErr, models.ErrUnsupportedAsset) {
		return models.RawQuote{}, "", fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, lastErr)
	}
	return models.RawQuote{}, "", lastErr
}

func (c *Chain) Quote(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, error) {
	q, _, err := c.QuoteFrom(ctx, symbol, class)
	return q, err
}
