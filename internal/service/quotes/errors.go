// Package quotes holds what the market data providers share: transport error
// mapping and the ordered provider chain.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"FinSight/internal/domain/models"
	xhttp "FinSight/pkg/http"
)

// MapTransportError translates an HTTP client error into the domain taxonomy.
// Caller cancellation is passed through untouched.
func MapTransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w", provider, models.ErrRateLimited)
		case se.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", provider, models.ErrSymbolNotFound)
		default:
			return fmt.Errorf("%s: %w: status %d", provider, models.ErrUpstreamUnavailable, se.Code)
		}
	}

	return fmt.Errorf("%s: %w: %w", provider, models.ErrUpstreamUnavailable, err)
}

// IsTransient reports whether retrying the same request may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
