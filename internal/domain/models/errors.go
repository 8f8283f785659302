package models

import "errors"

var (
	// ErrInvalidInput is returned by classification for non-finite or missing numbers.
	ErrInvalidInput = errors.New("invalid input")

	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrUnsupportedAsset    = errors.New("asset class not supported by provider")

	ErrHistoryDisabled = errors.New("history store disabled")
)
