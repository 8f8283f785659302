package models

import "strings"

// AssetClass selects the formatting strategy and the provider symbol mapping.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetETF    AssetClass = "etf"
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
)

// IsValidAssetClass returns true if c is a supported asset class.
func IsValidAssetClass(c AssetClass) bool {
	switch c {
	case AssetEquity, AssetETF, AssetCrypto, AssetForex:
		return true
	default:
		return false
	}
}

// DefaultAssetClass returns the asset class used when none is given.
func DefaultAssetClass() AssetClass { return AssetEquity }

// NormalizeAssetClass converts a raw string to a valid asset class (or default).
func NormalizeAssetClass(s string) AssetClass {
	c := AssetClass(strings.ToLower(strings.TrimSpace(s)))
	if IsValidAssetClass(c) {
		return c
	}
	return DefaultAssetClass()
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// RawQuote is one point-in-time quote for a symbol as returned by a provider.
// Optional fields use 0 for "not supplied".
type RawQuote struct {
	Symbol         string     `json:"symbol"`
	AssetClass     AssetClass `json:"assetClass"`
	Price          float64    `json:"price"`
	ChangeAbsolute float64    `json:"changeAbsolute"`
	ChangePercent  float64    `json:"changePercent"`
	Volume         int64      `json:"volume"`

	PreviousClose    float64 `json:"previousClose,omitempty"`
	FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh,omitempty"`
	FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow,omitempty"`
	PERatio          float64 `json:"peRatio,omitempty"`
	EPS              float64 `json:"eps,omitempty"`
	MarketCap        float64 `json:"marketCap,omitempty"`
}
