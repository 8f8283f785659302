package models

// Requests for insight HTTP endpoints.

type InsightRequest struct {
	Symbol     string `query:"symbol" json:"symbol" validate:"required,ticker"`
	AssetClass string `query:"asset_class" json:"asset_class" default:"equity" validate:"oneof=equity etf crypto forex"`
	Refresh    bool   `query:"refresh" json:"refresh"`
}

type BatchInsightRequest struct {
	Symbols    string `query:"symbols" json:"symbols" validate:"required,max=512"`
	AssetClass string `query:"asset_class" json:"asset_class" default:"equity" validate:"oneof=equity etf crypto forex"`
	Refresh    bool   `query:"refresh" json:"refresh"`
}

// ClassifyRequest is a caller-supplied quote. Price and change percent are
// pointers so that a missing field is told apart from zero.
type ClassifyRequest struct {
	Symbol           string   `json:"symbol" validate:"required,ticker"`
	AssetClass       string   `json:"assetClass" default:"equity" validate:"oneof=equity etf crypto forex"`
	Price            *float64 `json:"price" validate:"required"`
	ChangeAbsolute   float64  `json:"changeAbsolute"`
	ChangePercent    *float64 `json:"changePercent" validate:"required"`
	Volume           int64    `json:"volume"`
	PreviousClose    float64  `json:"previousClose"`
	FiftyTwoWeekHigh float64  `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  float64  `json:"fiftyTwoWeekLow"`
	PERatio          float64  `json:"peRatio"`
	EPS              float64  `json:"eps"`
	MarketCap        float64  `json:"marketCap"`
}

// ToQuote converts the request into a RawQuote. Call after validation.
func (r *ClassifyRequest) ToQuote() RawQuote {
	q := RawQuote{
		Symbol:           NormalizeSymbol(r.Symbol),
		AssetClass:       NormalizeAssetClass(r.AssetClass),
		ChangeAbsolute:   r.ChangeAbsolute,
		Volume:           r.Volume,
		PreviousClose:    r.PreviousClose,
		FiftyTwoWeekHigh: r.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  r.FiftyTwoWeekLow,
		PERatio:          r.PERatio,
		EPS:              r.EPS,
		MarketCap:        r.MarketCap,
	}
	if r.Price != nil {
		q.Price = *r.Price
	}
	if r.ChangePercent != nil {
		q.ChangePercent = *r.ChangePercent
	}
	return q
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type StreamRequest struct {
	Symbols    string `query:"symbols" json:"symbols" validate:"required,max=512"`
	AssetClass string `query:"asset_class" json:"asset_class" default:"equity" validate:"oneof=equity etf crypto forex"`
	Interval   string `query:"interval" json:"interval" default:"15s"`
}
