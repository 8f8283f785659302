package models

import "time"

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

type Recommendation string

const (
	RecommendationBuy  Recommendation = "buy"
	RecommendationHold Recommendation = "hold"
	RecommendationSell Recommendation = "sell"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// DerivedMetrics holds display strings and the numbers behind them.
// The *Estimated flags are true when the value was derived locally rather
// than supplied by the provider.
type DerivedMetrics struct {
	Price     string `json:"price"`
	Change    string `json:"change"`
	Volume    string `json:"volume"`
	MarketCap string `json:"marketCap"`
	PE        string `json:"pe"`
	EPS       string `json:"eps"`
	Range52W  string `json:"range52w,omitempty"`

	MarketCapValue     float64 `json:"marketCapValue"`
	PEValue            float64 `json:"peValue"`
	EPSValue           float64 `json:"epsValue"`
	MarketCapEstimated bool    `json:"marketCapEstimated"`
	PEEstimated        bool    `json:"peEstimated"`
	EPSEstimated       bool    `json:"epsEstimated"`
}

type Narrative struct {
	Summary    string       `json:"summary"`
	RiskNote   string       `json:"riskNote"`
	Suggestion string       `json:"suggestion"`
	Headlines  []string     `json:"headlines"`
	ProfitLoss string       `json:"profitLoss"`
	Earnings   string       `json:"earnings"`
	Social     SocialScores `json:"social"`
	Trending   []string     `json:"trending"`
}

// SocialScores are price-derived platform sentiment scores in [30, 90].
// They are not sourced from the platforms.
type SocialScores struct {
	Twitter    float64 `json:"twitter"`
	Reddit     float64 `json:"reddit"`
	StockTwits float64 `json:"stocktwits"`
}

// AnalysisResult is the deterministic classification of one RawQuote.
// It carries no timestamps so identical input encodes to identical bytes.
type AnalysisResult struct {
	Symbol         string         `json:"symbol"`
	AssetClass     AssetClass     `json:"assetClass"`
	Sentiment      Sentiment      `json:"sentiment"`
	SentimentScore float64        `json:"sentimentScore"`
	MomentumScore  float64        `json:"momentumScore"`
	Recommendation Recommendation `json:"recommendation"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	DerivedMetrics DerivedMetrics `json:"derivedMetrics"`
	Narrative      Narrative      `json:"narrative"`
}

// DataSource tells where the quote behind an insight came from.
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceSimulated DataSource = "simulated"
)

const (
	LabelLive      = "Live Data"
	LabelSimulated = "Simulated data for demonstration. Not real market state."
)

// Insight wraps an AnalysisResult with its provenance.
type Insight struct {
	Result         AnalysisResult `json:"result"`
	Source         DataSource     `json:"source"`
	Label          string         `json:"label"`
	Provider       string         `json:"provider,omitempty"`
	FallbackReason string         `json:"fallbackReason,omitempty"`
	Cached         bool           `json:"cached"`
	FetchedAt      time.Time      `json:"fetchedAt"`
}

// NewLiveInsight is the only way to get an insight carrying the live label.
func NewLiveInsight(res AnalysisResult, provider string, at time.Time) *Insight {
	return &Insight{
		Result:    res,
		Source:    SourceLive,
		Label:     LabelLive,
		Provider:  provider,
		FetchedAt: at,
	}
}

func NewSimulatedInsight(res AnalysisResult, reason string, at time.Time) *Insight {
	return &Insight{
		Result:         res,
		Source:         SourceSimulated,
		Label:          LabelSimulated,
		Provider:       "synthetic",
		FallbackReason: reason,
		FetchedAt:      at,
	}
}

// IsLive reports whether the insight is backed by provider data.
func (i *Insight) IsLive() bool { return i != nil && i.Source == SourceLive }

// InsightBatch is the result of analysing several symbols at once.
type InsightBatch struct {
	Insights []*Insight        `json:"insights"`
	Errors   map[string]string `json:"errors,omitempty"`
}
