// Package insight turns a single quote into a deterministic classification
// with display-ready metrics and narrative.
package insight

import (
	"fmt"
	"math"

	"FinSight/internal/domain/models"
)

// Classification cut-offs in percentage points. Comparisons are strict.
const (
	SentimentThreshold      = 2.0
	RecommendationThreshold = 5.0
	HighRiskThreshold       = 10.0
	LowRiskThreshold        = 2.0

	maxScoreSwing = 30.0

	// epsYield is the earnings yield assumed when the provider gives no EPS.
	epsYield = 0.05
)

// Analyzer implements service.QuoteAnalyzer. It holds no state.
type Analyzer struct{}

// NewAnalyzer returns a ready Analyzer. The zero value works too.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Classify validates q and returns its classification. Invalid input fails with
// an error wrapping models.ErrInvalidInput and never yields a partial result.
func (a *Analyzer) Classify(q models.RawQuote) (models.AnalysisResult, error) {
	if err := validateQuote(q); err != nil {
		return models.AnalysisResult{}, err
	}

	class := q.AssetClass
	if !models.IsValidAssetClass(class) {
		class = models.DefaultAssetClass()
	}
	cp := q.ChangePercent

	res := models.AnalysisResult{
		Symbol:         q.Symbol,
		AssetClass:     class,
		Sentiment:      SentimentFor(cp),
		SentimentScore: SentimentScore(cp),
		MomentumScore:  MomentumScore(cp),
		Recommendation: RecommendationFor(cp),
		RiskLevel:      RiskFor(cp),
	}

	f := FormatterFor(class, q.Symbol)
	m, err := deriveMetrics(q, f)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	res.DerivedMetrics = m
	res.Narrative = buildNarrative(q, res, f)
	return res, nil
}

// SentimentFor is positive above +2%, negative below -2%, else neutral.
func SentimentFor(cp float64) models.Sentiment {
	switch {
	case cp > SentimentThreshold:
		return models.SentimentPositive
	case cp < -SentimentThreshold:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// RecommendationFor is buy above +5%, sell below -5%, else hold.
func RecommendationFor(cp float64) models.Recommendation {
	switch {
	case cp > RecommendationThreshold:
		return models.RecommendationBuy
	case cp < -RecommendationThreshold:
		return models.RecommendationSell
	default:
		return models.RecommendationHold
	}
}

// RiskFor is high when |cp| exceeds 10, low under 2, medium in between
// including both boundaries.
func RiskFor(cp float64) models.RiskLevel {
	abs := math.Abs(cp)
	switch {
	case abs > HighRiskThreshold:
		return models.RiskHigh
	case abs < LowRiskThreshold:
		return models.RiskLow
	default:
		return models.RiskMedium
	}
}

// SentimentScore maps the move onto 0..100: above 60 for positive,
// below 40 for negative, 50 for neutral.
func SentimentScore(cp float64) float64 {
	switch {
	case cp > SentimentThreshold:
		return 60 + math.Min(maxScoreSwing, cp)
	case cp < -SentimentThreshold:
		return 40 - math.Min(maxScoreSwing, math.Abs(cp))
	default:
		return 50
	}
}

// MomentumScore is 50 + 2*cp clamped to [30, 90].
func MomentumScore(cp float64) float64 {
	return clampScore(50 + cp*2)
}

func validateQuote(q models.RawQuote) error {
	if q.Symbol == "" {
		return invalid("symbol", "is required")
	}
	if !finite(q.Price) {
		return invalid("price", "must be finite")
	}
	if q.Price <= 0 {
		return invalid("price", "must be greater than zero")
	}
	if !finite(q.ChangePercent) {
		return invalid("changePercent", "must be finite")
	}
	if !finite(q.ChangeAbsolute) {
		return invalid("changeAbsolute", "must be finite")
	}
	if q.Volume < 0 {
		return invalid("volume", "must not be negative")
	}

	optional := []struct {
		name string
		v    float64
	}{
		{"previousClose", q.PreviousClose},
		{"fiftyTwoWeekHigh", q.FiftyTwoWeekHigh},
		{"fiftyTwoWeekLow", q.FiftyTwoWeekLow},
		{"peRatio", q.PERatio},
		{"eps", q.EPS},
		{"marketCap", q.MarketCap},
	}
	for _, o := range optional {
		if !finite(o.v) {
			return invalid(o.name, "must be finite")
		}
		if o.v < 0 {
			return invalid(o.name, "must not be negative")
		}
	}
	return nil
}

func invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", models.ErrInvalidInput, field, reason)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
