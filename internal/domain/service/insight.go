package service

import "FinSight/internal/domain/models"

// QuoteAnalyzer classifies a single quote. Implementations must be pure.
type QuoteAnalyzer interface {
	Classify(q models.RawQuote) (models.AnalysisResult, error)
}

// SyntheticQuoter produces clearly simulated quotes when no provider can answer.
type SyntheticQuoter interface {
	Quote(symbol string, class models.AssetClass) models.RawQuote
}
