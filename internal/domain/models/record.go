package models

import (
	"time"

	"github.com/google/uuid"
)

// InsightRecord is the persisted form of a live insight.
type InsightRecord struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	AssetClass     AssetClass     `json:"assetClass"`
	Price          float64        `json:"price"`
	ChangePercent  float64        `json:"changePercent"`
	Volume         int64          `json:"volume"`
	Sentiment      Sentiment      `json:"sentiment"`
	SentimentScore float64        `json:"sentimentScore"`
	Recommendation Recommendation `json:"recommendation"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Provider       string         `json:"provider"`
	RecordedAt     time.Time      `json:"recordedAt"`
}

// NewInsightRecord builds a record from the quote and its classification.
func NewInsightRecord(q RawQuote, res AnalysisResult, provider string, at time.Time) *InsightRecord {
	return &InsightRecord{
		ID:             uuid.NewString(),
		Symbol:         res.Symbol,
		AssetClass:     res.AssetClass,
		Price:          q.Price,
		ChangePercent:  q.ChangePercent,
		Volume:         q.Volume,
		Sentiment:      res.Sentiment,
		SentimentScore: res.SentimentScore,
		Recommendation: res.Recommendation,
		RiskLevel:      res.RiskLevel,
		Provider:       provider,
		RecordedAt:     at.UTC(),
	}
}
