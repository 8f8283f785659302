package repository

import (
	"context"
	"time"

	"FinSight/internal/domain/models"
)

// QuoteSource fetches one quote from a market data provider.
type QuoteSource interface {
	Name() string
	Quote(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, error)
}

// Publisher ships insight records to a message broker.
type Publisher interface {
	Publish(ctx context.Context, rec *models.InsightRecord) error
	PublishBatch(ctx context.Context, recs []*models.InsightRecord) error
	Close() error
}

// InsightStore persists insight history.
type InsightStore interface {
	Init(ctx context.Context) error // ensure tables
	Save(ctx context.Context, rec *models.InsightRecord) error
	SaveBatch(ctx context.Context, recs []*models.InsightRecord) error
	Recent(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.InsightRecord, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordInsight(source, assetClass string)
	RecordCache(result string)
	RecordFallback(reason string)
	RecordRecordSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
