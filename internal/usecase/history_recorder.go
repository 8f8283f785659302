package usecase

import (
	"context"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
)

const (
	TransportDirect = "direct"
	TransportKafka  = "kafka"
)

// HistoryRecorder routes insight records to the configured transport:
// straight into the store, or onto Kafka for the consumer to persist.
type HistoryRecorder struct {
	pub       drepo.Publisher
	store     drepo.InsightStore
	metrics   drepo.Metrics
	transport string
}

func NewHistoryRecorder(transport string, pub drepo.Publisher, store drepo.InsightStore, metrics drepo.Metrics) (*HistoryRecorder, error) {
	switch transport {
	case TransportDirect:
		if store == nil {
			return nil, fmt.Errorf("history transport %q needs a store", transport)
		}
	case TransportKafka:
		if pub == nil {
			return nil, fmt.Errorf("history transport %q needs a publisher", transport)
		}
	default:
		return nil, fmt.Errorf("unknown history transport %q", transport)
	}
	return &HistoryRecorder{pub: pub, store: store, metrics: metrics, transport: transport}, nil
}

func (r *HistoryRecorder) Record(ctx context.Context, rec *models.InsightRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", models.ErrInvalidInput)
	}
	start := time.Now()
	var err error
	if r.transport == TransportKafka {
		err = r.pub.Publish(ctx, rec)
	} else {
		err = r.store.Save(ctx, rec)
	}
	if err != nil {
		r.metrics.RecordError("history_" + r.transport)
		return fmt.Errorf("record %s: %w", rec.Symbol, err)
	}
	r.metrics.RecordRecordSent(r.transport, rec.Symbol)
	r.metrics.RecordLatency("history_record", time.Since(start).Seconds())
	return nil
}

func (r *HistoryRecorder) RecordBatch(ctx context.Context, recs []*models.InsightRecord) error {
	if len(recs) == 0 {
		return nil
	}
	var err error
	if r.transport == TransportKafka {
		err = r.pub.PublishBatch(ctx, recs)
	} else {
		err = r.store.SaveBatch(ctx, recs)
	}
	if err != nil {
		r.metrics.RecordError("history_" + r.transport + "_batch")
		return fmt.Errorf("record batch: %w", err)
	}
	for _, rec := range recs {
		r.metrics.RecordRecordSent(r.transport, rec.Symbol)
	}
	return nil
}

// Close releases the publisher. The store is closed by its owner.
func (r *HistoryRecorder) Close() error {
	if r.pub != nil {
		return r.pub.Close()
	}
	return nil
}
