package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
	pkgkafka "FinSight/pkg/kafka"
)

// KafkaInsightHandler persists insight records consumed from Kafka.
type KafkaInsightHandler struct {
	topic   string
	store   drepo.InsightStore
	metrics drepo.Metrics
}

var _ pkgkafka.MessageHandler = (*KafkaInsightHandler)(nil)

func NewKafkaInsightHandler(topic string, store drepo.InsightStore, metrics drepo.Metrics) *KafkaInsightHandler {
	return &KafkaInsightHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaInsightHandler) Topic() string { return h.topic }

func (h *KafkaInsightHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.InsightRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode insight record: %w", err)
	}
	if rec.ID == "" || rec.Symbol == "" || rec.RecordedAt.IsZero() {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("%w: incomplete insight record", models.ErrInvalidInput)
	}
	h.metrics.RecordLatency("history_e2e", time.Since(rec.RecordedAt).Seconds())

	start := time.Now()
	err := h.store.Save(ctx, &rec)
	h.metrics.RecordLatency("history_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordRecordSent("store", rec.Symbol)
	return nil
}
