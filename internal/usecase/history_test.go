package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
	"FinSight/pkg/metrics"
)

type fakeStore struct {
	saved    []*models.InsightRecord
	saveErr  error
	from, to time.Time
	limit    int
	symbol   string
}

func (s *fakeStore) Init(context.Context) error { return nil }
func (s *fakeStore) Save(_ context.Context, r *models.InsightRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, r)
	return nil
}
func (s *fakeStore) SaveBatch(ctx context.Context, recs []*models.InsightRecord) error {
	for _, r := range recs {
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
func (s *fakeStore) Recent(_ context.Context, symbol string, from, to time.Time, limit int) ([]*models.InsightRecord, error) {
	s.symbol, s.from, s.to, s.limit = symbol, from, to, limit
	return s.saved, nil
}
func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

type fakePublisher struct {
	published []*models.InsightRecord
	closed    bool
}

func (p *fakePublisher) Publish(_ context.Context, r *models.InsightRecord) error {
	p.published = append(p.published, r)
	return nil
}
func (p *fakePublisher) PublishBatch(_ context.Context, recs []*models.InsightRecord) error {
	p.published = append(p.published, recs...)
	return nil
}
func (p *fakePublisher) Close() error { p.closed = true; return nil }

func testRecord(symbol string) *models.InsightRecord {
	return models.NewInsightRecord(
		models.RawQuote{Symbol: symbol, Price: 10, ChangePercent: 1},
		models.AnalysisResult{Symbol: symbol, AssetClass: models.AssetEquity, Sentiment: models.SentimentNeutral},
		"alphavantage", time.Now(),
	)
}

func newMetrics() *metrics.Recorder { return metrics.NewWithRegisterer(prometheus.NewRegistry()) }

func TestHistoryUseCase_Defaults(t *testing.T) {
	store := &fakeStore{}
	uc := NewHistoryUseCase(store)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return now }

	page, err := uc.Recent(context.Background(), HistoryParams{Symbol: "aapl"})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", store.symbol)
	assert.Equal(t, DefaultHistoryLimit, store.limit)
	assert.Equal(t, now, store.to)
	assert.Equal(t, now.Add(-DefaultHistoryWindow), store.from)
	assert.Equal(t, now, page.To)
}

func TestHistoryUseCase_ClampsAndValidates(t *testing.T) {
	store := &fakeStore{}
	uc := NewHistoryUseCase(store)

	_, err := uc.Recent(context.Background(), HistoryParams{Symbol: "AAPL", Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, store.limit)

	now := time.Now()
	_, err = uc.Recent(context.Background(), HistoryParams{Symbol: "AAPL", From: now, To: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = uc.Recent(context.Background(), HistoryParams{})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestHistoryUseCase_Disabled(t *testing.T) {
	uc := NewHistoryUseCase(nil)
	_, err := uc.Recent(context.Background(), HistoryParams{Symbol: "AAPL"})
	assert.ErrorIs(t, err, models.ErrHistoryDisabled)
}

func TestHistoryRecorder_Transports(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}

	direct, err := NewHistoryRecorder(TransportDirect, nil, store, newMetrics())
	require.NoError(t, err)
	require.NoError(t, direct.Record(context.Background(), testRecord("AAPL")))
	assert.Len(t, store.saved, 1)

	viaKafka, err := NewHistoryRecorder(TransportKafka, pub, store, newMetrics())
	require.NoError(t, err)
	require.NoError(t, viaKafka.RecordBatch(context.Background(), []*models.InsightRecord{testRecord("A"), testRecord("B")}))
	assert.Len(t, pub.published, 2)
	assert.Len(t, store.saved, 1)
	require.NoError(t, viaKafka.Close())
	assert.True(t, pub.closed)
}

func TestHistoryRecorder_Errors(t *testing.T) {
	_, err := NewHistoryRecorder("carrier-pigeon", nil, nil, newMetrics())
	assert.Error(t, err)
	_, err = NewHistoryRecorder(TransportKafka, nil, &fakeStore{}, newMetrics())
	assert.Error(t, err)

	store := &fakeStore{saveErr: errors.New("disk full")}
	r, err := NewHistoryRecorder(TransportDirect, nil, store, newMetrics())
	require.NoError(t, err)
	assert.Error(t, r.Record(context.Background(), testRecord("AAPL")))
	assert.ErrorIs(t, r.Record(context.Background(), nil), models.ErrInvalidInput)
}

func TestKafkaInsightHandler(t *testing.T) {
	store := &fakeStore{}
	h := NewKafkaInsightHandler("finsight.insights", store, newMetrics())
	assert.Equal(t, "finsight.insights", h.Topic())

	b, err := json.Marshal(testRecord("AAPL"))
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), b))
	require.Len(t, store.saved, 1)
	assert.Equal(t, "AAPL", store.saved[0].Symbol)

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.ErrorIs(t, h.Handle(context.Background(), []byte(`{"symbol":"AAPL"}`)), models.ErrInvalidInput)
}
