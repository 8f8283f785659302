package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
	"FinSight/pkg/metrics"
)

type flakyRecorder struct {
	mu        sync.Mutex
	fails     int
	batchErr  error
	got       []*models.InsightRecord
	batchSize int
}

func (r *flakyRecorder) Record(_ context.Context, rec *models.InsightRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("sink down")
	}
	r.got = append(r.got, rec)
	return nil
}

func (r *flakyRecorder) RecordBatch(_ context.Context, recs []*models.InsightRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batchErr != nil {
		return r.batchErr
	}
	r.batchSize = len(recs)
	r.got = append(r.got, recs...)
	return nil
}

func (r *flakyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func record(symbol string) *models.InsightRecord {
	return &models.InsightRecord{ID: symbol + "-1", Symbol: symbol, Price: 10, RecordedAt: time.Now()}
}

func newPipeline(rec Recorder, opts ...PipelineOption) *RecordPipeline {
	return NewRecordPipeline(rec, metrics.NewWithRegisterer(prometheus.NewRegistry()), nil, opts...)
}

func TestRecordPipeline_Validates(t *testing.T) {
	p := newPipeline(&flakyRecorder{})
	for _, rec := range []*models.InsightRecord{
		nil,
		{Price: 1, RecordedAt: time.Now()},
		{Symbol: "A", Price: 0, RecordedAt: time.Now()},
		{Symbol: "A", Price: 1},
		{Symbol: "A", Price: 1, Volume: -1, RecordedAt: time.Now()},
	} {
		assert.ErrorIs(t, p.Submit(context.Background(), rec), models.ErrInvalidInput)
	}
}

func TestRecordPipeline_ThrottlesPerSymbol(t *testing.T) {
	sink := &flakyRecorder{}
	p := newPipeline(sink, WithMinInterval(time.Minute))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Submit(context.Background(), record("AAPL")))
	assert.ErrorIs(t, p.Submit(context.Background(), record("AAPL")), ErrThrottled)
	require.NoError(t, p.Submit(context.Background(), record("MSFT")))

	now = now.Add(time.Minute)
	require.NoError(t, p.Submit(context.Background(), record("AAPL")))
	assert.Equal(t, 3, sink.count())
}

func TestRecordPipeline_BuffersAndRetries(t *testing.T) {
	sink := &flakyRecorder{fails: 2}
	p := newPipeline(sink, WithMinInterval(0), WithRetryBackoff(time.Millisecond))

	err := p.Submit(context.Background(), record("AAPL"))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop(context.Background())

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())
}

func TestRecordPipeline_BufferFullDrops(t *testing.T) {
	sink := &flakyRecorder{fails: 10}
	p := newPipeline(sink, WithMinInterval(0), WithBufferSize(1))

	_ = p.Submit(context.Background(), record("A"))
	_ = p.Submit(context.Background(), record("B"))
	assert.Equal(t, 1, p.Buffered())
}

func TestRecordPipeline_StopIsIdempotent(t *testing.T) {
	p := newPipeline(&flakyRecorder{})
	ctx := context.Background()
	p.Stop(ctx)
	p.Start(ctx)
	p.Start(ctx)
	p.Stop(ctx)
	p.Stop(ctx)
}

func TestRecordPipeline_RestartAfterStop(t *testing.T) {
	sink := &flakyRecorder{}
	p := newPipeline(sink, WithMinInterval(0), WithRetryBackoff(time.Millisecond))
	ctx := context.Background()

	p.Start(ctx)
	p.Stop(ctx)

	require.NotPanics(t, func() {
		p.Start(ctx)
		sink.mu.Lock()
		sink.fails = 1
		sink.mu.Unlock()
		require.Error(t, p.Submit(ctx, record("AAPL")))
		assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
		p.Stop(ctx)
	})
}

func TestRecordPipeline_StopFlushesBuffer(t *testing.T) {
	sink := &flakyRecorder{fails: 3}
	p := newPipeline(sink, WithMinInterval(0))

	for _, sym := range []string{"A", "B", "C"} {
		require.Error(t, p.Submit(context.Background(), record(sym)))
	}
	require.Equal(t, 3, p.Buffered())

	p.Stop(context.Background())
	assert.Equal(t, 0, p.Buffered())
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 3, sink.batchSize)
}

func TestRecordPipeline_StopFlushFailureDiscards(t *testing.T) {
	sink := &flakyRecorder{fails: 1, batchErr: errors.New("sink down")}
	p := newPipeline(sink, WithMinInterval(0))

	require.Error(t, p.Submit(context.Background(), record("A")))
	p.Stop(context.Background())
	assert.Equal(t, 0, p.Buffered())
	assert.Equal(t, 0, sink.count())
}

func TestRecordPipeline_PrunesStaleSymbols(t *testing.T) {
	p := newPipeline(&flakyRecorder{}, WithMinInterval(time.Minute))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	for _, sym := range []string{"A", "B", "C", "D"} {
		require.NoError(t, p.Submit(context.Background(), record(sym)))
	}
	p.mu.Lock()
	assert.Len(t, p.lastSeen, 4)
	p.mu.Unlock()

	now = now.Add(2 * time.Minute)
	require.NoError(t, p.Submit(context.Background(), record("E")))

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Len(t, p.lastSeen, 1)
	assert.Contains(t, p.lastSeen, "E")
}
