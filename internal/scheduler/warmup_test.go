package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
	"FinSight/internal/usecase"
	"FinSight/pkg/cache"
)

type recordingAnalyzer struct {
	mu    sync.Mutex
	calls []usecase.BatchParams
}

func (r *recordingAnalyzer) AnalyzeMany(_ context.Context, p usecase.BatchParams) (*models.InsightBatch, error) {
	r.mu.Lock()
	r.calls = append(r.calls, p)
	r.mu.Unlock()

	out := &models.InsightBatch{Errors: map[string]string{}}
	for _, s := range p.Symbols {
		switch s {
		case "BAD":
			out.Errors[s] = "symbol not found"
		case "SIM":
			out.Insights = append(out.Insights, models.NewSimulatedInsight(models.AnalysisResult{Symbol: s}, "rate_limited", time.Now()))
		default:
			out.Insights = append(out.Insights, models.NewLiveInsight(models.AnalysisResult{Symbol: s}, "finnhub", time.Now()))
		}
	}
	return out, nil
}

func (r *recordingAnalyzer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWarmup_Run(t *testing.T) {
	uc := &recordingAnalyzer{}
	items := []Item{
		{Symbol: "aapl"}, {Symbol: "AAPL", AssetClass: models.AssetEquity},
		{Symbol: "MSFT"}, {Symbol: "BAD"}, {Symbol: "SIM"},
		{Symbol: "BTC", AssetClass: models.AssetCrypto},
	}
	w, err := NewWarmup("0 */5 * * * *", items, uc, nil, 2, time.Second, nil)
	require.NoError(t, err)

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Refreshed)
	assert.Equal(t, 1, res.Simulated)
	assert.Contains(t, res.Failed, "equity:BAD")

	// Equity has 4 unique symbols in chunks of 2, crypto one chunk.
	assert.Equal(t, 3, uc.callCount())
	for _, c := range uc.calls {
		assert.True(t, c.Refresh)
		assert.LessOrEqual(t, len(c.Symbols), 2)
	}
}

func TestWarmup_SkipsWhenLocked(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	ok, err := mem.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	uc := &recordingAnalyzer{}
	w, err := NewWarmup("@every 1h", []Item{{Symbol: "AAPL"}}, uc, mem, 5, time.Second, nil)
	require.NoError(t, err)

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, uc.callCount())

	require.NoError(t, mem.Unlock(context.Background(), lockKey))
	res, err = w.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, uc.callCount())

	// The run released its lock.
	ok, err = mem.TryLock(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWarmup_InvalidSpec(t *testing.T) {
	_, err := NewWarmup("every tuesday", nil, &recordingAnalyzer{}, nil, 1, time.Second, nil)
	assert.Error(t, err)
}

func TestWarmup_CronFires(t *testing.T) {
	uc := &recordingAnalyzer{}
	w, err := NewWarmup("* * * * * *", []Item{{Symbol: "AAPL"}}, uc, nil, 5, time.Second, nil)
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	assert.Eventually(t, func() bool { return uc.callCount() > 0 }, 3*time.Second, 20*time.Millisecond)
}
