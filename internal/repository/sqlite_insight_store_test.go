package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
)

func newRecord(symbol string, at time.Time, price float64) *models.InsightRecord {
	q := models.RawQuote{Symbol: symbol, AssetClass: models.AssetEquity, Price: price, ChangePercent: 3, Volume: 1000}
	res := models.AnalysisResult{
		Symbol:         symbol,
		AssetClass:     models.AssetEquity,
		Sentiment:      models.SentimentPositive,
		SentimentScore: 63,
		Recommendation: models.RecommendationHold,
		RiskLevel:      models.RiskMedium,
	}
	return models.NewInsightRecord(q, res, "finnhub", at)
}

func openStore(t *testing.T) *SQLiteInsightStore {
	t.Helper()
	s, err := NewSQLiteInsightStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestSQLiteInsightStore_SaveAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	var recs []*models.InsightRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, newRecord("AAPL", base.Add(time.Duration(i)*time.Minute), 150+float64(i)))
	}
	recs = append(recs, newRecord("MSFT", base, 400))
	require.NoError(t, s.SaveBatch(ctx, recs))

	got, err := s.Recent(ctx, "AAPL", base, base.Add(time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 154.0, got[0].Price)
	assert.Equal(t, base.Add(4*time.Minute), got[0].RecordedAt)
	assert.True(t, got[0].RecordedAt.After(got[1].RecordedAt))
	assert.Equal(t, models.SentimentPositive, got[0].Sentiment)
	assert.Equal(t, models.AssetEquity, got[0].AssetClass)
	assert.Equal(t, int64(1000), got[0].Volume)
	assert.Equal(t, "finnhub", got[0].Provider)
}

func TestSQLiteInsightStore_TimeWindow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, newRecord("AAPL", base.Add(-2*time.Hour), 1)))
	require.NoError(t, s.Save(ctx, newRecord("AAPL", base, 2)))

	got, err := s.Recent(ctx, "AAPL", base.Add(-time.Hour), base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Price)
}

func TestSQLiteInsightStore_DuplicateIDIgnored(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := newRecord("AAPL", time.Now(), 1)

	require.NoError(t, s.Save(ctx, rec))
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Recent(ctx, "AAPL", time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteInsightStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := NewSQLiteInsightStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Health(context.Background()))
	assert.FileExists(t, path)
}
