package insight

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
)

func quote(symbol string, price, cp float64, volume int64) models.RawQuote {
	return models.RawQuote{
		Symbol:         symbol,
		AssetClass:     models.AssetEquity,
		Price:          price,
		ChangePercent:  cp,
		ChangeAbsolute: price * cp / 100,
		Volume:         volume,
	}
}

func TestClassify_Examples(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name      string
		cp        float64
		sentiment models.Sentiment
		rec       models.Recommendation
		risk      models.RiskLevel
		score     float64
	}{
		{"strong rally", 6.38, models.SentimentPositive, models.RecommendationBuy, models.RiskMedium, 66.38},
		{"crash", -12, models.SentimentNegative, models.RecommendationSell, models.RiskHigh, 28},
		{"quiet day", 1.5, models.SentimentNeutral, models.RecommendationHold, models.RiskLow, 50},
		{"exactly two", 2.0, models.SentimentNeutral, models.RecommendationHold, models.RiskMedium, 50},
		{"exactly minus five", -5.0, models.SentimentNegative, models.RecommendationHold, models.RiskMedium, 35},
		{"exactly five", 5.0, models.SentimentPositive, models.RecommendationHold, models.RiskMedium, 65},
		{"exactly ten", 10.0, models.SentimentPositive, models.RecommendationBuy, models.RiskMedium, 70},
		{"exactly minus ten", -10.0, models.SentimentNegative, models.RecommendationSell, models.RiskMedium, 30},
		{"just over ten", 10.01, models.SentimentPositive, models.RecommendationBuy, models.RiskHigh, 70.01},
		{"exactly minus two", -2.0, models.SentimentNeutral, models.RecommendationHold, models.RiskMedium, 50},
		{"flat", 0, models.SentimentNeutral, models.RecommendationHold, models.RiskLow, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Classify(quote("AAPL", 150, tt.cp, 50_000_000))
			require.NoError(t, err)
			assert.Equal(t, tt.sentiment, res.Sentiment)
			assert.Equal(t, tt.rec, res.Recommendation)
			assert.Equal(t, tt.risk, res.RiskLevel)
			assert.InDelta(t, tt.score, res.SentimentScore, 1e-9)
		})
	}
}

func TestClassify_DerivedMetricsForRally(t *testing.T) {
	res, err := NewAnalyzer().Classify(quote("AAPL", 150, 6.38, 50_000_000))
	require.NoError(t, err)

	m := res.DerivedMetrics
	assert.Equal(t, "$150.00", m.Price)
	assert.Equal(t, "+6.38%", m.Change)
	assert.Equal(t, "50.0M", m.Volume)
	assert.Equal(t, "$7.50B", m.MarketCap)
	assert.Equal(t, "20.0", m.PE)
	assert.Equal(t, "$7.50", m.EPS)
	assert.Equal(t, 7.5e9, m.MarketCapValue)
	assert.True(t, m.MarketCapEstimated)
	assert.True(t, m.PEEstimated)
	assert.True(t, m.EPSEstimated)
}

func TestClassify_SentimentScoreClamps(t *testing.T) {
	a := NewAnalyzer()

	up, err := a.Classify(quote("X", 10, 35, 1))
	require.NoError(t, err)
	assert.Equal(t, 90.0, up.SentimentScore)

	down, err := a.Classify(quote("X", 10, -40, 1))
	require.NoError(t, err)
	assert.Equal(t, 10.0, down.SentimentScore)
}

func TestSentimentScore_Bands(t *testing.T) {
	for cp := -50.0; cp <= 50.0; cp += 0.25 {
		s := SentimentScore(cp)
		assert.GreaterOrEqual(t, s, 10.0)
		assert.LessOrEqual(t, s, 90.0)
		switch SentimentFor(cp) {
		case models.SentimentPositive:
			assert.Greater(t, s, 60.0, "cp=%v", cp)
		case models.SentimentNegative:
			assert.Less(t, s, 40.0, "cp=%v", cp)
		default:
			assert.Equal(t, 50.0, s, "cp=%v", cp)
		}
	}
}

func TestClassify_RecommendationImpliesSentiment(t *testing.T) {
	a := NewAnalyzer()
	for cp := -20.0; cp <= 20.0; cp += 0.1 {
		res, err := a.Classify(quote("MSFT", 300, cp, 1000))
		require.NoError(t, err)
		if res.Recommendation == models.RecommendationBuy {
			assert.Equal(t, models.SentimentPositive, res.Sentiment, "cp=%v", cp)
		}
		if res.Recommendation == models.RecommendationSell {
			assert.Equal(t, models.SentimentNegative, res.Sentiment, "cp=%v", cp)
		}
		if res.RiskLevel == models.RiskHigh {
			assert.Greater(t, math.Abs(cp), HighRiskThreshold)
		}
	}
}

func TestClassify_EstimatedPEIsConstant(t *testing.T) {
	a := NewAnalyzer()
	for _, price := range []float64{0.0001, 0.37, 1, 19.99, 150, 4321.123, 65000, 1e9} {
		res, err := a.Classify(quote("PE", price, 1, 10))
		require.NoError(t, err)
		assert.Equal(t, 20.0, res.DerivedMetrics.PEValue, "price=%v", price)
		assert.Equal(t, "20.0", res.DerivedMetrics.PE)
	}
}

func TestClassify_SuppliedFundamentalsWin(t *testing.T) {
	q := quote("AAPL", 200, 1, 10)
	q.PERatio = 32.5
	q.MarketCap = 3.1e12

	res, err := NewAnalyzer().Classify(q)
	require.NoError(t, err)

	m := res.DerivedMetrics
	assert.Equal(t, "32.5", m.PE)
	assert.False(t, m.PEEstimated)
	assert.False(t, m.MarketCapEstimated)
	assert.Equal(t, "$3100.00B", m.MarketCap)
	assert.True(t, m.EPSEstimated)
	assert.InDelta(t, 200/32.5, m.EPSValue, 1e-9)
}

func TestClassify_Idempotent(t *testing.T) {
	a := NewAnalyzer()
	q := quote("NVDA", 912.44, -3.21, 42_000_000)
	q.FiftyTwoWeekHigh, q.FiftyTwoWeekLow = 974, 393.2

	first, err := a.Classify(q)
	require.NoError(t, err)
	second, err := a.Classify(q)
	require.NoError(t, err)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2))
	assert.Equal(t, "$393.20 - $974.00", first.DerivedMetrics.Range52W)
}

func TestClassify_InvalidInput(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name   string
		mutate func(q *models.RawQuote)
	}{
		{"NaN change", func(q *models.RawQuote) { q.ChangePercent = math.NaN() }},
		{"+Inf change", func(q *models.RawQuote) { q.ChangePercent = math.Inf(1) }},
		{"-Inf change", func(q *models.RawQuote) { q.ChangePercent = math.Inf(-1) }},
		{"NaN price", func(q *models.RawQuote) { q.Price = math.NaN() }},
		{"zero price", func(q *models.RawQuote) { q.Price = 0 }},
		{"negative price", func(q *models.RawQuote) { q.Price = -1 }},
		{"NaN absolute change", func(q *models.RawQuote) { q.ChangeAbsolute = math.NaN() }},
		{"negative volume", func(q *models.RawQuote) { q.Volume = -5 }},
		{"empty symbol", func(q *models.RawQuote) { q.Symbol = "" }},
		{"Inf market cap", func(q *models.RawQuote) { q.MarketCap = math.Inf(1) }},
		{"negative pe", func(q *models.RawQuote) { q.PERatio = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := quote("AAPL", 150, 1, 100)
			tt.mutate(&q)
			res, err := a.Classify(q)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
			assert.Equal(t, models.AnalysisResult{}, res)
		})
	}
}

func TestClassify_Narrative(t *testing.T) {
	res, err := NewAnalyzer().Classify(quote("AAPL", 150, 6.38, 50_000_000))
	require.NoError(t, err)

	n := res.Narrative
	assert.Equal(t, "Analysis for AAPL. Current price: $150.00 (+6.38%). Momentum is positive.", n.Summary)
	assert.Equal(t, "Current risk level: medium. Monitor price movements closely.", n.RiskNote)
	assert.Equal(t, "Consider entry points. Positive momentum detected.", n.Suggestion)
	assert.Equal(t, []string{
		"Price increases by 6.38%",
		"Trading volume: 50.0M",
		"Current market activity: bullish trend",
	}, n.Headlines)

	sell, err := NewAnalyzer().Classify(quote("AAPL", 150, -12, 1))
	require.NoError(t, err)
	assert.Equal(t, "Monitor for stabilization. Negative pressure observed.", sell.Narrative.Suggestion)
	assert.Equal(t, "Price decreases by 12.00%", sell.Narrative.Headlines[0])
}

func TestClassify_NarrativeFragments(t *testing.T) {
	a := NewAnalyzer()

	up, err := a.Classify(quote("AAPL", 150, 6.38, 50_000_000))
	require.NoError(t, err)
	n := up.Narrative
	assert.Equal(t, "Today's performance: gain of 9.57 points.", n.ProfitLoss)
	assert.Equal(t, "Current price-to-earnings ratio: 20.0.", n.Earnings)
	assert.InDelta(t, 62.76, n.Social.Twitter, 1e-9)
	assert.InDelta(t, 59.57, n.Social.Reddit, 1e-9)
	assert.InDelta(t, 65.95, n.Social.StockTwits, 1e-9)
	assert.Equal(t, []string{"#AAPL", "#Bullish", "#StockMarket", "#Trading"}, n.Trending)

	down, err := a.Classify(quote("AAPL", 150, -12, 1))
	require.NoError(t, err)
	n = down.Narrative
	assert.Equal(t, "Today's performance: loss of 18.00 points.", n.ProfitLoss)
	assert.Equal(t, 30.0, n.Social.Twitter)
	assert.InDelta(t, 32.0, n.Social.Reddit, 1e-9)
	assert.Equal(t, 30.0, n.Social.StockTwits)
	assert.Equal(t, "#Bearish", n.Trending[1])

	flat, err := a.Classify(quote("AAPL", 150, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "#Bullish", flat.Narrative.Trending[1])

	moon, err := a.Classify(quote("AAPL", 150, 40, 1))
	require.NoError(t, err)
	assert.Equal(t, models.SocialScores{Twitter: 90, Reddit: 90, StockTwits: 90}, moon.Narrative.Social)

	coin := quote("BTC", 65000, 3, 1)
	coin.AssetClass = models.AssetCrypto
	cr, err := a.Classify(coin)
	require.NoError(t, err)
	assert.Equal(t, "Current price-to-earnings ratio: N/A.", cr.Narrative.Earnings)
}

func TestClassify_DerivedOverflow(t *testing.T) {
	a := NewAnalyzer()

	rejected := []struct {
		name string
		q    models.RawQuote
	}{
		{"market cap overflows", models.RawQuote{Symbol: "BIG", Price: 1e300, Volume: 1e10}},
		{"pe from tiny eps overflows", models.RawQuote{Symbol: "EPS", Price: 1e10, EPS: 1e-300}},
		{"eps from tiny pe overflows", models.RawQuote{Symbol: "PE", Price: 1e10, PERatio: 1e-300}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			var res models.AnalysisResult
			var err error
			require.NotPanics(t, func() { res, err = a.Classify(tt.q) })
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidInput))
			assert.Equal(t, models.AnalysisResult{}, res)
		})
	}

	t.Run("subnormal price still classifies", func(t *testing.T) {
		var res models.AnalysisResult
		var err error
		require.NotPanics(t, func() { res, err = a.Classify(models.RawQuote{Symbol: "DUST", Price: 5e-324}) })
		require.NoError(t, err)
		assert.Equal(t, 20.0, res.DerivedMetrics.PEValue)
		assert.Equal(t, "$0.00", res.DerivedMetrics.Price)
	})

	t.Run("huge crypto value renders", func(t *testing.T) {
		q := models.RawQuote{Symbol: "WHALE", AssetClass: models.AssetCrypto, Price: 1e200, Volume: 1e9}
		res, err := a.Classify(q)
		require.NoError(t, err)
		assert.NotEmpty(t, res.DerivedMetrics.MarketCap)
	})
}

func TestFormatters_NonFiniteRenderNA(t *testing.T) {
	assert.Equal(t, "N/A", fixed(math.Inf(1), 2))
	assert.Equal(t, "N/A", compact(math.NaN()))
	assert.Equal(t, "N/A", equityFormatter{}.MarketCap(math.Inf(-1)))
	assert.Equal(t, "N/A", cryptoFormatter{}.Price(math.Inf(1)))
}

func TestClassify_UnknownAssetClassFallsBackToEquity(t *testing.T) {
	q := quote("AAPL", 150, 1, 1)
	q.AssetClass = ""
	res, err := NewAnalyzer().Classify(q)
	require.NoError(t, err)
	assert.Equal(t, models.AssetEquity, res.AssetClass)
}

func TestMomentumScore(t *testing.T) {
	assert.Equal(t, 50.0, MomentumScore(0))
	assert.Equal(t, 62.0, MomentumScore(6))
	assert.Equal(t, 90.0, MomentumScore(40))
	assert.Equal(t, 30.0, MomentumScore(-40))
}
