package insight

import (
	"fmt"
	"math"

	"FinSight/internal/domain/models"
)

var summaryTone = map[models.Sentiment]string{
	models.SentimentPositive: "Momentum is positive.",
	models.SentimentNegative: "Momentum is negative.",
	models.SentimentNeutral:  "Momentum is neutral.",
}

var riskNotes = map[models.RiskLevel]string{
	models.RiskLow:    "Current risk level: low. Price movement is within its normal range.",
	models.RiskMedium: "Current risk level: medium. Monitor price movements closely.",
	models.RiskHigh:   "Current risk level: high. Expect elevated volatility.",
}

var suggestions = map[models.Recommendation]string{
	models.RecommendationBuy:  "Consider entry points. Positive momentum detected.",
	models.RecommendationSell: "Monitor for stabilization. Negative pressure observed.",
	models.RecommendationHold: "Hold position. Market shows neutral momentum.",
}

func buildNarrative(q models.RawQuote, res models.AnalysisResult, f Formatter) models.Narrative {
	cp := q.ChangePercent

	direction, trend, outcome, tag := "increases", "bullish", "gain", "#Bullish"
	if cp < 0 {
		direction, trend, outcome, tag = "decreases", "bearish", "loss", "#Bearish"
	}

	return models.Narrative{
		Summary: fmt.Sprintf("Analysis for %s. Current price: %s (%s). %s",
			q.Symbol, res.DerivedMetrics.Price, res.DerivedMetrics.Change, summaryTone[res.Sentiment]),
		RiskNote:   riskNotes[res.RiskLevel],
		Suggestion: suggestions[res.Recommendation],
		Headlines: []string{
			fmt.Sprintf("Price %s by %s%%", direction, fixed(math.Abs(cp), 2)),
			fmt.Sprintf("Trading volume: %s", f.Volume(q.Volume)),
			fmt.Sprintf("Current market activity: %s trend", trend),
		},
		ProfitLoss: fmt.Sprintf("Today's performance: %s of %s points.", outcome, fixed(math.Abs(q.ChangeAbsolute), 2)),
		Earnings:   fmt.Sprintf("Current price-to-earnings ratio: %s.", res.DerivedMetrics.PE),
		Social: models.SocialScores{
			Twitter:    clampScore(50 + cp*2),
			Reddit:     clampScore(50 + cp*1.5),
			StockTwits: clampScore(50 + cp*2.5),
		},
		Trending: []string{"#" + q.Symbol, tag, "#StockMarket", "#Trading"},
	}
}

func clampScore(v float64) float64 {
	return math.Max(30, math.Min(90, v))
}
