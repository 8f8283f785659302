package insight

import (
	"github.com/shopspring/decimal"

	"FinSight/internal/domain/models"
)

// EstimatedPE is price / (price * epsYield). The price cancels, so the
// estimate is 1/epsYield for every positive price. Dividing literally would
// overflow for subnormal prices.
// TODO: replace with a trailing-EPS lookup once a fundamentals provider is wired.
func EstimatedPE(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return round(1/epsYield, 1)
}

// EstimatedEPS assumes a fixed earnings yield on the price.
func EstimatedEPS(price float64) float64 {
	return price * epsYield
}

// EstimatedMarketCap approximates market cap as traded value.
func EstimatedMarketCap(price float64, volume int64) float64 {
	return float64(volume) * price
}

// deriveMetrics fails with models.ErrInvalidInput when a finite quote still
// yields a value that does not fit a float64, e.g. volume*price or price/eps.
func deriveMetrics(q models.RawQuote, f Formatter) (models.DerivedMetrics, error) {
	m := models.DerivedMetrics{
		Price:  f.Price(q.Price),
		Change: FormatChange(q.ChangePercent),
		Volume: f.Volume(q.Volume),
	}

	if q.MarketCap > 0 {
		m.MarketCapValue = q.MarketCap
	} else {
		m.MarketCapValue = EstimatedMarketCap(q.Price, q.Volume)
		m.MarketCapEstimated = true
	}

	switch {
	case q.PERatio > 0 && q.EPS > 0:
		m.PEValue, m.EPSValue = q.PERatio, q.EPS
	case q.PERatio > 0:
		m.PEValue = q.PERatio
		m.EPSValue = q.Price / q.PERatio
		m.EPSEstimated = true
	case q.EPS > 0:
		m.EPSValue = q.EPS
		m.PEValue = round(q.Price/q.EPS, 1)
		m.PEEstimated = true
	default:
		m.PEValue = EstimatedPE(q.Price)
		m.EPSValue = EstimatedEPS(q.Price)
		m.PEEstimated = true
		m.EPSEstimated = true
	}

	switch {
	case !finite(m.MarketCapValue):
		return models.DerivedMetrics{}, invalid("marketCap", "overflows when derived from price and volume")
	case !finite(m.PEValue):
		return models.DerivedMetrics{}, invalid("peRatio", "overflows when derived from price and eps")
	case !finite(m.EPSValue):
		return models.DerivedMetrics{}, invalid("eps", "overflows when derived from price and peRatio")
	}

	m.MarketCap = f.MarketCap(m.MarketCapValue)
	m.PE = f.Ratio(m.PEValue)
	m.EPS = f.PerShare(m.EPSValue)

	if q.FiftyTwoWeekLow > 0 && q.FiftyTwoWeekHigh > 0 {
		m.Range52W = f.Price(q.FiftyTwoWeekLow) + " - " + f.Price(q.FiftyTwoWeekHigh)
	}
	return m, nil
}

func round(v float64, places int32) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
