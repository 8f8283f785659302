// Package synthetic produces demonstration quotes for when no provider can
// answer. Values are stable per symbol for the life of a Generator and are
// never real market data.
package synthetic

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"FinSight/internal/domain/models"
)

type Generator struct {
	session int64
}

// New returns a generator keyed on session. A zero session is replaced by the
// current time so separate processes do not show identical numbers.
func New(session int64) *Generator {
	if session == 0 {
		session = time.Now().UnixNano()
	}
	return &Generator{session: session}
}

// BasePrice is the deterministic anchor price for symbol.
func BasePrice(symbol string, class models.AssetClass) float64 {
	anchor := float64(150 + (len(symbol)*17)%300)
	switch class {
	case models.AssetCrypto:
		return anchor * 100
	case models.AssetForex:
		p := 1 + float64((len(symbol)*17)%300)/1000
		if strings.Contains(symbol, "JPY") {
			p *= 100
		}
		return p
	default:
		return anchor
	}
}

func (g *Generator) Quote(symbol string, class models.AssetClass) models.RawQuote {
	symbol = models.NormalizeSymbol(symbol)
	if !models.IsValidAssetClass(class) {
		class = models.DefaultAssetClass()
	}

	r := rand.New(rand.NewSource(g.seedFor(symbol, class)))
	base := BasePrice(symbol, class)
	cp := round2(r.Float64()*8 - 4)
	volume := int64((5 + r.Float64()*8) * 1e6)
	pe := round2(15 + r.Float64()*20)
	eps := round2(2 + r.Float64()*5)

	q := models.RawQuote{
		Symbol:         symbol,
		AssetClass:     class,
		Price:          base,
		ChangePercent:  cp,
		ChangeAbsolute: round2(base * cp / 100),
		Volume:         volume,
		PreviousClose:  round2(base - base*cp/100),
	}

	switch class {
	case models.AssetEquity, models.AssetETF:
		q.PERatio = pe
		q.EPS = eps
		q.MarketCap = base * 1.5e9
	case models.AssetCrypto:
		q.MarketCap = base * float64(volume) * 10
	}
	return q
}

func (g *Generator) seedFor(symbol string, class models.AssetClass) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(string(class) + ":" + symbol))
	return int64(h.Sum64()) ^ g.session
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
