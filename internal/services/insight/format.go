package insight

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"FinSight/internal/domain/models"
)

// Formatter renders numbers for one asset class.
type Formatter interface {
	Price(v float64) string
	Volume(v int64) string
	MarketCap(v float64) string
	Ratio(v float64) string
	PerShare(v float64) string
}

// FormatterFor picks the strategy for class. Forex needs the pair to decide
// pip precision.
func FormatterFor(class models.AssetClass, symbol string) Formatter {
	switch class {
	case models.AssetCrypto:
		return cryptoFormatter{}
	case models.AssetForex:
		return forexFormatter{jpy: strings.Contains(strings.ToUpper(symbol), "JPY")}
	default:
		return equityFormatter{}
	}
}

// FormatChange renders a percentage move with an explicit sign, e.g. "+6.38%".
func FormatChange(cp float64) string {
	s := fixed(cp, 2)
	if cp >= 0 {
		s = "+" + s
	}
	return s + "%"
}

// equityFormatter also serves ETFs.
type equityFormatter struct{}

func (equityFormatter) Price(v float64) string { return "$" + fixed(v, 2) }

func (equityFormatter) Volume(v int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(1_000_000)).StringFixed(1) + "M"
}

func (equityFormatter) MarketCap(v float64) string {
	if !finite(v) {
		return notAvailable
	}
	return "$" + decimal.NewFromFloat(v).Div(decimal.NewFromInt(1_000_000_000)).StringFixed(2) + "B"
}

func (equityFormatter) Ratio(v float64) string    { return fixed(v, 1) }
func (equityFormatter) PerShare(v float64) string { return "$" + fixed(v, 2) }

type cryptoFormatter struct{}

func (cryptoFormatter) Price(v float64) string {
	switch {
	case !finite(v):
		return notAvailable
	case v > 1000:
		return "$" + humanize.CommafWithDigits(round(v, 2), 2)
	case v > 1:
		return "$" + fixed(v, 2)
	default:
		return "$" + fixed(v, 4)
	}
}

func (cryptoFormatter) Volume(v int64) string      { return compact(float64(v)) }
func (cryptoFormatter) MarketCap(v float64) string { return "$" + compact(v) }
func (cryptoFormatter) Ratio(float64) string       { return notAvailable }
func (cryptoFormatter) PerShare(float64) string    { return notAvailable }

type forexFormatter struct {
	jpy bool
}

func (f forexFormatter) Price(v float64) string {
	if f.jpy {
		return fixed(v, 2)
	}
	return fixed(v, 4)
}

func (forexFormatter) Volume(v int64) string    { return compact(float64(v)) }
func (forexFormatter) MarketCap(float64) string { return notAvailable }
func (forexFormatter) Ratio(float64) string     { return notAvailable }
func (forexFormatter) PerShare(float64) string  { return notAvailable }

const notAvailable = "N/A"

// fixed renders v with places decimals. Non-finite values render as N/A
// because decimal cannot represent them.
func fixed(v float64, places int32) string {
	if !finite(v) {
		return notAvailable
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// compact scales v to T/B/M/K with two decimals above a million.
func compact(v float64) string {
	if !finite(v) {
		return notAvailable
	}
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 1e12:
		return d.Div(decimal.NewFromFloat(1e12)).StringFixed(2) + "T"
	case v >= 1e9:
		return d.Div(decimal.NewFromFloat(1e9)).StringFixed(2) + "B"
	case v >= 1e6:
		return d.Div(decimal.NewFromFloat(1e6)).StringFixed(2) + "M"
	case v >= 1e3:
		return d.Div(decimal.NewFromFloat(1e3)).StringFixed(1) + "K"
	default:
		return d.StringFixed(0)
	}
}
