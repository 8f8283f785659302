package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"FinSight/internal/domain/models"
)

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "+6.38%", FormatChange(6.38))
	assert.Equal(t, "+0.00%", FormatChange(0))
	assert.Equal(t, "-12.00%", FormatChange(-12))
	assert.Equal(t, "-0.13%", FormatChange(-0.125))
}

func TestCryptoPrice(t *testing.T) {
	f := FormatterFor(models.AssetCrypto, "BTC")
	tests := []struct {
		price float64
		want  string
	}{
		{45231.456, "$45,231.46"},
		{45231.4, "$45,231.4"},
		{1200, "$1,200"},
		{2345.5, "$2,345.5"},
		{1000, "$1000.00"},
		{3.14159, "$3.14"},
		{0.123456, "$0.1235"},
		{1, "$1.0000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Price(tt.price), "price=%v", tt.price)
	}
	assert.Equal(t, "N/A", f.Ratio(20))
	assert.Equal(t, "$1.25T", f.MarketCap(1.25e12))
}

func TestForexPrice(t *testing.T) {
	assert.Equal(t, "1.0876", FormatterFor(models.AssetForex, "EUR/USD").Price(1.08756))
	assert.Equal(t, "151.43", FormatterFor(models.AssetForex, "USD/JPY").Price(151.4321))
	assert.Equal(t, "151.43", FormatterFor(models.AssetForex, "usdjpy").Price(151.4321))
	assert.Equal(t, "N/A", FormatterFor(models.AssetForex, "EUR/USD").MarketCap(1))
}

func TestEquityAndETFShareFormatting(t *testing.T) {
	for _, class := range []models.AssetClass{models.AssetEquity, models.AssetETF} {
		f := FormatterFor(class, "SPY")
		assert.Equal(t, "$512.30", f.Price(512.3))
		assert.Equal(t, "12.3M", f.Volume(12_345_678))
		assert.Equal(t, "$0.01B", f.MarketCap(12_345_678))
		assert.Equal(t, "$25.62", f.PerShare(25.615))
	}
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "999", compact(999))
	assert.Equal(t, "1.5K", compact(1500))
	assert.Equal(t, "28.50B", compact(28.5e9))
	assert.Equal(t, "3.20M", compact(3.2e6))
}
