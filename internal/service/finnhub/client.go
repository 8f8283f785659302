// Package finnhub reads quote snapshots from the Finnhub REST API.
package finnhub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"FinSight/internal/domain/models"
	"FinSight/internal/service/quotes"
	xhttp "FinSight/pkg/http"
)

const Name = "finnhub"

// Client implements repository.QuoteSource for every asset class.
type Client struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	pacer   *rate.Limiter
}

// New creates a Finnhub quote client allowing perMinute requests per minute.
func New(baseURL, apiKey string, perMinute int, opts ...xhttp.ClientOption) *Client {
	if perMinute < 1 {
		perMinute = 60
	}
	return &Client{
		http:    xhttp.NewClient(opts...),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		pacer:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5),
	}
}

func (c *Client) Name() string { return Name }

type fhQuote struct {
	C  float64  `json:"c"`  // current price
	D  *float64 `json:"d"`  // change
	DP *float64 `json:"dp"` // change percent
	H  float64  `json:"h"`
	L  float64  `json:"l"`
	O  float64  `json:"o"`
	PC float64  `json:"pc"` // previous close
	T  int64    `json:"t"`
}

func (c *Client) Quote(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return models.RawQuote{}, quotes.MapTransportError(Name, ctx.Err())
		}
		return models.RawQuote{}, fmt.Errorf("%s: %w: client pacing: %v", Name, models.ErrRateLimited, err)
	}

	var resp fhQuote
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/quote",
		Headers:     map[string]string{"X-Finnhub-Token": c.apiKey},
		QueryParams: map[string][]string{"symbol": {ProviderSymbol(symbol, class)}},
	}, &resp)
	if err != nil {
		return models.RawQuote{}, quotes.MapTransportError(Name, err)
	}

	if resp.C == 0 && resp.T == 0 {
		return models.RawQuote{}, fmt.Errorf("%s %s: %w", Name, symbol, models.ErrSymbolNotFound)
	}

	q := models.RawQuote{
		Symbol:        symbol,
		AssetClass:    class,
		Price:         resp.C,
		PreviousClose: resp.PC,
	}
	switch {
	case resp.DP != nil:
		q.ChangePercent = *resp.DP
	case resp.PC > 0:
		q.ChangePercent = (resp.C - resp.PC) / resp.PC * 100
	default:
		return models.RawQuote{}, fmt.Errorf("%s %s: %w: no change percent", Name, symbol, models.ErrInvalidInput)
	}
	if resp.D != nil {
		q.ChangeAbsolute = *resp.D
	} else {
		q.ChangeAbsolute = resp.C - resp.PC
	}
	return q, nil
}

// ProviderSymbol maps a display symbol to Finnhub's exchange-qualified form.
// Already qualified symbols (containing ':') pass through.
func ProviderSymbol(symbol string, class models.AssetClass) string {
	s := models.NormalizeSymbol(symbol)
	if strings.Contains(s, ":") {
		return s
	}
	switch class {
	case models.AssetCrypto:
		for _, suffix := range []string{"-USDT", "/USDT", "-USD", "/USD", "USDT"} {
			s = strings.TrimSuffix(s, suffix)
		}
		return "BINANCE:" + s + "USDT"
	case models.AssetForex:
		base, quote, ok := splitPair(s)
		if !ok {
			return s
		}
		return "OANDA:" + base + "_" + quote
	default:
		return s
	}
}

func splitPair(s string) (string, string, bool) {
	for _, sep := range []string{"/", "-", "_"} {
		if b, q, ok := strings.Cut(s, sep); ok && b != "" && q != "" {
			return b, q, true
		}
	}
	if len(s) == 6 {
		return s[:3], s[3:], true
	}
	return "", "", false
}
