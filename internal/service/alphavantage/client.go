// Package alphavantage reads GLOBAL_QUOTE snapshots from Alpha Vantage.
package alphavantage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"FinSight/internal/domain/models"
	"FinSight/internal/service/quotes"
	xhttp "FinSight/pkg/http"
)

const Name = "alphavantage"

// Client implements repository.QuoteSource for equities and ETFs.
type Client struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	pacer   *rate.Limiter
}

// New creates a client allowing at most perMinute requests per minute.
func New(baseURL, apiKey string, perMinute int, opts ...xhttp.ClientOption) *Client {
	if perMinute < 1 {
		perMinute = 5
	}
	return &Client{
		http:    xhttp.NewClient(opts...),
		baseURL: baseURL,
		apiKey:  apiKey,
		pacer:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (c *Client) Name() string { return Name }

type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	Note         string            `json:"Note"`
	Information  string            `json:"Information"`
	ErrorMessage string            `json:"Error Message"`
}

func (c *Client) Quote(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, error) {
	if class != models.AssetEquity && class != models.AssetETF {
		return models.RawQuote{}, fmt.Errorf("%s %s: %w", Name, class, models.ErrUnsupportedAsset)
	}

	// Wait fails at once when the next slot lies beyond the deadline.
	if err := c.pacer.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return models.RawQuote{}, quotes.MapTransportError(Name, ctx.Err())
		}
		return models.RawQuote{}, fmt.Errorf("%s: %w: client pacing: %v", Name, models.ErrRateLimited, err)
	}

	var resp globalQuoteResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL,
		QueryParams: map[string][]string{
			"function": {"GLOBAL_QUOTE"},
			"symbol":   {symbol},
			"apikey":   {c.apiKey},
		},
	}, &resp)
	if err != nil {
		return models.RawQuote{}, quotes.MapTransportError(Name, err)
	}

	switch {
	case resp.Note != "" || resp.Information != "":
		return models.RawQuote{}, fmt.Errorf("%s: %w", Name, models.ErrRateLimited)
	case resp.ErrorMessage != "":
		return models.RawQuote{}, fmt.Errorf("%s %s: %w", Name, symbol, models.ErrSymbolNotFound)
	case len(resp.GlobalQuote) == 0:
		return models.RawQuote{}, fmt.Errorf("%s %s: %w", Name, symbol, models.ErrSymbolNotFound)
	}

	return parseGlobalQuote(symbol, class, resp.GlobalQuote)
}

func parseGlobalQuote(symbol string, class models.AssetClass, gq map[string]string) (models.RawQuote, error) {
	q := models.RawQuote{Symbol: symbol, AssetClass: class}
	if s := gq["01. symbol"]; s != "" {
		q.Symbol = models.NormalizeSymbol(s)
	}

	var err error
	if q.Price, err = number(gq, "05. price", true); err != nil {
		return models.RawQuote{}, err
	}
	if q.ChangeAbsolute, err = number(gq, "09. change", false); err != nil {
		return models.RawQuote{}, err
	}
	if q.ChangePercent, err = number(gq, "10. change percent", true); err != nil {
		return models.RawQuote{}, err
	}
	if q.PreviousClose, err = number(gq, "08. previous close", false); err != nil {
		return models.RawQuote{}, err
	}
	vol, err := number(gq, "06. volume", false)
	if err != nil {
		return models.RawQuote{}, err
	}
	q.Volume = int64(vol)
	return q, nil
}

func number(gq map[string]string, key string, required bool) (float64, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(gq[key]), "%")
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s: %w: missing %q", Name, models.ErrInvalidInput, key)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %q is not a number: %q", Name, models.ErrInvalidInput, key, raw)
	}
	return v, nil
}
