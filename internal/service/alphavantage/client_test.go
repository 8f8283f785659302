package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

const okBody = `{
  "Global Quote": {
    "01. symbol": "IBM",
    "02. open": "148.00",
    "05. price": "150.0000",
    "06. volume": "50000000",
    "08. previous close": "141.0000",
    "09. change": "9.0000",
    "10. change percent": "6.3830%"
  }
}`

func TestQuote_ParsesGlobalQuote(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK, okBody)
	c := New(srv.URL, "demo-key", 600)

	q, err := c.Quote(context.Background(), "IBM", models.AssetEquity)
	require.NoError(t, err)

	assert.Equal(t, "IBM", q.Symbol)
	assert.Equal(t, 150.0, q.Price)
	assert.Equal(t, 9.0, q.ChangeAbsolute)
	assert.InDelta(t, 6.383, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(50_000_000), q.Volume)
	assert.Equal(t, 141.0, q.PreviousClose)

	require.Len(t, *seen, 1)
	assert.Contains(t, (*seen)[0], "function=GLOBAL_QUOTE")
	assert.Contains(t, (*seen)[0], "apikey=demo-key")
}

func TestQuote_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"note means rate limit", http.StatusOK, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, models.ErrRateLimited},
		{"information means rate limit", http.StatusOK, `{"Information": "daily limit reached"}`, models.ErrRateLimited},
		{"error message means unknown symbol", http.StatusOK, `{"Error Message": "Invalid API call."}`, models.ErrSymbolNotFound},
		{"empty quote means unknown symbol", http.StatusOK, `{"Global Quote": {}}`, models.ErrSymbolNotFound},
		{"http 429", http.StatusTooManyRequests, `slow down`, models.ErrRateLimited},
		{"http 503", http.StatusServiceUnavailable, `down`, models.ErrUpstreamUnavailable},
		{"garbage body", http.StatusOK, `<html>`, models.ErrUpstreamUnavailable},
		{"bad number", http.StatusOK, `{"Global Quote": {"05. price": "abc", "10. change percent": "1%"}}`, models.ErrInvalidInput},
		{"missing price", http.StatusOK, `{"Global Quote": {"10. change percent": "1%"}}`, models.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			c := New(srv.URL, "k", 600)
			_, err := c.Quote(context.Background(), "IBM", models.AssetEquity)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestQuote_UnsupportedAssetClass(t *testing.T) {
	srv, seen := newServer(t, http.StatusOK, okBody)
	c := New(srv.URL, "k", 600)

	_, err := c.Quote(context.Background(), "BTC", models.AssetCrypto)
	assert.True(t, errors.Is(err, models.ErrUnsupportedAsset))
	assert.Empty(t, *seen)
}

func TestQuote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "k", 600).Quote(context.Background(), "IBM", models.AssetETF)
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
}
