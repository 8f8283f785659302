package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSight/internal/domain/models"
	"FinSight/internal/repository"
	"FinSight/internal/service/ratelimit"
	"FinSight/internal/services/insight"
	"FinSight/internal/services/synthetic"
	"FinSight/internal/usecase"
	"FinSight/pkg/metrics"
)

type stubFetcher struct{}

func (stubFetcher) QuoteFrom(_ context.Context, symbol string, class models.AssetClass) (models.RawQuote, string, error) {
	switch symbol {
	case "ZZZ":
		return models.RawQuote{}, "", models.ErrSymbolNotFound
	case "DOWN":
		return models.RawQuote{}, "", models.ErrUpstreamUnavailable
	}
	return models.RawQuote{Symbol: symbol, AssetClass: class, Price: 150, ChangePercent: 6, Volume: 50_000_000}, "finnhub", nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recordingSink struct {
	store *repository.SQLiteInsightStore
}

func (s recordingSink) Submit(ctx context.Context, rec *models.InsightRecord) error {
	return s.store.Save(ctx, rec)
}

func newTestServer(t *testing.T, withHistory bool, opts ...HandlerOption) *echo.Echo {
	t.Helper()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	var (
		sink  usecase.RecordSink
		store *repository.SQLiteInsightStore
	)
	if withHistory {
		var err error
		store, err = repository.NewSQLiteInsightStore(":memory:", nil)
		require.NoError(t, err)
		require.NoError(t, store.Init(context.Background()))
		t.Cleanup(func() { _ = store.Close() })
		sink = recordingSink{store: store}
	}

	uc := usecase.NewInsightUseCase(stubFetcher{}, insight.NewAnalyzer(), synthetic.New(7), nil, sink, m, nil,
		usecase.InsightConfig{FetchTimeout: time.Second, RetryDelay: time.Millisecond, BatchLimit: 5, Workers: 2})
	var hist *usecase.HistoryUseCase
	if withHistory {
		hist = usecase.NewHistoryUseCase(store)
	} else {
		hist = usecase.NewHistoryUseCase(nil)
	}

	e := echo.New()
	NewInsightHandler(uc, hist, nil, opts...).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestInsight_Live(t *testing.T) {
	e := newTestServer(t, false)
	rec, env := do(t, e, http.MethodGet, "/api/insight?symbol=aapl&asset_class=equity", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ins models.Insight
	require.NoError(t, json.Unmarshal(env.Data, &ins))
	assert.Equal(t, "AAPL", ins.Result.Symbol)
	assert.Equal(t, models.SourceLive, ins.Source)
	assert.Equal(t, models.RecommendationBuy, ins.Result.Recommendation)
	assert.Equal(t, "$150.00", ins.Result.DerivedMetrics.Price)
	assert.Equal(t, "private, max-age=15", rec.Header().Get(echo.HeaderCacheControl))
}

func TestInsight_Simulated(t *testing.T) {
	e := newTestServer(t, false)
	rec, env := do(t, e, http.MethodGet, "/api/insight?symbol=DOWN", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ins models.Insight
	require.NoError(t, json.Unmarshal(env.Data, &ins))
	assert.Equal(t, models.SourceSimulated, ins.Source)
	assert.Equal(t, models.LabelSimulated, ins.Label)
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
}

func TestInsight_Errors(t *testing.T) {
	e := newTestServer(t, false)

	rec, _ := do(t, e, http.MethodGet, "/api/insight", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/insight?symbol=AAPL&asset_class=bonds", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/insight?symbol=%24%24%24", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/insight?symbol=ZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestClassify(t *testing.T) {
	e := newTestServer(t, false)

	rec, env := do(t, e, http.MethodPost, "/api/insight/classify",
		`{"symbol":"BTC","assetClass":"crypto","price":65000,"changePercent":-12,"volume":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res models.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, models.RecommendationSell, res.Recommendation)
	assert.Equal(t, models.RiskHigh, res.RiskLevel)
	assert.Equal(t, "N/A", res.DerivedMetrics.PE)

	rec, _ = do(t, e, http.MethodPost, "/api/insight/classify", `{"symbol":"AAPL","changePercent":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/insight/classify", `{"symbol":"AAPL","price":0,"changePercent":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Finite inputs whose market cap overflows a float64.
	rec, _ = do(t, e, http.MethodPost, "/api/insight/classify", `{"symbol":"BIG","price":1e300,"changePercent":1,"volume":10000000000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBatch(t *testing.T) {
	e := newTestServer(t, false)

	rec, env := do(t, e, http.MethodGet, "/api/insight/batch?symbols=aapl,msft,ZZZ", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batch models.InsightBatch
	require.NoError(t, json.Unmarshal(env.Data, &batch))
	assert.Len(t, batch.Insights, 2)
	assert.Contains(t, batch.Errors, "ZZZ")

	rec, _ = do(t, e, http.MethodGet, "/api/insight/batch?symbols=A,B,C,D,E,F", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory(t *testing.T) {
	disabled := newTestServer(t, false)
	rec, _ := do(t, disabled, http.MethodGet, "/api/insight/history?symbol=AAPL", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	e := newTestServer(t, true)
	rec, _ = do(t, e, http.MethodGet, "/api/insight?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/insight/history?symbol=aapl&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.InsightRecord `json:"rows"`
		Total int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, "finnhub", list.Rows[0].Provider)

	rec, _ = do(t, e, http.MethodGet, "/api/insight/history?symbol=AAPL&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/insight/history?symbol=AAPL&limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	e := newTestServer(t, false, WithRateLimiter(ratelimit.New(1, 0.01, time.Minute)))

	rec, _ := do(t, e, http.MethodGet, "/api/insight?symbol=AAPL", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, e, http.MethodGet, "/api/insight?symbol=AAPL", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("Retry-After"))
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, false,
		WithHealthCheck("cache", func(context.Context) error { return nil }),
		WithHealthCheck("store", func(context.Context) error { return errors.New("locked") }),
	)
	rec, env := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, string(env.Data), "locked")
}

func TestStream(t *testing.T) {
	e := newTestServer(t, false, WithStreamLimits(StreamLimits{MinInterval: 20 * time.Millisecond, MaxInterval: time.Second, MaxSymbols: 3}))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/insights?symbols=AAPL,MSFT&interval=20ms"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var frame StreamFrame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, "insights", frame.Type)
		require.NotNil(t, frame.Data)
		assert.Len(t, frame.Data.Insights, 2)
	}
}

func TestStream_RejectsTooManySymbols(t *testing.T) {
	e := newTestServer(t, false, WithStreamLimits(StreamLimits{MaxSymbols: 1}))
	rec, _ := do(t, e, http.MethodGet, "/ws/insights?symbols=AAPL,MSFT", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
