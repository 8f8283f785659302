package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"FinSight/internal/domain/models"
	"FinSight/internal/service/metrics"
	"FinSight/internal/service/ratelimit"
	"FinSight/internal/usecase"
	xhttp "FinSight/pkg/http"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/util"
)

var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.:/_=^-]{0,19}$`)

func init() {
	xhttp.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
}

// HealthCheck is one named dependency probe for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type StreamLimits struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxSymbols  int
}

// InsightHandler serves the insight HTTP and websocket API.
type InsightHandler struct {
	insights *usecase.InsightUseCase
	history  *usecase.HistoryUseCase
	rl       *ratelimit.Limiter
	limits   StreamLimits
	checks   []HealthCheck
	l        *applogger.Logger
}

type HandlerOption func(*InsightHandler)

// WithRateLimiter enables per-client rate limiting on /api and /ws.
func WithRateLimiter(rl *ratelimit.Limiter) HandlerOption {
	return func(h *InsightHandler) { h.rl = rl }
}

func WithStreamLimits(s StreamLimits) HandlerOption {
	return func(h *InsightHandler) {
		if s.MinInterval > 0 {
			h.limits.MinInterval = s.MinInterval
		}
		if s.MaxInterval >= h.limits.MinInterval {
			h.limits.MaxInterval = s.MaxInterval
		}
		if s.MaxSymbols > 0 {
			h.limits.MaxSymbols = s.MaxSymbols
		}
	}
}

func WithHealthCheck(name string, check func(ctx context.Context) error) HandlerOption {
	return func(h *InsightHandler) {
		if check != nil {
			h.checks = append(h.checks, HealthCheck{Name: name, Check: check})
		}
	}
}

func NewInsightHandler(insights *usecase.InsightUseCase, history *usecase.HistoryUseCase, l *applogger.Logger, opts ...HandlerOption) *InsightHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	h := &InsightHandler{
		insights: insights,
		history:  history,
		limits:   StreamLimits{MinInterval: 5 * time.Second, MaxInterval: 5 * time.Minute, MaxSymbols: 10},
		l:        l.With("insight-api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *InsightHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/insight", h.rateLimit)
	g.GET("", h.Insight)
	g.POST("/classify", h.Classify)
	g.GET("/batch", h.Batch)
	g.GET("/history", h.History)

	e.GET("/ws/insights", h.Stream, h.rateLimit)
}

func (h *InsightHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl != nil && !h.rl.Allow(c.RealIP()) {
			metrics.EndpointErrors.WithLabelValues(c.Path(), "ERR_RATE_LIMITED").Inc()
			h.l.Warn("rate limited", applogger.String("remote", c.RealIP()), applogger.String("path", c.Path()))
			return xhttp.TooManyRequestsResponse(c, h.rl.RetryAfter())
		}
		return next(c)
	}
}

func observe(endpoint string, start time.Time) {
	metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *InsightHandler) Insight(c echo.Context) error {
	const endpoint = "insight"
	defer observe(endpoint, time.Now())

	req := &models.InsightRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ins, err := h.insights.Analyze(c.Request().Context(), usecase.AnalyzeParams{
		Symbol:     req.Symbol,
		AssetClass: models.AssetClass(req.AssetClass),
		Refresh:    req.Refresh,
	})
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if ins.IsLive() {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	} else {
		c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	}
	return xhttp.SuccessResponse(c, ins)
}

func (h *InsightHandler) Classify(c echo.Context) error {
	const endpoint = "classify"
	defer observe(endpoint, time.Now())

	req := &models.ClassifyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.insights.Classify(req.ToQuote())
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *InsightHandler) Batch(c echo.Context) error {
	const endpoint = "batch"
	defer observe(endpoint, time.Now())

	req := &models.BatchInsightRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	batch, err := h.insights.AnalyzeMany(c.Request().Context(), usecase.BatchParams{
		Symbols:    util.SplitSymbols(req.Symbols),
		AssetClass: models.AssetClass(req.AssetClass),
		Refresh:    req.Refresh,
	})
	if errors.Is(err, models.ErrInvalidInput) {
		metrics.EndpointErrors.WithLabelValues(endpoint, "ERR_BAD_REQUEST").Inc()
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code: "ERR_BAD_REQUEST", Field: "symbols", Message: err.Error(),
		}})
	}
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, batch)
}

func (h *InsightHandler) History(c echo.Context) error {
	const endpoint = "history"
	defer observe(endpoint, time.Now())

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.HistoryParams{Symbol: req.Symbol, Limit: req.Limit}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"from", req.From, &p.From}, {"to", req.To, &p.To}} {
		if f.raw == "" {
			continue
		}
		t, ok := util.ParseTime(f.raw)
		if !ok {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code: "ERR_TIME", Field: f.name, Message: f.name + " must be RFC3339, a date or unix seconds",
			}})
		}
		*f.dst = t
	}

	page, err := h.history.Recent(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.ListResponse(c, page.Records, int64(len(page.Records)), &xhttp.TimeRange{From: &page.From, To: &page.To})
}

func (h *InsightHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, map[string]any{"checks": checks})
}

// fail maps a domain error to its HTTP response.
func (h *InsightHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.l.Error("request failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	} else {
		h.l.Debug("request rejected", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrSymbolNotFound):
		return xhttp.NotFoundError("symbol not found").WithError(err)
	case errors.Is(err, models.ErrHistoryDisabled):
		return xhttp.NotFoundError("history is not enabled").WithError(err)
	case errors.Is(err, models.ErrRateLimited):
		return xhttp.UnavailableError("market data provider is rate limiting requests").WithError(err)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return xhttp.UnavailableError("market data is temporarily unavailable").WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.GatewayTimeoutError("request timed out").WithError(err)
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
}
