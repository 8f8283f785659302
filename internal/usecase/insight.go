package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinSight/internal/domain/models"
	drepo "FinSight/internal/domain/repository"
	dsvc "FinSight/internal/domain/service"
	"FinSight/internal/middleware"
	"FinSight/internal/service/quotes"
	"FinSight/pkg/cache"
	applogger "FinSight/pkg/logger"
)

// QuoteFetcher returns a quote and the name of the provider that served it.
type QuoteFetcher interface {
	QuoteFrom(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, string, error)
}

// RecordSink accepts history records of live insights.
type RecordSink interface {
	Submit(ctx context.Context, rec *models.InsightRecord) error
}

const (
	FallbackRateLimited = "rate_limited"
	FallbackUnavailable = "upstream_unavailable"
)

type InsightConfig struct {
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	RetryDelay   time.Duration
	BatchLimit   int
	Workers      int
	BatchTimeout time.Duration
}

func (c *InsightConfig) withDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 20
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 2*c.FetchTimeout + c.RetryDelay + time.Second
	}
}

// InsightUseCase turns a symbol into a labelled insight: cache, provider
// fetch with one retry, synthetic fallback, classification, history.
type InsightUseCase struct {
	source   QuoteFetcher
	analyzer dsvc.QuoteAnalyzer
	synth    dsvc.SyntheticQuoter // nil disables the fallback
	cache    cache.Service        // nil disables caching
	sink     RecordSink           // nil disables history
	metrics  drepo.Metrics
	l        *applogger.Logger
	cfg      InsightConfig
	now      func() time.Time
}

func NewInsightUseCase(
	source QuoteFetcher,
	analyzer dsvc.QuoteAnalyzer,
	synth dsvc.SyntheticQuoter,
	c cache.Service,
	sink RecordSink,
	metrics drepo.Metrics,
	l *applogger.Logger,
	cfg InsightConfig,
) *InsightUseCase {
	cfg.withDefaults()
	if l == nil {
		l = applogger.Nop()
	}
	return &InsightUseCase{
		source:   source,
		analyzer: analyzer,
		synth:    synth,
		cache:    c,
		sink:     sink,
		metrics:  metrics,
		l:        l.With("insight"),
		cfg:      cfg,
		now:      time.Now,
	}
}

type AnalyzeParams struct {
	Symbol     string
	AssetClass models.AssetClass
	Refresh    bool // skip the cache read
}

type BatchParams struct {
	Symbols    []string
	AssetClass models.AssetClass
	Refresh    bool
}

// CacheKey is the cache key of one symbol's insight.
func CacheKey(class models.AssetClass, symbol string) string {
	return cache.GenerateKeyWithParams("insight", string(class), symbol)
}

func (uc *InsightUseCase) Analyze(ctx context.Context, p AnalyzeParams) (*models.Insight, error) {
	start := time.Now()
	symbol := models.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrInvalidInput)
	}
	class := p.AssetClass
	if class == "" {
		class = models.DefaultAssetClass()
	}
	if !models.IsValidAssetClass(class) {
		return nil, fmt.Errorf("%w: unknown asset class %q", models.ErrInvalidInput, class)
	}
	key := CacheKey(class, symbol)

	if !p.Refresh {
		if ins, ok := uc.cached(ctx, key); ok {
			return ins, nil
		}
	}

	q, provider, err := uc.fetch(ctx, symbol, class)
	if err != nil {
		return uc.fallback(ctx, symbol, class, err)
	}
	q.Symbol, q.AssetClass = symbol, class

	res, err := uc.analyzer.Classify(q)
	if err != nil {
		uc.metrics.RecordError("classify")
		uc.l.Warn("provider returned unusable quote",
			applogger.String("symbol", symbol),
			applogger.String("provider", provider),
			applogger.Error(err))
		return nil, err
	}

	now := uc.now().UTC()
	ins := models.NewLiveInsight(res, provider, now)
	uc.store(ctx, key, ins)
	uc.record(ctx, models.NewInsightRecord(q, res, provider, now))

	uc.metrics.RecordInsight(string(models.SourceLive), string(class))
	uc.metrics.RecordLastPrice(symbol, q.Price)
	uc.metrics.RecordLatency("analyze", time.Since(start).Seconds())
	return ins, nil
}

// Classify runs the analyzer on a caller-supplied quote. No I/O.
func (uc *InsightUseCase) Classify(q models.RawQuote) (models.AnalysisResult, error) {
	return uc.analyzer.Classify(q)
}

// AnalyzeMany analyses several symbols concurrently. Per-symbol failures are
// reported in Errors; the batch itself only fails on invalid input.
func (uc *InsightUseCase) AnalyzeMany(ctx context.Context, p BatchParams) (*models.InsightBatch, error) {
	symbols := dedupe(p.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", models.ErrInvalidInput)
	}
	if len(symbols) > uc.cfg.BatchLimit {
		return nil, fmt.Errorf("%w: %d symbols exceeds the limit of %d", models.ErrInvalidInput, len(symbols), uc.cfg.BatchLimit)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.BatchTimeout)
	defer cancel()

	results := make([]*models.Insight, len(symbols))
	errs := make(map[string]string)
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, uc.cfg.Workers)
	)
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs[sym] = ctx.Err().Error()
				mu.Unlock()
				return
			}
			ins, err := uc.Analyze(ctx, AnalyzeParams{Symbol: sym, AssetClass: p.AssetClass, Refresh: p.Refresh})
			if err != nil {
				mu.Lock()
				errs[sym] = err.Error()
				mu.Unlock()
				return
			}
			results[i] = ins
		}(i, sym)
	}
	wg.Wait()

	out := &models.InsightBatch{Insights: make([]*models.Insight, 0, len(symbols))}
	for _, ins := range results {
		if ins != nil {
			out.Insights = append(out.Insights, ins)
		}
	}
	if len(errs) > 0 {
		out.Errors = errs
	}
	return out, nil
}

func (uc *InsightUseCase) cached(ctx context.Context, key string) (*models.Insight, bool) {
	if uc.cache == nil {
		return nil, false
	}
	var ins models.Insight
	if err := uc.cache.Get(ctx, key, &ins); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.metrics.RecordError("cache_get")
			uc.l.Warn("cache read failed", applogger.String("key", key), applogger.Error(err))
		}
		uc.metrics.RecordCache("miss")
		return nil, false
	}
	uc.metrics.RecordCache("hit")
	ins.Cached = true
	return &ins, true
}

func (uc *InsightUseCase) store(ctx context.Context, key string, ins *models.Insight) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, key, ins, uc.cfg.CacheTTL); err != nil {
		uc.metrics.RecordError("cache_set")
		uc.l.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (uc *InsightUseCase) record(ctx context.Context, rec *models.InsightRecord) {
	if uc.sink == nil {
		return
	}
	err := uc.sink.Submit(ctx, rec)
	switch {
	case err == nil, errors.Is(err, middleware.ErrThrottled):
	default:
		uc.l.Warn("history record deferred", applogger.String("symbol", rec.Symbol), applogger.Error(err))
	}
}

// fetch asks the providers once and retries once after RetryDelay when the
// failure may be transient. Rate limits are not retried.
func (uc *InsightUseCase) fetch(ctx context.Context, symbol string, class models.AssetClass) (models.RawQuote, string, error) {
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, uc.cfg.FetchTimeout)
		q, provider, err := uc.source.QuoteFrom(actx, symbol, class)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return q, provider, nil
		}
		if ctx.Err() != nil {
			return models.RawQuote{}, "", ctx.Err()
		}
		if timedOut && !errors.Is(err, models.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: attempt timed out: %w", models.ErrUpstreamUnavailable, err)
		}

		retry := attempt == 1 &&
			quotes.IsTransient(err) &&
			!errors.Is(err, models.ErrRateLimited) &&
			!errors.Is(err, models.ErrUnsupportedAsset)
		if !retry {
			return models.RawQuote{}, "", err
		}
		uc.l.Debug("retrying quote fetch", applogger.String("symbol", symbol), applogger.Error(err))
		t := time.NewTimer(uc.cfg.RetryDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return models.RawQuote{}, "", ctx.Err()
		}
	}
}

// fallback decides what a failed fetch turns into: a labelled simulated
// insight, or the error itself.
func (uc *InsightUseCase) fallback(ctx context.Context, symbol string, class models.AssetClass, cause error) (*models.Insight, error) {
	var reason string
	switch {
	case errors.Is(cause, models.ErrRateLimited):
		reason = FallbackRateLimited
	case errors.Is(cause, models.ErrUpstreamUnavailable):
		reason = FallbackUnavailable
	default:
		if !errors.Is(cause, context.Canceled) {
			uc.metrics.RecordError("fetch")
		}
		return nil, cause
	}
	uc.metrics.RecordError(reason)

	if uc.synth == nil || ctx.Err() != nil {
		if errors.Is(cause, models.ErrUpstreamUnavailable) {
			return nil, cause
		}
		return nil, fmt.Errorf("%w: %w", models.ErrUpstreamUnavailable, cause)
	}

	res, err := uc.analyzer.Classify(uc.synth.Quote(symbol, class))
	if err != nil {
		return nil, fmt.Errorf("classify simulated quote: %w", err)
	}
	uc.l.Info("serving simulated insight",
		applogger.String("symbol", symbol),
		applogger.String("reason", reason),
		applogger.String("cause", cause.Error()))
	uc.metrics.RecordFallback(reason)
	uc.metrics.RecordInsight(string(models.SourceSimulated), string(class))
	return models.NewSimulatedInsight(res, reason, uc.now().UTC()), nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = models.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
