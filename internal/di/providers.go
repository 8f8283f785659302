package di

import (
	"context"
	"fmt"
	"time"

	"FinSight/internal/domain/models"
	"FinSight/internal/domain/repository"
	dsvc "FinSight/internal/domain/service"
	"FinSight/internal/handler/api"
	mid "FinSight/internal/middleware"
	internalrepo "FinSight/internal/repository"
	"FinSight/internal/scheduler"
	"FinSight/internal/service/alphavantage"
	"FinSight/internal/service/finnhub"
	"FinSight/internal/service/quotes"
	"FinSight/internal/service/ratelimit"
	"FinSight/internal/services/insight"
	"FinSight/internal/services/synthetic"
	"FinSight/internal/usecase"
	"FinSight/pkg/cache"
	pkgch "FinSight/pkg/clickhouse"
	"FinSight/pkg/config"
	xhttp "FinSight/pkg/http"
	pkgkafka "FinSight/pkg/kafka"
	applogger "FinSight/pkg/logger"
	"FinSight/pkg/metrics"
	"FinSight/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache picks the cache backend. Redis and layered backends ping
// Redis on startup and fail fast.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
			cache.WithMemoryCleanup(cfg.Cache.MemoryCleanup),
		), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Backend == "redis" {
		return rc, nil
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
		cache.WithLayeredMemoryTTL(cfg.Cache.MemoryTTL),
		cache.WithLayeredMemoryCleanup(cfg.Cache.MemoryCleanup),
	), nil
}

// ProvideQuoteChain builds the provider chain in configured order. Providers
// without an API key are left out.
func ProvideQuoteChain(cfg *config.Config, l *applogger.Logger) *quotes.Chain {
	var sources []repository.QuoteSource
	timeout := xhttp.WithTimeout(cfg.Quotes.FetchTimeout)
	for _, name := range cfg.Quotes.Providers {
		switch name {
		case alphavantage.Name:
			q := cfg.Quotes.AlphaVantage
			if q.APIKey == "" {
				l.Warn("provider skipped, no api key", applogger.String("provider", name))
				continue
			}
			sources = append(sources, alphavantage.New(q.BaseURL, q.APIKey, q.RequestsPerMinute, timeout))
		case finnhub.Name:
			q := cfg.Quotes.Finnhub
			if q.APIKey == "" {
				l.Warn("provider skipped, no api key", applogger.String("provider", name))
				continue
			}
			sources = append(sources, finnhub.New(q.BaseURL, q.APIKey, q.RequestsPerMinute, timeout))
		}
	}
	chain := quotes.NewChain(sources...)
	l.Info("quote providers", applogger.String("chain", chain.Name()))
	return chain
}

func ProvideAnalyzer() dsvc.QuoteAnalyzer {
	return insight.NewAnalyzer()
}

// ProvideSynthetic returns nil when the fallback is disabled.
func ProvideSynthetic(cfg *config.Config) dsvc.SyntheticQuoter {
	if !cfg.Fallback.Enabled {
		return nil
	}
	return synthetic.New(cfg.Fallback.Seed)
}

// ProvideInsightStore opens the history store and ensures its schema.
// It returns nil when history is disabled.
func ProvideInsightStore(cfg *config.Config, l *applogger.Logger) (repository.InsightStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store repository.InsightStore
	switch cfg.History.Store {
	case "sqlite":
		s, err := internalrepo.NewSQLiteInsightStore(cfg.History.SQLitePath, l)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		store = s
	case "clickhouse":
		client, err := pkgch.NewClient(ctx,
			pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store = internalrepo.NewCHInsightStore(client, l)
	default:
		return nil, nil
	}

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s schema: %w", cfg.History.Store, err)
	}
	return store, nil
}

// ProvidePublisher creates the Kafka publisher when history travels over
// Kafka. Otherwise it returns nil.
func ProvidePublisher(cfg *config.Config, l *applogger.Logger) (repository.Publisher, error) {
	if cfg.History.Transport != usecase.TransportKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(l,
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideHistoryRecorder returns nil when there is nowhere to record to.
func ProvideHistoryRecorder(cfg *config.Config, pub repository.Publisher, store repository.InsightStore, m repository.Metrics) (*usecase.HistoryRecorder, error) {
	if pub == nil && store == nil {
		return nil, nil
	}
	return usecase.NewHistoryRecorder(cfg.History.Transport, pub, store, m)
}

func ProvideRecordPipeline(cfg *config.Config, rec *usecase.HistoryRecorder, m repository.Metrics, l *applogger.Logger) *mid.RecordPipeline {
	if rec == nil {
		return nil
	}
	return mid.NewRecordPipeline(rec, m, l,
		mid.WithMinInterval(cfg.History.MinInterval),
		mid.WithBufferSize(cfg.History.BufferSize),
		mid.WithRetryBackoff(cfg.History.RetryBackoff),
	)
}

func ProvideInsightUseCase(
	cfg *config.Config,
	chain *quotes.Chain,
	analyzer dsvc.QuoteAnalyzer,
	synth dsvc.SyntheticQuoter,
	c cache.Service,
	pipeline *mid.RecordPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.InsightUseCase {
	var sink usecase.RecordSink
	if pipeline != nil {
		sink = pipeline
	}
	return usecase.NewInsightUseCase(chain, analyzer, synth, c, sink, m, l, usecase.InsightConfig{
		CacheTTL:     cfg.Cache.TTL,
		FetchTimeout: cfg.Quotes.FetchTimeout,
		RetryDelay:   cfg.Quotes.RetryDelay,
		BatchLimit:   cfg.Quotes.BatchLimit,
		Workers:      cfg.Quotes.Workers,
	})
}

func ProvideHistoryUseCase(store repository.InsightStore) *usecase.HistoryUseCase {
	return usecase.NewHistoryUseCase(store)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec, 10*time.Minute)
}

// ProvideInsightHandler registers /healthz probes for every backing service.
func ProvideInsightHandler(
	cfg *config.Config,
	insights *usecase.InsightUseCase,
	history *usecase.HistoryUseCase,
	rl *ratelimit.Limiter,
	c cache.Service,
	store repository.InsightStore,
	l *applogger.Logger,
) *api.InsightHandler {
	opts := []api.HandlerOption{
		api.WithRateLimiter(rl),
		api.WithStreamLimits(api.StreamLimits{
			MinInterval: cfg.Stream.MinInterval,
			MaxInterval: cfg.Stream.MaxInterval,
			MaxSymbols:  cfg.Stream.MaxSymbols,
		}),
	}
	if cfg.Cache.Backend != "memory" {
		opts = append(opts, api.WithHealthCheck("cache", func(ctx context.Context) error {
			_, err := c.Exists(ctx, "healthz")
			return err
		}))
	}
	if store != nil {
		opts = append(opts, api.WithHealthCheck("history", store.Health))
	}
	return api.NewInsightHandler(insights, history, l, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.InsightHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideKafkaConsumer creates the history consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, store repository.InsightStore, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled || store == nil {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cc.GroupID),
		pkgkafka.WithConsumerWorkers(cc.Workers, cc.BufferSize),
		pkgkafka.WithConsumerRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax),
		pkgkafka.WithConsumerDLQ(cc.DLQTopic),
		pkgkafka.WithConsumerFetch(cc.MinBytes, cc.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.Register(usecase.NewKafkaInsightHandler(cfg.Kafka.Topic, store, m))
	return consumer, nil
}

// ProvideWarmup schedules the watchlist refresh when enabled.
func ProvideWarmup(cfg *config.Config, uc *usecase.InsightUseCase, c cache.Service, l *applogger.Logger) (*scheduler.Warmup, error) {
	if !cfg.Watchlist.Enabled {
		return nil, nil
	}
	items := make([]scheduler.Item, 0, len(cfg.Watchlist.Items))
	for _, it := range cfg.Watchlist.Items {
		items = append(items, scheduler.Item{Symbol: it.Symbol, AssetClass: models.NormalizeAssetClass(it.AssetClass)})
	}
	return scheduler.NewWarmup(cfg.Watchlist.Cron, items, uc, c, cfg.Quotes.BatchLimit, 2*time.Minute, l)
}

// ProvideApp assembles the lifecycle. Closers run in reverse order, so the
// recorder (and its producer) closes before the store and the cache.
func ProvideApp(
	l *applogger.Logger,
	httpServer *xhttp.Server,
	pipeline *mid.RecordPipeline,
	consumer *pkgkafka.Consumer,
	warmup *scheduler.Warmup,
	rec *usecase.HistoryRecorder,
	store repository.InsightStore,
	c cache.Service,
) *server.App {
	opts := []server.Option{
		server.WithCloser("cache", c),
	}
	if store != nil {
		opts = append(opts, server.WithCloser("history store", store))
	}
	if rec != nil {
		opts = append(opts, server.WithCloser("history recorder", rec))
	}
	if pipeline != nil {
		opts = append(opts, server.WithPipeline(pipeline))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if warmup != nil {
		opts = append(opts, server.WithWarmup(warmup))
	}
	return server.New(l, httpServer, opts...)
}
