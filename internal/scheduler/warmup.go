// Package scheduler refreshes the watchlist on a cron schedule so the cache
// stays warm and history keeps accumulating without client traffic.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinSight/internal/domain/models"
	"FinSight/internal/usecase"
	applogger "FinSight/pkg/logger"
)

const lockKey = "lock:watchlist-warmup"

type BatchAnalyzer interface {
	AnalyzeMany(ctx context.Context, p usecase.BatchParams) (*models.InsightBatch, error)
}

// Locker guards a run across replicas sharing one cache.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Item struct {
	Symbol     string
	AssetClass models.AssetClass
}

type Result struct {
	Refreshed int
	Simulated int
	Failed    map[string]string
	Skipped   bool
}

// Warmup runs AnalyzeMany with refresh for every watchlist item.
type Warmup struct {
	cron    *cron.Cron
	spec    string
	uc      BatchAnalyzer
	lock    Locker // optional
	groups  map[models.AssetClass][]string
	chunk   int
	timeout time.Duration
	l       *applogger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWarmup builds the job. spec uses the six-field cron format with seconds.
// chunk caps the symbols per AnalyzeMany call.
func NewWarmup(spec string, items []Item, uc BatchAnalyzer, lock Locker, chunk int, timeout time.Duration, l *applogger.Logger) (*Warmup, error) {
	if l == nil {
		l = applogger.Nop()
	}
	if chunk < 1 {
		chunk = 1
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	l = l.With("warmup")
	cl := cronLogger{l}
	w := &Warmup{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		spec:    spec,
		uc:      uc,
		lock:    lock,
		groups:  make(map[models.AssetClass][]string),
		chunk:   chunk,
		timeout: timeout,
		l:       l,
	}
	seen := map[string]bool{}
	for _, it := range items {
		sym := models.NormalizeSymbol(it.Symbol)
		class := it.AssetClass
		if class == "" {
			class = models.DefaultAssetClass()
		}
		key := string(class) + ":" + sym
		if sym == "" || seen[key] {
			continue
		}
		seen[key] = true
		w.groups[class] = append(w.groups[class], sym)
	}
	if _, err := w.cron.AddFunc(spec, w.tick); err != nil {
		return nil, fmt.Errorf("register warmup %q: %w", spec, err)
	}
	return w, nil
}

func (w *Warmup) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.cron.Start()
	w.l.Info("warmup scheduled", applogger.String("cron", w.spec), applogger.Int("classes", len(w.groups)))
}

// Stop prevents new runs and waits for a running one, up to ctx.
func (w *Warmup) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (w *Warmup) tick() {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := w.Run(ctx)
	if err != nil {
		w.l.Error("warmup failed", applogger.Error(err))
		return
	}
	if res.Skipped {
		w.l.Debug("warmup skipped, another instance holds the lock")
		return
	}
	w.l.Info("warmup done",
		applogger.Int("refreshed", res.Refreshed),
		applogger.Int("simulated", res.Simulated),
		applogger.Int("failed", len(res.Failed)))
}

// Run refreshes every item once.
func (w *Warmup) Run(ctx context.Context) (Result, error) {
	res := Result{Failed: map[string]string{}}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.lock != nil {
		ok, err := w.lock.TryLock(ctx, lockKey, w.timeout)
		if err != nil {
			return res, fmt.Errorf("acquire warmup lock: %w", err)
		}
		if !ok {
			res.Skipped = true
			return res, nil
		}
		defer func() { _ = w.lock.Unlock(context.Background(), lockKey) }()
	}

	for class, symbols := range w.groups {
		for start := 0; start < len(symbols); start += w.chunk {
			end := min(start+w.chunk, len(symbols))
			batch, err := w.uc.AnalyzeMany(ctx, usecase.BatchParams{
				Symbols:    symbols[start:end],
				AssetClass: class,
				Refresh:    true,
			})
			if err != nil {
				for _, s := range symbols[start:end] {
					res.Failed[string(class)+":"+s] = err.Error()
				}
				continue
			}
			for _, ins := range batch.Insights {
				if ins.IsLive() {
					res.Refreshed++
				} else {
					res.Simulated++
				}
			}
			for s, msg := range batch.Errors {
				res.Failed[string(class)+":"+s] = msg
			}
		}
	}
	return res, nil
}

// cronLogger routes cron's own messages to the app logger.
type cronLogger struct{ l *applogger.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, applogger.Any("kv", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, applogger.Error(err), applogger.Any("kv", kv))
}
