package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinSight/internal/middleware"
	"FinSight/internal/scheduler"
	xhttp "FinSight/pkg/http"
	pkgkafka "FinSight/pkg/kafka"
	applogger "FinSight/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	log      *applogger.Logger
	http     *xhttp.Server
	pipeline *middleware.RecordPipeline
	consumer *pkgkafka.Consumer
	warmup   *scheduler.Warmup
	closers  []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

type Option func(*App)

// WithPipeline runs the history retry loop alongside the server.
func WithPipeline(p *middleware.RecordPipeline) Option {
	return func(a *App) { a.pipeline = p }
}

func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithWarmup(w *scheduler.Warmup) Option {
	return func(a *App) { a.warmup = w }
}

// WithCloser registers a resource released on shutdown. Closers run in
// reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// New creates a new App. Nil components are skipped.
func New(l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{log: l.With("app"), http: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until ctx is cancelled or an
// interrupt arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	timeout := 10 * time.Second
	if a.http != nil {
		timeout = a.http.ShutdownTimeout()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Shutdown(shutdownCtx)
	return nil
}

// Start launches background components, then the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("history pipeline started")
	}
	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
	}
	if a.warmup != nil {
		a.warmup.Start(ctx)
	}
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// Shutdown stops components in reverse start order and closes resources.
// Errors are logged; shutdown always runs to the end.
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info("shutting down...")

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.warmup != nil {
		a.warmup.Stop(ctx)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.pipeline != nil {
		a.pipeline.Stop(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
