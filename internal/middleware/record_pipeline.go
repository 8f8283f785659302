package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"FinSight/internal/domain/models"
	domrepo "FinSight/internal/domain/repository"
	applogger "FinSight/pkg/logger"
)

// Recorder is the downstream the pipeline feeds. RecordBatch flushes the
// retry buffer on shutdown.
type Recorder interface {
	Record(ctx context.Context, rec *models.InsightRecord) error
	RecordBatch(ctx context.Context, recs []*models.InsightRecord) error
}

// ErrThrottled is returned when a symbol was recorded too recently.
var ErrThrottled = errors.New("record throttled")

// RecordPipeline sits between the insight use case and the history recorder.
// It validates records, keeps at most one record per symbol per minInterval,
// and when the recorder fails it parks the record in a buffer that a
// background loop retries with exponential backoff.
type RecordPipeline struct {
	rec     Recorder
	metrics domrepo.Metrics
	l       *applogger.Logger

	minInterval time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration

	buf  chan *models.InsightRecord
	stop chan struct{}
	done chan struct{}

	mu        sync.Mutex
	started   bool
	lastSeen  map[string]time.Time
	lastPrune time.Time
	now       func() time.Time
}

type PipelineOption func(*RecordPipeline)

// WithMinInterval sets the minimum spacing between two records of one symbol.
// Zero disables throttling.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *RecordPipeline) {
		if d >= 0 {
			p.minInterval = d
		}
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *RecordPipeline) {
		if n > 0 {
			p.buf = make(chan *models.InsightRecord, n)
		}
	}
}

// WithRetryBackoff sets the first retry delay; later ones double up to 40x.
func WithRetryBackoff(d time.Duration) PipelineOption {
	return func(p *RecordPipeline) {
		if d > 0 {
			p.backoffMin = d
			p.backoffMax = 40 * d
		}
	}
}

func NewRecordPipeline(rec Recorder, metrics domrepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *RecordPipeline {
	if l == nil {
		l = applogger.Nop()
	}
	p := &RecordPipeline{
		rec:         rec,
		metrics:     metrics,
		l:           l.With("record-pipeline"),
		minInterval: time.Second,
		backoffMin:  50 * time.Millisecond,
		backoffMax:  2 * time.Second,
		buf:         make(chan *models.InsightRecord, 1000),
		lastSeen:    make(map[string]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates, throttles and forwards rec. A downstream failure buffers
// the record for retry and is still reported to the caller.
func (p *RecordPipeline) Submit(ctx context.Context, rec *models.InsightRecord) error {
	start := time.Now()
	if err := validateRecord(rec); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(rec.Symbol, p.now()) {
		return ErrThrottled
	}

	if err := p.rec.Record(ctx, rec); err != nil {
		p.metrics.RecordError("pipeline_record")
		p.enqueue(rec)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_record", time.Since(start).Seconds())
	return nil
}

// Buffered returns how many records wait for a retry.
func (p *RecordPipeline) Buffered() int { return len(p.buf) }

func (p *RecordPipeline) enqueue(rec *models.InsightRecord) {
	select {
	case p.buf <- rec:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		p.l.Warn("buffer full, dropping record", applogger.String("symbol", rec.Symbol))
	}
}

// Start launches the retry loop. It runs until Stop or ctx is done. A
// stopped pipeline can be started again.
func (p *RecordPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.retryLoop(ctx, p.stop, p.done)
}

func (p *RecordPipeline) retryLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	backoff := p.backoffMin
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case rec := <-p.buf:
			if err := p.rec.Record(ctx, rec); err != nil {
				p.metrics.RecordError("pipeline_retry")
				p.l.Debug("retry failed",
					applogger.String("symbol", rec.Symbol),
					applogger.Duration("backoff_ms", backoff),
					applogger.Error(err))
				p.enqueue(rec)
				t := time.NewTimer(backoff)
				select {
				case <-t.C:
				case <-stop:
					t.Stop()
					return
				case <-ctx.Done():
					t.Stop()
					return
				}
				backoff = time.Duration(math.Min(float64(backoff*2), float64(p.backoffMax)))
				continue
			}
			backoff = p.backoffMin
		}
	}
}

// Stop ends the retry loop, waits for it, then flushes whatever is still
// buffered in one RecordBatch call bounded by ctx. Records that fail the
// flush are logged and discarded.
func (p *RecordPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.started = false
		close(p.stop)
		done := p.done
		p.mu.Unlock()
		<-done
	} else {
		p.mu.Unlock()
	}
	p.flush(ctx)
}

func (p *RecordPipeline) flush(ctx context.Context) {
	var pending []*models.InsightRecord
drain:
	for {
		select {
		case rec := <-p.buf:
			pending = append(pending, rec)
		default:
			break drain
		}
	}
	if len(pending) == 0 {
		return
	}
	if err := p.rec.RecordBatch(ctx, pending); err != nil {
		p.metrics.RecordError("pipeline_flush")
		p.l.Warn("discarding buffered records on shutdown",
			applogger.Int("count", len(pending)), applogger.Error(err))
		return
	}
	p.l.Info("flushed buffered records", applogger.Int("count", len(pending)))
}

// allow applies the per-symbol spacing. Entries older than minInterval no
// longer throttle anything and are pruned at most once per minInterval.
func (p *RecordPipeline) allow(symbol string, now time.Time) bool {
	if p.minInterval <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Sub(p.lastPrune) >= p.minInterval {
		for sym, seen := range p.lastSeen {
			if now.Sub(seen) >= p.minInterval {
				delete(p.lastSeen, sym)
			}
		}
		p.lastPrune = now
	}
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.minInterval {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

func validateRecord(r *models.InsightRecord) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", models.ErrInvalidInput)
	case r.Symbol == "":
		return fmt.Errorf("%w: empty symbol", models.ErrInvalidInput)
	case r.RecordedAt.IsZero():
		return fmt.Errorf("%w: missing timestamp", models.ErrInvalidInput)
	case r.Price <= 0 || math.IsNaN(r.Price) || math.IsInf(r.Price, 0):
		return fmt.Errorf("%w: price %v", models.ErrInvalidInput, r.Price)
	case r.Volume < 0:
		return fmt.Errorf("%w: negative volume", models.ErrInvalidInput)
	}
	return nil
}
