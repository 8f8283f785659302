package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"FinSight/pkg/logger"
)

// MessageHandler handles the payloads of one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

// errShutdown marks a handler failure caused by the consumer stopping. Such
// messages are neither dead-lettered nor committed.
var errShutdown = errors.New("kafka consumer: shutting down")

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type fetched struct {
	reader committer
	msg    kafka.Message
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer reads registered topics through a consumer group and hands
// messages to a fixed pool of workers. Every partition is pinned to one
// worker so its messages are handled and committed in offset order.
//
// Failed messages are retried with jittered backoff, then written to the DLQ
// if one is configured. When the DLQ write fails the offset stays
// uncommitted and later offsets of that partition are not committed either,
// so the group resumes from the failed message after a rebalance or restart.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	dlq      messageWriter
	hook     ConsumerHook

	queues []chan fetched
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stop   sync.Once
}

func NewConsumer(l *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if l == nil {
		l = logger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      l.With("kafka-consumer"),
		handlers: make(map[string]MessageHandler),
		hook:     TraceHook(),
		queues:   make([]chan fetched, cfg.Workers),
	}
	for i := range c.queues {
		c.queues[i] = make(chan fetched, cfg.BufferSize)
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	initConsumerMetrics()
	return c, nil
}

// Register adds a handler. Registering the same topic twice keeps the first.
func (c *Consumer) Register(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// Use appends hooks after the built-in trace hook.
func (c *Consumer) Use(hooks ...ConsumerHook) {
	c.hook = NewHookChain(append([]ConsumerHook{c.hook}, hooks...)...)
}

func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	for _, q := range c.queues {
		c.wg.Add(1)
		go c.work(q)
	}

	var readers sync.WaitGroup
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers = append(c.readers, r)
		readers.Add(1)
		go c.fetch(r, &readers)
	}

	// Workers drain their queues once every reader has returned.
	go func() {
		readers.Wait()
		for _, q := range c.queues {
			close(q)
		}
	}()

	c.log.Info("consumer started",
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.Workers),
		logger.String("group", c.cfg.GroupID))
	return nil
}

func (c *Consumer) fetch(r *kafka.Reader, done *sync.WaitGroup) {
	defer done.Done()
	topic := r.Config().Topic
	for {
		msg, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Error("fetch failed", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(c.cfg.BackoffMin):
				continue
			case <-c.ctx.Done():
				return
			}
		}
		q := c.queues[c.route(msg.Topic, msg.Partition)]
		select {
		case q <- fetched{reader: r, msg: msg}:
			observeQueue(topic, len(q))
		case <-c.ctx.Done():
			return
		}
	}
}

// route maps a partition to its worker.
func (c *Consumer) route(topic string, partition int) int {
	if len(c.queues) <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int((h.Sum32() + uint32(partition)) % uint32(len(c.queues)))
}

// work owns every partition routed to q, including their held-back state.
func (c *Consumer) work(q <-chan fetched) {
	defer c.wg.Done()
	held := make(map[partitionKey]int64)
	for f := range q {
		c.process(f, held)
	}
}

func (c *Consumer) process(f fetched, held map[partitionKey]int64) {
	start := time.Now()
	topic := f.msg.Topic
	h, ok := c.handlers[topic]
	if !ok {
		return
	}
	key := partitionKey{topic: topic, partition: f.msg.Partition}

	err := c.handleWithRetry(h, f.msg)
	outcome := "ok"
	switch {
	case errors.Is(err, errShutdown):
		c.log.Info("message left for redelivery",
			logger.String("topic", topic),
			logger.Int("partition", f.msg.Partition),
			logger.Int64("offset", f.msg.Offset),
			logger.Error(err))
		observeHandled(topic, "shutdown", time.Since(start))
		return
	case err != nil:
		c.log.Error("message failed",
			logger.String("topic", topic),
			logger.Int("partition", f.msg.Partition),
			logger.Int64("offset", f.msg.Offset),
			logger.Error(err))
		outcome = "dropped"
		if c.dlq != nil {
			if derr := c.toDLQ(f.msg); derr != nil {
				c.log.Error("dlq write failed", logger.String("topic", topic), logger.Error(derr))
				if _, already := held[key]; !already {
					held[key] = f.msg.Offset
				}
				observeHandled(topic, "dlq_error", time.Since(start))
				return
			}
			outcome = "dlq"
		}
	}

	// Committing a later offset would skip the failed one.
	if failed, ok := held[key]; ok {
		c.log.Debug("commit held back",
			logger.String("topic", topic),
			logger.Int("partition", f.msg.Partition),
			logger.Int64("offset", f.msg.Offset),
			logger.Int64("failed_offset", failed))
		observeHandled(topic, "held", time.Since(start))
		return
	}

	commitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := f.reader.CommitMessages(commitCtx, f.msg); cerr != nil {
		c.log.Warn("commit failed", logger.String("topic", topic), logger.Error(cerr))
	}
	observeHandled(topic, outcome, time.Since(start))
}

func (c *Consumer) handleWithRetry(h MessageHandler, km kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := c.handleOnce(h, km)
		if err == nil {
			return nil
		}
		if c.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", errShutdown, err)
		}
		if attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(Backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.ctx.Done():
			return fmt.Errorf("%w: %v", errShutdown, err)
		}
	}
}

func (c *Consumer) handleOnce(h MessageHandler, km kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, data, err := c.hook.BeforeHandle(context.Background(), km)
	if err == nil {
		err = h.Handle(ctx, data)
	}
	c.hook.AfterHandle(ctx, km, err)
	return err
}

func (c *Consumer) toDLQ(km kafka.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{{Key: "source_topic", Value: []byte(km.Topic)}}, km.Headers...)
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     km.Key,
		Value:   km.Value,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
}

// Stop cancels fetching, waits for in-flight messages and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stop.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}

		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close reader", logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		c.log.Info("consumer stopped")
	})
	return err
}

// Backoff returns an exponential delay for attempt (1-based) capped at max,
// with up to half of it removed as jitter.
func Backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	d := max
	if attempt < 32 {
		if exp := min << uint(attempt-1); exp > 0 && exp < max {
			d = exp
		}
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int64N(half))
	}
	return d
}
