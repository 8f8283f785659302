package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerer prometheus.Registerer = prometheus.DefaultRegisterer

	producerOnce     sync.Once
	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec

	consumerOnce     sync.Once
	consumerQueue    *prometheus.GaugeVec
	consumerHandled  *prometheus.CounterVec
	consumerDuration *prometheus.HistogramVec
)

// SetMetricsRegisterer swaps the registerer used for the package metrics.
// It must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		registerer = reg
	}
}

func initProducerMetrics() {
	producerOnce.Do(func() {
		f := promauto.With(registerer)
		producerMessages = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsight_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "result"})
		producerBytes = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsight_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"})
		producerLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsight_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		f := promauto.With(registerer)
		consumerQueue = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finsight_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerHandled = f.NewCounterVec(prometheus.CounterOpts{
			Name: "finsight_kafka_consumer_messages_total",
			Help: "Messages handled by outcome (ok, dlq, dropped)",
		}, []string{"topic", "outcome"})
		consumerDuration = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finsight_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}

func observePublish(topic, comp string, bytes int64, count int, dur time.Duration, err error) {
	if producerMessages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Add(float64(count))
	if err == nil {
		producerBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	}
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeHandled(topic, outcome string, dur time.Duration) {
	if consumerHandled == nil {
		return
	}
	consumerHandled.WithLabelValues(topic, outcome).Inc()
	consumerDuration.WithLabelValues(topic).Observe(dur.Seconds())
}

func observeQueue(topic string, depth int) {
	if consumerQueue != nil {
		consumerQueue.WithLabelValues(topic).Set(float64(depth))
	}
}
