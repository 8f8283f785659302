package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordInsight("live", "equity")
	r.RecordInsight("live", "equity")
	r.RecordFallback("rate_limited")
	r.RecordCache("hit")
	r.RecordLastPrice("AAPL", 150.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.insights.WithLabelValues("live", "equity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheResults.WithLabelValues("hit")))
	assert.Equal(t, 150.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("AAPL")))
}
