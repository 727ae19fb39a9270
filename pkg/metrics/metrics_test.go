package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheLookup(true)
	c.RecordCacheLookup(true)
	c.RecordCacheLookup(false)
	c.RecordFallback("timeout")
	c.RecordRateLimited("tenant")
	c.RecordSideEffectDropped("append_message")
	c.RecordSideEffectFailed("log_metric")
	c.RecordIsolationViolation("reset")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("tenant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sideEffectDropped.WithLabelValues("append_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sideEffectFailed.WithLabelValues("log_metric")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.isolationViolation.WithLabelValues("reset")))
}

func TestCollector_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAnswer("cache", 3*time.Millisecond)
	c.RecordDispatch("knowledge", "ok", 1200*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(c.answers, "concierge_answers_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(c.dispatchLatency, "concierge_dispatch_seconds"))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFallback("adapter_error")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `concierge_fallbacks_total{reason="adapter_error"} 1`)
}
