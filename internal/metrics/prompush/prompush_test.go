package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectwise/internal/metrics"
)

func TestBackend_CountersAndHistograms(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("", "")
	require.NoError(t, err)

	b.IncCounter(metrics.IngestRowsTotal, 2, metrics.Labels{"outcome": "inserted"})
	b.IncCounter(metrics.IngestRowsTotal, 1, metrics.Labels{"outcome": "inserted"})
	b.IncCounter(metrics.IngestRowsTotal, 1, metrics.Labels{"outcome": "skipped"})
	b.ObserveHistogram(metrics.IngestRunDurationSeconds, 0.2, metrics.Labels{"status": "ok"})

	assert.Equal(t, 3.0, testutil.ToFloat64(b.counters[metrics.IngestRowsTotal].WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.counters[metrics.IngestRowsTotal].WithLabelValues("skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(b.histograms[metrics.IngestRunDurationSeconds]))
}

func TestBackend_IgnoresUnknownAndIncompleteLabels(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("cw", "")
	require.NoError(t, err)

	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.IncCounter(metrics.IngestRunsTotal, 1, metrics.Labels{})
	b.IncCounter(metrics.IngestRunsTotal, 0, metrics.Labels{"status": "ok"})
	b.ObserveHistogram(metrics.HTTPRequestDuration, -1, metrics.Labels{"route": "/", "method": "GET"})

	assert.Equal(t, 0, testutil.CollectAndCount(b.counters[metrics.IngestRunsTotal]))
	assert.Equal(t, 0, testutil.CollectAndCount(b.histograms[metrics.HTTPRequestDuration]))
	require.NoError(t, b.Flush(), "Flush without a gateway is a no-op")
}

func TestBackend_HandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("cw", "")
	require.NoError(t, err)
	b.IncCounter(metrics.HTTPRequestsTotal, 1, metrics.Labels{"route": "/health", "method": "GET", "status": "200"})

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `collectwise_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestBackend_FlushPushesToGateway(t *testing.T) {
	t.Parallel()

	var pushes atomic.Int32
	var body atomic.Value
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		b, _ := io.ReadAll(r.Body)
		body.Store(r.Method + " " + r.URL.Path + " " + string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	b, err := NewBackend("ingest", gw.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.IngestRunsTotal, 1, metrics.Labels{"status": "ok"})

	require.NoError(t, b.Flush())
	assert.Equal(t, int32(1), pushes.Load())
	got, _ := body.Load().(string)
	assert.True(t, strings.HasPrefix(got, "PUT /metrics/job/ingest"), got)
}

func TestBackend_FlushReportsGatewayError(t *testing.T) {
	t.Parallel()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gw.Close()

	b, err := NewBackend("ingest", gw.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.IngestRunsTotal, 1, metrics.Labels{"status": "ok"})

	err = b.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompush: push")
}
