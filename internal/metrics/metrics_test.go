package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.BatchesCreated.Inc()
	m.EventsAppended.WithLabelValues("Processing").Inc()
	m.EventsAppended.WithLabelValues("Processing").Inc()
	m.Rejected.WithLabelValues("invalid_transition").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsAppended.WithLabelValues("Processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("invalid_transition")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.BatchesCreated.Inc()
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "herbtrace_ledger_batches_created_total 1"))
	assert.Contains(t, body, `herbtrace_http_request_duration_seconds_count{code="404",method="GET",route="unmatched"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
