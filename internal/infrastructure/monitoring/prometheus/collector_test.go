package prometheus

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
)

func newTestCollector(t *testing.T) MetricsCollector {
	t.Helper()
	c, err := NewMetricsCollector(CollectorConfig{
		Namespace: "cromkt",
		Subsystem: "test",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	return c
}

func TestNewMetricsCollectorRequiresNamespace(t *testing.T) {
	_, err := NewMetricsCollector(CollectorConfig{}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestRegisterAndScrape(t *testing.T) {
	c := newTestCollector(t)

	rows := c.RegisterCounter("ingest_rows_total", "rows", "outcome")
	rows.WithLabelValues("accepted").Add(5)
	rows.WithLabelValues("rejected").Inc()

	depth := c.RegisterGauge("queue_depth", "depth", "state")
	depth.WithLabelValues("queued").Set(7)

	dur := c.RegisterHistogram("call_seconds", "latency", nil)
	dur.WithLabelValues().Observe(0.25)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `cromkt_test_ingest_rows_total{outcome="accepted"} 5`)
	assert.Contains(t, body, `cromkt_test_ingest_rows_total{outcome="rejected"} 1`)
	assert.Contains(t, body, `cromkt_test_queue_depth{state="queued"} 7`)
	assert.Contains(t, body, "cromkt_test_call_seconds_count")
}

func TestRegisterIsIdempotent(t *testing.T) {
	c := newTestCollector(t)

	first := c.RegisterCounter("dup_total", "dup", "k")
	second := c.RegisterCounter("dup_total", "dup", "k")

	first.WithLabelValues("a").Inc()
	second.WithLabelValues("a").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	// Both handles feed the same underlying series.
	assert.Contains(t, rec.Body.String(), `cromkt_test_dup_total{k="a"} 2`)
}

func TestTypeMismatchFallsBackToNoop(t *testing.T) {
	c := newTestCollector(t)

	c.RegisterCounter("mixed_metric", "as counter")
	g := c.RegisterGauge("mixed_metric", "as gauge")

	// The mismatched handle is a no-op, not a panic.
	assert.NotPanics(t, func() { g.WithLabelValues().Set(1) })
}

func TestTimerObservesElapsed(t *testing.T) {
	c := newTestCollector(t)
	h := c.RegisterHistogram("timed_seconds", "t", nil)

	timer := NewTimer(h.WithLabelValues())
	timer.ObserveDuration()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "cromkt_test_timed_seconds_count 1")
}

func TestTimerNilSafe(t *testing.T) {
	var timer *Timer
	assert.NotPanics(t, func() { timer.ObserveDuration() })
	assert.NotPanics(t, func() { NewTimer(nil).ObserveDuration() })
}

func TestNewAppMetricsRegistersCleanly(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.IngestRowsTotal.WithLabelValues("accepted").Inc()
	m.PredictionJobsTotal.WithLabelValues("succeeded").Inc()
	m.SubmissionTransitions.WithLabelValues("DRAFT", "SUBMITTED").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, `cromkt_test_ingest_rows_total{outcome="accepted"} 1`)
	assert.Contains(t, body, `cromkt_test_submission_transitions_total{from="DRAFT",to="SUBMITTED"} 1`)
}

func TestNopAppMetrics(t *testing.T) {
	m := NewNopAppMetrics()
	assert.NotPanics(t, func() {
		m.IngestRowsTotal.WithLabelValues("accepted").Inc()
		m.SubmissionsByStatus.WithLabelValues("DRAFT").Set(3)
		m.PredictionCallDuration.WithLabelValues().Observe(1.5)
	})
}
