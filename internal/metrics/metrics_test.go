package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordProxy(t *testing.T) {
	m := New(WithRegistry(prometheus.NewRegistry()))

	m.RecordProxy("/api", http.StatusOK, 10*time.Millisecond)
	m.RecordProxy("/api", 0, time.Millisecond)

	if got := metricCounterValue(t, m.proxyRequests.WithLabelValues("/api", "200")); got != 1 {
		t.Fatalf("proxy_requests_total(200)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.proxyRequests.WithLabelValues("/api", "error")); got != 1 {
		t.Fatalf("proxy_requests_total(error)=%v, want 1", got)
	}
	if got := metricHistogramCount(t, m.proxyDuration.WithLabelValues("/api")); got != 2 {
		t.Fatalf("proxy_request_duration_seconds count=%d, want 2", got)
	}
}

func TestRecordRebuildReloadWatch(t *testing.T) {
	m := New()

	m.RecordRebuild(true, 20*time.Millisecond)
	m.RecordRebuild(false, 5*time.Millisecond)
	m.RecordReload("full")
	m.RecordReload("css")
	m.RecordReload("css")
	m.RecordWatchEvent("modified")

	if got := metricCounterValue(t, m.rebuilds.WithLabelValues("success")); got != 1 {
		t.Fatalf("rebuilds_total(success)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.rebuilds.WithLabelValues("failure")); got != 1 {
		t.Fatalf("rebuilds_total(failure)=%v, want 1", got)
	}
	if got := metricHistogramCount(t, m.rebuildDuration); got != 2 {
		t.Fatalf("rebuild_duration_seconds count=%d, want 2", got)
	}
	if got := metricCounterValue(t, m.reloads.WithLabelValues("css")); got != 2 {
		t.Fatalf("reloads_total(css)=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.watchEvents.WithLabelValues("modified")); got != 1 {
		t.Fatalf("watch_events_total(modified)=%v, want 1", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(WithNamespace("test"))

	h := m.Middleware("dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := metricCounterValue(t, m.httpRequests.WithLabelValues("dev", "GET", "200")); got != 2 {
		t.Fatalf("http_requests_total(200)=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.httpRequests.WithLabelValues("dev", "GET", "404")); got != 1 {
		t.Fatalf("http_requests_total(404)=%v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_http_requests_total") {
		t.Fatalf("metrics output missing test_http_requests_total:\n%s", rec.Body.String())
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.RecordProxy("/api", 200, time.Millisecond)
	m.RecordRebuild(true, time.Millisecond)
	m.RecordReload("full")
	m.RecordWatchEvent("created")

	if m.Registry() != nil {
		t.Fatal("nil Metrics should have no registry")
	}

	called := false
	h := m.Middleware("dev")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("nil Metrics middleware should pass through")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil Metrics handler status=%d, want 404", rec.Code)
	}
}
