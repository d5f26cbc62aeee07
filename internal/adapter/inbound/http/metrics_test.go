package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeAuditStats struct {
	depth, capacity int
	drops           int64
}

func (f fakeAuditStats) ChannelDepth() int     { return f.depth }
func (f fakeAuditStats) ChannelCapacity() int  { return f.capacity }
func (f fakeAuditStats) DroppedRecords() int64 { return f.drops }

type fakeSize int

func (f fakeSize) Size() int { return int(f) }

func TestObserveToolCall(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveToolCall("sf_get_user_data", "success", 120*time.Millisecond)
	m.ObserveToolCall("sf_get_user_data", "success", 80*time.Millisecond)
	m.ObserveToolCall("sf_post_user_data", "error", time.Second)

	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("sf_get_user_data", "success")); got != 2 {
		t.Errorf("success calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("sf_post_user_data", "error")); got != 1 {
		t.Errorf("error calls = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.ToolCallDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveToolCall("x", "success", time.Millisecond)
}

func TestRegisterRuntime(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RegisterRuntime(fakeAuditStats{depth: 12, capacity: 100, drops: 3}, fakeSize(7))

	expected := `
# HELP hrgate_audit_drops_total Total audit records dropped due to backpressure
# TYPE hrgate_audit_drops_total counter
hrgate_audit_drops_total 3
# HELP hrgate_audit_queue_depth Audit records waiting to be written
# TYPE hrgate_audit_queue_depth gauge
hrgate_audit_queue_depth 12
# HELP hrgate_rate_limit_keys Number of active rate limit keys
# TYPE hrgate_rate_limit_keys gauge
hrgate_rate_limit_keys 7
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hrgate_audit_drops_total", "hrgate_audit_queue_depth", "hrgate_rate_limit_keys")
	if err != nil {
		t.Error(err)
	}
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	status := http.StatusOK
	h := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	status = http.StatusUnauthorized
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "ok")); got != 1 {
		t.Errorf("ok requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "error")); got != 1 {
		t.Errorf("error requests = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RequestsTotal); got != 2 {
		t.Errorf("request series = %d, want 2 (health and metrics are skipped)", got)
	}
}

func TestStatusToLabel(t *testing.T) {
	t.Parallel()

	tests := map[int]string{200: "ok", 202: "ok", 304: "ok", 401: "error", 405: "error", 500: "error"}
	for code, want := range tests {
		if got := statusToLabel(code); got != want {
			t.Errorf("statusToLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
