package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for hrgate.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

// NewMetrics creates and registers the request and tool-call metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hrgate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hrgate",
				Name:      "tool_calls_total",
				Help:      "Total tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"}, // outcome=success/error/blocked
		),
		ToolCallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hrgate",
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds, including directory round trips",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tool"},
		),
		reg: reg,
	}
}

// ObserveToolCall records one finished tool call.
func (m *Metrics) ObserveToolCall(tool, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(latency.Seconds())
}

// AuditStats reports the audit queue state. service.AuditService implements it.
type AuditStats interface {
	ChannelDepth() int
	ChannelCapacity() int
	DroppedRecords() int64
}

// SizeReporter reports the number of tracked keys. The memory rate limiter
// implements it.
type SizeReporter interface {
	Size() int
}

// RegisterRuntime adds gauges read from the audit queue and the rate
// limiter at scrape time. Nil sources are skipped.
func (m *Metrics) RegisterRuntime(auditStats AuditStats, limiter SizeReporter) {
	factory := promauto.With(m.reg)
	if auditStats != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hrgate",
			Name:      "audit_queue_depth",
			Help:      "Audit records waiting to be written",
		}, func() float64 { return float64(auditStats.ChannelDepth()) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "hrgate",
			Name:      "audit_drops_total",
			Help:      "Total audit records dropped due to backpressure",
		}, func() float64 { return float64(auditStats.DroppedRecords()) })
	}
	if limiter != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "hrgate",
			Name:      "rate_limit_keys",
			Help:      "Number of active rate limit keys",
		}, func() float64 { return float64(limiter.Size()) })
	}
}
