package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ToolObserver records tool-call counts and latency as otel metrics.
type ToolObserver struct {
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

// NewToolObserver creates the instruments on meter.
func NewToolObserver(meter metric.Meter) (*ToolObserver, error) {
	calls, err := meter.Int64Counter(
		"hrgate.tool.calls",
		metric.WithDescription("Number of tool calls by outcome"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"hrgate.tool.latency",
		metric.WithDescription("Tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &ToolObserver{calls: calls, latency: latency}, nil
}

// ObserveToolCall records one finished tool call.
func (o *ToolObserver) ObserveToolCall(tool, outcome string, latency time.Duration) {
	if o == nil {
		return
	}
	ctx := context.Background()
	opts := metric.WithAttributes(
		attribute.String("tool_name", tool),
		attribute.String("outcome", outcome),
	)
	o.calls.Add(ctx, 1, opts)
	o.latency.Record(ctx, latency.Seconds(), opts)
}

// CallObserver is the observation hook the audit interceptor drives.
type CallObserver interface {
	ObserveToolCall(tool, outcome string, latency time.Duration)
}

// MultiObserver fans one observation out to several observers. Nil entries
// are skipped.
type MultiObserver []CallObserver

// ObserveToolCall forwards to every observer.
func (m MultiObserver) ObserveToolCall(tool, outcome string, latency time.Duration) {
	for _, o := range m {
		if o != nil {
			o.ObserveToolCall(tool, outcome, latency)
		}
	}
}
