package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records relay domain metrics.
type Metrics interface {
	RecordCommand(ctx context.Context, action string, duration time.Duration, err error)
	RecordStep(ctx context.Context, stepType string, duration time.Duration, failed bool)
	RecordOrchestration(ctx context.Context, strategy string, fanout int, duration time.Duration)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// PrometheusMetrics implements Metrics over OTel instruments exported to
// Prometheus. The zero value is a safe no-op.
type PrometheusMetrics struct {
	commandDuration    metric.Float64Histogram
	commandsTotal      metric.Int64Counter
	commandErrorsTotal metric.Int64Counter

	stepDuration      metric.Float64Histogram
	stepsTotal        metric.Int64Counter
	stepFailuresTotal metric.Int64Counter

	orchestrationsTotal   metric.Int64Counter
	orchestrationDuration metric.Float64Histogram
	orchestrationFanout   metric.Int64Histogram

	httpDuration metric.Float64Histogram
}

// NewPrometheusMetrics wires the instruments created by InitMetrics.
func NewPrometheusMetrics(
	commandDuration metric.Float64Histogram,
	commandsTotal metric.Int64Counter,
	commandErrorsTotal metric.Int64Counter,
	stepDuration metric.Float64Histogram,
	stepsTotal metric.Int64Counter,
	stepFailuresTotal metric.Int64Counter,
	orchestrationsTotal metric.Int64Counter,
	orchestrationDuration metric.Float64Histogram,
	orchestrationFanout metric.Int64Histogram,
	httpDuration metric.Float64Histogram,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		commandDuration:       commandDuration,
		commandsTotal:         commandsTotal,
		commandErrorsTotal:    commandErrorsTotal,
		stepDuration:          stepDuration,
		stepsTotal:            stepsTotal,
		stepFailuresTotal:     stepFailuresTotal,
		orchestrationsTotal:   orchestrationsTotal,
		orchestrationDuration: orchestrationDuration,
		orchestrationFanout:   orchestrationFanout,
		httpDuration:          httpDuration,
	}
}

func (m *PrometheusMetrics) RecordCommand(ctx context.Context, action string, duration time.Duration, err error) {
	if m == nil || m.commandDuration == nil || m.commandsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("action", action),
	}

	m.commandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.commandErrorsTotal != nil {
		m.commandErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordStep(ctx context.Context, stepType string, duration time.Duration, failed bool) {
	if m == nil || m.stepDuration == nil || m.stepsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("step_type", stepType),
	}

	m.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if failed && m.stepFailuresTotal != nil {
		m.stepFailuresTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordOrchestration(ctx context.Context, strategy string, fanout int, duration time.Duration) {
	if m == nil || m.orchestrationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("strategy", strategy),
	}

	m.orchestrationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.orchestrationDuration != nil {
		m.orchestrationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.orchestrationFanout != nil {
		m.orchestrationFanout.Record(ctx, int64(fanout), metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// SetGlobalMetrics installs the process-wide metrics recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// noopMetrics backs GetGlobalMetrics before Initialize runs; the zero
// value drops every recording.
var noopMetrics = &PrometheusMetrics{}

// GetGlobalMetrics returns the process-wide metrics recorder. Callers
// always get a usable recorder: a no-op stands in until one is
// installed, so recording never needs a nil check.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return noopMetrics
	}
	return globalMetrics
}
