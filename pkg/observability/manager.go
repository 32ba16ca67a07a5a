package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config configures tracing and metrics.
type Config struct {
	Tracing TracerConfig  `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// Manager owns the tracer provider and metrics for one process.
type Manager struct {
	tracerProvider trace.TracerProvider
	metrics        Metrics
	config         Config
	mu             sync.RWMutex
}

// NewManager creates a Manager. Call Initialize before use.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// NoopManager returns a Manager that records nothing.
// Use this when observability is completely disabled.
func NoopManager() *Manager {
	return &Manager{}
}

// Initialize sets up the global tracer and metrics.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, err := InitMetrics(ctx, m.config.Metrics)
	if err != nil {
		return err
	}
	m.metrics = metrics

	SetGlobalMetrics(m.metrics)

	return nil
}

// GetTracer returns a named tracer.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the metrics recorder.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Shutdown flushes and stops the tracer provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return spt.Shutdown(ctx)
	}
	return nil
}
