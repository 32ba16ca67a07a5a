package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures Prometheus metrics export.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// InitMetrics creates the relay instruments backed by a Prometheus exporter.
// The exporter registers with the default Prometheus registry, which the
// gateway serves on /metrics.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("relay")

	commandDuration, err := meter.Float64Histogram(
		"relay_command_duration_seconds",
		metric.WithDescription("Gateway command handling duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command duration histogram: %w", err)
	}

	commands, err := meter.Int64Counter(
		"relay_commands_total",
		metric.WithDescription("Total gateway commands handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commands counter: %w", err)
	}

	commandErrors, err := meter.Int64Counter(
		"relay_command_errors_total",
		metric.WithDescription("Total gateway commands rejected or failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command errors counter: %w", err)
	}

	stepDuration, err := meter.Float64Histogram(
		"relay_workflow_step_duration_seconds",
		metric.WithDescription("Workflow step execution duration in seconds, retries included"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step duration histogram: %w", err)
	}

	steps, err := meter.Int64Counter(
		"relay_workflow_steps_total",
		metric.WithDescription("Total workflow steps executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create steps counter: %w", err)
	}

	stepFailures, err := meter.Int64Counter(
		"relay_workflow_step_failures_total",
		metric.WithDescription("Total workflow steps that ended failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create step failures counter: %w", err)
	}

	orchestrations, err := meter.Int64Counter(
		"relay_orchestrations_total",
		metric.WithDescription("Total orchestration runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrations counter: %w", err)
	}

	orchestrationDuration, err := meter.Float64Histogram(
		"relay_orchestration_duration_seconds",
		metric.WithDescription("Orchestration run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestration duration histogram: %w", err)
	}

	orchestrationFanout, err := meter.Int64Histogram(
		"relay_orchestration_fanout",
		metric.WithDescription("Number of agents dispatched per orchestration run"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestration fanout histogram: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"relay_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return NewPrometheusMetrics(
		commandDuration,
		commands,
		commandErrors,
		stepDuration,
		steps,
		stepFailures,
		orchestrations,
		orchestrationDuration,
		orchestrationFanout,
		httpDuration,
	), nil
}
