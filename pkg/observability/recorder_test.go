package observability

import (
	"context"
	"testing"
	"time"
)

// The global recorder must be callable before Initialize installs one;
// execution paths record unconditionally and must not panic in library
// use or in tests that skip observability setup.
func TestGetGlobalMetrics_NoopBeforeInstall(t *testing.T) {
	SetGlobalMetrics(nil)

	m := GetGlobalMetrics()
	if m == nil {
		t.Fatal("expected a usable recorder, got nil")
	}

	ctx := context.Background()
	m.RecordCommand(ctx, "system.ping", time.Millisecond, nil)
	m.RecordStep(ctx, "wait", time.Millisecond, false)
	m.RecordOrchestration(ctx, "consensus", 3, time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/v1/commands", 200, time.Millisecond)
}

func TestSetGlobalMetrics_Installs(t *testing.T) {
	installed := &PrometheusMetrics{}
	SetGlobalMetrics(installed)
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	if got := GetGlobalMetrics(); got != Metrics(installed) {
		t.Errorf("expected the installed recorder, got %T", got)
	}
}
