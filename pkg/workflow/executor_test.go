package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/config"
	"github.com/kadirpekel/relay/pkg/orchestrator"
)

// flakySink fails a fixed number of times, then succeeds.
type flakySink struct {
	failures int32
	calls    int32
}

func (s *flakySink) Enqueue(_ context.Context, command string, _ map[string]any) (*agent.Dispatch, error) {
	call := atomic.AddInt32(&s.calls, 1)
	if call <= atomic.LoadInt32(&s.failures) {
		return nil, fmt.Errorf("queue unavailable")
	}
	return &agent.Dispatch{ID: fmt.Sprintf("dispatch-%d", call)}, nil
}

type stubOrchestration struct {
	run *orchestrator.Run
	err error
}

func (s *stubOrchestration) Orchestrate(context.Context, []string, string, map[string]any, string, time.Duration) (*orchestrator.Run, error) {
	return s.run, s.err
}

func fastExecutor(sink agent.DispatchSink, orch OrchestrationService) *Executor {
	return NewExecutor(sink, orch, WithBackoffBase(time.Millisecond))
}

func TestExecute_AgentCommand(t *testing.T) {
	sink := &flakySink{}
	e := fastExecutor(sink, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "dispatch",
		Type:    config.StepTypeAgentCommand,
		Command: "sync_crm",
	}, nil)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	output := result.Output.(map[string]any)
	if output["dispatch_id"] != "dispatch-1" {
		t.Errorf("expected tracking id in output, got %v", output)
	}
}

func TestExecute_RetrySucceedsOnThirdAttempt(t *testing.T) {
	sink := &flakySink{failures: 2}
	e := fastExecutor(sink, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "dispatch",
		Type:    config.StepTypeAgentCommand,
		Command: "sync_crm",
		Retries: 3,
	}, nil)

	if result.Status != StepCompleted {
		t.Errorf("expected completed after retries, got %s (%s)", result.Status, result.Error)
	}
	if got := atomic.LoadInt32(&sink.calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestExecute_RetriesExhausted(t *testing.T) {
	sink := &flakySink{failures: 100}
	e := fastExecutor(sink, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "dispatch",
		Type:    config.StepTypeAgentCommand,
		Command: "sync_crm",
		Retries: 2,
	}, nil)

	if result.Status != StepFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if got := atomic.LoadInt32(&sink.calls); got != 3 {
		t.Errorf("expected retries+1 attempts, got %d", got)
	}
	if !strings.Contains(result.Error, "queue unavailable") {
		t.Errorf("expected last error carried, got %q", result.Error)
	}
}

func TestExecute_DispatchWithoutIDFails(t *testing.T) {
	sink := agent.SinkFunc(func(context.Context, string, map[string]any) (*agent.Dispatch, error) {
		return nil, nil
	})
	e := fastExecutor(sink, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "dispatch",
		Type:    config.StepTypeAgentCommand,
		Command: "sync_crm",
	}, nil)

	if result.Status != StepFailed {
		t.Errorf("expected failed for nil dispatch, got %s", result.Status)
	}
}

func TestExecute_Timeout(t *testing.T) {
	slow := agent.SinkFunc(func(ctx context.Context, _ string, _ map[string]any) (*agent.Dispatch, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &agent.Dispatch{ID: "late"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	e := fastExecutor(slow, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:        "dispatch",
		Type:      config.StepTypeAgentCommand,
		Command:   "sync_crm",
		TimeoutMS: 50,
	}, nil)

	if result.Status != StepFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error != "Step timed out" {
		t.Errorf("expected %q, got %q", "Step timed out", result.Error)
	}
}

func TestExecute_Wait(t *testing.T) {
	e := fastExecutor(nil, nil)
	var slept time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "pause",
		Type:    config.StepTypeWait,
		DelayMS: 100,
	}, nil)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if slept != 100*time.Millisecond {
		t.Errorf("expected 100ms sleep, got %v", slept)
	}
	output := result.Output.(map[string]any)
	if output["waited_ms"] != int64(100) {
		t.Errorf("expected waited_ms 100, got %v", output["waited_ms"])
	}
}

func TestExecute_WaitClamped(t *testing.T) {
	e := fastExecutor(nil, nil)
	var slept time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "pause",
		Type:    config.StepTypeWait,
		DelayMS: 90000,
	}, nil)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if slept != MaxWaitMS*time.Millisecond {
		t.Errorf("expected clamp to %dms, slept %v", MaxWaitMS, slept)
	}
}

func TestExecute_Condition(t *testing.T) {
	e := fastExecutor(nil, nil)
	previous := []StepResult{{StepID: "fetch", Status: StepCompleted}}

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:         "gate",
		Type:       config.StepTypeCondition,
		Expression: "fetch.status == completed",
		ThenStep:   "publish",
		ElseStep:   "alert",
	}, previous)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	output := result.Output.(map[string]any)
	if output["condition_met"] != true {
		t.Errorf("expected condition met, got %v", output)
	}
	if output["next_step"] != "publish" {
		t.Errorf("expected then branch, got %v", output["next_step"])
	}
}

func TestExecute_ConditionElseBranch(t *testing.T) {
	e := fastExecutor(nil, nil)
	previous := []StepResult{{StepID: "fetch", Status: StepFailed}}

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:         "gate",
		Type:       config.StepTypeCondition,
		Expression: "fetch",
		ThenStep:   "publish",
		ElseStep:   "alert",
	}, previous)

	output := result.Output.(map[string]any)
	if output["condition_met"] != false || output["next_step"] != "alert" {
		t.Errorf("expected else branch, got %v", output)
	}
}

func TestExecute_InvalidConditionFails(t *testing.T) {
	e := fastExecutor(nil, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:         "gate",
		Type:       config.StepTypeCondition,
		Expression: "fetch.bogus ~= 1",
	}, nil)

	if result.Status != StepFailed {
		t.Errorf("expected failed for invalid expression, got %s", result.Status)
	}
}

func TestExecute_Orchestrator(t *testing.T) {
	orch := &stubOrchestration{run: &orchestrator.Run{
		ID:       "run-1",
		Status:   orchestrator.RunCompleted,
		Merged:   "all good",
		Strategy: orchestrator.StrategyMergeAll,
	}}
	e := fastExecutor(nil, orch)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:       "fanout",
		Type:     config.StepTypeOrchestrator,
		Command:  "analyze_contacts",
		AgentIDs: []string{"a", "b"},
		Strategy: orchestrator.StrategyMergeAll,
	}, nil)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s (%s)", result.Status, result.Error)
	}
	output := result.Output.(map[string]any)
	if output["merged"] != "all good" || output["run_id"] != "run-1" {
		t.Errorf("expected merged run output, got %v", output)
	}
}

func TestExecute_OrchestratorRunFailure(t *testing.T) {
	orch := &stubOrchestration{run: &orchestrator.Run{
		Status: orchestrator.RunFailed,
		Merged: orchestrator.NoAgentsCompleted,
	}}
	e := fastExecutor(nil, orch)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:       "fanout",
		Type:     config.StepTypeOrchestrator,
		Command:  "analyze_contacts",
		AgentIDs: []string{"a"},
	}, nil)

	if result.Status != StepFailed {
		t.Errorf("expected step failure for failed run, got %s", result.Status)
	}
}

func TestExecute_UnknownStepType(t *testing.T) {
	e := fastExecutor(nil, nil)

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:   "odd",
		Type: "teleport",
	}, nil)

	if result.Status != StepFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "unknown step type") {
		t.Errorf("expected unknown step type error, got %q", result.Error)
	}
}

func TestExecute_DurationCoversRetries(t *testing.T) {
	sink := &flakySink{failures: 1}
	e := NewExecutor(sink, nil, WithBackoffBase(10*time.Millisecond))

	result := e.Execute(context.Background(), &config.StepConfig{
		ID:      "dispatch",
		Type:    config.StepTypeAgentCommand,
		Command: "sync_crm",
		Retries: 1,
	}, nil)

	if result.Status != StepCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	// One backoff sleep of base*2^1 = 20ms sits inside the duration.
	if result.DurationMS < 20 {
		t.Errorf("expected duration to include backoff, got %dms", result.DurationMS)
	}
}
