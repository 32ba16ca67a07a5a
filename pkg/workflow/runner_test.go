package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/config"
)

// recordingSink remembers every dispatched command and fails the ones
// listed in failCommands.
type recordingSink struct {
	failCommands map[string]bool
	dispatched   []string
	counter      int32
}

func (s *recordingSink) Enqueue(_ context.Context, command string, _ map[string]any) (*agent.Dispatch, error) {
	s.dispatched = append(s.dispatched, command)
	if s.failCommands[command] {
		return nil, fmt.Errorf("refused: %s", command)
	}
	return &agent.Dispatch{ID: fmt.Sprintf("d-%d", atomic.AddInt32(&s.counter, 1))}, nil
}

func workflowDef(steps ...config.StepConfig) *config.WorkflowConfig {
	return &config.WorkflowConfig{Name: "test", Trigger: config.TriggerManual, Steps: steps}
}

func TestRun_AllStepsComplete(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "first", Type: config.StepTypeAgentCommand, Command: "fetch"},
		config.StepConfig{ID: "second", Type: config.StepTypeAgentCommand, Command: "publish"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(run.Results))
	}
	// Append order equals execution order.
	if run.Results[0].StepID != "first" || run.Results[1].StepID != "second" {
		t.Errorf("results out of order: %+v", run.Results)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished timestamp")
	}
}

func TestRun_OnFailureStop(t *testing.T) {
	sink := &recordingSink{failCommands: map[string]bool{"fetch": true}}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "first", Type: config.StepTypeAgentCommand, Command: "fetch", OnFailure: OnFailureStop},
		config.StepConfig{ID: "second", Type: config.StepTypeAgentCommand, Command: "publish"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
	if len(run.Results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(run.Results))
	}
	if run.Results[0].Status != StepFailed {
		t.Errorf("expected failed result, got %s", run.Results[0].Status)
	}
	if len(sink.dispatched) != 1 {
		t.Errorf("second step must never execute, dispatched %v", sink.dispatched)
	}
}

func TestRun_OnFailureContinue(t *testing.T) {
	sink := &recordingSink{failCommands: map[string]bool{"fetch": true}}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "first", Type: config.StepTypeAgentCommand, Command: "fetch", OnFailure: OnFailureContinue},
		config.StepConfig{ID: "second", Type: config.StepTypeAgentCommand, Command: "publish"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// A run that exhausts its steps completes even when a step failed
	// under the continue policy.
	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(run.Results))
	}
	if run.Results[0].Status != StepFailed || run.Results[1].Status != StepCompleted {
		t.Errorf("unexpected result statuses: %+v", run.Results)
	}
}

func TestRun_OnFailureSkip(t *testing.T) {
	sink := &recordingSink{failCommands: map[string]bool{"fetch": true}}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "first", Type: config.StepTypeAgentCommand, Command: "fetch", OnFailure: OnFailureSkip},
		config.StepConfig{ID: "gate", Type: config.StepTypeCondition, Expression: "first.status == completed"},
		config.StepConfig{ID: "last", Type: config.StepTypeAgentCommand, Command: "publish"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if len(run.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(run.Results))
	}
	// The condition depending on the failed step is skipped unexecuted;
	// independent later steps still run.
	if run.Results[1].Status != StepSkipped {
		t.Errorf("expected gate skipped, got %s", run.Results[1].Status)
	}
	if run.Results[2].Status != StepCompleted {
		t.Errorf("expected last completed, got %s", run.Results[2].Status)
	}
}

func TestRun_ConditionBranchJumps(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "fetch", Type: config.StepTypeAgentCommand, Command: "fetch"},
		config.StepConfig{ID: "gate", Type: config.StepTypeCondition, Expression: "fetch", ThenStep: "celebrate", ElseStep: "alert"},
		config.StepConfig{ID: "alert", Type: config.StepTypeAgentCommand, Command: "page_operator"},
		config.StepConfig{ID: "celebrate", Type: config.StepTypeAgentCommand, Command: "announce"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	// The then branch jumps over the alert step.
	for _, cmd := range sink.dispatched {
		if cmd == "page_operator" {
			t.Error("else branch executed despite condition being met")
		}
	}
	last := run.Results[len(run.Results)-1]
	if last.StepID != "celebrate" || last.Status != StepCompleted {
		t.Errorf("expected celebrate as final step, got %+v", last)
	}
}

func TestRun_ConditionWithoutBranchContinues(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "fetch", Type: config.StepTypeAgentCommand, Command: "fetch"},
		config.StepConfig{ID: "gate", Type: config.StepTypeCondition, Expression: "fetch"},
		config.StepConfig{ID: "next", Type: config.StepTypeAgentCommand, Command: "publish"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(run.Results) != 3 {
		t.Fatalf("expected all steps to run, got %d results", len(run.Results))
	}
}

func TestRun_BackwardBranchDoesNotCycle(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(fastExecutor(sink, nil))

	// Validation rejects backward branch targets, but a definition
	// handed to the runner directly must still terminate: the jump is
	// ignored and the run proceeds in order.
	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "fetch", Type: config.StepTypeAgentCommand, Command: "fetch"},
		config.StepConfig{ID: "gate", Type: config.StepTypeCondition, Expression: "fetch", ThenStep: "fetch"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected each step to run once, got %d results", len(run.Results))
	}
	if len(sink.dispatched) != 1 {
		t.Errorf("fetch must dispatch exactly once, got %v", sink.dispatched)
	}
}

func TestRun_InactiveWorkflowRejected(t *testing.T) {
	runner := NewRunner(fastExecutor(&recordingSink{}, nil))

	inactive := false
	def := workflowDef(config.StepConfig{ID: "s", Type: config.StepTypeAgentCommand, Command: "c"})
	def.Active = &inactive

	if _, err := runner.Execute(context.Background(), "wf-1", def); !errors.Is(err, ErrWorkflowInactive) {
		t.Errorf("expected ErrWorkflowInactive, got %v", err)
	}
}

func TestRunner_GetAndList(t *testing.T) {
	sink := &recordingSink{}
	runner := NewRunner(fastExecutor(sink, nil))

	run, err := runner.Execute(context.Background(), "wf-1", workflowDef(
		config.StepConfig{ID: "s", Type: config.StepTypeAgentCommand, Command: "c"},
	))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	fetched, err := runner.Get(run.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Status != RunCompleted {
		t.Errorf("expected completed, got %s", fetched.Status)
	}

	// Returned runs are copies.
	fetched.Results[0].Status = StepFailed
	again, _ := runner.Get(run.ID)
	if again.Results[0].Status != StepCompleted {
		t.Error("mutation of returned run leaked into the store")
	}

	if _, err := runner.Get("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if got := len(runner.List()); got != 1 {
		t.Errorf("expected 1 run listed, got %d", got)
	}
}
