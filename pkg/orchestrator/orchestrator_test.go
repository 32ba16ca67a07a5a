package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/bus"
)

// scriptedCaller resolves each agent with a canned outcome. A negative
// delay means block until the context deadline.
type scriptedOutcome struct {
	response string
	score    *float64
	err      error
	delay    time.Duration
	hang     bool
}

func scriptedCaller(outcomes map[string]scriptedOutcome) Caller {
	return CallerFunc(func(ctx context.Context, agentID, command string, payload map[string]any) (*Response, error) {
		outcome, ok := outcomes[agentID]
		if !ok {
			return nil, fmt.Errorf("unscripted agent %s", agentID)
		}
		if outcome.hang {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if outcome.delay > 0 {
			select {
			case <-time.After(outcome.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if outcome.err != nil {
			return nil, outcome.err
		}
		return &Response{Response: outcome.response, Score: outcome.score}, nil
	})
}

func newTestOrchestrator(t *testing.T, caller Caller, recorder bus.Recorder) *Orchestrator {
	t.Helper()

	registry := agent.NewInMemoryRegistry()
	ctx := context.Background()
	for id, name := range map[string]string{"agent-a": "Alpha", "agent-b": "Bravo", "agent-c": "Charlie"} {
		if err := registry.Put(ctx, &agent.Agent{ID: id, Name: name}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	o, err := New(caller, registry, recorder)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

func TestOrchestrate_ConsensusEndToEnd(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {response: "contacts look healthy"},
		"agent-b": {err: fmt.Errorf("analysis crashed")},
		"agent-c": {response: "two duplicates found"},
	})
	recorder := bus.NewInMemoryRecorder()
	o := newTestOrchestrator(t, caller, recorder)

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b", "agent-c"},
		"analyze_contacts", nil, StrategyConsensus, 5*time.Second)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if run.Status != RunCompleted {
		t.Errorf("expected completed run, got %s", run.Status)
	}
	if !strings.Contains(run.Merged, "2 of 3 agents responded.") {
		t.Errorf("expected consensus prefix, got %q", run.Merged)
	}
	if !strings.Contains(run.Merged, "contacts look healthy") || !strings.Contains(run.Merged, "two duplicates found") {
		t.Errorf("expected both completed responses, got %q", run.Merged)
	}
	if strings.Contains(run.Merged, "analysis crashed") {
		t.Errorf("failed agent's error leaked into merged output: %q", run.Merged)
	}
}

func TestOrchestrate_RecordsBusMessages(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {response: "ok"},
		"agent-b": {response: "ok"},
	})
	recorder := bus.NewInMemoryRecorder()
	o := newTestOrchestrator(t, caller, recorder)

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "sync_calendars", nil, StrategyMergeAll, time.Second)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	messages, err := recorder.ListByCorrelation(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListByCorrelation failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected one message per agent, got %d", len(messages))
	}
	for _, msg := range messages {
		if msg.Status != bus.StatusDelivered {
			t.Errorf("expected delivered after resolution, got %s", msg.Status)
		}
		if msg.Content != "sync_calendars" {
			t.Errorf("expected command as content, got %q", msg.Content)
		}
	}
}

func TestOrchestrate_GlobalTimeout(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {response: "quick"},
		"agent-b": {hang: true},
	})
	o := newTestOrchestrator(t, caller, bus.NewInMemoryRecorder())

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "cmd", nil, StrategyMergeAll, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	byID := make(map[string]AgentResult)
	for _, r := range run.Results {
		byID[r.AgentID] = r
	}
	if byID["agent-a"].Status != AgentCompleted {
		t.Errorf("expected agent-a completed, got %s", byID["agent-a"].Status)
	}
	if byID["agent-b"].Status != AgentTimedOut {
		t.Errorf("expected agent-b timed_out, got %s", byID["agent-b"].Status)
	}
	if run.Status != RunCompleted {
		t.Errorf("one completion still completes the run, got %s", run.Status)
	}
	if run.Merged != "quick" {
		t.Errorf("late agent must not contribute, got %q", run.Merged)
	}
}

func TestOrchestrate_AllTimedOut(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {hang: true},
		"agent-b": {hang: true},
	})
	o := newTestOrchestrator(t, caller, bus.NewInMemoryRecorder())

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "cmd", nil, StrategyFirstCompleted, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if run.Status != RunTimedOut {
		t.Errorf("expected timed_out run, got %s", run.Status)
	}
	if run.Merged != NoAgentsCompleted {
		t.Errorf("expected %q, got %q", NoAgentsCompleted, run.Merged)
	}
}

func TestOrchestrate_AllFailed(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {err: fmt.Errorf("boom")},
		"agent-b": {err: fmt.Errorf("bang")},
	})
	o := newTestOrchestrator(t, caller, bus.NewInMemoryRecorder())

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "cmd", nil, StrategyMergeAll, time.Second)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if run.Status != RunFailed {
		t.Errorf("expected failed run, got %s", run.Status)
	}
}

func TestOrchestrate_FirstCompletedOrder(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {response: "slow", delay: 80 * time.Millisecond},
		"agent-b": {response: "fast", delay: 5 * time.Millisecond},
	})
	o := newTestOrchestrator(t, caller, bus.NewInMemoryRecorder())

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "cmd", nil, StrategyFirstCompleted, time.Second)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if run.Merged != "fast" {
		t.Errorf("expected first completion to win, got %q", run.Merged)
	}
}

func TestOrchestrate_RequiresAgents(t *testing.T) {
	o := newTestOrchestrator(t, scriptedCaller(nil), bus.NewInMemoryRecorder())

	if _, err := o.Orchestrate(context.Background(), nil, "cmd", nil, StrategyMergeAll, time.Second); err == nil {
		t.Error("expected error for empty agent list")
	}
}

func TestOrchestrate_AgentNamesFromRegistry(t *testing.T) {
	caller := scriptedCaller(map[string]scriptedOutcome{
		"agent-a": {response: "one"},
		"agent-b": {response: "two"},
	})
	o := newTestOrchestrator(t, caller, bus.NewInMemoryRecorder())

	run, err := o.Orchestrate(context.Background(),
		[]string{"agent-a", "agent-b"}, "cmd", nil, StrategyMergeAll, time.Second)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if !strings.Contains(run.Merged, "[Agent Alpha]:") || !strings.Contains(run.Merged, "[Agent Bravo]:") {
		t.Errorf("expected registry names in labels, got %q", run.Merged)
	}
}
