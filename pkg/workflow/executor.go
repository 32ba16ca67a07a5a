// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/config"
	"github.com/kadirpekel/relay/pkg/observability"
	"github.com/kadirpekel/relay/pkg/orchestrator"
)

const (
	// DefaultStepTimeout bounds one attempt when the step sets none.
	DefaultStepTimeout = 30 * time.Second

	// MaxWaitMS clamps a wait step so one step cannot block a run
	// indefinitely.
	MaxWaitMS = 25000

	// DefaultBackoffBase seeds the exponential retry backoff.
	DefaultBackoffBase = 500 * time.Millisecond
)

// OrchestrationService is the fan-out collaborator for orchestrator
// steps.
type OrchestrationService interface {
	Orchestrate(ctx context.Context, agentIDs []string, command string, payload map[string]any, strategy string, timeout time.Duration) (*orchestrator.Run, error)
}

// Executor runs a single workflow step with bounded timeout and
// bounded retry. Execute never returns an error; every outcome is a
// terminal StepResult.
type Executor struct {
	sink         agent.DispatchSink
	orchestrator OrchestrationService
	backoffBase  time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBackoffBase overrides the retry backoff base delay.
func WithBackoffBase(base time.Duration) ExecutorOption {
	return func(e *Executor) {
		if base > 0 {
			e.backoffBase = base
		}
	}
}

// NewExecutor creates an Executor over the dispatch sink and the
// orchestration service.
func NewExecutor(sink agent.DispatchSink, orchestrationService OrchestrationService, opts ...ExecutorOption) *Executor {
	e := &Executor{
		sink:         sink,
		orchestrator: orchestrationService,
		backoffBase:  DefaultBackoffBase,
		now:          time.Now,
		sleep:        contextSleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs one step against the accumulated prior results.
// Duration covers the whole attempt sequence including backoff sleeps.
func (e *Executor) Execute(ctx context.Context, step *config.StepConfig, previous []StepResult) StepResult {
	started := e.now()

	var output any
	var lastErr error

	maxAttempts := step.Retries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, lastErr = e.runAttempt(ctx, step, previous)
		if lastErr == nil {
			break
		}

		slog.Debug("step attempt failed",
			"step_id", step.ID,
			"type", step.Type,
			"attempt", attempt,
			"error", lastErr)

		if attempt < maxAttempts {
			backoff := e.backoffBase * time.Duration(1<<attempt)
			if err := e.sleep(ctx, backoff); err != nil {
				// Cancelled mid-backoff: give up with the attempt's error.
				break
			}
		}
	}

	result := StepResult{
		StepID:     step.ID,
		DurationMS: e.now().Sub(started).Milliseconds(),
	}
	if lastErr != nil {
		result.Status = StepFailed
		result.Error = lastErr.Error()
	} else {
		result.Status = StepCompleted
		result.Output = output
	}

	observability.GetGlobalMetrics().RecordStep(ctx, step.Type,
		time.Duration(result.DurationMS)*time.Millisecond, result.Status == StepFailed)

	return result
}

// runAttempt races one attempt against the step timeout.
func (e *Executor) runAttempt(ctx context.Context, step *config.StepConfig, previous []StepResult) (any, error) {
	timeout := DefaultStepTimeout
	if step.TimeoutMS > 0 {
		timeout = time.Duration(step.TimeoutMS) * time.Millisecond
	}
	if step.Type == config.StepTypeOrchestrator {
		// The orchestrator enforces the same deadline internally and
		// returns a resolved run at it; the race here only guards a
		// stuck collaborator, so it gets a grace margin.
		timeout += time.Second
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attemptOutcome struct {
		output any
		err    error
	}
	done := make(chan attemptOutcome, 1)

	go func() {
		output, err := e.runStep(attemptCtx, step, previous)
		done <- attemptOutcome{output: output, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.output, outcome.err
	case <-attemptCtx.Done():
		// The attempt is abandoned, not stopped; a late outcome is
		// discarded via the buffered channel.
		return nil, ErrStepTimeout
	}
}

func (e *Executor) runStep(ctx context.Context, step *config.StepConfig, previous []StepResult) (any, error) {
	switch step.Type {
	case config.StepTypeAgentCommand:
		return e.runAgentCommand(ctx, step)
	case config.StepTypeWait:
		return e.runWait(ctx, step)
	case config.StepTypeCondition:
		return e.runCondition(step, previous)
	case config.StepTypeOrchestrator:
		return e.runOrchestrator(ctx, step)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
	}
}

func (e *Executor) runAgentCommand(ctx context.Context, step *config.StepConfig) (any, error) {
	dispatch, err := e.sink.Enqueue(ctx, step.Command, step.Payload)
	if err != nil {
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}
	if dispatch == nil || dispatch.ID == "" {
		return nil, ErrDispatchFailed
	}
	return map[string]any{
		"dispatch_id": dispatch.ID,
		"command":     step.Command,
	}, nil
}

func (e *Executor) runWait(ctx context.Context, step *config.StepConfig) (any, error) {
	delayMS := step.DelayMS
	if delayMS > MaxWaitMS {
		delayMS = MaxWaitMS
	}
	if err := e.sleep(ctx, time.Duration(delayMS)*time.Millisecond); err != nil {
		return nil, err
	}
	return map[string]any{"waited_ms": delayMS}, nil
}

func (e *Executor) runCondition(step *config.StepConfig, previous []StepResult) (any, error) {
	met, err := EvaluateCondition(step.Expression, previous)
	if err != nil {
		return nil, err
	}

	// Branch selection only; the runner owns the actual jump.
	nextStep := step.ElseStep
	if met {
		nextStep = step.ThenStep
	}
	return map[string]any{
		"condition_met": met,
		"next_step":     nextStep,
	}, nil
}

func (e *Executor) runOrchestrator(ctx context.Context, step *config.StepConfig) (any, error) {
	timeout := time.Duration(step.TimeoutMS) * time.Millisecond
	run, err := e.orchestrator.Orchestrate(ctx, step.AgentIDs, step.Command, step.Payload, step.Strategy, timeout)
	if err != nil {
		return nil, fmt.Errorf("orchestration failed: %w", err)
	}
	if run.Status != orchestrator.RunCompleted {
		return nil, fmt.Errorf("orchestration %s: %s", run.Status, run.Merged)
	}
	return map[string]any{
		"run_id":   run.ID,
		"status":   run.Status,
		"merged":   run.Merged,
		"strategy": run.Strategy,
	}, nil
}
