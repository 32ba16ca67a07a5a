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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/relay/pkg/config"
)

// Runner sequences a workflow's steps for one run and applies each
// step's failure policy. Runs execute in the calling goroutine; the
// StepResult list is owned by that goroutine for the run's lifetime.
type Runner struct {
	executor *Executor

	runs map[string]*Run
	mu   sync.RWMutex
}

// NewRunner creates a Runner over the step executor.
func NewRunner(executor *Executor) *Runner {
	return &Runner{
		executor: executor,
		runs:     make(map[string]*Run),
	}
}

// Execute runs a workflow definition to a terminal status. The run is
// retrievable by id while and after it executes. The definition is
// read once up front; concurrent edits affect future runs only.
func (r *Runner) Execute(ctx context.Context, workflowID string, def *config.WorkflowConfig) (*Run, error) {
	if !def.IsActive() {
		return nil, ErrWorkflowInactive
	}

	run := &Run{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     RunPending,
		StartedAt:  time.Now(),
	}
	r.put(run)

	r.setStatus(run, RunRunning)
	slog.Info("workflow run started", "run_id", run.ID, "workflow_id", workflowID, "steps", len(def.Steps))

	// Step ids of failed steps whose policy was skip; condition steps
	// referencing them are skipped instead of executed.
	skippedSources := make(map[string]bool)

	steps := def.Steps
	index := make(map[string]int, len(steps))
	for i, step := range steps {
		index[step.ID] = i
	}

	i := 0
	for i < len(steps) {
		step := steps[i]

		if step.Type == config.StepTypeCondition && skippedSources[conditionSubject(step.Expression)] {
			r.appendResult(run, StepResult{StepID: step.ID, Status: StepSkipped})
			i++
			continue
		}

		result := r.executor.Execute(ctx, &step, run.Results)
		r.appendResult(run, result)

		if result.Status == StepFailed {
			switch step.OnFailure {
			case OnFailureContinue:
				i++
			case OnFailureSkip:
				skippedSources[step.ID] = true
				i++
			default: // stop
				r.finish(run, RunFailed)
				slog.Warn("workflow run failed",
					"run_id", run.ID,
					"workflow_id", workflowID,
					"step_id", step.ID,
					"error", result.Error)
				return r.Get(run.ID)
			}
			continue
		}

		// A completed condition step may redirect the run. Only
		// forward jumps are taken; definitions are validated to the
		// same rule, and ignoring anything else keeps an unvalidated
		// definition from cycling the run.
		if step.Type == config.StepTypeCondition {
			if next := conditionNextStep(result); next != "" {
				if target, ok := index[next]; ok && target > i {
					i = target
					continue
				}
			}
		}
		i++
	}

	r.finish(run, RunCompleted)
	slog.Info("workflow run completed", "run_id", run.ID, "workflow_id", workflowID, "results", len(run.Results))
	return r.Get(run.ID)
}

// Get returns a copy of a run by id.
func (r *Runner) Get(runID string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return copyRun(run), nil
}

// List returns copies of all known runs.
func (r *Runner) List() []*Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		result = append(result, copyRun(run))
	}
	return result
}

func (r *Runner) put(run *Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

func (r *Runner) setStatus(run *Run, status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.Status = status
}

func (r *Runner) appendResult(run *Run, result StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.Results = append(run.Results, result)
}

func (r *Runner) finish(run *Run, status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.Status = status
	now := time.Now()
	run.FinishedAt = &now
}

func copyRun(run *Run) *Run {
	copied := *run
	copied.Results = append([]StepResult(nil), run.Results...)
	return &copied
}

// conditionNextStep extracts the branch target from a condition step's
// output.
func conditionNextStep(result StepResult) string {
	output, ok := result.Output.(map[string]any)
	if !ok {
		return ""
	}
	next, _ := output["next_step"].(string)
	return next
}
