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

// Package workflow executes multi-step automation workflows.
//
// A run moves Pending -> Running -> {Completed, Failed}. Steps execute
// strictly in definition order; each step's failure policy decides
// whether a failure stops the run, is carried past, or skips dependent
// condition steps. Step failure is data (a StepResult with a failed
// status), never a control-flow error out of the runner.
package workflow

import "time"

// RunStatus is a workflow run lifecycle status.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepStatus is a step result status.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Failure policies.
const (
	OnFailureStop     = "stop"
	OnFailureContinue = "continue"
	OnFailureSkip     = "skip"
)

// StepResult is one step's terminal outcome. Immutable after creation;
// later condition steps read it, nothing rewrites it.
type StepResult struct {
	StepID     string     `json:"step_id"`
	Status     StepStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// Run is one execution instance of a workflow definition. Results are
// append-only and ordered by execution.
type Run struct {
	ID         string       `json:"id"`
	WorkflowID string       `json:"workflow_id"`
	Status     RunStatus    `json:"status"`
	Results    []StepResult `json:"results"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// findResult returns the result for a step id, or nil.
func findResult(results []StepResult, stepID string) *StepResult {
	for i := range results {
		if results[i].StepID == stepID {
			return &results[i]
		}
	}
	return nil
}
