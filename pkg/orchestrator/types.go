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

// Package orchestrator broadcasts one command to many agents
// concurrently and merges their responses under a pluggable strategy.
package orchestrator

import (
	"context"
	"time"
)

// Agent result statuses. An agent is implicitly pending until it
// resolves to one of these.
const (
	AgentCompleted = "completed"
	AgentFailed    = "failed"
	AgentTimedOut  = "timed_out"
)

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunTimedOut  = "timed_out"
)

// Merge strategy names.
const (
	StrategyFirstCompleted = "first_completed"
	StrategyBestScore      = "best_score"
	StrategyMergeAll       = "merge_all"
	StrategyConsensus      = "consensus"
)

// NoAgentsCompleted is the merged output when no agent produced a
// usable result.
const NoAgentsCompleted = "No agents completed successfully."

// Response is what an agent returns for a dispatched command.
type Response struct {
	// Response is the agent's free-form answer.
	Response string `json:"response"`

	// Score is an optional self-reported quality score, used by the
	// best_score strategy.
	Score *float64 `json:"score,omitempty"`
}

// Caller invokes a single agent with a command and waits for its
// response. Implementations must honor context cancellation; the
// orchestrator relies on it to enforce the global deadline.
type Caller interface {
	Call(ctx context.Context, agentID, command string, payload map[string]any) (*Response, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, agentID, command string, payload map[string]any) (*Response, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, agentID, command string, payload map[string]any) (*Response, error) {
	return f(ctx, agentID, command, payload)
}

// AgentResult is one agent's terminal outcome within a run.
type AgentResult struct {
	AgentID    string   `json:"agent_id"`
	AgentName  string   `json:"agent_name,omitempty"`
	Status     string   `json:"status"`
	Response   string   `json:"response,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`

	// order is the completion sequence number, used by first_completed.
	order int64
}

// Run is one fan-out/merge episode. Results are an unordered set;
// consumers must key on AgentID, never position.
type Run struct {
	ID         string        `json:"id"`
	AgentIDs   []string      `json:"agent_ids"`
	Command    string        `json:"command"`
	Strategy   string        `json:"strategy"`
	Status     string        `json:"status"`
	Results    []AgentResult `json:"results"`
	Merged     string        `json:"merged"`
	DurationMS int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}
