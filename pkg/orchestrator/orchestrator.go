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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/bus"
	"github.com/kadirpekel/relay/pkg/observability"
)

// DefaultTimeout bounds a fan-out when the caller does not supply one.
const DefaultTimeout = 60 * time.Second

// Orchestrator fans a command out to agents and merges the results.
type Orchestrator struct {
	caller   Caller
	registry agent.Registry
	recorder bus.Recorder
	now      func() time.Time
}

// New creates an Orchestrator. The registry supplies agent names for
// attributable merged output; the recorder receives one audit message
// per dispatched agent.
func New(caller Caller, registry agent.Registry, recorder bus.Recorder) (*Orchestrator, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	return &Orchestrator{
		caller:   caller,
		registry: registry,
		recorder: recorder,
		now:      time.Now,
	}, nil
}

// Orchestrate dispatches command to every agent concurrently, waits for
// all of them to resolve or for the global timeout, and merges the
// outcome. Agents still pending at the deadline are marked timed_out;
// their underlying work is abandoned, not cancelled, and any late
// response is discarded.
func (o *Orchestrator) Orchestrate(ctx context.Context, agentIDs []string, command string, payload map[string]any, strategy string, timeout time.Duration) (*Run, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("at least one agent id is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	started := o.now()
	run := &Run{
		ID:        uuid.NewString(),
		AgentIDs:  agentIDs,
		Command:   command,
		Strategy:  strategy,
		Results:   make([]AgentResult, len(agentIDs)),
		StartedAt: started,
	}

	// Audit trail before any dispatch: one message per target agent,
	// correlated by the run id.
	for _, agentID := range agentIDs {
		msg := &bus.Message{
			FromAgent:     "relay",
			ToAgent:       agentID,
			Channel:       "orchestration",
			Type:          "task",
			Content:       command,
			CorrelationID: run.ID,
		}
		if err := o.recorder.Record(ctx, msg); err != nil {
			return nil, fmt.Errorf("failed to record dispatch for %s: %w", agentID, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var completionOrder int64
	g, gctx := errgroup.WithContext(callCtx)

	for i, agentID := range agentIDs {
		g.Go(func() error {
			run.Results[i] = o.callAgent(gctx, agentID, command, payload, &completionOrder)
			return nil
		})
	}

	// Goroutines never return errors; Wait is the single join point
	// guaranteeing no dispatch outlives this call.
	_ = g.Wait()

	run.Status = resolveRunStatus(run.Results)
	run.Merged = Merge(strategy, run.Results)
	run.DurationMS = o.now().Sub(started).Milliseconds()

	if err := o.recorder.MarkDelivered(ctx, run.ID); err != nil {
		slog.Warn("failed to mark orchestration delivered", "run_id", run.ID, "error", err)
	}

	observability.GetGlobalMetrics().RecordOrchestration(ctx, strategy, len(agentIDs), time.Duration(run.DurationMS)*time.Millisecond)

	slog.Info("orchestration resolved",
		"run_id", run.ID,
		"command", command,
		"strategy", strategy,
		"agents", len(agentIDs),
		"status", run.Status,
		"duration_ms", run.DurationMS)

	return run, nil
}

func (o *Orchestrator) callAgent(ctx context.Context, agentID, command string, payload map[string]any, completionOrder *int64) AgentResult {
	result := AgentResult{AgentID: agentID}
	if o.registry != nil {
		if ag, err := o.registry.Get(ctx, agentID); err == nil {
			result.AgentName = ag.Name
		}
	}

	started := o.now()
	resp, err := o.caller.Call(ctx, agentID, command, payload)
	result.DurationMS = o.now().Sub(started).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			result.Status = AgentTimedOut
			result.Error = "agent timed out"
		} else {
			result.Status = AgentFailed
			result.Error = err.Error()
		}
		return result
	}
	if resp == nil {
		result.Status = AgentFailed
		result.Error = "agent returned no response"
		return result
	}

	result.Status = AgentCompleted
	result.Response = resp.Response
	result.Score = resp.Score
	result.order = atomic.AddInt64(completionOrder, 1)
	return result
}

// resolveRunStatus is timed_out only when every agent timed out,
// completed when at least one agent completed, failed otherwise.
func resolveRunStatus(results []AgentResult) string {
	allTimedOut := true
	anyCompleted := false
	for _, r := range results {
		if r.Status != AgentTimedOut {
			allTimedOut = false
		}
		if r.Status == AgentCompleted {
			anyCompleted = true
		}
	}
	if allTimedOut {
		return RunTimedOut
	}
	if anyCompleted {
		return RunCompleted
	}
	return RunFailed
}
