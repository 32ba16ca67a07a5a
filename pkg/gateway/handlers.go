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

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/auth"
	"github.com/kadirpekel/relay/pkg/bus"
	"github.com/kadirpekel/relay/pkg/observability"
	"github.com/kadirpekel/relay/pkg/orchestrator"
	"github.com/kadirpekel/relay/pkg/ratelimit"
	"github.com/kadirpekel/relay/pkg/workflow"
)

// CommandRequest is the body of a signed command call.
type CommandRequest struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// CommandResponse is the envelope every command returns. Business
// failures ride inside a 200 with ok=false; only authentication,
// authorization and rate limiting use non-200 statuses.
type CommandResponse struct {
	OK     bool   `json:"ok"`
	Action string `json:"action,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handlers processes authenticated commands. The signature middleware
// runs before any of this; handlers can assume a verified agent.
type Handlers struct {
	registry     agent.Registry
	authorizer   *auth.Authorizer
	limiter      ratelimit.Limiter
	runner       *workflow.Runner
	orchestrator *orchestrator.Orchestrator
	sink         agent.DispatchSink
	recorder     bus.Recorder
	workflows    *workflow.DefinitionStore
	logger       *slog.Logger
}

// NewHandlers wires the command pipeline. All dependencies are
// required; workflows may be an empty store.
func NewHandlers(
	registry agent.Registry,
	authorizer *auth.Authorizer,
	limiter ratelimit.Limiter,
	runner *workflow.Runner,
	orch *orchestrator.Orchestrator,
	sink agent.DispatchSink,
	recorder bus.Recorder,
	workflows *workflow.DefinitionStore,
) (*Handlers, error) {
	if registry == nil || authorizer == nil || limiter == nil {
		return nil, fmt.Errorf("gateway: registry, authorizer and limiter are required")
	}
	if runner == nil || orch == nil || sink == nil || recorder == nil {
		return nil, fmt.Errorf("gateway: runner, orchestrator, sink and recorder are required")
	}
	if workflows == nil {
		workflows = workflow.NewDefinitionStore(nil)
	}
	return &Handlers{
		registry:     registry,
		authorizer:   authorizer,
		limiter:      limiter,
		runner:       runner,
		orchestrator: orch,
		sink:         sink,
		recorder:     recorder,
		workflows:    workflows,
		logger:       slog.Default().With("component", "gateway"),
	}, nil
}

// HandleCommand is the single command endpoint. Pipeline order is
// fixed: authorize, rate limit, route, execute.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ag := auth.GetAgent(r)
	if ag == nil {
		// Only reachable if the route is mounted without the
		// signature middleware.
		http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req CommandRequest
	if err := json.Unmarshal(auth.GetBody(r), &req); err != nil {
		writeJSON(w, http.StatusBadRequest, CommandResponse{OK: false, Error: "invalid request body"})
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, CommandResponse{OK: false, Error: "action is required"})
		return
	}

	if err := h.authorizer.Authorize(ag, req.Action); err != nil {
		h.logger.Warn("command denied",
			"agent_id", ag.ID,
			"action", req.Action,
			"reason", err.Error())
		writeJSON(w, http.StatusForbidden, CommandResponse{
			OK:     false,
			Action: req.Action,
			Error:  fmt.Sprintf("Forbidden: %s", err.Error()),
		})
		return
	}

	check, err := h.limiter.Allow(r.Context(), ag.ID, ag.RateLimitRPM)
	if err != nil {
		h.logger.Error("rate limit check failed", "agent_id", ag.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, CommandResponse{OK: false, Error: "internal error"})
		return
	}
	if !check.Allowed {
		retryAfter := int(check.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, CommandResponse{
			OK:     false,
			Action: req.Action,
			Error:  fmt.Sprintf("rate limit exceeded: %d requests per minute", check.Limit),
		})
		return
	}

	result, err := h.dispatch(r.Context(), ag, &req)
	observability.GetGlobalMetrics().RecordCommand(r.Context(), req.Action, time.Since(start), err)
	if err != nil {
		h.logger.Info("command failed",
			"agent_id", ag.ID,
			"action", req.Action,
			"error", err.Error())
		writeJSON(w, http.StatusOK, CommandResponse{OK: false, Action: req.Action, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{OK: true, Action: req.Action, Result: result})
}

// dispatch routes an authorized command to its handler family. Errors
// returned here are business failures and surface as ok=false in a 200.
func (h *Handlers) dispatch(ctx context.Context, ag *agent.Agent, req *CommandRequest) (any, error) {
	switch ResolveRoute(req.Action).Type {
	case RouteAgent:
		return h.handleAgent(ctx, ag, req)
	case RouteWorkflow:
		return h.handleWorkflow(ctx, req)
	case RouteIntegration:
		return h.handleIntegration(ctx, req)
	case RouteQuery:
		return h.handleQuery(ctx, req)
	default:
		return h.handleSystem(ctx, req)
	}
}

func (h *Handlers) handleAgent(ctx context.Context, ag *agent.Agent, req *CommandRequest) (any, error) {
	switch req.Action {
	case "agent.status":
		return map[string]any{
			"agent_id": ag.ID,
			"name":     ag.Name,
			"status":   string(ag.Status),
		}, nil
	case "agent.capabilities":
		return map[string]any{
			"agent_id":     ag.ID,
			"capabilities": ag.Capabilities,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported agent action %q", req.Action)
	}
}

func (h *Handlers) handleWorkflow(ctx context.Context, req *CommandRequest) (any, error) {
	switch req.Action {
	case "workflow.execute":
		workflowID, err := stringParam(req.Params, "workflow_id")
		if err != nil {
			return nil, err
		}
		def, err := h.workflows.Get(workflowID)
		if err != nil {
			return nil, err
		}
		run, err := h.runner.Execute(ctx, workflowID, def)
		if err != nil {
			return nil, err
		}
		// A failed run is still a successful command; the caller
		// reads the status off the run.
		return run, nil
	case "workflow.status":
		runID, err := stringParam(req.Params, "run_id")
		if err != nil {
			return nil, err
		}
		return h.runner.Get(runID)
	default:
		return nil, fmt.Errorf("unsupported workflow action %q", req.Action)
	}
}

func (h *Handlers) handleIntegration(ctx context.Context, req *CommandRequest) (any, error) {
	command, err := stringParam(req.Params, "command")
	if err != nil {
		return nil, err
	}
	payload, _ := req.Params["payload"].(map[string]any)
	receipt, err := h.sink.Enqueue(ctx, command, payload)
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.ID == "" {
		return nil, workflow.ErrDispatchFailed
	}
	return map[string]any{"dispatch_id": receipt.ID, "command": command}, nil
}

func (h *Handlers) handleQuery(ctx context.Context, req *CommandRequest) (any, error) {
	correlationID, err := stringParam(req.Params, "correlation_id")
	if err != nil {
		return nil, err
	}
	messages, err := h.recorder.ListByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"correlation_id": correlationID,
		"count":          len(messages),
		"messages":       messages,
	}, nil
}

func (h *Handlers) handleSystem(ctx context.Context, req *CommandRequest) (any, error) {
	switch req.Action {
	case "system.ping":
		return map[string]any{"pong": true, "time": time.Now().UTC().Format(time.RFC3339)}, nil
	case "system.orchestrate":
		return h.handleOrchestrate(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported system action %q", req.Action)
	}
}

func (h *Handlers) handleOrchestrate(ctx context.Context, req *CommandRequest) (any, error) {
	command, err := stringParam(req.Params, "command")
	if err != nil {
		return nil, err
	}
	agentIDs, err := stringSliceParam(req.Params, "agent_ids")
	if err != nil {
		return nil, err
	}
	strategy, _ := req.Params["strategy"].(string)
	payload, _ := req.Params["payload"].(map[string]any)

	var timeout time.Duration
	if raw, ok := req.Params["timeout_ms"]; ok {
		ms, ok := raw.(float64)
		if !ok || ms < 0 {
			return nil, fmt.Errorf("timeout_ms must be a non-negative number")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	return h.orchestrator.Orchestrate(ctx, agentIDs, command, payload, strategy, timeout)
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("param %q is required", key)
	}
	return v, nil
}

func stringSliceParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("param %q must be a non-empty list", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("param %q must contain non-empty strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
