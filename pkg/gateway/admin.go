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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/config"
	"github.com/kadirpekel/relay/pkg/workflow"
)

// Operator API. Sits behind JWT role auth, so unlike the command
// surface it uses plain REST statuses.

func (h *Handlers) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.registry.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (h *Handlers) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	ag, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrAgentNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ag)
}

func (h *Handlers) handlePutAgent(w http.ResponseWriter, r *http.Request) {
	var ag agent.Agent
	if err := json.NewDecoder(r.Body).Decode(&ag); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	ag.ID = chi.URLParam(r, "id")
	if err := h.registry.Put(r.Context(), &ag); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrInvalidAgent) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info("agent upserted", "agent_id", ag.ID)
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": ag.ID})
}

func (h *Handlers) handleSetAgentStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	status, ok := agent.ParseStatus(body.Status)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + body.Status})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.registry.SetStatus(r.Context(), id, status); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, agent.ErrAgentNotFound) {
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info("agent status changed", "agent_id", id, "status", string(status))
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": id, "status": string(status)})
}

func (h *Handlers) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	ids := h.workflows.List()
	writeJSON(w, http.StatusOK, map[string]any{"workflows": ids, "count": len(ids)})
}

func (h *Handlers) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := h.workflows.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handlers) handlePutWorkflow(w http.ResponseWriter, r *http.Request) {
	var def config.WorkflowConfig
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.workflows.Put(id, &def); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Info("workflow upserted", "workflow_id", id, "steps", len(def.Steps))
	writeJSON(w, http.StatusOK, map[string]string{"workflow_id": id})
}

func (h *Handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.runner.List()
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (h *Handlers) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Get(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) handleListMessages(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	messages, err := h.recorder.ListByCorrelation(r.Context(), correlationID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correlation_id": correlationID,
		"messages":       messages,
		"count":          len(messages),
	})
}
