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

// Package agent models machine agents and the registry the gateway
// authorizes against.
//
// An Agent is an external autonomous or tool-like actor identified by id.
// Agents are created and transitioned by an operator; the gateway only
// reads them.
package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status is an agent lifecycle status.
type Status string

const (
	// StatusActive means the agent may be authorized.
	StatusActive Status = "active"

	// StatusInactive means the agent is disabled but may return.
	StatusInactive Status = "inactive"

	// StatusSuspended means the agent was suspended by an operator.
	StatusSuspended Status = "suspended"
)

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusInactive, StatusSuspended:
		return Status(s), true
	}
	return "", false
}

// Agent is one registry entry.
type Agent struct {
	// ID is the unique agent identifier.
	ID string `json:"id"`

	// Name is the human-readable name, used in merged output labels.
	Name string `json:"name,omitempty"`

	// Capabilities granted to this agent.
	Capabilities []string `json:"capabilities"`

	// Status gates authorization; only active agents pass.
	Status Status `json:"status"`

	// Endpoint is the agent's command URL, used by the orchestrator
	// to call it. Empty for agents that only issue commands.
	Endpoint string `json:"endpoint,omitempty"`

	// RateLimitRPM is the per-minute request budget.
	RateLimitRPM int `json:"rate_limit_rpm"`

	// AllowDestructive permits actions flagged destructive.
	AllowDestructive bool `json:"allow_destructive"`

	// CreatedAt is when the agent was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the agent was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCapability reports whether the agent holds the named capability.
func (a *Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Registry provides read access to agents for authorization plus the
// operator-facing write operations.
type Registry interface {
	// Get retrieves an agent by id.
	Get(ctx context.Context, id string) (*Agent, error)

	// List returns all agents, ordered by id.
	List(ctx context.Context) ([]*Agent, error)

	// Put registers or replaces an agent.
	Put(ctx context.Context, a *Agent) error

	// SetStatus transitions an agent's status.
	SetStatus(ctx context.Context, id string, status Status) error
}

// InMemoryRegistry is an in-memory implementation of Registry.
type InMemoryRegistry struct {
	agents map[string]*Agent
	mu     sync.RWMutex
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		agents: make(map[string]*Agent),
	}
}

// Get retrieves an agent by id.
func (r *InMemoryRegistry) Get(_ context.Context, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}

	copied := *a
	return &copied, nil
}

// List returns all agents ordered by id.
func (r *InMemoryRegistry) List(_ context.Context) ([]*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		copied := *a
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Put registers or replaces an agent.
func (r *InMemoryRegistry) Put(_ context.Context, a *Agent) error {
	if a == nil || a.ID == "" {
		return ErrInvalidAgent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	copied := *a
	if existing, ok := r.agents[a.ID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	if copied.Status == "" {
		copied.Status = StatusActive
	}

	r.agents[a.ID] = &copied
	return nil
}

// SetStatus transitions an agent's status.
func (r *InMemoryRegistry) SetStatus(_ context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return ErrAgentNotFound
	}

	a.Status = status
	a.UpdatedAt = time.Now()
	return nil
}

// Errors
var (
	ErrAgentNotFound = &AgentError{Code: "agent_not_found", Message: "agent not found"}
	ErrInvalidAgent  = &AgentError{Code: "invalid_agent", Message: "agent id is required"}
)

// AgentError is an agent registry error.
type AgentError struct {
	Code    string
	Message string
}

func (e *AgentError) Error() string {
	return e.Message
}
