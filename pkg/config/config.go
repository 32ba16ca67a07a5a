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

// Package config defines the Relay configuration model.
//
// Configuration flows through a fixed pipeline: raw bytes from a provider,
// YAML/JSON parse, environment variable expansion, mapstructure decode,
// defaults, validation. Workflow definitions and the agent registry seed
// both live here so a single file describes a deployment.
package config

import (
	"fmt"
	"time"

	"github.com/kadirpekel/relay/pkg/observability"
)

// Config is the root Relay configuration.
type Config struct {
	// Name identifies this deployment (used in logs and traces).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Server configures the HTTP gateway server.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Gateway configures signed-command authentication and authorization.
	Gateway GatewayConfig `yaml:"gateway,omitempty" json:"gateway,omitempty"`

	// Bus configures the message bus recorder backend.
	Bus BusConfig `yaml:"bus,omitempty" json:"bus,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`

	// Agents seeds the agent registry, keyed by agent id.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty" json:"agents,omitempty"`

	// Workflows holds workflow definitions, keyed by workflow id.
	Workflows map[string]*WorkflowConfig `yaml:"workflows,omitempty" json:"workflows,omitempty"`
}

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// ReadTimeout bounds request header+body reads.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`

	// WriteTimeout bounds response writes. Must exceed the longest
	// orchestration timeout or long-running commands get cut off.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`

	// Admin configures JWT auth for the operator API. Nil disables the
	// operator surface entirely.
	Admin *AdminAuthConfig `yaml:"admin,omitempty" json:"admin,omitempty"`
}

// AdminAuthConfig configures JWT validation for operator endpoints.
type AdminAuthConfig struct {
	// JWKSURL is the provider's JWKS endpoint.
	JWKSURL string `yaml:"jwks_url" json:"jwks_url"`

	// Issuer expected in tokens.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Audience expected in tokens.
	Audience string `yaml:"audience" json:"audience"`

	// Role required to call operator endpoints (default "operator").
	Role string `yaml:"role,omitempty" json:"role,omitempty"`
}

// GatewayConfig configures machine-agent request authentication.
type GatewayConfig struct {
	// SigningSecret is the shared HMAC secret for signed commands.
	// Supports ${VAR} expansion; never commit a literal secret.
	SigningSecret string `yaml:"signing_secret" json:"signing_secret"`

	// ReplayTolerance is the signed-request freshness window.
	ReplayTolerance time.Duration `yaml:"replay_tolerance,omitempty" json:"replay_tolerance,omitempty"`

	// Capabilities maps an action name to the capability required to call
	// it. An empty value means any authenticated active agent may call the
	// action. Actions absent from the map are denied.
	Capabilities map[string]string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	// DefaultRateLimitRPM applies to agents without an explicit limit.
	DefaultRateLimitRPM int `yaml:"default_rate_limit_rpm,omitempty" json:"default_rate_limit_rpm,omitempty"`

	// AgentCACert is a CA bundle for agent endpoints behind a private CA.
	AgentCACert string `yaml:"agent_ca_cert,omitempty" json:"agent_ca_cert,omitempty"`

	// AgentTLSSkipVerify disables endpoint certificate checks. Dev only.
	AgentTLSSkipVerify bool `yaml:"agent_tls_skip_verify,omitempty" json:"agent_tls_skip_verify,omitempty"`
}

// AgentConfig seeds one registry entry.
type AgentConfig struct {
	// Name is the human-readable agent name (used in merged output labels).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Capabilities granted to this agent.
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	// Status is one of active, inactive, suspended (default active).
	Status string `yaml:"status,omitempty" json:"status,omitempty"`

	// Endpoint is the agent's command URL for orchestrated calls.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// RateLimitRPM is the per-minute request budget (0 = gateway default).
	RateLimitRPM int `yaml:"rate_limit_rpm,omitempty" json:"rate_limit_rpm,omitempty"`

	// AllowDestructive permits actions flagged destructive.
	AllowDestructive bool `yaml:"allow_destructive,omitempty" json:"allow_destructive,omitempty"`
}

// TriggerType identifies how a workflow run starts.
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerEvent     TriggerType = "event"
)

// WorkflowConfig defines one workflow.
// Definitions are immutable once a run starts; edits affect future runs only.
type WorkflowConfig struct {
	// Name is the display name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Trigger is one of manual, scheduled, event (default manual).
	Trigger TriggerType `yaml:"trigger,omitempty" json:"trigger,omitempty"`

	// Active gates execution; inactive workflows reject runs.
	Active *bool `yaml:"active,omitempty" json:"active,omitempty"`

	// Steps execute strictly in order.
	Steps []StepConfig `yaml:"steps" json:"steps"`
}

// IsActive reports whether the workflow accepts runs (default true).
func (w *WorkflowConfig) IsActive() bool {
	return w.Active == nil || *w.Active
}

// StepConfig defines one workflow step. Type selects the variant; the
// remaining fields are variant-specific and ignored by other variants.
type StepConfig struct {
	// ID must be unique within the workflow.
	ID string `yaml:"id" json:"id"`

	// Type is one of agent_command, wait, condition, orchestrator.
	Type string `yaml:"type" json:"type"`

	// Command for agent_command and orchestrator steps.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Payload forwarded with the command.
	Payload map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`

	// DelayMS for wait steps.
	DelayMS int64 `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`

	// Expression for condition steps: "<step_id>.<status|output> <==|!=> <value>"
	// or a bare "<step_id>" (true iff that step completed).
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// ThenStep / ElseStep name the step the runner should jump to.
	ThenStep string `yaml:"then_step,omitempty" json:"then_step,omitempty"`
	ElseStep string `yaml:"else_step,omitempty" json:"else_step,omitempty"`

	// AgentIDs for orchestrator steps.
	AgentIDs []string `yaml:"agent_ids,omitempty" json:"agent_ids,omitempty"`

	// Strategy for orchestrator steps (first_completed, best_score,
	// merge_all, consensus).
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty"`

	// TimeoutMS bounds one execution attempt (default 30000).
	TimeoutMS int64 `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`

	// Retries is the number of additional attempts after a failure.
	Retries int `yaml:"retries,omitempty" json:"retries,omitempty"`

	// OnFailure is one of stop, continue, skip (default stop).
	OnFailure string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// Step type names.
const (
	StepTypeAgentCommand = "agent_command"
	StepTypeWait         = "wait"
	StepTypeCondition    = "condition"
	StepTypeOrchestrator = "orchestrator"
)

// Agent status names.
const (
	AgentStatusActive    = "active"
	AgentStatusInactive  = "inactive"
	AgentStatusSuspended = "suspended"
)

// Default values applied by SetDefaults.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReplayTolerance = 5 * time.Minute
	DefaultRateLimitRPM    = 60
	DefaultAdminRole       = "operator"
)

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "relay"
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.Admin != nil && c.Server.Admin.Role == "" {
		c.Server.Admin.Role = DefaultAdminRole
	}
	if c.Gateway.ReplayTolerance == 0 {
		c.Gateway.ReplayTolerance = DefaultReplayTolerance
	}
	if c.Gateway.DefaultRateLimitRPM == 0 {
		c.Gateway.DefaultRateLimitRPM = DefaultRateLimitRPM
	}

	c.Bus.SetDefaults()

	for _, agent := range c.Agents {
		if agent.Status == "" {
			agent.Status = AgentStatusActive
		}
		if agent.RateLimitRPM == 0 {
			agent.RateLimitRPM = c.Gateway.DefaultRateLimitRPM
		}
	}

	for _, wf := range c.Workflows {
		if wf.Trigger == "" {
			wf.Trigger = TriggerManual
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Gateway.SigningSecret == "" {
		return fmt.Errorf("gateway.signing_secret is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.Admin != nil {
		if c.Server.Admin.JWKSURL == "" {
			return fmt.Errorf("server.admin.jwks_url is required when admin auth is enabled")
		}
	}

	if err := c.Bus.Validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	for id, agent := range c.Agents {
		switch agent.Status {
		case AgentStatusActive, AgentStatusInactive, AgentStatusSuspended:
		default:
			return fmt.Errorf("agent %q: invalid status %q", id, agent.Status)
		}
		if agent.RateLimitRPM < 0 {
			return fmt.Errorf("agent %q: rate_limit_rpm cannot be negative", id)
		}
	}

	for id, wf := range c.Workflows {
		if err := wf.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", id, err)
		}
	}

	return nil
}

// Validate checks a workflow definition.
//
// Dangling or backward then_step/else_step references and duplicate
// step ids are definition-time errors, never runtime failures.
func (w *WorkflowConfig) Validate() error {
	if len(w.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	index := make(map[string]int, len(w.Steps))
	for i, step := range w.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if _, ok := index[step.ID]; ok {
			return fmt.Errorf("duplicate step id %q", step.ID)
		}
		index[step.ID] = i
	}

	for i, step := range w.Steps {
		switch step.Type {
		case StepTypeAgentCommand:
			if step.Command == "" {
				return fmt.Errorf("step %q: command is required", step.ID)
			}
		case StepTypeWait:
			if step.DelayMS < 0 {
				return fmt.Errorf("step %q: delay_ms cannot be negative", step.ID)
			}
		case StepTypeCondition:
			if step.Expression == "" {
				return fmt.Errorf("step %q: expression is required", step.ID)
			}
			// Branch targets must point forward. A jump back to the
			// condition itself or an earlier step would cycle the run.
			if step.ThenStep != "" {
				target, ok := index[step.ThenStep]
				if !ok {
					return fmt.Errorf("step %q: then_step references unknown step %q", step.ID, step.ThenStep)
				}
				if target <= i {
					return fmt.Errorf("step %q: then_step %q must reference a later step", step.ID, step.ThenStep)
				}
			}
			if step.ElseStep != "" {
				target, ok := index[step.ElseStep]
				if !ok {
					return fmt.Errorf("step %q: else_step references unknown step %q", step.ID, step.ElseStep)
				}
				if target <= i {
					return fmt.Errorf("step %q: else_step %q must reference a later step", step.ID, step.ElseStep)
				}
			}
		case StepTypeOrchestrator:
			if step.Command == "" {
				return fmt.Errorf("step %q: command is required", step.ID)
			}
			if len(step.AgentIDs) == 0 {
				return fmt.Errorf("step %q: agent_ids is required", step.ID)
			}
		default:
			return fmt.Errorf("step %q: unknown type %q", step.ID, step.Type)
		}

		if step.Retries < 0 {
			return fmt.Errorf("step %q: retries cannot be negative", step.ID)
		}
		switch step.OnFailure {
		case "", "stop", "continue", "skip":
		default:
			return fmt.Errorf("step %q: invalid on_failure %q", step.ID, step.OnFailure)
		}
	}

	return nil
}
