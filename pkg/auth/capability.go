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

package auth

import (
	"fmt"

	"github.com/kadirpekel/relay/pkg/agent"
)

// DefaultCapabilities is the built-in action to required-capability
// mapping. An empty requirement means any authenticated agent may call
// the action. Deployments extend or replace it through configuration.
var DefaultCapabilities = map[string]string{
	"agent.status":         "",
	"agent.capabilities":   "",
	"workflow.execute":     "workflows:execute",
	"workflow.status":      "workflows:read",
	"integration.dispatch": "integrations:dispatch",
	"query.results":        "queries:read",
	"system.ping":          "",
	"system.orchestrate":   "orchestration:run",
}

// Authorizer decides whether an agent may perform an action.
// The action map is injected at construction so authorization rules are
// testable in isolation and swappable per deployment.
type Authorizer struct {
	actions map[string]string
}

// NewAuthorizer creates an Authorizer over the given action map.
// A nil map falls back to DefaultCapabilities.
func NewAuthorizer(actions map[string]string) *Authorizer {
	if actions == nil {
		actions = DefaultCapabilities
	}
	return &Authorizer{actions: actions}
}

// CanPerform reports whether the capability set satisfies the action's
// requirement. Unknown actions are always denied; new actions must be
// allow-listed explicitly.
func (a *Authorizer) CanPerform(capabilities []string, action string) bool {
	required, known := a.actions[action]
	if !known {
		return false
	}
	if required == "" {
		return true
	}
	for _, c := range capabilities {
		if c == required {
			return true
		}
	}
	return false
}

// Authorize checks agent status and capability for an action. Status is
// checked first so a suspended agent is denied even on open actions.
func (a *Authorizer) Authorize(ag *agent.Agent, action string) error {
	if ag.Status != agent.StatusActive {
		return fmt.Errorf("%w: agent %s is %s", ErrAgentNotActive, ag.ID, ag.Status)
	}

	required, known := a.actions[action]
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if required == "" {
		return nil
	}
	if !ag.HasCapability(required) {
		return fmt.Errorf("%w: action %s requires %s", ErrCapabilityDenied, action, required)
	}
	return nil
}
