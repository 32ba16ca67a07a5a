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

package agent

import (
	"context"
	"fmt"

	"github.com/kadirpekel/relay/pkg/config"
)

// NewFromConfig builds a registry seeded from configured agents.
// Config validation guarantees status strings are well formed, but an
// unknown status is still rejected here so the registry never holds one.
func NewFromConfig(agents map[string]*config.AgentConfig, defaultRateLimitRPM int) (*InMemoryRegistry, error) {
	registry := NewInMemoryRegistry()

	for id, cfg := range agents {
		if cfg == nil {
			continue
		}

		status := StatusActive
		if cfg.Status != "" {
			parsed, ok := ParseStatus(cfg.Status)
			if !ok {
				return nil, fmt.Errorf("agent %q: unknown status %q", id, cfg.Status)
			}
			status = parsed
		}

		rpm := cfg.RateLimitRPM
		if rpm <= 0 {
			rpm = defaultRateLimitRPM
		}

		a := &Agent{
			ID:               id,
			Name:             cfg.Name,
			Capabilities:     append([]string(nil), cfg.Capabilities...),
			Status:           status,
			Endpoint:         cfg.Endpoint,
			RateLimitRPM:     rpm,
			AllowDestructive: cfg.AllowDestructive,
		}
		if err := registry.Put(context.Background(), a); err != nil {
			return nil, fmt.Errorf("agent %q: %w", id, err)
		}
	}

	return registry, nil
}
