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

// Package gateway is the HTTP surface of relay: the signed command
// endpoint machine agents call, plus the operator API and the usual
// health and metrics endpoints.
package gateway

import "strings"

// RouteType classifies where a command action is handled.
type RouteType string

const (
	RouteAgent       RouteType = "agent"
	RouteWorkflow    RouteType = "workflow"
	RouteIntegration RouteType = "integration"
	RouteQuery       RouteType = "query"
	RouteSystem      RouteType = "system"
)

// Route is the resolved destination for a command action.
type Route struct {
	// Type selects the handler family.
	Type RouteType

	// Key is what the handler dispatches on. For the recognized
	// prefixes it is the action's first dot segment; for system
	// routes it is the full action string.
	Key string
}

// ResolveRoute maps a command action to its handler family. Routing
// looks only at the first dot-separated segment; unrecognized prefixes
// (and actions with no dot at all) land on the system handler, keyed
// by the full action. Total over all strings, no side effects.
func ResolveRoute(action string) Route {
	prefix, _, _ := strings.Cut(action, ".")
	switch prefix {
	case "agent":
		return Route{Type: RouteAgent, Key: prefix}
	case "workflow":
		return Route{Type: RouteWorkflow, Key: prefix}
	case "integration":
		return Route{Type: RouteIntegration, Key: prefix}
	case "query":
		return Route{Type: RouteQuery, Key: prefix}
	default:
		return Route{Type: RouteSystem, Key: action}
	}
}
