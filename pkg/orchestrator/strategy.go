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
	"fmt"
	"strings"
)

// Merge combines a run's agent results into a single output. It is a
// pure function of the result set and strategy name, so repeated calls
// yield identical output. An unrecognized strategy merges everything
// rather than erroring.
func Merge(strategy string, results []AgentResult) string {
	switch strategy {
	case StrategyFirstCompleted:
		return mergeFirstCompleted(results)
	case StrategyBestScore:
		return mergeBestScore(results)
	case StrategyConsensus:
		return mergeConsensus(results)
	default:
		return mergeAll(results)
	}
}

func completedResults(results []AgentResult) []AgentResult {
	var completed []AgentResult
	for _, r := range results {
		if r.Status == AgentCompleted {
			completed = append(completed, r)
		}
	}
	return completed
}

// agentLabel names an agent for attributable output, falling back to a
// truncated id when no name is known.
func agentLabel(r AgentResult) string {
	if r.AgentName != "" {
		return r.AgentName
	}
	if len(r.AgentID) > 8 {
		return r.AgentID[:8]
	}
	return r.AgentID
}

func mergeFirstCompleted(results []AgentResult) string {
	var first *AgentResult
	for i := range results {
		r := &results[i]
		if r.Status != AgentCompleted {
			continue
		}
		if first == nil || r.order < first.order {
			first = r
		}
	}
	if first == nil {
		return NoAgentsCompleted
	}
	return first.Response
}

func mergeBestScore(results []AgentResult) string {
	completed := completedResults(results)
	if len(completed) == 0 {
		return NoAgentsCompleted
	}

	var best *AgentResult
	for i := range completed {
		r := &completed[i]
		if r.Score == nil {
			continue
		}
		if best == nil || *r.Score > *best.Score {
			best = r
		}
	}
	if best != nil {
		return best.Response
	}

	// No agent reported a score; fastest response stands in as the
	// quality proxy.
	fastest := &completed[0]
	for i := range completed {
		if completed[i].DurationMS < fastest.DurationMS {
			fastest = &completed[i]
		}
	}
	return fastest.Response
}

func mergeAll(results []AgentResult) string {
	completed := completedResults(results)
	switch len(completed) {
	case 0:
		return NoAgentsCompleted
	case 1:
		return completed[0].Response
	}

	parts := make([]string, 0, len(completed))
	for _, r := range completed {
		parts = append(parts, fmt.Sprintf("[Agent %s]: %s", agentLabel(r), r.Response))
	}
	return strings.Join(parts, "\n\n")
}

func mergeConsensus(results []AgentResult) string {
	completed := completedResults(results)
	switch len(completed) {
	case 0:
		return NoAgentsCompleted
	case 1:
		return completed[0].Response
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d agents responded.\n\n", len(completed), len(results))
	parts := make([]string, 0, len(completed))
	for _, r := range completed {
		parts = append(parts, fmt.Sprintf("[Agent %s]: %s", agentLabel(r), r.Response))
	}
	b.WriteString(strings.Join(parts, "\n\n"))
	return b.String()
}
