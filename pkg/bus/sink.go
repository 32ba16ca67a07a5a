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

package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirpekel/relay/pkg/agent"
)

// Sink is a bus-backed dispatch sink: every enqueued command becomes a
// pending bus message, keyed by the dispatch id, that a downstream
// consumer drains by correlation id.
type Sink struct {
	recorder  Recorder
	fromAgent string
}

// NewSink builds a Sink recording on behalf of fromAgent.
func NewSink(recorder Recorder, fromAgent string) (*Sink, error) {
	if recorder == nil {
		return nil, fmt.Errorf("bus: recorder is required")
	}
	if fromAgent == "" {
		fromAgent = "relay"
	}
	return &Sink{recorder: recorder, fromAgent: fromAgent}, nil
}

// Enqueue implements agent.DispatchSink.
func (s *Sink) Enqueue(ctx context.Context, command string, payload map[string]any) (*agent.Dispatch, error) {
	if command == "" {
		return nil, fmt.Errorf("bus: command is required")
	}

	content := command
	if len(payload) > 0 {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("bus: encoding payload: %w", err)
		}
		content = fmt.Sprintf("%s %s", command, encoded)
	}

	dispatchID := uuid.NewString()
	msg := &Message{
		FromAgent:     s.fromAgent,
		Channel:       "dispatch",
		Type:          "command",
		Content:       content,
		CorrelationID: dispatchID,
	}
	if err := s.recorder.Record(ctx, msg); err != nil {
		return nil, fmt.Errorf("bus: recording dispatch: %w", err)
	}
	return &agent.Dispatch{ID: dispatchID}, nil
}
