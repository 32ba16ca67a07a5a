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

import "context"

// Dispatch is the receipt returned when a command is handed to the
// downstream delivery system.
type Dispatch struct {
	// ID identifies the enqueued command downstream. An empty ID means
	// the dispatch was not accepted.
	ID string `json:"id"`
}

// DispatchSink hands commands to the delivery system that actually
// reaches agents. Relay does not deliver itself; it records intent and
// enqueues.
type DispatchSink interface {
	// Enqueue submits a command with its payload. A nil receipt or an
	// empty receipt ID, with a nil error, signals a rejected dispatch.
	Enqueue(ctx context.Context, command string, payload map[string]any) (*Dispatch, error)
}

// SinkFunc adapts a function to the DispatchSink interface.
type SinkFunc func(ctx context.Context, command string, payload map[string]any) (*Dispatch, error)

// Enqueue implements DispatchSink.
func (f SinkFunc) Enqueue(ctx context.Context, command string, payload map[string]any) (*Dispatch, error) {
	return f(ctx, command, payload)
}
