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
	"fmt"

	"github.com/kadirpekel/relay/pkg/config"
)

// NewFromConfig creates a Recorder from configuration. A nil config
// yields the in-memory recorder.
func NewFromConfig(cfg *config.BusConfig) (Recorder, error) {
	if cfg == nil {
		return NewInMemoryRecorder(), nil
	}

	switch cfg.Backend {
	case "", config.BusBackendInMemory:
		return NewInMemoryRecorder(), nil
	case config.BusBackendSQL:
		return NewSQLRecorderFromConfig(cfg)
	default:
		return nil, fmt.Errorf("unsupported bus backend: %s", cfg.Backend)
	}
}
