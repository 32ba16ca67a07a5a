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

package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kadirpekel/relay/pkg/config"
)

// DefinitionStore holds workflow definitions by id. Definitions are
// validated on the way in, so runs never see a dangling branch target
// or a duplicate step id.
type DefinitionStore struct {
	mu          sync.RWMutex
	definitions map[string]*config.WorkflowConfig
}

// NewDefinitionStore seeds a store from config. Definitions must
// already be validated (config.Validate does this at load time).
func NewDefinitionStore(definitions map[string]*config.WorkflowConfig) *DefinitionStore {
	store := &DefinitionStore{
		definitions: make(map[string]*config.WorkflowConfig, len(definitions)),
	}
	for id, def := range definitions {
		store.definitions[id] = def
	}
	return store
}

// Get returns the definition for id.
func (s *DefinitionStore) Get(id string) (*config.WorkflowConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[id]
	if !ok {
		return nil, fmt.Errorf("workflow %q not found", id)
	}
	return def, nil
}

// Put validates and stores a definition. Existing runs keep the
// definition they started with; only future runs see the update.
func (s *DefinitionStore) Put(id string, def *config.WorkflowConfig) error {
	if id == "" {
		return fmt.Errorf("workflow id is required")
	}
	if def == nil {
		return fmt.Errorf("workflow definition is required")
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("workflow %q: %w", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[id] = def
	return nil
}

// List returns workflow ids in sorted order.
func (s *DefinitionStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
