// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// It is thread-safe and suitable for development, testing, and single-instance deployments.
type MemoryStore struct {
	data map[string][]time.Time
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]time.Time),
	}
}

// Append records a request instant for the identifier.
func (s *MemoryStore) Append(ctx context.Context, identifier string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[identifier] = append(s.data[identifier], at)
	return nil
}

// CountSince returns the timestamps at or after the cutoff, oldest first.
// Stale entries are pruned while we are here.
func (s *MemoryStore) CountSince(ctx context.Context, identifier string, cutoff time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timestamps, exists := s.data[identifier]
	if !exists {
		return nil, nil
	}

	// Timestamps are appended in order, so find the first live entry.
	start := 0
	for start < len(timestamps) && timestamps[start].Before(cutoff) {
		start++
	}

	if start == len(timestamps) {
		delete(s.data, identifier)
		return nil, nil
	}

	live := timestamps[start:]
	if start > 0 {
		// Re-slice into a fresh backing array so old entries can be collected.
		pruned := make([]time.Time, len(live))
		copy(pruned, live)
		s.data[identifier] = pruned
		live = pruned
	}

	result := make([]time.Time, len(live))
	copy(result, live)
	return result, nil
}

// Reset drops all recorded requests for the identifier.
func (s *MemoryStore) Reset(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, identifier)
	return nil
}

// Close closes the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]time.Time)
	return nil
}

// Size returns the number of tracked identifiers (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
