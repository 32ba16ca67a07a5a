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
	"fmt"
	"sync"
	"time"
)

// Window is the sliding window length all budgets are measured over.
const Window = time.Minute

// CheckResult describes the outcome of an admission check.
type CheckResult struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Current is the number of requests counted in the window,
	// including this one when admitted.
	Current int

	// Limit is the budget the check ran against.
	Limit int

	// RetryAfter is how long until a slot frees up. Only set when the
	// request was rejected.
	RetryAfter time.Duration
}

// Store persists request timestamps per identifier.
type Store interface {
	// Append records a request instant for the identifier.
	Append(ctx context.Context, identifier string, at time.Time) error

	// CountSince returns the timestamps at or after the cutoff, oldest
	// first. Entries before the cutoff may be discarded by the store.
	CountSince(ctx context.Context, identifier string, cutoff time.Time) ([]time.Time, error)

	// Reset drops all recorded requests for the identifier.
	Reset(ctx context.Context, identifier string) error

	// Close releases store resources.
	Close() error
}

// Limiter admits or rejects requests against a per-identifier budget.
type Limiter interface {
	// Allow checks the identifier against limitRPM and records the
	// request when admitted. limitRPM <= 0 disables limiting for the
	// identifier.
	Allow(ctx context.Context, identifier string, limitRPM int) (*CheckResult, error)

	// Reset clears recorded usage for the identifier.
	Reset(ctx context.Context, identifier string) error
}

// SlidingWindowLimiter implements Limiter over a Store.
type SlidingWindowLimiter struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

// NewLimiter creates a sliding window limiter backed by store.
func NewLimiter(store Store) (*SlidingWindowLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &SlidingWindowLimiter{
		store: store,
		now:   time.Now,
	}, nil
}

// Allow checks and records in one pass under a single lock, so
// concurrent callers never admit past the budget.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, identifier string, limitRPM int) (*CheckResult, error) {
	if identifier == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	if limitRPM <= 0 {
		return &CheckResult{Allowed: true, Limit: limitRPM}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-Window)

	recent, err := l.store.CountSince(ctx, identifier, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage for %s: %w", identifier, err)
	}

	if len(recent) >= limitRPM {
		// The oldest counted request determines when a slot opens.
		retryAfter := recent[0].Add(Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &CheckResult{
			Allowed:    false,
			Current:    len(recent),
			Limit:      limitRPM,
			RetryAfter: retryAfter,
		}, nil
	}

	if err := l.store.Append(ctx, identifier, now); err != nil {
		return nil, fmt.Errorf("failed to record usage for %s: %w", identifier, err)
	}

	return &CheckResult{
		Allowed: true,
		Current: len(recent) + 1,
		Limit:   limitRPM,
	}, nil
}

// Reset clears recorded usage for the identifier.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	return l.store.Reset(ctx, identifier)
}
