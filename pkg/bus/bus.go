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

// Package bus records per-agent task messages for audit.
//
// Every command an orchestration run sends to an agent leaves a message
// on the bus keyed by the run's correlation id, and is marked delivered
// once the run resolves. An operator reconstructs what was asked of
// which agent, and when, from this trail.
package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message status values.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
)

// Message is one recorded bus entry.
type Message struct {
	ID            string     `json:"id"`
	FromAgent     string     `json:"from_agent"`
	ToAgent       string     `json:"to_agent"`
	Channel       string     `json:"channel"`
	Type          string     `json:"type"`
	Content       string     `json:"content"`
	CorrelationID string     `json:"correlation_id"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// Recorder persists bus messages.
type Recorder interface {
	// Record stores a message. A zero ID, status, or creation time is
	// filled in.
	Record(ctx context.Context, msg *Message) error

	// MarkDelivered flips every message sharing the correlation id to
	// delivered.
	MarkDelivered(ctx context.Context, correlationID string) error

	// ListByCorrelation returns the messages recorded under a
	// correlation id, oldest first.
	ListByCorrelation(ctx context.Context, correlationID string) ([]*Message, error)

	// Close releases recorder resources.
	Close() error
}

// InMemoryRecorder is an in-memory implementation of Recorder, suitable
// for development, testing, and single-instance deployments.
type InMemoryRecorder struct {
	messages []*Message
	mu       sync.RWMutex
}

// NewInMemoryRecorder creates an empty recorder.
func NewInMemoryRecorder() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Record stores a message.
func (r *InMemoryRecorder) Record(_ context.Context, msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *msg
	if copied.ID == "" {
		copied.ID = uuid.NewString()
	}
	if copied.Status == "" {
		copied.Status = StatusPending
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	r.messages = append(r.messages, &copied)
	return nil
}

// MarkDelivered flips every message under the correlation id to delivered.
func (r *InMemoryRecorder) MarkDelivered(_ context.Context, correlationID string) error {
	if correlationID == "" {
		return ErrEmptyCorrelationID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, msg := range r.messages {
		if msg.CorrelationID == correlationID && msg.Status != StatusDelivered {
			msg.Status = StatusDelivered
			msg.DeliveredAt = &now
		}
	}
	return nil
}

// ListByCorrelation returns messages under a correlation id, oldest first.
func (r *InMemoryRecorder) ListByCorrelation(_ context.Context, correlationID string) ([]*Message, error) {
	if correlationID == "" {
		return nil, ErrEmptyCorrelationID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Message
	for _, msg := range r.messages {
		if msg.CorrelationID == correlationID {
			copied := *msg
			result = append(result, &copied)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Close clears the recorder.
func (r *InMemoryRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = nil
	return nil
}
