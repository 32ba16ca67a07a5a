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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/auth"
	"github.com/kadirpekel/relay/pkg/httpclient"
)

// HTTPCaller calls agents over HTTP at their registered endpoint.
// The request body is `{"command": ..., "payload": ...}`; the agent
// answers `{"response": ..., "score": ...}`.
type HTTPCaller struct {
	registry agent.Registry
	client   *httpclient.Client
	signer   *auth.Verifier
}

// HTTPCallerOption configures an HTTPCaller.
type HTTPCallerOption func(*HTTPCaller)

// WithClient overrides the retrying HTTP client.
func WithClient(client *httpclient.Client) HTTPCallerOption {
	return func(c *HTTPCaller) {
		if client != nil {
			c.client = client
		}
	}
}

// WithRequestSigner signs outgoing calls with the shared-secret
// scheme agents already verify inbound.
func WithRequestSigner(signer *auth.Verifier) HTTPCallerOption {
	return func(c *HTTPCaller) {
		c.signer = signer
	}
}

// NewHTTPCaller builds a Caller resolving endpoints from the registry.
func NewHTTPCaller(registry agent.Registry, opts ...HTTPCallerOption) (*HTTPCaller, error) {
	if registry == nil {
		return nil, fmt.Errorf("orchestrator: registry is required")
	}
	c := &HTTPCaller{
		registry: registry,
		client:   httpclient.New(httpclient.WithMaxRetries(2), httpclient.WithBaseDelay(time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type callBody struct {
	Command string         `json:"command"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, agentID, command string, payload map[string]any) (*Response, error) {
	ag, err := c.registry.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if ag.Endpoint == "" {
		return nil, fmt.Errorf("agent %q has no endpoint", agentID)
	}

	body, err := json.Marshal(callBody{Command: command, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding call body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ag.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		ts := time.Now().Unix()
		req.Header.Set(auth.SignatureHeader, fmt.Sprintf("t=%d,v1=%s", ts, c.signer.Sign(ts, body)))
		req.Header.Set(auth.AgentHeader, "relay")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("agent %q returned %d: %s", agentID, resp.StatusCode, data)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding agent response: %w", err)
	}
	return &out, nil
}
