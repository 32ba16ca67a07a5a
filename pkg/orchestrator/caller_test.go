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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/auth"
	"github.com/kadirpekel/relay/pkg/httpclient"
)

func TestHTTPCaller_Call(t *testing.T) {
	var gotBody callBody
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(auth.SignatureHeader)
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		score := 0.8
		_ = json.NewEncoder(w).Encode(Response{Response: "summary ready", Score: &score})
	}))
	defer server.Close()

	registry := agent.NewInMemoryRegistry()
	if err := registry.Put(context.Background(), &agent.Agent{
		ID:       "agent-a",
		Endpoint: server.URL,
	}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}

	signer, err := auth.NewVerifier("shared-secret")
	if err != nil {
		t.Fatalf("building signer: %v", err)
	}
	caller, err := NewHTTPCaller(registry, WithRequestSigner(signer))
	if err != nil {
		t.Fatalf("building caller: %v", err)
	}

	resp, err := caller.Call(context.Background(), "agent-a", "summarize", map[string]any{"doc": "x"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Response != "summary ready" {
		t.Errorf("response = %q, want summary ready", resp.Response)
	}
	if resp.Score == nil || *resp.Score != 0.8 {
		t.Errorf("score = %v, want 0.8", resp.Score)
	}
	if gotBody.Command != "summarize" {
		t.Errorf("command = %q, want summarize", gotBody.Command)
	}
	if gotSignature == "" {
		t.Error("expected signed outbound request")
	}
}

func TestHTTPCaller_ErrorPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := agent.NewInMemoryRegistry()
	seed := []*agent.Agent{
		{ID: "broken", Endpoint: server.URL},
		{ID: "endpointless"},
	}
	for _, ag := range seed {
		if err := registry.Put(context.Background(), ag); err != nil {
			t.Fatalf("seeding registry: %v", err)
		}
	}

	caller, err := NewHTTPCaller(registry, WithClient(httpclient.New(httpclient.WithMaxRetries(0))))
	if err != nil {
		t.Fatalf("building caller: %v", err)
	}

	if _, err := caller.Call(context.Background(), "broken", "go", nil); err == nil {
		t.Error("expected error for 500 from agent")
	}
	if _, err := caller.Call(context.Background(), "endpointless", "go", nil); err == nil {
		t.Error("expected error for agent without endpoint")
	}
	if _, err := caller.Call(context.Background(), "unknown", "go", nil); err == nil {
		t.Error("expected error for unknown agent")
	}
}
