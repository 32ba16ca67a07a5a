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

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadirpekel/relay/pkg/agent"
	"github.com/kadirpekel/relay/pkg/auth"
	"github.com/kadirpekel/relay/pkg/observability"
)

const (
	DefaultHost = "0.0.0.0"
	DefaultPort = 8080

	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 120 * time.Second
)

// Server hosts the command endpoint, the operator API and the
// health/metrics endpoints.
type Server struct {
	host         string
	port         int
	readTimeout  time.Duration
	writeTimeout time.Duration

	handlers  *Handlers
	verifier  *auth.Verifier
	registry  agent.Registry
	validator *auth.JWTValidator
	adminRole string

	httpServer *http.Server
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddress sets the bind host and port.
func WithAddress(host string, port int) ServerOption {
	return func(s *Server) {
		if host != "" {
			s.host = host
		}
		if port > 0 {
			s.port = port
		}
	}
}

// WithTimeouts overrides the HTTP read and write timeouts. The write
// timeout must outlast the longest orchestration a command can start.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// WithAdminAuth enables the operator API behind JWT role auth.
func WithAdminAuth(validator *auth.JWTValidator, role string) ServerOption {
	return func(s *Server) {
		s.validator = validator
		if role != "" {
			s.adminRole = role
		}
	}
}

// NewServer builds the gateway server. The operator API stays off
// unless WithAdminAuth is given.
func NewServer(handlers *Handlers, verifier *auth.Verifier, registry agent.Registry, opts ...ServerOption) (*Server, error) {
	if handlers == nil {
		return nil, fmt.Errorf("gateway: handlers are required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("gateway: signature verifier is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("gateway: agent registry is required")
	}

	s := &Server{
		host:         DefaultHost,
		port:         DefaultPort,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		handlers:     handlers,
		verifier:     verifier,
		registry:     registry,
		adminRole:    "operator",
		logger:       slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.routes(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}
	return s, nil
}

// Address returns the host:port the server binds to.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.SignatureMiddleware(s.verifier, s.registry))
			r.Post("/commands", s.handlers.HandleCommand)
		})

		if s.validator != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(s.validator, s.adminRole))
				r.Get("/agents", s.handlers.handleListAgents)
				r.Get("/agents/{id}", s.handlers.handleGetAgent)
				r.Put("/agents/{id}", s.handlers.handlePutAgent)
				r.Post("/agents/{id}/status", s.handlers.handleSetAgentStatus)
				r.Get("/workflows", s.handlers.handleListWorkflows)
				r.Get("/workflows/{id}", s.handlers.handleGetWorkflow)
				r.Put("/workflows/{id}", s.handlers.handlePutWorkflow)
				r.Get("/runs", s.handlers.handleListRuns)
				r.Get("/runs/{id}", s.handlers.handleGetRun)
				r.Get("/messages/{correlationID}", s.handlers.handleListMessages)
			})
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start runs the server until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting gateway server", "address", s.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests, bounded to five seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
