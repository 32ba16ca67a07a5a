package auth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kadirpekel/relay/pkg/agent"
)

// AgentHeader is the request header naming the calling agent.
const AgentHeader = "X-Relay-Agent"

type contextKey string

const (
	agentContextKey  contextKey = "agent"
	claimsContextKey contextKey = "claims"
	bodyContextKey   contextKey = "body"
)

// unauthorizedBody is the single response all authentication failures
// produce, so a caller cannot distinguish a bad signature from a stale
// one or an unknown agent.
const unauthorizedBody = `{"error":"Unauthorized"}`

// SignatureMiddleware authenticates agent requests. It verifies the
// signature header against the raw body, resolves the calling agent,
// and stashes both the agent and the consumed body on the request
// context for downstream handlers.
func SignatureMiddleware(verifier *Verifier, registry agent.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
				// The three failure kinds are logged distinctly but
				// answered identically.
				slog.Warn("request signature rejected",
					"remote", r.RemoteAddr,
					"error", err)
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}

			agentID := r.Header.Get(AgentHeader)
			if agentID == "" {
				slog.Warn("signed request missing agent header", "remote", r.RemoteAddr)
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}

			ag, err := registry.Get(r.Context(), agentID)
			if err != nil {
				slog.Warn("signed request from unknown agent",
					"agent_id", agentID,
					"remote", r.RemoteAddr)
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey, ag)
			ctx = context.WithValue(ctx, bodyContextKey, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAgent returns the authenticated agent, or nil outside the
// signature middleware.
func GetAgent(r *http.Request) *agent.Agent {
	if ag, ok := r.Context().Value(agentContextKey).(*agent.Agent); ok {
		return ag
	}
	return nil
}

// GetBody returns the raw request body captured during signature
// verification.
func GetBody(r *http.Request) []byte {
	if body, ok := r.Context().Value(bodyContextKey).([]byte); ok {
		return body
	}
	return nil
}

// HTTPMiddleware validates operator Bearer tokens on admin routes.
func (v *JWTValidator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"error":"Missing Authorization header"}`, http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, `{"error":"Invalid Authorization format, expected: Bearer <token>"}`, http.StatusUnauthorized)
			return
		}

		claims, err := v.ValidateToken(r.Context(), tokenString)
		if err != nil {
			slog.Debug("operator token rejected", "error", err)
			http.Error(w, unauthorizedBody, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims returns the operator claims, or nil outside the JWT
// middleware.
func GetClaims(r *http.Request) *Claims {
	if claims, ok := r.Context().Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// RequireRole wraps HTTPMiddleware and additionally requires one of the
// allowed roles.
func RequireRole(validator *JWTValidator, allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return validator.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r)
			if claims == nil {
				http.Error(w, unauthorizedBody, http.StatusUnauthorized)
				return
			}

			for _, role := range allowedRoles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, `{"error":"Forbidden: insufficient permissions"}`, http.StatusForbidden)
		}))
	}
}
