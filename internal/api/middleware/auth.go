// Package middleware provides HTTP middleware components for the ingestion core API.
package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// pluginContextKey is the context key for authenticated plugin information.
type pluginContextKey struct{}

// PluginContext carries the identity an API key resolved to, enriched
// into the request context by AuthenticatePlugin and consumed downstream
// by the per-plugin rate limiter tier.
type PluginContext struct {
	// PluginID identifies the caller for per-plugin rate limiting.
	PluginID string

	// Name is the human-readable plugin name for logging.
	Name string

	// KeyID is the API key ID used for authentication (for audit logging).
	KeyID string

	// AuthTime is when authentication occurred.
	AuthTime time.Time
}

// GetPluginContext extracts plugin context from the request context.
// Returns (context, true) if the request was authenticated.
func GetPluginContext(ctx context.Context) (PluginContext, bool) {
	pluginCtx, ok := ctx.Value(pluginContextKey{}).(PluginContext)

	return pluginCtx, ok
}

// SetPluginContext adds plugin context to the request context.
func SetPluginContext(ctx context.Context, pluginCtx PluginContext) context.Context {
	return context.WithValue(ctx, pluginContextKey{}, pluginCtx)
}

// APIKeyStore resolves an API key to the plugin it authenticates. The
// ingestion core does not mint or rotate keys itself (see DESIGN.md's
// note on dropping golang.org/x/crypto) — a caller wires a concrete
// store only when it wants the auth stage to actually reject requests.
type APIKeyStore interface {
	FindByKey(ctx context.Context, key string) (PluginContext, bool)
}

// AuthenticatePlugin returns a middleware that extracts an API key from
// the X-Api-Key (primary) or Authorization: Bearer (fallback) header and,
// if store resolves it, enriches the request context with PluginContext
// so the rate limiter's per-plugin tier can key off PluginID.
//
// If store is nil, this stage is a pass-through: every request continues
// unauthenticated and the rate limiter falls back to its unauthenticated
// tier — this is the optional-plugin-auth shape SPEC_FULL.md describes,
// mirroring WithRateLimit's nil-skips-stage convention elsewhere in this
// chain.
func AuthenticatePlugin(store APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := GetCorrelationID(r.Context())

			apiKey, found := extractAPIKey(r)
			if !found {
				next.ServeHTTP(w, r)
				return
			}

			pluginCtx, ok := store.FindByKey(r.Context(), apiKey)
			if !ok {
				logger.Warn("rejected invalid API key",
					slog.String("correlation_id", correlationID),
					slog.String("path", r.URL.Path),
				)

				if err := writeRFC7807Error(w, r, http.StatusUnauthorized, "invalid API key", correlationID); err != nil {
					logger.Error("failed to write auth error response", slog.String("error", err.Error()))
				}

				return
			}

			pluginCtx.AuthTime = time.Now()

			next.ServeHTTP(w, r.WithContext(SetPluginContext(r.Context(), pluginCtx)))
		})
	}
}

// extractAPIKey extracts the API key from request headers, checking
// X-Api-Key first, then falling back to Authorization: Bearer.
func extractAPIKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" {
		return key, true
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if key := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); key != "" {
			return key, true
		}
	}

	return "", false
}

// writeRFC7807Error writes a minimal RFC 7807 compliant error response
// without importing the api package (which itself imports middleware).
func writeRFC7807Error(w http.ResponseWriter, r *http.Request, statusCode int, detail, correlationID string) error {
	title := http.StatusText(statusCode)

	problem := map[string]interface{}{
		"type":          fmt.Sprintf("https://ingestcore.dev/problems/%d", statusCode),
		"title":         title,
		"status":        statusCode,
		"detail":        detail,
		"instance":      r.URL.Path,
		"correlationId": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
