// Package middleware provides HTTP middleware for the entity resolution
// service.
package middleware

import (
	"context"
	"net/http"
)

// contextKey is a private type for context keys.
type contextKey string

const callerIDKey contextKey = "caller_id"

// CallerIDFromContext extracts the caller id injected by CallerAuth. This
// is the value threaded through to Resolver calls as caused_by.
func CallerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerIDKey).(string); ok {
		return v
	}
	return ""
}

// APIKeyAuth requires a valid X-API-Key header on mutating requests
// (POST/PUT/DELETE). GET requests and /api/v1/health are exempt.
// Disabled when apiKey is empty.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodGet || r.URL.Path == "/api/v1/health" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get("X-API-Key") != apiKey {
				http.Error(w, `{"error":{"code":"unauthorized","message":"invalid or missing API key"}}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerAuth extracts the caller id from the X-Caller-ID header and
// injects it into the request context, falling back to "anonymous".
// Phase 1: trust-based (overlay network only). Phase 2: JWT verification
// against jwtSecret.
func CallerAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := r.Header.Get("X-Caller-ID")
			if callerID == "" {
				callerID = "anonymous"
			}

			// Phase 2: verify JWT from Authorization header.
			// For now, trust X-Caller-ID (internal overlay traffic only).

			ctx := context.WithValue(r.Context(), callerIDKey, callerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
