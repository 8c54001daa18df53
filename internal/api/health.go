// Package api provides HTTP handlers for the entity resolution engine's
// REST surface.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/metaspn/entityresolver/internal/hermes"
	"github.com/metaspn/entityresolver/internal/store"
)

// HealthHandler reports store and event-bus connectivity.
type HealthHandler struct {
	store     store.Store
	hermes    *hermes.Client
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s store.Store, hermesClient *hermes.Client) *HealthHandler {
	return &HealthHandler{store: s, hermes: hermesClient, startTime: time.Now()}
}

// Health returns liveness plus store/event-bus connectivity.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeStatus := "connected"
	if _, err := h.store.ListAllEntities(ctx); err != nil {
		storeStatus = "disconnected"
	}

	hermesStatus := "disconnected"
	if h.hermes != nil && h.hermes.IsConnected() {
		hermesStatus = "connected"
	}

	resp := map[string]any{
		"status":         "healthy",
		"store_backend":  h.store.Name(),
		"store":          storeStatus,
		"hermes":         hermesStatus,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if storeStatus == "disconnected" {
		resp["status"] = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
		"meta": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeSuccess writes a standard success envelope.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"data": data,
		"meta": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}
