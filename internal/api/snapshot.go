package api

import (
	"encoding/json"
	"net/http"

	"github.com/metaspn/entityresolver/internal/store"
)

// SnapshotHandler exposes a full consistent export of the engine's state.
type SnapshotHandler struct {
	store store.Store
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(s store.Store) *SnapshotHandler {
	return &SnapshotHandler{store: s}
}

type snapshotRequest struct {
	// Path, when set, additionally writes the snapshot document to this
	// server-side file (sorted keys, indented), for fixtures and
	// migrations.
	Path string `json:"path"`
}

// Export handles POST /api/v1/snapshot.
func (h *SnapshotHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}

	snapshot, err := store.ExportSnapshot(r.Context(), h.store)
	if err != nil {
		writeResolverError(w, err)
		return
	}

	if req.Path != "" {
		if err := store.WriteSnapshotFile(r.Context(), h.store, req.Path); err != nil {
			writeError(w, http.StatusInternalServerError, "SNAPSHOT_WRITE_FAILED", err.Error())
			return
		}
	}

	writeSuccess(w, http.StatusOK, snapshot)
}
