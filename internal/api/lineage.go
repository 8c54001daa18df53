package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/metaspn/entityresolver/internal/domainlinks"
	"github.com/metaspn/entityresolver/internal/store"
)

// LineageHandler exposes the redirect-chain-plus-merges audit view and
// the merge ledger itself.
type LineageHandler struct {
	store store.Store
}

// NewLineageHandler creates a new LineageHandler.
func NewLineageHandler(s store.Store) *LineageHandler {
	return &LineageHandler{store: s}
}

// Lineage handles GET /api/v1/entities/{id}/lineage.
func (h *LineageHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snapshot, err := domainlinks.BuildLineageSnapshot(r.Context(), h.store, id)
	if err != nil {
		writeResolverError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

// MergeHistory handles GET /api/v1/merges.
func (h *LineageHandler) MergeHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.ListMergeHistory(r.Context())
	if err != nil {
		writeResolverError(w, err)
		return
	}
	if history == nil {
		history = []store.MergeRecord{}
	}
	writeSuccess(w, http.StatusOK, history)
}
