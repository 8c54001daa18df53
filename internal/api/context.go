package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/metaspn/entityresolver/internal/confidence"
	"github.com/metaspn/entityresolver/internal/recommendation"
	"github.com/metaspn/entityresolver/internal/store"
)

// ContextHandler exposes the read-only derived views over an entity's
// canonicalized aliases and identifiers: confidence summary, full entity
// context, and recommendation context.
type ContextHandler struct {
	store store.Store
}

// NewContextHandler creates a new ContextHandler.
func NewContextHandler(s store.Store) *ContextHandler {
	return &ContextHandler{store: s}
}

// gatherEntity canonicalizes id and loads its aliases/identifiers. Used by
// every read-model handler in this file so they share one canonicalize
// pass rather than re-deriving it per endpoint.
func (h *ContextHandler) gatherEntity(r *http.Request, id string) (canonical string, aliases []store.Alias, identifiers []store.Identifier, err error) {
	ctx := r.Context()
	canonical, err = h.store.Canonicalize(ctx, id)
	if err != nil {
		return "", nil, nil, err
	}
	aliases, err = h.store.ListAliasesForEntity(ctx, canonical)
	if err != nil {
		return "", nil, nil, err
	}
	identifiers, err = h.store.ListIdentifierRecordsForEntity(ctx, canonical)
	if err != nil {
		return "", nil, nil, err
	}
	return canonical, aliases, identifiers, nil
}

// ConfidenceSummary handles GET /api/v1/entities/{id}/confidence.
func (h *ContextHandler) ConfidenceSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, aliases, identifiers, err := h.gatherEntity(r, id)
	if err != nil {
		writeResolverError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, confidence.BuildSummary(aliases, identifiers, identifiers))
}

// EntityContext handles GET /api/v1/entities/{id}/context.
func (h *ContextHandler) EntityContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	canonical, aliases, identifiers, err := h.gatherEntity(r, id)
	if err != nil {
		writeResolverError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, confidence.BuildEntityContext(canonical, aliases, identifiers))
}

// RecommendationContext handles GET /api/v1/entities/{id}/recommendation.
func (h *ContextHandler) RecommendationContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	canonical, aliases, identifiers, err := h.gatherEntity(r, id)
	if err != nil {
		writeResolverError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, recommendation.Build(time.Now().UTC(), canonical, aliases, identifiers))
}
