package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/metaspn/entityresolver/internal/hermes"
	"github.com/metaspn/entityresolver/internal/middleware"
	"github.com/metaspn/entityresolver/internal/resolver"
	"github.com/metaspn/entityresolver/internal/store"
)

// ResolveHandler exposes the resolver's mutating operations over HTTP.
type ResolveHandler struct {
	resolver  *resolver.Resolver
	publisher *hermes.Publisher
}

// NewResolveHandler creates a new ResolveHandler.
func NewResolveHandler(r *resolver.Resolver, publisher *hermes.Publisher) *ResolveHandler {
	return &ResolveHandler{resolver: r, publisher: publisher}
}

// publishDrained flushes the resolver's event buffer to Hermes, if
// configured. A nil publisher (no NATS connection) is a silent no-op —
// event emission is best-effort and never blocks a resolve.
func (h *ResolveHandler) publishDrained(r *http.Request) {
	batch := h.resolver.DrainEvents()
	if h.publisher == nil || len(batch) == 0 {
		return
	}
	h.publisher.PublishBatch(r.Context(), batch)
}

type resolveRequest struct {
	IdentifierType string  `json:"identifier_type"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	EntityType     string  `json:"entity_type"`
	CausedBy       string  `json:"caused_by"`
	Provenance     string  `json:"provenance"`
}

// Resolve handles POST /api/v1/resolve.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.CausedBy == "" {
		req.CausedBy = middleware.CallerIDFromContext(r.Context())
	}

	defer h.publishDrained(r)

	result, err := h.resolver.Resolve(r.Context(), req.IdentifierType, req.Value, resolver.Context{
		Confidence: req.Confidence,
		EntityType: req.EntityType,
		CausedBy:   req.CausedBy,
		Provenance: req.Provenance,
	})
	if err != nil {
		writeResolverError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}

type addAliasRequest struct {
	IdentifierType string  `json:"identifier_type"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	CausedBy       string  `json:"caused_by"`
	Provenance     string  `json:"provenance"`
}

// AddAlias handles POST /api/v1/entities/{id}/aliases.
func (h *ResolveHandler) AddAlias(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	var req addAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.95
	}
	if req.CausedBy == "" {
		req.CausedBy = middleware.CallerIDFromContext(r.Context())
	}

	defer h.publishDrained(r)

	if err := h.resolver.AddAlias(r.Context(), entityID, req.IdentifierType, req.Value, req.Confidence, req.CausedBy, req.Provenance); err != nil {
		writeResolverError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"entity_id": entityID, "added": true})
}

type mergeRequest struct {
	FromEntityID string `json:"from_entity_id"`
	ToEntityID   string `json:"to_entity_id"`
	Reason       string `json:"reason"`
	CausedBy     string `json:"caused_by"`
}

// Merge handles POST /api/v1/merges.
func (h *ResolveHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.CausedBy == "" {
		req.CausedBy = middleware.CallerIDFromContext(r.Context())
	}

	defer h.publishDrained(r)

	mergeID, err := h.resolver.MergeEntities(r.Context(), req.FromEntityID, req.ToEntityID, req.Reason, req.CausedBy)
	if err != nil {
		writeResolverError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"merge_id": mergeID})
}

type undoMergeRequest struct {
	FromEntityID string `json:"from_entity_id"`
	ToEntityID   string `json:"to_entity_id"`
	CausedBy     string `json:"caused_by"`
}

// UndoMerge handles POST /api/v1/merges/undo.
func (h *ResolveHandler) UndoMerge(w http.ResponseWriter, r *http.Request) {
	var req undoMergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.CausedBy == "" {
		req.CausedBy = middleware.CallerIDFromContext(r.Context())
	}

	defer h.publishDrained(r)

	mergeID, err := h.resolver.UndoMerge(r.Context(), req.FromEntityID, req.ToEntityID, req.CausedBy)
	if err != nil {
		writeResolverError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"merge_id": mergeID})
}

// writeResolverError maps store/resolver sentinel errors to HTTP status
// codes, one error code per sentinel.
func writeResolverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, store.ErrUnknownEntity):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAliasBoundElsewhere):
		writeError(w, http.StatusConflict, "ALIAS_CONFLICT", err.Error())
	case errors.Is(err, store.ErrAlreadyMerged):
		writeError(w, http.StatusConflict, "ALREADY_MERGED", err.Error())
	case errors.Is(err, store.ErrCycleInRedirects):
		writeError(w, http.StatusConflict, "CYCLE_DETECTED", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
