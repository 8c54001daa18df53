package api

import (
	"encoding/json"
	"net/http"

	"github.com/metaspn/entityresolver/internal/attribution"
	"github.com/metaspn/entityresolver/internal/store"
)

// AttributionHandler exposes confidence-weighted outcome attribution over
// an arbitrary set of identifier references.
type AttributionHandler struct {
	store store.Store
}

// NewAttributionHandler creates a new AttributionHandler.
func NewAttributionHandler(s store.Store) *AttributionHandler {
	return &AttributionHandler{store: s}
}

type referenceRecord struct {
	IdentifierType string `json:"identifier_type"`
	Value          string `json:"value"`
}

// attributionRequest accepts either input form: a references map
// {type: value}, or an explicit reference_list of records. When both are
// present the list entries are appended after the map's.
type attributionRequest struct {
	References    map[string]string `json:"references"`
	ReferenceList []referenceRecord `json:"reference_list"`
}

func (req attributionRequest) toReferences() []attribution.Reference {
	refs := attribution.ReferencesFromMap(req.References)
	for _, rec := range req.ReferenceList {
		refs = append(refs, attribution.Reference{IdentifierType: rec.IdentifierType, Value: rec.Value})
	}
	return refs
}

// Attribute handles POST /api/v1/attribution.
func (h *AttributionHandler) Attribute(w http.ResponseWriter, r *http.Request) {
	var req attributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := attribution.AttributeOutcome(r.Context(), h.store, req.toReferences())
	if err != nil {
		writeResolverError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, result)
}
