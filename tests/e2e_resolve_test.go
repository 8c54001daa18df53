//go:build integration

// E2E integration tests for the resolve/merge/context HTTP surface.
// Run with: go test ./tests/ -tags=integration -run TestE2E -v
// Requires a running instance (default: http://127.0.0.1:8500).
// Override with RESOLVER_URL env var.

package tests

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestE2E_ResolveCreatesThenMatches(t *testing.T) {
	base := resolverURL()
	caller := "e2e-resolve"

	body := `{"identifier_type":"email","value":"e2e-resolve@example.com","caused_by":"e2e-test"}`
	resp := e2eRequest(t, "POST", base+"/api/v1/resolve", caller, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("resolve: expected 200, got %d: %s", resp.StatusCode, b)
	}

	var first struct {
		Data struct {
			EntityID         string `json:"entity_id"`
			CreatedNewEntity bool   `json:"created_new_entity"`
		} `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&first)
	if first.Data.EntityID == "" {
		t.Fatal("expected a non-empty entity_id")
	}
	if !first.Data.CreatedNewEntity {
		t.Error("expected created_new_entity true on first resolve")
	}

	resp2 := e2eRequest(t, "POST", base+"/api/v1/resolve", caller, body)
	defer resp2.Body.Close()
	var second struct {
		Data struct {
			EntityID         string `json:"entity_id"`
			CreatedNewEntity bool   `json:"created_new_entity"`
		} `json:"data"`
	}
	json.NewDecoder(resp2.Body).Decode(&second)
	if second.Data.EntityID != first.Data.EntityID {
		t.Errorf("expected same entity id on rematch, got %s vs %s", second.Data.EntityID, first.Data.EntityID)
	}
	if second.Data.CreatedNewEntity {
		t.Error("expected created_new_entity false on rematch")
	}
}

func TestE2E_MergeAndLineage(t *testing.T) {
	base := resolverURL()
	caller := "e2e-merge"

	a := e2eRequest(t, "POST", base+"/api/v1/resolve", caller, `{"identifier_type":"email","value":"e2e-merge-a@example.com"}`)
	var ra struct {
		Data struct {
			EntityID string `json:"entity_id"`
		} `json:"data"`
	}
	json.NewDecoder(a.Body).Decode(&ra)
	a.Body.Close()

	b := e2eRequest(t, "POST", base+"/api/v1/resolve", caller, `{"identifier_type":"email","value":"e2e-merge-b@example.com"}`)
	var rb struct {
		Data struct {
			EntityID string `json:"entity_id"`
		} `json:"data"`
	}
	json.NewDecoder(b.Body).Decode(&rb)
	b.Body.Close()

	if ra.Data.EntityID == "" || rb.Data.EntityID == "" {
		t.Fatal("failed to create entities for merge test")
	}

	mergeBody := fmt.Sprintf(`{"from_entity_id":%q,"to_entity_id":%q,"reason":"e2e dedup","caused_by":"e2e-test"}`, rb.Data.EntityID, ra.Data.EntityID)
	merge := e2eRequest(t, "POST", base+"/api/v1/merges", caller, mergeBody)
	defer merge.Body.Close()
	if merge.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(merge.Body)
		t.Fatalf("merge: expected 200, got %d: %s", merge.StatusCode, body)
	}

	lineage := e2eRequest(t, "GET", base+"/api/v1/entities/"+rb.Data.EntityID+"/lineage", caller, "")
	defer lineage.Body.Close()
	var ls struct {
		Data struct {
			CanonicalEntityID string `json:"canonical_entity_id"`
		} `json:"data"`
	}
	json.NewDecoder(lineage.Body).Decode(&ls)
	if ls.Data.CanonicalEntityID != ra.Data.EntityID {
		t.Errorf("expected canonical id %s, got %s", ra.Data.EntityID, ls.Data.CanonicalEntityID)
	}
}

func TestE2E_ResolveValidationError(t *testing.T) {
	base := resolverURL()
	resp := e2eRequest(t, "POST", base+"/api/v1/resolve", "e2e-validation", `{"identifier_type":"email"}`)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("expected an error for a resolve request missing a value")
	}
}
