package confidence

import (
	"testing"
	"time"

	"github.com/metaspn/entityresolver/internal/store"
)

func TestBuildSummaryWeightsAndRounds(t *testing.T) {
	identifiers := []store.Identifier{
		{IdentifierType: "email", NormalizedValue: "a@x.com", Confidence: 0.9, Provenance: "ingest-a"},
		{IdentifierType: "email", NormalizedValue: "b@x.com", Confidence: 0.8, Provenance: "ingest-b"},
	}
	aliases := []store.Alias{
		{IdentifierType: "email", NormalizedValue: "a@x.com", Confidence: 0.9},
		{IdentifierType: "email", NormalizedValue: "b@x.com", Confidence: 0.8},
	}

	summary := BuildSummary(aliases, identifiers, identifiers)

	if summary.IdentifierAvg != 0.85 {
		t.Errorf("identifier_avg = %v, want 0.85", summary.IdentifierAvg)
	}
	if summary.UniqueSourceCount != 2 {
		t.Errorf("unique_source_count = %d, want 2", summary.UniqueSourceCount)
	}
	wantDiversity := round(2.0 / 3)
	if summary.SourceDiversity != wantDiversity {
		t.Errorf("source_diversity = %v, want %v", summary.SourceDiversity, wantDiversity)
	}

	breakdown, ok := summary.ByIdentifierType["email"]
	if !ok {
		t.Fatal("expected email breakdown")
	}
	if breakdown.Count != 2 {
		t.Errorf("count = %d, want 2", breakdown.Count)
	}
	if breakdown.MaxConfidence != 0.9 {
		t.Errorf("max_confidence = %v, want 0.9", breakdown.MaxConfidence)
	}
}

func TestBuildSummaryEmptyInputs(t *testing.T) {
	summary := BuildSummary(nil, nil, nil)
	if summary.Overall != 0 {
		t.Errorf("overall = %v, want 0", summary.Overall)
	}
	if len(summary.ByIdentifierType) != 0 {
		t.Errorf("expected empty breakdown, got %v", summary.ByIdentifierType)
	}
}

func TestRecentEvidenceOrderingAndWindow(t *testing.T) {
	now := time.Now().UTC()
	identifiers := make([]store.Identifier, 0, 15)
	for i := 0; i < 15; i++ {
		identifiers = append(identifiers, store.Identifier{
			IdentifierType:  "email",
			NormalizedValue: "x",
			LastSeenAt:      now.Add(-time.Duration(i) * time.Hour),
		})
	}
	ctx := BuildEntityContext("ent_1", nil, identifiers)
	if len(ctx.RecentEvidence) != defaultRecentEvidenceWindow {
		t.Fatalf("len(RecentEvidence) = %d, want %d", len(ctx.RecentEvidence), defaultRecentEvidenceWindow)
	}
	if !ctx.RecentEvidence[0].LastSeenAt.Equal(now) {
		t.Errorf("expected most recent first, got %v", ctx.RecentEvidence[0].LastSeenAt)
	}
}
