package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreAddAliasConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.CreateEntity(ctx, EntityPerson)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateEntity(ctx, EntityPerson)
	if err != nil {
		t.Fatal(err)
	}

	inserted, conflict, err := s.AddAlias(ctx, "email", "alice@example.com", a.EntityID, 0.9, "test", "")
	if err != nil || !inserted || conflict != "" {
		t.Fatalf("first insert: inserted=%v conflict=%q err=%v", inserted, conflict, err)
	}

	inserted, conflict, err = s.AddAlias(ctx, "email", "alice@example.com", b.EntityID, 0.9, "test", "")
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("expected no insert on conflicting owner")
	}
	if conflict != a.EntityID {
		t.Fatalf("conflict = %q, want %q", conflict, a.EntityID)
	}
}

func TestMemoryStoreAddAliasSameOwnerBumpsConfidence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.CreateEntity(ctx, EntityPerson)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.AddAlias(ctx, "twitter_handle", "alice", a.EntityID, 0.5, "test", "first"); err != nil {
		t.Fatal(err)
	}
	inserted, conflict, err := s.AddAlias(ctx, "twitter_handle", "alice", a.EntityID, 0.95, "test", "second")
	if err != nil {
		t.Fatal(err)
	}
	if inserted || conflict != "" {
		t.Fatalf("expected update not insert, got inserted=%v conflict=%q", inserted, conflict)
	}

	alias, err := s.FindAlias(ctx, "twitter_handle", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if alias.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", alias.Confidence)
	}
	if alias.Provenance != "first" {
		t.Errorf("provenance should not be overwritten once set, got %q", alias.Provenance)
	}
}

func TestMemoryStoreMergeEntitiesAndCanonicalize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.CreateEntity(ctx, EntityPerson)
	b, _ := s.CreateEntity(ctx, EntityPerson)

	mergeID, err := s.MergeEntities(ctx, a.EntityID, b.EntityID, "duplicate", "test")
	if err != nil {
		t.Fatal(err)
	}
	if mergeID != 1 {
		t.Errorf("mergeID = %d, want 1", mergeID)
	}

	canonical, err := s.Canonicalize(ctx, a.EntityID)
	if err != nil {
		t.Fatal(err)
	}
	if canonical != b.EntityID {
		t.Errorf("canonical = %q, want %q", canonical, b.EntityID)
	}

	fromEntity, err := s.GetEntity(ctx, a.EntityID)
	if err != nil {
		t.Fatal(err)
	}
	if fromEntity.Status != StatusMerged {
		t.Errorf("from entity status = %q, want merged", fromEntity.Status)
	}

	_, err = s.MergeEntities(ctx, a.EntityID, b.EntityID, "duplicate", "test")
	if !errors.Is(err, ErrAlreadyMerged) {
		t.Errorf("expected ErrAlreadyMerged, got %v", err)
	}
}

func TestMemoryStoreCanonicalizeDetectsCycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.redirects["ent_a"] = &Redirect{FromEntityID: "ent_a", ToEntityID: "ent_b"}
	s.redirects["ent_b"] = &Redirect{FromEntityID: "ent_b", ToEntityID: "ent_a"}

	_, err := s.Canonicalize(ctx, "ent_a")
	if !errors.Is(err, ErrCycleInRedirects) {
		t.Errorf("expected ErrCycleInRedirects, got %v", err)
	}
}

func TestMemoryStoreUpsertIdentifierKeepsMaxConfidence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertIdentifier(ctx, "email", "Alice@Example.com", "alice@example.com", 0.4, "ingest-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertIdentifier(ctx, "email", "alice@example.com", "alice@example.com", 0.2, ""); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListAllIdentifiers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 {
		t.Fatalf("len(ids) = %d, want 1", len(ids))
	}
	if ids[0].Confidence != 0.4 {
		t.Errorf("confidence = %v, want 0.4 (max retained)", ids[0].Confidence)
	}
	if ids[0].Provenance != "ingest-a" {
		t.Errorf("provenance = %q, want ingest-a", ids[0].Provenance)
	}
}
