package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/metaspn/entityresolver/internal/events"
	"github.com/metaspn/entityresolver/internal/store"
)

func newTestResolver() *Resolver {
	return New(store.NewMemoryStore())
}

func TestResolveHandleNormalizationConverges(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	first, err := r.Resolve(ctx, "twitter_handle", "@same", Context{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, "twitter_handle", "same", Context{})
	if err != nil {
		t.Fatal(err)
	}

	if first.EntityID != second.EntityID {
		t.Errorf("entity ids differ: %q vs %q", first.EntityID, second.EntityID)
	}
	if second.CreatedNewEntity {
		t.Error("second resolve should not report created_new_entity")
	}
}

func TestResolveURLCoalesceAcrossSchemes(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	a, err := r.Resolve(ctx, "canonical_url", "https://example.com/u/alice/", Context{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "canonical_url", "http://www.example.com/u/alice", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if a.EntityID != b.EntityID {
		t.Errorf("expected same entity for coalesced URL, got %q vs %q", a.EntityID, b.EntityID)
	}
}

func TestResolveAutoMergeOnEmailConflict(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	a, err := r.Resolve(ctx, "twitter_handle", "owner_a", Context{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "twitter_handle", "owner_b", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if a.EntityID == b.EntityID {
		t.Fatal("expected distinct entities before merge")
	}
	r.DrainEvents()

	if err := r.AddAlias(ctx, a.EntityID, "email", "shared@example.com", 0.9, "test", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAlias(ctx, b.EntityID, "email", "shared@example.com", 0.9, "test", ""); err != nil {
		t.Fatal(err)
	}

	mergedEvents := r.DrainEvents()
	mergeCount := 0
	for _, e := range mergedEvents {
		if e.Kind == events.KindEntityMerged {
			mergeCount++
		}
	}
	if mergeCount != 1 {
		t.Errorf("expected exactly one EntityMerged event, got %d", mergeCount)
	}

	afterA, err := r.Resolve(ctx, "twitter_handle", "owner_a", Context{})
	if err != nil {
		t.Fatal(err)
	}
	afterB, err := r.Resolve(ctx, "twitter_handle", "owner_b", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if afterA.EntityID != afterB.EntityID {
		t.Errorf("expected converged entities, got %q vs %q", afterA.EntityID, afterB.EntityID)
	}
}

func TestResolveConfidenceBump(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	first, err := r.Resolve(ctx, "email", "test@example.com", Context{Confidence: 0.7})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, "email", "test@example.com", Context{Confidence: 0.4})
	if err != nil {
		t.Fatal(err)
	}
	if second.EntityID != first.EntityID {
		t.Fatal("expected same entity")
	}
	if second.Confidence < 0.7 {
		t.Errorf("confidence = %v, want >= 0.7", second.Confidence)
	}
}

func TestAddAliasNonAutoMergeConflictFails(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	a, err := r.Resolve(ctx, "twitter_handle", "alice", Context{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "twitter_handle", "bob", Context{})
	if err != nil {
		t.Fatal(err)
	}

	err = r.AddAlias(ctx, b.EntityID, "twitter_handle", "alice", 0.9, "test", "")
	if !errors.Is(err, store.ErrAliasBoundElsewhere) {
		t.Errorf("expected ErrAliasBoundElsewhere, got %v", err)
	}
}

func TestUndoMergeDuality(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	a, err := r.Resolve(ctx, "twitter_handle", "undo_a", Context{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, "twitter_handle", "undo_b", Context{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.MergeEntities(ctx, a.EntityID, b.EntityID, "dup", "test"); err != nil {
		t.Fatal(err)
	}

	afterMerge, err := r.Resolve(ctx, "twitter_handle", "undo_a", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if afterMerge.EntityID != b.EntityID {
		t.Fatalf("expected undo_a to resolve to B after merge, got %q want %q", afterMerge.EntityID, b.EntityID)
	}

	if _, err := r.UndoMerge(ctx, a.EntityID, b.EntityID, "test"); err != nil {
		t.Fatal(err)
	}

	afterUndoA, err := r.Resolve(ctx, "twitter_handle", "undo_a", Context{})
	if err != nil {
		t.Fatal(err)
	}
	afterUndoB, err := r.Resolve(ctx, "twitter_handle", "undo_b", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if afterUndoA.EntityID != a.EntityID {
		t.Errorf("expected undo_a to resolve to A after undo, got %q want %q", afterUndoA.EntityID, a.EntityID)
	}
	if afterUndoB.EntityID != a.EntityID {
		t.Errorf("expected undo_b to route to A after undo, got %q want %q", afterUndoB.EntityID, a.EntityID)
	}
}

func TestAutoMergeSymmetry(t *testing.T) {
	ctx := context.Background()

	// Converges regardless of which entity sees the shared strong
	// identifier first.
	for _, reversed := range []bool{false, true} {
		r := newTestResolver()

		a, err := r.Resolve(ctx, "twitter_handle", "sym_a", Context{})
		if err != nil {
			t.Fatal(err)
		}
		b, err := r.Resolve(ctx, "twitter_handle", "sym_b", Context{})
		if err != nil {
			t.Fatal(err)
		}

		first, second := a.EntityID, b.EntityID
		if reversed {
			first, second = second, first
		}
		if err := r.AddAlias(ctx, first, "canonical_url", "https://example.com/shared", 0.9, "test", ""); err != nil {
			t.Fatal(err)
		}
		if err := r.AddAlias(ctx, second, "canonical_url", "https://example.com/shared", 0.9, "test", ""); err != nil {
			t.Fatal(err)
		}

		afterA, err := r.Resolve(ctx, "twitter_handle", "sym_a", Context{})
		if err != nil {
			t.Fatal(err)
		}
		afterB, err := r.Resolve(ctx, "twitter_handle", "sym_b", Context{})
		if err != nil {
			t.Fatal(err)
		}
		if afterA.EntityID != afterB.EntityID {
			t.Errorf("reversed=%v: expected convergence, got %q vs %q", reversed, afterA.EntityID, afterB.EntityID)
		}
	}
}

func TestMergeIDsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	var ids []string
	for _, h := range []string{"mono_a", "mono_b", "mono_c"} {
		res, err := r.Resolve(ctx, "twitter_handle", h, Context{})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.EntityID)
	}

	first, err := r.MergeEntities(ctx, ids[0], ids[1], "dup", "test")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.MergeEntities(ctx, ids[1], ids[2], "dup", "test")
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Errorf("merge ids not strictly increasing: %d then %d", first, second)
	}
}

func TestMergeEntitiesAlreadyMerged(t *testing.T) {
	ctx := context.Background()
	r := newTestResolver()

	a, _ := r.Resolve(ctx, "twitter_handle", "a1", Context{})
	b, _ := r.Resolve(ctx, "twitter_handle", "b1", Context{})

	if _, err := r.MergeEntities(ctx, a.EntityID, b.EntityID, "dup", "test"); err != nil {
		t.Fatal(err)
	}
	_, err := r.MergeEntities(ctx, a.EntityID, b.EntityID, "dup", "test")
	if !errors.Is(err, store.ErrAlreadyMerged) {
		t.Errorf("expected ErrAlreadyMerged, got %v", err)
	}
}
