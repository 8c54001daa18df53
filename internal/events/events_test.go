package events

import "testing"

func TestBufferDrainOrderAndClear(t *testing.T) {
	b := NewBuffer()
	b.Resolved("ent_1", "resolver", 0.95)
	b.AliasAdded("ent_1", "alice@example.com", "email")
	b.Merged("ent_1", []string{"ent_2"}, "auto-merge on email")

	drained := b.Drain()
	if len(drained) != 3 {
		t.Fatalf("len(drained) = %d, want 3", len(drained))
	}
	if drained[0].Kind != KindEntityResolved || drained[1].Kind != KindEntityAliasAdded || drained[2].Kind != KindEntityMerged {
		t.Errorf("unexpected kind order: %v, %v, %v", drained[0].Kind, drained[1].Kind, drained[2].Kind)
	}
	for _, e := range drained {
		if e.SchemaVersion != SchemaVersion {
			t.Errorf("schema version = %q, want %q", e.SchemaVersion, SchemaVersion)
		}
	}

	if b.Len() != 0 {
		t.Errorf("expected buffer empty after drain, len=%d", b.Len())
	}
	if got := b.Drain(); got != nil {
		t.Errorf("second drain should be nil, got %v", got)
	}
}
