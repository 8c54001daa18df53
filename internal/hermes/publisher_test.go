package hermes

import (
	"encoding/json"
	"testing"

	"github.com/metaspn/entityresolver/internal/events"
)

func TestEventJSONCarriesKind(t *testing.T) {
	buf := events.NewBuffer()
	buf.Resolved("ent_1", "resolver", 0.9)
	batch := buf.Drain()
	if len(batch) != 1 {
		t.Fatalf("expected 1 event, got %d", len(batch))
	}

	data, err := json.Marshal(batch[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["kind"] != string(events.KindEntityResolved) {
		t.Errorf("unexpected kind field: %+v", decoded)
	}
}
