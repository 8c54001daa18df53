package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the deterministic, fully-ordered dump of every table a
// Store holds. It is the basis for audit exports and test fixtures. Row
// order is stable for a given store state; entity ids are random uuids
// and timestamps come from the clock, so separate stores fed the same
// operations do not produce identical snapshots. Fields are
// declared in alphabetical key order so the serialized document's
// top-level keys come out sorted.
type Snapshot struct {
	Aliases      []Alias       `json:"aliases"`
	Entities     []Entity      `json:"entities"`
	Redirects    []Redirect    `json:"entity_redirects"`
	Identifiers  []Identifier  `json:"identifiers"`
	MergeRecords []MergeRecord `json:"merge_records"`
}

// ExportSnapshot reads every table from s in the sort order each List*
// method already guarantees, so the result is stable across calls absent
// intervening writes.
func ExportSnapshot(ctx context.Context, s Store) (*Snapshot, error) {
	entities, err := s.ListAllEntities(ctx)
	if err != nil {
		return nil, err
	}
	identifiers, err := s.ListAllIdentifiers(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := s.ListAllAliases(ctx)
	if err != nil {
		return nil, err
	}
	redirects, err := s.ListAllRedirects(ctx)
	if err != nil {
		return nil, err
	}
	merges, err := s.ListMergeHistory(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Aliases:      aliases,
		Entities:     entities,
		Redirects:    redirects,
		Identifiers:  identifiers,
		MergeRecords: merges,
	}, nil
}

// WriteSnapshotFile exports the store and writes it to path as an
// indented JSON document with every object's keys sorted, creating
// parent directories as needed. The sort comes from re-marshaling
// through generic maps, whose keys encoding/json always emits in order.
func WriteSnapshotFile(ctx context.Context, s Store, path string) error {
	snap, err := ExportSnapshot(ctx, s)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("normalize snapshot keys: %w", err)
	}
	out, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot file: %w", err)
	}
	return nil
}

// ReadSnapshotFile loads a document previously written by
// WriteSnapshotFile.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("parse snapshot file: %w", err)
	}
	return snap, nil
}
