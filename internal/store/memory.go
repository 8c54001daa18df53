package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type aliasKey struct {
	identifierType  string
	normalizedValue string
}

// MemoryStore is a pure in-process Store implementation: no file or
// network I/O, guarded by a single mutex per the single-writer model.
// It exists for unit tests and for local development without a Postgres
// or bbolt file.
type MemoryStore struct {
	mu          sync.Mutex
	entities    map[string]*Entity
	identifiers map[aliasKey]*Identifier
	aliases     map[aliasKey]*Alias
	redirects   map[string]*Redirect
	merges      []MergeRecord
	nextMergeID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:    make(map[string]*Entity),
		identifiers: make(map[aliasKey]*Identifier),
		aliases:     make(map[aliasKey]*Alias),
		redirects:   make(map[string]*Redirect),
		nextMergeID: 1,
	}
}

func (s *MemoryStore) Name() string { return "memory" }
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateEntity(_ context.Context, entityType string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entity{
		EntityID:  "ent_" + uuid.NewString(),
		Type:      entityType,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Status:    StatusActive,
	}
	s.entities[e.EntityID] = e
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) GetEntity(_ context.Context, id string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) EnsureEntity(ctx context.Context, id string) error {
	e, err := s.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return nil
}

func (s *MemoryStore) Canonicalize(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canonicalizeLocked(id)
}

// canonicalizeLocked must be called with s.mu held.
func (s *MemoryStore) canonicalizeLocked(id string) (string, error) {
	current := id
	visited := make(map[string]bool)
	for {
		if visited[current] {
			return "", fmt.Errorf("%w: starting at %s", ErrCycleInRedirects, id)
		}
		visited[current] = true
		r, ok := s.redirects[current]
		if !ok {
			return current, nil
		}
		current = r.ToEntityID
	}
}

func (s *MemoryStore) FindAlias(_ context.Context, identifierType, normalizedValue string) (*Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.aliases[aliasKey{identifierType, normalizedValue}]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertIdentifier(_ context.Context, identifierType, value, normalizedValue string, confidence float64, provenance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := aliasKey{identifierType, normalizedValue}
	now := time.Now().UTC().Truncate(time.Second)
	if existing, ok := s.identifiers[key]; ok {
		existing.Value = value
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
		existing.LastSeenAt = now
		if existing.Provenance == "" {
			existing.Provenance = provenance
		}
		return nil
	}
	s.identifiers[key] = &Identifier{
		IdentifierType:  identifierType,
		Value:           value,
		NormalizedValue: normalizedValue,
		Confidence:      confidence,
		FirstSeenAt:     now,
		LastSeenAt:      now,
		Provenance:      provenance,
	}
	return nil
}

func (s *MemoryStore) AddAlias(_ context.Context, identifierType, normalizedValue, targetEntityID string, confidence float64, causedBy, provenance string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonicalTarget, err := s.canonicalizeLocked(targetEntityID)
	if err != nil {
		return false, "", err
	}

	key := aliasKey{identifierType, normalizedValue}
	if existing, ok := s.aliases[key]; ok {
		existingCanonical, err := s.canonicalizeLocked(existing.EntityID)
		if err != nil {
			return false, "", err
		}
		if existingCanonical == canonicalTarget {
			if confidence > existing.Confidence {
				existing.Confidence = confidence
			}
			if existing.Provenance == "" {
				existing.Provenance = provenance
			}
			return false, "", nil
		}
		return false, existingCanonical, nil
	}

	s.aliases[key] = &Alias{
		IdentifierType:  identifierType,
		NormalizedValue: normalizedValue,
		EntityID:        canonicalTarget,
		Confidence:      confidence,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		CausedBy:        causedBy,
		Provenance:      provenance,
	}
	return true, "", nil
}

func (s *MemoryStore) MergeEntities(_ context.Context, from, to, reason, causedBy string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromCanonical, err := s.canonicalizeLocked(from)
	if err != nil {
		return 0, err
	}
	toCanonical, err := s.canonicalizeLocked(to)
	if err != nil {
		return 0, err
	}
	if fromCanonical == toCanonical {
		return 0, fmt.Errorf("%w: %s and %s", ErrAlreadyMerged, from, to)
	}

	now := time.Now().UTC().Truncate(time.Second)
	s.redirects[fromCanonical] = &Redirect{
		FromEntityID: fromCanonical,
		ToEntityID:   toCanonical,
		Timestamp:    now,
		Reason:       reason,
		CausedBy:     causedBy,
	}
	if e, ok := s.entities[fromCanonical]; ok {
		e.Status = StatusMerged
	}
	if e, ok := s.entities[toCanonical]; ok {
		e.Status = StatusActive
	}

	mergeID := s.nextMergeID
	s.nextMergeID++
	s.merges = append(s.merges, MergeRecord{
		MergeID:      mergeID,
		FromEntityID: fromCanonical,
		ToEntityID:   toCanonical,
		Reason:       reason,
		Timestamp:    now,
		CausedBy:     causedBy,
	})
	return mergeID, nil
}

func (s *MemoryStore) GetRedirectTarget(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.redirects[id]
	if !ok {
		return "", nil
	}
	return r.ToEntityID, nil
}

func (s *MemoryStore) RemoveRedirect(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.redirects, id)
	return nil
}

func (s *MemoryStore) SetEntityStatus(_ context.Context, id string, status EntityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[id]; ok {
		e.Status = status
	}
	return nil
}

func (s *MemoryStore) ListAliasesForEntity(_ context.Context, id string) ([]Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.canonicalizeLocked(id)
	if err != nil {
		return nil, err
	}

	var result []Alias
	for _, a := range s.aliases {
		canonical, err := s.canonicalizeLocked(a.EntityID)
		if err != nil {
			return nil, err
		}
		if canonical == target {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IdentifierType != result[j].IdentifierType {
			return result[i].IdentifierType < result[j].IdentifierType
		}
		return result[i].NormalizedValue < result[j].NormalizedValue
	})
	return result, nil
}

func (s *MemoryStore) ListIdentifierRecordsForEntity(_ context.Context, id string) ([]Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.canonicalizeLocked(id)
	if err != nil {
		return nil, err
	}

	var result []Identifier
	for key, a := range s.aliases {
		canonical, err := s.canonicalizeLocked(a.EntityID)
		if err != nil {
			return nil, err
		}
		if canonical != target {
			continue
		}
		ident, ok := s.identifiers[key]
		if !ok {
			continue
		}
		result = append(result, *ident)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IdentifierType != result[j].IdentifierType {
			return result[i].IdentifierType < result[j].IdentifierType
		}
		return result[i].NormalizedValue < result[j].NormalizedValue
	})
	return result, nil
}

func (s *MemoryStore) ListMergeHistory(_ context.Context) ([]MergeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]MergeRecord, len(s.merges))
	copy(result, s.merges)
	sort.Slice(result, func(i, j int) bool { return result[i].MergeID < result[j].MergeID })
	return result, nil
}

func (s *MemoryStore) ListAllEntities(_ context.Context) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Entity, 0, len(s.entities))
	for _, e := range s.entities {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result, nil
}

func (s *MemoryStore) ListAllIdentifiers(_ context.Context) ([]Identifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Identifier, 0, len(s.identifiers))
	for _, i := range s.identifiers {
		result = append(result, *i)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IdentifierType != result[j].IdentifierType {
			return result[i].IdentifierType < result[j].IdentifierType
		}
		return result[i].NormalizedValue < result[j].NormalizedValue
	})
	return result, nil
}

func (s *MemoryStore) ListAllAliases(_ context.Context) ([]Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Alias, 0, len(s.aliases))
	for _, a := range s.aliases {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IdentifierType != result[j].IdentifierType {
			return result[i].IdentifierType < result[j].IdentifierType
		}
		return result[i].NormalizedValue < result[j].NormalizedValue
	})
	return result, nil
}

func (s *MemoryStore) ListAllRedirects(_ context.Context) ([]Redirect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Redirect, 0, len(s.redirects))
	for _, r := range s.redirects {
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FromEntityID < result[j].FromEntityID })
	return result, nil
}
