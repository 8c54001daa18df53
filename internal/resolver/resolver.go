// Package resolver implements the core resolve/add-alias/merge/undo-merge
// operations over a store.Store, enforcing the auto-merge policy and the
// fixed event-emission order for each operation.
package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/metaspn/entityresolver/internal/events"
	"github.com/metaspn/entityresolver/internal/normalize"
	"github.com/metaspn/entityresolver/internal/store"
)

const (
	defaultConfidence = 0.95
	defaultEntityType = store.EntityPerson
	defaultCausedBy   = "resolver"
)

// Context carries the optional knobs a caller may pass to Resolve. Zero
// values mean "use the default"; an explicit zero confidence is
// indistinguishable from an omitted one.
type Context struct {
	Confidence float64
	EntityType string
	CausedBy   string
	Provenance string
}

func (c Context) confidence() float64 {
	if c.Confidence == 0 {
		return defaultConfidence
	}
	return c.Confidence
}

func (c Context) entityType() string {
	if c.EntityType == "" {
		return defaultEntityType
	}
	return c.EntityType
}

func (c Context) causedBy() string {
	if c.CausedBy == "" {
		return defaultCausedBy
	}
	return c.CausedBy
}

// Resolution is the outcome of a Resolve call.
type Resolution struct {
	EntityID           string             `json:"entity_id"`
	Confidence         float64            `json:"confidence"`
	CreatedNewEntity   bool               `json:"created_new_entity"`
	MatchedIdentifiers []store.Identifier `json:"matched_identifiers"`
}

// Resolver is the single-writer entry point for identity resolution. One
// Resolver owns one EventBuffer; writerMu spans the full
// lookup-decide-mutate-emit sequence of every mutating operation, per the
// single-writer concurrency model.
type Resolver struct {
	store    store.Store
	events   *events.Buffer
	writerMu sync.Mutex
}

// New builds a Resolver over s with a fresh, empty event buffer.
func New(s store.Store) *Resolver {
	return &Resolver{store: s, events: events.NewBuffer()}
}

// DrainEvents atomically returns and clears the buffered events produced
// by operations on this Resolver since the last drain.
func (r *Resolver) DrainEvents() []events.Event {
	return r.events.Drain()
}

// Resolve normalizes (identifierType, raw), upserts the identifier
// observation, and either matches an existing alias or allocates a new
// entity — triggering an auto-merge if the identifier is a strong type
// already bound elsewhere.
func (r *Resolver) Resolve(ctx context.Context, identifierType, raw string, rctx Context) (*Resolution, error) {
	if identifierType == "" || raw == "" {
		return nil, fmt.Errorf("%w: identifier_type and raw value are required", store.ErrInvalidInput)
	}

	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	nval := normalize.Value(identifierType, raw)
	if nval == "" {
		return nil, fmt.Errorf("%w: normalized value is empty", store.ErrInvalidInput)
	}
	conf := rctx.confidence()
	entityType := rctx.entityType()
	causedBy := rctx.causedBy()

	if err := r.store.UpsertIdentifier(ctx, identifierType, raw, nval, conf, rctx.Provenance); err != nil {
		return nil, fmt.Errorf("upsert identifier: %w", err)
	}

	alias, err := r.store.FindAlias(ctx, identifierType, nval)
	if err != nil {
		return nil, fmt.Errorf("find alias: %w", err)
	}

	if alias != nil {
		canonical, err := r.store.Canonicalize(ctx, alias.EntityID)
		if err != nil {
			return nil, fmt.Errorf("canonicalize: %w", err)
		}
		matched, err := r.store.ListIdentifierRecordsForEntity(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("list identifiers: %w", err)
		}
		resolution := &Resolution{
			EntityID:           canonical,
			Confidence:         maxFloat(alias.Confidence, conf),
			CreatedNewEntity:   false,
			MatchedIdentifiers: matched,
		}
		r.events.Resolved(resolution.EntityID, causedBy, resolution.Confidence)
		return resolution, nil
	}

	fresh, err := r.store.CreateEntity(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}

	added, conflict, err := r.store.AddAlias(ctx, identifierType, nval, fresh.EntityID, conf, causedBy, rctx.Provenance)
	if err != nil {
		return nil, fmt.Errorf("add alias: %w", err)
	}

	final := fresh.EntityID
	if conflict != "" && normalize.IsAutoMerge(identifierType) {
		reason := "auto-merge on " + identifierType + ":" + nval
		if _, err := r.store.MergeEntities(ctx, fresh.EntityID, conflict, reason, "auto-merge"); err != nil {
			return nil, fmt.Errorf("auto-merge: %w", err)
		}
		final, err = r.store.Canonicalize(ctx, conflict)
		if err != nil {
			return nil, fmt.Errorf("canonicalize after auto-merge: %w", err)
		}
		r.events.Merged(final, []string{fresh.EntityID}, reason)
	}

	resolution := &Resolution{
		EntityID:         final,
		CreatedNewEntity: true,
	}
	if added {
		resolution.Confidence = conf
	} else {
		resolution.Confidence = 0.6
	}

	matched, err := r.store.ListIdentifierRecordsForEntity(ctx, final)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	resolution.MatchedIdentifiers = matched

	if added {
		r.events.AliasAdded(final, nval, identifierType)
	}
	r.events.Resolved(final, causedBy, resolution.Confidence)

	return resolution, nil
}

// AddAlias binds (identifierType, raw) to entityID directly, without
// going through the create-on-miss path Resolve takes. A conflicting
// auto-merge type triggers a merge; a conflicting non-auto-merge type
// fails with ErrAliasBoundElsewhere and mutates nothing.
func (r *Resolver) AddAlias(ctx context.Context, entityID, identifierType, raw string, confidence float64, causedBy, provenance string) error {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	if err := r.store.EnsureEntity(ctx, entityID); err != nil {
		return err
	}
	canonical, err := r.store.Canonicalize(ctx, entityID)
	if err != nil {
		return fmt.Errorf("canonicalize: %w", err)
	}

	nval := normalize.Value(identifierType, raw)
	if nval == "" {
		return fmt.Errorf("%w: normalized value is empty", store.ErrInvalidInput)
	}
	if err := r.store.UpsertIdentifier(ctx, identifierType, raw, nval, confidence, provenance); err != nil {
		return fmt.Errorf("upsert identifier: %w", err)
	}

	added, conflict, err := r.store.AddAlias(ctx, identifierType, nval, canonical, confidence, causedBy, provenance)
	if err != nil {
		return fmt.Errorf("add alias: %w", err)
	}

	if conflict != "" {
		if !normalize.IsAutoMerge(identifierType) {
			return fmt.Errorf("%w: %s:%s already bound to %s", store.ErrAliasBoundElsewhere, identifierType, nval, conflict)
		}
		reason := "auto-merge on " + identifierType + ":" + nval
		if _, err := r.store.MergeEntities(ctx, canonical, conflict, reason, causedBy); err != nil {
			return fmt.Errorf("auto-merge: %w", err)
		}
		survivor, err := r.store.Canonicalize(ctx, conflict)
		if err != nil {
			return fmt.Errorf("canonicalize after auto-merge: %w", err)
		}
		r.events.Merged(survivor, []string{canonical}, reason)
		return nil
	}

	if added {
		r.events.AliasAdded(canonical, nval, identifierType)
	}
	return nil
}

// MergeEntities merges from into to, emitting EntityMerged with the
// canonical survivor. Merging two entities that already share a
// canonical fails with ErrAlreadyMerged.
func (r *Resolver) MergeEntities(ctx context.Context, from, to, reason, causedBy string) (int64, error) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	if err := r.store.EnsureEntity(ctx, from); err != nil {
		return 0, err
	}
	if err := r.store.EnsureEntity(ctx, to); err != nil {
		return 0, err
	}

	mergeID, err := r.store.MergeEntities(ctx, from, to, reason, causedBy)
	if err != nil {
		return 0, err
	}

	survivor, err := r.store.Canonicalize(ctx, to)
	if err != nil {
		return 0, fmt.Errorf("canonicalize after merge: %w", err)
	}
	r.events.Merged(survivor, []string{from}, reason)
	return mergeID, nil
}

// UndoMerge reverses a from->to redirect by removing it and reactivating
// from, then installs the opposite redirect to->from as a brand-new
// merge. Undo does not erase history: it appends a new MergeRecord in
// the opposite direction, so identifiers of to now route to from.
func (r *Resolver) UndoMerge(ctx context.Context, from, to, causedBy string) (int64, error) {
	r.writerMu.Lock()
	defer r.writerMu.Unlock()

	target, err := r.store.GetRedirectTarget(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("get redirect target: %w", err)
	}
	if target == to {
		if err := r.store.RemoveRedirect(ctx, from); err != nil {
			return 0, fmt.Errorf("remove redirect: %w", err)
		}
		if err := r.store.SetEntityStatus(ctx, from, store.StatusActive); err != nil {
			return 0, fmt.Errorf("reactivate: %w", err)
		}
	}

	reason := "undo merge from->to"
	mergeID, err := r.store.MergeEntities(ctx, to, from, reason, causedBy)
	if err != nil {
		return 0, err
	}

	survivor, err := r.store.Canonicalize(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("canonicalize after undo: %w", err)
	}
	r.events.Merged(survivor, []string{to}, reason)
	return mergeID, nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
