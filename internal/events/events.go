// Package events defines the domain event types the resolver emits and a
// per-call buffer for draining them in a fixed, documented order.
package events

import (
	"sync"
	"time"
)

// SchemaVersion is stamped on every event this package produces, per the
// wire contract the engine's consumers depend on. Bump it only alongside
// a documented, intentional change to event shape.
const SchemaVersion = "1"

// Kind identifies an event's type for consumers that branch on it before
// inspecting the payload.
type Kind string

const (
	KindEntityResolved   Kind = "entity_resolved"
	KindEntityAliasAdded Kind = "entity_alias_added"
	KindEntityMerged     Kind = "entity_merged"
)

// Event is the envelope every domain event carries regardless of kind.
// Payload holds the kind-specific fields (ResolvedPayload, AliasAddedPayload,
// or MergedPayload).
type Event struct {
	Kind          Kind      `json:"kind"`
	SchemaVersion string    `json:"schema_version"`
	EmittedAt     time.Time `json:"emitted_at"`
	Payload       any       `json:"payload"`
}

// ResolvedPayload accompanies KindEntityResolved.
type ResolvedPayload struct {
	EntityID      string    `json:"entity_id"`
	Resolver      string    `json:"resolver"`
	ResolvedAt    time.Time `json:"resolved_at"`
	Confidence    float64   `json:"confidence"`
	SchemaVersion string    `json:"schema_version"`
}

// AliasAddedPayload accompanies KindEntityAliasAdded.
type AliasAddedPayload struct {
	EntityID      string    `json:"entity_id"`
	Alias         string    `json:"alias"`
	AliasType     string    `json:"alias_type"`
	AddedAt       time.Time `json:"added_at"`
	SchemaVersion string    `json:"schema_version"`
}

// MergedPayload accompanies KindEntityMerged. EntityID is the canonical
// survivor; MergedFrom lists the entity ids that now redirect into it.
type MergedPayload struct {
	EntityID      string    `json:"entity_id"`
	MergedFrom    []string  `json:"merged_from"`
	MergedAt      time.Time `json:"merged_at"`
	Reason        string    `json:"reason,omitempty"`
	SchemaVersion string    `json:"schema_version"`
}

// Buffer accumulates events produced by a single resolver call (or a
// chain of calls, e.g. an auto-merge triggered from within a resolve) so
// they can be drained and published as one atomic batch. Drain returns
// events in append order and does not reorder them by kind; the fixed
// per-operation order comes from the order in which the resolver appends.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) append(kind Kind, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{
		Kind:          kind,
		SchemaVersion: SchemaVersion,
		EmittedAt:     time.Now().UTC(),
		Payload:       payload,
	})
}

func utcSecond() time.Time { return time.Now().UTC().Truncate(time.Second) }

// Resolved records an EntityResolved event. ResolvedAt and SchemaVersion
// are stamped here; callers only need to fill EntityID, Resolver and
// Confidence.
func (b *Buffer) Resolved(entityID, resolver string, confidence float64) {
	b.append(KindEntityResolved, ResolvedPayload{
		EntityID:      entityID,
		Resolver:      resolver,
		ResolvedAt:    utcSecond(),
		Confidence:    confidence,
		SchemaVersion: SchemaVersion,
	})
}

// AliasAdded records an EntityAliasAdded event.
func (b *Buffer) AliasAdded(entityID, alias, aliasType string) {
	b.append(KindEntityAliasAdded, AliasAddedPayload{
		EntityID:      entityID,
		Alias:         alias,
		AliasType:     aliasType,
		AddedAt:       utcSecond(),
		SchemaVersion: SchemaVersion,
	})
}

// Merged records an EntityMerged event.
func (b *Buffer) Merged(entityID string, mergedFrom []string, reason string) {
	b.append(KindEntityMerged, MergedPayload{
		EntityID:      entityID,
		MergedFrom:    mergedFrom,
		MergedAt:      utcSecond(),
		Reason:        reason,
		SchemaVersion: SchemaVersion,
	})
}

// Drain returns and clears every buffered event, in append order. Safe to
// call concurrently with producers, but callers publishing the drained
// batch should treat it as the authoritative order for that call.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Len reports the number of events currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
