// Package adapter decodes the normalized social-signal envelope handed
// over by upstream providers into deterministic resolve/add-alias calls
// against a Resolver.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metaspn/entityresolver/internal/events"
	"github.com/metaspn/entityresolver/internal/resolver"
	"github.com/metaspn/entityresolver/internal/store"
)

// SignalPayload is the decoded body of a normalized social signal: the
// fields the adapter knows how to mine for identifiers. Unrecognized
// fields are simply absent from a given envelope.
type SignalPayload struct {
	Platform     string
	Email        string
	ProfileURL   string
	AuthorURL    string
	CanonicalURL string
	AuthorHandle string
	Handle       string
	Domain       string
	DisplayName  string
	Name         string
}

// SignalEnvelope wraps a SignalPayload with its originating source label.
type SignalEnvelope struct {
	Source  string
	Payload SignalPayload
}

// SignalResolutionResult is the outcome of resolving one envelope: the
// entity it settled on, the confidence of that resolution, and every
// event emitted during the call (scoped to just this invocation).
type SignalResolutionResult struct {
	EntityID      string
	Confidence    float64
	EmittedEvents []events.Event
}

type candidate struct {
	priority       int
	identifierType string
	value          string
	confidence     float64
}

// ResolveNormalizedSocialSignal extracts identifiers from envelope in a
// fixed priority order (email, then a canonical/profile/author URL, then
// a platform-qualified handle, then domain, then display name),
// deduplicates them, resolves the highest-priority one as the primary
// identifier, and adds the rest as aliases on the resulting entity.
//
// Event drain is scoped to this call: any events already buffered on r
// are drained (and discarded) before resolution starts, so
// EmittedEvents reflects only what this invocation produced.
func ResolveNormalizedSocialSignal(ctx context.Context, r *resolver.Resolver, envelope SignalEnvelope, defaultEntityType, causedBy string) (*SignalResolutionResult, error) {
	if defaultEntityType == "" {
		defaultEntityType = store.EntityPerson
	}
	if causedBy == "" {
		causedBy = "m0-ingestion"
	}
	source := envelope.Source
	if source == "" {
		source = "unknown-source"
	}

	r.DrainEvents()

	identifiers := extractIdentifiers(envelope.Payload)
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%w: no resolvable identifiers found in normalized social signal payload", store.ErrInvalidInput)
	}

	primary := identifiers[0]
	resolution, err := r.Resolve(ctx, primary.identifierType, primary.value, resolver.Context{
		Confidence: primary.confidence,
		EntityType: defaultEntityType,
		CausedBy:   causedBy,
		Provenance: source,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve primary identifier: %w", err)
	}

	for _, c := range identifiers[1:] {
		if err := r.AddAlias(ctx, resolution.EntityID, c.identifierType, c.value, c.confidence, causedBy, source); err != nil {
			return nil, fmt.Errorf("add alias %s:%s: %w", c.identifierType, c.value, err)
		}
	}

	return &SignalResolutionResult{
		EntityID:      resolution.EntityID,
		Confidence:    resolution.Confidence,
		EmittedEvents: r.DrainEvents(),
	}, nil
}

// extractIdentifiers mines p for identifier candidates in fixed priority
// order, then deduplicates by (type, value) while preserving the
// deterministic (priority, type, value) sort order.
func extractIdentifiers(p SignalPayload) []candidate {
	var candidates []candidate

	if v := strings.TrimSpace(p.Email); v != "" {
		candidates = append(candidates, candidate{0, "email", v, 0.98})
	}

	for _, v := range []string{p.ProfileURL, p.AuthorURL, p.CanonicalURL} {
		if v = strings.TrimSpace(v); v != "" {
			candidates = append(candidates, candidate{1, "canonical_url", v, 0.96})
			break
		}
	}

	handle := strings.TrimSpace(p.AuthorHandle)
	if handle == "" {
		handle = strings.TrimSpace(p.Handle)
	}
	if handle != "" {
		platform := strings.ToLower(strings.TrimSpace(p.Platform))
		handleType := "handle"
		if platform != "" {
			handleType = platform + "_handle"
		}
		candidates = append(candidates, candidate{2, handleType, handle, 0.93})
	}

	if v := strings.TrimSpace(p.Domain); v != "" {
		candidates = append(candidates, candidate{3, "domain", v, 0.9})
	}

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = strings.TrimSpace(p.Name)
	}
	if name != "" {
		candidates = append(candidates, candidate{4, "name", name, 0.7})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.identifierType != b.identifierType {
			return a.identifierType < b.identifierType
		}
		return a.value < b.value
	})

	seen := make(map[[2]string]bool)
	ordered := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		key := [2]string{c.identifierType, c.value}
		if seen[key] {
			continue
		}
		seen[key] = true
		ordered = append(ordered, c)
	}
	return ordered
}
