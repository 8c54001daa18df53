// Package attribution implements confidence-weighted outcome attribution
// across a set of identifier references, picking the most likely owning
// entity for a downstream event.
package attribution

import (
	"context"
	"math"
	"sort"

	"github.com/metaspn/entityresolver/internal/normalize"
	"github.com/metaspn/entityresolver/internal/store"
)

// Strategy is the fixed label stamped on every OutcomeAttribution this
// package produces.
const Strategy = "confidence-weighted-reference-v1"

// entityIDReferenceType is the synthetic identifier type that means "this
// value already is a canonical entity id" rather than something to
// normalize and look up.
const entityIDReferenceType = "entity_id"

// Reference is one input to AttributeOutcome: an identifier type and its
// raw value.
type Reference struct {
	IdentifierType string
	Value          string
}

// MatchedReference records what a single Reference resolved to.
type MatchedReference struct {
	IdentifierType      string  `json:"identifier_type"`
	Value               string  `json:"value"`
	NormalizedValue     string  `json:"normalized_value"`
	MatchedEntityID     string  `json:"matched_entity_id,omitempty"`
	ReferenceConfidence float64 `json:"reference_confidence"`
}

// OutcomeAttribution is the result of AttributeOutcome.
type OutcomeAttribution struct {
	EntityID          string             `json:"entity_id,omitempty"`
	Confidence        float64            `json:"confidence"`
	MatchedReferences []MatchedReference `json:"matched_references"`
	Strategy          string             `json:"strategy"`
}

// ReferencesFromMap converts the map{type: value} input form into the
// sequence form AttributeOutcome ranks over. Map iteration order doesn't
// matter for the result since ranking is by aggregate score, not input
// order.
func ReferencesFromMap(refs map[string]string) []Reference {
	out := make([]Reference, 0, len(refs))
	for t, v := range refs {
		out = append(out, Reference{IdentifierType: t, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentifierType < out[j].IdentifierType })
	return out
}

// AttributeOutcome ranks references by confidence-weighted vote and
// returns the most likely owning entity, or a zero-confidence
// no-match result if nothing resolved.
func AttributeOutcome(ctx context.Context, s store.Store, references []Reference) (*OutcomeAttribution, error) {
	matched := make([]MatchedReference, 0, len(references))
	score := make(map[string]float64)
	hits := make(map[string]int)

	for _, ref := range references {
		m := MatchedReference{IdentifierType: ref.IdentifierType, Value: ref.Value}

		if ref.IdentifierType == entityIDReferenceType {
			m.NormalizedValue = ref.Value
			canonical, err := s.Canonicalize(ctx, ref.Value)
			if err != nil {
				matched = append(matched, m)
				continue
			}
			entity, err := s.GetEntity(ctx, canonical)
			if err != nil {
				return nil, err
			}
			if entity != nil {
				m.MatchedEntityID = canonical
				m.ReferenceConfidence = 0.99
				score[canonical] += 0.99
				hits[canonical]++
			}
			matched = append(matched, m)
			continue
		}

		nval := normalize.Value(ref.IdentifierType, ref.Value)
		m.NormalizedValue = nval

		alias, err := s.FindAlias(ctx, ref.IdentifierType, nval)
		if err != nil {
			return nil, err
		}
		if alias != nil {
			canonical, err := s.Canonicalize(ctx, alias.EntityID)
			if err != nil {
				return nil, err
			}
			m.MatchedEntityID = canonical
			m.ReferenceConfidence = alias.Confidence
			score[canonical] += alias.Confidence
			hits[canonical]++
		}
		matched = append(matched, m)
	}

	if len(score) == 0 {
		return &OutcomeAttribution{
			Confidence:        0,
			MatchedReferences: matched,
			Strategy:          Strategy,
		}, nil
	}

	best := rankBest(score, hits)
	totalRefs := len(references)
	if totalRefs == 0 {
		totalRefs = 1
	}
	normalizedConfidence := round6(math.Min(1, score[best]/float64(maxInt(1, totalRefs))))

	return &OutcomeAttribution{
		EntityID:          best,
		Confidence:        normalizedConfidence,
		MatchedReferences: matched,
		Strategy:          Strategy,
	}, nil
}

// rankBest picks the entity id with the highest (score, hits, entity_id
// ascending) tuple.
func rankBest(score map[string]float64, hits map[string]int) string {
	candidates := make([]string, 0, len(score))
	for eid := range score {
		candidates = append(candidates, eid)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if score[a] != score[b] {
			return score[a] > score[b]
		}
		if hits[a] != hits[b] {
			return hits[a] > hits[b]
		}
		return a < b
	})
	return candidates[0]
}

func round6(v float64) float64 {
	factor := math.Pow(10, 6)
	return math.Round(v*factor) / factor
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
