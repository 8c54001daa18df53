// Package recommendation builds the recommendation context derived view:
// activity recency, channel hints, and a relationship-stage heuristic
// over an entity's aliases and identifier history.
package recommendation

import (
	"math"
	"sort"
	"time"

	"github.com/metaspn/entityresolver/internal/confidence"
	"github.com/metaspn/entityresolver/internal/store"
)

// channelWeights assigns each identifier type a weight used to pick the
// preferred contact channel. Unknown types default to 1.
var channelWeights = map[string]int{
	"email":           5,
	"linkedin_handle": 4,
	"twitter_handle":  3,
	"github_handle":   3,
	"canonical_url":   2,
	"domain":          1,
	"name":            0,
}

const unknownTypeWeight = 1

// InteractionHistorySummary counts evidence by source.
type InteractionHistorySummary struct {
	EvidenceCount   int            `json:"evidence_count"`
	DistinctSources int            `json:"distinct_sources"`
	Sources         map[string]int `json:"sources"`
}

// Continuity is the minimal identity-continuity snapshot carried in a
// recommendation context.
type Continuity struct {
	CanonicalEntityID string `json:"canonical_entity_id"`
	AliasCount        int    `json:"alias_count"`
	IdentifierCount   int    `json:"identifier_count"`
}

// Context is the full recommendation read model for one entity.
type Context struct {
	ActivityRecencyDays       float64                   `json:"activity_recency_days"`
	InteractionHistorySummary InteractionHistorySummary `json:"interaction_history_summary"`
	PreferredChannelHint      string                    `json:"preferred_channel_hint"`
	RelationshipStageHint     string                    `json:"relationship_stage_hint"`
	Continuity                Continuity                `json:"continuity"`
}

// Build computes a recommendation Context. now is passed in explicitly so
// the result is reproducible in tests; production callers pass
// time.Now().UTC().
func Build(now time.Time, canonicalEntityID string, aliases []store.Alias, identifiers []store.Identifier) Context {
	recency := activityRecencyDays(now, identifiers)
	history := interactionHistory(identifiers)
	summary := confidence.BuildSummary(aliases, identifiers, identifiers)

	return Context{
		ActivityRecencyDays:       recency,
		InteractionHistorySummary: history,
		PreferredChannelHint:      preferredChannel(identifiers),
		RelationshipStageHint:     relationshipStage(history.EvidenceCount, recency, summary.Overall),
		Continuity: Continuity{
			CanonicalEntityID: canonicalEntityID,
			AliasCount:        len(aliases),
			IdentifierCount:   len(identifiers),
		},
	}
}

func round6(v float64) float64 {
	if math.IsInf(v, 0) {
		return v
	}
	factor := math.Pow(10, 6)
	return math.Round(v*factor) / factor
}

func activityRecencyDays(now time.Time, identifiers []store.Identifier) float64 {
	var latest time.Time
	found := false
	for _, i := range identifiers {
		if !found || i.LastSeenAt.After(latest) {
			latest = i.LastSeenAt
			found = true
		}
	}
	if !found {
		return math.Inf(1)
	}
	days := now.Sub(latest).Hours() / 24
	return round6(days)
}

func interactionHistory(identifiers []store.Identifier) InteractionHistorySummary {
	sources := make(map[string]int)
	for _, i := range identifiers {
		if i.Provenance != "" {
			sources[i.Provenance]++
		}
	}
	return InteractionHistorySummary{
		EvidenceCount:   len(identifiers),
		DistinctSources: len(sources),
		Sources:         sources,
	}
}

func preferredChannel(identifiers []store.Identifier) string {
	if len(identifiers) == 0 {
		return "unknown"
	}
	totals := make(map[string]int)
	for _, i := range identifiers {
		weight, ok := channelWeights[i.IdentifierType]
		if !ok {
			weight = unknownTypeWeight
		}
		totals[i.IdentifierType] += weight
	}

	types := make([]string, 0, len(totals))
	for t := range totals {
		types = append(types, t)
	}
	sort.Strings(types)

	best := types[0]
	bestScore := totals[best]
	for _, t := range types[1:] {
		if totals[t] > bestScore {
			best = t
			bestScore = totals[t]
		}
	}
	return best
}

func relationshipStage(evidenceCount int, recencyDays, overallConfidence float64) string {
	switch {
	case evidenceCount >= 6 && recencyDays <= 30 && overallConfidence >= 0.8:
		return "engaged"
	case evidenceCount >= 3 && recencyDays <= 90 && overallConfidence >= 0.65:
		return "warm"
	default:
		return "cold"
	}
}
