// Package confidence builds deterministic confidence summaries and
// entity contexts from store snapshots. Every function here is pure: no
// I/O, no store access — callers gather the rows first.
package confidence

import (
	"math"
	"sort"

	"github.com/metaspn/entityresolver/internal/store"
)

const roundingPlaces = 6

// TypeBreakdown is the per-identifier-type slice of a Summary.
type TypeBreakdown struct {
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	MaxConfidence float64 `json:"max_confidence"`
}

// Summary is the deterministic confidence rollup over a set of aliases,
// identifiers and evidence rows.
type Summary struct {
	IdentifierAvg     float64                  `json:"identifier_avg"`
	AliasAvg          float64                  `json:"alias_avg"`
	UniqueSourceCount int                      `json:"unique_source_count"`
	SourceDiversity   float64                  `json:"source_diversity"`
	Overall           float64                  `json:"overall"`
	ByIdentifierType  map[string]TypeBreakdown `json:"by_identifier_type"`
}

// round rounds to 6 decimal places (half away from zero), matching the boundary-rounding
// rule every derived float in this engine follows.
func round(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	factor := math.Pow(10, roundingPlaces)
	return math.Round(v*factor) / factor
}

// BuildSummary computes a confidence Summary over aliases, identifiers
// and evidence (the identifier records whose provenance contributes to
// source diversity — callers pass the full identifier set or a recency
// window, depending on caller).
func BuildSummary(aliases []store.Alias, identifiers []store.Identifier, evidence []store.Identifier) Summary {
	identifierAvg := round(meanIdentifierConfidence(identifiers))
	aliasAvg := round(meanAliasConfidence(aliases))

	sources := make(map[string]bool)
	for _, e := range evidence {
		if e.Provenance != "" {
			sources[e.Provenance] = true
		}
	}
	uniqueSources := len(sources)
	sourceDiversity := round(math.Min(1, float64(uniqueSources)/3))

	overall := round(math.Min(1, 0.65*identifierAvg+0.25*aliasAvg+0.10*sourceDiversity))

	byType := make(map[string]TypeBreakdown)
	grouped := make(map[string][]float64)
	for _, ident := range identifiers {
		grouped[ident.IdentifierType] = append(grouped[ident.IdentifierType], ident.Confidence)
	}
	for idType, confs := range grouped {
		sum := 0.0
		max := confs[0]
		for _, c := range confs {
			sum += c
			if c > max {
				max = c
			}
		}
		byType[idType] = TypeBreakdown{
			Count:         len(confs),
			AvgConfidence: round(sum / float64(len(confs))),
			MaxConfidence: round(max),
		}
	}

	return Summary{
		IdentifierAvg:     identifierAvg,
		AliasAvg:          aliasAvg,
		UniqueSourceCount: uniqueSources,
		SourceDiversity:   sourceDiversity,
		Overall:           overall,
		ByIdentifierType:  byType,
	}
}

func meanIdentifierConfidence(identifiers []store.Identifier) float64 {
	if len(identifiers) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range identifiers {
		sum += i.Confidence
	}
	return sum / float64(len(identifiers))
}

func meanAliasConfidence(aliases []store.Alias) float64 {
	if len(aliases) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range aliases {
		sum += a.Confidence
	}
	return sum / float64(len(aliases))
}

// SortedTypeKeys returns ByIdentifierType's keys sorted ascending, for
// callers that need deterministic serialization without relying on map
// iteration order.
func (s Summary) SortedTypeKeys() []string {
	keys := make([]string, 0, len(s.ByIdentifierType))
	for k := range s.ByIdentifierType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const defaultRecentEvidenceWindow = 10

// EntityContext is the derived read model for a single canonical entity:
// its aliases, identifier records, a recency-windowed evidence slice, and
// the confidence summary. The summary averages over all aliases and
// identifiers; only its source count and diversity use the window.
type EntityContext struct {
	CanonicalEntityID string             `json:"canonical_entity_id"`
	Aliases           []store.Alias      `json:"aliases"`
	Identifiers       []store.Identifier `json:"identifiers"`
	RecentEvidence    []store.Identifier `json:"recent_evidence"`
	Confidence        Summary            `json:"confidence"`
}

// BuildEntityContext assembles an EntityContext from the rows already
// canonicalized and filtered by the caller (store.Store's
// ListAliasesForEntity / ListIdentifierRecordsForEntity do this).
func BuildEntityContext(canonicalEntityID string, aliases []store.Alias, identifiers []store.Identifier) EntityContext {
	recent := recentEvidence(identifiers, defaultRecentEvidenceWindow)
	return EntityContext{
		CanonicalEntityID: canonicalEntityID,
		Aliases:           aliases,
		Identifiers:       identifiers,
		RecentEvidence:    recent,
		Confidence:        BuildSummary(aliases, identifiers, recent),
	}
}

// recentEvidence returns the top n identifiers by (last_seen_at desc,
// identifier_type asc, normalized_value asc), without mutating the input
// slice's backing array.
func recentEvidence(identifiers []store.Identifier, n int) []store.Identifier {
	sorted := make([]store.Identifier, len(identifiers))
	copy(sorted, identifiers)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastSeenAt.Equal(sorted[j].LastSeenAt) {
			return sorted[i].LastSeenAt.After(sorted[j].LastSeenAt)
		}
		if sorted[i].IdentifierType != sorted[j].IdentifierType {
			return sorted[i].IdentifierType < sorted[j].IdentifierType
		}
		return sorted[i].NormalizedValue < sorted[j].NormalizedValue
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
