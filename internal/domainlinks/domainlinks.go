// Package domainlinks provides the resolution helpers specific to the
// player/creator/token domain this engine ships for: wallet resolution,
// token/project/creator linking, season-reward attribution, a
// player-facing confidence summary, and canonical lineage snapshots.
package domainlinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/metaspn/entityresolver/internal/attribution"
	"github.com/metaspn/entityresolver/internal/confidence"
	"github.com/metaspn/entityresolver/internal/normalize"
	"github.com/metaspn/entityresolver/internal/resolver"
	"github.com/metaspn/entityresolver/internal/store"
)

const (
	playerWalletConfidence  = 0.97
	founderWalletConfidence = 0.98
	tokenContractConfidence = 0.99
	projectLinkConfidence   = 0.92
	creatorWalletConfidence = 0.95
	tokenAliasConfidence    = 0.99
)

// ResolvePlayerWallet resolves a player's wallet address under the
// player_wallet identifier type, namespaced by chain.
func ResolvePlayerWallet(ctx context.Context, r *resolver.Resolver, wallet, chain, causedBy string) (*resolver.Resolution, error) {
	if causedBy == "" {
		causedBy = "season1"
	}
	return r.Resolve(ctx, "player_wallet", normalize.WalletRef(chain, wallet), resolver.Context{
		EntityType: store.EntityPerson,
		Confidence: playerWalletConfidence,
		CausedBy:   causedBy,
		Provenance: "season1-player-wallet",
	})
}

// ResolveFounderWallet resolves a founder's wallet address under the
// founder_wallet identifier type.
func ResolveFounderWallet(ctx context.Context, r *resolver.Resolver, wallet, chain, causedBy string) (*resolver.Resolution, error) {
	if causedBy == "" {
		causedBy = "season1"
	}
	return r.Resolve(ctx, "founder_wallet", normalize.WalletRef(chain, wallet), resolver.Context{
		EntityType: store.EntityPerson,
		Confidence: founderWalletConfidence,
		CausedBy:   causedBy,
		Provenance: "season1-founder-wallet",
	})
}

// RewardClaim is the loosely-typed bag of references a season-reward
// claim carries; any field may be empty.
type RewardClaim struct {
	Chain           string
	EntityID        string
	PlayerEntityID  string
	FounderEntityID string
	PlayerWallet    string
	FounderWallet   string
	WalletAddress   string
	ClaimerWallet   string
	Email           string
	CanonicalURL    string
	Name            string
	TwitterHandle   string
}

// AttributeSeasonReward remaps a RewardClaim's loosely-typed fields into
// attribution references and runs the standard confidence-weighted vote.
// Wallet fields without an explicit chain prefix are namespaced using
// claim.Chain when present.
func AttributeSeasonReward(ctx context.Context, s store.Store, claim RewardClaim) (*attribution.OutcomeAttribution, error) {
	refs := make(map[string]string)

	chain := strings.ToLower(strings.TrimSpace(claim.Chain))

	mapWallet := func(outKey, raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if strings.Contains(raw, ":") {
			refs[outKey] = raw
		} else if chain != "" {
			refs[outKey] = chain + ":" + raw
		} else {
			refs[outKey] = raw
		}
	}

	for _, v := range []string{claim.EntityID, claim.PlayerEntityID, claim.FounderEntityID} {
		if strings.TrimSpace(v) != "" {
			refs["entity_id"] = strings.TrimSpace(v)
		}
	}

	mapWallet("player_wallet", claim.PlayerWallet)
	mapWallet("founder_wallet", claim.FounderWallet)
	mapWallet("wallet_address", claim.WalletAddress)
	mapWallet("wallet_address", claim.ClaimerWallet)

	if v := strings.TrimSpace(claim.Email); v != "" {
		refs["email"] = v
	}
	if v := strings.TrimSpace(claim.CanonicalURL); v != "" {
		refs["canonical_url"] = v
	}
	if v := strings.TrimSpace(claim.Name); v != "" {
		refs["name"] = v
	}
	if v := strings.TrimSpace(claim.TwitterHandle); v != "" {
		refs["twitter_handle"] = v
	}

	return attribution.AttributeOutcome(ctx, s, attribution.ReferencesFromMap(refs))
}

// PlayerConfidenceSummary is the player-facing confidence rollup returned
// by BuildPlayerConfidenceSummary.
type PlayerConfidenceSummary struct {
	EntityID          string                              `json:"entity_id"`
	OverallConfidence float64                             `json:"overall_confidence"`
	IdentifierAvg     float64                             `json:"identifier_confidence_avg"`
	AliasAvg          float64                             `json:"alias_confidence_avg"`
	UniqueSourceCount int                                 `json:"unique_source_count"`
	EvidenceCount     int                                 `json:"evidence_count"`
	ByIdentifierType  map[string]confidence.TypeBreakdown `json:"by_identifier_type"`
}

// BuildPlayerConfidenceSummary canonicalizes entityID and computes its
// confidence summary, reshaped for the player-facing API surface.
func BuildPlayerConfidenceSummary(ctx context.Context, s store.Store, entityID string) (*PlayerConfidenceSummary, error) {
	canonical, err := s.Canonicalize(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	aliases, err := s.ListAliasesForEntity(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	identifiers, err := s.ListIdentifierRecordsForEntity(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}

	summary := confidence.BuildSummary(aliases, identifiers, identifiers)
	return &PlayerConfidenceSummary{
		EntityID:          canonical,
		OverallConfidence: summary.Overall,
		IdentifierAvg:     summary.IdentifierAvg,
		AliasAvg:          summary.AliasAvg,
		UniqueSourceCount: summary.UniqueSourceCount,
		EvidenceCount:     len(identifiers),
		ByIdentifierType:  summary.ByIdentifierType,
	}, nil
}

// LineageSnapshot is the redirect-chain-plus-merges audit view for a
// requested entity id.
type LineageSnapshot struct {
	RequestedEntityID string              `json:"requested_entity_id"`
	CanonicalEntityID string              `json:"canonical_entity_id"`
	RedirectChain     []string            `json:"redirect_chain"`
	MergeCount        int                 `json:"merge_count"`
	Merges            []store.MergeRecord `json:"merges"`
}

// BuildLineageSnapshot walks the redirect chain from entityID, then
// filters the merge ledger to records touching any node on that chain or
// landing on the canonical id.
func BuildLineageSnapshot(ctx context.Context, s store.Store, entityID string) (*LineageSnapshot, error) {
	chain := []string{entityID}
	current := entityID
	for {
		next, err := s.GetRedirectTarget(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("get redirect target: %w", err)
		}
		if next == "" {
			break
		}
		chain = append(chain, next)
		current = next
	}

	canonical, err := s.Canonicalize(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	onChain := make(map[string]bool, len(chain))
	for _, id := range chain {
		onChain[id] = true
	}

	history, err := s.ListMergeHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merge history: %w", err)
	}

	var lineageMerges []store.MergeRecord
	for _, m := range history {
		if onChain[m.FromEntityID] || onChain[m.ToEntityID] || m.ToEntityID == canonical {
			lineageMerges = append(lineageMerges, m)
		}
	}

	return &LineageSnapshot{
		RequestedEntityID: entityID,
		CanonicalEntityID: canonical,
		RedirectChain:     chain,
		MergeCount:        len(lineageMerges),
		Merges:            lineageMerges,
	}, nil
}

// TokenProjectCreatorLinks is the result of LinkTokenProjectCreator.
type TokenProjectCreatorLinks struct {
	TokenEntityID   string
	ProjectEntityID string
	CreatorEntityID string
}

// ResolveTokenEntity resolves a token contract address under
// token_contract, namespaced by chain, as a project-typed entity.
func ResolveTokenEntity(ctx context.Context, r *resolver.Resolver, chain, contractAddress, causedBy string) (*resolver.Resolution, error) {
	if causedBy == "" {
		causedBy = "token-links"
	}
	tokenRef := chain + ":" + contractAddress
	return r.Resolve(ctx, "token_contract", tokenRef, resolver.Context{
		EntityType: store.EntityProject,
		Confidence: tokenContractConfidence,
		CausedBy:   causedBy,
		Provenance: "token-resolver",
	})
}

// LinkTokenToProject resolves the project identifier and binds the token
// entity to it as a token_entity_ref alias, returning the project's
// canonical entity id.
func LinkTokenToProject(ctx context.Context, r *resolver.Resolver, s store.Store, tokenEntityID, projectIdentifierType, projectIdentifierValue, causedBy string) (string, error) {
	if causedBy == "" {
		causedBy = "token-links"
	}
	project, err := r.Resolve(ctx, projectIdentifierType, projectIdentifierValue, resolver.Context{
		EntityType: store.EntityProject,
		Confidence: projectLinkConfidence,
		CausedBy:   causedBy,
		Provenance: "token-project-link",
	})
	if err != nil {
		return "", err
	}

	if err := r.AddAlias(ctx, project.EntityID, "token_entity_ref", tokenEntityID, tokenAliasConfidence, causedBy, "token-project-link"); err != nil {
		return "", fmt.Errorf("link token to project: %w", err)
	}

	return s.Canonicalize(ctx, project.EntityID)
}

// LinkCreatorWallet resolves a creator's wallet under creator_wallet.
func LinkCreatorWallet(ctx context.Context, r *resolver.Resolver, creatorWallet, chain, causedBy string) (*resolver.Resolution, error) {
	if causedBy == "" {
		causedBy = "token-links"
	}
	if chain == "" {
		chain = "eth"
	}
	walletRef := chain + ":" + creatorWallet
	return r.Resolve(ctx, "creator_wallet", walletRef, resolver.Context{
		EntityType: store.EntityPerson,
		Confidence: creatorWalletConfidence,
		CausedBy:   causedBy,
		Provenance: "token-creator-link",
	})
}

// LinkTokenProjectCreator wires together token resolution, project
// linking and optional creator-wallet linking in one call.
func LinkTokenProjectCreator(ctx context.Context, r *resolver.Resolver, s store.Store, chain, contractAddress, projectIdentifierType, projectIdentifierValue, creatorWallet, causedBy string) (*TokenProjectCreatorLinks, error) {
	if causedBy == "" {
		causedBy = "token-links"
	}

	token, err := ResolveTokenEntity(ctx, r, chain, contractAddress, causedBy)
	if err != nil {
		return nil, err
	}
	projectID, err := LinkTokenToProject(ctx, r, s, token.EntityID, projectIdentifierType, projectIdentifierValue, causedBy)
	if err != nil {
		return nil, err
	}

	tokenCanonical, err := s.Canonicalize(ctx, token.EntityID)
	if err != nil {
		return nil, err
	}

	result := &TokenProjectCreatorLinks{
		TokenEntityID:   tokenCanonical,
		ProjectEntityID: projectID,
	}

	if creatorWallet != "" {
		creator, err := LinkCreatorWallet(ctx, r, creatorWallet, chain, causedBy)
		if err != nil {
			return nil, err
		}
		creatorCanonical, err := s.Canonicalize(ctx, creator.EntityID)
		if err != nil {
			return nil, err
		}
		result.CreatorEntityID = creatorCanonical
	}

	return result, nil
}

// AttributeTokenOutcome remaps token/project/creator references into
// attribution references and runs the standard confidence-weighted vote.
func AttributeTokenOutcome(ctx context.Context, s store.Store, chain, contractAddress, creatorWallet, entityID, tokenEntityID, projectEntityID, email, canonicalURL, name string) (*attribution.OutcomeAttribution, error) {
	refs := make(map[string]string)

	chain = strings.TrimSpace(chain)
	if chain != "" && strings.TrimSpace(contractAddress) != "" {
		refs["token_contract"] = normalize.Value("token_contract", chain+":"+contractAddress)
	}

	if w := strings.TrimSpace(creatorWallet); w != "" {
		if chain != "" {
			refs["creator_wallet"] = normalize.Value("creator_wallet", chain+":"+w)
		} else {
			refs["creator_wallet"] = normalize.Value("creator_wallet", w)
		}
	}

	if v := strings.TrimSpace(entityID); v != "" {
		refs["entity_id"] = v
	}
	if v := strings.TrimSpace(tokenEntityID); v != "" {
		refs["entity_id"] = v
	}
	if v := strings.TrimSpace(projectEntityID); v != "" {
		refs["entity_id"] = v
	}
	if v := strings.TrimSpace(email); v != "" {
		refs["email"] = v
	}
	if v := strings.TrimSpace(canonicalURL); v != "" {
		refs["canonical_url"] = v
	}
	if v := strings.TrimSpace(name); v != "" {
		refs["name"] = v
	}

	return attribution.AttributeOutcome(ctx, s, attribution.ReferencesFromMap(refs))
}
