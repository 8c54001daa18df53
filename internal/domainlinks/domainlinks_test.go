package domainlinks

import (
	"context"
	"testing"

	"github.com/metaspn/entityresolver/internal/resolver"
	"github.com/metaspn/entityresolver/internal/store"
)

func TestResolvePlayerAndFounderWalletsDistinctNamespaces(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := resolver.New(s)

	player, err := ResolvePlayerWallet(ctx, r, "0xABC", "ETH", "")
	if err != nil {
		t.Fatal(err)
	}
	founder, err := ResolveFounderWallet(ctx, r, "0xABC", "ETH", "")
	if err != nil {
		t.Fatal(err)
	}
	if player.EntityID == founder.EntityID {
		t.Error("player_wallet and founder_wallet for the same address should be distinct identifier types, not merged")
	}
}

func TestAttributeSeasonRewardWalletChainFallback(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := resolver.New(s)

	res, err := ResolvePlayerWallet(ctx, r, "0xdef", "eth", "test")
	if err != nil {
		t.Fatal(err)
	}

	result, err := AttributeSeasonReward(ctx, s, RewardClaim{
		Chain:        "eth",
		PlayerWallet: "0xdef",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.EntityID != res.EntityID {
		t.Errorf("entity_id = %q, want %q", result.EntityID, res.EntityID)
	}
}

func TestLinkTokenProjectCreator(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := resolver.New(s)

	links, err := LinkTokenProjectCreator(ctx, r, s, "eth", "0xtoken", "name", "Acme Project", "0xcreator", "test")
	if err != nil {
		t.Fatal(err)
	}
	if links.TokenEntityID == "" || links.ProjectEntityID == "" || links.CreatorEntityID == "" {
		t.Fatalf("expected all three entity ids populated, got %+v", links)
	}
	if links.TokenEntityID == links.ProjectEntityID {
		t.Error("token and project should stay distinct entities, linked through a token_entity_ref alias")
	}

	aliases, err := s.ListAliasesForEntity(ctx, links.ProjectEntityID)
	if err != nil {
		t.Fatal(err)
	}
	foundRef := false
	for _, a := range aliases {
		if a.IdentifierType == "token_entity_ref" && a.NormalizedValue == links.TokenEntityID {
			foundRef = true
		}
	}
	if !foundRef {
		t.Errorf("expected a token_entity_ref alias for %q on the project, got %+v", links.TokenEntityID, aliases)
	}
}

func TestMultipleTokensMapToOneProject(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := resolver.New(s)

	t1, err := ResolveTokenEntity(ctx, r, "eth", "0x111", "test")
	if err != nil {
		t.Fatal(err)
	}
	t2, err := ResolveTokenEntity(ctx, r, "eth", "0x222", "test")
	if err != nil {
		t.Fatal(err)
	}

	p1, err := LinkTokenToProject(ctx, r, s, t1.EntityID, "name", "Meta Token Project", "test")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := LinkTokenToProject(ctx, r, s, t2.EntityID, "name", "meta token project", "test")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatalf("expected both tokens to land on one project, got %q and %q", p1, p2)
	}

	aliases, err := s.ListAliasesForEntity(ctx, p1)
	if err != nil {
		t.Fatal(err)
	}
	refs := make(map[string]bool)
	for _, a := range aliases {
		if a.IdentifierType == "token_entity_ref" {
			refs[a.NormalizedValue] = true
		}
	}
	if !refs[t1.EntityID] || !refs[t2.EntityID] {
		t.Errorf("expected token_entity_ref aliases for both tokens, got %v", refs)
	}
}

func TestBuildLineageSnapshotAfterMerge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := resolver.New(s)

	a, _ := r.Resolve(ctx, "twitter_handle", "lineage_a", resolver.Context{})
	b, _ := r.Resolve(ctx, "twitter_handle", "lineage_b", resolver.Context{})
	if _, err := r.MergeEntities(ctx, a.EntityID, b.EntityID, "dup", "test"); err != nil {
		t.Fatal(err)
	}

	snap, err := BuildLineageSnapshot(ctx, s, a.EntityID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CanonicalEntityID != b.EntityID {
		t.Errorf("canonical_entity_id = %q, want %q", snap.CanonicalEntityID, b.EntityID)
	}
	if snap.MergeCount != 1 {
		t.Errorf("merge_count = %d, want 1", snap.MergeCount)
	}
}
