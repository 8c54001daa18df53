package normalize

import "testing"

func TestValue(t *testing.T) {
	cases := []struct {
		name   string
		idType string
		raw    string
		want   string
	}{
		{"twitter strips at", "twitter_handle", "@same", "same"},
		{"twitter bare", "twitter_handle", "same", "same"},
		{"email lowercases", "email", "  Test@Example.COM ", "test@example.com"},
		{"domain with scheme", "domain", "https://www.Example.com/path", "example.com"},
		{"domain bare www", "domain", "WWW.Example.com", "example.com"},
		{"canonical_url with scheme and trailing slash", "canonical_url", "https://example.com/u/alice/", "example.com/u/alice"},
		{"canonical_url www and http", "canonical_url", "http://www.example.com/u/alice", "example.com/u/alice"},
		{"url no scheme", "url", "Example.com/Path/", "example.com/path"},
		{"name collapses whitespace", "name", "  Alice   Smith  ", "alice smith"},
		{"unknown type falls through", "token_entity_ref", "  AbC123 ", "abc123"},
		{"uppercase type", "EMAIL", "A@B.com", "a@b.com"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Value(tc.idType, tc.raw)
			if got != tc.want {
				t.Errorf("Value(%q, %q) = %q, want %q", tc.idType, tc.raw, got, tc.want)
			}
		})
	}
}

func TestValueIdempotent(t *testing.T) {
	types := []string{"twitter_handle", "email", "domain", "canonical_url", "url", "name", "handle", "wallet_address"}
	raws := []string{"@Alice", "Test@Example.com", "https://www.Example.com/a/", "  Some Name  ", "plain"}

	for _, ty := range types {
		for _, raw := range raws {
			once := Value(ty, raw)
			twice := Value(ty, once)
			if once != twice {
				t.Errorf("Value(%q, ...) not idempotent: %q -> %q", ty, once, twice)
			}
		}
	}
}

func TestIsAutoMerge(t *testing.T) {
	for _, ty := range []string{"email", "canonical_url", "url", "EMAIL"} {
		if !IsAutoMerge(ty) {
			t.Errorf("expected %q to be an auto-merge type", ty)
		}
	}
	for _, ty := range []string{"twitter_handle", "name", "domain"} {
		if IsAutoMerge(ty) {
			t.Errorf("did not expect %q to be an auto-merge type", ty)
		}
	}
}

func TestWalletRef(t *testing.T) {
	if got, want := WalletRef("ETH", "0xABC"), "eth:0xabc"; got != want {
		t.Errorf("WalletRef = %q, want %q", got, want)
	}
	if got, want := WalletRef("", "0xABC"), "eth:0xabc"; got != want {
		t.Errorf("WalletRef default chain = %q, want %q", got, want)
	}
}
