// Package normalize implements the pure identifier-normalization rules
// shared by every identifier type the resolver accepts.
package normalize

import (
	"net/url"
	"strings"
)

// AutoMerge is the set of identifier types whose re-observation under a
// different canonical entity forces an automatic merge.
var AutoMerge = map[string]bool{
	"email":         true,
	"canonical_url": true,
	"url":           true,
}

// IsAutoMerge reports whether identifierType is a strong identifier that
// triggers auto-merge on conflict.
func IsAutoMerge(identifierType string) bool {
	return AutoMerge[strings.ToLower(identifierType)]
}

// Value normalizes raw against the rules for identifierType. The function
// is pure and total: every identifier type, including ones the core does
// not otherwise recognize, normalizes to something.
func Value(identifierType, raw string) string {
	identifierType = strings.ToLower(strings.TrimSpace(identifierType))
	raw = strings.TrimSpace(raw)

	switch identifierType {
	case "twitter_handle", "github_handle", "handle":
		return strings.ToLower(strings.TrimPrefix(raw, "@"))
	case "email":
		return strings.ToLower(raw)
	case "domain":
		cleaned := strings.ToLower(raw)
		if strings.HasPrefix(cleaned, "http://") || strings.HasPrefix(cleaned, "https://") {
			if u, err := url.Parse(cleaned); err == nil && u.Host != "" {
				cleaned = u.Host
			}
		}
		return stripLeadingWWW(cleaned)
	case "linkedin_url", "url", "canonical_url":
		if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
			host := stripLeadingWWW(strings.ToLower(u.Host))
			path := strings.TrimRight(u.Path, "/")
			return strings.ToLower(host + path)
		}
		return strings.ToLower(strings.TrimRight(raw, "/"))
	case "name":
		return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	default:
		return strings.ToLower(raw)
	}
}

// stripLeadingWWW strips exactly one literal leading "www." prefix.
// Anything more thorough (punycode, multi-label subdomain rules) is out
// of scope for alias keying.
func stripLeadingWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// WalletRef builds the namespaced wallet reference convention used by the
// domain helpers: "<chain>:<normalized_wallet>", chain lowercased and
// wallet run through the generic normalization rule.
func WalletRef(chain, wallet string) string {
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		chain = "eth"
	}
	return chain + ":" + Value("wallet_address", wallet)
}
