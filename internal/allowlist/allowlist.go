// Package allowlist implements the upstream host gate for the relay.
//
// The relay fetches attacker-influenced URLs, so this check is the only
// thing standing between it and being an open proxy. It runs before every
// network call and on every redirect hop.
package allowlist

import (
	"net/url"
	"strings"
)

// Allowlist is an immutable set of permitted CDN domains. Build it once at
// startup and share it read-only across requests.
type Allowlist struct {
	domains []string
}

// New builds an Allowlist from bare domain names. Entries are lowercased
// and leading dots are stripped, so ".cdninstagram.com" and
// "cdninstagram.com" are equivalent. Empty entries are ignored.
func New(domains []string) *Allowlist {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}
	return &Allowlist{domains: cleaned}
}

// Allows reports whether rawURL points at a permitted CDN host. It fails
// closed: any parse error, a missing hostname, or a non-HTTP scheme is a
// rejection.
//
// Matching is suffix-based on dot boundaries: "scontent.cdninstagram.com"
// matches the domain "cdninstagram.com", but "evilcdninstagram.com" and
// "cdninstagram.com.evil.example" do not. Substring matching would admit
// crafted hostnames embedding an allowed domain as a label fragment.
func (a *Allowlist) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, d := range a.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns a copy of the configured domain list, for status
// reporting.
func (a *Allowlist) Domains() []string {
	return append([]string(nil), a.domains...)
}
