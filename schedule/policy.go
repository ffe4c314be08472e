// Package schedule decides which link candidates get prefetched and when.
// It tracks candidate visibility, filters candidates by origin and ignore
// rules, deduplicates URLs, enforces the session budget and dispatches
// fetches through a bounded FIFO pool.
package schedule

import (
	"net/url"
	"strings"

	"github.com/fwojciec/prefetch"
	"golang.org/x/net/idna"
)

// Policy evaluates the origin allow-list and ignore rules.
// It has no state beyond its configuration and is safe for concurrent use.
type Policy struct {
	all     bool
	origins map[string]struct{}
	ignores []prefetch.IgnoreRule
}

// NewPolicy builds a Policy from cfg.
func NewPolicy(cfg *prefetch.Config) *Policy {
	p := &Policy{
		all:     cfg.AllOrigins,
		origins: make(map[string]struct{}),
		ignores: cfg.Ignores,
	}
	for _, o := range cfg.AllowedOrigins() {
		p.origins[canonicalHost(o)] = struct{}{}
	}
	return p
}

// Allowed reports whether rawURL may be prefetched.
// rawURL is the candidate URL before UrlTransform is applied.
func (p *Policy) Allowed(rawURL string, el prefetch.Element) bool {
	if !p.allowedOrigin(rawURL) {
		return false
	}
	for _, rule := range p.ignores {
		if rule.Match(rawURL, el) {
			return false
		}
	}
	return true
}

func (p *Policy) allowedOrigin(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if p.all {
		return true
	}
	_, ok := p.origins[canonicalHost(u.Hostname())]
	return ok
}

// canonicalHost lower-cases host and converts IDNs to their ASCII form so
// that "Bücher.example" and "xn--bcher-kva.example" compare equal.
func canonicalHost(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return strings.ToLower(host)
}
