// Package goquery resolves prefetch candidates from static HTML using
// CSS selectors.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/fwojciec/prefetch"
)

// Ensure Resolver implements prefetch.CandidateResolver at compile time.
var _ prefetch.CandidateResolver = (*Resolver)(nil)

// Resolver finds link candidates in an HTML document.
// Origin filtering is left to the scheduler so that the origin policy is
// applied in one place.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns one candidate per element matching selector, in
// document order. The default selector is prefetch.DefaultSelector.
// Elements without a usable href, non-HTTP links and links back to the
// page itself are skipped. The same URL may appear on several candidates.
func (r *Resolver) Resolve(html string, baseURL string, selector string) ([]*prefetch.Candidate, error) {
	page, err := url.Parse(baseURL)
	if err != nil || page.Host == "" {
		return nil, prefetch.Errorf(prefetch.EINVALID, "invalid base URL %q", baseURL)
	}
	base := page
	if strings.TrimSpace(selector) == "" {
		selector = prefetch.DefaultSelector
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, prefetch.Errorf(prefetch.EINVALID, "failed to parse HTML: %v", err)
	}

	// A <base href> changes how relative links resolve.
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	if _, err := cascadia.Compile(selector); err != nil {
		return nil, prefetch.Errorf(prefetch.EINVALID, "invalid selector %q: %v", selector, err)
	}

	cands := []*prefetch.Candidate{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" || isNonHTTPLink(href) {
			return
		}
		resolved := resolveURL(base, page, href)
		if resolved == "" {
			return
		}
		cands = append(cands, &prefetch.Candidate{
			URL:     resolved,
			Element: &Element{sel: sel},
		})
	})

	return cands, nil
}

// resolveURL resolves href against base. It returns an empty string when
// href cannot be parsed, resolves to a non-HTTP scheme, or points back to
// the page itself ignoring the fragment.
func resolveURL(base, page *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	self := *page
	self.Fragment = ""
	target := *resolved
	target.Fragment = ""
	if target.String() == self.String() {
		return ""
	}
	return resolved.String()
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
