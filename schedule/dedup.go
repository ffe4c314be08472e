package schedule

import (
	"net/url"
	"strings"
	"sync"

	"github.com/fwojciec/prefetch/bloom"
)

// Deduplicator admits each normalized URL at most once per session.
// The Bloom filter answers the common "never seen" case; positives are
// confirmed against the exact set so a false positive never drops a URL.
// It is safe for concurrent use.
type Deduplicator struct {
	mu     sync.Mutex
	filter *bloom.Filter
	seen   map[string]struct{}
}

// NewDeduplicator creates a Deduplicator sized for n expected URLs.
func NewDeduplicator(n uint) *Deduplicator {
	if n == 0 {
		n = bloom.DefaultExpectedURLs
	}
	return &Deduplicator{
		filter: bloom.NewFilter(n, bloom.DefaultFalsePositiveRate),
		seen:   make(map[string]struct{}),
	}
}

// Admit returns true the first time a normalized URL is offered and false
// on every later call. Entries are never evicted.
func (d *Deduplicator) Admit(rawURL string) bool {
	key := NormalizeURL(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestAndAdd(key) {
		if _, ok := d.seen[key]; ok {
			return false
		}
	}
	d.seen[key] = struct{}{}
	return true
}

// Seen reports whether the URL has been admitted.
func (d *Deduplicator) Seen(rawURL string) bool {
	key := NormalizeURL(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.filter.Test(key) {
		return false
	}
	_, ok := d.seen[key]
	return ok
}

// Len returns the number of admitted URLs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// NormalizeURL returns the identity used for deduplication: scheme and
// host are lower-cased and the fragment is dropped. URLs differing only
// by fragment are duplicates.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if idx := strings.Index(rawURL, "#"); idx != -1 {
			return rawURL[:idx]
		}
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
