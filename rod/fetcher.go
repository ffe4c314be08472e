// Package rod provides Chrome-backed adapters: a prerendering
// prefetch.Fetcher and an Observer that reports real viewport
// intersections of a page's links.
package rod

import (
	"context"

	"github.com/fwojciec/prefetch"
)

// Ensure Fetcher implements prefetch.Fetcher at compile time.
var _ prefetch.Fetcher = (*Fetcher)(nil)

// Fetcher prerenders URLs: each fetch loads the page in a fresh tab,
// waits for the load event and closes the tab, leaving the responses in
// the browser's HTTP cache.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	manager *BrowserManager
	owned   bool
}

// NewFetcher creates a Fetcher with its own headless Chrome.
// Close must be called when the Fetcher is no longer needed.
func NewFetcher(opts ...ManagerOption) (*Fetcher, error) {
	bm, err := NewBrowserManager(opts...)
	if err != nil {
		return nil, err
	}
	return &Fetcher{manager: bm, owned: true}, nil
}

// NewFetcherWithManager creates a Fetcher sharing bm, e.g. with an
// Observer, so prerendered pages land in the observed browser's cache.
// Closing the Fetcher leaves bm open.
func NewFetcherWithManager(bm *BrowserManager) *Fetcher {
	return &Fetcher{manager: bm}
}

// Fetch loads url in a new tab. Chrome schedules the navigation itself,
// so priority is not forwarded.
func (f *Fetcher) Fetch(ctx context.Context, url string, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	page, release, err := f.manager.Page(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// Close releases browser resources.
func (f *Fetcher) Close() error {
	if !f.owned {
		return nil
	}
	return f.manager.Close()
}
