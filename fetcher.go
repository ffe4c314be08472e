package prefetch

import "context"

// Fetcher issues a speculative fetch for a URL.
// Implementations may use a low-priority HTTP request or prerender the
// page in a browser; response bodies are not retained.
type Fetcher interface {
	// Fetch retrieves url and discards the response.
	// Priority hints that the fetch is likely to be needed soon.
	// The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string, priority bool) error

	// Close releases transport resources.
	// Must be called when the Fetcher is no longer needed.
	Close() error
}
