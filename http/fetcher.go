// Package http provides HTTP implementations of prefetch.Fetcher and
// prefetch.URLSource. Prefetches are plain GET requests marked with the
// headers browsers send for speculative loads; bodies are drained and
// discarded.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fwojciec/prefetch"
)

// DefaultFetchTimeout is the default timeout for prefetch requests.
const DefaultFetchTimeout = 10 * time.Second

// DefaultUserAgent identifies prefetch requests.
const DefaultUserAgent = "prefetch/1.0 (+https://github.com/fwojciec/prefetch)"

// maxDocumentSize bounds the page body read by Document.
const maxDocumentSize = 10 << 20

// Ensure Fetcher implements prefetch.Fetcher at compile time.
var _ prefetch.Fetcher = (*Fetcher)(nil)

// Fetcher issues prefetch requests over HTTP.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultFetchTimeout (10s) if not specified.
// Ignored when WithClient supplies a client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithClient sets the HTTP client used for requests.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultFetchTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.client == nil {
		f.client = &http.Client{
			Timeout: f.timeout,
		}
	}

	return f
}

// Fetch requests url with prefetch headers and discards the body.
// Any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string, priority bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Sec-Purpose", "prefetch")
	req.Header.Set("Purpose", "prefetch")
	if priority {
		req.Header.Set("Priority", "u=1")
	} else {
		req.Header.Set("Priority", "u=5")
	}
	f.setUserAgent(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Draining lets the connection be reused.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("reading body of %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}
	return nil
}

// Document retrieves the HTML of a page so its links can be resolved
// into candidates.
func (f *Fetcher) Document(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	f.setUserAgent(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", prefetch.Errorf(prefetch.ENOTFOUND, "HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func (f *Fetcher) setUserAgent(req *http.Request) {
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
}

// Close releases resources. For HTTP fetcher this is a no-op since
// http.Client doesn't require explicit cleanup.
func (f *Fetcher) Close() error {
	return nil
}
