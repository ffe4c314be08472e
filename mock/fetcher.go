package mock

import (
	"context"

	"github.com/fwojciec/prefetch"
)

var _ prefetch.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of prefetch.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string, priority bool) error
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, url string, priority bool) error {
	return f.FetchFn(ctx, url, priority)
}

func (f *Fetcher) Close() error {
	return f.CloseFn()
}
