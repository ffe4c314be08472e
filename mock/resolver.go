package mock

import "github.com/fwojciec/prefetch"

var _ prefetch.CandidateResolver = (*CandidateResolver)(nil)

// CandidateResolver is a mock implementation of prefetch.CandidateResolver.
type CandidateResolver struct {
	ResolveFn func(html, baseURL, selector string) ([]*prefetch.Candidate, error)
}

func (r *CandidateResolver) Resolve(html, baseURL, selector string) ([]*prefetch.Candidate, error) {
	return r.ResolveFn(html, baseURL, selector)
}
