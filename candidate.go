package prefetch

import (
	"context"
	"time"
)

// Element is the opaque source element a candidate was discovered on.
// It is only inspected by element-aware ignore rules.
type Element interface {
	// Text returns the element's text content.
	Text() string

	// Attr returns the value of the named attribute and whether it exists.
	Attr(name string) (string, bool)
}

// Candidate is a link-like entry under observation.
// A candidate's identity is its pointer: the same URL may appear on
// several candidates, and deduplication happens when they are scheduled.
type Candidate struct {
	URL      string  // absolute URL
	Element  Element // may be nil
	Priority bool    // per-candidate priority hint
}

// VisibilityEvent reports a change in a candidate's viewport membership.
// Events are consumed once by the visibility coordinator.
type VisibilityEvent struct {
	Candidate    *Candidate
	Intersecting bool
	Ratio        float64
	Time         time.Time
}

// CandidateResolver turns a document into candidates.
type CandidateResolver interface {
	// Resolve parses html and returns one candidate per element matching
	// selector, in document order. Relative URLs are resolved against baseURL.
	Resolve(html string, baseURL string, selector string) ([]*Candidate, error)
}

// URLSource discovers URLs to prefetch explicitly.
type URLSource interface {
	Discover(ctx context.Context, sourceURL string) ([]string, error)
}
