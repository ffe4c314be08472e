package prefetch

import (
	"context"
	"time"
)

// FetchState is the lifecycle state of a scheduled fetch.
type FetchState int

// Fetch states. The zero value means the URL was never scheduled.
const (
	StateNone FetchState = iota
	StatePending
	StateInFlight
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s FetchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "none"
	}
}

// Settled reports whether the fetch has finished, successfully or not.
func (s FetchState) Settled() bool {
	return s == StateCompleted || s == StateFailed
}

// ParseFetchState parses a state name as returned by String.
func ParseFetchState(s string) (FetchState, error) {
	for _, st := range []FetchState{StateNone, StatePending, StateInFlight, StateCompleted, StateFailed} {
		if st.String() == s {
			return st, nil
		}
	}
	return StateNone, Errorf(EINVALID, "unknown fetch state %q", s)
}

// Reason explains why a URL was not scheduled.
type Reason string

// Reasons a URL is dropped before scheduling. Drops are expected
// filtering outcomes, not errors.
const (
	ReasonNone       Reason = ""
	ReasonGated      Reason = "gated"
	ReasonFiltered   Reason = "filtered"
	ReasonDuplicate  Reason = "duplicate"
	ReasonOverBudget Reason = "over_budget"
	ReasonStopped    Reason = "stopped"
)

// Outcome records what happened to a single URL within a session.
type Outcome struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	URL       string     `json:"url"`
	FetchURL  string     `json:"fetchUrl"`
	State     FetchState `json:"state"`
	Reason    Reason     `json:"reason,omitempty"`
	Err       error      `json:"-"`
	Started   time.Time  `json:"started"`
	Finished  time.Time  `json:"finished"`
}

// Scheduled reports whether the URL was admitted for fetching.
func (o *Outcome) Scheduled() bool {
	return o.Reason == ReasonNone && o.State != StateNone
}

// Duration returns how long the fetch took, or zero if it has not settled.
func (o *Outcome) Duration() time.Duration {
	if o.Started.IsZero() || o.Finished.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}

// Validate returns an error if the outcome contains invalid fields.
func (o *Outcome) Validate() error {
	if o.SessionID == "" {
		return Errorf(EINVALID, "outcome session ID required")
	}
	if o.URL == "" {
		return Errorf(EINVALID, "outcome URL required")
	}
	return nil
}

// ProgressFunc is called on every outcome transition: when a URL is
// dropped, admitted, dispatched and settled.
type ProgressFunc func(Outcome)

// OutcomeService persists outcome records. It is a ledger of attempts;
// response bodies are never stored.
type OutcomeService interface {
	// CreateOutcome stores a settled or dropped outcome.
	CreateOutcome(ctx context.Context, outcome *Outcome) error

	// FindOutcomes retrieves outcomes matching the filter, newest first.
	FindOutcomes(ctx context.Context, filter OutcomeFilter) ([]*Outcome, error)
}

// OutcomeFilter represents a filter for FindOutcomes.
type OutcomeFilter struct {
	SessionID *string     `json:"sessionId"`
	URL       *string     `json:"url"`
	State     *FetchState `json:"state"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
