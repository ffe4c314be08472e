package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/prefetch"
)

// Run executes the history command.
func (c *HistoryCmd) Run(deps *Dependencies) error {
	if deps.Outcomes == nil {
		err := prefetch.Errorf(prefetch.EINVALID, "no outcome database configured; pass --db or set PREFETCH_DB")
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	filter := prefetch.OutcomeFilter{Limit: c.Limit, Offset: c.Offset}
	if c.Session != "" {
		filter.SessionID = &c.Session
	}
	if c.URL != "" {
		filter.URL = &c.URL
	}
	if c.State != "" {
		state, err := prefetch.ParseFetchState(c.State)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
			return err
		}
		filter.State = &state
	}

	outcomes, err := deps.Outcomes.FindOutcomes(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	if len(outcomes) == 0 {
		fmt.Fprintln(deps.Stdout, "No outcomes recorded.")
		return nil
	}

	for _, o := range outcomes {
		status := o.State.String()
		if o.Reason != prefetch.ReasonNone {
			status = string(o.Reason)
		}
		fmt.Fprintf(deps.Stdout, "%s  %-11s  %8s  %s\n",
			shortID(o.SessionID), status, o.Duration().Round(time.Millisecond), o.URL)
	}

	return nil
}

// shortID abbreviates a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
