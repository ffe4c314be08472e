package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/metrics"
	"github.com/fwojciec/prefetch/schedule"
)

// urlWidth bounds the URL column of printed outcomes.
const urlWidth = 60

// recorder fans session progress out to the outcome ledger and metrics,
// and keeps every final outcome in arrival order.
type recorder struct {
	deps    *Dependencies
	metrics *metrics.Collector

	mu    sync.Mutex
	final []prefetch.Outcome
}

func newRecorder(deps *Dependencies, flags *SessionFlags) *recorder {
	r := &recorder{deps: deps}
	if flags.Metrics != "" {
		r.metrics = metrics.NewCollector()
	}
	return r
}

// progress is the session's ProgressFunc.
func (r *recorder) progress(o prefetch.Outcome) {
	if r.metrics != nil {
		r.metrics.Record(o)
	}
	if !final(o) {
		return
	}

	r.mu.Lock()
	r.final = append(r.final, o)
	r.mu.Unlock()

	if r.deps.Outcomes != nil {
		// Failures are logged by the logging decorator.
		_ = r.deps.Outcomes.CreateOutcome(r.deps.Ctx, &o)
	}
}

// outcomes returns the final outcomes recorded so far.
func (r *recorder) outcomes() []prefetch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]prefetch.Outcome(nil), r.final...)
}

// writeMetrics writes the collected metrics to path, or stdout for "-".
func (r *recorder) writeMetrics(path string) error {
	if r.metrics == nil {
		return nil
	}
	if path == "-" {
		r.metrics.WritePrometheus(r.deps.Stdout)
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	r.metrics.WritePrometheus(f)
	return f.Close()
}

// final reports whether o is the last transition of its URL.
func final(o prefetch.Outcome) bool {
	return o.Reason != prefetch.ReasonNone || o.State.Settled()
}

// printOutcome writes one line describing o.
func printOutcome(w io.Writer, o prefetch.Outcome) {
	u := truncateURL(o.URL, urlWidth)
	switch {
	case o.Reason != prefetch.ReasonNone:
		fmt.Fprintf(w, "skip  %s (%s)\n", u, o.Reason)
	case o.State == prefetch.StateFailed:
		fmt.Fprintf(w, "fail  %s: %v\n", u, o.Err)
	case o.State == prefetch.StateCompleted:
		fmt.Fprintf(w, "ok    %s (%s)\n", u, o.Duration().Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "%-5s %s\n", o.State, u)
	}
}

// printSummary writes the session totals.
func printSummary(w io.Writer, st schedule.Stats) {
	skipped := 0
	for _, n := range st.Dropped {
		skipped += n
	}
	fmt.Fprintf(w, "Prefetched %d URLs (%d failed, %d skipped, peak %d in flight)\n",
		st.Completed, st.Failed, skipped, st.PeakInFlight)
}

// truncateURL shortens a URL for display by showing only the path and
// query. This keeps output readable when every URL shares one host.
func truncateURL(rawURL string, maxLen int) string {
	display := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		display = parsed.RequestURI()
	}

	if len(display) <= maxLen {
		return display
	}
	if maxLen < 4 {
		return display[:maxLen]
	}

	// Truncate from the left to show the unique suffix
	return "..." + display[len(display)-maxLen+3:]
}
