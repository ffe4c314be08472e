// Package metrics exposes session outcomes as Prometheus metrics using
// VictoriaMetrics/metrics.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/fwojciec/prefetch"
)

// Metric names written by Collector.
const (
	OutcomesTotal = "prefetch_outcomes_total"
	DroppedTotal  = "prefetch_dropped_total"
	InFlight      = "prefetch_in_flight"
	FetchDuration = "prefetch_fetch_duration_seconds"
)

// Collector counts outcome transitions. Record matches
// prefetch.ProgressFunc so it can be passed to a session directly.
type Collector struct {
	set      *vm.Set
	inFlight atomic.Int64
	duration *vm.Histogram
}

// NewCollector creates a Collector with its own metric set.
func NewCollector() *Collector {
	c := &Collector{set: vm.NewSet()}
	c.set.NewGauge(InFlight, func() float64 {
		return float64(c.inFlight.Load())
	})
	c.duration = c.set.NewHistogram(FetchDuration)
	return c
}

// Record updates the metrics for one outcome transition.
func (c *Collector) Record(o prefetch.Outcome) {
	if o.Reason != prefetch.ReasonNone {
		c.set.GetOrCreateCounter(fmt.Sprintf(`%s{reason=%q}`, DroppedTotal, string(o.Reason))).Inc()
		return
	}

	switch o.State {
	case prefetch.StateNone:
		return
	case prefetch.StateInFlight:
		c.inFlight.Add(1)
	case prefetch.StateCompleted, prefetch.StateFailed:
		c.inFlight.Add(-1)
		c.duration.Update(o.Duration().Seconds())
	}
	c.counter(o.State).Inc()
}

// Count returns how many outcomes reached state.
func (c *Collector) Count(state prefetch.FetchState) uint64 {
	return c.counter(state).Get()
}

// Dropped returns how many URLs were dropped for reason.
func (c *Collector) Dropped(reason prefetch.Reason) uint64 {
	return c.set.GetOrCreateCounter(fmt.Sprintf(`%s{reason=%q}`, DroppedTotal, string(reason))).Get()
}

// InFlightCount returns the number of fetches currently dispatched.
func (c *Collector) InFlightCount() int64 {
	return c.inFlight.Load()
}

// WritePrometheus writes all metrics in Prometheus text exposition format.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}

func (c *Collector) counter(state prefetch.FetchState) *vm.Counter {
	return c.set.GetOrCreateCounter(fmt.Sprintf(`%s{state=%q}`, OutcomesTotal, state.String()))
}
