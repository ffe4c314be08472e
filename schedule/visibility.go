package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fwojciec/prefetch"
)

// phase is a candidate's position in the observation lifecycle.
type phase int

const (
	phaseObserved phase = iota + 1
	phaseReady
	phaseReleased
)

type candidateState struct {
	phase phase
	timer *time.Timer
	gen   uint64 // bumped on every cancel; stale timer fires carry an older value
}

type timerFire struct {
	candidate *prefetch.Candidate
	gen       uint64
}

// envelope carries one inbound message to the loop. ack is closed once
// the loop has processed it.
type envelope struct {
	events  []prefetch.VisibilityEvent
	observe []*prefetch.Candidate
	ack     chan struct{}
}

// Coordinator turns raw visibility events into "ready to schedule"
// decisions. All state transitions happen on the goroutine running Run;
// callers push events with Notify and delay timers post back into the
// same loop, so no transition runs re-entrantly.
type Coordinator struct {
	threshold float64
	delay     time.Duration

	// Ready is called on the loop goroutine exactly once per candidate.
	Ready func(*prefetch.Candidate)

	// Release, if set, is called when a candidate stops being observed.
	Release func(*prefetch.Candidate)

	// Exhausted, if set, reports that nothing more can be scheduled. The
	// coordinator then stops observing every remaining candidate.
	Exhausted func() bool

	inbox chan envelope
	fired chan timerFire
	done  chan struct{}

	observing atomic.Int64

	// Owned by the loop goroutine.
	states map[*prefetch.Candidate]*candidateState
}

// NewCoordinator creates a Coordinator applying threshold and delay.
func NewCoordinator(threshold float64, delay time.Duration) *Coordinator {
	return &Coordinator{
		threshold: threshold,
		delay:     delay,
		inbox:     make(chan envelope),
		fired:     make(chan timerFire),
		done:      make(chan struct{}),
		states:    make(map[*prefetch.Candidate]*candidateState),
	}
}

// Run processes inbound messages until ctx is canceled. Pending delay
// timers are stopped and every candidate is released on return.
// Run must be called at most once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-c.inbox:
			if env.observe != nil {
				c.observe(env.observe)
			}
			c.checkExhausted()
			for _, ev := range env.events {
				c.handle(ev)
				c.checkExhausted()
			}
			close(env.ack)
		case f := <-c.fired:
			c.fire(f)
			c.checkExhausted()
		}
	}
}

// Observe starts observing candidates. Candidates already known to the
// coordinator are ignored. It returns false if the coordinator has stopped.
func (c *Coordinator) Observe(cands []*prefetch.Candidate) bool {
	if cands == nil {
		cands = []*prefetch.Candidate{}
	}
	return c.send(envelope{observe: cands})
}

// Notify delivers a batch of events, processed in order, and waits until
// the loop has handled them. It returns false if the coordinator has
// stopped.
func (c *Coordinator) Notify(events ...prefetch.VisibilityEvent) bool {
	return c.send(envelope{events: events})
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) send(env envelope) bool {
	env.ack = make(chan struct{})
	select {
	case c.inbox <- env:
	case <-c.done:
		return false
	}
	select {
	case <-env.ack:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) observe(cands []*prefetch.Candidate) {
	for _, cand := range cands {
		if cand == nil {
			continue
		}
		if _, ok := c.states[cand]; ok {
			continue
		}
		c.states[cand] = &candidateState{phase: phaseObserved}
		c.observing.Add(1)
	}
}

// qualifies reports whether an event counts as "visible enough".
func (c *Coordinator) qualifies(ev prefetch.VisibilityEvent) bool {
	return ev.Intersecting && ev.Ratio >= c.threshold
}

func (c *Coordinator) handle(ev prefetch.VisibilityEvent) {
	st, ok := c.states[ev.Candidate]
	if !ok || st.phase != phaseObserved {
		return
	}

	if !c.qualifies(ev) {
		c.cancel(st)
		return
	}

	// Already dwelling; a further qualifying event does not restart the clock.
	if st.timer != nil {
		return
	}

	if c.delay <= 0 {
		c.promote(ev.Candidate, st)
		return
	}

	gen := st.gen
	cand := ev.Candidate
	st.timer = time.AfterFunc(c.delay, func() {
		select {
		case c.fired <- timerFire{candidate: cand, gen: gen}:
		case <-c.done:
		}
	})
}

func (c *Coordinator) fire(f timerFire) {
	st, ok := c.states[f.candidate]
	if !ok || st.phase != phaseObserved || st.timer == nil || st.gen != f.gen {
		return
	}
	c.promote(f.candidate, st)
}

// cancel aborts a pending delay; re-entry restarts it from zero.
func (c *Coordinator) cancel(st *candidateState) {
	if st.timer == nil {
		return
	}
	st.timer.Stop()
	st.timer = nil
	st.gen++
}

func (c *Coordinator) promote(cand *prefetch.Candidate, st *candidateState) {
	c.cancel(st)
	st.phase = phaseReady
	c.observing.Add(-1)
	if c.Release != nil {
		c.Release(cand)
	}
	if c.Ready != nil {
		c.Ready(cand)
	}
}

func (c *Coordinator) checkExhausted() {
	if c.Exhausted == nil || !c.Exhausted() {
		return
	}
	c.releaseAll()
}

func (c *Coordinator) releaseAll() {
	for cand, st := range c.states {
		if st.phase != phaseObserved {
			continue
		}
		c.cancel(st)
		st.phase = phaseReleased
		c.observing.Add(-1)
		if c.Release != nil {
			c.Release(cand)
		}
	}
}

func (c *Coordinator) shutdown() {
	c.releaseAll()
	close(c.done)
}

// Observing returns the number of candidates still under observation.
func (c *Coordinator) Observing() int {
	return int(c.observing.Load())
}
