package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readyRecorder collects candidates handed over by a Coordinator.
type readyRecorder struct {
	mu       sync.Mutex
	ready    []*prefetch.Candidate
	released []*prefetch.Candidate
}

func (r *readyRecorder) onReady(c *prefetch.Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, c)
}

func (r *readyRecorder) onRelease(c *prefetch.Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, c)
}

func (r *readyRecorder) readyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ready)
}

func (r *readyRecorder) releasedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.released)
}

func startCoordinator(t *testing.T, threshold float64, delay time.Duration) (*schedule.Coordinator, *readyRecorder) {
	t.Helper()

	rec := &readyRecorder{}
	c := schedule.NewCoordinator(threshold, delay)
	c.Ready = rec.onReady
	c.Release = rec.onRelease

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, rec
}

func visible(c *prefetch.Candidate, ratio float64) prefetch.VisibilityEvent {
	return prefetch.VisibilityEvent{Candidate: c, Intersecting: true, Ratio: ratio, Time: time.Now()}
}

func hidden(c *prefetch.Candidate) prefetch.VisibilityEvent {
	return prefetch.VisibilityEvent{Candidate: c, Intersecting: false, Time: time.Now()}
}

func TestCoordinator(t *testing.T) {
	t.Parallel()

	t.Run("zero delay hands over on first qualifying event", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 0)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		require.True(t, c.Observe([]*prefetch.Candidate{cand}))
		assert.Equal(t, 1, c.Observing())

		require.True(t, c.Notify(visible(cand, 0.1)))

		assert.Equal(t, 1, rec.readyCount())
		assert.Equal(t, 1, rec.releasedCount())
		assert.Equal(t, 0, c.Observing())
	})

	t.Run("ready is terminal", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 0)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		c.Notify(visible(cand, 1), hidden(cand), visible(cand, 1))

		assert.Equal(t, 1, rec.readyCount())
	})

	t.Run("ignores events for unobserved candidates", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 0)
		stranger := &prefetch.Candidate{URL: "https://example.com/1.html"}

		require.True(t, c.Notify(visible(stranger, 1)))

		assert.Equal(t, 0, rec.readyCount())
	})

	t.Run("below threshold does not qualify", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0.5, 0)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		c.Notify(visible(cand, 0.25))
		assert.Equal(t, 0, rec.readyCount())

		c.Notify(visible(cand, 0.5))
		assert.Equal(t, 1, rec.readyCount())
	})

	t.Run("intersecting flag is required", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 0)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		c.Notify(prefetch.VisibilityEvent{Candidate: cand, Intersecting: false, Ratio: 1})

		assert.Equal(t, 0, rec.readyCount())
	})

	t.Run("delay requires continuous visibility", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 50*time.Millisecond)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		c.Notify(visible(cand, 1))
		c.Notify(hidden(cand))

		assert.Never(t, func() bool { return rec.readyCount() > 0 }, 150*time.Millisecond, 10*time.Millisecond)
		assert.Equal(t, 1, c.Observing(), "a canceled candidate stays observed")
	})

	t.Run("delay elapses while visible", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 50*time.Millisecond)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		start := time.Now()
		c.Notify(visible(cand, 1))

		require.Eventually(t, func() bool { return rec.readyCount() == 1 }, time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("re-entry restarts the delay", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 100*time.Millisecond)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		c.Notify(visible(cand, 1))
		time.Sleep(60 * time.Millisecond)
		c.Notify(hidden(cand))
		reentered := time.Now()
		c.Notify(visible(cand, 1))

		// The first timer would have fired 40ms from here.
		assert.Never(t, func() bool { return rec.readyCount() > 0 }, 70*time.Millisecond, 5*time.Millisecond)
		require.Eventually(t, func() bool { return rec.readyCount() == 1 }, time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(reentered), 100*time.Millisecond)
	})

	t.Run("repeated qualifying events keep the running timer", func(t *testing.T) {
		t.Parallel()

		c, rec := startCoordinator(t, 0, 80*time.Millisecond)
		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})

		start := time.Now()
		c.Notify(visible(cand, 0.5))
		time.Sleep(40 * time.Millisecond)
		c.Notify(visible(cand, 0.9))

		require.Eventually(t, func() bool { return rec.readyCount() == 1 }, time.Second, 5*time.Millisecond)
		assert.Less(t, time.Since(start), 115*time.Millisecond)
	})

	t.Run("exhaustion releases every remaining candidate", func(t *testing.T) {
		t.Parallel()

		exhausted := false
		rec := &readyRecorder{}
		c := schedule.NewCoordinator(0, 0)
		c.Ready = func(cand *prefetch.Candidate) {
			rec.onReady(cand)
			exhausted = true
		}
		c.Release = rec.onRelease
		c.Exhausted = func() bool { return exhausted }

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = c.Run(ctx) }()

		a := &prefetch.Candidate{URL: "https://example.com/a"}
		b := &prefetch.Candidate{URL: "https://example.com/b"}
		d := &prefetch.Candidate{URL: "https://example.com/d"}
		c.Observe([]*prefetch.Candidate{a, b, d})

		c.Notify(visible(a, 1))
		c.Notify(visible(b, 1))

		assert.Equal(t, 1, rec.readyCount())
		assert.Equal(t, 3, rec.releasedCount())
		assert.Equal(t, 0, c.Observing())
	})

	t.Run("stopping cancels pending delays", func(t *testing.T) {
		t.Parallel()

		rec := &readyRecorder{}
		c := schedule.NewCoordinator(0, 30*time.Millisecond)
		c.Ready = rec.onReady
		c.Release = rec.onRelease

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = c.Run(ctx) }()

		cand := &prefetch.Candidate{URL: "https://example.com/1.html"}
		c.Observe([]*prefetch.Candidate{cand})
		c.Notify(visible(cand, 1))
		cancel()
		<-c.Done()

		assert.Never(t, func() bool { return rec.readyCount() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
		assert.Equal(t, 1, rec.releasedCount())
		assert.False(t, c.Notify(visible(cand, 1)), "a stopped coordinator rejects events")
	})
}
