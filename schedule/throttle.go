package schedule

import (
	"fmt"
	"sync"
)

// Throttle runs tasks with at most limit of them active at once.
// Tasks are dispatched in the order Schedule was called; completion order
// is unconstrained. A failing task only frees its own slot.
// It is safe for concurrent use.
type Throttle struct {
	mu     sync.Mutex
	idle   *sync.Cond // broadcast when nothing is queued or active
	limit  int        // zero means unbounded
	active int
	peak   int
	queue  []*job
}

type job struct {
	task func() error
	done chan error
}

// NewThrottle creates a Throttle allowing limit concurrent tasks.
// Zero is unbounded.
func NewThrottle(limit int) *Throttle {
	t := &Throttle{limit: limit}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Schedule queues task and returns a channel that receives the task's
// result once it has run. The channel is buffered; callers that do not
// care about the result may drop it.
func (t *Throttle) Schedule(task func() error) <-chan error {
	j := &job{task: task, done: make(chan error, 1)}

	t.mu.Lock()
	t.queue = append(t.queue, j)
	t.dispatchLocked()
	t.mu.Unlock()

	return j.done
}

// dispatchLocked starts queued jobs while capacity allows.
func (t *Throttle) dispatchLocked() {
	for len(t.queue) > 0 && (t.limit == 0 || t.active < t.limit) {
		j := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]

		t.active++
		if t.active > t.peak {
			t.peak = t.active
		}
		go t.run(j)
	}
}

func (t *Throttle) run(j *job) {
	var err error
	defer func() {
		t.mu.Lock()
		t.active--
		t.dispatchLocked()
		if t.active == 0 && len(t.queue) == 0 {
			t.idle.Broadcast()
		}
		t.mu.Unlock()
		j.done <- err
	}()
	err = runTask(j.task)
}

func runTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}

// Active returns the number of running tasks.
func (t *Throttle) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Queued returns the number of tasks waiting for a slot.
func (t *Throttle) Queued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Peak returns the highest number of tasks that were ever active at once.
func (t *Throttle) Peak() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Wait blocks until no task is queued or running. Tasks may be scheduled
// concurrently with Wait; Wait returns at the first moment the throttle
// is idle.
func (t *Throttle) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.active > 0 || len(t.queue) > 0 {
		t.idle.Wait()
	}
}
