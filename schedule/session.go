package schedule

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/google/uuid"
)

// Session composes the scheduling components for one page lifetime.
// Deduplication and budget state are scoped to the session, so
// independent sessions never interfere.
type Session struct {
	id      string
	cfg     prefetch.Config
	fetcher prefetch.Fetcher

	policy   *Policy
	dedup    *Deduplicator
	budget   *Budget
	throttle *Throttle
	limiter  *HostLimiter
	coord    *Coordinator

	logger    *slog.Logger
	progress  prefetch.ProgressFunc
	onRelease func(*prefetch.Candidate)
	expected  uint

	mu         sync.Mutex
	started    bool
	stopped    atomic.Bool
	cancel     context.CancelFunc
	startTimer *time.Timer
	fetchCtx   context.Context

	completed atomic.Int64
	failed    atomic.Int64
	dropped   sync.Map // prefetch.Reason -> *atomic.Int64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger for scheduling decisions.
// Defaults to a logger that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithProgress registers a callback for outcome transitions.
// The callback may be invoked concurrently from several goroutines and
// must not call back into the session.
func WithProgress(fn prefetch.ProgressFunc) Option {
	return func(s *Session) {
		s.progress = fn
	}
}

// WithOnRelease registers a hook called when a candidate stops being
// observed, so an observation adapter can stop watching it.
func WithOnRelease(fn func(*prefetch.Candidate)) Option {
	return func(s *Session) {
		s.onRelease = fn
	}
}

// WithExpectedURLs sizes the deduplication filter.
func WithExpectedURLs(n uint) Option {
	return func(s *Session) {
		s.expected = n
	}
}

// NewSession validates cfg and creates a Session that issues fetches
// through fetcher. Invalid configuration fails here, before anything runs.
func NewSession(fetcher prefetch.Fetcher, cfg prefetch.Config, opts ...Option) (*Session, error) {
	if fetcher == nil {
		return nil, prefetch.Errorf(prefetch.EINVALID, "fetcher required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.New().String(),
		cfg:      cfg,
		fetcher:  fetcher,
		policy:   NewPolicy(&cfg),
		budget:   NewBudget(cfg.Limit),
		throttle: NewThrottle(cfg.Throttle),
		logger:   slog.New(slog.DiscardHandler),
		fetchCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dedup = NewDeduplicator(s.expected)
	if cfg.HostRate > 0 {
		s.limiter = NewHostLimiter(cfg.HostRate)
	}

	s.coord = NewCoordinator(cfg.Threshold, cfg.Delay)
	s.coord.Ready = s.ready
	s.coord.Release = s.onRelease
	s.coord.Exhausted = s.budget.Exhausted
	s.logger = s.logger.With("session", s.id)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start begins observing candidates. Observation starts immediately, after
// Config.Timeout, or whenever Config.TimeoutFn calls back. Visibility
// events are delivered with Notify. Fetches started by the session outlive
// ctx and Stop; they run to completion.
func (s *Session) Start(ctx context.Context, cands []*prefetch.Candidate) error {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return prefetch.Errorf(prefetch.ECONFLICT, "session stopped")
	}
	if s.started {
		s.mu.Unlock()
		return prefetch.Errorf(prefetch.ECONFLICT, "session already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	// Set before the loop starts; the loop goroutine only reads it.
	s.fetchCtx = context.WithoutCancel(ctx)

	go func() {
		if err := s.coord.Run(runCtx); err != nil && runCtx.Err() == nil {
			s.logger.Error("visibility loop stopped", "err", err)
		}
	}()

	begin := func() {
		if s.coord.Observe(cands) {
			s.logger.Debug("observing candidates", "count", len(cands))
		}
	}
	if s.cfg.TimeoutFn == nil && s.cfg.Timeout > 0 {
		s.startTimer = time.AfterFunc(s.cfg.Timeout, begin)
	}
	s.mu.Unlock()

	switch {
	case s.cfg.TimeoutFn != nil:
		s.cfg.TimeoutFn(begin)
	case s.cfg.Timeout == 0:
		begin()
	}
	return nil
}

// Notify delivers visibility events to the session. Events within one
// call are processed in order. Events for unknown or already scheduled
// candidates are ignored. It returns false before Start and once the
// session has stopped.
func (s *Session) Notify(events ...prefetch.VisibilityEvent) bool {
	if s.stopped.Load() {
		return false
	}
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return false
	}
	return s.coord.Notify(events...)
}

// NotifyBatch delivers events in order, as one unit.
func (s *Session) NotifyBatch(events []prefetch.VisibilityEvent) bool {
	return s.Notify(events...)
}

// Stop ceases observation. No further candidate is scheduled; fetches
// already admitted still run. Stop is safe to call multiple times and
// must not be called from a ProgressFunc.
func (s *Session) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.coord.Done()
	s.logger.Debug("session stopped", "admitted", s.budget.Used())
}

// Wait blocks until every admitted fetch has settled.
func (s *Session) Wait() {
	s.throttle.Wait()
}

// Prefetch schedules urls immediately, bypassing visibility. Each URL
// passes the same gate, policy, deduplication and budget checks as a
// visible candidate; a URL repeated within urls is fetched once.
// Prefetch waits until every admitted fetch settles or ctx is done and
// returns one outcome per input URL, in order. When ctx ends first the
// outcomes report the state at that moment; the fetches keep running.
func (s *Session) Prefetch(ctx context.Context, urls ...string) []prefetch.Outcome {
	outcomes := make([]prefetch.Outcome, len(urls))
	fetches := make([]*scheduledFetch, len(urls))
	fetchCtx := context.WithoutCancel(ctx)

	for i, u := range urls {
		if s.stopped.Load() {
			outcomes[i] = s.drop(prefetch.Outcome{SessionID: s.id, URL: u}, prefetch.ReasonStopped)
			continue
		}
		outcomes[i], fetches[i] = s.admit(fetchCtx, u, nil, false)
	}

	for i, sf := range fetches {
		if sf == nil {
			continue
		}
		select {
		case <-sf.done:
		case <-ctx.Done():
		}
		outcomes[i] = sf.snapshot()
	}
	return outcomes
}

// Prefetch runs a one-shot session for urls and returns their outcomes.
func Prefetch(ctx context.Context, fetcher prefetch.Fetcher, cfg prefetch.Config, urls []string, opts ...Option) ([]prefetch.Outcome, error) {
	s, err := NewSession(fetcher, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return s.Prefetch(ctx, urls...), nil
}

// ready is the coordinator's hand-off for a candidate that dwelt in the
// viewport long enough.
func (s *Session) ready(c *prefetch.Candidate) {
	s.admit(s.fetchCtx, c.URL, c.Element, c.Priority)
}

// admit runs a URL through the gates and, if it passes all of them,
// hands it to the throttle.
func (s *Session) admit(ctx context.Context, rawURL string, el prefetch.Element, priority bool) (prefetch.Outcome, *scheduledFetch) {
	out := prefetch.Outcome{SessionID: s.id, URL: rawURL}

	if !s.cfg.Allow() {
		return s.drop(out, prefetch.ReasonGated), nil
	}

	fetchURL := NormalizeURL(s.cfg.FetchURL(rawURL))
	out.FetchURL = fetchURL

	if !s.policy.Allowed(rawURL, el) {
		return s.drop(out, prefetch.ReasonFiltered), nil
	}
	if !s.dedup.Admit(fetchURL) {
		return s.drop(out, prefetch.ReasonDuplicate), nil
	}
	if !s.budget.TryReserve() {
		return s.drop(out, prefetch.ReasonOverBudget), nil
	}

	out.ID = uuid.New().String()
	out.State = prefetch.StatePending
	sf := &scheduledFetch{out: out}
	s.report(out)

	priority = priority || s.cfg.Priority
	sf.done = s.throttle.Schedule(func() error {
		return s.fetch(ctx, sf, priority)
	})
	return out, sf
}

func (s *Session) fetch(ctx context.Context, sf *scheduledFetch, priority bool) error {
	s.report(sf.dispatch(time.Now()))

	fetchURL := sf.fetchURL()
	err := s.waitHost(ctx, fetchURL)
	if err == nil {
		err = s.fetcher.Fetch(ctx, fetchURL, priority)
	}

	out := sf.settle(err, time.Now())
	if err != nil {
		s.failed.Add(1)
		s.logger.Debug("prefetch failed", "url", fetchURL, "duration", out.Duration(), "err", err)
	} else {
		s.completed.Add(1)
		s.logger.Debug("prefetch completed", "url", fetchURL, "duration", out.Duration())
	}
	s.report(out)
	return err
}

func (s *Session) waitHost(ctx context.Context, fetchURL string) error {
	if s.limiter == nil {
		return nil
	}
	u, err := url.Parse(fetchURL)
	if err != nil {
		return err
	}
	return s.limiter.Wait(ctx, u.Host)
}

func (s *Session) drop(out prefetch.Outcome, reason prefetch.Reason) prefetch.Outcome {
	out.Reason = reason
	v, _ := s.dropped.LoadOrStore(reason, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
	s.logger.Debug("prefetch skipped", "url", out.URL, "reason", string(reason))
	s.report(out)
	return out
}

func (s *Session) report(out prefetch.Outcome) {
	if s.progress != nil {
		s.progress(out)
	}
}

// Stats is a point-in-time summary of a session.
type Stats struct {
	Observing    int
	Admitted     int
	Queued       int
	InFlight     int
	PeakInFlight int
	Completed    int
	Failed       int
	Dropped      map[prefetch.Reason]int
}

// Stats returns a summary of the session so far.
func (s *Session) Stats() Stats {
	st := Stats{
		Observing:    s.coord.Observing(),
		Admitted:     s.budget.Used(),
		Queued:       s.throttle.Queued(),
		InFlight:     s.throttle.Active(),
		PeakInFlight: s.throttle.Peak(),
		Completed:    int(s.completed.Load()),
		Failed:       int(s.failed.Load()),
		Dropped:      make(map[prefetch.Reason]int),
	}
	s.dropped.Range(func(k, v any) bool {
		st.Dropped[k.(prefetch.Reason)] = int(v.(*atomic.Int64).Load())
		return true
	})
	return st
}

// scheduledFetch tracks one admitted URL through Pending, InFlight and
// Completed or Failed.
type scheduledFetch struct {
	mu   sync.Mutex
	out  prefetch.Outcome
	done <-chan error
}

func (f *scheduledFetch) fetchURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.FetchURL
}

func (f *scheduledFetch) dispatch(now time.Time) prefetch.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out.State = prefetch.StateInFlight
	f.out.Started = now
	return f.out
}

func (f *scheduledFetch) settle(err error, now time.Time) prefetch.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out.Finished = now
	if err != nil {
		f.out.State = prefetch.StateFailed
		f.out.Err = err
	} else {
		f.out.State = prefetch.StateCompleted
	}
	return f.out
}

func (f *scheduledFetch) snapshot() prefetch.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out
}
