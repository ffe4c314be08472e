package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/schedule"
	"golang.org/x/sync/errgroup"
)

// pollInterval is how often a running session is checked for
// candidates still under observation.
const pollInterval = 20 * time.Millisecond

// scrollPause is the minimum time between scroll steps in browser mode.
const scrollPause = 500 * time.Millisecond

// Run executes the page command.
func (c *PageCmd) Run(deps *Dependencies) error {
	host, err := hostOf(c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	cfg, err := c.sessionConfig(host)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	rec := newRecorder(deps, &c.SessionFlags)
	var s *schedule.Session
	if c.Browser {
		s, err = c.runBrowser(deps, cfg, rec)
	} else {
		s, err = c.runStatic(deps, cfg, rec)
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	for _, o := range rec.outcomes() {
		printOutcome(deps.Stdout, o)
	}
	printSummary(deps.Stdout, s.Stats())

	return rec.writeMetrics(c.Metrics)
}

// runStatic resolves the page's links from its HTML and treats every
// candidate as fully visible.
func (c *PageCmd) runStatic(deps *Dependencies, cfg prefetch.Config, rec *recorder) (*schedule.Session, error) {
	html, err := deps.Documents.Document(deps.Ctx, c.URL)
	if err != nil {
		return nil, err
	}

	cands, err := deps.Resolver.Resolve(html, c.URL, c.Selector)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(deps.Stdout, "Found %d links\n", len(cands))

	s, err := c.newSession(deps, cfg, rec, uint(len(cands)))
	if err != nil {
		return nil, err
	}
	if err := s.Start(deps.Ctx, cands); err != nil {
		return nil, err
	}

	now := time.Now()
	events := make([]prefetch.VisibilityEvent, len(cands))
	for i, cand := range cands {
		events[i] = prefetch.VisibilityEvent{Candidate: cand, Intersecting: true, Ratio: 1, Time: now}
	}
	s.NotifyBatch(events)

	waitObserved(deps.Ctx, s)
	s.Stop()
	s.Wait()
	return s, nil
}

// runBrowser observes the page in Chrome, scrolling it down step by step
// until every link has been handled, the bottom is reached and nothing
// is left to wait for, or the watch period ends.
func (c *PageCmd) runBrowser(deps *Dependencies, cfg prefetch.Config, rec *recorder) (*schedule.Session, error) {
	ob, err := deps.Observer.Open(deps.Ctx, c.URL, c.Selector, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	defer ob.Close()

	cands := ob.Candidates()
	fmt.Fprintf(deps.Stdout, "Found %d links\n", len(cands))

	s, err := c.newSession(deps, cfg, rec, uint(len(cands)), schedule.WithOnRelease(ob.Release))
	if err != nil {
		return nil, err
	}
	if err := s.Start(deps.Ctx, cands); err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithTimeout(deps.Ctx, c.Watch)
	defer cancel()

	g, gctx := errgroup.WithContext(watchCtx)
	g.Go(func() error {
		return ob.Run(gctx, s.NotifyBatch)
	})
	g.Go(func() error {
		defer cancel()
		pause := max(scrollPause, cfg.Delay+pollInterval)
		bottom := c.Scroll <= 0
		for !bottom {
			if !sleep(gctx, pause) {
				break
			}
			if s.Stats().Observing == 0 {
				break
			}
			var err error
			if bottom, err = ob.Scroll(c.Scroll); err != nil {
				deps.Logger.Warn("scrolling stopped", "err", err)
				break
			}
		}
		waitObserved(gctx, s)
		s.Stop()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		deps.Logger.Warn("observation stopped", "err", err)
	}

	s.Stop()
	s.Wait()
	return s, nil
}

func (c *PageCmd) newSession(deps *Dependencies, cfg prefetch.Config, rec *recorder, expected uint, opts ...schedule.Option) (*schedule.Session, error) {
	opts = append([]schedule.Option{
		schedule.WithLogger(deps.Logger),
		schedule.WithProgress(rec.progress),
		schedule.WithExpectedURLs(expected),
	}, opts...)
	return schedule.NewSession(deps.Fetcher, cfg, opts...)
}

// waitObserved blocks until no candidate is under observation or ctx is
// done.
func waitObserved(ctx context.Context, s *schedule.Session) {
	for s.Stats().Observing > 0 {
		if !sleep(ctx, pollInterval) {
			return
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
