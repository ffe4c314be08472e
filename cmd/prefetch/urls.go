package main

import (
	"fmt"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/schedule"
)

// Run executes the urls command.
func (c *URLsCmd) Run(deps *Dependencies) error {
	return prefetchURLs(deps, &c.SessionFlags, c.URLs)
}

// Run executes the sitemap command.
func (c *SitemapCmd) Run(deps *Dependencies) error {
	urls, err := deps.Sitemaps.Discover(deps.Ctx, c.Site)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	if len(urls) == 0 {
		fmt.Fprintln(deps.Stdout, "No URLs found")
		return nil
	}
	fmt.Fprintf(deps.Stdout, "Found %d URLs\n", len(urls))

	return prefetchURLs(deps, &c.SessionFlags, urls)
}

// prefetchURLs schedules urls explicitly, bypassing visibility, and
// prints one outcome per URL in input order. The first URL's host is the
// default origin.
func prefetchURLs(deps *Dependencies, flags *SessionFlags, urls []string) error {
	host, err := hostOf(urls[0])
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	cfg, err := flags.sessionConfig(host)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	rec := newRecorder(deps, flags)
	s, err := schedule.NewSession(deps.Fetcher, cfg,
		schedule.WithLogger(deps.Logger),
		schedule.WithProgress(rec.progress),
		schedule.WithExpectedURLs(uint(len(urls))),
	)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", prefetch.ErrorMessage(err))
		return err
	}

	for _, o := range s.Prefetch(deps.Ctx, urls...) {
		printOutcome(deps.Stdout, o)
	}
	s.Wait()
	printSummary(deps.Stdout, s.Stats())

	return rec.writeMetrics(flags.Metrics)
}
