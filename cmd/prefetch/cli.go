package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/rod"
)

// DocumentFetcher retrieves the HTML of a page.
type DocumentFetcher interface {
	Document(ctx context.Context, url string) (string, error)
}

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx       context.Context
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
	Fetcher   prefetch.Fetcher
	Documents DocumentFetcher
	Resolver  prefetch.CandidateResolver
	Sitemaps  prefetch.URLSource
	Outcomes  prefetch.OutcomeService // nil when no ledger is configured
	Observer  *rod.Observer           // set only for page --browser
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Verbose bool          `short:"v" help:"Log every scheduling decision"`
	DB      string        `help:"Record outcomes in this SQLite database (default: $PREFETCH_DB)"`
	Timeout time.Duration `default:"10s" help:"Timeout per request"`

	Page    PageCmd    `cmd:"" help:"Prefetch the links of a page as they become visible"`
	URLs    URLsCmd    `cmd:"" name:"urls" help:"Prefetch the given URLs"`
	Sitemap SitemapCmd `cmd:"" help:"Prefetch the URLs listed in a site's sitemaps"`
	History HistoryCmd `cmd:"" help:"List recorded outcomes"`
}

// SessionFlags are the scheduling options shared by the prefetching
// commands. Values from --config apply where the flag is left unset.
type SessionFlags struct {
	Config     string        `help:"YAML file with session defaults" type:"existingfile"`
	Limit      int           `short:"l" help:"Maximum number of prefetches (0 = unbounded)"`
	Throttle   int           `short:"c" help:"Maximum concurrent prefetches (0 = unbounded)"`
	Delay      time.Duration `help:"How long a link must stay visible before it is prefetched"`
	Threshold  float64       `help:"Minimum visible fraction of a link, from 0 to 1"`
	Origin     []string      `help:"Allowed hostname (repeatable, defaults to the page's host)"`
	AllOrigins bool          `help:"Allow links to any origin"`
	Ignore     []string      `short:"i" help:"Skip URLs matching regex (repeatable)"`
	IgnoreGlob []string      `help:"Skip URLs matching glob (repeatable)"`
	IgnoreText []string      `help:"Skip links whose text contains this, case-insensitively (repeatable)"`
	Priority   bool          `help:"Request prefetches with high priority"`
	Transform  string        `help:"Fetch through this URL template; {url} is replaced with the escaped link"`
	HostRate   float64       `help:"Maximum requests per second per host (0 = unlimited)"`
	SaveData   bool          `help:"Behave as under data-saver mode: schedule nothing"`
	Metrics    string        `help:"Write Prometheus metrics to this file after the run (- for stdout)"`
}

// PageCmd is the "page" subcommand.
type PageCmd struct {
	URL       string        `arg:"" help:"Page whose links are prefetched"`
	Selector  string        `short:"s" default:"a[href]" help:"CSS selector for link candidates"`
	Browser   bool          `short:"b" help:"Load the page in Chrome and use real viewport visibility"`
	Prerender bool          `help:"With --browser, prerender prefetched pages in Chrome instead of fetching over HTTP"`
	Scroll    int           `default:"600" help:"With --browser, pixels to scroll per step (0 disables scrolling)"`
	Watch     time.Duration `default:"10s" help:"With --browser, how long to watch the page"`

	SessionFlags `embed:""`
}

// URLsCmd is the "urls" subcommand.
type URLsCmd struct {
	URLs []string `arg:"" name:"url" help:"URLs to prefetch"`

	SessionFlags `embed:""`
}

// SitemapCmd is the "sitemap" subcommand.
type SitemapCmd struct {
	Site string `arg:"" help:"Site whose sitemap URLs are prefetched"`

	SessionFlags `embed:""`
}

// HistoryCmd is the "history" subcommand.
type HistoryCmd struct {
	Session string `help:"Only show outcomes of this session"`
	URL     string `name:"url" help:"Only show outcomes for this URL"`
	State   string `help:"Only show outcomes in this state (pending, in_flight, completed, failed)"`
	Limit   int    `short:"n" default:"20" help:"Maximum number of outcomes to show"`
	Offset  int    `help:"Number of outcomes to skip"`
}
