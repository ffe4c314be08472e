package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/goquery"
	prefetchhttp "github.com/fwojciec/prefetch/http"
	"github.com/fwojciec/prefetch/rod"
	prefetchslog "github.com/fwojciec/prefetch/slog"
	"github.com/fwojciec/prefetch/sqlite"
	"github.com/lmittmann/tint"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := NewMain()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path for the outcome ledger. Empty disables recording
	// unless --db is given. Set before calling Run().
	DBPath string

	// SQLite database used by SQLite service implementations.
	DB *sqlite.DB

	// Services for end-to-end testing. Nil fields are wired to their
	// production implementations.
	Fetcher   prefetch.Fetcher
	Documents DocumentFetcher
	Resolver  prefetch.CandidateResolver
	Sitemaps  prefetch.URLSource
	Outcomes  prefetch.OutcomeService
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath: os.Getenv("PREFETCH_DB"),
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:    ctx,
		Stdout: stdout,
		Stderr: stderr,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("prefetch"),
		kong.Description("Prefetch the links of a page the way a browser would as they scroll into view"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'prefetch --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	deps.Logger = newLogger(stderr, cli.Verbose)

	if cli.DB != "" {
		m.DBPath = cli.DB
	}
	if m.Outcomes == nil && m.DBPath != "" {
		m.DB = sqlite.NewDB(m.DBPath)
		if err := m.DB.Open(); err != nil {
			fmt.Fprintln(stderr, "Hint: Set PREFETCH_DB or pass --db to use a different database path")
			return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
		}
		defer m.Close()
		m.Outcomes = sqlite.NewOutcomeService(m.DB)
	}
	if m.Outcomes != nil {
		deps.Outcomes = prefetchslog.NewLoggingOutcomeService(m.Outcomes, deps.Logger)
	}

	deps.Resolver = m.Resolver
	if deps.Resolver == nil {
		deps.Resolver = goquery.NewResolver()
	}

	httpFetcher := prefetchhttp.NewFetcher(prefetchhttp.WithTimeout(cli.Timeout))
	deps.Documents = m.Documents
	if deps.Documents == nil {
		deps.Documents = httpFetcher
	}

	sitemaps := m.Sitemaps
	if sitemaps == nil {
		sitemaps = prefetchhttp.NewSitemapService(nil)
	}
	deps.Sitemaps = prefetchslog.NewLoggingURLSource(sitemaps, deps.Logger)

	fetcher := m.Fetcher
	if fetcher == nil {
		fetcher = httpFetcher
	}

	if cmd == "page" && cli.Page.Browser {
		bm, err := rod.NewBrowserManager()
		if err != nil {
			fmt.Fprintln(stderr, "Hint: Chrome or Chromium must be installed")
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer bm.Close()

		deps.Observer = rod.NewObserver(bm, rod.WithLogger(deps.Logger))
		if m.Fetcher == nil && cli.Page.Prerender {
			fetcher = rod.NewFetcherWithManager(bm)
		}
	}

	deps.Fetcher = prefetchslog.NewLoggingFetcher(fetcher, deps.Logger)
	defer deps.Fetcher.Close()

	return kongCtx.Run(deps)
}

// newLogger returns a tint logger writing to w. Colors are only used on
// the process's own stderr.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    w != io.Writer(os.Stderr),
	}))
}
