package slog

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/prefetch"
)

// Ensure LoggingURLSource implements prefetch.URLSource.
var _ prefetch.URLSource = (*LoggingURLSource)(nil)

// LoggingURLSource wraps a URLSource with logging. Besides the URL count
// it reports how many discovered URLs are cross-origin relative to the
// source, since a session drops those unless it allows all origins.
type LoggingURLSource struct {
	next   prefetch.URLSource
	logger *slog.Logger
}

// NewLoggingURLSource creates a new LoggingURLSource.
func NewLoggingURLSource(next prefetch.URLSource, logger *slog.Logger) *LoggingURLSource {
	return &LoggingURLSource{next: next, logger: logger}
}

// Discover delegates to the wrapped source and logs the operation.
func (s *LoggingURLSource) Discover(ctx context.Context, sourceURL string) (urls []string, err error) {
	defer func(begin time.Time) {
		if err != nil {
			s.logger.Warn("url discovery failed",
				"url", sourceURL,
				"duration", time.Since(begin),
				"err", err,
			)
			return
		}
		hosts, crossOrigin := originStats(sourceURL, urls)
		s.logger.Info("url discovery",
			"url", sourceURL,
			"count", len(urls),
			"hosts", hosts,
			"cross_origin", crossOrigin,
			"duration", time.Since(begin),
		)
	}(time.Now())
	return s.next.Discover(ctx, sourceURL)
}

// originStats counts the distinct hosts among urls and how many of them
// are not on the source's host. Unparseable URLs count as cross-origin.
func originStats(sourceURL string, urls []string) (hosts, crossOrigin int) {
	var home string
	if u, err := url.Parse(sourceURL); err == nil {
		home = strings.ToLower(u.Hostname())
	}
	seen := make(map[string]struct{})
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			crossOrigin++
			continue
		}
		h := strings.ToLower(u.Hostname())
		seen[h] = struct{}{}
		if h != home {
			crossOrigin++
		}
	}
	return len(seen), crossOrigin
}
