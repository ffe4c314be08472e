package prefetch

import (
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultSelector selects link candidates when no selector is configured.
const DefaultSelector = "a[href]"

// Config is the per-session prefetch configuration.
// It is read-only once a session has started.
type Config struct {
	// Host is the current document's hostname. It is the default origin
	// allow-list when Origins is empty.
	Host string

	// Origins lists the hostnames links may point at.
	Origins []string

	// AllOrigins disables the origin check.
	AllOrigins bool

	// Ignores are additional exclusion rules, evaluated in order.
	Ignores []IgnoreRule

	// Limit caps the total number of fetch attempts. Zero means unbounded.
	Limit int

	// Throttle caps the number of fetches in flight. Zero means unbounded.
	Throttle int

	// Priority is passed to the transport as a priority hint.
	Priority bool

	// Delay is how long a candidate must stay in the viewport before it
	// is scheduled.
	Delay time.Duration

	// Threshold is the minimum intersection ratio, in [0, 1].
	Threshold float64

	// Timeout defers the start of observation. Zero starts immediately.
	Timeout time.Duration

	// TimeoutFn, when set, decides when observation begins by calling its
	// argument. It takes precedence over Timeout.
	TimeoutFn func(start func())

	// UrlTransform derives the fetched URL from a candidate URL.
	// Policy checks use the original URL.
	UrlTransform func(url string) string

	// Gate reports whether prefetching is currently acceptable, e.g.
	// false under data-saver mode or on a slow connection.
	Gate func() bool

	// HostRate limits requests per second per host. Zero disables it.
	HostRate float64
}

// Validate returns an error describing every invalid field.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Limit < 0 {
		errs = multierror.Append(errs, Errorf(EINVALID, "limit must not be negative, got %d", c.Limit))
	}
	if c.Throttle < 0 {
		errs = multierror.Append(errs, Errorf(EINVALID, "throttle must not be negative, got %d", c.Throttle))
	}
	if c.Delay < 0 {
		errs = multierror.Append(errs, Errorf(EINVALID, "delay must not be negative, got %s", c.Delay))
	}
	if c.Timeout < 0 {
		errs = multierror.Append(errs, Errorf(EINVALID, "timeout must not be negative, got %s", c.Timeout))
	}
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		errs = multierror.Append(errs, Errorf(EINVALID, "threshold must be within [0, 1], got %v", c.Threshold))
	}
	if math.IsNaN(c.HostRate) || c.HostRate < 0 {
		errs = multierror.Append(errs, Errorf(EINVALID, "host rate must not be negative, got %v", c.HostRate))
	}
	for i, r := range c.Ignores {
		if !r.Valid() {
			errs = multierror.Append(errs, Errorf(EINVALID, "ignore rule %d has no matcher", i))
		}
	}
	if !c.AllOrigins {
		for i, o := range c.Origins {
			if strings.TrimSpace(o) == "" {
				errs = multierror.Append(errs, Errorf(EINVALID, "origin %d is empty", i))
			}
		}
		if len(c.Origins) == 0 && strings.TrimSpace(c.Host) == "" {
			errs = multierror.Append(errs, Errorf(EINVALID, "host or origins required unless all origins are allowed"))
		}
	}

	return errs.ErrorOrNil()
}

// AllowedOrigins returns the effective origin allow-list. It returns nil
// when every origin is allowed.
func (c *Config) AllowedOrigins() []string {
	if c.AllOrigins {
		return nil
	}
	if len(c.Origins) > 0 {
		return c.Origins
	}
	return []string{c.Host}
}

// FetchURL applies UrlTransform to url.
func (c *Config) FetchURL(url string) string {
	if c.UrlTransform == nil {
		return url
	}
	return c.UrlTransform(url)
}

// Allow evaluates the connection gate. A nil gate always allows.
func (c *Config) Allow() bool {
	return c.Gate == nil || c.Gate()
}
