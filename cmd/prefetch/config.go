package main

import (
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML form of SessionFlags.
type fileConfig struct {
	Limit      int           `yaml:"limit"`
	Throttle   int           `yaml:"throttle"`
	Delay      time.Duration `yaml:"delay"`
	Threshold  float64       `yaml:"threshold"`
	Origins    []string      `yaml:"origins"`
	AllOrigins bool          `yaml:"all_origins"`
	Ignore     []string      `yaml:"ignore"`
	IgnoreGlob []string      `yaml:"ignore_glob"`
	IgnoreText []string      `yaml:"ignore_text"`
	Priority   bool          `yaml:"priority"`
	Transform  string        `yaml:"transform"`
	HostRate   float64       `yaml:"host_rate"`
	SaveData   bool          `yaml:"save_data"`
}

// loadFile reads a YAML session configuration file.
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, prefetch.Errorf(prefetch.EINVALID, "parsing %s: %v", path, err)
	}
	return &fc, nil
}

// merge fills unset flags from fc.
func (f *SessionFlags) merge(fc *fileConfig) {
	if f.Limit == 0 {
		f.Limit = fc.Limit
	}
	if f.Throttle == 0 {
		f.Throttle = fc.Throttle
	}
	if f.Delay == 0 {
		f.Delay = fc.Delay
	}
	if f.Threshold == 0 {
		f.Threshold = fc.Threshold
	}
	if len(f.Origin) == 0 {
		f.Origin = fc.Origins
	}
	f.AllOrigins = f.AllOrigins || fc.AllOrigins
	f.Ignore = append(f.Ignore, fc.Ignore...)
	f.IgnoreGlob = append(f.IgnoreGlob, fc.IgnoreGlob...)
	f.IgnoreText = append(f.IgnoreText, fc.IgnoreText...)
	f.Priority = f.Priority || fc.Priority
	if f.Transform == "" {
		f.Transform = fc.Transform
	}
	if f.HostRate == 0 {
		f.HostRate = fc.HostRate
	}
	f.SaveData = f.SaveData || fc.SaveData
}

// sessionConfig builds the session configuration for pages on host.
func (f *SessionFlags) sessionConfig(host string) (prefetch.Config, error) {
	if f.Config != "" {
		fc, err := loadFile(f.Config)
		if err != nil {
			return prefetch.Config{}, err
		}
		f.merge(fc)
	}

	cfg := prefetch.Config{
		Host:       host,
		Origins:    f.Origin,
		AllOrigins: f.AllOrigins,
		Limit:      f.Limit,
		Throttle:   f.Throttle,
		Priority:   f.Priority,
		Delay:      f.Delay,
		Threshold:  f.Threshold,
		HostRate:   f.HostRate,
	}

	for _, pattern := range f.Ignore {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return prefetch.Config{}, prefetch.Errorf(prefetch.EINVALID, "invalid ignore pattern %q: %v", pattern, err)
		}
		cfg.Ignores = append(cfg.Ignores, prefetch.IgnorePattern(re))
	}
	for _, pattern := range f.IgnoreGlob {
		g, err := glob.Compile(pattern)
		if err != nil {
			return prefetch.Config{}, prefetch.Errorf(prefetch.EINVALID, "invalid ignore glob %q: %v", pattern, err)
		}
		cfg.Ignores = append(cfg.Ignores, prefetch.IgnoreGlob(g))
	}
	for _, text := range f.IgnoreText {
		cfg.Ignores = append(cfg.Ignores, ignoreText(text))
	}

	if f.Transform != "" {
		cfg.UrlTransform = transform(f.Transform)
	}
	if f.SaveData {
		cfg.Gate = func() bool { return false }
	}

	return cfg, cfg.Validate()
}

// ignoreText skips links whose text contains text. URLs without an
// element, such as explicit prefetches, never match.
func ignoreText(text string) prefetch.IgnoreRule {
	needle := strings.ToLower(text)
	return prefetch.IgnoreElement(func(_ string, el prefetch.Element) bool {
		if el == nil {
			return false
		}
		return strings.Contains(strings.ToLower(el.Text()), needle)
	})
}

// transform returns a UrlTransform substituting the query-escaped URL
// for {url} in tmpl.
func transform(tmpl string) func(string) string {
	return func(u string) string {
		return strings.ReplaceAll(tmpl, "{url}", url.QueryEscape(u))
	}
}

// hostOf returns the hostname of rawURL.
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", prefetch.Errorf(prefetch.EINVALID, "invalid URL %q", rawURL)
	}
	return u.Hostname(), nil
}
