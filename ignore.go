package prefetch

import (
	"regexp"

	"github.com/gobwas/glob"
)

// IgnoreKind identifies the shape of an IgnoreRule.
type IgnoreKind int

// Ignore rule kinds.
const (
	IgnoreKindPattern IgnoreKind = iota + 1
	IgnoreKindURL
	IgnoreKindElement
)

// Pattern is a compiled pattern tested against a URL string.
// Both *regexp.Regexp (through MatchString) and glob.Glob fit it via
// IgnorePattern and IgnoreGlob.
type Pattern interface {
	Match(s string) bool
}

type regexpPattern struct{ re *regexp.Regexp }

func (p regexpPattern) Match(s string) bool { return p.re.MatchString(s) }

// IgnoreRule excludes URLs from prefetching. Rules are built with
// IgnorePattern, IgnoreGlob, IgnoreURL or IgnoreElement.
type IgnoreRule struct {
	kind    IgnoreKind
	source  string
	pattern Pattern
	url     func(url string) bool
	element func(url string, el Element) bool
}

// IgnorePattern returns a rule matching URLs against a regular expression.
func IgnorePattern(re *regexp.Regexp) IgnoreRule {
	r := IgnoreRule{kind: IgnoreKindPattern}
	if re != nil {
		r.pattern = regexpPattern{re: re}
		r.source = re.String()
	}
	return r
}

// IgnoreGlob returns a rule matching URLs against a glob pattern.
func IgnoreGlob(g glob.Glob) IgnoreRule {
	return IgnoreRule{kind: IgnoreKindPattern, pattern: g}
}

// IgnoreURL returns a rule backed by a predicate over the URL.
func IgnoreURL(fn func(url string) bool) IgnoreRule {
	return IgnoreRule{kind: IgnoreKindURL, url: fn}
}

// IgnoreElement returns a rule backed by a predicate over the URL and
// the candidate's source element. The element may be nil for URLs passed
// to Prefetch directly.
func IgnoreElement(fn func(url string, el Element) bool) IgnoreRule {
	return IgnoreRule{kind: IgnoreKindElement, element: fn}
}

// Kind returns the rule's shape.
func (r IgnoreRule) Kind() IgnoreKind {
	return r.kind
}

// String returns a short description of the rule for logs.
func (r IgnoreRule) String() string {
	switch r.kind {
	case IgnoreKindPattern:
		if r.source != "" {
			return "pattern(" + r.source + ")"
		}
		return "pattern"
	case IgnoreKindURL:
		return "url predicate"
	case IgnoreKindElement:
		return "element predicate"
	default:
		return "invalid"
	}
}

// Valid reports whether the rule was built by one of the constructors
// with a non-nil matcher.
func (r IgnoreRule) Valid() bool {
	switch r.kind {
	case IgnoreKindPattern:
		return r.pattern != nil
	case IgnoreKindURL:
		return r.url != nil
	case IgnoreKindElement:
		return r.element != nil
	default:
		return false
	}
}

// Match reports whether the rule excludes url. Invalid rules never match.
func (r IgnoreRule) Match(url string, el Element) bool {
	if !r.Valid() {
		return false
	}
	switch r.kind {
	case IgnoreKindPattern:
		return r.pattern.Match(url)
	case IgnoreKindURL:
		return r.url(url)
	default:
		return r.element(url, el)
	}
}
