package prefetch_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/fwojciec/prefetch"
	"github.com/fwojciec/prefetch/mock"
	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
)

func TestIgnoreRule_Match(t *testing.T) {
	t.Parallel()

	t.Run("pattern matches url string", func(t *testing.T) {
		t.Parallel()

		r := prefetch.IgnorePattern(regexp.MustCompile(`2\.html`))
		assert.Equal(t, prefetch.IgnoreKindPattern, r.Kind())
		assert.True(t, r.Match("https://example.com/2.html", nil))
		assert.False(t, r.Match("https://example.com/1.html", nil))
	})

	t.Run("glob matches url string", func(t *testing.T) {
		t.Parallel()

		r := prefetch.IgnoreGlob(glob.MustCompile("https://*.example.com/**"))
		assert.True(t, r.Match("https://cdn.example.com/a/b.js", nil))
		assert.False(t, r.Match("https://example.org/a", nil))
	})

	t.Run("url predicate", func(t *testing.T) {
		t.Parallel()

		r := prefetch.IgnoreURL(func(u string) bool { return strings.Contains(u, "foobar") })
		assert.Equal(t, prefetch.IgnoreKindURL, r.Kind())
		assert.True(t, r.Match("https://foobar.com/3.html", nil))
		assert.False(t, r.Match("https://example.com/3.html", nil))
	})

	t.Run("element predicate sees element text", func(t *testing.T) {
		t.Parallel()

		r := prefetch.IgnoreElement(func(_ string, el prefetch.Element) bool {
			return el != nil && strings.Contains(el.Text(), "Spinner")
		})
		spinner := &mock.Element{TextFn: func() string { return "Spinner" }}
		other := &mock.Element{TextFn: func() string { return "Docs" }}

		assert.Equal(t, prefetch.IgnoreKindElement, r.Kind())
		assert.True(t, r.Match("https://example.com/x.gif", spinner))
		assert.False(t, r.Match("https://example.com/x.gif", other))
		assert.False(t, r.Match("https://example.com/x.gif", nil))
	})

	t.Run("zero rule is invalid and never matches", func(t *testing.T) {
		t.Parallel()

		var r prefetch.IgnoreRule
		assert.False(t, r.Valid())
		assert.False(t, r.Match("https://example.com", nil))
		assert.False(t, prefetch.IgnorePattern(nil).Valid())
		assert.False(t, prefetch.IgnoreURL(nil).Valid())
	})

	t.Run("describes itself", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "pattern(example)", prefetch.IgnorePattern(regexp.MustCompile("example")).String())
		assert.Equal(t, "url predicate", prefetch.IgnoreURL(func(string) bool { return false }).String())
	})
}
