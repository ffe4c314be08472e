package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fwojciec/prefetch"
	prefetchhttp "github.com/fwojciec/prefetch/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlset = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
%s
</urlset>`

func urls(paths ...string) string {
	var b strings.Builder
	for _, p := range paths {
		b.WriteString("  <url><loc>{{BASE}}" + p + "</loc></url>\n")
	}
	return strings.Replace(urlset, "%s", b.String(), 1)
}

func TestSitemapService_Discover(t *testing.T) {
	t.Parallel()

	t.Run("reads sitemaps listed in robots.txt", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/robots.txt":  "User-agent: *\nDisallow: /private/\nsitemap: {{BASE}}/sitemap.xml\n",
			"/sitemap.xml": urls("/docs/intro", "/docs/guide"),
		})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		got, err := svc.Discover(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs/intro", srv.URL + "/docs/guide"}, got)
	})

	t.Run("falls back to sitemap.xml", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": urls("/page1"),
		})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		got, err := svc.Discover(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/page1"}, got)
	})

	t.Run("follows sitemap indexes", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>{{BASE}}/sitemap-docs.xml</loc></sitemap>
  <sitemap><loc>{{BASE}}/sitemap-api.xml</loc></sitemap>
  <sitemap><loc>{{BASE}}/sitemap.xml</loc></sitemap>
</sitemapindex>`,
			"/sitemap-docs.xml": urls("/docs/intro"),
			"/sitemap-api.xml":  urls("/api/reference", "/docs/intro"),
		})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		got, err := svc.Discover(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs/intro", srv.URL + "/api/reference"}, got)
	})

	t.Run("keeps urls under the site path", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": urls("/docs", "/docs/intro", "/documentation", "/blog/post"),
		})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		got, err := svc.Discover(context.Background(), srv.URL+"/docs/")

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/docs", srv.URL + "/docs/intro"}, got)
	})

	t.Run("returns empty slice when no sitemap exists", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		got, err := svc.Discover(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("rejects invalid site url", func(t *testing.T) {
		t.Parallel()

		svc := prefetchhttp.NewSitemapService(nil)
		_, err := svc.Discover(context.Background(), "not a url")

		assert.Equal(t, prefetch.EINVALID, prefetch.ErrorCode(err))
	})

	t.Run("reports malformed xml", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": "<<<not xml",
		})

		svc := prefetchhttp.NewSitemapService(srv.Client())
		_, err := svc.Discover(context.Background(), srv.URL)

		require.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": urls("/page1"),
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		svc := prefetchhttp.NewSitemapService(srv.Client())
		_, err := svc.Discover(ctx, srv.URL)

		require.ErrorIs(t, err, context.Canceled)
	})
}

// newTestServer creates a test HTTP server with the given path->content mapping.
// Content strings may contain {{BASE}} which is replaced with the server URL.
func newTestServer(t *testing.T, content map[string]string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := content[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
		} else {
			w.Header().Set("Content-Type", "application/xml")
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{BASE}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)

	return srv
}
