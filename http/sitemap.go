package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/prefetch"
)

// maxSitemapDepth bounds how many sitemap indexes may be nested.
const maxSitemapDepth = 5

// Ensure SitemapService implements prefetch.URLSource.
var _ prefetch.URLSource = (*SitemapService)(nil)

// SitemapService discovers page URLs from a site's sitemaps so they can
// be prefetched explicitly.
type SitemapService struct {
	client *http.Client
}

// NewSitemapService creates a new SitemapService with the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewSitemapService(client *http.Client) *SitemapService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SitemapService{client: client}
}

// Discover returns the page URLs listed in the sitemaps of siteURL, in
// sitemap order and without repeats. Sitemaps are located through the
// Sitemap directives of robots.txt, falling back to /sitemap.xml.
// Returns an empty slice (not nil) if no sitemaps are found.
//
// When siteURL has a non-root path (e.g., https://example.com/docs/),
// only URLs under that path are returned.
func (s *SitemapService) Discover(ctx context.Context, siteURL string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	site, err := url.Parse(siteURL)
	if err != nil || site.Host == "" {
		return nil, prefetch.Errorf(prefetch.EINVALID, "invalid site URL %q", siteURL)
	}
	prefix := strings.TrimSuffix(site.Path, "/")

	root := &url.URL{Scheme: site.Scheme, Host: site.Host}
	locations, err := s.locate(ctx, root)
	if err != nil {
		return nil, err
	}

	w := &sitemapWalk{
		svc:      s,
		visited:  make(map[string]struct{}),
		seen:     make(map[string]struct{}),
		prefix:   prefix,
		accepted: []string{},
	}
	for _, loc := range locations {
		if err := w.visit(ctx, loc, 0); err != nil {
			return nil, err
		}
	}
	return w.accepted, nil
}

// locate lists sitemap locations from robots.txt or the conventional path.
func (s *SitemapService) locate(ctx context.Context, root *url.URL) ([]string, error) {
	robots := root.ResolveReference(&url.URL{Path: "/robots.txt"}).String()
	if locs, err := s.robotsSitemaps(ctx, robots); err == nil && len(locs) > 0 {
		return locs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fallback := root.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()
	ok, err := s.exists(ctx, fallback)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return []string{fallback}, nil
}

func (s *SitemapService) robotsSitemaps(ctx context.Context, robotsURL string) ([]string, error) {
	body, err := s.get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var locs []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if loc := strings.TrimSpace(value); loc != "" {
			locs = append(locs, loc)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading robots.txt: %w", err)
	}
	return locs, nil
}

// sitemapWalk carries the state of one Discover call across nested
// sitemap indexes.
type sitemapWalk struct {
	svc      *SitemapService
	visited  map[string]struct{}
	seen     map[string]struct{}
	prefix   string
	accepted []string
}

func (w *sitemapWalk) visit(ctx context.Context, loc string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := w.visited[loc]; ok {
		return nil
	}
	w.visited[loc] = struct{}{}
	if depth > maxSitemapDepth {
		return prefetch.Errorf(prefetch.EINVALID, "sitemap index nested too deeply at %s", loc)
	}

	body, err := w.svc.get(ctx, loc)
	if err != nil {
		return err
	}
	defer body.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(body); err != nil {
		return fmt.Errorf("parsing sitemap %s: %w", loc, err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("empty sitemap %s", loc)
	}

	if root.Tag == "sitemapindex" {
		for _, child := range locs(root, "sitemap") {
			if err := w.visit(ctx, child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, page := range locs(root, "url") {
		w.accept(page)
	}
	return nil
}

func (w *sitemapWalk) accept(page string) {
	if _, ok := w.seen[page]; ok {
		return
	}
	if w.prefix != "" && !underPath(page, w.prefix) {
		return
	}
	w.seen[page] = struct{}{}
	w.accepted = append(w.accepted, page)
}

// locs returns the trimmed <loc> text of every entry child of root.
func locs(root *etree.Element, entry string) []string {
	var out []string
	for _, el := range root.SelectElements(entry) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if v := strings.TrimSpace(loc.Text()); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// underPath reports whether rawURL's path is prefix or lies below it.
// /docs matches /docs and /docs/intro but not /documentation.
func underPath(rawURL, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Path == prefix || strings.HasPrefix(u.Path, prefix+"/")
}

func (s *SitemapService) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, target)
	}
	return resp.Body, nil
}

func (s *SitemapService) exists(ctx context.Context, target string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
