package rod

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/fwojciec/prefetch"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Default viewport used for observation.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800
)

const bindingName = "__prefetchVisibility"

const collectJS = `(selector) => {
	const els = Array.from(document.querySelectorAll(selector));
	window.__prefetchLinks = els;
	return JSON.stringify(els.map((el) => ({
		href: el.href || el.getAttribute('href') || '',
		text: (el.textContent || '').trim(),
		attrs: Object.fromEntries(Array.from(el.attributes, (a) => [a.name, a.value])),
	})));
}`

const observeJS = `(binding, threshold) => {
	const els = window.__prefetchLinks;
	const io = new IntersectionObserver((entries) => {
		window[binding](JSON.stringify(entries.map((e) => ({
			i: els.indexOf(e.target),
			in: e.isIntersecting,
			r: e.intersectionRatio,
		}))));
	}, {threshold: Array.from(new Set([0, threshold, 1]))});
	window.__prefetchObserver = io;
	els.forEach((el) => io.observe(el));
}`

const unobserveJS = `(i) => {
	const el = window.__prefetchLinks[i];
	if (el) window.__prefetchObserver.unobserve(el);
}`

const scrollJS = `(dy) => {
	window.scrollBy(0, dy);
	return window.scrollY + window.innerHeight >= document.documentElement.scrollHeight;
}`

// Observer loads pages in Chrome and reports how their links intersect
// the viewport.
type Observer struct {
	manager *BrowserManager
	width   int
	height  int
	logger  *slog.Logger
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithViewport sets the emulated viewport size.
func WithViewport(width, height int) ObserverOption {
	return func(o *Observer) {
		o.width, o.height = width, height
	}
}

// WithLogger sets the logger for binding payload problems.
func WithLogger(logger *slog.Logger) ObserverOption {
	return func(o *Observer) {
		o.logger = logger
	}
}

// NewObserver creates an Observer using tabs from bm.
func NewObserver(bm *BrowserManager, opts ...ObserverOption) *Observer {
	o := &Observer{
		manager: bm,
		width:   DefaultViewportWidth,
		height:  DefaultViewportHeight,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observation is a loaded page whose links are being watched.
type Observation struct {
	page    *rod.Page
	cancel  context.CancelFunc
	release func()
	logger  *slog.Logger

	cands []*prefetch.Candidate
	byIdx map[int]*prefetch.Candidate
	idxOf map[*prefetch.Candidate]int

	events    chan []prefetch.VisibilityEvent
	unobserve chan int
	closeOnce sync.Once
}

type linkInfo struct {
	Href  string            `json:"href"`
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
}

type intersection struct {
	Index        int     `json:"i"`
	Intersecting bool    `json:"in"`
	Ratio        float64 `json:"r"`
}

// Open loads pageURL, collects the elements matching selector as
// candidates and starts an IntersectionObserver reporting crossings of
// threshold. Events are delivered through Run. Close must be called when
// the observation is no longer needed.
func (o *Observer) Open(ctx context.Context, pageURL, selector string, threshold float64) (*Observation, error) {
	if selector == "" {
		selector = prefetch.DefaultSelector
	}

	ctx, cancel := context.WithCancel(ctx)
	page, release, err := o.manager.Page(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	ob := &Observation{
		page:    page,
		cancel:  cancel,
		release: release,
		logger:  o.logger,
		byIdx:   make(map[int]*prefetch.Candidate),
		idxOf:   make(map[*prefetch.Candidate]int),
		events:  make(chan []prefetch.VisibilityEvent, 64),
	}

	if err := ob.load(ctx, pageURL, selector, threshold, o.width, o.height); err != nil {
		ob.Close()
		return nil, err
	}
	return ob, nil
}

func (ob *Observation) load(ctx context.Context, pageURL, selector string, threshold float64, width, height int) error {
	err := ob.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("setting viewport: %w", err)
	}
	if err := ob.page.Navigate(pageURL); err != nil {
		return fmt.Errorf("navigating to %s: %w", pageURL, err)
	}
	if err := ob.page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s: %w", pageURL, err)
	}

	res, err := ob.page.Eval(collectJS, selector)
	if err != nil {
		return fmt.Errorf("collecting links: %w", err)
	}
	var links []linkInfo
	if err := json.Unmarshal([]byte(res.Value.Str()), &links); err != nil {
		return fmt.Errorf("decoding links: %w", err)
	}
	for i, l := range links {
		if !isHTTP(l.Href) {
			continue
		}
		c := &prefetch.Candidate{URL: l.Href, Element: &linkElement{text: l.Text, attrs: l.Attrs}}
		ob.cands = append(ob.cands, c)
		ob.byIdx[i] = c
		ob.idxOf[c] = i
	}
	ob.unobserve = make(chan int, len(links))

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(ob.page); err != nil {
		return fmt.Errorf("adding binding: %w", err)
	}
	go ob.page.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		ob.dispatch(ctx, e.Payload)
	})()

	if _, err := ob.page.Eval(observeJS, bindingName, threshold); err != nil {
		return fmt.Errorf("installing intersection observer: %w", err)
	}
	return nil
}

func (ob *Observation) dispatch(ctx context.Context, payload string) {
	var entries []intersection
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		ob.logger.Warn("observer: parse binding payload", "err", err)
		return
	}

	now := time.Now()
	evs := make([]prefetch.VisibilityEvent, 0, len(entries))
	for _, e := range entries {
		c, ok := ob.byIdx[e.Index]
		if !ok {
			continue
		}
		evs = append(evs, prefetch.VisibilityEvent{
			Candidate:    c,
			Intersecting: e.Intersecting,
			Ratio:        e.Ratio,
			Time:         now,
		})
	}
	if len(evs) == 0 {
		return
	}

	select {
	case ob.events <- evs:
	case <-ctx.Done():
	}
}

// Candidates returns the observed candidates in document order.
func (ob *Observation) Candidates() []*prefetch.Candidate {
	return ob.cands
}

// Run forwards visibility batches to notify until ctx is done or notify
// returns false, and stops watching released candidates.
func (ob *Observation) Run(ctx context.Context, notify func([]prefetch.VisibilityEvent) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evs := <-ob.events:
			if !notify(evs) {
				return nil
			}
		case i := <-ob.unobserve:
			if _, err := ob.page.Eval(unobserveJS, i); err != nil {
				return fmt.Errorf("unobserving link %d: %w", i, err)
			}
		}
	}
}

// Release stops watching c. It never blocks, so it can be used as the
// session's release hook.
func (ob *Observation) Release(c *prefetch.Candidate) {
	i, ok := ob.idxOf[c]
	if !ok {
		return
	}
	select {
	case ob.unobserve <- i:
	default:
	}
}

// Scroll scrolls the page down by dy pixels and reports whether the
// bottom of the document is in view.
func (ob *Observation) Scroll(dy int) (bool, error) {
	res, err := ob.page.Eval(scrollJS, dy)
	if err != nil {
		return false, fmt.Errorf("scrolling: %w", err)
	}
	return res.Value.Bool(), nil
}

// Close stops observing and closes the tab.
func (ob *Observation) Close() {
	ob.closeOnce.Do(func() {
		ob.cancel()
		ob.release()
	})
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// linkElement is a snapshot of a link element taken when the page loaded.
type linkElement struct {
	text  string
	attrs map[string]string
}

func (e *linkElement) Text() string {
	return e.text
}

func (e *linkElement) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}
