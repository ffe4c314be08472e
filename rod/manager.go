package rod

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// DefaultMaxPages is the default number of pages opened before the
// browser is recycled.
const DefaultMaxPages = 75

// BrowserManager owns a headless Chrome and hands out tabs. Chrome's
// memory keeps growing under load even when tabs are closed, so the
// browser is replaced after maxPages tabs, once no tab is open.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	opened   int // tabs opened on the current browser
	open     int // tabs not yet closed
	maxPages int
	closed   bool
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithMaxPages sets how many tabs a browser serves before it is recycled.
// Defaults to DefaultMaxPages.
func WithMaxPages(n int) ManagerOption {
	return func(bm *BrowserManager) {
		bm.maxPages = n
	}
}

// NewBrowserManager launches a headless Chrome.
// Close must be called when the BrowserManager is no longer needed.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(bm)
	}

	browser, l, err := launch()
	if err != nil {
		return nil, err
	}
	bm.browser, bm.launcher = browser, l
	return bm, nil
}

// Page opens a blank tab bound to ctx. The returned release function
// closes the tab and must be called exactly once.
func (bm *BrowserManager) Page(ctx context.Context) (*rod.Page, func(), error) {
	bm.mu.Lock()
	if bm.closed {
		bm.mu.Unlock()
		return nil, nil, fmt.Errorf("browser manager closed")
	}
	if bm.opened >= bm.maxPages && bm.open == 0 {
		bm.recycleLocked()
	}
	browser := bm.browser
	bm.opened++
	bm.open++
	bm.mu.Unlock()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		bm.done()
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = page.Close()
			bm.done()
		})
	}
	return page.Context(ctx), release, nil
}

func (bm *BrowserManager) done() {
	bm.mu.Lock()
	bm.open--
	bm.mu.Unlock()
}

// Close shuts the browser down. Close is safe to call multiple times.
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil
	}
	bm.closed = true

	var err error
	if bm.browser != nil {
		err = bm.browser.Close()
		bm.browser = nil
	}
	if bm.launcher != nil {
		bm.launcher.Kill()
		bm.launcher = nil
	}
	return err
}

// recycleLocked swaps in a fresh browser. The old one is kept if the
// new launch fails. Must be called with mu held.
func (bm *BrowserManager) recycleLocked() {
	browser, l, err := launch()
	if err != nil {
		return
	}
	_ = bm.browser.Close()
	bm.launcher.Kill()
	bm.browser, bm.launcher = browser, l
	bm.opened = 0
}

// LauncherPID returns the process ID of the browser launcher.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.launcher == nil {
		return 0
	}
	return bm.launcher.PID()
}

// launch starts Chrome with flags that keep background tabs running at
// full speed; prefetch and observation tabs are never focused.
func launch() (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Leakless(true).
		Headless(true)

	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return browser, l, nil
}
