// Package browser is the rod-backed browser session the orchestrator drives.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Options configures the browser session
type Options struct {
	Width             int
	Height            int
	Headless          bool
	ProfileDir        string // Chrome/Chromium profile directory for authenticated sessions
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	// KeepOpen leaves the browser process running after Close so a human can take over
	KeepOpen bool
}

// Browser wraps the rod browser and its single page
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	opts    Options
	logger  *zap.Logger
}

// Launch starts Chromium and opens a blank page with the configured viewport
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Browser, error) {
	if opts.NavigationTimeout == 0 {
		opts.NavigationTimeout = 45 * time.Second
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := launcher.New().Context(ctx).Headless(opts.Headless)
	if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}
	if opts.KeepOpen {
		// leakless would kill Chromium together with this process
		l = l.Leakless(false)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return &Browser{browser: browser, page: page, opts: opts, logger: logger.Named("browser")}, nil
}

// Close cleans up browser resources. With KeepOpen the browser is left running.
func (b *Browser) Close() {
	if b.opts.KeepOpen {
		b.logger.Info("leaving browser open for manual review")
		return
	}
	if b.page != nil {
		b.page.Close()
	}
	if b.browser != nil {
		b.browser.Close()
	}
}

// Page returns the underlying rod page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Navigate loads url and waits for the page to settle
func (b *Browser) Navigate(ctx context.Context, url string) error {
	page := b.page.Context(ctx).Timeout(b.opts.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	b.WaitSettled(ctx)
	return nil
}

// WaitSettled waits for network idle and for interactive elements to render. Both waits
// are bounded; persistent connections (websockets, polling) never hang the caller.
func (b *Browser) WaitSettled(ctx context.Context) {
	b.page.Context(ctx).Timeout(b.opts.IdleTimeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	b.waitForInteractiveElements(ctx, b.opts.IdleTimeout)
}

// CurrentURL returns the URL of the page
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Evaluate runs a JS function expression and decodes its JSON result into out
func (b *Browser) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	res, err := b.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}

// SetFiles attaches files to the file input matched by selector
func (b *Browser) SetFiles(ctx context.Context, selector string, paths []string) error {
	el, err := b.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SetFiles(paths); err != nil {
		return fmt.Errorf("set files on %s: %w", selector, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG
func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := b.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

// HTML returns the serialized document
func (b *Browser) HTML(ctx context.Context) (string, error) {
	html, err := b.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

// Title returns document.title
func (b *Browser) Title(ctx context.Context) (string, error) {
	var title string
	err := b.Evaluate(ctx, `() => document.title`, &title)
	return title, err
}

// PageText returns the visible text of the document body
func (b *Browser) PageText(ctx context.Context) (string, error) {
	var text string
	err := b.Evaluate(ctx, `() => document.body ? document.body.innerText : ''`, &text)
	return text, err
}

// find resolves selector without rod's default retry-until-found behavior
func (b *Browser) find(ctx context.Context, selector string) (*rod.Element, error) {
	el, err := b.page.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s", selector)
	}
	return el, nil
}

// waitForInteractiveElements polls until interactive elements appear or timeout
func (b *Browser) waitForInteractiveElements(ctx context.Context, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		var count int
		err := b.Evaluate(ctx, `() => {
			const nodes = document.querySelectorAll('button, [role="button"], input:not([type="hidden"]), textarea, select, a[href]');
			let visible = 0;
			nodes.forEach(el => { if (el.offsetParent) visible++; });
			return visible;
		}`, &count)
		if err == nil && count > 0 {
			// Found elements, wait a tiny bit more for any final renders
			time.Sleep(300 * time.Millisecond)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(checkInterval):
		}
	}
}

// IsSPA checks for common client-side framework markers
func (b *Browser) IsSPA(ctx context.Context) bool {
	var spa bool
	_ = b.Evaluate(ctx, `() => {
		if (window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot]') || document.querySelector('#__next')) return true;
		if (window.__VUE__ || document.querySelector('[data-v-app]')) return true;
		if (window.ng || document.querySelector('[ng-version]') || document.querySelector('app-root')) return true;
		if (document.querySelector('[class*="svelte-"]')) return true;
		return false;
	}`, &spa)
	return spa
}
