// Package browser provides the headless-browser capability used by
// scrape-platform adapters: navigate to a URL, let the page render, and
// return the captured DOM. Requires Chrome/Chromium on the host; its absence
// is reported as a config-missing failure, not a hard error.
package browser

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rowan/parcelbase/internal/adapter"
)

// Capture is the rendered result of one navigation.
type Capture struct {
	URL  string
	HTML string
}

// Navigator is the automation capability consumed by scrape adapters.
// Implementations classify failures with adapter error kinds.
type Navigator interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) (*Capture, error)
}

// ChromeNavigator renders pages with a headless Chrome via chromedp.
type ChromeNavigator struct {
	// RenderWait is the extra settle time after body-ready for JS-heavy pages.
	RenderWait time.Duration
}

// NewChromeNavigator creates a navigator with the default render wait.
func NewChromeNavigator() *ChromeNavigator {
	return &ChromeNavigator{RenderWait: 2 * time.Second}
}

// Available reports whether a Chrome/Chromium executable can be found.
func Available() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// Navigate renders url and returns the captured DOM. The timeout covers the
// whole navigation; on expiry the failure is classified transient. A missing
// browser runtime is classified config-missing.
func (n *ChromeNavigator) Navigate(ctx context.Context, url string, timeout time.Duration) (*Capture, error) {
	if !Available() {
		return nil, adapter.ConfigMissing("browser automation runtime unavailable: no chrome executable on PATH")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(n.RenderWait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, classifyNavigation(err)
	}

	return &Capture{URL: url, HTML: html}, nil
}

// classifyNavigation maps chromedp failures onto the adapter taxonomy.
func classifyNavigation(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return adapter.Transient(err, "navigation timed out")
	}
	msg := err.Error()
	if strings.Contains(msg, "executable file not found") {
		return adapter.ConfigMissing("browser automation runtime unavailable: %v", err)
	}
	if strings.Contains(msg, "net::ERR_") || strings.Contains(msg, "connection refused") {
		return adapter.Transient(err, "navigation failed")
	}
	return adapter.Fatal(err, "browser navigation failed")
}
