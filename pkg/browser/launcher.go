package browser

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Launcher owns one Playwright driver and one Chromium process, and hands out
// isolated browser contexts on top of them. It implements Factory.
type Launcher struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    LaunchOptions
	closed  bool
}

// NewLauncher starts Playwright and launches Chromium.
func NewLauncher(opts LaunchOptions) (*Launcher, error) {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = DefaultTimeout
	}

	// Keep the driver quiet; its output would interleave with the bot's logs
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Launcher{
		pw:      pw,
		browser: browser,
		opts:    opts,
	}, nil
}

// NewContext creates an isolated browser context with one blank tab.
func (l *Launcher) NewContext() (Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, fmt.Errorf("launcher is closed")
	}

	bc, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.opts.Viewport.Width,
			Height: l.opts.Viewport.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	bc.SetDefaultTimeout(float64(l.opts.DefaultTimeout.Milliseconds()))

	ctx := &pwContext{bc: bc, hub: newPageHub(bc)}
	if err := ctx.openPrimary(); err != nil {
		_ = bc.Close()
		return nil, err
	}
	return ctx, nil
}

// Close closes the browser and stops the Playwright driver.
// Contexts still in use fail on their next operation.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if err := l.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := l.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

// pwContext is a Playwright browser context with its primary tab.
type pwContext struct {
	bc      playwright.BrowserContext
	hub     *pageHub
	primary *pwPage
}

func (c *pwContext) openPrimary() error {
	page, err := c.bc.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	c.primary = newPage(page, c.hub)
	return nil
}

// Page returns the primary tab.
func (c *pwContext) Page() Page {
	return c.primary
}

// Reset returns the context to a clean navigation state.
func (c *pwContext) Reset() error {
	if err := c.bc.ClearCookies(); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}

	// Close every tab, including result tabs a workflow failed to close
	for _, page := range c.bc.Pages() {
		if err := page.Close(); err != nil {
			return fmt.Errorf("failed to close tab: %w", err)
		}
	}

	return c.openPrimary()
}

// Close releases the context and all its tabs.
func (c *pwContext) Close() error {
	if err := c.bc.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
