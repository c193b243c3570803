package browser

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	innerTextScript   = `sel => { const el = document.querySelector(sel); return el ? el.innerText : null; }`
	readyStateScript  = `() => document.readyState === "complete"`
	newPageBufferSize = 4
)

// pwPage adapts a Playwright page to Page.
type pwPage struct {
	page playwright.Page
	hub  *pageHub
}

func newPage(page playwright.Page, hub *pageHub) *pwPage {
	return &pwPage{page: page, hub: hub}
}

// pageHub fans the context's single "page" event out to current watchers.
// One handler per context keeps listeners from piling up across requests.
type pageHub struct {
	mu   sync.Mutex
	subs map[int]chan Page
	next int
}

func newPageHub(bc playwright.BrowserContext) *pageHub {
	h := &pageHub{subs: make(map[int]chan Page)}
	bc.OnPage(func(created playwright.Page) {
		h.publish(newPage(created, h))
	})
	return h
}

func (h *pageHub) publish(pg Page) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- pg:
		default:
		}
	}
}

func (h *pageHub) subscribe() (<-chan Page, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Page, newPageBufferSize)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// wrapErr wraps err and marks Playwright timeouts with ErrTimeout.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %v", msg, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	ms := float64(d / time.Millisecond)
	return &ms
}

// Goto navigates the page and waits for network idleness.
func (p *pwPage) Goto(url string, timeout time.Duration) error {
	waitUntil := playwright.WaitUntilState("networkidle")
	opts := playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   millis(timeout),
	}

	if _, err := p.page.Goto(url, opts); err != nil {
		return wrapErr(err, "navigation to %s failed", url)
	}
	return nil
}

// Fill fills an input element with the specified value.
func (p *pwPage) Fill(selector, value string) error {
	if err := p.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	return nil
}

// Click clicks an element matching the selector.
func (p *pwPage) Click(selector string) error {
	if err := p.page.Click(selector); err != nil {
		return fmt.Errorf("click %s failed: %w", selector, err)
	}
	return nil
}

// WaitVisible waits for an element to become visible.
func (p *pwPage) WaitVisible(selector string, timeout time.Duration) error {
	state := playwright.WaitForSelectorState("visible")
	opts := playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: millis(timeout),
	}

	if _, err := p.page.WaitForSelector(selector, opts); err != nil {
		return wrapErr(err, "wait for %s failed", selector)
	}
	return nil
}

// Count returns the number of matching elements without waiting.
func (p *pwPage) Count(selector string) (int, error) {
	n, err := p.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("count %s failed: %w", selector, err)
	}
	return n, nil
}

// Text returns the innerText of the first matching element.
func (p *pwPage) Text(selector string) (string, error) {
	result, err := p.page.Evaluate(innerTextScript, selector)
	if err != nil {
		return "", fmt.Errorf("read text of %s failed: %w", selector, err)
	}
	if text, ok := result.(string); ok {
		return text, nil
	}
	return "", nil
}

// SelectOption selects a single option by value.
func (p *pwPage) SelectOption(selector, value string) error {
	values := []string{value}
	if _, err := p.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values}); err != nil {
		return fmt.Errorf("select %q in %s failed: %w", value, selector, err)
	}
	return nil
}

// InputValue returns the current value of a form control.
func (p *pwPage) InputValue(selector string) (string, error) {
	value, err := p.page.InputValue(selector)
	if err != nil {
		return "", fmt.Errorf("read value of %s failed: %w", selector, err)
	}
	return value, nil
}

// SetCookie adds a cookie to the page's browser context.
func (p *pwPage) SetCookie(c Cookie) error {
	cookie := playwright.OptionalCookie{
		Name:     c.Name,
		Value:    c.Value,
		HttpOnly: playwright.Bool(c.HTTPOnly),
		Secure:   playwright.Bool(c.Secure),
	}
	if c.Domain != "" {
		cookie.Domain = playwright.String(c.Domain)
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookie.Path = playwright.String(path)
	} else {
		cookie.URL = playwright.String(p.page.URL())
	}
	if c.SameSite != "" {
		sameSite := playwright.SameSiteAttribute(c.SameSite)
		cookie.SameSite = &sameSite
	}

	if err := p.page.Context().AddCookies([]playwright.OptionalCookie{cookie}); err != nil {
		return fmt.Errorf("set cookie %s failed: %w", c.Name, err)
	}
	return nil
}

// Cookie looks up a cookie visible to the current URL.
func (p *pwPage) Cookie(name string) (string, bool, error) {
	cookies, err := p.page.Context().Cookies(p.page.URL())
	if err != nil {
		return "", false, fmt.Errorf("read cookies failed: %w", err)
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

// WatchNewPages subscribes to tabs created in this page's context.
func (p *pwPage) WatchNewPages() (<-chan Page, func()) {
	return p.hub.subscribe()
}

// WaitDocumentComplete waits for the document to finish loading.
func (p *pwPage) WaitDocumentComplete(timeout time.Duration) error {
	opts := playwright.PageWaitForFunctionOptions{Timeout: millis(timeout)}
	if _, err := p.page.WaitForFunction(readyStateScript, nil, opts); err != nil {
		return wrapErr(err, "wait for document complete failed")
	}
	return nil
}

// Screenshot captures a full-page PNG.
func (p *pwPage) Screenshot() ([]byte, error) {
	png := playwright.ScreenshotType("png")
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     &png,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// PDF prints the page with uniform margins.
func (p *pwPage) PDF(opts PDFOptions) ([]byte, error) {
	format := opts.Format
	if format == "" {
		format = "A4"
	}
	margin := opts.Margin
	if margin == "" {
		margin = "20px"
	}

	data, err := p.page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String(format),
		PrintBackground: playwright.Bool(opts.PrintBackground),
		Landscape:       playwright.Bool(opts.Landscape),
		Scale:           playwright.Float(1),
		Margin: &playwright.Margin{
			Top:    playwright.String(margin),
			Right:  playwright.String(margin),
			Bottom: playwright.String(margin),
			Left:   playwright.String(margin),
		},
		PreferCSSPageSize: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("pdf failed: %w", err)
	}
	return data, nil
}

// Content returns the page HTML.
func (p *pwPage) Content() (string, error) {
	html, err := p.page.Content()
	if err != nil {
		return "", fmt.Errorf("read content failed: %w", err)
	}
	return html, nil
}

// URL returns the current page URL.
func (p *pwPage) URL() string {
	return p.page.URL()
}

// Close closes the tab.
func (p *pwPage) Close() error {
	return p.page.Close()
}
