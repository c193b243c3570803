package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/resultbot/pkg/browser"
)

// pollInterval is how often the no-record message is checked while
// waiting for the result tab.
const pollInterval = 200 * time.Millisecond

// extract selects the semester on the result page, triggers the result
// view and captures the result tab.
func (w *workflow) extract(ctx context.Context, page browser.Page, semester int) (*Bundle, error) {
	value, err := FormatSemester(semester)
	if err != nil {
		return nil, err
	}
	if err := w.selectSemester(page, value); err != nil {
		return nil, err
	}

	// Subscribe before clicking so a fast popup is not missed
	tabs, stop := page.WatchNewPages()
	defer stop()

	if err := page.Click(w.site.Selectors.ViewResult); err != nil {
		return nil, fmt.Errorf("failed to trigger result view: %w", err)
	}

	tab, published, err := w.awaitOutcome(ctx, page, tabs)
	if err != nil {
		return nil, err
	}
	if !published {
		w.logger.Infof("semester %d: no record found", semester)
		return &Bundle{Semester: semester, Text: NotPublishedText}, nil
	}

	defer func() {
		if err := tab.Close(); err != nil {
			w.logger.Debugf("failed to close result tab: %v", err)
		}
	}()
	return w.capture(ctx, tab, semester)
}

func (w *workflow) selectSemester(page browser.Page, value string) error {
	sel := w.site.Selectors.Semester

	n, err := page.Count(sel)
	if err != nil {
		return fmt.Errorf("failed to look up semester selector: %w", err)
	}
	if n == 0 {
		return ErrSemesterFieldMissing
	}

	if err := page.SelectOption(sel, value); err != nil {
		return fmt.Errorf("%w: %v", ErrSemesterNotSelected, err)
	}

	got, err := page.InputValue(sel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSemesterNotSelected, err)
	}
	if got != value {
		return fmt.Errorf("%w: want %q, selector holds %q", ErrSemesterNotSelected, value, got)
	}
	return nil
}

// awaitOutcome waits up to ResultWait for either a new tab or the
// no-record message. The message wins if both show up.
func (w *workflow) awaitOutcome(ctx context.Context, page browser.Page, tabs <-chan browser.Page) (browser.Page, bool, error) {
	deadline := time.NewTimer(w.site.ResultWait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if w.noRecord(page) {
			closePending(tabs)
			return nil, false, nil
		}

		select {
		case tab := <-tabs:
			if w.noRecord(page) {
				_ = tab.Close()
				return nil, false, nil
			}
			return tab, true, nil
		case <-ticker.C:
		case <-deadline.C:
			if w.noRecord(page) {
				closePending(tabs)
				return nil, false, nil
			}
			return nil, false, ErrResultTabNotOpened
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// closePending closes tabs that were already delivered but never used.
func closePending(tabs <-chan browser.Page) {
	for {
		select {
		case tab := <-tabs:
			_ = tab.Close()
		default:
			return
		}
	}
}

func (w *workflow) noRecord(page browser.Page) bool {
	if w.site.NoRecordText == "" {
		return false
	}
	msg, err := page.Text(w.site.Selectors.ResultMessage)
	if err != nil {
		w.logger.Debugf("could not read result message: %v", err)
		return false
	}
	return strings.Contains(msg, w.site.NoRecordText)
}

// capture renders the result tab into a bundle. A render wait that times
// out is tolerated; the page is usually usable by then.
func (w *workflow) capture(ctx context.Context, tab browser.Page, semester int) (*Bundle, error) {
	if err := tab.WaitDocumentComplete(w.site.RenderTimeout); err != nil {
		if !errors.Is(err, browser.ErrTimeout) {
			return nil, fmt.Errorf("result tab failed to load: %w", err)
		}
		w.logger.Warnf("semester %d: result tab still loading after %s, capturing anyway", semester, w.site.RenderTimeout)
	}

	if err := sleep(ctx, w.site.SettleDelay); err != nil {
		return nil, err
	}

	screenshot, err := tab.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	pdf, err := tab.PDF(browser.PDFOptions{
		Format:          "A4",
		Margin:          "20px",
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print result: %w", err)
	}

	text, err := w.resultText(tab)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Semester:   semester,
		Text:       text,
		Screenshot: screenshot,
		PDF:        pdf,
	}
	if pages, err := PageCount(pdf); err != nil {
		w.logger.Debugf("semester %d: could not inspect pdf: %v", semester, err)
	} else {
		bundle.PDFPages = pages
	}

	w.logger.Infof("semester %d: captured result (%d bytes png, %d bytes pdf, %d pages)",
		semester, len(screenshot), len(pdf), bundle.PDFPages)
	return bundle, nil
}

// resultText extracts text from the tab's DOM, falling back to the body's innerText.
func (w *workflow) resultText(tab browser.Page) (string, error) {
	html, err := tab.Content()
	if err == nil {
		if text, err := ExtractText(html); err == nil && text != "" {
			return text, nil
		}
	}

	text, err := tab.Text("body")
	if err != nil {
		return "", fmt.Errorf("failed to read result text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
