// Package browser provides pooled browser execution contexts through Playwright.
//
// Every fetch the bot performs needs a real browser: the student portal has no
// API, renders results server-side and opens them in a new tab. Browsers are
// expensive, so this package bounds how many of them work at once.
//
// # Architecture
//
// The package is built around three core concepts:
//
//  1. Page: the narrow set of tab operations the portal workflows drive
//     (navigate, fill, click, wait, select, cookies, capture)
//  2. Context: one isolated browsing environment (cookies, storage, tabs)
//     with a primary Page
//  3. Pool: a fixed number of Context slots that work items are scheduled onto
//
// The Launcher implements Factory with one Chromium process shared by all
// contexts. Contexts do not share cookies, so concurrent users never see each
// other's portal session.
//
// # Context Hygiene
//
// A Context is reset after every successful work item: cookies are cleared,
// every tab is closed and a fresh blank tab becomes the primary Page. A work
// item that fails or panics gets its Context discarded instead; the slot is
// refilled lazily on the next acquisition. Either way the slot returns to the
// pool on every exit path.
//
// # Scheduling
//
// At most Size work items run at once. Callers beyond that block in arrival
// order until a slot frees up or their context is cancelled.
//
// # Shutdown
//
// Close stops admitting work, waits for in-flight items until the grace
// context expires, then closes every context and the browser process even if
// items are still running.
//
// # Example Usage
//
//	launcher, err := browser.NewLauncher(browser.LaunchOptions{Headless: true})
//	pool := browser.NewPool(launcher, 3)
//	defer pool.Close(ctx)
//
//	title, err := browser.Run(ctx, pool, func(ctx context.Context, bc browser.Context) (string, error) {
//	    if err := bc.Page().Goto("https://example.com", 10*time.Second); err != nil {
//	        return "", err
//	    }
//	    return bc.Page().Text("title")
//	})
package browser
