package browser

import (
	"errors"
	"time"
)

// Page is one browser tab as seen by the workflows.
// Timeouts bound every wait; a zero timeout uses the context default.
type Page interface {
	// Goto navigates and waits until the network has been idle for a short window
	Goto(url string, timeout time.Duration) error

	// Fill replaces the value of an input
	Fill(selector, value string) error

	// Click clicks the first element matching selector
	Click(selector string) error

	// WaitVisible waits for selector to become visible
	WaitVisible(selector string, timeout time.Duration) error

	// Count returns how many elements match selector without waiting
	Count(selector string) (int, error)

	// Text returns the rendered text of the first match, or "" when nothing matches
	Text(selector string) (string, error)

	// SelectOption selects the option with the given value in a <select>
	SelectOption(selector, value string) error

	// InputValue returns the current value of an input or <select>
	InputValue(selector string) (string, error)

	// SetCookie installs a cookie in the tab's browsing context
	SetCookie(c Cookie) error

	// Cookie returns the value of the named cookie for the current page
	Cookie(name string) (string, bool, error)

	// WatchNewPages starts collecting tabs opened in this tab's context.
	// The returned stop function must be called once the caller is done waiting.
	WatchNewPages() (<-chan Page, func())

	// WaitDocumentComplete waits for document.readyState to become "complete"
	WaitDocumentComplete(timeout time.Duration) error

	// Screenshot captures the full page as PNG
	Screenshot() ([]byte, error)

	// PDF prints the page
	PDF(opts PDFOptions) ([]byte, error)

	// Content returns the serialized DOM
	Content() (string, error)

	// URL returns the current URL
	URL() string

	// Close closes the tab
	Close() error
}

// Context is one isolated browsing environment owned by the pool.
type Context interface {
	// Page returns the primary tab
	Page() Page

	// Reset clears cookies, closes every tab and opens a fresh primary tab
	Reset() error

	// Close releases the environment
	Close() error
}

// Factory creates execution contexts and owns the process behind them.
type Factory interface {
	NewContext() (Context, error)
	Close() error
}

// Cookie is a cookie to install into a browsing context.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	HTTPOnly bool
	Secure   bool
	SameSite string // "Strict", "Lax" or "None"
}

// PDFOptions configures page printing.
type PDFOptions struct {
	// Format is a paper format such as "A4"
	Format string

	// Margin is applied to all four sides, e.g. "20px"
	Margin string

	// PrintBackground includes background graphics
	PrintBackground bool

	Landscape bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures the Chromium process and its contexts.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size of every context
	Viewport *Viewport

	// Args are extra Chromium command-line flags
	Args []string

	// DefaultTimeout bounds operations that are not given an explicit timeout
	DefaultTimeout time.Duration

	// Install downloads the Playwright driver and Chromium before launching
	Install bool
}

// Default values for various operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1366
	DefaultViewportHeight = 768
	DefaultPoolSize       = 3
)

var (
	// ErrPoolClosed is returned by Submit once Close has been called
	ErrPoolClosed = errors.New("browser pool is closed")

	// ErrTimeout marks a bounded wait that expired
	ErrTimeout = errors.New("browser operation timed out")

	// ErrShutdownForced is returned by Close when in-flight work outlived the grace period
	ErrShutdownForced = errors.New("browser pool shutdown grace period exceeded")
)
