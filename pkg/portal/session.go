package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/resultbot/pkg/browser"
	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/logging"
)

// workflow runs the portal steps on a page it does not own.
type workflow struct {
	site   config.SiteConfig
	logger *logging.Logger
}

func newWorkflow(site config.SiteConfig, logger *logging.Logger) *workflow {
	return &workflow{site: site, logger: logger}
}

// authenticate opens the home page and establishes a session on page.
// On the credential path it returns the new session token. On the token
// path it returns the replayed token once the result page is reached.
func (w *workflow) authenticate(ctx context.Context, page browser.Page, req FetchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if err := w.openHome(page); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if req.Token != "" {
		if err := w.resume(page, req.Token); err != nil {
			return "", err
		}
		return req.Token, nil
	}
	return w.login(page, *req.Credentials)
}

func (w *workflow) openHome(page browser.Page) error {
	if err := page.Goto(w.site.HomeURL(), w.site.NavigationTimeout); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return fmt.Errorf("failed to open home page: %w", err)
	}
	return nil
}

// login submits the login form and reads the session cookie.
func (w *workflow) login(page browser.Page, creds Credentials) (string, error) {
	sel := w.site.Selectors
	w.logger.Infof("logging in as %s", creds.Username)

	if err := page.Fill(sel.Username, creds.Username); err != nil {
		return "", fmt.Errorf("failed to fill username: %w", err)
	}
	if err := page.Fill(sel.Password, creds.Password); err != nil {
		return "", fmt.Errorf("failed to fill password: %w", err)
	}
	if err := page.Click(sel.Submit); err != nil {
		return "", fmt.Errorf("failed to submit login form: %w", err)
	}

	markerErr := page.WaitVisible(sel.LoginMarker, w.site.LoginTimeout)

	// The message element is authoritative even when the marker rendered
	if w.wrongCredentials(page) {
		return "", fmt.Errorf("%w: %s", ErrLoginFailed, w.site.WrongCredentialsText)
	}
	if markerErr != nil {
		return "", fmt.Errorf("%w: post-login marker not visible: %v", ErrLoginFailed, markerErr)
	}

	token, ok, err := page.Cookie(w.site.CookieName)
	if err != nil {
		return "", fmt.Errorf("failed to read session cookie: %w", err)
	}
	if !ok || token == "" {
		return "", fmt.Errorf("%w: no %s cookie after login", ErrLoginFailed, w.site.CookieName)
	}

	// Visiting the result page keeps the server-side session warm for the resume
	if err := page.Goto(w.site.ResultURL(), w.site.NavigationTimeout); err != nil {
		w.logger.Warnf("post-login navigation to result page failed: %v", err)
	}

	w.logger.Infof("login succeeded for %s, token %s", creds.Username, logging.Redact(token))
	return token, nil
}

func (w *workflow) wrongCredentials(page browser.Page) bool {
	if w.site.WrongCredentialsText == "" {
		return false
	}
	msg, err := page.Text(w.site.Selectors.LoginMessage)
	if err != nil {
		w.logger.Debugf("could not read login message: %v", err)
		return false
	}
	return strings.TrimSpace(msg) == w.site.WrongCredentialsText
}

// resume installs token as the session cookie and opens the result page.
// An expired session is redirected by the portal, so landing anywhere but
// the result page means the token was rejected.
func (w *workflow) resume(page browser.Page, token string) error {
	cookie := browser.Cookie{
		Name:     w.site.CookieName,
		Value:    token,
		Domain:   w.site.CookieDomain,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
	}
	if err := page.SetCookie(cookie); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInjectionFailed, err)
	}

	if err := page.Goto(w.site.ResultURL(), w.site.NavigationTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInjectionFailed, err)
	}

	if !samePath(page.URL(), w.site.ResultURL()) {
		return fmt.Errorf("%w: redirected to %s", ErrTokenInjectionFailed, page.URL())
	}

	w.logger.Debugf("resumed session %s", logging.Redact(token))
	return nil
}

// samePath compares URL paths case-insensitively, ignoring query and fragment.
func samePath(got, want string) bool {
	g, err := url.Parse(got)
	if err != nil {
		return false
	}
	wu, err := url.Parse(want)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSuffix(g.Path, "/"), strings.TrimSuffix(wu.Path, "/"))
}
