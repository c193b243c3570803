package portal

import (
	"context"
	"time"

	"github.com/entrhq/resultbot/pkg/browser"
	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/logging"
)

// Client runs portal workflows on a browser pool.
type Client struct {
	pool    *browser.Pool
	wf      *workflow
	timeout time.Duration
	logger  *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout bounds each request, including time spent waiting for a context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client for site backed by pool.
func NewClient(pool *browser.Pool, site config.SiteConfig, opts ...Option) *Client {
	logger := logging.NewLogger("portal")
	c := &Client{
		pool:   pool,
		wf:     newWorkflow(site, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login performs a password login and returns the new session token.
// The result is not extracted so the caller can decide whether to keep
// the token first.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	out, err := c.Do(ctx, NewLoginRequest(creds))
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

// Fetch resumes the session behind token and extracts one semester.
func (c *Client) Fetch(ctx context.Context, token string, semester int) (*Bundle, error) {
	out, err := c.Do(ctx, NewFetchRequest(token, semester))
	if err != nil {
		return nil, err
	}
	return out.Bundle, nil
}

// Outcome is the result of one request.
type Outcome struct {
	Token  string
	Bundle *Bundle
}

// Do runs req on a pooled context. Authentication always runs; extraction
// runs when req names a semester.
func (c *Client) Do(ctx context.Context, req FetchRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := browser.Run(ctx, c.pool, func(ctx context.Context, bc browser.Context) (*Outcome, error) {
		return c.run(ctx, bc.Page(), req)
	})
	if err != nil {
		c.logger.Warnf("request %s failed after %s: %v", req.ID, time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	c.logger.Debugf("request %s done in %s", req.ID, time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (c *Client) run(ctx context.Context, page browser.Page, req FetchRequest) (*Outcome, error) {
	token, err := c.wf.authenticate(ctx, page, req)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Token: token}
	if req.Semester == 0 {
		return out, nil
	}

	bundle, err := c.wf.extract(ctx, page, req.Semester)
	if err != nil {
		return nil, err
	}
	out.Bundle = bundle
	return out, nil
}
