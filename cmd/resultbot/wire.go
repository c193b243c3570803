package main

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/resultbot/pkg/bot"
	"github.com/entrhq/resultbot/pkg/browser"
	"github.com/entrhq/resultbot/pkg/commentary"
	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/logging"
	"github.com/entrhq/resultbot/pkg/portal"
	"github.com/entrhq/resultbot/pkg/session"
)

var logger = logging.NewLogger("main")

// portalRuntime is the browser pool and the client running on it
type portalRuntime struct {
	pool   *browser.Pool
	client *portal.Client
	grace  time.Duration
}

// startPortal launches Chromium and builds the portal client.
func startPortal(cfg *config.Config) (*portalRuntime, error) {
	launcher, err := browser.NewLauncher(browser.LaunchOptions{
		Headless: cfg.Pool.Headless,
		Viewport: &browser.Viewport{
			Width:  cfg.Pool.ViewportWidth,
			Height: cfg.Pool.ViewportHeight,
		},
		Args:           cfg.Pool.LaunchArgs,
		DefaultTimeout: cfg.Site.NavigationTimeout,
		Install:        cfg.Pool.InstallBrowser,
	})
	if err != nil {
		return nil, err
	}

	pool := browser.NewPool(launcher, cfg.Pool.Size)
	client := portal.NewClient(pool, cfg.Site, portal.WithRequestTimeout(cfg.Pool.RequestTimeout))
	logger.Infof("browser pool started with %d context(s)", cfg.Pool.Size)

	return &portalRuntime{pool: pool, client: client, grace: cfg.Pool.ShutdownGrace}, nil
}

// Close drains the pool, giving in-flight workflows the configured grace period.
func (r *portalRuntime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.grace)
	defer cancel()
	return r.pool.Close(ctx)
}

// newCache returns the Redis cache when configured, otherwise an in-process one.
// An unreachable Redis at startup is logged; the bot keeps running and
// degrades per request.
func newCache(ctx context.Context, cfg config.CacheConfig) (session.Cache, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warnf("no redis_url configured, sessions are kept in memory")
		return session.NewMemoryCache(), func() {}, nil
	}

	rc, err := session.NewRedisCache(cfg.RedisURL,
		session.WithKeyPrefix(cfg.KeyPrefix),
		session.WithOpTimeout(cfg.OpTimeout),
	)
	if err != nil {
		return nil, nil, err
	}
	if err := rc.Ping(ctx); err != nil {
		logger.Warnf("redis not reachable at startup: %v", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

func commentaryEnabled(cfg config.LLMConfig) bool {
	return cfg.Enabled && cfg.APIKey != ""
}

// newCommentator returns nil when commentary is disabled or has no key.
func newCommentator(cfg config.LLMConfig) (bot.Commentator, error) {
	if !commentaryEnabled(cfg) {
		if cfg.Enabled {
			logger.Infof("commentary disabled: no API key")
		}
		return nil, nil
	}

	gen, err := commentary.NewGenerator(cfg.APIKey, cfg.BaseURL,
		commentary.WithModel(cfg.Model),
		commentary.WithTemperature(cfg.Temperature),
		commentary.WithMaxInputTokens(cfg.MaxInputTokens),
		commentary.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commentary generator: %w", err)
	}
	return gen, nil
}

// machineOptions maps configuration onto the conversation options.
func machineOptions(cfg *config.Config, commentator bot.Commentator) (bot.Options, error) {
	allow, err := bot.NewAllowlist(cfg.Conversation.AllowedUsers)
	if err != nil {
		return bot.Options{}, err
	}
	return bot.Options{
		ConsentMode: cfg.Conversation.ConsentMode,
		Semesters:   cfg.Conversation.Semesters,
		TTL:         cfg.Cache.TTL,
		Allowlist:   allow,
		Commentary:  commentator,
	}, nil
}
