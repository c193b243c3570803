package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/resultbot/pkg/bot"
	"github.com/entrhq/resultbot/pkg/chat"
	"github.com/entrhq/resultbot/pkg/chat/console"
	"github.com/entrhq/resultbot/pkg/chat/telegram"
	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/session"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		useConsole bool
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Long:  "serve starts the browser pool and answers chat updates. With --console the conversation runs on stdin/stdout instead of Telegram.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !useConsole && cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram token is required: set BOT_TOKEN or telegram.token, or use --console")
			}

			cleanup, err := setupLogging(cmd, cfg.Logging)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var transport chat.Transport
			if useConsole {
				transport = console.New(cmd.InOrStdin(), cmd.OutOrStdout(), outDir)
			} else {
				tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.PollTimeout, cfg.Telegram.Debug)
				if err != nil {
					return err
				}
				transport = tg
			}

			return serve(ctx, cfg, transport)
		},
	}

	cmd.Flags().BoolVar(&useConsole, "console", false, "Chat on stdin/stdout instead of Telegram")
	cmd.Flags().StringVar(&outDir, "out", "results", "Directory for attachments in console mode")
	return cmd
}

// serve wires the conversation onto transport and blocks until ctx is done
// or the transport stops. The browser pool is drained on the way out.
func serve(ctx context.Context, cfg *config.Config, transport chat.Transport) error {
	cache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	commentator, err := newCommentator(cfg.LLM)
	if err != nil {
		return err
	}
	mopts, err := machineOptions(cfg, commentator)
	if err != nil {
		return err
	}

	rt, err := startPortal(cfg)
	if err != nil {
		return err
	}

	machine := bot.NewMachine(rt.client, cache, session.NewStateStore(), transport, mopts)

	logger.Infof("bot started (consent=%s, semesters=%d)", mopts.ConsentMode, mopts.Semesters)
	return runTransport(ctx, transport, machine.Handle, rt.Close)
}

// runTransport runs transport until it stops on its own or ctx is done.
// On shutdown drain runs while handlers are still in flight: the pool
// refuses new work and gives running requests its grace period. Run
// returns once those handlers have replied.
func runTransport(ctx context.Context, transport chat.Transport, handle chat.HandlerFunc, drain func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- transport.Run(ctx, handle)
	}()

	var runErr error
	stopped := false
	select {
	case runErr = <-done:
		stopped = true
		logger.Infof("transport stopped")
	case <-ctx.Done():
		logger.Infof("shutdown requested, draining in-flight requests")
	}

	drainErr := drain()
	if drainErr != nil {
		logger.Errorf("browser pool shutdown: %v", drainErr)
	}
	if !stopped {
		runErr = <-done
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	logger.Infof("shutting down")
	return errors.Join(runErr, drainErr)
}
