package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/resultbot/pkg/bot"
)

// newCheckCmd validates the configuration without starting a browser.
func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := bot.NewAllowlist(cfg.Conversation.AllowedUsers); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "portal:      %s\n", cfg.Site.ResultURL())
			fmt.Fprintf(out, "pool size:   %d\n", cfg.Pool.Size)
			fmt.Fprintf(out, "cache:       %s (ttl %s)\n", cacheKind(cfg.Cache.RedisURL), cfg.Cache.TTL)
			fmt.Fprintf(out, "consent:     %s\n", cfg.Conversation.ConsentMode)
			fmt.Fprintf(out, "commentary:  %t\n", commentaryEnabled(cfg.LLM))
			fmt.Fprintf(out, "telegram:    %t\n", cfg.Telegram.Token != "")
			return nil
		},
	}
}

func cacheKind(redisURL string) string {
	if redisURL == "" {
		return "memory"
	}
	return "redis"
}
