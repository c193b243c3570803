package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/resultbot/pkg/config"
	"github.com/entrhq/resultbot/pkg/logging"
)

const (
	version = "0.1.0"

	// defaultConfigFile is read from the working directory when --config is not given
	defaultConfigFile = "resultbot.yaml"
)

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	configPath string
	logLevel   string
	logDir     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "resultbot",
		Short:         "Fetch university results over Telegram",
		Long:          "resultbot drives the university student portal in a headless browser and delivers semester results as PDF and screenshot to Telegram users.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file (default ./resultbot.yaml when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.StringVar(&opts.logDir, "log-dir", "", "Override logging.dir")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the configuration, applies flag overrides and validates it.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logDir != "" {
		cfg.Logging.Dir = opts.logDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging configures the shared log sink and returns its cleanup.
func setupLogging(cmd *cobra.Command, cfg config.LoggingConfig) (func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	path, err := logging.Setup(cfg.Dir, level)
	if err != nil {
		return nil, err
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "logging to %s\n", path)
	}
	return func() { _ = logging.Close() }, nil
}
