package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entrhq/resultbot/pkg/portal"
)

// fetchOptions are the flags of the fetch command
type fetchOptions struct {
	username string
	password string
	token    string
	semester int
	outDir   string
}

// newFetchCmd runs one login or resume plus extraction without a chat
// transport. Useful for checking selectors against the live portal.
func newFetchCmd(opts *rootOptions) *cobra.Command {
	fo := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one semester result from the command line",
		Example: "  resultbot fetch --user 2K21CSUN01 --password secret --semester 3\n" +
			"  resultbot fetch --token <session cookie> --semester 3 --out ./results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := fo.request()
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cleanup, err := setupLogging(cmd, cfg.Logging)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := startPortal(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					logger.Warnf("browser pool shutdown: %v", err)
				}
			}()

			out, err := rt.client.Do(ctx, req)
			if err != nil {
				return err
			}
			return writeOutcome(cmd, fo.outDir, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&fo.username, "user", "u", "", "Portal roll number")
	flags.StringVarP(&fo.password, "password", "p", "", "Portal password")
	flags.StringVar(&fo.token, "token", "", "Resume an existing session cookie instead of logging in")
	flags.IntVarP(&fo.semester, "semester", "s", 0, "Semester to extract (omit to only log in)")
	flags.StringVarP(&fo.outDir, "out", "o", ".", "Directory the result files are written to")
	cmd.MarkFlagsMutuallyExclusive("token", "user")
	cmd.MarkFlagsMutuallyExclusive("token", "password")
	cmd.MarkFlagsRequiredTogether("user", "password")
	return cmd
}

// request builds and validates the portal request described by the flags.
func (fo *fetchOptions) request() (portal.FetchRequest, error) {
	var req portal.FetchRequest
	if fo.token != "" {
		req = portal.NewFetchRequest(fo.token, fo.semester)
	} else {
		req = portal.NewLoginRequest(portal.Credentials{Username: fo.username, Password: fo.password})
		req.Semester = fo.semester
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// writeOutcome prints the session token and saves the bundle, if any.
func writeOutcome(cmd *cobra.Command, dir string, out *portal.Outcome) error {
	w := cmd.OutOrStdout()
	if out.Token != "" {
		fmt.Fprintf(w, "session: %s\n", out.Token)
	}

	b := out.Bundle
	if b == nil {
		return nil
	}
	if !b.Published() {
		fmt.Fprintln(w, b.Text)
		return nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	files := []struct {
		ext  string
		data []byte
	}{
		{"pdf", b.PDF},
		{"png", b.Screenshot},
		{"txt", []byte(b.Text)},
	}
	for _, f := range files {
		path := filepath.Join(dir, fmt.Sprintf("result_semester_%d.%s", b.Semester, f.ext))
		if err := os.WriteFile(path, f.data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(w, "wrote %s\n", path)
	}
	if b.PDFPages > 0 {
		fmt.Fprintf(w, "pdf pages: %d\n", b.PDFPages)
	}
	return nil
}
