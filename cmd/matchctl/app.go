package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alem-hub/afterschool-matching/config"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

// withContainer loads configuration, wires the service and runs fn under the
// command timeout.
func withContainer(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, app *bootstrap.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	log := newCLILogger(cmd.ErrOrStderr(), opts.verbose)
	defer func() { _ = log.Sync() }()

	// The CLI never serves metrics; a private registry keeps collectors off
	// the default one.
	app, err := bootstrap.New(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func newCLILogger(w io.Writer, verbose bool) *logger.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := logger.Options{
		Output: w,
		Level:  logger.LevelWarn,
		Format: logger.FormatConsole,
	}
	if verbose {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
