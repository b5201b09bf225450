// Command matchctl scores teacher-student pairs and drives the assignment
// proposal workflow from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	json    bool
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "matchctl",
		Short: "Teacher-student compatibility scoring and assignment proposals",
		Long: `matchctl scores teacher-student compatibility and manages batch
assignment proposals.

Offline scoring reads YAML fixtures and needs no database:
  matchctl score pair.yaml

Every other command reads the same environment and config.yaml as the worker:
  matchctl propose --team team-7
  matchctl apply 1f0c...`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "upper bound for the whole command")

	root.AddCommand(
		newScoreCmd(opts),
		newProposeCmd(opts),
		newApplyCmd(opts),
		newCancelCmd(opts),
		newProposalsCmd(opts),
		newAnalyzeCmd(opts),
		newIngestCmd(opts),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
