package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/afterschool-matching/internal/application/command"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
)

type ingestOutcome struct {
	Kind    string `json:"kind"`
	OwnerID string `json:"ownerId"`
	Version int64  `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Store personality snapshots from a YAML file",
		Long: `Validate and store personality snapshots. Each stored snapshot gets a
new version and evicts the cached profile.

File format:
  profiles:
    - kind: student
      ownerId: s-1
      personality:
        mbti: {type: INTP, percentages: {E: 30, I: 70, S: 40, N: 60, T: 80, F: 20, J: 35, P: 65}}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadIngestFixture(args[0])
			if err != nil {
				return err
			}
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				var (
					out  []ingestOutcome
					errs []error
				)
				for _, e := range f.Profiles {
					o := ingestOutcome{Kind: string(e.Kind), OwnerID: e.OwnerID}
					v, err := app.IngestProfile.Handle(ctx, command.IngestProfileCommand{
						Kind:    e.Kind,
						OwnerID: e.OwnerID,
						Profile: e.Personality,
					})
					if err != nil {
						o.Error = err.Error()
						errs = append(errs, fmt.Errorf("%s %s: %w", e.Kind, e.OwnerID, err))
					} else {
						o.Version = v
					}
					out = append(out, o)
					if err != nil && !keepGoing {
						break
					}
				}

				if opts.json {
					if err := printJSON(cmd.OutOrStdout(), out); err != nil {
						return err
					}
				} else {
					for _, o := range out {
						if o.Error != "" {
							fmt.Fprintf(cmd.OutOrStdout(), "%s %s  rejected: %s\n", o.Kind, o.OwnerID, o.Error)
							continue
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s  v%d\n", o.Kind, o.OwnerID, o.Version)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue after a rejected snapshot")
	return cmd
}
