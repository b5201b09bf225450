package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/afterschool-matching/internal/application/query"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze STUDENT_ID...",
		Short: "Score students against every active teacher",
		Long: `Score each student against every active teacher without storing
anything. Pairs whose profiles could not be fetched are listed separately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				res, err := app.BatchAnalyze.Handle(ctx, query.BatchAnalyzeQuery{StudentIDs: args})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), res)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%d students x %d teachers, %d failed pairs\n",
					res.StudentCount, res.TeacherCount, len(res.Failures))
				for _, s := range res.Scores {
					fmt.Fprintf(w, "  %s x %s  %.1f  %s\n", s.StudentID, s.TeacherID, s.Overall, s.Quality())
				}
				for _, f := range res.Failures {
					fmt.Fprintf(w, "  %s x %s  failed: %s\n", f.StudentID, f.TeacherID, f.Error)
				}
				return nil
			})
		},
	}
}
