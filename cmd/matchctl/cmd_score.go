package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/afterschool-matching/internal/application/query"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/service"
)

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var (
		teacherID   string
		studentID   string
		averageLoad float64
	)

	cmd := &cobra.Command{
		Use:   "score [FIXTURE]",
		Short: "Score one teacher-student pair",
		Long: `Score one teacher-student pair.

With a FIXTURE argument the pair is read from a YAML file and scored offline.
With --teacher and --student the profiles are fetched from the profile store.

Examples:
  matchctl score pair.yaml
  matchctl score pair.yaml --average-load 12 --json
  matchctl score --teacher t-17 --student s-204`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return scoreFixture(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args[0], averageLoad)
			}
			if teacherID == "" || studentID == "" {
				return errors.New("either a FIXTURE or both --teacher and --student are required")
			}
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				res, err := app.GetCompatibility.Handle(ctx, query.GetCompatibilityQuery{
					TeacherID: teacherID,
					StudentID: studentID,
				})
				if err != nil {
					return err
				}
				return printScore(cmd.OutOrStdout(), opts, res.Score)
			})
		},
	}

	cmd.Flags().StringVar(&teacherID, "teacher", "", "teacher ID to fetch")
	cmd.Flags().StringVar(&studentID, "student", "", "student ID to fetch")
	cmd.Flags().Float64Var(&averageLoad, "average-load", 0, "organisation-wide average load (default from fixture or 15)")
	return cmd
}

// scoreFixture applies the same lenient ingestion policy as the profile
// source and reports every repair on stderr.
func scoreFixture(w, warn io.Writer, opts *rootOptions, path string, averageLoad float64) error {
	f, err := loadPairFixture(path)
	if err != nil {
		return err
	}

	v := service.NewProfileValidator()
	for _, side := range []struct {
		name string
		p    **profile.PersonalityProfile
	}{
		{"teacher", &f.Teacher.Personality},
		{"student", &f.Student.Personality},
	} {
		res, err := v.Sanitize(*side.p, false)
		if err != nil {
			return fmt.Errorf("%s profile: %w", side.name, err)
		}
		for _, a := range res.Adjustments {
			fmt.Fprintf(warn, "warning: %s %s clamped from %g to %g\n", side.name, a.Field, a.From, a.To)
		}
		for _, d := range res.Dropped {
			fmt.Fprintf(warn, "warning: %s %s dropped\n", side.name, d)
		}
		*side.p = res.Profile
	}
	if f.Teacher.CurrentLoad < 0 {
		fmt.Fprintf(warn, "warning: teacher currentLoad clamped from %d to 0\n", f.Teacher.CurrentLoad)
		f.Teacher.CurrentLoad = profile.ClampLoad(f.Teacher.CurrentLoad)
	}
	if averageLoad <= 0 {
		averageLoad = f.AverageLoad
	}
	var calcOpts []compatibility.Option
	if averageLoad > 0 {
		calcOpts = append(calcOpts, compatibility.WithAverageLoad(averageLoad))
	}
	return printScore(w, opts, compatibility.Calculate(&f.Teacher, &f.Student, calcOpts...))
}

func printScore(w io.Writer, opts *rootOptions, s compatibility.Score) error {
	if opts.json {
		return printJSON(w, struct {
			compatibility.Score
			Quality compatibility.Quality `json:"quality"`
		}{s, s.Quality()})
	}

	fmt.Fprintf(w, "%s x %s: %.1f (%s)\n", s.TeacherID, s.StudentID, s.Overall, s.Quality())
	b := s.Breakdown
	fmt.Fprintf(w, "  mbti %.1f  learning %.1f  saju %.1f  name %.1f  load %.1f\n",
		b.MBTI, b.LearningStyle, b.Saju, b.Name, b.LoadBalance)
	if len(s.Reasons) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(s.Reasons, "\n  "))
	}
	return nil
}
