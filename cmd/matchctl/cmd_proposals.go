package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/afterschool-matching/internal/application/command"
	"github.com/alem-hub/afterschool-matching/internal/bootstrap"
	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func newProposeCmd(opts *rootOptions) *cobra.Command {
	var (
		team     string
		students []string
		teachers []string
	)

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Create a PENDING assignment proposal",
		Long: `Score every in-scope student against the teacher pool and store the
best pair per student as a PENDING proposal. Nothing is reassigned until the
proposal is applied.

Examples:
  matchctl propose --team team-7
  matchctl propose --students s-1,s-2 --teachers t-3,t-9`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				res, err := app.ProposeAssignments.Handle(ctx, command.ProposeAssignmentsCommand{
					TeamID:        team,
					StudentIDs:    students,
					TeacherPool:   teachers,
					CorrelationID: "matchctl",
				})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printProposal(cmd.OutOrStdout(), res.Proposal)
				if len(res.ExcludedStudents) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "excluded: %s (%d failed pairs)\n",
						joinIDs(res.ExcludedStudents), res.FailedPairs)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&team, "team", "", "team whose students are in scope")
	cmd.Flags().StringSliceVar(&students, "students", nil, "explicit student IDs")
	cmd.Flags().StringSliceVar(&teachers, "teachers", nil, "teacher pool in tie-break order (default: all active)")
	cmd.MarkFlagsMutuallyExclusive("team", "students")
	cmd.MarkFlagsOneRequired("team", "students")
	return cmd
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply PROPOSAL_ID",
		Short: "Apply a PENDING proposal and write its audit diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				res, err := app.ApplyProposal.Handle(ctx, command.ApplyProposalCommand{
					ProposalID:    args[0],
					CorrelationID: "matchctl",
				})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), res)
				}
				printProposal(cmd.OutOrStdout(), res.Proposal)
				if !res.AuditDelivered {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: proposal applied but the audit diff was not written")
				}
				return nil
			})
		},
	}
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel PROPOSAL_ID",
		Short: "Cancel a PENDING proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				p, err := app.CancelProposal.Handle(ctx, command.CancelProposalCommand{
					ProposalID:    args[0],
					Reason:        reason,
					CorrelationID: "matchctl",
				})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), p)
				}
				printProposal(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the proposal is cancelled")
	return cmd
}

func newProposalsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "Inspect stored proposals",
	}

	var (
		status string
		page   int
		size   int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				ps, err := app.Proposals.ListByStatus(ctx, st, shared.Pagination{Page: page, PageSize: size})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), ps)
				}
				for _, p := range ps {
					printProposal(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(assignment.StatusPending), "PENDING, APPLIED or CANCELLED")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&size, "page-size", shared.DefaultPageSize, "page size")

	audit := &cobra.Command{
		Use:   "audit PROPOSAL_ID",
		Short: "Show the audit log written when a proposal was applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, opts, func(ctx context.Context, app *bootstrap.Container) error {
				records, err := app.Audit.ListByProposal(ctx, args[0])
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), records)
				}
				for _, r := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s  %.1f\n",
						r.AppliedAt.Format("2006-01-02 15:04"), r.StudentID, r.TeacherID, r.Score)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, audit)
	return cmd
}

func parseStatus(s string) (assignment.Status, error) {
	st := assignment.Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func printProposal(w io.Writer, p *assignment.Proposal) {
	if p == nil {
		return
	}
	s := p.Summary
	fmt.Fprintf(w, "proposal %s  %s  %s\n", p.ID, p.Status, p.Scope)
	fmt.Fprintf(w, "  students %d  assigned %d  excluded %d  avg %.1f  min %.1f  max %.1f\n",
		s.TotalStudents, s.AssignedCount, s.ExcludedCount, s.AverageScore, s.MinScore, s.MaxScore)
	for _, a := range p.Assignments {
		fmt.Fprintf(w, "  %s -> %s  %.1f\n", a.StudentID, a.TeacherID, a.Score)
	}
}

func joinIDs[T ~string](ids []T) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
