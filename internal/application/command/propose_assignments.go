package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/afterschool-matching/internal/application/pairing"
	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

var tracer = otel.Tracer("afterschool.command")

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSE ASSIGNMENTS COMMAND
// Scores every in-scope student against the teacher pool and stores the best
// pair per student as a PENDING proposal. Nothing is reassigned until the
// proposal is applied.
// ══════════════════════════════════════════════════════════════════════════════

// ProposeAssignmentsCommand contains the data needed to build a proposal.
type ProposeAssignmentsCommand struct {
	// TeamID selects the students of a team. Mutually exclusive with StudentIDs.
	TeamID string

	// StudentIDs is an explicit student list.
	StudentIDs []string

	// TeacherPool lists candidate teachers in tie-break order.
	// If empty, all active teachers are used.
	TeacherPool []string

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c ProposeAssignmentsCommand) Validate() error {
	if c.TeamID == "" && len(c.StudentIDs) == 0 {
		return shared.ErrEmptyScope
	}
	if c.TeamID != "" && len(c.StudentIDs) > 0 {
		return shared.NewDomainError("assignment", "Propose", shared.ErrInvalidInput,
			"scope must name either a team or students, not both")
	}
	return nil
}

// ProposeAssignmentsResult contains the created proposal.
type ProposeAssignmentsResult struct {
	Proposal *assignment.Proposal

	// ExcludedStudents had no successfully scored pair.
	ExcludedStudents []shared.StudentID

	// FailedPairs is the number of pairs that could not be scored.
	FailedPairs int
}

// GridScorer scores student x teacher grids.
type GridScorer interface {
	ScoreGrid(ctx context.Context, students []shared.StudentID, teachers []shared.TeacherID) pairing.Grid
}

// ProposeAssignmentsHandler handles the ProposeAssignmentsCommand.
type ProposeAssignmentsHandler struct {
	directory profile.Directory
	scorer    GridScorer
	proposals assignment.Repository
	publisher shared.EventPublisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

// NewProposeAssignmentsHandler creates a new ProposeAssignmentsHandler.
func NewProposeAssignmentsHandler(
	directory profile.Directory,
	scorer GridScorer,
	proposals assignment.Repository,
	publisher shared.EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *ProposeAssignmentsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ProposeAssignmentsHandler{
		directory: directory,
		scorer:    scorer,
		proposals: proposals,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("propose_assignments"),
		now:       time.Now,
	}
}

// Handle executes the propose assignments command.
func (h *ProposeAssignmentsHandler) Handle(ctx context.Context, cmd ProposeAssignmentsCommand) (_ *ProposeAssignmentsResult, err error) {
	ctx, span := tracer.Start(ctx, "command.ProposeAssignments",
		trace.WithAttributes(
			attribute.String("scope.team_id", cmd.TeamID),
			attribute.Int("scope.students", len(cmd.StudentIDs)),
			attribute.Int("pool.teachers", len(cmd.TeacherPool)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "propose failed")
		}
		span.End()
	}()

	start := time.Now()
	defer func() { h.metrics.ObserveBatch("propose", time.Since(start)) }()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("propose_assignments: validation failed: %w", err)
	}

	scope, students, err := h.resolveScope(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("propose_assignments: failed to resolve scope: %w", err)
	}

	teachers, err := h.resolvePool(ctx, cmd.TeacherPool)
	if err != nil {
		return nil, fmt.Errorf("propose_assignments: failed to resolve teacher pool: %w", err)
	}

	grid := h.scorer.ScoreGrid(ctx, students, teachers)
	assignments := assignment.SelectAssignments(grid.Rows)

	proposal, err := assignment.NewProposal(scope, len(students), assignments, h.now())
	if err != nil {
		return nil, fmt.Errorf("propose_assignments: failed to build proposal: %w", err)
	}
	if err := h.proposals.Create(ctx, proposal); err != nil {
		return nil, fmt.Errorf("propose_assignments: failed to save proposal: %w", err)
	}

	result := &ProposeAssignmentsResult{
		Proposal:         proposal,
		ExcludedStudents: excludedStudents(students, assignments),
		FailedPairs:      len(grid.Failed()),
	}

	event := assignment.NewProposalCreatedEvent(proposal)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("failed to publish proposal event", logger.ProposalID(proposal.ID), logger.Err(err))
		}
	}

	s := proposal.Summary
	h.metrics.ProposalCreated(s.ExcludedCount)
	span.SetAttributes(
		attribute.String("proposal.id", proposal.ID),
		attribute.Int("proposal.assigned", s.AssignedCount),
		attribute.Int("proposal.excluded", s.ExcludedCount),
		attribute.Int("pairs.failed", result.FailedPairs),
	)
	h.log.Info("proposal created",
		logger.ProposalID(proposal.ID),
		logger.String("scope", scope.String()),
		logger.Int("total_students", s.TotalStudents),
		logger.Int("assigned", s.AssignedCount),
		logger.Int("excluded", s.ExcludedCount),
		logger.Int("failed_pairs", result.FailedPairs),
		logger.Float64("average_score", s.AverageScore),
		logger.Latency(time.Since(start)),
	)

	return result, nil
}

func (h *ProposeAssignmentsHandler) resolveScope(ctx context.Context, cmd ProposeAssignmentsCommand) (assignment.Scope, []shared.StudentID, error) {
	if cmd.TeamID != "" {
		teamID, err := shared.NewTeamID(cmd.TeamID)
		if err != nil {
			return assignment.Scope{}, nil, err
		}
		ids, err := h.directory.StudentsInTeam(ctx, teamID)
		if err != nil {
			return assignment.Scope{}, nil, err
		}
		return assignment.TeamScope(teamID), ids, nil
	}

	ids, err := parseStudentIDs(cmd.StudentIDs)
	if err != nil {
		return assignment.Scope{}, nil, err
	}
	return assignment.StudentsScope(ids...), ids, nil
}

func (h *ProposeAssignmentsHandler) resolvePool(ctx context.Context, raw []string) ([]shared.TeacherID, error) {
	var (
		pool []shared.TeacherID
		err  error
	)
	if len(raw) > 0 {
		pool, err = parseTeacherIDs(raw)
	} else {
		pool, err = h.directory.ActiveTeachers(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, shared.ErrEmptyTeacherPool
	}
	return pool, nil
}

func excludedStudents(students []shared.StudentID, assigned []assignment.Assignment) []shared.StudentID {
	got := make(map[shared.StudentID]struct{}, len(assigned))
	for _, a := range assigned {
		got[a.StudentID] = struct{}{}
	}
	var out []shared.StudentID
	for _, id := range students {
		if _, ok := got[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
