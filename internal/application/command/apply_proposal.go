package command

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY PROPOSAL COMMAND
// Moves a PENDING proposal to APPLIED and emits the audit diff as a
// proposal.applied event.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyProposalCommand identifies the proposal to apply.
type ApplyProposalCommand struct {
	ProposalID    string
	CorrelationID string
}

// Validate validates the command.
func (c ApplyProposalCommand) Validate() error {
	if c.ProposalID == "" {
		return shared.NewDomainError("assignment", "Apply", shared.ErrEmptyValue, "proposal_id is required")
	}
	return nil
}

// ApplyProposalResult contains the applied proposal and its diff.
type ApplyProposalResult struct {
	Proposal *assignment.Proposal
	Diff     assignment.AuditDiff

	// AuditDelivered is false when publishing the diff failed. The status
	// change is already stored in that case.
	AuditDelivered bool
}

// ApplyProposalHandler handles the ApplyProposalCommand.
type ApplyProposalHandler struct {
	proposals assignment.Repository
	publisher shared.EventPublisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

// NewApplyProposalHandler creates a new ApplyProposalHandler.
func NewApplyProposalHandler(proposals assignment.Repository, publisher shared.EventPublisher, m *metrics.Metrics, log *logger.Logger) *ApplyProposalHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ApplyProposalHandler{
		proposals: proposals,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("apply_proposal"),
		now:       time.Now,
	}
}

// Handle executes the apply proposal command.
func (h *ApplyProposalHandler) Handle(ctx context.Context, cmd ApplyProposalCommand) (_ *ApplyProposalResult, err error) {
	ctx, span := tracer.Start(ctx, "command.ApplyProposal",
		trace.WithAttributes(attribute.String("proposal.id", cmd.ProposalID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "apply failed")
		}
		span.End()
	}()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("apply_proposal: validation failed: %w", err)
	}

	proposal, err := h.proposals.GetByID(ctx, cmd.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("apply_proposal: failed to load proposal: %w", err)
	}

	diff, err := proposal.Apply(h.now())
	if err != nil {
		return nil, fmt.Errorf("apply_proposal: %w", err)
	}
	if err := h.proposals.UpdateStatus(ctx, proposal); err != nil {
		return nil, fmt.Errorf("apply_proposal: failed to save status: %w", err)
	}
	h.metrics.ProposalTransition(string(assignment.StatusApplied))

	result := &ApplyProposalResult{Proposal: proposal, Diff: diff, AuditDelivered: true}

	event := assignment.NewProposalAppliedEvent(diff)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			result.AuditDelivered = false
			h.log.Error("failed to deliver audit diff", logger.ProposalID(proposal.ID), logger.Err(err))
		}
	}

	h.log.Info("proposal applied",
		logger.ProposalID(proposal.ID),
		logger.Int("entries", len(diff.Entries)),
		logger.Bool("audit_delivered", result.AuditDelivered),
	)
	return result, nil
}
