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
// CANCEL PROPOSAL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CancelProposalCommand identifies the proposal to cancel.
type CancelProposalCommand struct {
	ProposalID string

	// Reason is free text carried on the event.
	Reason string

	CorrelationID string
}

// Validate validates the command.
func (c CancelProposalCommand) Validate() error {
	if c.ProposalID == "" {
		return shared.NewDomainError("assignment", "Cancel", shared.ErrEmptyValue, "proposal_id is required")
	}
	return nil
}

// CancelProposalHandler handles the CancelProposalCommand.
type CancelProposalHandler struct {
	proposals assignment.Repository
	publisher shared.EventPublisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

// NewCancelProposalHandler creates a new CancelProposalHandler.
func NewCancelProposalHandler(proposals assignment.Repository, publisher shared.EventPublisher, m *metrics.Metrics, log *logger.Logger) *CancelProposalHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &CancelProposalHandler{
		proposals: proposals,
		publisher: publisher,
		metrics:   m,
		log:       log.Named("cancel_proposal"),
		now:       time.Now,
	}
}

// Handle executes the cancel proposal command.
func (h *CancelProposalHandler) Handle(ctx context.Context, cmd CancelProposalCommand) (_ *assignment.Proposal, err error) {
	ctx, span := tracer.Start(ctx, "command.CancelProposal",
		trace.WithAttributes(attribute.String("proposal.id", cmd.ProposalID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancel failed")
		}
		span.End()
	}()

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("cancel_proposal: validation failed: %w", err)
	}

	proposal, err := h.proposals.GetByID(ctx, cmd.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("cancel_proposal: failed to load proposal: %w", err)
	}

	if err := proposal.Cancel(h.now()); err != nil {
		return nil, fmt.Errorf("cancel_proposal: %w", err)
	}
	if err := h.proposals.UpdateStatus(ctx, proposal); err != nil {
		return nil, fmt.Errorf("cancel_proposal: failed to save status: %w", err)
	}
	h.metrics.ProposalTransition(string(assignment.StatusCancelled))

	event := assignment.NewProposalCancelledEvent(proposal.ID, cmd.Reason, *proposal.CancelledAt)
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("failed to publish cancel event", logger.ProposalID(proposal.ID), logger.Err(err))
		}
	}

	h.log.Info("proposal cancelled", logger.ProposalID(proposal.ID), logger.String("reason", cmd.Reason))
	return proposal, nil
}
