package assignment

import (
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// ProposalCreatedEvent - предложение создано.
type ProposalCreatedEvent struct {
	shared.BaseEvent
	Scope   Scope   `json:"scope"`
	Summary Summary `json:"summary"`
}

// Payload implements shared.Event.
func (e ProposalCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"scope":          e.Scope.String(),
		"total_students": e.Summary.TotalStudents,
		"assigned_count": e.Summary.AssignedCount,
		"excluded_count": e.Summary.ExcludedCount,
		"success_count":  e.Summary.SuccessCount,
		"failure_count":  e.Summary.FailureCount,
		"average_score":  e.Summary.AverageScore,
	}
}

// NewProposalCreatedEvent создаёт событие по предложению.
func NewProposalCreatedEvent(p *Proposal) ProposalCreatedEvent {
	return ProposalCreatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProposalCreated, p.ID, p.CreatedAt),
		Scope:     p.Scope,
		Summary:   p.Summary,
	}
}

// ProposalAppliedEvent - предложение применено; несёт diff для журнала аудита.
type ProposalAppliedEvent struct {
	shared.BaseEvent
	Diff AuditDiff `json:"diff"`
}

// Payload implements shared.Event.
func (e ProposalAppliedEvent) Payload() map[string]interface{} {
	entries := make([]map[string]interface{}, len(e.Diff.Entries))
	for i, a := range e.Diff.Entries {
		entries[i] = map[string]interface{}{
			"studentId": a.StudentID.String(),
			"teacherId": a.TeacherID.String(),
			"score":     a.Score,
		}
	}
	return map[string]interface{}{
		"proposal_id": e.Diff.ProposalID,
		"applied_at":  e.Diff.AppliedAt,
		"entries":     entries,
	}
}

// NewProposalAppliedEvent создаёт событие применения.
func NewProposalAppliedEvent(diff AuditDiff) ProposalAppliedEvent {
	return ProposalAppliedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProposalApplied, diff.ProposalID, diff.AppliedAt),
		Diff:      diff,
	}
}

// ProposalCancelledEvent - предложение отменено.
type ProposalCancelledEvent struct {
	shared.BaseEvent
	Reason string `json:"reason,omitempty"`
}

// Payload implements shared.Event.
func (e ProposalCancelledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"reason": e.Reason,
	}
}

// NewProposalCancelledEvent создаёт событие отмены.
func NewProposalCancelledEvent(proposalID, reason string, at time.Time) ProposalCancelledEvent {
	return ProposalCancelledEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProposalCancelled, proposalID, at),
		Reason:    reason,
	}
}
