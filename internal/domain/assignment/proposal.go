// Package assignment содержит агрегат предложения пакетного переназначения
// учеников учителям и чистую логику выбора лучших пар.
package assignment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус предложения.
type Status string

const (
	// StatusPending - создано и ожидает внешнего решения.
	StatusPending Status = "PENDING"

	// StatusApplied - применено (терминальный статус).
	StatusApplied Status = "APPLIED"

	// StatusCancelled - отменено (терминальный статус).
	StatusCancelled Status = "CANCELLED"
)

// IsValid проверяет корректность статуса.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApplied, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal возвращает true, если статус терминальный.
func (s Status) IsFinal() bool {
	return s == StatusApplied || s == StatusCancelled
}

// CanTransitionTo проверяет допустимость перехода.
// Единственные переходы: PENDING → APPLIED и PENDING → CANCELLED.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsFinal()
}

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE
// ══════════════════════════════════════════════════════════════════════════════

// Scope - область предложения: команда либо явный список учеников.
type Scope struct {
	TeamID     shared.TeamID      `json:"teamId,omitempty"`
	StudentIDs []shared.StudentID `json:"studentIds,omitempty"`
}

// TeamScope создаёт область по команде.
func TeamScope(teamID shared.TeamID) Scope {
	return Scope{TeamID: teamID}
}

// StudentsScope создаёт область по списку учеников.
func StudentsScope(ids ...shared.StudentID) Scope {
	return Scope{StudentIDs: ids}
}

// IsTeam возвращает true, если область задана командой.
func (s Scope) IsTeam() bool {
	return !s.TeamID.IsEmpty()
}

// Validate проверяет, что область задана ровно одним способом.
func (s Scope) Validate() error {
	switch {
	case s.IsTeam() && len(s.StudentIDs) > 0:
		return shared.NewDomainError("assignment", "ValidateScope", shared.ErrInvalidInput,
			"scope must name either a team or students, not both")
	case !s.IsTeam() && len(s.StudentIDs) == 0:
		return shared.ErrEmptyScope
	}
	return nil
}

// String возвращает человекочитаемое описание области.
func (s Scope) String() string {
	if s.IsTeam() {
		return "team:" + s.TeamID.String()
	}
	ids := make([]string, len(s.StudentIDs))
	for i, id := range s.StudentIDs {
		ids[i] = id.String()
	}
	return "students:" + strings.Join(ids, ",")
}

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSAL
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - предлагаемое закрепление ученика за учителем.
// Та же форма используется как запись аудита при применении.
type Assignment struct {
	StudentID shared.StudentID `json:"studentId"`
	TeacherID shared.TeacherID `json:"teacherId"`
	Score     float64          `json:"score"`
}

// Proposal - агрегат предложения пакетного переназначения.
// Создаётся в PENDING и переходит ровно один раз в терминальный статус.
type Proposal struct {
	// ID - уникальный идентификатор (UUID).
	ID string `json:"id"`

	// Scope - по какой области строилось предложение.
	Scope Scope `json:"scope"`

	// CreatedAt - когда создано.
	CreatedAt time.Time `json:"createdAt"`

	// Status - текущий статус.
	Status Status `json:"status"`

	// Assignments - лучшие пары, по одной на назначенного ученика.
	Assignments []Assignment `json:"assignments"`

	// Summary - агрегированная статистика.
	Summary Summary `json:"summary"`

	// AppliedAt - когда применено (nil если не применено).
	AppliedAt *time.Time `json:"appliedAt,omitempty"`

	// CancelledAt - когда отменено (nil если не отменено).
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// NewProposal создаёт предложение в статусе PENDING.
// Summary вычисляется из assignments и общего числа учеников в области.
func NewProposal(scope Scope, totalStudents int, assignments []Assignment, now time.Time) (*Proposal, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if totalStudents < len(assignments) {
		return nil, shared.NewDomainError("assignment", "NewProposal", shared.ErrInvalidInput,
			"more assignments than students in scope")
	}

	return &Proposal{
		ID:          uuid.NewString(),
		Scope:       scope,
		CreatedAt:   now.UTC(),
		Status:      StatusPending,
		Assignments: assignments,
		Summary:     Summarize(totalStudents, assignments),
	}, nil
}

// Apply переводит предложение в APPLIED и возвращает diff для аудита.
func (p *Proposal) Apply(now time.Time) (AuditDiff, error) {
	if !p.Status.CanTransitionTo(StatusApplied) {
		return AuditDiff{}, p.transitionError("Apply", StatusApplied)
	}

	at := now.UTC()
	p.Status = StatusApplied
	p.AppliedAt = &at
	return p.Diff(), nil
}

// Cancel переводит предложение в CANCELLED.
func (p *Proposal) Cancel(now time.Time) error {
	if !p.Status.CanTransitionTo(StatusCancelled) {
		return p.transitionError("Cancel", StatusCancelled)
	}

	at := now.UTC()
	p.Status = StatusCancelled
	p.CancelledAt = &at
	return nil
}

// IsPending возвращает true, если предложение ожидает решения.
func (p *Proposal) IsPending() bool {
	return p.Status == StatusPending
}

// Diff возвращает полезную нагрузку аудита в форме assignments.
func (p *Proposal) Diff() AuditDiff {
	entries := make([]Assignment, len(p.Assignments))
	copy(entries, p.Assignments)

	diff := AuditDiff{ProposalID: p.ID, Entries: entries}
	if p.AppliedAt != nil {
		diff.AppliedAt = *p.AppliedAt
	}
	return diff
}

func (p *Proposal) transitionError(op string, to Status) error {
	return shared.WrapError("assignment", op, shared.ErrStateTransition,
		"cannot move proposal from "+string(p.Status)+" to "+string(to), shared.ErrProposalNotPending)
}

// AuditDiff - полезная нагрузка для внешнего журнала аудита.
type AuditDiff struct {
	ProposalID string       `json:"proposalId"`
	AppliedAt  time.Time    `json:"appliedAt"`
	Entries    []Assignment `json:"entries"`
}
