package assignment

import (
	"context"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище предложений.
type Repository interface {
	// Create сохраняет новое предложение.
	Create(ctx context.Context, p *Proposal) error

	// GetByID возвращает предложение.
	// Возвращает ErrProposalNotFound, если предложения нет.
	GetByID(ctx context.Context, id string) (*Proposal, error)

	// UpdateStatus сохраняет терминальный статус, только если в хранилище
	// предложение всё ещё PENDING. Иначе возвращает ErrProposalNotPending.
	UpdateStatus(ctx context.Context, p *Proposal) error

	// ListByStatus возвращает предложения с указанным статусом, новые первыми.
	ListByStatus(ctx context.Context, status Status, page shared.Pagination) ([]*Proposal, error)
}

// AuditRecord - запись журнала аудита по одному переназначению.
type AuditRecord struct {
	ID         string
	ProposalID string
	Assignment
	AppliedAt time.Time
}

// AuditSink - внешний писатель журнала аудита.
type AuditSink interface {
	// WriteDiff записывает diff применённого предложения.
	WriteDiff(ctx context.Context, diff AuditDiff) error
}
