package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSAL REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProposalRepository implements assignment.Repository for PostgreSQL.
type ProposalRepository struct {
	db Querier
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db Querier) *ProposalRepository {
	return &ProposalRepository{db: db}
}

var _ assignment.Repository = (*ProposalRepository)(nil)

const (
	insertProposal = `
		INSERT INTO assignment_proposals (id, scope, status, assignments, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectProposalColumns = `
		SELECT id, scope, status, assignments, summary, created_at, applied_at, cancelled_at
		FROM assignment_proposals`

	// Compare-and-set: only a PENDING row may move to a terminal status.
	updateProposalStatus = `
		UPDATE assignment_proposals
		SET status = $2, applied_at = $3, cancelled_at = $4
		WHERE id = $1 AND status = 'PENDING'`

	proposalExists = `SELECT EXISTS (SELECT 1 FROM assignment_proposals WHERE id = $1)`
)

// Create inserts a new proposal.
func (r *ProposalRepository) Create(ctx context.Context, p *assignment.Proposal) error {
	scope, err := json.Marshal(p.Scope)
	if err != nil {
		return fmt.Errorf("failed to marshal scope: %w", err)
	}
	assignments, err := json.Marshal(nonNil(p.Assignments))
	if err != nil {
		return fmt.Errorf("failed to marshal assignments: %w", err)
	}
	summary, err := json.Marshal(p.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = r.db.Exec(ctx, insertProposal, p.ID, scope, string(p.Status), assignments, summary, p.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("assignment", "Create", shared.ErrAlreadyExists, "proposal "+p.ID+" already exists")
		}
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	return nil
}

// GetByID returns a proposal or shared.ErrProposalNotFound.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*assignment.Proposal, error) {
	p, err := scanProposal(r.db.QueryRow(ctx, selectProposalColumns+` WHERE id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal %s: %w", id, err)
	}
	return p, nil
}

// UpdateStatus persists a terminal status. It fails with
// shared.ErrProposalNotPending if another writer already moved the row.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, p *assignment.Proposal) error {
	tag, err := r.db.Exec(ctx, updateProposalStatus, p.ID, string(p.Status), p.AppliedAt, p.CancelledAt)
	if err != nil {
		return fmt.Errorf("failed to update proposal %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, proposalExists, p.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check proposal %s: %w", p.ID, err)
	}
	if !exists {
		return shared.ErrProposalNotFound
	}
	return shared.ErrProposalNotPending
}

// ListByStatus returns proposals with the given status, newest first.
func (r *ProposalRepository) ListByStatus(ctx context.Context, status assignment.Status, page shared.Pagination) ([]*assignment.Proposal, error) {
	rows, err := r.db.Query(ctx,
		selectProposalColumns+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(status), page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var result []*assignment.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanProposal(row pgx.Row) (*assignment.Proposal, error) {
	var (
		p                      assignment.Proposal
		status                 string
		scope, items, summary  []byte
		appliedAt, cancelledAt *time.Time
	)
	if err := row.Scan(&p.ID, &scope, &status, &items, &summary, &p.CreatedAt, &appliedAt, &cancelledAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scope, &p.Scope); err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	if err := json.Unmarshal(items, &p.Assignments); err != nil {
		return nil, fmt.Errorf("assignments: %w", err)
	}
	if err := json.Unmarshal(summary, &p.Summary); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	p.Status = assignment.Status(status)
	p.AppliedAt = appliedAt
	p.CancelledAt = cancelledAt
	return &p, nil
}

func nonNil(a []assignment.Assignment) []assignment.Assignment {
	if a == nil {
		return []assignment.Assignment{}
	}
	return a
}
