package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// AuditRepository writes applied proposal diffs to assignment_audit_log.
// It implements assignment.AuditSink.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ assignment.AuditSink = (*AuditRepository)(nil)

const (
	// Re-delivering the same diff is a no-op.
	insertAuditRecord = `
		INSERT INTO assignment_audit_log (id, proposal_id, student_id, teacher_id, score, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (proposal_id, student_id) DO NOTHING`

	selectAuditByProposal = `
		SELECT id, proposal_id, student_id, teacher_id, score, applied_at
		FROM assignment_audit_log
		WHERE proposal_id = $1
		ORDER BY student_id`
)

// WriteDiff records every entry of the diff in one transaction.
func (r *AuditRepository) WriteDiff(ctx context.Context, diff assignment.AuditDiff) error {
	if len(diff.Entries) == 0 {
		return nil
	}

	err := WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, e := range diff.Entries {
			_, err := tx.Exec(ctx, insertAuditRecord,
				uuid.NewString(), diff.ProposalID, e.StudentID.String(), e.TeacherID.String(), e.Score, diff.AppliedAt)
			if err != nil {
				return fmt.Errorf("student %s: %w", e.StudentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write audit diff for proposal %s: %w", diff.ProposalID, err)
	}
	return nil
}

// ListByProposal returns the audit records of one proposal.
func (r *AuditRepository) ListByProposal(ctx context.Context, proposalID string) ([]assignment.AuditRecord, error) {
	rows, err := r.db.Query(ctx, selectAuditByProposal, proposalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []assignment.AuditRecord
	for rows.Next() {
		var rec assignment.AuditRecord
		var studentID, teacherID string
		if err := rows.Scan(&rec.ID, &rec.ProposalID, &studentID, &teacherID, &rec.Score, &rec.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.StudentID = shared.StudentID(studentID)
		rec.TeacherID = shared.TeacherID(teacherID)
		records = append(records, rec)
	}
	return records, rows.Err()
}
