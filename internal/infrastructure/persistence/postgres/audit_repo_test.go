package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func TestAuditRepository_WriteDiff(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepository(mock)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	diff := assignment.AuditDiff{
		ProposalID: "p-1",
		AppliedAt:  at,
		Entries: []assignment.Assignment{
			{StudentID: "s-1", TeacherID: "t-1", Score: 81},
			{StudentID: "s-2", TeacherID: "t-3", Score: 58.5},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO assignment_audit_log`).
		WithArgs(pgxmock.AnyArg(), "p-1", "s-1", "t-1", 81.0, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO assignment_audit_log`).
		WithArgs(pgxmock.AnyArg(), "p-1", "s-2", "t-3", 58.5, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.WriteDiff(context.Background(), diff))
}

func TestAuditRepository_WriteDiff_RollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO assignment_audit_log`).
		WithArgs(pgxmock.AnyArg(), "p-2", "s-1", "t-1", 70.0, time.Time{}).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.WriteDiff(context.Background(), assignment.AuditDiff{
		ProposalID: "p-2",
		Entries:    []assignment.Assignment{{StudentID: "s-1", TeacherID: "t-1", Score: 70}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestAuditRepository_WriteDiff_EmptyIsNoop(t *testing.T) {
	repo := NewAuditRepository(newMock(t))
	assert.NoError(t, repo.WriteDiff(context.Background(), assignment.AuditDiff{ProposalID: "p-3"}))
}

func TestAuditRepository_ListByProposal(t *testing.T) {
	mock := newMock(t)
	repo := NewAuditRepository(mock)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM assignment_audit_log\s+WHERE proposal_id = \$1`).
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "proposal_id", "student_id", "teacher_id", "score", "applied_at"}).
			AddRow("a-1", "p-1", "s-1", "t-1", 81.0, at))

	records, err := repo.ListByProposal(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, shared.StudentID("s-1"), records[0].StudentID)
	assert.Equal(t, shared.TeacherID("t-1"), records[0].TeacherID)
	assert.Equal(t, 81.0, records[0].Score)
	assert.Equal(t, at, records[0].AppliedAt)
}
