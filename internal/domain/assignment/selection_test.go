package assignment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

func pair(student, teacher string, overall float64) PairResult {
	return PairResult{
		StudentID: shared.StudentID(student),
		TeacherID: shared.TeacherID(teacher),
		Score:     compatibility.Score{Overall: overall},
	}
}

func failed(student, teacher string) PairResult {
	return PairResult{
		StudentID: shared.StudentID(student),
		TeacherID: shared.TeacherID(teacher),
		Err:       errors.New("upstream down"),
	}
}

func TestBestFit(t *testing.T) {
	t.Run("highest wins", func(t *testing.T) {
		a, ok := BestFit([]PairResult{pair("s", "t1", 50), pair("s", "t2", 71), pair("s", "t3", 64)})
		assert.True(t, ok)
		assert.Equal(t, shared.TeacherID("t2"), a.TeacherID)
		assert.Equal(t, 71.0, a.Score)
	})

	t.Run("ties keep pool order", func(t *testing.T) {
		a, ok := BestFit([]PairResult{pair("s", "t1", 40), pair("s", "t2", 57.5), pair("s", "t3", 57.5)})
		assert.True(t, ok)
		assert.Equal(t, shared.TeacherID("t2"), a.TeacherID)

		a, _ = BestFit([]PairResult{pair("s", "t3", 57.5), pair("s", "t2", 57.5)})
		assert.Equal(t, shared.TeacherID("t3"), a.TeacherID)
	})

	t.Run("failed pairs are skipped", func(t *testing.T) {
		a, ok := BestFit([]PairResult{failed("s", "t1"), pair("s", "t2", 20)})
		assert.True(t, ok)
		assert.Equal(t, shared.TeacherID("t2"), a.TeacherID)
	})

	t.Run("all failed", func(t *testing.T) {
		_, ok := BestFit([]PairResult{failed("s", "t1"), failed("s", "t2")})
		assert.False(t, ok)

		_, ok = BestFit(nil)
		assert.False(t, ok)
	})
}

func TestSelectAssignments_SummaryInvariants(t *testing.T) {
	rows := [][]PairResult{
		{pair("s1", "t1", 80), pair("s1", "t2", 30)},
		{failed("s2", "t1"), failed("s2", "t2")},
		{failed("s3", "t1"), pair("s3", "t2", 59.99)},
		{pair("s4", "t1", 60), pair("s4", "t2", 60)},
	}

	assignments := SelectAssignments(rows)
	assert.Equal(t, []Assignment{
		{StudentID: "s1", TeacherID: "t1", Score: 80},
		{StudentID: "s3", TeacherID: "t2", Score: 59.99},
		{StudentID: "s4", TeacherID: "t1", Score: 60},
	}, assignments)

	s := Summarize(len(rows), assignments)
	assert.Equal(t, s.TotalStudents, s.AssignedCount+s.ExcludedCount)
	assert.Equal(t, s.AssignedCount, s.SuccessCount+s.FailureCount)
	assert.Equal(t, 1, s.ExcludedCount)
	assert.Equal(t, 2, s.SuccessCount)
	assert.Equal(t, 1, s.FailureCount)
	assert.InDelta(t, 2.0/3.0, s.SuccessRate(), 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(4, nil)

	assert.Equal(t, Summary{TotalStudents: 4, ExcludedCount: 4}, s)
	assert.Equal(t, 0.0, s.SuccessRate())
}
