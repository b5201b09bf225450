package pairing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

var errDown = errors.New("profile store down")

type stubSource struct {
	mu           sync.Mutex
	failTeachers map[shared.TeacherID]bool
	failStudents map[shared.StudentID]bool
	loads        map[shared.TeacherID]int
	teacherCalls map[shared.TeacherID]int
	studentCalls map[shared.StudentID]int
}

func newStubSource() *stubSource {
	return &stubSource{
		failTeachers: map[shared.TeacherID]bool{},
		failStudents: map[shared.StudentID]bool{},
		loads:        map[shared.TeacherID]int{},
		teacherCalls: map[shared.TeacherID]int{},
		studentCalls: map[shared.StudentID]int{},
	}
}

func (s *stubSource) StudentProfile(_ context.Context, id shared.StudentID) (*profile.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studentCalls[id]++
	if s.failStudents[id] {
		return nil, errDown
	}
	return &profile.Student{ID: id}, nil
}

func (s *stubSource) TeacherProfile(_ context.Context, id shared.TeacherID) (*profile.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teacherCalls[id]++
	if s.failTeachers[id] {
		return nil, errDown
	}
	return &profile.Teacher{ID: id, CurrentLoad: s.loads[id]}, nil
}

func studentIDs(n int) []shared.StudentID {
	out := make([]shared.StudentID, n)
	for i := range out {
		out[i] = shared.StudentID("s-" + string(rune('a'+i)))
	}
	return out
}

func TestScoreGrid_FailingTeacherColumn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := newStubSource()
	src.failTeachers["t-2"] = true

	s := NewScorer(src, nil, Config{WorkerPoolSize: 3}, nil, logger.FromZap(zap.New(core)))
	students := studentIDs(10)
	teachers := []shared.TeacherID{"t-1", "t-2", "t-3"}

	grid := s.ScoreGrid(context.Background(), students, teachers)

	require.Len(t, grid.Rows, 10)
	for i, row := range grid.Rows {
		require.Len(t, row, 3)
		assert.Equal(t, students[i], row[0].StudentID)
		assert.True(t, row[0].OK())
		assert.False(t, row[1].OK())
		assert.True(t, row[2].OK())

		assert.ErrorIs(t, row[1].Err, shared.ErrPairComputation)
		assert.ErrorIs(t, row[1].Err, errDown)
	}

	assert.Len(t, grid.Failed(), 10)
	assert.Len(t, grid.Successful(), 20)
	assert.Equal(t, 1, src.teacherCalls["t-2"], "failed fetch is memoised for the batch")
	assert.Equal(t, 1, src.studentCalls["s-a"])
	assert.Equal(t, 10, logs.FilterMessage("pair computation failed").Len())
}

func TestScoreGrid_EmptyProfilesScoreNeutral(t *testing.T) {
	s := NewScorer(newStubSource(), nil, Config{}, nil, nil)

	grid := s.ScoreGrid(context.Background(), []shared.StudentID{"s-1"}, []shared.TeacherID{"t-1"})

	require.True(t, grid.Rows[0][0].OK())
	assert.Equal(t, 57.5, grid.Rows[0][0].Score.Overall)
	assert.Equal(t, compatibility.DefaultAverageLoad, grid.Rows[0][0].Score.AverageLoad)
}

func TestScoreGrid_CancelledContextFailsPairs(t *testing.T) {
	src := newStubSource()
	s := NewScorer(src, nil, Config{WorkerPoolSize: 2}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	grid := s.ScoreGrid(ctx, studentIDs(3), []shared.TeacherID{"t-1", "t-2"})
	assert.Len(t, grid.Failed(), 6)
	assert.ErrorIs(t, grid.Rows[0][0].Err, context.Canceled)
	assert.Empty(t, src.teacherCalls)
}

func TestScorePair(t *testing.T) {
	src := newStubSource()
	src.loads["t-1"] = 25
	s := NewScorer(src, nil, Config{AverageLoad: 12}, nil, nil)

	score, err := s.ScorePair(context.Background(), "t-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, score.Breakdown.LoadBalance)
	assert.Equal(t, 12.0, score.AverageLoad)
	assert.Equal(t, score.Breakdown.Total(), score.Overall)

	src.failStudents["s-2"] = true
	_, err = s.ScorePair(context.Background(), "t-1", "s-2")
	assert.ErrorIs(t, err, shared.ErrPairComputation)
}
