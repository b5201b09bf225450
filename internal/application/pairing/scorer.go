// Package pairing scores teacher-student pairs in bulk over a bounded worker
// pool. Profile fetches are collapsed per batch, and a failed pair is recorded
// on its cell without affecting the others.
package pairing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/afterschool-matching/internal/domain/assignment"
	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

var tracer = otel.Tracer("afterschool.pairing")

// DefaultWorkerPoolSize bounds concurrent pair computations.
const DefaultWorkerPoolSize = 8

// Config configures a Scorer.
type Config struct {
	// WorkerPoolSize caps concurrent pair computations, and with them the load
	// on the profile store.
	WorkerPoolSize int

	// AverageLoad is passed to the calculator with every pair.
	AverageLoad float64
}

// Scorer computes compatibility for grids of pairs.
type Scorer struct {
	source      profile.Source
	calc        *compatibility.Calculator
	poolSize    int
	averageLoad float64
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// NewScorer creates a Scorer. A nil calc uses compatibility.Default.
func NewScorer(source profile.Source, calc *compatibility.Calculator, cfg Config, m *metrics.Metrics, log *logger.Logger) *Scorer {
	if calc == nil {
		calc = compatibility.Default
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if cfg.AverageLoad <= 0 {
		cfg.AverageLoad = compatibility.DefaultAverageLoad
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scorer{
		source:      source,
		calc:        calc,
		poolSize:    cfg.WorkerPoolSize,
		averageLoad: cfg.AverageLoad,
		metrics:     m,
		log:         log.Named("pairing"),
	}
}

// Grid holds one PairResult per (student, teacher). Rows follow the student
// order and columns the teacher order given to ScoreGrid.
type Grid struct {
	Students []shared.StudentID
	Teachers []shared.TeacherID
	Rows     [][]assignment.PairResult
}

// Successful returns the scored pairs in row-major order.
func (g Grid) Successful() []assignment.PairResult {
	out := make([]assignment.PairResult, 0, len(g.Students)*len(g.Teachers))
	for _, row := range g.Rows {
		for _, r := range row {
			if r.OK() {
				out = append(out, r)
			}
		}
	}
	return out
}

// Failed returns the failed pairs in row-major order.
func (g Grid) Failed() []assignment.PairResult {
	var out []assignment.PairResult
	for _, row := range g.Rows {
		for _, r := range row {
			if !r.OK() {
				out = append(out, r)
			}
		}
	}
	return out
}

// ScoreGrid scores every student against every teacher. It never fails as a
// whole: each cell carries its own score or error.
func (s *Scorer) ScoreGrid(ctx context.Context, students []shared.StudentID, teachers []shared.TeacherID) Grid {
	ctx, span := tracer.Start(ctx, "pairing.ScoreGrid",
		trace.WithAttributes(
			attribute.Int("pairing.students", len(students)),
			attribute.Int("pairing.teachers", len(teachers)),
		),
	)
	defer span.End()

	start := time.Now()
	memo := newBatchMemo(s.source)

	grid := Grid{
		Students: students,
		Teachers: teachers,
		Rows:     make([][]assignment.PairResult, len(students)),
	}
	for i := range grid.Rows {
		grid.Rows[i] = make([]assignment.PairResult, len(teachers))
	}

	var g errgroup.Group
	g.SetLimit(s.poolSize)
	for i, sid := range students {
		for j, tid := range teachers {
			g.Go(func() error {
				grid.Rows[i][j] = s.scoreCell(ctx, memo, tid, sid)
				return nil
			})
		}
	}
	_ = g.Wait()

	failed := len(grid.Failed())
	span.SetAttributes(attribute.Int("pairing.failed", failed))
	s.log.Debug("grid scored",
		logger.Int("students", len(students)),
		logger.Int("teachers", len(teachers)),
		logger.Int("failed", failed),
		logger.Latency(time.Since(start)),
	)
	return grid
}

// ScorePair fetches both profiles and scores one pair.
func (s *Scorer) ScorePair(ctx context.Context, teacherID shared.TeacherID, studentID shared.StudentID) (compatibility.Score, error) {
	r := s.scoreCell(ctx, newBatchMemo(s.source), teacherID, studentID)
	return r.Score, r.Err
}

func (s *Scorer) scoreCell(ctx context.Context, memo *batchMemo, tid shared.TeacherID, sid shared.StudentID) assignment.PairResult {
	res := assignment.PairResult{StudentID: sid, TeacherID: tid}

	if err := ctx.Err(); err != nil {
		res.Err = s.fail(metrics.StageContext, tid, sid, err)
		return res
	}

	teacher, err := memo.teacher(ctx, tid)
	if err != nil {
		res.Err = s.fail(metrics.StageTeacher, tid, sid, err)
		return res
	}
	student, err := memo.student(ctx, sid)
	if err != nil {
		res.Err = s.fail(metrics.StageStudent, tid, sid, err)
		return res
	}

	res.Score = s.calc.Calculate(teacher, student, compatibility.WithAverageLoad(s.averageLoad))
	s.metrics.PairScored(res.Score.Overall)
	return res
}

func (s *Scorer) fail(stage string, tid shared.TeacherID, sid shared.StudentID, err error) error {
	s.metrics.PairFailed(stage)
	s.log.Warn("pair computation failed",
		logger.TeacherID(tid.String()),
		logger.StudentID(sid.String()),
		logger.String("stage", stage),
		logger.Err(err),
	)
	return shared.WrapError("matching", "ScorePair", shared.ErrPairComputation,
		stage+" failed for teacher "+tid.String()+" and student "+sid.String(), err)
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH MEMO
// ══════════════════════════════════════════════════════════════════════════════

type fetched[T any] struct {
	v   T
	err error
}

// batchMemo fetches each profile at most once per batch. Errors are memoised
// too, so one failing teacher fails its column without further upstream calls.
type batchMemo struct {
	source   profile.Source
	group    singleflight.Group
	mu       sync.Mutex
	students map[shared.StudentID]fetched[*profile.Student]
	teachers map[shared.TeacherID]fetched[*profile.Teacher]
}

func newBatchMemo(source profile.Source) *batchMemo {
	return &batchMemo{
		source:   source,
		students: make(map[shared.StudentID]fetched[*profile.Student]),
		teachers: make(map[shared.TeacherID]fetched[*profile.Teacher]),
	}
}

func (m *batchMemo) student(ctx context.Context, id shared.StudentID) (*profile.Student, error) {
	m.mu.Lock()
	f, ok := m.students[id]
	m.mu.Unlock()
	if ok {
		return f.v, f.err
	}

	v, err, _ := m.group.Do("student:"+id.String(), func() (any, error) {
		// A flight that finished between the lookup above and Do already stored it.
		m.mu.Lock()
		f, ok := m.students[id]
		m.mu.Unlock()
		if ok {
			return f.v, f.err
		}
		st, err := m.source.StudentProfile(ctx, id)
		m.mu.Lock()
		m.students[id] = fetched[*profile.Student]{v: st, err: err}
		m.mu.Unlock()
		return st, err
	})
	st, _ := v.(*profile.Student)
	return st, err
}

func (m *batchMemo) teacher(ctx context.Context, id shared.TeacherID) (*profile.Teacher, error) {
	m.mu.Lock()
	f, ok := m.teachers[id]
	m.mu.Unlock()
	if ok {
		return f.v, f.err
	}

	v, err, _ := m.group.Do("teacher:"+id.String(), func() (any, error) {
		m.mu.Lock()
		f, ok := m.teachers[id]
		m.mu.Unlock()
		if ok {
			return f.v, f.err
		}
		t, err := m.source.TeacherProfile(ctx, id)
		m.mu.Lock()
		m.teachers[id] = fetched[*profile.Teacher]{v: t, err: err}
		m.mu.Unlock()
		return t, err
	})
	t, _ := v.(*profile.Teacher)
	return t, err
}
