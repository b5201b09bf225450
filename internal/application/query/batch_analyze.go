// Package query contains read operations (CQRS - Queries).
// Queries score pairs on demand and never change state.
package query

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/afterschool-matching/internal/application/pairing"
	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/metrics"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

var tracer = otel.Tracer("afterschool.query")

// ══════════════════════════════════════════════════════════════════════════════
// BATCH ANALYZE COMPATIBILITY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// BatchAnalyzeQuery scores the given students against every active teacher.
type BatchAnalyzeQuery struct {
	StudentIDs []string
}

// Validate validates the query.
func (q BatchAnalyzeQuery) Validate() error {
	if len(q.StudentIDs) == 0 {
		return shared.NewDomainError("matching", "BatchAnalyze", shared.ErrEmptyValue, "at least one student_id is required")
	}
	return nil
}

// PairFailure describes a pair that could not be scored.
type PairFailure struct {
	StudentID shared.StudentID `json:"studentId"`
	TeacherID shared.TeacherID `json:"teacherId"`
	Error     string           `json:"error"`
}

// BatchAnalyzeResult contains every scored pair and every failure.
type BatchAnalyzeResult struct {
	// Scores are ordered by student, then by teacher in directory order.
	Scores   []compatibility.Score `json:"scores"`
	Failures []PairFailure         `json:"failures"`

	StudentCount int `json:"studentCount"`
	TeacherCount int `json:"teacherCount"`
}

// BatchAnalyzeHandler handles BatchAnalyzeQuery.
type BatchAnalyzeHandler struct {
	directory profile.Directory
	scorer    GridScorer
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// GridScorer scores student x teacher grids.
type GridScorer interface {
	ScoreGrid(ctx context.Context, students []shared.StudentID, teachers []shared.TeacherID) pairing.Grid
}

// NewBatchAnalyzeHandler creates a new BatchAnalyzeHandler.
func NewBatchAnalyzeHandler(directory profile.Directory, scorer GridScorer, m *metrics.Metrics, log *logger.Logger) *BatchAnalyzeHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &BatchAnalyzeHandler{
		directory: directory,
		scorer:    scorer,
		metrics:   m,
		log:       log.Named("batch_analyze"),
	}
}

// Handle executes the query. Pair failures are reported in the result and
// never fail the query.
func (h *BatchAnalyzeHandler) Handle(ctx context.Context, q BatchAnalyzeQuery) (*BatchAnalyzeResult, error) {
	ctx, span := tracer.Start(ctx, "query.BatchAnalyze",
		trace.WithAttributes(attribute.Int("scope.students", len(q.StudentIDs))))
	defer span.End()

	start := time.Now()
	defer func() { h.metrics.ObserveBatch("analyze", time.Since(start)) }()

	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("batch_analyze: validation failed: %w", err)
	}

	students := make([]shared.StudentID, 0, len(q.StudentIDs))
	seen := make(map[shared.StudentID]struct{}, len(q.StudentIDs))
	for _, raw := range q.StudentIDs {
		id, err := shared.NewStudentID(raw)
		if err != nil {
			return nil, fmt.Errorf("batch_analyze: validation failed: %w", err)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			students = append(students, id)
		}
	}

	teachers, err := h.directory.ActiveTeachers(ctx)
	if err != nil {
		return nil, fmt.Errorf("batch_analyze: failed to list teachers: %w", err)
	}

	grid := h.scorer.ScoreGrid(ctx, students, teachers)

	result := &BatchAnalyzeResult{
		Scores:       make([]compatibility.Score, 0, len(students)*len(teachers)),
		StudentCount: len(students),
		TeacherCount: len(teachers),
	}
	for _, row := range grid.Rows {
		for _, r := range row {
			if r.OK() {
				result.Scores = append(result.Scores, r.Score)
				continue
			}
			result.Failures = append(result.Failures, PairFailure{
				StudentID: r.StudentID,
				TeacherID: r.TeacherID,
				Error:     r.Err.Error(),
			})
		}
	}

	span.SetAttributes(
		attribute.Int("pairs.scored", len(result.Scores)),
		attribute.Int("pairs.failed", len(result.Failures)),
	)
	h.log.Info("batch analyzed",
		logger.Int("students", len(students)),
		logger.Int("teachers", len(teachers)),
		logger.Int("scored", len(result.Scores)),
		logger.Int("failed", len(result.Failures)),
		logger.Latency(time.Since(start)),
	)
	return result, nil
}
