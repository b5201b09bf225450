package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COMPATIBILITY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetCompatibilityQuery scores a single teacher-student pair.
type GetCompatibilityQuery struct {
	TeacherID string
	StudentID string
}

// GetCompatibilityResult is the score with its quality label.
type GetCompatibilityResult struct {
	Score   compatibility.Score
	Quality compatibility.Quality
}

// PairScorer scores one pair.
type PairScorer interface {
	ScorePair(ctx context.Context, teacherID shared.TeacherID, studentID shared.StudentID) (compatibility.Score, error)
}

// GetCompatibilityHandler handles GetCompatibilityQuery.
type GetCompatibilityHandler struct {
	scorer PairScorer
}

// NewGetCompatibilityHandler creates a new GetCompatibilityHandler.
func NewGetCompatibilityHandler(scorer PairScorer) *GetCompatibilityHandler {
	return &GetCompatibilityHandler{scorer: scorer}
}

// Handle executes the query.
func (h *GetCompatibilityHandler) Handle(ctx context.Context, q GetCompatibilityQuery) (_ *GetCompatibilityResult, err error) {
	ctx, span := tracer.Start(ctx, "query.GetCompatibility",
		trace.WithAttributes(
			attribute.String("teacher.id", q.TeacherID),
			attribute.String("student.id", q.StudentID),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "score failed")
		}
		span.End()
	}()

	teacherID, err := shared.NewTeacherID(q.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("get_compatibility: validation failed: %w", err)
	}
	studentID, err := shared.NewStudentID(q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_compatibility: validation failed: %w", err)
	}

	score, err := h.scorer.ScorePair(ctx, teacherID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_compatibility: %w", err)
	}

	span.SetAttributes(attribute.Float64("score.overall", score.Overall))
	return &GetCompatibilityResult{Score: score, Quality: score.Quality()}, nil
}
