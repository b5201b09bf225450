package assignment

import (
	"math"
	"sort"

	"github.com/alem-hub/afterschool-matching/internal/domain/compatibility"
	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEST-FIT SELECTION
// ══════════════════════════════════════════════════════════════════════════════

// PairResult - результат оценки одной пары: либо оценка, либо ошибка апстрима.
type PairResult struct {
	StudentID shared.StudentID
	TeacherID shared.TeacherID
	Score     compatibility.Score
	Err       error
}

// OK возвращает true, если пара успешно оценена.
func (r PairResult) OK() bool {
	return r.Err == nil
}

// BestFit выбирает лучшего учителя для одного ученика.
// candidates должны идти в порядке пула учителей: при равных оценках
// стабильная сортировка сохраняет этот порядок. Провалившиеся пары пропускаются.
// Возвращает false, если ни одна пара не оценена.
func BestFit(candidates []PairResult) (Assignment, bool) {
	ok := make([]PairResult, 0, len(candidates))
	for _, c := range candidates {
		if c.OK() {
			ok = append(ok, c)
		}
	}
	if len(ok) == 0 {
		return Assignment{}, false
	}

	sort.SliceStable(ok, func(i, j int) bool {
		return ok[i].Score.Overall > ok[j].Score.Overall
	})

	best := ok[0]
	return Assignment{
		StudentID: best.StudentID,
		TeacherID: best.TeacherID,
		Score:     best.Score.Overall,
	}, true
}

// SelectAssignments выбирает лучшую пару для каждого ученика.
// rows[i] - кандидаты i-го ученика в порядке пула. Порядок учеников сохраняется;
// ученики без единой успешной пары исключаются.
func SelectAssignments(rows [][]PairResult) []Assignment {
	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		if a, ok := BestFit(row); ok {
			out = append(out, a)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// Summary - статистика предложения.
// Инварианты: AssignedCount + ExcludedCount == TotalStudents,
// SuccessCount + FailureCount == AssignedCount.
type Summary struct {
	TotalStudents int     `json:"totalStudents"`
	AssignedCount int     `json:"assignedCount"`
	ExcludedCount int     `json:"excludedCount"`
	SuccessCount  int     `json:"successCount"`
	FailureCount  int     `json:"failureCount"`
	AverageScore  float64 `json:"averageScore"`
	MinScore      float64 `json:"minScore"`
	MaxScore      float64 `json:"maxScore"`
}

// Summarize считает статистику по выбранным назначениям.
// Успех - оценка не ниже compatibility.SuccessThreshold.
func Summarize(totalStudents int, assignments []Assignment) Summary {
	s := Summary{
		TotalStudents: totalStudents,
		AssignedCount: len(assignments),
		ExcludedCount: totalStudents - len(assignments),
	}
	if len(assignments) == 0 {
		return s
	}

	s.MinScore = math.Inf(1)
	s.MaxScore = math.Inf(-1)
	total := 0.0
	for _, a := range assignments {
		if a.Score >= compatibility.SuccessThreshold {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		total += a.Score
		s.MinScore = math.Min(s.MinScore, a.Score)
		s.MaxScore = math.Max(s.MaxScore, a.Score)
	}
	s.AverageScore = total / float64(len(assignments))

	return s
}

// SuccessRate возвращает долю успешных назначений среди назначенных.
func (s Summary) SuccessRate() float64 {
	if s.AssignedCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.AssignedCount)
}
