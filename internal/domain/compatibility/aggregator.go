package compatibility

import (
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Option настраивает отдельный вызов Calculate.
type Option func(*calcOptions)

type calcOptions struct {
	averageLoad float64
}

// WithAverageLoad передаёт среднюю нагрузку по организации.
// Значение сохраняется в результате, но в формулу пока не входит.
func WithAverageLoad(v float64) Option {
	return func(o *calcOptions) {
		o.averageLoad = v
	}
}

// Calculator - агрегатор оценки совместимости с фиксированной таблицей весов.
// Безопасен для конкурентного использования: состояние не изменяется.
type Calculator struct {
	weights Weights
}

// NewCalculator создаёт агрегатор с заданной таблицей весов.
func NewCalculator(w Weights) *Calculator {
	return &Calculator{weights: w}
}

// Default - агрегатор со стандартной таблицей весов.
var Default = NewCalculator(DefaultWeights())

// Weights возвращает таблицу весов агрегатора.
func (c *Calculator) Weights() Weights {
	return c.weights
}

// Calculate оценивает пару учитель-ученик стандартным агрегатором.
func Calculate(teacher *profile.Teacher, student *profile.Student, opts ...Option) Score {
	return Default.Calculate(teacher, student, opts...)
}

// Calculate оценивает пару учитель-ученик.
// Никогда не возвращает ошибку: отсутствующие части профилей дают нейтральные значения.
// Входные данные должны быть провалидированы на границе приёма.
func (c *Calculator) Calculate(teacher *profile.Teacher, student *profile.Student, opts ...Option) Score {
	o := calcOptions{averageLoad: DefaultAverageLoad}
	for _, opt := range opts {
		opt(&o)
	}

	var tp, sp *profile.PersonalityProfile
	load := 0
	score := Score{AverageLoad: o.averageLoad}

	if teacher != nil {
		score.TeacherID = teacher.ID
		tp = teacher.Personality
		load = teacher.CurrentLoad
	}
	if student != nil {
		score.StudentID = student.ID
		sp = student.Personality
	}

	score.Similarities = Similarities{
		MBTI:          MBTISimilarity(tp.MBTIPercentages(), sp.MBTIPercentages()),
		LearningStyle: LearningStyleSimilarity(tp.MBTIPercentages(), sp.MBTIPercentages()),
		Saju:          SajuSimilarity(tp.Saju(), sp.Saju()),
		Name:          NameSimilarity(tp.Grids(), sp.Grids()),
	}

	w := c.weights
	score.Breakdown = Breakdown{
		MBTI:          score.Similarities.MBTI.Value * w.MBTI,
		LearningStyle: score.Similarities.LearningStyle.Value * w.LearningStyle,
		Saju:          score.Similarities.Saju.Value * w.Saju,
		Name:          score.Similarities.Name.Value * w.Name,
		LoadBalance:   w.LoadBalanceScore(load),
	}
	score.Overall = score.Breakdown.Total()
	score.Reasons = Explain(score.Breakdown, score.Similarities)

	return score
}
