// Package compatibility содержит чистый движок оценки совместимости
// учителя и ученика: листовые калькуляторы, агрегатор и генератор объяснений.
// Пакет не выполняет I/O и не хранит изменяемого состояния.
package compatibility

import (
	"errors"
	"fmt"
	"math"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHT TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Веса измерений и пороги нагрузки. Содержимое фиксировано на этапе компиляции,
// чтобы оценки были воспроизводимы между прогонами.
const (
	WeightMBTI          = 25.0
	WeightLearningStyle = 25.0
	WeightSaju          = 20.0
	WeightName          = 15.0
	MaxLoadBalance      = 15.0

	// NeutralSimilarity - значение измерения при отсутствии данных у любой стороны.
	NeutralSimilarity = 0.5

	// DefaultAverageLoad - значение averageLoad по умолчанию.
	DefaultAverageLoad = 15.0

	// SuccessThreshold - оценка, начиная с которой назначение считается успешным.
	SuccessThreshold = 60.0
)

// LoadTier - ступень функции нагрузки: при нагрузке ≤ MaxLoad начисляется Score.
type LoadTier struct {
	MaxLoad int
	Score   float64
}

// Weights - единая именованная таблица весов и порогов нагрузки.
type Weights struct {
	MBTI          float64
	LearningStyle float64
	Saju          float64
	Name          float64

	// LoadTiers упорядочены по возрастанию MaxLoad; выше последней ступени начисляется 0.
	LoadTiers [3]LoadTier
}

// DefaultWeights возвращает стандартную таблицу 25/25/20/15 + нагрузка 0-15.
func DefaultWeights() Weights {
	return Weights{
		MBTI:          WeightMBTI,
		LearningStyle: WeightLearningStyle,
		Saju:          WeightSaju,
		Name:          WeightName,
		LoadTiers: [3]LoadTier{
			{MaxLoad: 10, Score: MaxLoadBalance},
			{MaxLoad: 20, Score: 10},
			{MaxLoad: 30, Score: 5},
		},
	}
}

// MaxLoadScore возвращает максимальный вклад нагрузки.
func (w Weights) MaxLoadScore() float64 {
	best := 0.0
	for _, t := range w.LoadTiers {
		best = math.Max(best, t.Score)
	}
	return best
}

// Sum возвращает сумму максимумов всех пяти вкладов.
func (w Weights) Sum() float64 {
	return w.MBTI + w.LearningStyle + w.Saju + w.Name + w.MaxLoadScore()
}

// Validate проверяет, что веса неотрицательны, в сумме дают 100,
// а ступени нагрузки упорядочены.
func (w Weights) Validate() error {
	var errs []error

	for name, v := range map[string]float64{
		"mbti": w.MBTI, "learning_style": w.LearningStyle, "saju": w.Saju, "name": w.Name,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("weight %s must be non-negative, got %v", name, v))
		}
	}

	if sum := w.Sum(); math.Abs(sum-100) > 1e-9 {
		errs = append(errs, fmt.Errorf("weights must sum to 100, got %v", sum))
	}

	for i := 1; i < len(w.LoadTiers); i++ {
		if w.LoadTiers[i].MaxLoad <= w.LoadTiers[i-1].MaxLoad {
			errs = append(errs, fmt.Errorf("load tier %d must have a larger bound than tier %d", i, i-1))
		}
		if w.LoadTiers[i].Score > w.LoadTiers[i-1].Score {
			errs = append(errs, fmt.Errorf("load tier %d must not score higher than tier %d", i, i-1))
		}
	}

	return errors.Join(errs...)
}
