package compatibility

import (
	"math"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// Similarity - сырое значение измерения в [0,1] и признак того,
// что обе стороны предоставили данные (иначе значение нейтральное).
type Similarity struct {
	Value    float64 `json:"value"`
	Measured bool    `json:"measured"`
}

func neutral() Similarity {
	return Similarity{Value: NeutralSimilarity}
}

func measured(v float64) Similarity {
	return Similarity{Value: clamp01(v), Measured: true}
}

// Similarities - сырые (невзвешенные) значения четырёх измерений.
type Similarities struct {
	MBTI          Similarity `json:"mbti"`
	LearningStyle Similarity `json:"learningStyle"`
	Saju          Similarity `json:"saju"`
	Name          Similarity `json:"name"`
}

// Breakdown - уже взвешенные вклады. Максимумы 25/25/20/15/15.
type Breakdown struct {
	MBTI          float64 `json:"mbti"`
	LearningStyle float64 `json:"learningStyle"`
	Saju          float64 `json:"saju"`
	Name          float64 `json:"name"`
	LoadBalance   float64 `json:"loadBalance"`
}

// Total суммирует вклады в фиксированном порядке.
// Overall всегда равен результату этого метода бит в бит.
func (b Breakdown) Total() float64 {
	return b.MBTI + b.LearningStyle + b.Saju + b.Name + b.LoadBalance
}

// Score - результат оценки пары учитель-ученик.
type Score struct {
	TeacherID    shared.TeacherID `json:"teacherId"`
	StudentID    shared.StudentID `json:"studentId"`
	Overall      float64          `json:"overall"`
	Breakdown    Breakdown        `json:"breakdown"`
	Similarities Similarities     `json:"similarities"`
	Reasons      []string         `json:"reasons"`

	// AverageLoad - принятое значение averageLoad; формулой пока не используется.
	AverageLoad float64 `json:"averageLoad"`
}

// IsSuccess возвращает true, если оценка не ниже порога успеха.
func (s Score) IsSuccess() bool {
	return s.Overall >= SuccessThreshold
}

// Quality возвращает качественную оценку совместимости.
func (s Score) Quality() Quality {
	return QualityOf(s.Overall)
}

// Quality определяет качество совместимости.
type Quality string

const (
	// QualityExcellent - отличная совместимость (80-100).
	QualityExcellent Quality = "excellent"

	// QualityGood - хорошая совместимость (60-79).
	QualityGood Quality = "good"

	// QualityFair - удовлетворительная совместимость (40-59).
	QualityFair Quality = "fair"

	// QualityPoor - низкая совместимость (20-39).
	QualityPoor Quality = "poor"

	// QualityNone - нет совместимости (0-19).
	QualityNone Quality = "none"
)

// QualityOf переводит числовую оценку в качественную шкалу.
func QualityOf(overall float64) Quality {
	switch {
	case overall >= 80:
		return QualityExcellent
	case overall >= 60:
		return QualityGood
	case overall >= 40:
		return QualityFair
	case overall >= 20:
		return QualityPoor
	default:
		return QualityNone
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
