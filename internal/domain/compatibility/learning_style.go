package compatibility

import (
	"math"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// LearningStyle - четырёхмерный вектор стиля обучения (VARK),
// выводимый из процентов MBTI, а не из отдельного опроса.
type LearningStyle struct {
	Visual      float64 `json:"visual"`
	Auditory    float64 `json:"auditory"`
	ReadWrite   float64 `json:"readWrite"`
	Kinesthetic float64 `json:"kinesthetic"`
}

// DeriveLearningStyle строит вектор стиля обучения:
// visual = S*0.6 + J*0.4, auditory = E, readWrite = I, kinesthetic = N*0.6 + P*0.4.
func DeriveLearningStyle(p profile.MBTIPercentages) LearningStyle {
	return LearningStyle{
		Visual:      p.S*0.6 + p.J*0.4,
		Auditory:    p.E,
		ReadWrite:   p.I,
		Kinesthetic: p.N*0.6 + p.P*0.4,
	}
}

func (v LearningStyle) components() [4]float64 {
	return [4]float64{v.Visual, v.Auditory, v.ReadWrite, v.Kinesthetic}
}

// Magnitude возвращает евклидову длину вектора.
func (v LearningStyle) Magnitude() float64 {
	sum := 0.0
	for _, c := range v.components() {
		sum += c * c
	}
	return math.Sqrt(sum)
}

// Dominant возвращает название доминирующей компоненты.
func (v LearningStyle) Dominant() string {
	names := [4]string{"visual", "auditory", "readWrite", "kinesthetic"}
	comps := v.components()
	best := 0
	for i := 1; i < len(comps); i++ {
		if comps[i] > comps[best] {
			best = i
		}
	}
	return names[best]
}

// CosineSimilarity возвращает косинус угла между векторами, ограниченный [0,1].
// Нулевая длина любого вектора даёт нейтральное 0.5.
func CosineSimilarity(a, b LearningStyle) Similarity {
	ma, mb := a.Magnitude(), b.Magnitude()
	if ma == 0 || mb == 0 {
		return neutral()
	}

	ac, bc := a.components(), b.components()
	dot := 0.0
	for i := range ac {
		dot += ac[i] * bc[i]
	}

	return measured(dot / (ma * mb))
}

// LearningStyleSimilarity выводит векторы обеих сторон и сравнивает их.
// Если хотя бы одного профиля нет, возвращается нейтральное 0.5.
func LearningStyleSimilarity(teacher, student *profile.MBTIPercentages) Similarity {
	if teacher == nil || student == nil {
		return neutral()
	}
	return CosineSimilarity(DeriveLearningStyle(*teacher), DeriveLearningStyle(*student))
}
