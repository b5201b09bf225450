package compatibility

import (
	"math"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// Вклады составляющих оценки Саджу.
const (
	sajuSimilarityShare = 0.5
	sajuGenerationShare = 0.3
	sajuRestraintShare  = 0.2
)

// SajuSimilarity сравнивает два распределения пяти стихий.
//
// Распределения нормируются в доли. Итог складывается из:
//   - сходства распределений 1 - ½·Σ|pᵗ - pˢ| (доля 0.5);
//   - взаимного порождения: насколько стихии одной стороны питают стихии другой (доля 0.3);
//   - отсутствия взаимного подавления (доля 0.2).
//
// Если хотя бы одного распределения нет или оно нулевое, возвращается нейтральное 0.5.
func SajuSimilarity(teacher, student *profile.FiveElements) Similarity {
	if teacher == nil || student == nil {
		return neutral()
	}

	pt, okT := proportions(teacher.Values())
	ps, okS := proportions(student.Values())
	if !okT || !okS {
		return neutral()
	}

	distance := 0.0
	for i := range pt {
		distance += math.Abs(pt[i] - ps[i])
	}
	similarity := 1 - distance/2

	generation := crossFlow(pt, ps, Element.Generates)
	restraint := crossFlow(pt, ps, Element.Restrains)

	return measured(sajuSimilarityShare*similarity +
		sajuGenerationShare*generation +
		sajuRestraintShare*(1-restraint))
}

// crossFlow считает симметричный поток между распределениями вдоль цикла next:
// Σ (pᵗ[i]·pˢ[next(i)] + pˢ[i]·pᵗ[next(i)]). Результат в [0,1]: в пятичленном
// цикле next(i) и обратный шаг различны, поэтому вклад pᵗ[i] не превышает
// pᵗ[i]·(pˢ[next(i)] + pˢ[prev(i)]) ≤ pᵗ[i]. Единица достигается, когда вся
// стихия одной стороны порождает (подавляет) всю стихию другой.
func crossFlow(pt, ps [elementCount]float64, next func(Element) Element) float64 {
	flow := 0.0
	for i := Element(0); i < elementCount; i++ {
		j := next(i)
		flow += pt[i]*ps[j] + ps[i]*pt[j]
	}
	return math.Min(flow, 1)
}

func proportions(v [elementCount]float64) ([elementCount]float64, bool) {
	var out [elementCount]float64
	total := 0.0
	for _, x := range v {
		if x > 0 {
			total += x
		}
	}
	if total <= 0 {
		return out, false
	}
	for i, x := range v {
		if x > 0 {
			out[i] = x / total
		}
	}
	return out, true
}
