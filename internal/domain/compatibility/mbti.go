package compatibility

import (
	"math"

	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// MBTISimilarity сравнивает два процентных профиля MBTI.
// По каждой оси считается согласие 1 - |t - s| / 100, затем среднее по четырём осям.
// Вторые полюса пар дополняют первые до 100, поэтому достаточно E, S, T, J.
// Если хотя бы одного профиля нет, возвращается нейтральное 0.5.
func MBTISimilarity(teacher, student *profile.MBTIPercentages) Similarity {
	if teacher == nil || student == nil {
		return neutral()
	}

	axes := [4][2]float64{
		{teacher.E, student.E},
		{teacher.S, student.S},
		{teacher.T, student.T},
		{teacher.J, student.J},
	}

	total := 0.0
	for _, a := range axes {
		total += 1 - math.Abs(a[0]-a[1])/100
	}

	return measured(total / float64(len(axes)))
}
