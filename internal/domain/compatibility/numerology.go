package compatibility

import (
	"github.com/alem-hub/afterschool-matching/internal/domain/profile"
)

// Таблица 81 числа: благоприятные числа структурных решёток имени.
var auspiciousNumbers = map[int]struct{}{
	1: {}, 3: {}, 5: {}, 6: {}, 7: {}, 8: {}, 11: {}, 13: {}, 15: {}, 16: {},
	17: {}, 18: {}, 21: {}, 23: {}, 24: {}, 25: {}, 29: {}, 31: {}, 32: {}, 33: {},
	35: {}, 37: {}, 38: {}, 39: {}, 41: {}, 45: {}, 47: {}, 48: {}, 52: {}, 57: {},
	61: {}, 63: {}, 65: {}, 67: {}, 68: {}, 81: {},
}

// Вклады отношения стихий и благоприятности чисел в оценку одной решётки.
const (
	gridRelationShare   = 0.6
	gridAuspiciousShare = 0.4
)

var relationScores = map[Relation]float64{
	RelationGenerating:  1.0,
	RelationSame:        0.8,
	RelationRestraining: 0.2,
}

// ReduceGridNumber сводит число решётки к диапазону 1..81 (после 81 счёт идёт заново).
func ReduceGridNumber(n int) int {
	if n < 0 {
		return 0
	}
	if n <= 81 {
		return n
	}
	return (n-1)%80 + 1
}

// IsAuspicious проверяет, благоприятно ли число решётки.
func IsAuspicious(n int) bool {
	_, ok := auspiciousNumbers[ReduceGridNumber(n)]
	return ok
}

// GridElement возвращает стихию числа по последней цифре:
// 1,2 дерево; 3,4 огонь; 5,6 земля; 7,8 металл; 9,0 вода.
func GridElement(n int) Element {
	d := ReduceGridNumber(n) % 10
	if d == 0 {
		return Water
	}
	return Element((d - 1) / 2)
}

// NameSimilarity сравнивает четыре решётки имени попарно (원-원, 형-형, 이-이, 정-정).
// Оценка пары решёток: 0.6·отношение стихий + 0.4·средняя благоприятность чисел;
// итог - среднее по четырём решёткам.
// Если хотя бы одного профиля нет или все решётки нулевые, возвращается нейтральное 0.5.
func NameSimilarity(teacher, student *profile.NameGrids) Similarity {
	if teacher == nil || student == nil || isBlank(teacher) || isBlank(student) {
		return neutral()
	}

	tv, sv := teacher.Values(), student.Values()
	total := 0.0
	for i := range tv {
		rel := relationScores[RelationBetween(GridElement(tv[i]), GridElement(sv[i]))]
		lucky := (boolScore(IsAuspicious(tv[i])) + boolScore(IsAuspicious(sv[i]))) / 2
		total += gridRelationShare*rel + gridAuspiciousShare*lucky
	}

	return measured(total / float64(len(tv)))
}

func isBlank(g *profile.NameGrids) bool {
	return g.Won <= 0 && g.Hyung <= 0 && g.Yi <= 0 && g.Jeong <= 0
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
