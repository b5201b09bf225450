// Package profile содержит value objects личностных профилей учителей и учеников.
// Профили производятся внешними аналитическими движками и здесь только читаются.
package profile

import (
	"math"
	"strings"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MBTI
// ══════════════════════════════════════════════════════════════════════════════

// MBTIPercentages - процентное распределение по восьми полюсам MBTI.
// Пары полюсов (E/I, S/N, T/F, J/P) в сумме дают 100.
type MBTIPercentages struct {
	E float64 `json:"E" yaml:"E" validate:"gte=0,lte=100"`
	I float64 `json:"I" yaml:"I" validate:"gte=0,lte=100"`
	S float64 `json:"S" yaml:"S" validate:"gte=0,lte=100"`
	N float64 `json:"N" yaml:"N" validate:"gte=0,lte=100"`
	T float64 `json:"T" yaml:"T" validate:"gte=0,lte=100"`
	F float64 `json:"F" yaml:"F" validate:"gte=0,lte=100"`
	J float64 `json:"J" yaml:"J" validate:"gte=0,lte=100"`
	P float64 `json:"P" yaml:"P" validate:"gte=0,lte=100"`
}

// PairSumTolerance - допустимое отклонение суммы пары полюсов от 100.
const PairSumTolerance = 0.5

// FromLetterMap строит проценты из карты вида {"E": 60, "I": 40, ...},
// как её отдают движки анализа. Отсутствующие буквы считаются нулём.
func FromLetterMap(m map[string]float64) MBTIPercentages {
	get := func(k string) float64 {
		if v, ok := m[k]; ok {
			return v
		}
		return m[strings.ToLower(k)]
	}
	return MBTIPercentages{
		E: get("E"), I: get("I"),
		S: get("S"), N: get("N"),
		T: get("T"), F: get("F"),
		J: get("J"), P: get("P"),
	}
}

// PairSumsValid проверяет, что каждая пара полюсов даёт 100 (с допуском).
func (p MBTIPercentages) PairSumsValid() bool {
	for _, sum := range [4]float64{p.E + p.I, p.S + p.N, p.T + p.F, p.J + p.P} {
		if math.Abs(sum-100) > PairSumTolerance {
			return false
		}
	}
	return true
}

// MBTIProfile - тип MBTI и процентное распределение.
type MBTIProfile struct {
	Type        string          `json:"type" yaml:"type" validate:"omitempty,len=4,alpha"`
	Percentages MBTIPercentages `json:"percentages" yaml:"percentages"`
}

// DerivedType возвращает четырёхбуквенный код по доминирующим полюсам.
// При равенстве выбирается первая буква пары (E, S, T, J).
func (m MBTIProfile) DerivedType() string {
	p := m.Percentages
	pick := func(a, b float64, la, lb byte) byte {
		if b > a {
			return lb
		}
		return la
	}
	return string([]byte{
		pick(p.E, p.I, 'E', 'I'),
		pick(p.S, p.N, 'S', 'N'),
		pick(p.T, p.F, 'T', 'F'),
		pick(p.J, p.P, 'J', 'P'),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SAJU / NAME NUMEROLOGY
// ══════════════════════════════════════════════════════════════════════════════

// FiveElements - распределение пяти стихий Саджу.
type FiveElements struct {
	Wood  float64 `json:"wood" yaml:"wood" validate:"gte=0"`
	Fire  float64 `json:"fire" yaml:"fire" validate:"gte=0"`
	Earth float64 `json:"earth" yaml:"earth" validate:"gte=0"`
	Metal float64 `json:"metal" yaml:"metal" validate:"gte=0"`
	Water float64 `json:"water" yaml:"water" validate:"gte=0"`
}

// Values возвращает значения в порядке цикла порождения:
// дерево, огонь, земля, металл, вода.
func (f FiveElements) Values() [5]float64 {
	return [5]float64{f.Wood, f.Fire, f.Earth, f.Metal, f.Water}
}

// Total возвращает сумму всех стихий.
func (f FiveElements) Total() float64 {
	return f.Wood + f.Fire + f.Earth + f.Metal + f.Water
}

// NameGrids - четыре структурных числа имени (원격, 형격, 이격, 정격).
type NameGrids struct {
	Won   int `json:"won" yaml:"won" validate:"gte=0"`
	Hyung int `json:"hyung" yaml:"hyung" validate:"gte=0"`
	Yi    int `json:"yi" yaml:"yi" validate:"gte=0"`
	Jeong int `json:"jeong" yaml:"jeong" validate:"gte=0"`
}

// Values возвращает решётки в фиксированном порядке.
func (g NameGrids) Values() [4]int {
	return [4]int{g.Won, g.Hyung, g.Yi, g.Jeong}
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONALITY PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// PersonalityProfile - снимок личностного профиля человека.
// Любая часть может отсутствовать (nil): это не ошибка.
type PersonalityProfile struct {
	MBTI         *MBTIProfile  `json:"mbti,omitempty" yaml:"mbti,omitempty" validate:"omitempty"`
	FiveElements *FiveElements `json:"sajuFiveElements,omitempty" yaml:"sajuFiveElements,omitempty" validate:"omitempty"`
	NameGrids    *NameGrids    `json:"nameGrids,omitempty" yaml:"nameGrids,omitempty" validate:"omitempty"`

	// Version - монотонно растущая версия снимка (растёт при каждом upsert).
	Version int64 `json:"version,omitempty" yaml:"version,omitempty"`
}

// IsEmpty возвращает true, если ни одна часть профиля не заполнена.
func (p *PersonalityProfile) IsEmpty() bool {
	return p == nil || (p.MBTI == nil && p.FiveElements == nil && p.NameGrids == nil)
}

// MBTIPercentages возвращает проценты MBTI или nil.
func (p *PersonalityProfile) MBTIPercentages() *MBTIPercentages {
	if p == nil || p.MBTI == nil {
		return nil
	}
	return &p.MBTI.Percentages
}

// Saju возвращает распределение стихий или nil.
func (p *PersonalityProfile) Saju() *FiveElements {
	if p == nil {
		return nil
	}
	return p.FiveElements
}

// Grids возвращает решётки имени или nil.
func (p *PersonalityProfile) Grids() *NameGrids {
	if p == nil {
		return nil
	}
	return p.NameGrids
}

// Student - ученик как ссылка по ID плюс снимок профиля.
type Student struct {
	ID          shared.StudentID    `json:"id" yaml:"id"`
	Personality *PersonalityProfile `json:"personality,omitempty" yaml:"personality,omitempty"`
}

// Teacher - учитель как ссылка по ID, снимок профиля и текущая нагрузка.
type Teacher struct {
	ID          shared.TeacherID    `json:"id" yaml:"id"`
	Personality *PersonalityProfile `json:"personality,omitempty" yaml:"personality,omitempty"`

	// CurrentLoad - число закреплённых учеников, отсутствие трактуется как 0.
	CurrentLoad int `json:"currentLoad" yaml:"currentLoad" validate:"gte=0"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAMPING (ingestion boundary)
// ══════════════════════════════════════════════════════════════════════════════

// Adjustment - запись о том, какое поле было приведено к допустимому диапазону.
type Adjustment struct {
	Field string
	From  float64
	To    float64
}

// Clamp возвращает копию профиля с приведёнными к допустимым диапазонам
// значениями и список выполненных корректировок. Исходный профиль не меняется.
func (p *PersonalityProfile) Clamp() (*PersonalityProfile, []Adjustment) {
	if p == nil {
		return nil, nil
	}

	out := &PersonalityProfile{Version: p.Version}
	var adj []Adjustment

	if p.MBTI != nil {
		m := *p.MBTI
		m.Percentages, adj = clampPercentages(m.Percentages, adj)
		out.MBTI = &m
	}

	if p.FiveElements != nil {
		f := *p.FiveElements
		for _, e := range []struct {
			name string
			v    *float64
		}{
			{"wood", &f.Wood}, {"fire", &f.Fire}, {"earth", &f.Earth},
			{"metal", &f.Metal}, {"water", &f.Water},
		} {
			if *e.v < 0 || math.IsNaN(*e.v) {
				adj = append(adj, Adjustment{Field: "sajuFiveElements." + e.name, From: *e.v, To: 0})
				*e.v = 0
			}
		}
		out.FiveElements = &f
	}

	if p.NameGrids != nil {
		g := *p.NameGrids
		for _, e := range []struct {
			name string
			v    *int
		}{
			{"won", &g.Won}, {"hyung", &g.Hyung}, {"yi", &g.Yi}, {"jeong", &g.Jeong},
		} {
			if *e.v < 0 {
				adj = append(adj, Adjustment{Field: "nameGrids." + e.name, From: float64(*e.v), To: 0})
				*e.v = 0
			}
		}
		out.NameGrids = &g
	}

	return out, adj
}

// ClampLoad приводит нагрузку учителя к неотрицательному значению.
func ClampLoad(load int) int {
	if load < 0 {
		return 0
	}
	return load
}

func clampPercentages(p MBTIPercentages, adj []Adjustment) (MBTIPercentages, []Adjustment) {
	pairs := []struct {
		a, b   *float64
		la, lb string
	}{
		{&p.E, &p.I, "E", "I"},
		{&p.S, &p.N, "S", "N"},
		{&p.T, &p.F, "T", "F"},
		{&p.J, &p.P, "J", "P"},
	}

	for _, pr := range pairs {
		for _, side := range []struct {
			v *float64
			l string
		}{{pr.a, pr.la}, {pr.b, pr.lb}} {
			before := *side.v
			switch {
			case math.IsNaN(before) || before < 0:
				*side.v = 0
			case before > 100:
				*side.v = 100
			}
			if *side.v != before {
				adj = append(adj, Adjustment{Field: "mbti.percentages." + side.l, From: before, To: *side.v})
			}
		}

		// Пара нормируется к 100, если её сумма ушла за допуск.
		sum := *pr.a + *pr.b
		if sum > 0 && math.Abs(sum-100) > PairSumTolerance {
			fromA, fromB := *pr.a, *pr.b
			*pr.a = fromA / sum * 100
			*pr.b = 100 - *pr.a
			adj = append(adj,
				Adjustment{Field: "mbti.percentages." + pr.la, From: fromA, To: *pr.a},
				Adjustment{Field: "mbti.percentages." + pr.lb, From: fromB, To: *pr.b},
			)
		}
	}

	return p, adj
}
