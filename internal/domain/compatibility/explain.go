package compatibility

// ══════════════════════════════════════════════════════════════════════════════
// EXPLAINABILITY
//
// Правила применяются в фиксированном порядке, чтобы вывод был стабилен
// между прогонами и пригоден для golden-тестов:
// 1. MBTI (4 ступени)           4. Имя (1 ступень)
// 2. Стиль обучения (2 ступени) 5. Нагрузка (3 ступени)
// 3. Саджу (2 ступени)          6. Комбинированный бонус
// 7. Общая причина, если не сработало ни одно личностное правило.
//
// Правила 1-4 срабатывают только для измеренных измерений: нейтральное
// значение по умолчанию не порождает причин.
// ══════════════════════════════════════════════════════════════════════════════

// Пороги правил объяснения.
const (
	mbtiHighThreshold     = 0.8
	mbtiGoodThreshold     = 0.6
	mbtiModerateThreshold = 0.4

	styleHighThreshold = 0.8
	styleGoodThreshold = 0.5

	sajuHighThreshold = 0.7
	sajuGoodThreshold = 0.5

	nameGoodThreshold = 0.7

	loadLightThreshold    = 15.0
	loadModerateThreshold = 10.0
	loadHeavyThreshold    = 5.0

	combinedBonusThreshold = 40.0
)

// Тексты причин, показываемые пользователю.
const (
	ReasonMBTIHigh     = "Personality profiles (MBTI) are highly aligned, so communication should feel natural."
	ReasonMBTIGood     = "Personality profiles (MBTI) are well aligned."
	ReasonMBTIModerate = "Personality profiles (MBTI) are moderately aligned; some adjustment of teaching approach may help."
	ReasonMBTILow      = "Personality profiles (MBTI) differ noticeably, which can broaden the student's perspective."

	ReasonStyleHigh = "Learning styles match very closely."
	ReasonStyleGood = "Learning styles are compatible."

	ReasonSajuHigh = "Five-element (Saju) energies complement each other strongly."
	ReasonSajuGood = "Five-element (Saju) energies are in balance."

	ReasonNameGood = "Name numerology indicates an auspicious pairing."

	ReasonLoadLight    = "Teacher has a light workload and can give the student sufficient attention."
	ReasonLoadModerate = "Teacher has a moderate workload."
	ReasonLoadHeavy    = "Teacher has a heavy workload; time per student may be limited."

	ReasonCombined = "Strong combined fit in personality and learning style."

	ReasonFallback = "Not enough personality data for a detailed match; the score relies on neutral defaults and teacher availability."
)

// Explain строит упорядоченный список причин по вкладам и сырым значениям.
// Список никогда не бывает пустым.
func Explain(b Breakdown, s Similarities) []string {
	reasons := make([]string, 0, 6)
	personal := false

	add := func(r string, isPersonal bool) {
		reasons = append(reasons, r)
		personal = personal || isPersonal
	}

	if s.MBTI.Measured {
		switch v := s.MBTI.Value; {
		case v >= mbtiHighThreshold:
			add(ReasonMBTIHigh, true)
		case v >= mbtiGoodThreshold:
			add(ReasonMBTIGood, true)
		case v >= mbtiModerateThreshold:
			add(ReasonMBTIModerate, true)
		default:
			add(ReasonMBTILow, true)
		}
	}

	if s.LearningStyle.Measured {
		switch v := s.LearningStyle.Value; {
		case v >= styleHighThreshold:
			add(ReasonStyleHigh, true)
		case v >= styleGoodThreshold:
			add(ReasonStyleGood, true)
		}
	}

	if s.Saju.Measured {
		switch v := s.Saju.Value; {
		case v >= sajuHighThreshold:
			add(ReasonSajuHigh, true)
		case v >= sajuGoodThreshold:
			add(ReasonSajuGood, true)
		}
	}

	if s.Name.Measured && s.Name.Value >= nameGoodThreshold {
		add(ReasonNameGood, true)
	}

	switch {
	case b.LoadBalance >= loadLightThreshold:
		add(ReasonLoadLight, false)
	case b.LoadBalance >= loadModerateThreshold:
		add(ReasonLoadModerate, false)
	case b.LoadBalance >= loadHeavyThreshold:
		add(ReasonLoadHeavy, false)
	}

	if b.MBTI+b.LearningStyle >= combinedBonusThreshold {
		add(ReasonCombined, true)
	}

	if !personal {
		reasons = append(reasons, ReasonFallback)
	}

	return reasons
}
