package compatibility

// LoadBalanceScore переводит текущую нагрузку учителя в вклад 0-15
// ступенчатой функцией: ≤10 → 15, ≤20 → 10, ≤30 → 5, иначе 0.
// Отрицательная нагрузка трактуется как 0.
func (w Weights) LoadBalanceScore(currentLoad int) float64 {
	if currentLoad < 0 {
		currentLoad = 0
	}
	for _, tier := range w.LoadTiers {
		if currentLoad <= tier.MaxLoad {
			return tier.Score
		}
	}
	return 0
}

// LoadBalanceScore считает вклад нагрузки по стандартной таблице.
func LoadBalanceScore(currentLoad int) float64 {
	return DefaultWeights().LoadBalanceScore(currentLoad)
}
