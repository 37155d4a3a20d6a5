package evaluator

import (
	"roadinfra-monitor/internal/models"
)

// Classify 将总体分数映射为健康状态
// 分数缺失返回 UNKNOWN
func Classify(score *float64) models.HealthStatus {
	if score == nil {
		return models.StatusUnknown
	}
	switch {
	case *score <= 20:
		return models.StatusCritical
	case *score <= 40:
		return models.StatusWarning
	case *score <= 70:
		return models.StatusFair
	default:
		return models.StatusHealthy
	}
}

// Trend 根据最近的历史分数计算趋势
// 与历史均值相差超过 5 分判定为 IMPROVING/DEGRADING，否则 STABLE
func Trend(currentScore float64, previousScores []float64) string {
	if len(previousScores) == 0 {
		return models.TrendStable
	}

	var sum float64
	for _, s := range previousScores {
		sum += s
	}
	avg := sum / float64(len(previousScores))

	diff := currentScore - avg
	if diff > 5 {
		return models.TrendImproving
	}
	if diff < -5 {
		return models.TrendDegrading
	}
	return models.TrendStable
}
