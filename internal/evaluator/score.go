package evaluator

import (
	"math"

	"roadinfra-monitor/internal/models"
)

const (
	// NeutralScore 值缺失时的中性分数
	NeutralScore = 50.0
	// FallbackScore 未配置阈值时的回退分数
	FallbackScore = 75.0
)

// Score 根据阈值配置计算单条读数的健康分数，范围 [0,100]
// 优先级：临界越界 → [0,20)，预警区间 → [20,40]，健康区间 → 100
// 值缺失返回中性分数 50
func Score(value *float64, t *models.Threshold) float64 {
	if value == nil {
		return NeutralScore
	}
	v := *value

	// 临界越界：分数随越界幅度线性下降，下限 0
	if t.CriticalLow != nil && v < *t.CriticalLow {
		return breachScore(*t.CriticalLow-v, bandWidth(t.WarningLow, *t.CriticalLow))
	}
	if t.CriticalHigh != nil && v > *t.CriticalHigh {
		return breachScore(v-*t.CriticalHigh, bandWidth(t.WarningHigh, *t.CriticalHigh))
	}

	// 预警区间：在 [20,40] 内按值离临界界限的距离线性插值
	if t.WarningLow != nil && v < *t.WarningLow {
		critical := effectiveCriticalLow(t.CriticalLow, *t.WarningLow)
		span := *t.WarningLow - critical
		if span <= 0 {
			// 退化的界限配置按立即临界越界处理
			return 0
		}
		return clampScore(20 + 20*(v-critical)/span)
	}
	if t.WarningHigh != nil && v > *t.WarningHigh {
		critical := effectiveCriticalHigh(t.CriticalHigh, *t.WarningHigh)
		span := critical - *t.WarningHigh
		if span <= 0 {
			return 0
		}
		return clampScore(20 + 20*(critical-v)/span)
	}

	// 健康区间
	return 100
}

// breachScore 临界越界分数：在一个区间宽度内从 20 线性衰减到 0
func breachScore(overshoot, band float64) float64 {
	if band <= 0 {
		return 0
	}
	score := 20 * (1 - overshoot/band)
	if score < 0 {
		return 0
	}
	return score
}

// bandWidth 预警到临界的区间宽度
// 预警与临界界限重合时宽度为 0（退化配置，越界直接得 0 分），
// 未配置预警界限时退回到临界界限的绝对值，再退回到 1
func bandWidth(warning *float64, critical float64) float64 {
	if warning != nil {
		return math.Abs(critical - *warning)
	}
	if b := math.Abs(critical); b > 0 {
		return b
	}
	return 1
}

// effectiveCriticalLow 低侧临界界限，缺失时的替代值
// 预警下界为负时取其两倍（向外延伸一个区间），为正时取 0
func effectiveCriticalLow(critical *float64, warningLow float64) float64 {
	if critical != nil {
		return *critical
	}
	if warningLow < 0 {
		return 2 * warningLow
	}
	return 0
}

// effectiveCriticalHigh 高侧临界界限，缺失时取预警上界的两倍
func effectiveCriticalHigh(critical *float64, warningHigh float64) float64 {
	if critical != nil {
		return *critical
	}
	return 2 * warningHigh
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 40 {
		return 40
	}
	return score
}
