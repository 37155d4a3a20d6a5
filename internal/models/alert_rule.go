package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// 规则操作符
const (
	OpGT      = "GT"
	OpLT      = "LT"
	OpGTE     = "GTE"
	OpLTE     = "LTE"
	OpEQ      = "EQ"
	OpNEQ     = "NEQ"
	OpBetween = "BETWEEN"
	OpOutside = "OUTSIDE"
)

// equalityTolerance EQ/NEQ 比较的绝对容差（吸收浮点噪声）
const equalityTolerance = 0.0001

// AlertRule 报警规则（对应 alert_rules 表）
// 由外部配置服务维护，本引擎只读；过滤字段为空表示通配
type AlertRule struct {
	ID                  string         `json:"id" db:"id"`
	Code                string         `json:"code" db:"code"`
	Name                string         `json:"name" db:"name"`
	AssetCategory       AssetCategory  `json:"asset_category,omitempty" db:"asset_category"`
	SensorCategory      SensorCategory `json:"sensor_category,omitempty" db:"sensor_category"`
	MetricName          string         `json:"metric_name,omitempty" db:"metric_name"`
	Operator            string         `json:"operator" db:"operator"`
	ThresholdValue      *float64       `json:"threshold_value,omitempty" db:"threshold_value"`
	SecondaryValue      *float64       `json:"secondary_value,omitempty" db:"secondary_value"`
	Unit                string         `json:"unit" db:"unit"`
	Severity            AlertSeverity  `json:"severity" db:"severity"`
	TitleTemplate       string         `json:"title_template" db:"title_template"`
	DescriptionTemplate string         `json:"description_template" db:"description_template"`
	CooldownMinutes     int            `json:"cooldown_minutes" db:"cooldown_minutes"`
	EscalationMinutes   *int           `json:"escalation_minutes,omitempty" db:"escalation_minutes"`
	EscalationSeverity  *AlertSeverity `json:"escalation_severity,omitempty" db:"escalation_severity"`
	Priority            int            `json:"priority" db:"priority"`
	AutoResolve         bool           `json:"auto_resolve" db:"auto_resolve"`
	Enabled             bool           `json:"enabled" db:"enabled"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// Matches 判断规则过滤条件是否匹配给定读数
// 空字段为通配符，匹配任意值
func (r *AlertRule) Matches(assetCategory AssetCategory, sensorCategory SensorCategory, metricName string) bool {
	if r.AssetCategory != "" && r.AssetCategory != assetCategory {
		return false
	}
	if r.SensorCategory != "" && r.SensorCategory != sensorCategory {
		return false
	}
	if r.MetricName != "" && r.MetricName != metricName {
		return false
	}
	return true
}

// Evaluate 判断读数值是否触发规则
func (r *AlertRule) Evaluate(value *float64) bool {
	if value == nil || r.ThresholdValue == nil {
		return false
	}
	v := *value
	threshold := *r.ThresholdValue

	switch strings.ToUpper(r.Operator) {
	case OpGT:
		return v > threshold
	case OpLT:
		return v < threshold
	case OpGTE:
		return v >= threshold
	case OpLTE:
		return v <= threshold
	case OpEQ:
		return math.Abs(v-threshold) < equalityTolerance
	case OpNEQ:
		return math.Abs(v-threshold) >= equalityTolerance
	case OpBetween:
		return r.SecondaryValue != nil && v >= threshold && v <= *r.SecondaryValue
	case OpOutside:
		return r.SecondaryValue != nil && (v < threshold || v > *r.SecondaryValue)
	default:
		return false
	}
}

// RenderTitle 根据模板生成报警标题
func (r *AlertRule) RenderTitle(sensorName, assetName string, value *float64) string {
	return r.renderTemplate(r.TitleTemplate, sensorName, assetName, value)
}

// RenderDescription 根据模板生成报警描述
// 未配置描述模板时生成默认描述
func (r *AlertRule) RenderDescription(sensorName, assetName string, value *float64) string {
	if r.DescriptionTemplate == "" {
		return fmt.Sprintf("Rule '%s' triggered: %s at %s = %s %s (threshold: %s %s)",
			r.Name, sensorName, assetName,
			formatValue(value), r.Unit,
			formatValue(r.ThresholdValue), r.Unit,
		)
	}
	return r.renderTemplate(r.DescriptionTemplate, sensorName, assetName, value)
}

// renderTemplate 替换模板中的命名占位符
// 支持 {sensor} {asset} {value} {threshold} {unit}，数值保留两位小数
func (r *AlertRule) renderTemplate(template, sensorName, assetName string, value *float64) string {
	if sensorName == "" {
		sensorName = "Unknown"
	}
	if assetName == "" {
		assetName = "Unknown"
	}

	replacer := strings.NewReplacer(
		"{sensor}", sensorName,
		"{asset}", assetName,
		"{value}", formatValue(value),
		"{threshold}", formatValue(r.ThresholdValue),
		"{unit}", r.Unit,
	)
	return replacer.Replace(template)
}

func formatValue(value *float64) string {
	if value == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *value)
}
