package models

import (
	"time"
)

// AlertSeverity 报警严重级别
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// severityRanks 严重级别排序（数值越大越严重）
var severityRanks = map[AlertSeverity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank 返回严重级别的数值排序，未知级别返回 -1
func (s AlertSeverity) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}
	return -1
}

// AtLeast 判断严重级别是否不低于 other
func (s AlertSeverity) AtLeast(other AlertSeverity) bool {
	return s.Rank() >= other.Rank()
}

// StepUp 返回升级一级后的严重级别
// CRITICAL 是吸收态：HIGH 和 CRITICAL 升级后都是 CRITICAL
func (s AlertSeverity) StepUp() AlertSeverity {
	switch s {
	case SeverityInfo:
		return SeverityLow
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// AlertStatus 报警生命周期状态
type AlertStatus string

const (
	AlertOpen         AlertStatus = "OPEN"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertInProgress   AlertStatus = "IN_PROGRESS"
	AlertEscalated    AlertStatus = "ESCALATED"
	AlertResolved     AlertStatus = "RESOLVED"
	AlertDismissed    AlertStatus = "DISMISSED"
	AlertAutoResolved AlertStatus = "AUTO_RESOLVED"
)

// IsActive 判断报警是否处于活跃状态（仍需处理）
func (s AlertStatus) IsActive() bool {
	return s == AlertOpen || s == AlertAcknowledged || s == AlertInProgress || s == AlertEscalated
}

// IsClosed 判断报警是否已终结（终结后不再变化）
func (s AlertStatus) IsClosed() bool {
	return s == AlertResolved || s == AlertDismissed || s == AlertAutoResolved
}

// Alert 报警（对应 alerts 表）
// 由规则匹配器创建，只能被确认 / 解决 / 升级修改，终结后不可变
type Alert struct {
	ID               string        `json:"id" db:"id"`
	RuleCode         *string       `json:"rule_code,omitempty" db:"rule_code"`
	Title            string        `json:"title" db:"title"`
	Description      string        `json:"description" db:"description"`
	Severity         AlertSeverity `json:"severity" db:"severity"`
	OriginalSeverity AlertSeverity `json:"original_severity" db:"original_severity"`
	EscalationLevel  int           `json:"escalation_level" db:"escalation_level"`
	Status           AlertStatus   `json:"status" db:"status"`
	AssetID          string        `json:"asset_id" db:"asset_id"`
	AssetName        string        `json:"asset_name" db:"asset_name"`
	SensorID         string        `json:"sensor_id" db:"sensor_id"`
	SensorName       string        `json:"sensor_name" db:"sensor_name"`
	TriggerValue     *float64      `json:"trigger_value,omitempty" db:"trigger_value"`
	ThresholdValue   *float64      `json:"threshold_value,omitempty" db:"threshold_value"`
	Unit             string        `json:"unit" db:"unit"`
	TriggeredAt      time.Time     `json:"triggered_at" db:"triggered_at"`
	EscalatedAt      *time.Time    `json:"escalated_at,omitempty" db:"escalated_at"`
	AcknowledgedAt   *time.Time    `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy   *string       `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy       *string       `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes  *string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
}
