package models

import (
	"time"
)

// Threshold 健康阈值配置（对应 health_thresholds 表）
// 按 (asset_category, sensor_category, metric_name) 唯一，由外部配置服务维护，
// 本引擎只读
type Threshold struct {
	ID             string         `json:"id" db:"id"`
	AssetCategory  AssetCategory  `json:"asset_category" db:"asset_category"`
	SensorCategory SensorCategory `json:"sensor_category" db:"sensor_category"`
	MetricName     string         `json:"metric_name" db:"metric_name"`
	WarningLow     *float64       `json:"warning_low,omitempty" db:"warning_low"`
	WarningHigh    *float64       `json:"warning_high,omitempty" db:"warning_high"`
	CriticalLow    *float64       `json:"critical_low,omitempty" db:"critical_low"`
	CriticalHigh   *float64       `json:"critical_high,omitempty" db:"critical_high"`
	Unit           string         `json:"unit" db:"unit"`
	Enabled        bool           `json:"enabled" db:"enabled"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}
