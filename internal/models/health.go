package models

import (
	"time"
)

// HealthStatus 资产健康状态
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "HEALTHY"
	StatusFair     HealthStatus = "FAIR"
	StatusWarning  HealthStatus = "WARNING"
	StatusCritical HealthStatus = "CRITICAL"
	StatusUnknown  HealthStatus = "UNKNOWN"
)

// 健康趋势
const (
	TrendImproving = "IMPROVING"
	TrendDegrading = "DEGRADING"
	TrendStable    = "STABLE"
)

// HealthRecord 健康评分快照（对应 health_records 表）
// 每个评分周期为每个资产追加一条，创建后不再修改
type HealthRecord struct {
	ID                 string        `json:"id" db:"id"`
	AssetID            string        `json:"asset_id" db:"asset_id"`
	AssetCategory      AssetCategory `json:"asset_category" db:"asset_category"`
	Timestamp          time.Time     `json:"timestamp" db:"timestamp"`
	OverallScore       float64       `json:"overall_score" db:"overall_score"`
	StructuralScore    float64       `json:"structural_score" db:"structural_score"`
	EnvironmentalScore float64       `json:"environmental_score" db:"environmental_score"`
	OperationalScore   float64       `json:"operational_score" db:"operational_score"`
	Status             HealthStatus  `json:"status" db:"status"`
	ActiveSensorCount  int           `json:"active_sensor_count" db:"active_sensor_count"`
	TotalSensorCount   int           `json:"total_sensor_count" db:"total_sensor_count"`
	FaultySensorCount  int           `json:"faulty_sensor_count" db:"faulty_sensor_count"`
	ActiveAlertCount   int           `json:"active_alert_count" db:"active_alert_count"`
}
