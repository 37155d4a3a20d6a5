package repository

import (
	"context"
	"database/sql"
	"fmt"

	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// ThresholdRepository 健康阈值仓库（只读）
type ThresholdRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewThresholdRepository 创建健康阈值仓库
func NewThresholdRepository(db *sql.DB, logger *zap.Logger) *ThresholdRepository {
	return &ThresholdRepository{
		db:     db,
		logger: logger,
	}
}

// FindEnabled 查询指定资产类型下启用的阈值配置
func (r *ThresholdRepository) FindEnabled(ctx context.Context, assetCategory models.AssetCategory) ([]models.Threshold, error) {
	if assetCategory == "" {
		return nil, fmt.Errorf("asset_category is required")
	}

	query := `
		SELECT
			id,
			asset_category,
			sensor_category,
			metric_name,
			warning_low,
			warning_high,
			critical_low,
			critical_high,
			unit,
			enabled,
			created_at,
			updated_at
		FROM health_thresholds
		WHERE asset_category = $1
		  AND enabled = true
	`

	rows, err := r.db.QueryContext(ctx, query, assetCategory)
	if err != nil {
		return nil, fmt.Errorf("failed to query health thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []models.Threshold
	for rows.Next() {
		var t models.Threshold
		var warningLow, warningHigh, criticalLow, criticalHigh sql.NullFloat64
		var unit sql.NullString

		err := rows.Scan(
			&t.ID,
			&t.AssetCategory,
			&t.SensorCategory,
			&t.MetricName,
			&warningLow,
			&warningHigh,
			&criticalLow,
			&criticalHigh,
			&unit,
			&t.Enabled,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health threshold: %w", err)
		}

		// 处理可空字段
		if warningLow.Valid {
			t.WarningLow = &warningLow.Float64
		}
		if warningHigh.Valid {
			t.WarningHigh = &warningHigh.Float64
		}
		if criticalLow.Valid {
			t.CriticalLow = &criticalLow.Float64
		}
		if criticalHigh.Valid {
			t.CriticalHigh = &criticalHigh.Float64
		}
		if unit.Valid {
			t.Unit = unit.String
		}

		thresholds = append(thresholds, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate health thresholds: %w", err)
	}

	return thresholds, nil
}
