package repository

import (
	"context"
	"database/sql"
	"fmt"

	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// HealthRecordRepository 健康记录仓库（追加写入，记录创建后不修改）
type HealthRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHealthRecordRepository 创建健康记录仓库
func NewHealthRecordRepository(db *sql.DB, logger *zap.Logger) *HealthRecordRepository {
	return &HealthRecordRepository{
		db:     db,
		logger: logger,
	}
}

const healthRecordColumns = `
	id,
	asset_id,
	asset_category,
	timestamp,
	overall_score,
	structural_score,
	environmental_score,
	operational_score,
	status,
	active_sensor_count,
	total_sensor_count,
	faulty_sensor_count,
	active_alert_count
`

// Create 追加一条健康记录
func (r *HealthRecordRepository) Create(ctx context.Context, record *models.HealthRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.ID == "" {
		return fmt.Errorf("record.id is required")
	}

	query := `
		INSERT INTO health_records (` + healthRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.AssetID,
		record.AssetCategory,
		record.Timestamp,
		record.OverallScore,
		record.StructuralScore,
		record.EnvironmentalScore,
		record.OperationalScore,
		record.Status,
		record.ActiveSensorCount,
		record.TotalSensorCount,
		record.FaultySensorCount,
		record.ActiveAlertCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create health record: %w", err)
	}

	return nil
}

// FindLatestByAsset 查询资产最近一条健康记录（不存在时返回 nil）
func (r *HealthRecordRepository) FindLatestByAsset(ctx context.Context, assetID string) (*models.HealthRecord, error) {
	if assetID == "" {
		return nil, fmt.Errorf("asset_id is required")
	}

	query := `
		SELECT ` + healthRecordColumns + `
		FROM health_records
		WHERE asset_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var record models.HealthRecord
	err := r.db.QueryRowContext(ctx, query, assetID).Scan(
		&record.ID,
		&record.AssetID,
		&record.AssetCategory,
		&record.Timestamp,
		&record.OverallScore,
		&record.StructuralScore,
		&record.EnvironmentalScore,
		&record.OperationalScore,
		&record.Status,
		&record.ActiveSensorCount,
		&record.TotalSensorCount,
		&record.FaultySensorCount,
		&record.ActiveAlertCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest health record: %w", err)
	}

	return &record, nil
}

// FindRecentScores 查询资产最近 limit 条记录的总体分数（最新的在前，趋势计算用）
func (r *HealthRecordRepository) FindRecentScores(ctx context.Context, assetID string, limit int) ([]float64, error) {
	if assetID == "" {
		return nil, fmt.Errorf("asset_id is required")
	}
	if limit <= 0 {
		limit = 5
	}

	query := `
		SELECT overall_score
		FROM health_records
		WHERE asset_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}

	return scores, nil
}
