package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 报警仓库
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `
	id,
	rule_code,
	title,
	description,
	severity,
	original_severity,
	escalation_level,
	status,
	asset_id,
	asset_name,
	sensor_id,
	sensor_name,
	trigger_value,
	threshold_value,
	unit,
	triggered_at,
	escalated_at,
	acknowledged_at,
	acknowledged_by,
	resolved_at,
	resolved_by,
	resolution_notes
`

// activeStatuses 活跃报警的状态集合（SQL IN 子句）
const activeStatuses = `('OPEN', 'ACKNOWLEDGED', 'IN_PROGRESS', 'ESCALATED')`

// Create 创建报警
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert.id is required")
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.RuleCode,
		alert.Title,
		alert.Description,
		alert.Severity,
		alert.OriginalSeverity,
		alert.EscalationLevel,
		alert.Status,
		alert.AssetID,
		alert.AssetName,
		alert.SensorID,
		alert.SensorName,
		alert.TriggerValue,
		alert.ThresholdValue,
		alert.Unit,
		alert.TriggeredAt,
		alert.EscalatedAt,
		alert.AcknowledgedAt,
		alert.AcknowledgedBy,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// Update 更新报警的可变字段
func (r *AlertRepository) Update(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert.id is required")
	}

	query := `
		UPDATE alerts
		SET severity = $2,
		    escalation_level = $3,
		    status = $4,
		    escalated_at = $5,
		    acknowledged_at = $6,
		    acknowledged_by = $7,
		    resolved_at = $8,
		    resolved_by = $9,
		    resolution_notes = $10
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.Severity,
		alert.EscalationLevel,
		alert.Status,
		alert.EscalatedAt,
		alert.AcknowledgedAt,
		alert.AcknowledgedBy,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert not found: id=%s", alert.ID)
	}

	return nil
}

// GetByID 根据ID查询报警
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query alert: %w", err)
		}
		return nil, fmt.Errorf("alert not found: id=%s", id)
	}

	return scanAlert(rows)
}

// FindRecentByRuleAndAsset 查询 (规则, 资产) 在给定时间之后触发的报警（冷却检查用）
func (r *AlertRepository) FindRecentByRuleAndAsset(ctx context.Context, ruleCode, assetID string, since time.Time) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE rule_code = $1
		  AND asset_id = $2
		  AND triggered_at >= $3
	`

	return r.queryAlerts(ctx, query, ruleCode, assetID, since)
}

// FindActiveByCodeAndSensor 查询 (规则编码, 传感器) 的活跃报警（自动解决用）
func (r *AlertRepository) FindActiveByCodeAndSensor(ctx context.Context, ruleCode, sensorID string) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE rule_code = $1
		  AND sensor_id = $2
		  AND status IN ` + activeStatuses + `
	`

	return r.queryAlerts(ctx, query, ruleCode, sensorID)
}

// FindNeedingEscalation 查询触发时间早于 cutoff 的活跃报警（升级扫描用）
func (r *AlertRepository) FindNeedingEscalation(ctx context.Context, cutoff time.Time) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE status IN ` + activeStatuses + `
		  AND triggered_at < $1
		ORDER BY triggered_at ASC
	`

	return r.queryAlerts(ctx, query, cutoff)
}

// CountActiveByAsset 统计资产的活跃报警数量
func (r *AlertRepository) CountActiveByAsset(ctx context.Context, assetID string) (int, error) {
	if assetID == "" {
		return 0, fmt.Errorf("asset_id is required")
	}

	query := `
		SELECT COUNT(*)
		FROM alerts
		WHERE asset_id = $1
		  AND status IN ` + activeStatuses + `
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, assetID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}

	return count, nil
}

// queryAlerts 执行查询并扫描所有报警行
func (r *AlertRepository) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// scanAlert 扫描一行报警记录
func scanAlert(rows *sql.Rows) (*models.Alert, error) {
	var alert models.Alert
	var ruleCode sql.NullString
	var assetName, sensorID, sensorName, unit sql.NullString
	var triggerValue, thresholdValue sql.NullFloat64
	var escalatedAt, acknowledgedAt, resolvedAt sql.NullTime
	var acknowledgedBy, resolvedBy, resolutionNotes sql.NullString

	err := rows.Scan(
		&alert.ID,
		&ruleCode,
		&alert.Title,
		&alert.Description,
		&alert.Severity,
		&alert.OriginalSeverity,
		&alert.EscalationLevel,
		&alert.Status,
		&alert.AssetID,
		&assetName,
		&sensorID,
		&sensorName,
		&triggerValue,
		&thresholdValue,
		&unit,
		&alert.TriggeredAt,
		&escalatedAt,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&resolvedBy,
		&resolutionNotes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	// 处理可空字段
	if ruleCode.Valid {
		alert.RuleCode = &ruleCode.String
	}
	if assetName.Valid {
		alert.AssetName = assetName.String
	}
	if sensorID.Valid {
		alert.SensorID = sensorID.String
	}
	if sensorName.Valid {
		alert.SensorName = sensorName.String
	}
	if triggerValue.Valid {
		alert.TriggerValue = &triggerValue.Float64
	}
	if thresholdValue.Valid {
		alert.ThresholdValue = &thresholdValue.Float64
	}
	if unit.Valid {
		alert.Unit = unit.String
	}
	if escalatedAt.Valid {
		alert.EscalatedAt = &escalatedAt.Time
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = &acknowledgedBy.String
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.String
	}
	if resolutionNotes.Valid {
		alert.ResolutionNotes = &resolutionNotes.String
	}

	return &alert, nil
}
