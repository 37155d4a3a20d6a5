package repository

import (
	"context"
	"database/sql"
	"fmt"

	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertRuleRepository 报警规则仓库（只读）
type AlertRuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRuleRepository 创建报警规则仓库
func NewAlertRuleRepository(db *sql.DB, logger *zap.Logger) *AlertRuleRepository {
	return &AlertRuleRepository{
		db:     db,
		logger: logger,
	}
}

const alertRuleColumns = `
	id,
	code,
	name,
	asset_category,
	sensor_category,
	metric_name,
	operator,
	threshold_value,
	secondary_value,
	unit,
	severity,
	title_template,
	description_template,
	cooldown_minutes,
	escalation_minutes,
	escalation_severity,
	priority,
	auto_resolve,
	enabled,
	created_at,
	updated_at
`

// ListEnabled 查询所有启用的规则，按优先级升序
func (r *AlertRuleRepository) ListEnabled(ctx context.Context) ([]models.AlertRule, error) {
	query := `
		SELECT ` + alertRuleColumns + `
		FROM alert_rules
		WHERE enabled = true
		ORDER BY priority ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rules: %w", err)
	}

	return rules, nil
}

// GetByCode 根据编码查询规则（不存在时返回 nil）
func (r *AlertRuleRepository) GetByCode(ctx context.Context, code string) (*models.AlertRule, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	query := `
		SELECT ` + alertRuleColumns + `
		FROM alert_rules
		WHERE code = $1
	`

	rows, err := r.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query alert rule: %w", err)
		}
		return nil, nil
	}

	return scanAlertRule(rows)
}

// scanAlertRule 扫描一行规则记录
func scanAlertRule(rows *sql.Rows) (*models.AlertRule, error) {
	var rule models.AlertRule
	var assetCategory, sensorCategory, metricName sql.NullString
	var thresholdValue, secondaryValue sql.NullFloat64
	var unit, titleTemplate, descriptionTemplate sql.NullString
	var escalationMinutes sql.NullInt64
	var escalationSeverity sql.NullString

	err := rows.Scan(
		&rule.ID,
		&rule.Code,
		&rule.Name,
		&assetCategory,
		&sensorCategory,
		&metricName,
		&rule.Operator,
		&thresholdValue,
		&secondaryValue,
		&unit,
		&rule.Severity,
		&titleTemplate,
		&descriptionTemplate,
		&rule.CooldownMinutes,
		&escalationMinutes,
		&escalationSeverity,
		&rule.Priority,
		&rule.AutoResolve,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert rule: %w", err)
	}

	// 处理可空字段（空的过滤字段表示通配）
	if assetCategory.Valid {
		rule.AssetCategory = models.AssetCategory(assetCategory.String)
	}
	if sensorCategory.Valid {
		rule.SensorCategory = models.SensorCategory(sensorCategory.String)
	}
	if metricName.Valid {
		rule.MetricName = metricName.String
	}
	if thresholdValue.Valid {
		rule.ThresholdValue = &thresholdValue.Float64
	}
	if secondaryValue.Valid {
		rule.SecondaryValue = &secondaryValue.Float64
	}
	if unit.Valid {
		rule.Unit = unit.String
	}
	if titleTemplate.Valid {
		rule.TitleTemplate = titleTemplate.String
	}
	if descriptionTemplate.Valid {
		rule.DescriptionTemplate = descriptionTemplate.String
	}
	if escalationMinutes.Valid {
		minutes := int(escalationMinutes.Int64)
		rule.EscalationMinutes = &minutes
	}
	if escalationSeverity.Valid {
		severity := models.AlertSeverity(escalationSeverity.String)
		rule.EscalationSeverity = &severity
	}

	return &rule, nil
}
