package alerting

import (
	"context"
	"fmt"
	"time"

	"roadinfra-monitor/internal/ingest"
	"roadinfra-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertRepository 报警存储接口（便于测试 mock）
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	Update(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	FindRecentByRuleAndAsset(ctx context.Context, ruleCode, assetID string, since time.Time) ([]models.Alert, error)
	FindActiveByCodeAndSensor(ctx context.Context, ruleCode, sensorID string) ([]models.Alert, error)
	FindNeedingEscalation(ctx context.Context, cutoff time.Time) ([]models.Alert, error)
}

// EventPublisher 报警事件广播接口
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, event string, alert *models.Alert) error
}

// Notifier 外部通知接口
type Notifier interface {
	NotifyCreated(ctx context.Context, alert *models.Alert) error
	NotifyEscalated(ctx context.Context, alert *models.Alert) error
}

// Scheduler 单个报警的升级定时接口（由升级器实现）
type Scheduler interface {
	Schedule(alertID string, after time.Duration)
	Cancel(alertID string)
}

// AlertManager 报警生命周期管理
// 负责创建（含冷却抑制）、自动解决、人工确认 / 解决 / 忽略，
// 以及报警事件的广播和外部通知
type AlertManager struct {
	alerts      AlertRepository
	publisher   EventPublisher
	notifier    Notifier
	scheduler   Scheduler
	minSeverity models.AlertSeverity
	logger      *zap.Logger

	now func() time.Time
}

// NewAlertManager 创建报警管理器
func NewAlertManager(
	alerts AlertRepository,
	publisher EventPublisher,
	notifier Notifier,
	minSeverity models.AlertSeverity,
	logger *zap.Logger,
) *AlertManager {
	return &AlertManager{
		alerts:      alerts,
		publisher:   publisher,
		notifier:    notifier,
		minSeverity: minSeverity,
		logger:      logger,
		now:         time.Now,
	}
}

// SetScheduler 注入升级定时器（在组装阶段调用，避免循环依赖）
func (m *AlertManager) SetScheduler(scheduler Scheduler) {
	m.scheduler = scheduler
}

// CreateFromRule 根据触发的规则创建报警
// 冷却期内同一 (规则, 资产) 的重复触发被抑制
func (m *AlertManager) CreateFromRule(ctx context.Context, rule *models.AlertRule, event ingest.ReadingEvent) error {
	if rule.CooldownMinutes > 0 {
		since := m.now().Add(-time.Duration(rule.CooldownMinutes) * time.Minute)
		recent, err := m.alerts.FindRecentByRuleAndAsset(ctx, rule.Code, event.AssetID, since)
		if err != nil {
			return fmt.Errorf("failed to check alert cooldown: %w", err)
		}
		if len(recent) > 0 {
			m.logger.Debug("Alert suppressed by cooldown",
				zap.String("rule_code", rule.Code),
				zap.String("asset_id", event.AssetID),
			)
			return nil
		}
	}

	ruleCode := rule.Code
	alert := &models.Alert{
		ID:               uuid.New().String(),
		RuleCode:         &ruleCode,
		Title:            rule.RenderTitle(event.SensorName, event.AssetName, event.Value),
		Description:      rule.RenderDescription(event.SensorName, event.AssetName, event.Value),
		Severity:         rule.Severity,
		OriginalSeverity: rule.Severity,
		EscalationLevel:  0,
		Status:           models.AlertOpen,
		AssetID:          event.AssetID,
		AssetName:        event.AssetName,
		SensorID:         event.SensorID,
		SensorName:       event.SensorName,
		TriggerValue:     event.Value,
		ThresholdValue:   rule.ThresholdValue,
		Unit:             rule.Unit,
		TriggeredAt:      m.now(),
	}

	if err := m.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	m.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("rule_code", rule.Code),
		zap.String("asset_id", alert.AssetID),
		zap.String("sensor_id", alert.SensorID),
		zap.String("severity", string(alert.Severity)),
	)

	m.publish(ctx, "created", alert)

	if alert.Severity.AtLeast(m.minSeverity) {
		if err := m.notifier.NotifyCreated(ctx, alert); err != nil {
			m.logger.Error("Failed to send alert notification",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	// 规则配置了升级间隔时安排定时升级
	if rule.EscalationMinutes != nil && *rule.EscalationMinutes > 0 && m.scheduler != nil {
		m.scheduler.Schedule(alert.ID, time.Duration(*rule.EscalationMinutes)*time.Minute)
	}

	return nil
}

// CreateFromStatusChange 根据资产健康状态变化创建报警
// 进入 CRITICAL 创建 CRITICAL 报警，HEALTHY 跌到 WARNING 创建 MEDIUM 报警
func (m *AlertManager) CreateFromStatusChange(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus) error {
	var severity models.AlertSeverity
	switch {
	case record.Status == models.StatusCritical && previous != models.StatusCritical:
		severity = models.SeverityCritical
	case record.Status == models.StatusWarning && previous == models.StatusHealthy:
		severity = models.SeverityMedium
	default:
		return nil
	}

	code := "HEALTH_STATUS_CHANGE"
	score := record.OverallScore
	alert := &models.Alert{
		ID:       uuid.New().String(),
		RuleCode: &code,
		Title:    fmt.Sprintf("Asset health degraded to %s", record.Status),
		Description: fmt.Sprintf("Asset %s health status changed from %s to %s (score: %.2f)",
			record.AssetID, previous, record.Status, record.OverallScore),
		Severity:         severity,
		OriginalSeverity: severity,
		Status:           models.AlertOpen,
		AssetID:          record.AssetID,
		TriggerValue:     &score,
		TriggeredAt:      m.now(),
	}

	if err := m.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("failed to create status change alert: %w", err)
	}

	m.logger.Info("Health status change alert created",
		zap.String("alert_id", alert.ID),
		zap.String("asset_id", alert.AssetID),
		zap.String("status", string(record.Status)),
		zap.String("severity", string(severity)),
	)

	m.publish(ctx, "created", alert)

	if severity.AtLeast(m.minSeverity) {
		if err := m.notifier.NotifyCreated(ctx, alert); err != nil {
			m.logger.Error("Failed to send alert notification",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// AutoResolve 条件消除时自动解决 (规则, 传感器) 的活跃报警
func (m *AlertManager) AutoResolve(ctx context.Context, ruleCode, sensorID string) error {
	active, err := m.alerts.FindActiveByCodeAndSensor(ctx, ruleCode, sensorID)
	if err != nil {
		return fmt.Errorf("failed to find active alerts: %w", err)
	}

	for i := range active {
		alert := &active[i]
		now := m.now()
		notes := "Auto-resolved: condition cleared"
		alert.Status = models.AlertAutoResolved
		alert.ResolvedAt = &now
		alert.ResolutionNotes = &notes

		if err := m.alerts.Update(ctx, alert); err != nil {
			m.logger.Error("Failed to auto-resolve alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}

		if m.scheduler != nil {
			m.scheduler.Cancel(alert.ID)
		}

		m.logger.Info("Alert auto-resolved",
			zap.String("alert_id", alert.ID),
			zap.String("rule_code", ruleCode),
			zap.String("sensor_id", sensorID),
		)

		m.publish(ctx, "resolved", alert)
	}

	return nil
}

// Acknowledge 人工确认报警
func (m *AlertManager) Acknowledge(ctx context.Context, alertID, userID string) error {
	alert, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.Status.IsClosed() {
		return fmt.Errorf("alert %s is already closed", alertID)
	}

	now := m.now()
	alert.Status = models.AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &userID

	if err := m.alerts.Update(ctx, alert); err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	m.publish(ctx, "acknowledged", alert)
	return nil
}

// Resolve 人工解决报警
func (m *AlertManager) Resolve(ctx context.Context, alertID, userID, notes string) error {
	return m.close(ctx, alertID, userID, notes, models.AlertResolved, "resolved")
}

// Dismiss 人工忽略报警
func (m *AlertManager) Dismiss(ctx context.Context, alertID, userID, notes string) error {
	return m.close(ctx, alertID, userID, notes, models.AlertDismissed, "dismissed")
}

func (m *AlertManager) close(ctx context.Context, alertID, userID, notes string, status models.AlertStatus, event string) error {
	alert, err := m.alerts.GetByID(ctx, alertID)
	if err != nil {
		return fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.Status.IsClosed() {
		return fmt.Errorf("alert %s is already closed", alertID)
	}

	now := m.now()
	alert.Status = status
	alert.ResolvedAt = &now
	alert.ResolvedBy = &userID
	if notes != "" {
		alert.ResolutionNotes = &notes
	}

	if err := m.alerts.Update(ctx, alert); err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	if m.scheduler != nil {
		m.scheduler.Cancel(alert.ID)
	}

	m.publish(ctx, event, alert)
	return nil
}

// publish 广播报警事件，失败只记录日志
func (m *AlertManager) publish(ctx context.Context, event string, alert *models.Alert) {
	if err := m.publisher.PublishAlertEvent(ctx, event, alert); err != nil {
		m.logger.Error("Failed to publish alert event",
			zap.String("event", event),
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}
