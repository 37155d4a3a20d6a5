package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// RuleLookup 按编码查询规则的接口
type RuleLookup interface {
	GetByCode(ctx context.Context, code string) (*models.AlertRule, error)
}

// Escalator 报警升级器
// 两条路径触发升级：报警创建时安排的一次性定时器，
// 和兜底的周期扫描（捕获进程重启后丢失的定时器）；
// 升级按报警加锁，两条路径并发到达时只生效一次
type Escalator struct {
	config    *config.Config
	alerts    AlertRepository
	rules     RuleLookup
	publisher EventPublisher
	notifier  Notifier
	logger    *zap.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	timers map[string]*time.Timer

	now func() time.Time
}

// NewEscalator 创建报警升级器
func NewEscalator(
	cfg *config.Config,
	alerts AlertRepository,
	rules RuleLookup,
	publisher EventPublisher,
	notifier Notifier,
	logger *zap.Logger,
) *Escalator {
	return &Escalator{
		config:    cfg,
		alerts:    alerts,
		rules:     rules,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
		timers:    make(map[string]*time.Timer),
		now:       time.Now,
	}
}

// Schedule 为报警安排一次性升级定时器（重复安排会替换旧定时器）
func (e *Escalator) Schedule(alertID string, after time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.timers[alertID]; ok {
		timer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		// 触发后回收自己的表项（可能已被新的定时器替换）
		e.mu.Lock()
		if e.timers[alertID] == timer {
			delete(e.timers, alertID)
		}
		e.mu.Unlock()

		if err := e.Escalate(context.Background(), alertID); err != nil {
			e.logger.Error("Scheduled escalation failed",
				zap.String("alert_id", alertID),
				zap.Error(err),
			)
		}
	})
	e.timers[alertID] = timer

	e.logger.Debug("Escalation scheduled",
		zap.String("alert_id", alertID),
		zap.Duration("after", after),
	)
}

// Cancel 取消报警的升级定时器并回收锁（报警终结时调用）
func (e *Escalator) Cancel(alertID string) {
	e.forget(alertID)
}

// forget 回收报警的定时器和锁表项，防止长期运行时无限增长
func (e *Escalator) forget(alertID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.timers[alertID]; ok {
		timer.Stop()
		delete(e.timers, alertID)
	}
	delete(e.locks, alertID)
}

// Escalate 将报警升级一级
// 重新读取报警后校验状态，已终结或已到最大级别的报警不再升级
func (e *Escalator) Escalate(ctx context.Context, alertID string) error {
	lock := e.alertLock(alertID)
	lock.Lock()
	defer lock.Unlock()

	alert, err := e.alerts.GetByID(ctx, alertID)
	if err != nil {
		return fmt.Errorf("failed to load alert: %w", err)
	}

	if !alert.Status.IsActive() {
		e.logger.Debug("Skipping escalation of inactive alert",
			zap.String("alert_id", alertID),
			zap.String("status", string(alert.Status)),
		)
		e.forget(alertID)
		return nil
	}
	if alert.EscalationLevel >= e.config.Escalation.MaxLevel {
		e.logger.Warn("Alert already at max escalation level",
			zap.String("alert_id", alertID),
			zap.Int("level", alert.EscalationLevel),
		)
		return nil
	}

	rule := e.lookupRule(ctx, alert)

	now := e.now()
	alert.EscalationLevel++
	alert.Severity = nextSeverity(alert.Severity, rule)
	alert.Status = models.AlertEscalated
	alert.EscalatedAt = &now

	if err := e.alerts.Update(ctx, alert); err != nil {
		return fmt.Errorf("failed to update escalated alert: %w", err)
	}

	e.logger.Info("Alert escalated",
		zap.String("alert_id", alert.ID),
		zap.Int("level", alert.EscalationLevel),
		zap.String("severity", string(alert.Severity)),
	)

	if err := e.publisher.PublishAlertEvent(ctx, "escalated", alert); err != nil {
		e.logger.Error("Failed to publish escalation event",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
	if err := e.notifier.NotifyEscalated(ctx, alert); err != nil {
		e.logger.Error("Failed to send escalation notification",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}

	// 未到最大级别时安排下一次升级，间隔随级别拉长
	if alert.EscalationLevel < e.config.Escalation.MaxLevel {
		if interval, ok := e.escalationInterval(alert, rule); ok {
			e.Schedule(alert.ID, interval)
		}
	}

	return nil
}

// Run 启动兜底的周期扫描（阻塞直到 ctx 取消）
func (e *Escalator) Run(ctx context.Context) {
	interval := time.Duration(e.config.Escalation.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Escalation sweep started",
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Escalation sweep stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep 扫描长时间未处理的活跃报警，对逾期的执行升级
func (e *Escalator) Sweep(ctx context.Context) {
	cutoff := e.now().Add(-time.Duration(e.config.Escalation.StaleAfter) * time.Minute)

	stale, err := e.alerts.FindNeedingEscalation(ctx, cutoff)
	if err != nil {
		e.logger.Error("Failed to find alerts needing escalation",
			zap.Error(err),
		)
		return
	}

	for i := range stale {
		alert := &stale[i]
		if alert.EscalationLevel >= e.config.Escalation.MaxLevel {
			continue
		}

		rule := e.lookupRule(ctx, alert)
		interval, ok := e.escalationInterval(alert, rule)
		if !ok {
			continue
		}

		due := alert.TriggeredAt.Add(interval)
		if e.now().Before(due) {
			continue
		}

		if err := e.Escalate(ctx, alert.ID); err != nil {
			e.logger.Error("Sweep escalation failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
}

// escalationInterval 计算报警下一次升级的间隔
// 规则配置了升级间隔时用规则配置，无规则的报警用默认步长，
// 有规则但未配置间隔的报警不升级；间隔随当前级别线性拉长
func (e *Escalator) escalationInterval(alert *models.Alert, rule *models.AlertRule) (time.Duration, bool) {
	multiplier := time.Duration(alert.EscalationLevel + 1)

	if rule != nil {
		if rule.EscalationMinutes == nil || *rule.EscalationMinutes <= 0 {
			return 0, false
		}
		return time.Duration(*rule.EscalationMinutes) * time.Minute * multiplier, true
	}
	return time.Duration(e.config.Escalation.DefaultStep) * time.Minute * multiplier, true
}

// lookupRule 查询报警关联的规则（无规则或查询失败时返回 nil）
func (e *Escalator) lookupRule(ctx context.Context, alert *models.Alert) *models.AlertRule {
	if alert.RuleCode == nil {
		return nil
	}
	rule, err := e.rules.GetByCode(ctx, *alert.RuleCode)
	if err != nil {
		e.logger.Warn("Failed to load rule for escalation",
			zap.String("rule_code", *alert.RuleCode),
			zap.Error(err),
		)
		return nil
	}
	return rule
}

// nextSeverity 升级后的严重级别
// 默认逐级上升（CRITICAL 为吸收态），规则配置了更高的升级级别时直接采用
func nextSeverity(current models.AlertSeverity, rule *models.AlertRule) models.AlertSeverity {
	next := current.StepUp()
	if rule != nil && rule.EscalationSeverity != nil && rule.EscalationSeverity.Rank() > next.Rank() {
		next = *rule.EscalationSeverity
	}
	return next
}

// alertLock 获取报警的升级锁
func (e *Escalator) alertLock(alertID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[alertID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[alertID] = lock
	}
	return lock
}
