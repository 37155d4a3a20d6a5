package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"roadinfra-monitor/internal/ingest"
	"roadinfra-monitor/internal/models"

	"go.uber.org/zap"
)

// RuleSource 报警规则查询接口（便于测试 mock）
type RuleSource interface {
	ListEnabled(ctx context.Context) ([]models.AlertRule, error)
}

// RuleMatcher 规则匹配器
// 对每条读数按优先级评估所有匹配的规则（不短路），
// 触发的创建报警，未触发且开启自动解决的清理活跃报警；
// 规则列表带 TTL 缓存，减少数据库压力
type RuleMatcher struct {
	rules    RuleSource
	manager  *AlertManager
	cacheTTL time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	cached   []models.AlertRule
	cachedAt time.Time

	now func() time.Time
}

// NewRuleMatcher 创建规则匹配器
func NewRuleMatcher(rules RuleSource, manager *AlertManager, cacheTTL time.Duration, logger *zap.Logger) *RuleMatcher {
	return &RuleMatcher{
		rules:    rules,
		manager:  manager,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleReading 针对一条读数评估所有报警规则
func (m *RuleMatcher) HandleReading(ctx context.Context, event ingest.ReadingEvent) {
	rules, err := m.loadRules(ctx)
	if err != nil {
		m.logger.Error("Failed to load alert rules",
			zap.Error(err),
		)
		return
	}

	assetCategory := models.AssetCategory(event.AssetCategory)
	sensorCategory := models.SensorCategory(event.SensorCategory)

	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(assetCategory, sensorCategory, event.MetricName) {
			continue
		}

		if rule.Evaluate(event.Value) {
			// 单条规则的失败不影响其余规则的评估
			if err := m.manager.CreateFromRule(ctx, rule, event); err != nil {
				m.logger.Error("Failed to create alert from rule",
					zap.String("rule_code", rule.Code),
					zap.String("sensor_id", event.SensorID),
					zap.Error(err),
				)
			}
		} else if rule.AutoResolve {
			if err := m.manager.AutoResolve(ctx, rule.Code, event.SensorID); err != nil {
				m.logger.Error("Failed to auto-resolve alerts",
					zap.String("rule_code", rule.Code),
					zap.String("sensor_id", event.SensorID),
					zap.Error(err),
				)
			}
		}
	}
}

// loadRules 返回启用的规则（按优先级升序），缓存过期时重新加载
func (m *RuleMatcher) loadRules(ctx context.Context) ([]models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.now().Sub(m.cachedAt) < m.cacheTTL {
		return m.cached, nil
	}

	rules, err := m.rules.ListEnabled(ctx)
	if err != nil {
		// 加载失败时继续用过期缓存兜底
		if m.cached != nil {
			return m.cached, nil
		}
		return nil, err
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	m.cached = rules
	m.cachedAt = m.now()
	return rules, nil
}
