package alerting

import (
	"context"
	"testing"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuleLookup struct {
	rules map[string]*models.AlertRule
}

func (f *fakeRuleLookup) GetByCode(ctx context.Context, code string) (*models.AlertRule, error) {
	return f.rules[code], nil
}

func escalationConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Escalation.SweepInterval = 300
	cfg.Escalation.StaleAfter = 30
	cfg.Escalation.DefaultStep = 60
	cfg.Escalation.MaxLevel = 3
	return cfg
}

func newTestEscalator(repo *fakeAlertRepo, rules *fakeRuleLookup) (*Escalator, *fakeEventPublisher, *fakeNotifier) {
	publisher := &fakeEventPublisher{}
	notifier := &fakeNotifier{}
	escalator := NewEscalator(escalationConfig(), repo, rules, publisher, notifier, zap.NewNop())
	return escalator, publisher, notifier
}

func seedAlert(repo *fakeAlertRepo, severity models.AlertSeverity, ruleCode *string, triggeredAt time.Time) *models.Alert {
	alert := &models.Alert{
		ID:               "alert-1",
		RuleCode:         ruleCode,
		Severity:         severity,
		OriginalSeverity: severity,
		Status:           models.AlertOpen,
		AssetID:          "bridge-1",
		SensorID:         "sensor-1",
		TriggeredAt:      triggeredAt,
	}
	repo.Create(context.Background(), alert)
	return alert
}

func TestEscalate(t *testing.T) {
	repo := newFakeAlertRepo()
	code := "HIGH_STRAIN"
	rules := &fakeRuleLookup{rules: map[string]*models.AlertRule{
		code: {Code: code, EscalationMinutes: intPtr(15)},
	}}
	escalator, publisher, notifier := newTestEscalator(repo, rules)
	seedAlert(repo, models.SeverityMedium, &code, time.Now())

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))

	alert := repo.get("alert-1")
	assert.Equal(t, 1, alert.EscalationLevel)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, models.SeverityMedium, alert.OriginalSeverity)
	assert.Equal(t, models.AlertEscalated, alert.Status)
	assert.NotNil(t, alert.EscalatedAt)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "escalated", publisher.events[0].event)
	assert.Len(t, notifier.escalated, 1)
}

func TestEscalate_SeverityCapsAtCritical(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, _, _ := newTestEscalator(repo, &fakeRuleLookup{})
	seedAlert(repo, models.SeverityCritical, nil, time.Now())

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))

	alert := repo.get("alert-1")
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, 1, alert.EscalationLevel)
}

func TestEscalate_LevelCap(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, publisher, _ := newTestEscalator(repo, &fakeRuleLookup{})
	seedAlert(repo, models.SeverityLow, nil, time.Now())

	// 连续升级到最大级别后不再变化
	for i := 0; i < 5; i++ {
		require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))
	}

	alert := repo.get("alert-1")
	assert.Equal(t, 3, alert.EscalationLevel)
	assert.Len(t, publisher.events, 3)
}

func TestEscalate_InactiveAlertSkipped(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, publisher, _ := newTestEscalator(repo, &fakeRuleLookup{})
	alert := seedAlert(repo, models.SeverityMedium, nil, time.Now())
	alert.Status = models.AlertResolved
	repo.Update(context.Background(), alert)

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))

	assert.Equal(t, 0, repo.get("alert-1").EscalationLevel)
	assert.Empty(t, publisher.events)
}

func TestEscalate_RuleEscalationSeverity(t *testing.T) {
	repo := newFakeAlertRepo()
	code := "HIGH_STRAIN"
	target := models.SeverityCritical
	rules := &fakeRuleLookup{rules: map[string]*models.AlertRule{
		code: {Code: code, EscalationMinutes: intPtr(15), EscalationSeverity: &target},
	}}
	escalator, _, _ := newTestEscalator(repo, rules)
	seedAlert(repo, models.SeverityLow, &code, time.Now())

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))

	// 规则配置的升级级别高于逐级上升的结果时直接采用
	assert.Equal(t, models.SeverityCritical, repo.get("alert-1").Severity)
}

func TestSchedule_FiresEscalation(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, publisher, _ := newTestEscalator(repo, &fakeRuleLookup{})
	seedAlert(repo, models.SeverityMedium, nil, time.Now())

	escalator.Schedule("alert-1", 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		return len(publisher.events) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, repo.get("alert-1").EscalationLevel)
}

func TestCancel_StopsScheduledEscalation(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, _, _ := newTestEscalator(repo, &fakeRuleLookup{})
	seedAlert(repo, models.SeverityMedium, nil, time.Now())

	escalator.Schedule("alert-1", 50*time.Millisecond)
	escalator.Cancel("alert-1")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, repo.get("alert-1").EscalationLevel)
}

func TestSweep_EscalatesOverdueAlerts(t *testing.T) {
	repo := newFakeAlertRepo()
	code := "HIGH_STRAIN"
	rules := &fakeRuleLookup{rules: map[string]*models.AlertRule{
		code: {Code: code, EscalationMinutes: intPtr(25)},
	}}
	escalator, _, _ := newTestEscalator(repo, rules)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedAlert(repo, models.SeverityMedium, &code, base)

	// 触发后 41 分钟：一级阈值 25*(0+1) 分钟已过 → 升到 1 级
	escalator.now = func() time.Time { return base.Add(41 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 1, repo.get("alert-1").EscalationLevel)

	// 再扫描一次：二级阈值 25*(1+1)=50 分钟尚未到 → 保持 1 级
	escalator.Sweep(context.Background())
	assert.Equal(t, 1, repo.get("alert-1").EscalationLevel)

	// 51 分钟时二级阈值已过 → 升到 2 级
	escalator.now = func() time.Time { return base.Add(51 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 2, repo.get("alert-1").EscalationLevel)

	// 74 分钟时三级阈值 25*(2+1)=75 分钟尚未到 → 保持 2 级
	escalator.now = func() time.Time { return base.Add(74 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 2, repo.get("alert-1").EscalationLevel)

	// 76 分钟时升到最大级别，之后的扫描不再变化
	escalator.now = func() time.Time { return base.Add(76 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 3, repo.get("alert-1").EscalationLevel)
	escalator.Sweep(context.Background())
	assert.Equal(t, 3, repo.get("alert-1").EscalationLevel)
}

func TestSweep_RulelessUsesDefaultStep(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, _, _ := newTestEscalator(repo, &fakeRuleLookup{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedAlert(repo, models.SeverityMedium, nil, base)

	// 默认步长 60 分钟：45 分钟时未逾期（但已超过 30 分钟的 stale 阈值）
	escalator.now = func() time.Time { return base.Add(45 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 0, repo.get("alert-1").EscalationLevel)

	escalator.now = func() time.Time { return base.Add(61 * time.Minute) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 1, repo.get("alert-1").EscalationLevel)
}

func TestSweep_RuleWithoutIntervalSkipped(t *testing.T) {
	repo := newFakeAlertRepo()
	code := "NO_ESCALATION"
	rules := &fakeRuleLookup{rules: map[string]*models.AlertRule{
		code: {Code: code},
	}}
	escalator, _, _ := newTestEscalator(repo, rules)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedAlert(repo, models.SeverityMedium, &code, base)

	escalator.now = func() time.Time { return base.Add(5 * time.Hour) }
	escalator.Sweep(context.Background())
	assert.Equal(t, 0, repo.get("alert-1").EscalationLevel)
}

func trackedCounts(e *Escalator) (timers, locks int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers), len(e.locks)
}

func TestSchedule_FiredTimerReclaimed(t *testing.T) {
	repo := newFakeAlertRepo()
	code := "NO_ESCALATION"
	rules := &fakeRuleLookup{rules: map[string]*models.AlertRule{
		code: {Code: code},
	}}
	escalator, _, _ := newTestEscalator(repo, rules)
	seedAlert(repo, models.SeverityMedium, &code, time.Now())

	escalator.Schedule("alert-1", 10*time.Millisecond)

	// 定时器触发后自己的表项被回收（规则无间隔，不会再安排下一次）
	assert.Eventually(t, func() bool {
		timers, _ := trackedCounts(escalator)
		return timers == 0 && repo.get("alert-1").EscalationLevel == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCancel_ReclaimsLockAndTimer(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, _, _ := newTestEscalator(repo, &fakeRuleLookup{})
	seedAlert(repo, models.SeverityMedium, nil, time.Now())

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))
	escalator.Schedule("alert-1", time.Hour)

	timers, locks := trackedCounts(escalator)
	assert.Equal(t, 1, timers)
	assert.Equal(t, 1, locks)

	escalator.Cancel("alert-1")

	timers, locks = trackedCounts(escalator)
	assert.Equal(t, 0, timers)
	assert.Equal(t, 0, locks)
}

func TestEscalate_TerminalAlertReclaimsLock(t *testing.T) {
	repo := newFakeAlertRepo()
	escalator, _, _ := newTestEscalator(repo, &fakeRuleLookup{})
	alert := seedAlert(repo, models.SeverityMedium, nil, time.Now())
	alert.Status = models.AlertResolved
	repo.Update(context.Background(), alert)

	require.NoError(t, escalator.Escalate(context.Background(), "alert-1"))

	_, locks := trackedCounts(escalator)
	assert.Equal(t, 0, locks)
}
