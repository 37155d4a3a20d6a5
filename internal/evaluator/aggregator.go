package evaluator

import (
	"context"
	"fmt"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/ingest"
	"roadinfra-monitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 总体分数的分组权重：结构 50%，环境 25%，运营 25%
const (
	structuralWeight    = 0.5
	environmentalWeight = 0.25
	operationalWeight   = 0.25
)

// ThresholdSource 阈值查询接口（便于测试 mock）
type ThresholdSource interface {
	FindEnabled(ctx context.Context, assetCategory models.AssetCategory) ([]models.Threshold, error)
}

// HealthRecordStore 健康记录存储接口
type HealthRecordStore interface {
	Create(ctx context.Context, record *models.HealthRecord) error
	FindLatestByAsset(ctx context.Context, assetID string) (*models.HealthRecord, error)
	FindRecentScores(ctx context.Context, assetID string, limit int) ([]float64, error)
}

// ActiveAlertCounter 活跃报警计数接口
type ActiveAlertCounter interface {
	CountActiveByAsset(ctx context.Context, assetID string) (int, error)
}

// SnapshotPublisher 健康快照发布接口（事件总线 + 订阅者广播）
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, record *models.HealthRecord, trend string) error
	PublishStatusChange(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus) error
}

// Aggregator 健康评分聚合器
// 按固定周期读取缓存的读数，计算分组和总体健康分数，
// 生成健康记录并广播；单个资产的失败不影响其他资产
type Aggregator struct {
	config     *config.Config
	cache      *ingest.ReadingCache
	counts     *ingest.SensorCountTracker
	thresholds ThresholdSource
	records    HealthRecordStore
	alerts     ActiveAlertCounter
	publisher  SnapshotPublisher
	logger     *zap.Logger

	now func() time.Time
}

// NewAggregator 创建健康评分聚合器
func NewAggregator(
	cfg *config.Config,
	cache *ingest.ReadingCache,
	counts *ingest.SensorCountTracker,
	thresholds ThresholdSource,
	records HealthRecordStore,
	alerts ActiveAlertCounter,
	publisher SnapshotPublisher,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		config:     cfg,
		cache:      cache,
		counts:     counts,
		thresholds: thresholds,
		records:    records,
		alerts:     alerts,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

// Run 启动周期评分（阻塞直到 ctx 取消）
func (a *Aggregator) Run(ctx context.Context) {
	interval := time.Duration(a.config.Monitor.AggregationInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("Score aggregator started",
		zap.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Score aggregator stopped")
			return
		case <-ticker.C:
			a.RecomputeAll(ctx)
		}
	}
}

// RecomputeAll 重新计算所有有缓存读数的资产的健康分数
func (a *Aggregator) RecomputeAll(ctx context.Context) {
	assetIDs := a.cache.AssetIDs()

	a.logger.Debug("Recomputing health scores",
		zap.Int("asset_count", len(assetIDs)),
	)

	for _, assetID := range assetIDs {
		if err := a.recomputeAsset(ctx, assetID); err != nil {
			// 单个资产失败不中断本周期的其他资产
			a.logger.Error("Failed to compute health scores",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
		}
	}
}

// recomputeAsset 计算单个资产的健康分数并生成记录
func (a *Aggregator) recomputeAsset(ctx context.Context, assetID string) error {
	readings := a.cache.Snapshot(assetID)
	if len(readings) == 0 {
		return nil
	}

	category := a.inferAssetCategory(readings)

	thresholds, err := a.thresholds.FindEnabled(ctx, category)
	if err != nil {
		return fmt.Errorf("failed to load thresholds: %w", err)
	}

	scores := a.computeScores(readings, thresholds)

	counts := a.counts.Counts(assetID)

	activeAlerts, err := a.alerts.CountActiveByAsset(ctx, assetID)
	if err != nil {
		// 报警计数失败不阻止记录生成
		a.logger.Warn("Failed to count active alerts",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		activeAlerts = 0
	}

	previousStatus := models.StatusUnknown
	if previous, err := a.records.FindLatestByAsset(ctx, assetID); err != nil {
		a.logger.Warn("Failed to load previous health record",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
	} else if previous != nil {
		previousStatus = previous.Status
	}

	overall := scores.overall
	record := &models.HealthRecord{
		ID:                 uuid.New().String(),
		AssetID:            assetID,
		AssetCategory:      category,
		Timestamp:          a.now(),
		OverallScore:       overall,
		StructuralScore:    scores.structural,
		EnvironmentalScore: scores.environmental,
		OperationalScore:   scores.operational,
		Status:             Classify(&overall),
		ActiveSensorCount:  counts.Active,
		TotalSensorCount:   counts.Total,
		FaultySensorCount:  counts.Faulty,
		ActiveAlertCount:   activeAlerts,
	}

	// 先取历史分数，避免把本条记录算进自己的趋势基线
	trend := models.TrendStable
	if previousScores, err := a.records.FindRecentScores(ctx, assetID, a.config.Monitor.TrendWindow); err == nil {
		trend = Trend(record.OverallScore, previousScores)
	}

	if err := a.records.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to save health record: %w", err)
	}

	// 广播失败只记录日志，记录本身已持久化
	if err := a.publisher.PublishSnapshot(ctx, record, trend); err != nil {
		a.logger.Error("Failed to publish health snapshot",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
	}

	if previousStatus != record.Status {
		a.logger.Info("Asset health status changed",
			zap.String("asset_id", assetID),
			zap.String("previous", string(previousStatus)),
			zap.String("status", string(record.Status)),
			zap.Float64("score", record.OverallScore),
		)
		if err := a.publisher.PublishStatusChange(ctx, record, previousStatus); err != nil {
			a.logger.Error("Failed to publish status change",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// groupScores 分组和总体分数
type groupScores struct {
	overall       float64
	structural    float64
	environmental float64
	operational   float64
}

// computeScores 按分组计算平均分数并加权汇总
// 无读数的分组默认 75 分，未配置阈值的读数用回退分数
func (a *Aggregator) computeScores(readings []models.Reading, thresholds []models.Threshold) groupScores {
	// 阈值按 (sensor_category, metric_name) 索引
	index := make(map[string]*models.Threshold, len(thresholds))
	for i := range thresholds {
		t := &thresholds[i]
		index[thresholdKey(t.SensorCategory, t.MetricName)] = t
	}

	totals := make(map[models.ScoreGroup]float64)
	groupCounts := make(map[models.ScoreGroup]int)

	for _, reading := range readings {
		var score float64
		if t, ok := index[thresholdKey(reading.SensorCategory, reading.MetricName)]; ok {
			score = Score(reading.Value, t)
		} else {
			score = FallbackScore
		}

		group := models.GroupOf(reading.SensorCategory)
		totals[group] += score
		groupCounts[group]++
	}

	mean := func(group models.ScoreGroup) float64 {
		if groupCounts[group] == 0 {
			return FallbackScore
		}
		return totals[group] / float64(groupCounts[group])
	}

	scores := groupScores{
		structural:    mean(models.GroupStructural),
		environmental: mean(models.GroupEnvironmental),
		operational:   mean(models.GroupOperational),
	}
	scores.overall = scores.structural*structuralWeight +
		scores.environmental*environmentalWeight +
		scores.operational*operationalWeight

	return scores
}

// inferAssetCategory 根据传感器类型推断资产类型
// 仅作为兜底：结构类+环境类 → 桥梁，仅结构类 → 隧道，否则默认类型
func (a *Aggregator) inferAssetCategory(readings []models.Reading) models.AssetCategory {
	var hasStructural, hasEnvironmental bool
	for _, r := range readings {
		switch r.SensorCategory {
		case models.CategoryStrainGauge, models.CategoryDisplacement:
			hasStructural = true
		case models.CategoryTemperature, models.CategoryHumidity:
			hasEnvironmental = true
		}
	}

	switch {
	case hasStructural && hasEnvironmental:
		return models.AssetBridge
	case hasStructural:
		return models.AssetTunnel
	default:
		return models.AssetCategory(a.config.Monitor.DefaultAssetCategory)
	}
}

func thresholdKey(category models.SensorCategory, metric string) string {
	return string(category) + "|" + metric
}
