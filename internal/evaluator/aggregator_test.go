package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/ingest"
	"roadinfra-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeThresholds struct {
	thresholds []models.Threshold
	err        error
}

func (f *fakeThresholds) FindEnabled(ctx context.Context, category models.AssetCategory) ([]models.Threshold, error) {
	return f.thresholds, f.err
}

type fakeRecordStore struct {
	created      []*models.HealthRecord
	latest       *models.HealthRecord
	recentScores []float64
	createErr    error
}

func (f *fakeRecordStore) Create(ctx context.Context, record *models.HealthRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, record)
	return nil
}

func (f *fakeRecordStore) FindLatestByAsset(ctx context.Context, assetID string) (*models.HealthRecord, error) {
	return f.latest, nil
}

func (f *fakeRecordStore) FindRecentScores(ctx context.Context, assetID string, limit int) ([]float64, error) {
	return f.recentScores, nil
}

type fakeAlertCounter struct {
	count int
	err   error
}

func (f *fakeAlertCounter) CountActiveByAsset(ctx context.Context, assetID string) (int, error) {
	return f.count, f.err
}

type publishedSnapshot struct {
	record *models.HealthRecord
	trend  string
}

type statusChange struct {
	record   *models.HealthRecord
	previous models.HealthStatus
}

type fakePublisher struct {
	snapshots []publishedSnapshot
	changes   []statusChange
}

func (f *fakePublisher) PublishSnapshot(ctx context.Context, record *models.HealthRecord, trend string) error {
	f.snapshots = append(f.snapshots, publishedSnapshot{record: record, trend: trend})
	return nil
}

func (f *fakePublisher) PublishStatusChange(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus) error {
	f.changes = append(f.changes, statusChange{record: record, previous: previous})
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Monitor.AggregationInterval = 30
	cfg.Monitor.CacheCapacity = 100
	cfg.Monitor.DefaultAssetCategory = "ROAD_SECTION"
	cfg.Monitor.TrendWindow = 5
	return cfg
}

func newTestAggregator(thresholds *fakeThresholds, records *fakeRecordStore, alerts *fakeAlertCounter, publisher *fakePublisher) (*Aggregator, *ingest.ReadingCache, *ingest.SensorCountTracker) {
	cache := ingest.NewReadingCache(100)
	counts := ingest.NewSensorCountTracker()
	agg := NewAggregator(testConfig(), cache, counts, thresholds, records, alerts, publisher, zap.NewNop())
	agg.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return agg, cache, counts
}

func strainReading(sensorID string, value float64) models.Reading {
	return models.Reading{
		SensorID:       sensorID,
		SensorCategory: models.CategoryStrainGauge,
		MetricName:     "strain",
		Value:          &value,
		Timestamp:      time.Now(),
	}
}

func tempReading(sensorID string, value float64) models.Reading {
	return models.Reading{
		SensorID:       sensorID,
		SensorCategory: models.CategoryTemperature,
		MetricName:     "temperature",
		Value:          &value,
		Timestamp:      time.Now(),
	}
}

func TestRecomputeAll_WeightedScores(t *testing.T) {
	thresholds := &fakeThresholds{thresholds: []models.Threshold{
		{SensorCategory: models.CategoryStrainGauge, MetricName: "strain", WarningHigh: f64(100), CriticalHigh: f64(200)},
		*bridgeTemperatureThreshold(),
	}}
	records := &fakeRecordStore{}
	publisher := &fakePublisher{}
	agg, cache, counts := newTestAggregator(thresholds, records, &fakeAlertCounter{count: 2}, publisher)

	// 结构分组健康 100，环境分组健康 100，运营分组无读数默认 75
	cache.Record("bridge-1", strainReading("s1", 50))
	cache.Record("bridge-1", tempReading("t1", 25))
	counts.Apply("bridge-1", "ACTIVE")
	counts.Apply("bridge-1", "FAULTY")

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	record := records.created[0]
	assert.Equal(t, "bridge-1", record.AssetID)
	assert.Equal(t, 100.0, record.StructuralScore)
	assert.Equal(t, 100.0, record.EnvironmentalScore)
	assert.Equal(t, 75.0, record.OperationalScore)
	// 0.5*100 + 0.25*100 + 0.25*75
	assert.InDelta(t, 93.75, record.OverallScore, 0.001)
	assert.Equal(t, models.StatusHealthy, record.Status)
	assert.Equal(t, 1, record.ActiveSensorCount)
	assert.Equal(t, 2, record.TotalSensorCount)
	assert.Equal(t, 1, record.FaultySensorCount)
	assert.Equal(t, 2, record.ActiveAlertCount)
	assert.NotEmpty(t, record.ID)

	require.Len(t, publisher.snapshots, 1)
	assert.Equal(t, models.TrendStable, publisher.snapshots[0].trend)
}

func TestRecomputeAll_MissingThresholdUsesFallback(t *testing.T) {
	records := &fakeRecordStore{}
	agg, cache, _ := newTestAggregator(&fakeThresholds{}, records, &fakeAlertCounter{}, &fakePublisher{})

	cache.Record("asset-1", strainReading("s1", 999))

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	assert.Equal(t, 75.0, records.created[0].StructuralScore)
}

func TestRecomputeAll_CriticalBreachDrivesStatus(t *testing.T) {
	thresholds := &fakeThresholds{thresholds: []models.Threshold{
		{SensorCategory: models.CategoryStrainGauge, MetricName: "strain", WarningHigh: f64(100), CriticalHigh: f64(200)},
	}}
	records := &fakeRecordStore{}
	publisher := &fakePublisher{}
	agg, cache, _ := newTestAggregator(thresholds, records, &fakeAlertCounter{}, publisher)

	// 深度临界越界 → 结构分 0，总分 0.5*0 + 0.25*75 + 0.25*75 = 37.5
	cache.Record("asset-1", strainReading("s1", 5000))

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	record := records.created[0]
	assert.Equal(t, 0.0, record.StructuralScore)
	assert.InDelta(t, 37.5, record.OverallScore, 0.001)
	assert.Equal(t, models.StatusWarning, record.Status)

	// 上一条记录不存在时视为 UNKNOWN，状态变化应广播
	require.Len(t, publisher.changes, 1)
	assert.Equal(t, models.StatusUnknown, publisher.changes[0].previous)
}

func TestRecomputeAll_NoStatusChangeNoBroadcast(t *testing.T) {
	records := &fakeRecordStore{
		latest: &models.HealthRecord{AssetID: "asset-1", Status: models.StatusHealthy},
	}
	publisher := &fakePublisher{}
	agg, cache, _ := newTestAggregator(&fakeThresholds{}, records, &fakeAlertCounter{}, publisher)

	cache.Record("asset-1", tempReading("t1", 25))

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	assert.Equal(t, models.StatusHealthy, records.created[0].Status)
	assert.Len(t, publisher.snapshots, 1)
	assert.Empty(t, publisher.changes)
}

func TestRecomputeAll_MissingValuesNeutral(t *testing.T) {
	thresholds := &fakeThresholds{thresholds: []models.Threshold{
		*bridgeTemperatureThreshold(),
	}}
	records := &fakeRecordStore{}
	agg, cache, _ := newTestAggregator(thresholds, records, &fakeAlertCounter{}, &fakePublisher{})

	cache.Record("asset-1", models.Reading{
		SensorID:       "t1",
		SensorCategory: models.CategoryTemperature,
		MetricName:     "temperature",
		Timestamp:      time.Now(),
	})

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	assert.Equal(t, 50.0, records.created[0].EnvironmentalScore)
}

func TestRecomputeAll_AssetFailureIsolated(t *testing.T) {
	records := &fakeRecordStore{}
	thresholds := &fakeThresholds{err: errors.New("db down")}
	agg, cache, _ := newTestAggregator(thresholds, records, &fakeAlertCounter{}, &fakePublisher{})

	cache.Record("asset-1", tempReading("t1", 25))
	cache.Record("asset-2", tempReading("t2", 26))

	// 阈值查询失败时任何资产都不应崩溃，也不生成记录
	agg.RecomputeAll(context.Background())
	assert.Empty(t, records.created)
}

func TestRecomputeAll_AlertCountFailureTolerated(t *testing.T) {
	records := &fakeRecordStore{}
	agg, cache, _ := newTestAggregator(&fakeThresholds{}, records, &fakeAlertCounter{err: errors.New("db down")}, &fakePublisher{})

	cache.Record("asset-1", tempReading("t1", 25))

	agg.RecomputeAll(context.Background())

	require.Len(t, records.created, 1)
	assert.Equal(t, 0, records.created[0].ActiveAlertCount)
}

func TestInferAssetCategory(t *testing.T) {
	agg, _, _ := newTestAggregator(&fakeThresholds{}, &fakeRecordStore{}, &fakeAlertCounter{}, &fakePublisher{})

	bridge := []models.Reading{strainReading("s1", 1), tempReading("t1", 20)}
	assert.Equal(t, models.AssetBridge, agg.inferAssetCategory(bridge))

	tunnel := []models.Reading{strainReading("s1", 1)}
	assert.Equal(t, models.AssetTunnel, agg.inferAssetCategory(tunnel))

	road := []models.Reading{{SensorCategory: models.CategoryTrafficCounter}}
	assert.Equal(t, models.AssetRoadSection, agg.inferAssetCategory(road))
}
