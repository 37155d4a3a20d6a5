package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/models"
	"roadinfra-monitor/pkg/mqtt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// HealthSnapshot 对外广播的健康快照
type HealthSnapshot struct {
	AssetID            string               `json:"asset_id"`
	AssetCategory      models.AssetCategory `json:"asset_category"`
	OverallScore       float64              `json:"overall_score"`
	StructuralScore    float64              `json:"structural_score"`
	EnvironmentalScore float64              `json:"environmental_score"`
	OperationalScore   float64              `json:"operational_score"`
	Status             models.HealthStatus  `json:"status"`
	Trend              string               `json:"trend"`
	ActiveSensorCount  int                  `json:"active_sensor_count"`
	TotalSensorCount   int                  `json:"total_sensor_count"`
	FaultySensorCount  int                  `json:"faulty_sensor_count"`
	ActiveAlertCount   int                  `json:"active_alert_count"`
	Timestamp          time.Time            `json:"timestamp"`
}

// StatusChangeEvent 健康状态变化事件
type StatusChangeEvent struct {
	AssetID        string              `json:"asset_id"`
	PreviousStatus models.HealthStatus `json:"previous_status"`
	CurrentStatus  models.HealthStatus `json:"current_status"`
	OverallScore   float64             `json:"overall_score"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Broadcaster 健康快照和报警事件的对外广播
// 快照写入 Redis 缓存（带 TTL，供查询服务直读），
// 同时推送 MQTT 主题供前端实时订阅；
// 状态变化额外触发健康状态报警
type Broadcaster struct {
	config *config.Config
	redis  *redis.Client
	mqtt   *mqtt.Client
	logger *zap.Logger

	// 状态变化回调，组装阶段注入（创建健康状态报警用）
	onStatusChange func(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus)
}

// NewBroadcaster 创建广播器（mqttClient 可以为 nil，此时只写 Redis 缓存）
func NewBroadcaster(cfg *config.Config, redisClient *redis.Client, mqttClient *mqtt.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		config: cfg,
		redis:  redisClient,
		mqtt:   mqttClient,
		logger: logger,
	}
}

// SetStatusChangeHandler 注入状态变化回调
func (b *Broadcaster) SetStatusChangeHandler(handler func(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus)) {
	b.onStatusChange = handler
}

// PublishSnapshot 发布资产健康快照
func (b *Broadcaster) PublishSnapshot(ctx context.Context, record *models.HealthRecord, trend string) error {
	snapshot := HealthSnapshot{
		AssetID:            record.AssetID,
		AssetCategory:      record.AssetCategory,
		OverallScore:       record.OverallScore,
		StructuralScore:    record.StructuralScore,
		EnvironmentalScore: record.EnvironmentalScore,
		OperationalScore:   record.OperationalScore,
		Status:             record.Status,
		Trend:              trend,
		ActiveSensorCount:  record.ActiveSensorCount,
		TotalSensorCount:   record.TotalSensorCount,
		FaultySensorCount:  record.FaultySensorCount,
		ActiveAlertCount:   record.ActiveAlertCount,
		Timestamp:          record.Timestamp,
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal health snapshot: %w", err)
	}

	key := b.snapshotKey(record.AssetID)
	ttl := time.Duration(b.config.Monitor.SnapshotTTL) * time.Second
	if err := b.redis.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache health snapshot: %w", err)
	}

	b.publishMQTT("roadinfra/health/"+record.AssetID, payload)
	return nil
}

// PublishStatusChange 发布健康状态变化事件
func (b *Broadcaster) PublishStatusChange(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus) error {
	event := StatusChangeEvent{
		AssetID:        record.AssetID,
		PreviousStatus: previous,
		CurrentStatus:  record.Status,
		OverallScore:   record.OverallScore,
		Timestamp:      record.Timestamp,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status change event: %w", err)
	}

	b.publishMQTT("roadinfra/health-changes", payload)

	if b.onStatusChange != nil {
		b.onStatusChange(ctx, record, previous)
	}
	return nil
}

// PublishAlertEvent 发布报警生命周期事件
func (b *Broadcaster) PublishAlertEvent(ctx context.Context, event string, alert *models.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	b.publishMQTT("roadinfra/alerts/"+event, payload)
	return nil
}

// GetSnapshot 从缓存读取资产健康快照（缓存未命中返回 nil）
func (b *Broadcaster) GetSnapshot(ctx context.Context, assetID string) (*HealthSnapshot, error) {
	data, err := b.redis.Get(ctx, b.snapshotKey(assetID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read health snapshot: %w", err)
	}

	var snapshot HealthSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health snapshot: %w", err)
	}
	return &snapshot, nil
}

// publishMQTT 推送 MQTT 消息，失败只记录日志（缓存写入为准）
func (b *Broadcaster) publishMQTT(topic string, payload []byte) {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return
	}
	if err := b.mqtt.Publish(topic, b.config.MQTT.QoS, false, payload); err != nil {
		b.logger.Warn("Failed to publish MQTT message",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

func (b *Broadcaster) snapshotKey(assetID string) string {
	return b.config.Monitor.SnapshotKeyPrefix + assetID + b.config.Monitor.SnapshotSuffix
}
