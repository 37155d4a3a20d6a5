package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/models"
	redisx "roadinfra-monitor/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ReadingEvent 传感器读数事件（来自外部事件总线）
type ReadingEvent struct {
	AssetID        string    `json:"asset_id"`
	AssetName      string    `json:"asset_name,omitempty"`
	AssetCategory  string    `json:"asset_category,omitempty"`
	SensorID       string    `json:"sensor_id"`
	SensorName     string    `json:"sensor_name,omitempty"`
	SensorCategory string    `json:"sensor_category"`
	MetricName     string    `json:"metric_name"`
	Value          *float64  `json:"value,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// StatusEvent 传感器状态变更事件
type StatusEvent struct {
	AssetID  string `json:"asset_id"`
	SensorID string `json:"sensor_id,omitempty"`
	Status   string `json:"status"`
}

// ReadingHandler 读数处理接口（由规则匹配器实现）
type ReadingHandler interface {
	// HandleReading 针对一条读数评估所有报警规则
	HandleReading(ctx context.Context, event ReadingEvent)
}

// StreamConsumer 传感器事件消费者
// 从 Redis Streams 消费读数和状态事件，读数同时送入缓存（评分用）
// 和规则匹配器（报警用），两条路径互不依赖
type StreamConsumer struct {
	config  *config.Config
	client  *redis.Client
	cache   *ReadingCache
	counts  *SensorCountTracker
	handler ReadingHandler
	logger  *zap.Logger
}

// NewStreamConsumer 创建事件消费者
func NewStreamConsumer(
	cfg *config.Config,
	client *redis.Client,
	cache *ReadingCache,
	counts *SensorCountTracker,
	handler ReadingHandler,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:  cfg,
		client:  client,
		cache:   cache,
		counts:  counts,
		handler: handler,
		logger:  logger,
	}
}

// Start 启动消费者（阻塞直到 ctx 取消）
func (c *StreamConsumer) Start(ctx context.Context) error {
	group := c.config.Alert.ConsumerGroup

	if err := redisx.CreateConsumerGroup(ctx, c.client, c.config.Alert.ReadingStream, group); err != nil {
		return fmt.Errorf("failed to create reading consumer group: %w", err)
	}
	if err := redisx.CreateConsumerGroup(ctx, c.client, c.config.Alert.StatusStream, group); err != nil {
		return fmt.Errorf("failed to create status consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("reading_stream", c.config.Alert.ReadingStream),
		zap.String("status_stream", c.config.Alert.StatusStream),
		zap.String("group", group),
	)

	go c.consumeStatusLoop(ctx)
	c.consumeReadingLoop(ctx)

	return nil
}

// consumeReadingLoop 读数消费循环
func (c *StreamConsumer) consumeReadingLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Reading consumer stopped")
			return
		default:
		}

		messages, err := redisx.ReadFromStream(
			ctx,
			c.client,
			c.config.Alert.ReadingStream,
			c.config.Alert.ConsumerGroup,
			c.config.Alert.ConsumerName,
			int64(c.config.Alert.ReadBatchSize),
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read from reading stream",
				zap.Error(err),
			)
			continue
		}

		for _, msg := range messages {
			// 单条消息的处理失败不中断消费循环
			if err := c.handleReadingMessage(ctx, msg); err != nil {
				c.logger.Warn("Skipping malformed reading event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
			c.ack(ctx, c.config.Alert.ReadingStream, msg.ID)
		}
	}
}

// consumeStatusLoop 传感器状态消费循环
func (c *StreamConsumer) consumeStatusLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Status consumer stopped")
			return
		default:
		}

		messages, err := redisx.ReadFromStream(
			ctx,
			c.client,
			c.config.Alert.StatusStream,
			c.config.Alert.ConsumerGroup,
			c.config.Alert.ConsumerName,
			int64(c.config.Alert.ReadBatchSize),
		)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read from status stream",
				zap.Error(err),
			)
			continue
		}

		for _, msg := range messages {
			if err := c.handleStatusMessage(msg); err != nil {
				c.logger.Warn("Skipping malformed status event",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
			c.ack(ctx, c.config.Alert.StatusStream, msg.ID)
		}
	}
}

// handleReadingMessage 解析并分发一条读数事件
func (c *StreamConsumer) handleReadingMessage(ctx context.Context, msg redisx.StreamMessage) error {
	event, err := parseReadingEvent(msg.Values)
	if err != nil {
		return err
	}

	reading := models.Reading{
		SensorID:       event.SensorID,
		SensorName:     event.SensorName,
		SensorCategory: models.SensorCategory(strings.ToUpper(event.SensorCategory)),
		MetricName:     event.MetricName,
		Value:          event.Value,
		Timestamp:      event.Timestamp,
	}

	// 评分路径：写入缓存（非阻塞，fire-and-forget）
	c.cache.Record(event.AssetID, reading)

	// 报警路径：规则匹配
	if c.handler != nil {
		c.handler.HandleReading(ctx, *event)
	}

	c.logger.Debug("Cached sensor reading",
		zap.String("asset_id", event.AssetID),
		zap.String("metric", event.MetricName),
	)

	return nil
}

// handleStatusMessage 解析并应用一条传感器状态事件
func (c *StreamConsumer) handleStatusMessage(msg redisx.StreamMessage) error {
	event, err := parseStatusEvent(msg.Values)
	if err != nil {
		return err
	}

	c.counts.Apply(event.AssetID, event.Status)

	c.logger.Debug("Updated sensor counts",
		zap.String("asset_id", event.AssetID),
		zap.String("status", event.Status),
	)

	return nil
}

// parseReadingEvent 解析读数事件（消息体为 JSON 封装的 data 字段）
func parseReadingEvent(values map[string]interface{}) (*ReadingEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data field")
	}

	var event ReadingEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading event: %w", err)
	}

	// 必填字段校验
	if event.AssetID == "" {
		return nil, fmt.Errorf("missing asset_id")
	}
	if event.SensorID == "" {
		return nil, fmt.Errorf("missing sensor_id")
	}
	if event.MetricName == "" {
		event.MetricName = "default"
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return &event, nil
}

// parseStatusEvent 解析传感器状态事件
func parseStatusEvent(values map[string]interface{}) (*StatusEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data field")
	}

	var event StatusEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status event: %w", err)
	}

	if event.AssetID == "" {
		return nil, fmt.Errorf("missing asset_id")
	}
	if event.Status == "" {
		return nil, fmt.Errorf("missing status")
	}

	return &event, nil
}

// ack 确认消息；确认失败只记录日志（消息会被重复投递，下游处理可容忍重复）
func (c *StreamConsumer) ack(ctx context.Context, stream, messageID string) {
	if err := redisx.AckMessage(ctx, c.client, stream, c.config.Alert.ConsumerGroup, messageID); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("stream", stream),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
