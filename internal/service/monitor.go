package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roadinfra-monitor/internal/alerting"
	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/evaluator"
	"roadinfra-monitor/internal/ingest"
	"roadinfra-monitor/internal/models"
	"roadinfra-monitor/internal/notifier"
	"roadinfra-monitor/internal/repository"
	"roadinfra-monitor/pkg/database"
	"roadinfra-monitor/pkg/mqtt"
	redisx "roadinfra-monitor/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MonitorService 监测服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	thresholdRepo    *repository.ThresholdRepository
	alertRuleRepo    *repository.AlertRuleRepository
	alertRepo        *repository.AlertRepository
	healthRecordRepo *repository.HealthRecordRepository
	readingCache     *ingest.ReadingCache
	sensorCounts     *ingest.SensorCountTracker
	broadcaster      *Broadcaster
	aggregator       *evaluator.Aggregator
	alertManager     *alerting.AlertManager
	ruleMatcher      *alerting.RuleMatcher
	escalator        *alerting.Escalator
	consumer         *ingest.StreamConsumer

	cancel context.CancelFunc
}

// NewMonitorService 创建监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT（可选，连接失败只降级不阻止启动）
	var mqttClient *mqtt.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Warn("MQTT connection failed, realtime push disabled",
				zap.Error(err),
			)
			mqttClient = nil
		}
	}

	// 4. 创建 Repository 层
	thresholdRepo := repository.NewThresholdRepository(db, logger)
	alertRuleRepo := repository.NewAlertRuleRepository(db, logger)
	alertRepo := repository.NewAlertRepository(db, logger)
	healthRecordRepo := repository.NewHealthRecordRepository(db, logger)

	// 5. 创建内存层
	readingCache := ingest.NewReadingCache(cfg.Monitor.CacheCapacity)
	sensorCounts := ingest.NewSensorCountTracker()

	// 6. 创建广播器
	broadcaster := NewBroadcaster(cfg, redisClient, mqttClient, logger)

	// 7. 创建报警层
	notify := notifier.NewWebhookNotifier(cfg, logger)
	alertManager := alerting.NewAlertManager(
		alertRepo,
		broadcaster,
		notify,
		models.AlertSeverity(cfg.Alert.Notification.MinSeverity),
		logger,
	)
	escalator := alerting.NewEscalator(cfg, alertRepo, alertRuleRepo, broadcaster, notify, logger)
	alertManager.SetScheduler(escalator)
	ruleMatcher := alerting.NewRuleMatcher(
		alertRuleRepo,
		alertManager,
		time.Duration(cfg.Alert.RuleCacheTTL)*time.Second,
		logger,
	)

	// 健康状态变化（广播侧）触发状态报警
	broadcaster.SetStatusChangeHandler(func(ctx context.Context, record *models.HealthRecord, previous models.HealthStatus) {
		if err := alertManager.CreateFromStatusChange(ctx, record, previous); err != nil {
			logger.Error("Failed to create status change alert",
				zap.String("asset_id", record.AssetID),
				zap.Error(err),
			)
		}
	})

	// 8. 创建评分层
	aggregator := evaluator.NewAggregator(
		cfg,
		readingCache,
		sensorCounts,
		thresholdRepo,
		healthRecordRepo,
		alertRepo,
		broadcaster,
		logger,
	)

	// 9. 创建事件消费者
	consumer := ingest.NewStreamConsumer(cfg, redisClient, readingCache, sensorCounts, ruleMatcher, logger)

	return &MonitorService{
		config:           cfg,
		db:               db,
		redisClient:      redisClient,
		mqttClient:       mqttClient,
		logger:           logger,
		thresholdRepo:    thresholdRepo,
		alertRuleRepo:    alertRuleRepo,
		alertRepo:        alertRepo,
		healthRecordRepo: healthRecordRepo,
		readingCache:     readingCache,
		sensorCounts:     sensorCounts,
		broadcaster:      broadcaster,
		aggregator:       aggregator,
		alertManager:     alertManager,
		ruleMatcher:      ruleMatcher,
		escalator:        escalator,
		consumer:         consumer,
	}, nil
}

// Start 启动服务（非阻塞）
func (s *MonitorService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("Starting monitor service")

	go s.aggregator.Run(ctx)
	go s.escalator.Run(ctx)
	go func() {
		if err := s.consumer.Start(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Stream consumer exited",
				zap.Error(err),
			)
		}
	}()

	return nil
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	if s.cancel != nil {
		s.cancel()
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}
