package config

import (
	"os"
	"strconv"

	"roadinfra-monitor/pkg/config"
)

// Config 监测引擎配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 健康评分配置
	Monitor struct {
		AggregationInterval  int    // 评分周期（秒），默认 30
		CacheCapacity        int    // 每个资产缓存的读数条数，默认 100
		SnapshotTTL          int    // 健康快照缓存 TTL（秒），默认 90
		SnapshotKeyPrefix    string // 健康快照缓存键前缀，如 "roadinfra:asset:"
		SnapshotSuffix       string // 健康快照缓存键后缀，如 ":health"
		DefaultAssetCategory string // 类型推断失败时的默认资产类型
		TrendWindow          int    // 趋势计算回看的历史记录条数，默认 5
	}

	// 报警配置
	Alert struct {
		ReadingStream string // 传感器读数 stream，如 "roadinfra:sensor-readings"
		StatusStream  string // 传感器状态 stream，如 "roadinfra:sensor-status"
		ConsumerGroup string // 消费者组名称
		ConsumerName  string // 消费者名称
		ReadBatchSize int    // 每次读取的消息数量，默认 50
		RuleCacheTTL  int    // 规则列表缓存 TTL（秒），默认 60

		Notification struct {
			WebhookURL  string // 外部通知服务 webhook 地址
			MinSeverity string // 创建通知的最低严重级别，默认 "MEDIUM"
			Timeout     int    // 请求超时（秒），默认 10
		}
	}

	// 升级配置
	Escalation struct {
		SweepInterval  int // 周期扫描间隔（秒），默认 300
		StaleAfter     int // 扫描只处理触发超过该时长（分钟）的报警，默认 30
		DefaultStep    int // 无规则报警的默认升级步长（分钟），默认 60
		MaxLevel       int // 最大升级级别，默认 3
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 基础设施配置：代码默认值 + 共享的环境变量加载
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "roadinfra",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", cfg.Database.MaxIdle)

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "roadinfra-monitor",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Monitor.AggregationInterval = getEnvInt("MONITOR_INTERVAL", 30)
	cfg.Monitor.CacheCapacity = getEnvInt("MONITOR_CACHE_CAPACITY", 100)
	cfg.Monitor.SnapshotTTL = getEnvInt("MONITOR_SNAPSHOT_TTL", 90)
	cfg.Monitor.SnapshotKeyPrefix = getEnv("MONITOR_SNAPSHOT_PREFIX", "roadinfra:asset:")
	cfg.Monitor.SnapshotSuffix = ":health"
	cfg.Monitor.DefaultAssetCategory = getEnv("MONITOR_DEFAULT_CATEGORY", "ROAD_SECTION")
	cfg.Monitor.TrendWindow = 5

	cfg.Alert.ReadingStream = getEnv("ALERT_READING_STREAM", "roadinfra:sensor-readings")
	cfg.Alert.StatusStream = getEnv("ALERT_STATUS_STREAM", "roadinfra:sensor-status")
	cfg.Alert.ConsumerGroup = getEnv("ALERT_CONSUMER_GROUP", "roadinfra-monitor")
	cfg.Alert.ConsumerName = getEnv("ALERT_CONSUMER_NAME", "monitor-1")
	cfg.Alert.ReadBatchSize = getEnvInt("ALERT_READ_BATCH", 50)
	cfg.Alert.RuleCacheTTL = getEnvInt("ALERT_RULE_CACHE_TTL", 60)
	cfg.Alert.Notification.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Alert.Notification.MinSeverity = getEnv("NOTIFY_MIN_SEVERITY", "MEDIUM")
	cfg.Alert.Notification.Timeout = getEnvInt("NOTIFY_TIMEOUT", 10)

	cfg.Escalation.SweepInterval = getEnvInt("ESCALATION_SWEEP_INTERVAL", 300)
	cfg.Escalation.StaleAfter = getEnvInt("ESCALATION_STALE_AFTER", 30)
	cfg.Escalation.DefaultStep = getEnvInt("ESCALATION_DEFAULT_STEP", 60)
	cfg.Escalation.MaxLevel = getEnvInt("ESCALATION_MAX_LEVEL", 3)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
