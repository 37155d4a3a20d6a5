package notifier

import (
	"context"
	"fmt"
	"time"

	"roadinfra-monitor/internal/config"
	"roadinfra-monitor/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// 通知渠道
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

// Notification 发往外部通知服务的载荷
type Notification struct {
	AlertID         string               `json:"alert_id"`
	Event           string               `json:"event"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Severity        models.AlertSeverity `json:"severity"`
	EscalationLevel int                  `json:"escalation_level"`
	AssetID         string               `json:"asset_id"`
	AssetName       string               `json:"asset_name,omitempty"`
	SensorID        string               `json:"sensor_id,omitempty"`
	Channels        []string             `json:"channels"`
	Timestamp       time.Time            `json:"timestamp"`
}

// WebhookNotifier 通过 webhook 调用外部通知服务
// 渠道选择在本侧完成：邮件始终发送，短信在 CRITICAL 或升级 2 级以上时发送，
// webhook 转发在创建时和升级 3 级以上时发送
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookNotifier 创建 webhook 通知器
// 未配置 webhook 地址时所有通知静默跳过
func NewWebhookNotifier(cfg *config.Config, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(time.Duration(cfg.Alert.Notification.Timeout) * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second)

	return &WebhookNotifier{
		client: client,
		url:    cfg.Alert.Notification.WebhookURL,
		logger: logger,
	}
}

// NotifyCreated 发送报警创建通知
func (n *WebhookNotifier) NotifyCreated(ctx context.Context, alert *models.Alert) error {
	return n.send(ctx, "created", alert)
}

// NotifyEscalated 发送报警升级通知
func (n *WebhookNotifier) NotifyEscalated(ctx context.Context, alert *models.Alert) error {
	return n.send(ctx, "escalated", alert)
}

func (n *WebhookNotifier) send(ctx context.Context, event string, alert *models.Alert) error {
	if n.url == "" {
		return nil
	}

	notification := Notification{
		AlertID:         alert.ID,
		Event:           event,
		Title:           alert.Title,
		Description:     alert.Description,
		Severity:        alert.Severity,
		EscalationLevel: alert.EscalationLevel,
		AssetID:         alert.AssetID,
		AssetName:       alert.AssetName,
		SensorID:        alert.SensorID,
		Channels:        selectChannels(event, alert),
		Timestamp:       time.Now(),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notification).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Notification sent",
		zap.String("alert_id", alert.ID),
		zap.String("event", event),
		zap.Strings("channels", notification.Channels),
	)
	return nil
}

// selectChannels 根据严重级别和升级级别选择通知渠道
func selectChannels(event string, alert *models.Alert) []string {
	channels := []string{ChannelEmail}

	if alert.Severity == models.SeverityCritical || alert.EscalationLevel >= 2 {
		channels = append(channels, ChannelSMS)
	}
	if event == "created" || alert.EscalationLevel >= 3 {
		channels = append(channels, ChannelWebhook)
	}
	return channels
}
