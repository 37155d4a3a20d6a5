package ingest

import (
	"strings"
	"sync"

	"roadinfra-monitor/internal/models"
)

// SensorCountTracker 跟踪每个资产的传感器计数
// 根据传感器状态变更事件维护 active/total/faulty 三个计数
type SensorCountTracker struct {
	mu     sync.Mutex
	counts map[string]*models.SensorCounts
}

// NewSensorCountTracker 创建传感器计数跟踪器
func NewSensorCountTracker() *SensorCountTracker {
	return &SensorCountTracker{
		counts: make(map[string]*models.SensorCounts),
	}
}

// Apply 应用一条传感器状态变更
func (t *SensorCountTracker) Apply(assetID string, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts, ok := t.counts[assetID]
	if !ok {
		counts = &models.SensorCounts{}
		t.counts[assetID] = counts
	}

	switch strings.ToUpper(status) {
	case "ACTIVE", "ONLINE":
		counts.Active++
		counts.Total++
	case "INACTIVE", "OFFLINE":
		counts.Total++
	case "FAULTY", "ERROR":
		counts.Faulty++
		counts.Total++
	}
}

// Counts 返回资产的传感器计数（无记录时返回零值）
func (t *SensorCountTracker) Counts(assetID string) models.SensorCounts {
	t.mu.Lock()
	defer t.mu.Unlock()

	if counts, ok := t.counts[assetID]; ok {
		return *counts
	}
	return models.SensorCounts{}
}
