package ingest

import (
	"sync"

	"roadinfra-monitor/internal/models"
)

// ReadingCache 按资产分桶的读数缓存
// 每个资产的缓冲区容量固定，超出时丢弃最旧的读数（FIFO），
// 各资产的缓冲区独立加锁，互不阻塞
type ReadingCache struct {
	capacity int

	mu      sync.RWMutex // 只保护 buffers map 本身
	buffers map[string]*assetBuffer
}

// assetBuffer 单个资产的读数缓冲区
type assetBuffer struct {
	mu       sync.Mutex
	readings []models.Reading
}

// NewReadingCache 创建读数缓存
func NewReadingCache(capacity int) *ReadingCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReadingCache{
		capacity: capacity,
		buffers:  make(map[string]*assetBuffer),
	}
}

// Record 追加一条读数到资产的缓冲区
func (c *ReadingCache) Record(assetID string, reading models.Reading) {
	buf := c.buffer(assetID)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.readings = append(buf.readings, reading)
	if len(buf.readings) > c.capacity {
		// 丢弃最旧的读数，保持容量上限
		overflow := len(buf.readings) - c.capacity
		buf.readings = buf.readings[overflow:]
	}
}

// Snapshot 返回资产当前缓冲区内容的副本（不阻塞生产者）
func (c *ReadingCache) Snapshot(assetID string) []models.Reading {
	c.mu.RLock()
	buf, ok := c.buffers[assetID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	snapshot := make([]models.Reading, len(buf.readings))
	copy(snapshot, buf.readings)
	return snapshot
}

// AssetIDs 返回当前有缓存读数的资产ID列表
func (c *ReadingCache) AssetIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.buffers))
	for id := range c.buffers {
		ids = append(ids, id)
	}
	return ids
}

// buffer 获取或创建资产的缓冲区
func (c *ReadingCache) buffer(assetID string) *assetBuffer {
	c.mu.RLock()
	buf, ok := c.buffers[assetID]
	c.mu.RUnlock()
	if ok {
		return buf
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok = c.buffers[assetID]; ok {
		return buf
	}
	buf = &assetBuffer{}
	c.buffers[assetID] = buf
	return buf
}
