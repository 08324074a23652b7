package service

import (
	"sync"
	"time"

	"github.com/mautops/casework-gin/internal/model"
)

// MetadataCache 流程元数据缓存
type MetadataCache struct {
	cache *sync.Map
	ttl   time.Duration
	now   func() time.Time
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     *model.WorkflowMetadataModel
	expiresAt time.Time
}

// NewMetadataCache 创建流程元数据缓存
func NewMetadataCache(ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		cache: &sync.Map{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get 获取缓存
func (c *MetadataCache) Get(key string) (*model.WorkflowMetadataModel, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return nil, false
	}

	entry := val.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		// 已过期，删除
		c.cache.Delete(key)
		return nil, false
	}

	return entry.value, true
}

// Set 设置缓存
func (c *MetadataCache) Set(key string, value *model.WorkflowMetadataModel) {
	entry := &cacheEntry{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	c.cache.Store(key, entry)
}

// Invalidate 删除单个缓存
func (c *MetadataCache) Invalidate(key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *MetadataCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}
