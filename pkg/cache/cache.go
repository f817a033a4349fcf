package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// Clock 返回当前时间，测试中可替换
type Clock func() time.Time

// TTLCache 带显式过期时间的内存缓存。
// 不启动后台清理 goroutine：过期项在读取时惰性淘汰，或由 Purge 主动清理。
type TTLCache[K comparable, V any] struct {
	items      map[K]entry[V]
	mu         sync.Mutex
	defaultTTL time.Duration
	now        Clock
}

// entry 缓存项，每项携带自己的过期时间
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New 创建缓存；now 为 nil 时使用 time.Now
func New[K comparable, V any](defaultTTL time.Duration, now Clock) *TTLCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[K, V]{
		items:      make(map[K]entry[V]),
		defaultTTL: defaultTTL,
		now:        now,
	}
}

// Get 获取缓存值，过期项视为不存在并被删除
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	item, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return zero, false
	}
	return item.value, true
}

// Set 设置缓存值；ttl <= 0 时使用默认 TTL
func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.items[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// ExpiresAt 返回某个键的过期时间
func (c *TTLCache[K, V]) ExpiresAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return time.Time{}, false
	}
	return item.expiresAt, true
}

// Delete 删除缓存项
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear 清空缓存
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]entry[V])
}

// Size 返回缓存项数量（包含尚未淘汰的过期项）
func (c *TTLCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Purge 清理所有过期项，返回清理数量
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}
