package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NewMinInterval 创建一个保证两次请求之间至少间隔 interval 的限制器（burst=1）。
// interval <= 0 表示不限速。
func NewMinInterval(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Pacer 按端点管理最小请求间隔。所有出站请求在发出前都要经过 Wait，
// 与连接状态无关。
type Pacer struct {
	limiters map[string]*rate.Limiter
	fallback time.Duration
	mu       sync.Mutex
}

// NewPacer 创建端点节流器；intervals 为端点到最小间隔的映射，未配置的端点使用 fallback
func NewPacer(intervals map[string]time.Duration, fallback time.Duration) *Pacer {
	p := &Pacer{
		limiters: make(map[string]*rate.Limiter, len(intervals)),
		fallback: fallback,
	}
	for endpoint, interval := range intervals {
		p.limiters[endpoint] = NewMinInterval(interval)
	}
	return p
}

// limiter 获取指定端点的速率限制器，不存在时按 fallback 创建
func (p *Pacer) limiter(endpoint string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[endpoint]; ok {
		return l
	}
	l := NewMinInterval(p.fallback)
	p.limiters[endpoint] = l
	return l
}

// Wait 等待直到允许向该端点发出请求
func (p *Pacer) Wait(ctx context.Context, endpoint string) error {
	return p.limiter(endpoint).Wait(ctx)
}
