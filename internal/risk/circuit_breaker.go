package risk

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/betbot/skinscan/internal/domain"
)

// ErrCircuitBreakerOpen 表示断路器已打开，本次运行禁止继续下单。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// BusyThreshold 连续"繁忙"响应上限（限流 / 系统繁忙业务码）。
	BusyThreshold int64
}

// CircuitBreaker 单次执行运行内的繁忙计数与成功计数。
//
// 说明：
// - 只有繁忙响应会累加计数；任何非繁忙响应都会打断"连续"。
// - 一旦打开就保持打开；每次运行创建新的断路器。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveBusy atomic.Int64
	successes       atomic.Int64
	lastSuccessNano atomic.Int64
	startedNano     atomic.Int64

	busyThreshold atomic.Int64

	now func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{now: time.Now}
	cb.SetConfig(cfg)
	cb.startedNano.Store(cb.now().UnixNano())
	return cb
}

// WithClock 测试用
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	cb.startedNano.Store(now().UnixNano())
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.busyThreshold.Store(cfg.BusyThreshold)
}

// Halt 手动熔断（如认证失效）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// AllowTrading 快路径检查是否允许继续下单。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}
	limit := cb.busyThreshold.Load()
	if limit > 0 && cb.consecutiveBusy.Load() >= limit {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}
	return nil
}

// OnBusy 记录一次繁忙响应，返回是否因此打开断路器。
func (cb *CircuitBreaker) OnBusy() bool {
	if cb == nil {
		return false
	}
	n := cb.consecutiveBusy.Add(1)
	limit := cb.busyThreshold.Load()
	if limit > 0 && n >= limit {
		cb.halted.Store(true)
		return true
	}
	return false
}

// OnSuccess 下单成功：清空繁忙计数并累计成功数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveBusy.Store(0)
	cb.successes.Add(1)
	cb.lastSuccessNano.Store(cb.now().UnixNano())
}

// OnNeutral 非繁忙、非成功的响应（报价返回、业务拒绝等），只打断连续繁忙。
func (cb *CircuitBreaker) OnNeutral() {
	if cb == nil {
		return
	}
	cb.consecutiveBusy.Store(0)
}

// Successes 本次运行成功数
func (cb *CircuitBreaker) Successes() int {
	if cb == nil {
		return 0
	}
	return int(cb.successes.Load())
}

// Snapshot 当前状态快照
func (cb *CircuitBreaker) Snapshot() domain.CircuitState {
	if cb == nil {
		return domain.CircuitState{}
	}
	ref := cb.lastSuccessNano.Load()
	if ref == 0 {
		ref = cb.startedNano.Load()
	}
	return domain.CircuitState{
		BusyCount:        int(cb.consecutiveBusy.Load()),
		SuccessCount:     int(cb.successes.Load()),
		SinceLastSuccess: cb.now().Sub(time.Unix(0, ref)),
		Tripped:          cb.halted.Load(),
	}
}
