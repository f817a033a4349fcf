// Package retry 提供统一的重试策略：最大尝试次数、退避函数、可重试判定。
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff 根据已失败的次数（从 1 开始）返回下一次等待时长
type Backoff func(failures int) time.Duration

// Linear 线性退避：第 n 次失败后等待 n*step
func Linear(step time.Duration) Backoff {
	return func(failures int) time.Duration {
		return time.Duration(failures) * step
	}
}

// Sleeper 可被 ctx 打断的等待
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep 默认等待实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Retryable   func(error) bool
	Sleep       Sleeper
}

// ExhaustedError 重试次数耗尽，Err 为最后一次错误
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("重试 %d 次后仍失败: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do 执行 fn，直到成功、遇到不可重试错误或尝试次数耗尽。
// 不可重试错误原样返回；耗尽时返回 *ExhaustedError。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}
