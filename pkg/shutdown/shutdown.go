// Package shutdown 进程退出时按注册的逆序执行清理：先停止对外服务，再关闭存储。
package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Hook 清理函数；ctx 带超时
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Manager 优雅关闭管理器
type Manager struct {
	mu    sync.Mutex
	hooks []namedHook
	done  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册清理函数
func (m *Manager) OnShutdown(name string, fn Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, fn: fn})
}

// Shutdown 逆序执行全部清理函数，只执行一次。超时后剩余的清理函数不再执行。
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	hooks := m.hooks
	m.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := ctx.Err(); err != nil {
			log.Warnf("关闭超时，跳过 %s 及之前注册的清理: %v", h.name, err)
			return
		}
		if err := h.fn(ctx); err != nil {
			log.Warnf("关闭 %s 失败: %v", h.name, err)
			continue
		}
		log.Debugf("已关闭 %s", h.name)
	}
}
