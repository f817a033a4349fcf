// Package syncgroup 管理后台 goroutine 的生命周期：统一启动，退出时等待全部结束。
package syncgroup

import (
	"sync"
	"time"
)

// SyncGroup sync.WaitGroup 的包装，Add/Done 由 Go 自动配对
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	running map[string]int
}

func NewSyncGroup() *SyncGroup {
	return &SyncGroup{running: make(map[string]int)}
}

// Go 以给定名字启动一个 goroutine
func (g *SyncGroup) Go(name string, fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.running[name]++
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer func() {
			g.mu.Lock()
			if g.running[name]--; g.running[name] <= 0 {
				delete(g.running, name)
			}
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn()
	}()
}

// Running 仍在运行的 goroutine 名字
func (g *SyncGroup) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.running))
	for name := range g.running {
		out = append(out, name)
	}
	return out
}

// Wait 等待全部结束
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitTimeout 最多等待 d；全部结束返回 true
func (g *SyncGroup) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
