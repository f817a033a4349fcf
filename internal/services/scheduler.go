package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/pkg/sigchan"
)

var schedLog = logrus.WithField("component", "scheduler")

// Job 一次流水线运行
type Job func(ctx context.Context) error

// JobStatus 最近一次运行
type JobStatus struct {
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	Next       time.Time `json:"next"`
}

// SchedulerStatus 调度状态快照
type SchedulerStatus struct {
	Running string    `json:"running,omitempty"` // 正在运行的任务名
	Scan    JobStatus `json:"scan"`
	Invest  JobStatus `json:"invest"`
}

// Scheduler 进程内调度：按间隔扫描，每天固定时刻执行下单。
// 所有任务在同一个 goroutine 中依次运行，任意时刻最多一条流水线。
type Scheduler struct {
	scan     Job
	invest   Job
	interval time.Duration
	hour     int
	minute   int
	tick     time.Duration
	now      func() time.Time
	trigger  *sigchan.Chan

	mu     sync.RWMutex
	status SchedulerStatus
}

// NewScheduler investAt 格式 HH:MM（本地时间）
func NewScheduler(scan, invest Job, interval time.Duration, investAt string) (*Scheduler, error) {
	at, err := time.Parse("15:04", investAt)
	if err != nil {
		return nil, fmt.Errorf("invest_at 格式应为 HH:MM: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("扫描间隔必须大于 0")
	}
	return &Scheduler{
		scan:     scan,
		invest:   invest,
		interval: interval,
		hour:     at.Hour(),
		minute:   at.Minute(),
		tick:     30 * time.Second,
		now:      time.Now,
		trigger:  sigchan.New(1),
	}, nil
}

// WithClock 测试用
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run 运行调度循环直到 ctx 结束。启动后立即扫描一次。
func (s *Scheduler) Run(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	s.status.Scan.Next = now
	s.status.Invest.Next = nextDaily(now, s.hour, s.minute)
	s.mu.Unlock()
	schedLog.Infof("调度已启动：每 %s 扫描，每天 %02d:%02d 执行", s.interval, s.hour, s.minute)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.checkAndRun(ctx)
	for {
		select {
		case <-ctx.Done():
			schedLog.Info("调度已停止")
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		case <-s.trigger.C():
			s.markScanDue()
			s.checkAndRun(ctx)
		}
	}
}

// TriggerScan 请求尽快扫描一次；正在运行的任务结束后生效，多次请求合并
func (s *Scheduler) TriggerScan() {
	s.trigger.Emit()
}

func (s *Scheduler) markScanDue() {
	now := s.now()
	s.mu.Lock()
	if s.status.Scan.Next.After(now) {
		s.status.Scan.Next = now
	}
	s.mu.Unlock()
}

// checkAndRun 到期的任务依次运行：先扫描，再执行
func (s *Scheduler) checkAndRun(ctx context.Context) {
	now := s.now()
	s.mu.RLock()
	scanDue := !now.Before(s.status.Scan.Next)
	investDue := !now.Before(s.status.Invest.Next)
	s.mu.RUnlock()

	if scanDue && ctx.Err() == nil {
		s.run(ctx, "scan", s.scan, &s.status.Scan, func(t time.Time) time.Time { return t.Add(s.interval) })
	}
	if investDue && ctx.Err() == nil {
		s.run(ctx, "invest", s.invest, &s.status.Invest, func(t time.Time) time.Time { return nextDaily(t, s.hour, s.minute) })
	}
}

func (s *Scheduler) run(ctx context.Context, name string, job Job, st *JobStatus, next func(time.Time) time.Time) {
	started := s.now()
	s.mu.Lock()
	s.status.Running = name
	st.StartedAt = started
	s.mu.Unlock()

	err := job(ctx)

	finished := s.now()
	s.mu.Lock()
	s.status.Running = ""
	st.FinishedAt = finished
	st.Error = ""
	if err != nil {
		st.Error = err.Error()
	}
	st.Next = next(finished)
	s.mu.Unlock()

	if err != nil {
		schedLog.Errorf("%s 运行失败: %v", name, err)
	}
	schedLog.Infof("%s 下次运行 %s", name, st.Next.Format("2006-01-02 15:04"))
}

// Status 当前状态快照
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// nextDaily now 之后（不含）的下一个 hh:mm
func nextDaily(now time.Time, hour, minute int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
