// Package server 只读状态服务：白名单、信号日志、扫描审计、行情连接状态与 Prometheus 指标。
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betbot/skinscan/internal/audit"
	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/services"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/whitelist"
)

// WhitelistReader *whitelist.Store
type WhitelistReader interface {
	Load() (whitelist.Document, error)
}

// SignalReader *signal.Journal
type SignalReader interface {
	ReadDay(day string) ([]domain.Signal, error)
	Days() ([]string, error)
}

// AuditReader *audit.Store
type AuditReader interface {
	ListBatches(ctx context.Context, limit int) ([]audit.Batch, error)
	ListOutcomes(ctx context.Context, batchID string) ([]audit.Outcome, error)
	RejectionsByStage(ctx context.Context, batchID string) (map[string]int, error)
}

// SourceStatus *source.Source
type SourceStatus interface {
	Status() source.Status
}

// SchedulerStatus *services.Scheduler
type SchedulerStatus interface {
	Status() services.SchedulerStatus
}

// Config 服务依赖；Source 与 Scheduler 可为 nil
type Config struct {
	Whitelist WhitelistReader
	Signals   SignalReader
	Audit     AuditReader
	Source    SourceStatus
	Scheduler SchedulerStatus
}

type Server struct {
	cfg Config
}

func New(cfg Config) (*Server, error) {
	if cfg.Whitelist == nil || cfg.Signals == nil || cfg.Audit == nil {
		return nil, errors.New("whitelist, signals and audit are required")
	}
	return &Server{cfg: cfg}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.GET("/whitelist", s.handleWhitelist)
	api.GET("/signals", s.handleSignals)
	api.GET("/signals/days", s.handleSignalDays)
	api.GET("/scans", s.handleScansList)
	api.GET("/scans/:batch", s.handleScanGet)
	api.GET("/source", s.handleSource)
	api.GET("/scheduler", s.handleScheduler)

	return r
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
