package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/skinscan/internal/audit"
	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/whitelist"
)

func (s *Server) handleWhitelist(c *gin.Context) {
	doc, err := s.cfg.Whitelist.Load()
	if errors.Is(err, whitelist.ErrEmpty) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("load whitelist: %v", err))
		return
	}
	if t := strings.TrimSpace(c.Query("tier")); t != "" {
		tier, err := domain.ParseTier(strings.ToUpper(t))
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		items := make([]whitelist.Entry, 0, len(doc.Items))
		for _, e := range doc.Items {
			if e.Tier == tier {
				items = append(items, e)
			}
		}
		doc.Items = items
		doc.Total = len(items)
	}
	writeJSON(c, http.StatusOK, doc)
}

func (s *Server) handleSignals(c *gin.Context) {
	day := strings.TrimSpace(c.Query("day"))
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		writeError(c, http.StatusBadRequest, "day 格式应为 YYYY-MM-DD")
		return
	}
	sigs, err := s.cfg.Signals.ReadDay(day)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("read signals: %v", err))
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}
	writeJSON(c, http.StatusOK, gin.H{"day": day, "total": len(sigs), "signals": sigs})
}

func (s *Server) handleSignalDays(c *gin.Context) {
	days, err := s.cfg.Signals.Days()
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("list signal days: %v", err))
		return
	}
	if days == nil {
		days = []string{}
	}
	writeJSON(c, http.StatusOK, days)
}

func (s *Server) handleScansList(c *gin.Context) {
	limit := 50
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	batches, err := s.cfg.Audit.ListBatches(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list batches: %v", err))
		return
	}
	if batches == nil {
		batches = []audit.Batch{}
	}
	writeJSON(c, http.StatusOK, batches)
}

func (s *Server) handleScanGet(c *gin.Context) {
	batchID := strings.TrimSpace(c.Param("batch"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	outcomes, err := s.cfg.Audit.ListOutcomes(ctx, batchID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list outcomes: %v", err))
		return
	}
	if len(outcomes) == 0 {
		writeError(c, http.StatusNotFound, "batch not found")
		return
	}
	byStage, err := s.cfg.Audit.RejectionsByStage(ctx, batchID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db rejections: %v", err))
		return
	}
	if stage := strings.TrimSpace(c.Query("stage")); stage != "" {
		filtered := outcomes[:0:0]
		for _, o := range outcomes {
			if o.Stage == stage {
				filtered = append(filtered, o)
			}
		}
		outcomes = filtered
	}
	writeJSON(c, http.StatusOK, gin.H{
		"batch_id":   batchID,
		"rejections": byStage,
		"outcomes":   outcomes,
	})
}

func (s *Server) handleSource(c *gin.Context) {
	if s.cfg.Source == nil {
		writeError(c, http.StatusServiceUnavailable, "行情数据源未在本进程中运行")
		return
	}
	writeJSON(c, http.StatusOK, s.cfg.Source.Status())
}

func (s *Server) handleScheduler(c *gin.Context) {
	if s.cfg.Scheduler == nil {
		writeError(c, http.StatusServiceUnavailable, "调度未启用")
		return
	}
	writeJSON(c, http.StatusOK, s.cfg.Scheduler.Status())
}
