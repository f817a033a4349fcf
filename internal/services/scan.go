package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/audit"
	"github.com/betbot/skinscan/internal/csqaq"
	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/filter"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/tiering"
	"github.com/betbot/skinscan/internal/whitelist"
	"github.com/betbot/skinscan/pkg/config"
)

var scanLog = logrus.WithField("component", "scan")

// MarketSource 扫描所需的行情能力，*source.Source 满足该接口
type MarketSource interface {
	filter.Lookup
	BeginBurst()
	RankPage(ctx context.Context, f csqaq.RankFilter, page, size int) ([]domain.RawMarketRecord, error)
	PurgeCache() int
}

// BatchRecorder 扫描审计，*audit.Store 满足该接口
type BatchRecorder interface {
	RecordBatch(ctx context.Context, b audit.Batch, candidates []domain.Candidate) error
}

// ScanResult 一次扫描的结果
type ScanResult struct {
	BatchID   string
	Records   int
	Accepted  int
	Baseline  float64
	Tiers     map[domain.Tier]int
	Whitelist whitelist.Document
}

// ScanService 拉取排行榜 → 过滤 → 分级 → 写白名单 → 记录审计
type ScanService struct {
	cfg       config.ScannerConfig
	pages     int
	pageSize  int
	src       MarketSource
	pipeline  *filter.Pipeline
	engine    *tiering.Engine
	whitelist *whitelist.Store
	audit     BatchRecorder // 可为 nil
	now       func() time.Time
}

// NewScanService 组装扫描服务
func NewScanService(scanner config.ScannerConfig, pricing config.PricingConfig, src MarketSource, wl *whitelist.Store, rec BatchRecorder) *ScanService {
	pages := pricing.RankPages
	if pages <= 0 {
		pages = 1
	}
	size := pricing.RankPageSize
	if size <= 0 {
		size = 100
	}
	return &ScanService{
		cfg:       scanner,
		pages:     pages,
		pageSize:  size,
		src:       src,
		pipeline:  filter.NewDefault(scanner.Filters, src),
		engine:    tiering.New(scanner.Tiering, scanner.Filters.MinLeaseRatio),
		whitelist: wl,
		audit:     rec,
		now:       time.Now,
	}
}

// WithClock 测试用
func (s *ScanService) WithClock(now func() time.Time) *ScanService {
	s.now = now
	return s
}

// Scan 执行一次完整扫描。
// 连接级错误（冷却、凭证失效）结束本次扫描，白名单保持上一次的结果。
func (s *ScanService) Scan(ctx context.Context) (ScanResult, error) {
	batchID := uuid.NewString()
	started := s.now()
	res := ScanResult{BatchID: batchID, Tiers: make(map[domain.Tier]int)}
	scanLog.Infof("开始扫描 batch=%s 策略数=%d", batchID, len(s.cfg.Strategies))

	records, err := s.fetch(ctx)
	res.Records = len(records)
	if err != nil {
		s.finish(ctx, started, res, nil, err)
		return res, err
	}

	res.Baseline = tiering.Baseline(records)
	candidates, err := s.pipeline.Run(ctx, records)
	if err != nil {
		s.finish(ctx, started, res, candidates, err)
		return res, err
	}

	ranked := s.engine.Rank(candidates, res.Baseline)
	for _, c := range ranked {
		res.Tiers[c.Outcome.Tier]++
	}
	res.Accepted = len(ranked)
	res.Whitelist = whitelist.Build(ranked, batchID, s.cfg.BuyDiscount, s.now())
	if err := s.whitelist.Save(res.Whitelist); err != nil {
		s.finish(ctx, started, res, candidates, err)
		return res, err
	}

	s.finish(ctx, started, res, mergeTiers(candidates, ranked), nil)
	scanLog.Infof("扫描完成 batch=%s 记录=%d 通过=%d S=%d A=%d B=%d C=%d 白名单=%s",
		batchID, res.Records, res.Accepted,
		res.Tiers[domain.TierS], res.Tiers[domain.TierA], res.Tiers[domain.TierB], res.Tiers[domain.TierC],
		s.whitelist.Path())
	return res, nil
}

// fetch 按策略逐页拉取排行榜，按饰品 ID 去重（先出现的保留）
func (s *ScanService) fetch(ctx context.Context) ([]domain.RawMarketRecord, error) {
	seen := make(map[string]bool)
	var out []domain.RawMarketRecord
	for _, st := range s.cfg.Strategies {
		s.src.BeginBurst()
		rf := csqaq.RankFilter{
			Types:       st.Types,
			MinPrice:    st.MinPrice,
			MaxPrice:    st.MaxPrice,
			MinYieldPct: st.MinYieldPct,
			MinOnSale:   st.MinOnSale,
			MinLeased:   st.MinLeased,
		}
		added := 0
		for page := 1; page <= s.pages; page++ {
			rows, err := s.src.RankPage(ctx, rf, page, s.pageSize)
			if err != nil {
				if source.IsFatal(err) {
					return out, fmt.Errorf("策略 %s 第 %d 页: %w", st.Name, page, err)
				}
				scanLog.Warnf("策略 %s 第 %d 页拉取失败，跳过剩余页: %v", st.Name, page, err)
				break
			}
			for _, r := range rows {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
				out = append(out, r)
				added++
			}
			if len(rows) < s.pageSize {
				break
			}
		}
		scanLog.Infof("策略 %s 新增 %d 条记录", st.Name, added)
	}
	return out, nil
}

// mergeTiers 用分级后的候选替换通过的候选，拒绝的保持原样
func mergeTiers(all, ranked []domain.Candidate) []domain.Candidate {
	byID := make(map[string]domain.Candidate, len(ranked))
	for _, c := range ranked {
		byID[c.Record.ID] = c
	}
	out := make([]domain.Candidate, 0, len(all))
	for _, c := range all {
		if r, ok := byID[c.Record.ID]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *ScanService) finish(ctx context.Context, started time.Time, res ScanResult, candidates []domain.Candidate, scanErr error) {
	result := "ok"
	if scanErr != nil {
		result = "error"
		scanLog.Errorf("扫描中止 batch=%s: %v", res.BatchID, scanErr)
	}
	metrics.ScanRuns.WithLabelValues(result).Inc()

	if n := s.src.PurgeCache(); n > 0 {
		scanLog.Debugf("清理过期缓存 %d 条", n)
	}
	if s.audit == nil {
		return
	}
	b := audit.Batch{
		BatchID:    res.BatchID,
		StartedAt:  started,
		FinishedAt: s.now(),
		Total:      res.Records,
		Accepted:   res.Accepted,
		Baseline:   res.Baseline,
	}
	if scanErr != nil {
		b.Error = scanErr.Error()
	}
	// 审计写入失败不影响扫描结果
	if err := s.audit.RecordBatch(context.WithoutCancel(ctx), b, candidates); err != nil {
		scanLog.Warnf("写入扫描审计失败 batch=%s: %v", res.BatchID, err)
	}
}
