// Package filter 把整张排行榜逐条收敛成可投资的候选。
// 各阶段按固定顺序执行，任一阶段拒绝即停止，后续阶段（以及它们需要的网络请求）不会发生。
package filter

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/pkg/config"
)

var log = logrus.WithField("component", "filter")

// 阶段名，同时用作审计和指标标签
const (
	StagePriceBand = "price_band"
	StageYield     = "yield"
	StageTrend     = "trend"
	StageLiquidity = "liquidity"
	StageStability = "stability"
	StagePremium   = "premium"
)

// Rejection 阶段拒绝原因
type Rejection struct {
	Stage  string
	Reason string
}

func (r *Rejection) Error() string { return r.Stage + ": " + r.Reason }

func reject(stage, format string, args ...any) *Rejection {
	return &Rejection{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// Stage 单个过滤阶段。
// 返回 (新候选, nil, nil) 表示通过；(_, rejection, nil) 表示拒绝；error 表示查询失败。
type Stage interface {
	Name() string
	Apply(ctx context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error)
}

// DetailLookup 详情查询（流动性阶段补全出租数）
type DetailLookup interface {
	ItemDetail(ctx context.Context, id string) (domain.RawMarketRecord, error)
}

// HistoryLookup 历史价格序列查询（稳定性阶段）
type HistoryLookup interface {
	PriceHistory(ctx context.Context, id, key string, days int) ([]float64, error)
}

// Lookup 同时提供两种查询的数据源，*source.Source 满足该接口
type Lookup interface {
	DetailLookup
	HistoryLookup
}

type burstStarter interface {
	BeginBurst()
}

// Pipeline 有序的过滤阶段
type Pipeline struct {
	stages []Stage
	burst  burstStarter
}

// New 按给定顺序组装流水线
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// NewDefault 按固定顺序组装六个阶段
func NewDefault(cfg config.FilterConfig, lookup Lookup) *Pipeline {
	p := New(
		PriceBand{Min: cfg.MinPrice, Max: cfg.MaxPrice},
		Yield{Min: cfg.MinYield, Max: cfg.MaxYield, MinDailyRent: cfg.MinDailyRent},
		Trend{Min90D: cfg.MinTrend90},
		Liquidity{MinLeased: cfg.MinLeaseCount, MinRatio: cfg.MinLeaseRatio, Details: lookup},
		Stability{
			Enabled:   cfg.StabilityEnabled,
			MaxCV:     cfg.MaxVolatility,
			MinPoints: cfg.MinHistoryPoints,
			Key:       cfg.HistoryKey,
			Days:      cfg.HistoryDays,
			History:   lookup,
		},
		Premium{Max: cfg.MaxPremium},
	)
	if b, ok := lookup.(burstStarter); ok {
		p.burst = b
	}
	return p
}

// Stages 阶段名列表（按执行顺序）
func (p *Pipeline) Stages() []string {
	out := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		out = append(out, s.Name())
	}
	return out
}

// Evaluate 对单条记录执行全部阶段。
// 单条记录的查询失败转为拒绝；连接级错误原样返回，由调用方结束本次运行。
func (p *Pipeline) Evaluate(ctx context.Context, rec domain.RawMarketRecord) (domain.Candidate, error) {
	if p.burst != nil {
		p.burst.BeginBurst()
	}
	c := domain.NewCandidate(rec)
	for _, st := range p.stages {
		next, rej, err := st.Apply(ctx, c)
		if err != nil {
			if source.IsFatal(err) {
				return c, err
			}
			rej = reject(st.Name(), "查询失败: %v", err)
		}
		if rej != nil {
			metrics.FilterRejections.WithLabelValues(rej.Stage).Inc()
			log.Debugf("拒绝 %s(%s) [%s] %s", rec.Name, rec.ID, rej.Stage, rej.Reason)
			return c.Reject(rej.Stage, rej.Reason), nil
		}
		c = next
	}
	return c.Accept(), nil
}

// Run 逐条评估一批记录。遇到连接级错误时返回已评估的部分和该错误。
func (p *Pipeline) Run(ctx context.Context, records []domain.RawMarketRecord) ([]domain.Candidate, error) {
	out := make([]domain.Candidate, 0, len(records))
	accepted := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, err := p.Evaluate(ctx, rec)
		if err != nil {
			log.Warnf("过滤在第 %d/%d 条记录中止: %v", i+1, len(records), err)
			return out, err
		}
		if c.Accepted() {
			accepted++
			log.Infof("通过 %s(%s) 年化 %.1f%% 出租比 %.2f", rec.Name, rec.ID, c.Metrics.AnnualYield*100, c.Metrics.LeaseRatio)
		}
		out = append(out, c)
	}
	log.Infof("过滤完成: %d 条记录, %d 条通过", len(records), accepted)
	return out, nil
}
