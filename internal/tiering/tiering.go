// Package tiering 按绝对阈值和批次相对热度给通过过滤的候选分级。
package tiering

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/metrics"
	"github.com/betbot/skinscan/pkg/config"
)

var log = logrus.WithField("component", "tiering")

// Engine 分级引擎。LeaseRatioFloor 为过滤阶段使用的出租比下限，B 级规则以它为基准。
type Engine struct {
	cfg             config.TieringConfig
	leaseRatioFloor float64
}

// New 创建分级引擎
func New(cfg config.TieringConfig, leaseRatioFloor float64) *Engine {
	return &Engine{cfg: cfg, leaseRatioFloor: leaseRatioFloor}
}

// Baseline 批次基线：本批记录中已知出租数的算术平均
func Baseline(records []domain.RawMarketRecord) float64 {
	var sum float64
	n := 0
	for _, r := range records {
		if !r.HasLeasedCount {
			continue
		}
		sum += float64(r.LeasedCount)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RelativeHeat 出租数 / max(1, 基线)
func RelativeHeat(leased int, baseline float64) float64 {
	if baseline < 1 {
		baseline = 1
	}
	return float64(leased) / baseline
}

// Classify 按优先级判断单个候选的等级，先匹配先得
func (e *Engine) Classify(c domain.Candidate, heat float64) domain.Tier {
	m := c.Metrics
	if !m.VolatilityKnown {
		return domain.TierC
	}
	if m.Volatility < e.cfg.SMaxVolatility &&
		heat > e.cfg.SMinRelativeHeat &&
		m.DailyRent >= e.cfg.SMinDailyRent &&
		m.Trend90D >= 0 {
		return domain.TierS
	}
	if m.Trend7D > 0 && m.Trend90D > 0 && heat >= e.cfg.AMinRelativeHeat {
		return domain.TierA
	}
	if m.LeaseRatio >= e.leaseRatioFloor*e.cfg.BLeaseRatioMargin || (m.Trend90D < 0 && m.Trend7D >= 0) {
		return domain.TierB
	}
	return domain.TierC
}

// Rank 给已通过的候选分级并按等级权重降序稳定排序。未通过的候选被忽略。
func (e *Engine) Rank(candidates []domain.Candidate, baseline float64) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Accepted() {
			continue
		}
		heat := RelativeHeat(c.LeasedCount, baseline)
		t := e.Classify(c, heat)
		out = append(out, c.WithTier(t, heat))
		metrics.CandidatesAccepted.WithLabelValues(t.String()).Inc()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outcome.Tier.Weight() > out[j].Outcome.Tier.Weight()
	})
	log.Infof("分级完成: %d 个候选, 批次基线出租数 %.1f", len(out), baseline)
	return out
}
