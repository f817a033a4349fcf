package filter

import (
	"context"

	"github.com/betbot/skinscan/internal/domain"
)

// PriceBand 价格区间：过滤低价垃圾和流动性差的高价品
type PriceBand struct {
	Min float64
	Max float64
}

func (PriceBand) Name() string { return StagePriceBand }

func (s PriceBand) Apply(_ context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	p := c.Record.SellPrice
	if p <= 0 {
		return c, reject(StagePriceBand, "无有效售价"), nil
	}
	if p < s.Min {
		return c, reject(StagePriceBand, "价格 %.2f 低于下限 %.2f", p, s.Min), nil
	}
	if s.Max > 0 && p > s.Max {
		return c, reject(StagePriceBand, "价格 %.2f 高于上限 %.2f", p, s.Max), nil
	}
	return c.Pass(StagePriceBand, map[string]float64{"sell_price": p}), nil, nil
}

// Yield 短租年化收益率区间。过高的收益率视为价格异常而不是机会。
type Yield struct {
	Min          float64
	Max          float64
	MinDailyRent float64
}

func (Yield) Name() string { return StageYield }

// AnnualYield 优先使用上游给出的年化（百分比），缺失时按 日租金×365/售价 推算
func AnnualYield(r domain.RawMarketRecord) float64 {
	if r.HasAnnualYield && r.AnnualYieldPct > 0 {
		return r.AnnualYieldPct / 100
	}
	if r.SellPrice <= 0 {
		return 0
	}
	return r.LeasePrice * 365 / r.SellPrice
}

func (s Yield) Apply(_ context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	y := AnnualYield(c.Record)
	rent := c.Record.LeasePrice
	if y < s.Min {
		return c, reject(StageYield, "年化 %.1f%% 低于下限 %.1f%%", y*100, s.Min*100), nil
	}
	if s.Max > 0 && y > s.Max {
		return c, reject(StageYield, "年化 %.1f%% 高于上限 %.1f%%，疑似价格异常", y*100, s.Max*100), nil
	}
	if s.MinDailyRent > 0 && rent < s.MinDailyRent {
		return c, reject(StageYield, "日租金 %.2f 低于下限 %.2f", rent, s.MinDailyRent), nil
	}
	m := c.Metrics
	m.AnnualYield = y
	m.DailyRent = rent
	return c.WithMetrics(m).Pass(StageYield, map[string]float64{"annual_yield": y, "daily_rent": rent}), nil, nil
}

// Trend 90 天跌幅下限；90 天与 7 天同时为负视为仍在下跌
type Trend struct {
	Min90D float64 // 百分比
}

func (Trend) Name() string { return StageTrend }

func (s Trend) Apply(_ context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	d90, d7 := c.Record.Change90D, c.Record.Change7D
	if d90 < s.Min90D {
		return c, reject(StageTrend, "处于中长期下降通道 (90天 %.1f%% < %.1f%%)", d90, s.Min90D), nil
	}
	if d90 < 0 && d7 < 0 {
		return c, reject(StageTrend, "持续下跌未见反弹 (90天 %.1f%%, 7天 %.1f%%)", d90, d7), nil
	}
	m := c.Metrics
	m.Trend7D = d7
	m.Trend90D = d90
	return c.WithMetrics(m).Pass(StageTrend, map[string]float64{"trend_7d": d7, "trend_90d": d90}), nil, nil
}

// Liquidity 出租数绝对下限 + 出租/在售比例下限。
// 排行榜缺少出租数或在售数时查询详情；详情也没有则拒绝，不做估算。
// 在售数为 0 时比例记为 0。
type Liquidity struct {
	MinLeased int
	MinRatio  float64
	Details   DetailLookup
}

func (Liquidity) Name() string { return StageLiquidity }

func (s Liquidity) Apply(ctx context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	leased, offered := c.LeasedCount, c.OfferedCount
	hasLeased, hasOffered := c.Record.HasLeasedCount, c.Record.HasOfferedCount
	if !hasLeased || !hasOffered {
		if s.Details == nil {
			if !hasLeased {
				return c, reject(StageLiquidity, "缺少出租数据"), nil
			}
			return c, reject(StageLiquidity, "缺少在售数据"), nil
		}
		d, err := s.Details.ItemDetail(ctx, c.Record.ID)
		if err != nil {
			return c, nil, err
		}
		if !hasLeased && d.HasLeasedCount {
			leased, hasLeased = d.LeasedCount, true
		}
		if !hasOffered && d.HasOfferedCount {
			offered, hasOffered = d.OfferedCount, true
		}
		if !hasLeased {
			return c, reject(StageLiquidity, "详情中仍缺少出租数据"), nil
		}
		if !hasOffered {
			return c, reject(StageLiquidity, "缺少在售数据"), nil
		}
	}

	if leased < s.MinLeased {
		return c, reject(StageLiquidity, "出租数 %d 低于下限 %d", leased, s.MinLeased), nil
	}
	var ratio float64
	if offered > 0 {
		ratio = float64(leased) / float64(offered)
	}
	if ratio < s.MinRatio {
		return c, reject(StageLiquidity, "供过于求: 出租/在售 %d/%d = %.2f 低于 %.2f", leased, offered, ratio, s.MinRatio), nil
	}
	m := c.Metrics
	m.LeaseRatio = ratio
	out := c.WithCounts(leased, offered).WithMetrics(m)
	return out.Pass(StageLiquidity, map[string]float64{
		"leased":      float64(leased),
		"offered":     float64(offered),
		"lease_ratio": ratio,
	}), nil, nil
}

// Stability 历史价格序列的变异系数。数据点不足视为拒绝。
// 关闭时直接通过，波动率保持未知（分级阶段会据此降为 C）。
type Stability struct {
	Enabled   bool
	MaxCV     float64
	MinPoints int
	Key       string
	Days      int
	History   HistoryLookup
}

func (Stability) Name() string { return StageStability }

func (s Stability) Apply(ctx context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	if !s.Enabled || s.History == nil {
		return c.Pass(StageStability, map[string]float64{"volatility_known": 0}), nil, nil
	}
	pts, err := s.History.PriceHistory(ctx, c.Record.ID, s.Key, s.Days)
	if err != nil {
		return c, nil, err
	}
	if len(pts) < s.MinPoints {
		return c, reject(StageStability, "历史数据不足 (%d < %d 个点)", len(pts), s.MinPoints), nil
	}
	cv, ok := CoefficientOfVariation(pts)
	if !ok {
		return c, reject(StageStability, "历史均价无效"), nil
	}
	if cv > s.MaxCV {
		return c, reject(StageStability, "波动过大 (CV %.3f > %.3f)", cv, s.MaxCV), nil
	}
	m := c.Metrics
	m.Volatility = cv
	m.VolatilityKnown = true
	return c.WithMetrics(m).Pass(StageStability, map[string]float64{
		"volatility":       cv,
		"volatility_known": 1,
		"history_points":   float64(len(pts)),
	}), nil, nil
}

// Premium 本平台价格相对跨平台参考价的溢价上限；无参考价时跳过
type Premium struct {
	Max float64
}

func (Premium) Name() string { return StagePremium }

func (s Premium) Apply(_ context.Context, c domain.Candidate) (domain.Candidate, *Rejection, error) {
	ref := c.Record.ReferencePrice
	if ref <= 0 {
		return c.Pass(StagePremium, map[string]float64{"reference_price": 0}), nil, nil
	}
	premium := (c.Record.SellPrice - ref) / ref
	if premium > s.Max {
		return c, reject(StagePremium, "溢价过高 (%.1f%% > %.1f%%)，易回落", premium*100, s.Max*100), nil
	}
	m := c.Metrics
	m.Premium = premium
	m.PremiumKnown = true
	return c.WithMetrics(m).Pass(StagePremium, map[string]float64{"premium": premium, "reference_price": ref}), nil, nil
}
