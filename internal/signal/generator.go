// Package signal 把"上次扫描看起来不错"转换为"此刻可以交易"：
// 用实时报价计算目标价、生成信号、落盘，并在执行前做交易前检查。
package signal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/pkg/config"
)

// ErrNoLivePrice 实时报价缺失或无效
var ErrNoLivePrice = errors.New("无有效实时价格")

// Generator 信号生成器
type Generator struct {
	buyRatio      decimal.Decimal
	undercutRatio decimal.Decimal

	now   func() time.Time
	newID func() string
}

// NewGenerator 按执行配置创建生成器
func NewGenerator(cfg config.InvestConfig) *Generator {
	return &Generator{
		buyRatio:      decimal.NewFromFloat(cfg.BuyPriceRatio),
		undercutRatio: decimal.NewFromFloat(cfg.BidUndercutRatio),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// WithClock 测试用
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// TargetPrice 目标价 = 实时最低价 × 收购比例；
// 若存在竞争求购价且目标价高于它，改为 求购价 × 压价比例。结果保留两位小数。
func (g *Generator) TargetPrice(live, bid decimal.Decimal) decimal.Decimal {
	target := live.Mul(g.buyRatio).Round(2)
	if bid.IsPositive() && target.GreaterThan(bid) {
		target = bid.Mul(g.undercutRatio).Round(2)
	}
	return target
}

// Generate 根据白名单目标和实时报价生成信号。白名单中的旧价格不参与计算。
func (g *Generator) Generate(t domain.Target, q domain.Quote) (domain.Signal, error) {
	if !q.LowestPrice.IsPositive() {
		return domain.Signal{}, ErrNoLivePrice
	}
	name := q.Name
	if name == "" {
		name = t.Name
	}
	return domain.Signal{
		ID:           g.newID(),
		ItemID:       t.ItemID,
		Name:         name,
		LivePrice:    q.LowestPrice.Round(2),
		TargetPrice:  g.TargetPrice(q.LowestPrice, q.CompetingBid),
		CompetingBid: q.CompetingBid.Round(2),
		Tier:         t.Tier,
		BatchID:      t.BatchID,
		CreatedAt:    g.now().UTC(),
	}, nil
}
