package signal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/pkg/config"
)

// 交易前检查项，同时用作指标标签
const (
	CheckBalance   = "balance"
	CheckTolerance = "tolerance"
	CheckBand      = "price_band"
)

// GateRejection 交易前检查未通过。不是致命错误，执行循环继续下一个。
type GateRejection struct {
	Check  string
	Reason string
}

func (r *GateRejection) Error() string { return r.Check + ": " + r.Reason }

// Gate 交易前检查
type Gate struct {
	Tolerance decimal.Decimal // 目标价相对实时价允许高出的比例
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal // 零值表示不限
}

// NewGate 按执行配置创建
func NewGate(cfg config.InvestConfig) Gate {
	return Gate{
		Tolerance: decimal.NewFromFloat(cfg.PriceTolerance),
		MinPrice:  decimal.NewFromFloat(cfg.MinPrice),
		MaxPrice:  decimal.NewFromFloat(cfg.MaxPrice),
	}
}

// Check 依次检查余额、价格偏离、价格区间；返回第一个失败项，全部通过返回 nil
func (g Gate) Check(s domain.Signal, balance decimal.Decimal) *GateRejection {
	target := s.TargetPrice
	if balance.LessThan(target) {
		return &GateRejection{Check: CheckBalance, Reason: fmt.Sprintf("余额 %s 不足以支付 %s", balance.StringFixed(2), target.StringFixed(2))}
	}
	ceiling := s.LivePrice.Mul(decimal.NewFromInt(1).Add(g.Tolerance))
	if target.GreaterThan(ceiling) {
		return &GateRejection{Check: CheckTolerance, Reason: fmt.Sprintf("目标价 %s 超出实时价 %s 容差 %s", target.StringFixed(2), s.LivePrice.StringFixed(2), g.Tolerance.String())}
	}
	if target.LessThan(g.MinPrice) || (g.MaxPrice.IsPositive() && target.GreaterThan(g.MaxPrice)) {
		return &GateRejection{Check: CheckBand, Reason: fmt.Sprintf("目标价 %s 不在 [%s, %s] 区间", target.StringFixed(2), g.MinPrice.String(), g.MaxPrice.String())}
	}
	return nil
}
