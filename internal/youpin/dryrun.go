package youpin

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
)

// DryRunPlacer 纸交易：不发出下单请求，直接返回成功
type DryRunPlacer struct {
	mu     sync.Mutex
	placed []domain.Signal
}

func NewDryRunPlacer() *DryRunPlacer { return &DryRunPlacer{} }

func (p *DryRunPlacer) PlaceBuyOrder(_ context.Context, sig domain.Signal) (domain.PurchaseResult, error) {
	p.mu.Lock()
	p.placed = append(p.placed, sig)
	p.mu.Unlock()
	log.Infof("[纸交易] 模拟求购 %s 价格 %s", sig.Name, sig.TargetPrice.StringFixed(2))
	return domain.PurchaseResult{Outcome: domain.PurchaseSuccess, OrderID: "DRY-" + uuid.NewString()}, nil
}

// Placed 已模拟的信号
func (p *DryRunPlacer) Placed() []domain.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Signal, len(p.placed))
	copy(out, p.placed)
	return out
}

// FixedBalance 纸交易余额
type FixedBalance decimal.Decimal

func (b FixedBalance) Balance(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(b), nil
}
