package ports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
)

// Small capability interfaces shared across layers (execution/services/trading client).

// 报价查询的分类错误：与下单结果使用同一套分类
var (
	ErrBusy        = errors.New("trading platform busy")
	ErrAuthExpired = errors.New("trading platform auth expired")
)

type QuoteSource interface {
	// LiveQuote returns the current lowest ask and competing bid for an item.
	// Errors wrapping ErrBusy / ErrAuthExpired are classified by the caller.
	LiveQuote(ctx context.Context, itemID string) (domain.Quote, error)
}

type OrderPlacer interface {
	// PlaceBuyOrder places a single-unit purchase order at the signal's target price.
	PlaceBuyOrder(ctx context.Context, sig domain.Signal) (domain.PurchaseResult, error)
}

type BalanceGetter interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}
