package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/ports"
)

// QuoteAdapter 用行情 API 的实时详情充当报价源（纸交易且没有交易平台令牌时使用）。
// 限流和冷却映射为繁忙，凭证失效映射为登录失效。
type QuoteAdapter struct {
	src *Source
}

func NewQuoteAdapter(src *Source) *QuoteAdapter { return &QuoteAdapter{src: src} }

func (a *QuoteAdapter) LiveQuote(ctx context.Context, itemID string) (domain.Quote, error) {
	a.src.BeginBurst()
	rec, err := a.src.FreshDetail(ctx, itemID)
	switch {
	case errors.Is(err, ErrCredentialsInvalid):
		return domain.Quote{}, fmt.Errorf("%w: %v", ports.ErrAuthExpired, err)
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrCoolingDown):
		return domain.Quote{}, fmt.Errorf("%w: %v", ports.ErrBusy, err)
	case err != nil:
		return domain.Quote{}, err
	}
	return domain.Quote{
		ItemID:       itemID,
		Name:         rec.Name,
		LowestPrice:  decimal.NewFromFloat(rec.SellPrice),
		CompetingBid: decimal.NewFromFloat(rec.BuyPrice),
		FetchedAt:    a.src.now(),
	}, nil
}
