package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal 不可变的交易意图记录，在任何执行尝试之前写入日志
type Signal struct {
	ID           string          `json:"id"`
	ItemID       string          `json:"item_id"`
	Name         string          `json:"name"`
	LivePrice    decimal.Decimal `json:"live_price"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	CompetingBid decimal.Decimal `json:"competing_bid"`
	Tier         Tier            `json:"tier"`
	BatchID      string          `json:"batch_id"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Day 信号所属自然日（UTC）
func (s Signal) Day() string {
	return s.CreatedAt.UTC().Format("2006-01-02")
}

// Quote 交易平台上重新核实的实时报价
type Quote struct {
	ItemID       string
	Name         string
	LowestPrice  decimal.Decimal // 当前最低在售价
	CompetingBid decimal.Decimal // 当前最高求购价，零值表示未知
	FetchedAt    time.Time
}

// Target 执行循环的输入：白名单中的一项
type Target struct {
	ItemID      string
	Name        string
	Tier        Tier
	ROI         float64
	BuyLimit    decimal.Decimal // 扫描时给出的建议收购价，仅作参考
	MarketPrice decimal.Decimal // 扫描时的市场价，仅作参考
	BatchID     string
}

// CircuitState 单次执行运行内的计数，不持久化
type CircuitState struct {
	BusyCount        int
	SuccessCount     int
	SinceLastSuccess time.Duration
	Tripped          bool
}
