package domain

import "strings"

// RawMarketRecord 行情 API 排行榜中的一行，单次轮询生成后不再修改
type RawMarketRecord struct {
	ID             string  // 饰品 ID（CSQAQ good_id）
	Name           string  // 显示名称
	MarketHashName string  // Steam market_hash_name
	SellPrice      float64 // 悠悠当前最低在售价
	BuyPrice       float64 // 悠悠最高求购价（竞争报价），0 表示未知
	LeasePrice     float64 // 短租日租金
	LongLeasePrice float64 // 长租日租金

	AnnualYieldPct float64 // 短租年化收益率（百分比）
	HasAnnualYield bool

	OfferedCount    int // 在售数量
	HasOfferedCount bool
	LeasedCount     int // 出租数量
	HasLeasedCount  bool

	Change1D  float64 // 价格涨跌幅（百分比）
	Change7D  float64
	Change30D float64
	Change90D float64

	ReferencePrice float64 // 跨平台参考价（BUFF），0 表示未知
}

var heavyKeywords = []string{"★", "手套", "匕首", "裹手", "Gloves", "Knife"}

// IsHeavy 刀、手套等高价重资产
func (r RawMarketRecord) IsHeavy() bool {
	for _, kw := range heavyKeywords {
		if strings.Contains(r.Name, kw) {
			return true
		}
	}
	return false
}

// AssetClass 资产类别标签
func (r RawMarketRecord) AssetClass() string {
	if r.IsHeavy() {
		return "heavy"
	}
	return "steady"
}
