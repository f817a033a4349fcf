package csqaq

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/betbot/skinscan/internal/domain"
)

// Envelope 统一响应结构 {code, msg, data}
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Success code 200/201 表示成功
func (e Envelope) Success() bool {
	return e.Code == 200 || e.Code == 201
}

// FlexFloat 兼容数字、字符串数字和 null 的数值字段
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*f = FlexFloat{}
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = FlexFloat{}
		return nil
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// FlexID 兼容数字和字符串形式的 ID
type FlexID string

func (id *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*id = FlexID(s)
	return nil
}

// Item 排行榜与详情共用的饰品字段，字段名与上游保持一致
type Item struct {
	ID                 FlexID    `json:"id"`
	GoodID             FlexID    `json:"good_id"`
	Name               string    `json:"name"`
	MarketHashName     string    `json:"market_hash_name"`
	YyypSellPrice      FlexFloat `json:"yyyp_sell_price"`
	YyypBuyPrice       FlexFloat `json:"yyyp_buy_price"`
	YyypLeasePrice     FlexFloat `json:"yyyp_lease_price"`
	YyypLongLeasePrice FlexFloat `json:"yyyp_long_lease_price"`
	YyypLeaseAnnual    FlexFloat `json:"yyyp_lease_annual"`
	YyypSellNum        FlexFloat `json:"yyyp_sell_num"`
	YyypLeaseNum       FlexFloat `json:"yyyp_lease_num"`
	SellPriceRate1     FlexFloat `json:"sell_price_rate_1"`
	SellPriceRate7     FlexFloat `json:"sell_price_rate_7"`
	SellPriceRate30    FlexFloat `json:"sell_price_rate_30"`
	SellPriceRate90    FlexFloat `json:"sell_price_rate_90"`
	BuffSellPrice      FlexFloat `json:"buff_sell_price"`
}

// ItemID 优先 id，其次 good_id
func (it Item) ItemID() string {
	if it.ID != "" {
		return string(it.ID)
	}
	return string(it.GoodID)
}

// ToRecord 转换为领域记录
func (it Item) ToRecord() domain.RawMarketRecord {
	return domain.RawMarketRecord{
		ID:              it.ItemID(),
		Name:            it.Name,
		MarketHashName:  it.MarketHashName,
		SellPrice:       it.YyypSellPrice.Value,
		BuyPrice:        it.YyypBuyPrice.Value,
		LeasePrice:      it.YyypLeasePrice.Value,
		LongLeasePrice:  it.YyypLongLeasePrice.Value,
		AnnualYieldPct:  it.YyypLeaseAnnual.Value,
		HasAnnualYield:  it.YyypLeaseAnnual.Valid,
		OfferedCount:    int(it.YyypSellNum.Value),
		HasOfferedCount: it.YyypSellNum.Valid,
		LeasedCount:     int(it.YyypLeaseNum.Value),
		HasLeasedCount:  it.YyypLeaseNum.Valid,
		Change1D:        it.SellPriceRate1.Value,
		Change7D:        it.SellPriceRate7.Value,
		Change30D:       it.SellPriceRate30.Value,
		Change90D:       it.SellPriceRate90.Value,
		ReferencePrice:  it.BuffSellPrice.Value,
	}
}

// RankPage get_rank_list 的 data 部分
type RankPage struct {
	Data  []Item `json:"data"`
	Total int    `json:"total"`
}

// DetailData get_good 的 data 部分
type DetailData struct {
	GoodsInfo Item `json:"goods_info"`
}

// ChartData chart 的 data 部分；main_data 中可能出现 null
type ChartData struct {
	MainData []FlexFloat `json:"main_data"`
}

// Points 去掉空值后的序列
func (c ChartData) Points() []float64 {
	out := make([]float64, 0, len(c.MainData))
	for _, p := range c.MainData {
		if p.Valid {
			out = append(out, p.Value)
		}
	}
	return out
}

// RankFilter 排行榜筛选条件，序列化为上游要求的中文键
type RankFilter struct {
	Types       []string
	MinPrice    float64
	MaxPrice    float64
	MinYieldPct float64
	MinOnSale   int
	MinLeased   int
}

// Payload 生成 filter 字段
func (f RankFilter) Payload() map[string]any {
	m := map[string]any{
		"排序": []string{"租赁_短租收益率(年化)"},
	}
	if len(f.Types) > 0 {
		m["类型"] = f.Types
	}
	if f.MinPrice > 0 {
		m["价格最低价"] = f.MinPrice
	}
	if f.MaxPrice > 0 {
		m["价格最高价"] = f.MaxPrice
	}
	if f.MinYieldPct > 0 {
		m["短租收益最低"] = f.MinYieldPct
	}
	if f.MinOnSale > 0 {
		m["在售最少"] = f.MinOnSale
	}
	if f.MinLeased > 0 {
		m["出租最少"] = f.MinLeased
	}
	return m
}

// BoundIP 从绑定接口的 data 文本中提取 IP："当前绑定IP为：1.2.3.4"
func BoundIP(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ""
	}
	const marker = "当前绑定IP为："
	if i := strings.Index(s, marker); i >= 0 {
		return strings.TrimSpace(s[i+len(marker):])
	}
	return ""
}
