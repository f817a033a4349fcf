// Package whitelist 扫描结果（白名单）的文件格式与读写。
// 每次扫描整体覆盖写入，执行运行开始时整体读取。
package whitelist

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/pkg/persistence"
)

// ErrEmpty 白名单不存在或没有条目
var ErrEmpty = errors.New("白名单为空，请先运行扫描")

// Entry 白名单中的一项
type Entry struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Tier         domain.Tier     `json:"tier"`
	ROI          float64         `json:"roi"`
	BuyLimit     decimal.Decimal `json:"buy_limit"`
	MarketPrice  decimal.Decimal `json:"market_price"`
	DailyRent    float64         `json:"daily_rent"`
	LeasedCount  int             `json:"lease_num"`
	OfferedCount int             `json:"sell_num"`
	LeaseRatio   float64         `json:"lease_ratio"`
	Volatility   *float64        `json:"volatility"` // 未知时为 null
	RelativeHeat float64         `json:"relative_heat"`
	Trend7D      float64         `json:"trend_7d"`
	Trend90D     float64         `json:"trend_90d"`
	AssetClass   string          `json:"asset_class"`
}

// Document 白名单文件
type Document struct {
	GeneratedAt time.Time `json:"generated_at"`
	BatchID     string    `json:"batch_id"`
	Total       int       `json:"total"`
	Items       []Entry   `json:"items"`
}

// Build 由已分级的候选生成白名单。建议收购价 = 售价 × buyDiscount。
func Build(ranked []domain.Candidate, batchID string, buyDiscount float64, at time.Time) Document {
	discount := decimal.NewFromFloat(buyDiscount)
	items := make([]Entry, 0, len(ranked))
	for _, c := range ranked {
		if !c.Accepted() {
			continue
		}
		m := c.Metrics
		price := decimal.NewFromFloat(c.Record.SellPrice).Round(2)
		e := Entry{
			ID:           c.Record.ID,
			Name:         c.Record.Name,
			Tier:         c.Outcome.Tier,
			ROI:          m.AnnualYield,
			BuyLimit:     price.Mul(discount).Round(2),
			MarketPrice:  price,
			DailyRent:    m.DailyRent,
			LeasedCount:  c.LeasedCount,
			OfferedCount: c.OfferedCount,
			LeaseRatio:   m.LeaseRatio,
			RelativeHeat: m.RelativeHeat,
			Trend7D:      m.Trend7D,
			Trend90D:     m.Trend90D,
			AssetClass:   c.Record.AssetClass(),
		}
		if m.VolatilityKnown {
			v := m.Volatility
			e.Volatility = &v
		}
		items = append(items, e)
	}
	return Document{GeneratedAt: at.UTC(), BatchID: batchID, Total: len(items), Items: items}
}

// Targets 转换为执行循环的输入
func (d Document) Targets() []domain.Target {
	out := make([]domain.Target, 0, len(d.Items))
	for _, e := range d.Items {
		out = append(out, domain.Target{
			ItemID:      e.ID,
			Name:        e.Name,
			Tier:        e.Tier,
			ROI:         e.ROI,
			BuyLimit:    e.BuyLimit,
			MarketPrice: e.MarketPrice,
			BatchID:     d.BatchID,
		})
	}
	return out
}

// Store 白名单文件存储
type Store struct {
	store *persistence.JSONFileStore
}

// NewStore 使用给定路径
func NewStore(path string) *Store {
	return &Store{store: persistence.NewJSONFileStore(path)}
}

// Path 文件路径
func (s *Store) Path() string { return s.store.Path() }

// Save 原子覆盖写入
func (s *Store) Save(doc Document) error {
	if err := s.store.Save(doc); err != nil {
		return fmt.Errorf("写入白名单 %s: %w", s.store.Path(), err)
	}
	return nil
}

// Load 读取白名单；文件不存在或没有条目时返回 ErrEmpty
func (s *Store) Load() (Document, error) {
	var doc Document
	if err := s.store.Load(&doc); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return Document{}, ErrEmpty
		}
		return Document{}, fmt.Errorf("读取白名单 %s: %w", s.store.Path(), err)
	}
	if len(doc.Items) == 0 {
		return doc, ErrEmpty
	}
	return doc, nil
}
