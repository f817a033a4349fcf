package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/betbot/skinscan/internal/csqaq"
	"github.com/betbot/skinscan/internal/domain"
)

// RankPage 拉取排行榜的一页
func (s *Source) RankPage(ctx context.Context, filter csqaq.RankFilter, page, size int) ([]domain.RawMarketRecord, error) {
	data, err := s.Request(ctx, csqaq.RankCall(filter, page, size))
	if err != nil {
		return nil, err
	}
	var p csqaq.RankPage
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: 排行榜数据无法解析: %v", ErrRejected, err)
	}
	out := make([]domain.RawMarketRecord, 0, len(p.Data))
	for _, it := range p.Data {
		if it.ItemID() == "" {
			continue
		}
		out = append(out, it.ToRecord())
	}
	return out, nil
}

// ItemDetail 饰品详情，结果按 TTL 缓存
func (s *Source) ItemDetail(ctx context.Context, id string) (domain.RawMarketRecord, error) {
	if rec, ok := s.details.Get(id); ok {
		return rec, nil
	}
	return s.FreshDetail(ctx, id)
}

// FreshDetail 跳过缓存读取详情，并刷新缓存
func (s *Source) FreshDetail(ctx context.Context, id string) (domain.RawMarketRecord, error) {
	data, err := s.Request(ctx, csqaq.DetailCall(id))
	if err != nil {
		return domain.RawMarketRecord{}, err
	}
	var d csqaq.DetailData
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.RawMarketRecord{}, fmt.Errorf("%w: 详情数据无法解析: %v", ErrRejected, err)
	}
	if d.GoodsInfo.Name == "" && !d.GoodsInfo.YyypSellPrice.Valid {
		return domain.RawMarketRecord{}, fmt.Errorf("%w: 饰品 %s 详情为空", ErrRejected, id)
	}
	rec := d.GoodsInfo.ToRecord()
	if rec.ID == "" {
		rec.ID = id
	}
	s.details.Set(id, rec, 0)
	return rec, nil
}

// PriceHistory 近 days 天的价格序列（去除空值），结果按 TTL 缓存
func (s *Source) PriceHistory(ctx context.Context, id, key string, days int) ([]float64, error) {
	cacheKey := fmt.Sprintf("%s|%s|%d", id, key, days)
	if pts, ok := s.history.Get(cacheKey); ok {
		return pts, nil
	}
	data, err := s.Request(ctx, csqaq.ChartCall(id, key, days))
	if err != nil {
		return nil, err
	}
	var c csqaq.ChartData
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: 历史序列无法解析: %v", ErrRejected, err)
	}
	pts := c.Points()
	s.history.Set(cacheKey, pts, 0)
	return pts, nil
}

// PurgeCache 清理过期缓存
func (s *Source) PurgeCache() int {
	return s.details.Purge() + s.history.Purge()
}
