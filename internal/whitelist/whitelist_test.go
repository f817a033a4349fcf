package whitelist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/domain"
)

func rankedCandidate(id, name string, price float64, tier domain.Tier, vol *float64) domain.Candidate {
	rec := domain.RawMarketRecord{ID: id, Name: name, SellPrice: price, LeasedCount: 50, HasLeasedCount: true, OfferedCount: 100}
	m := domain.Metrics{AnnualYield: 0.3, DailyRent: 0.9, LeaseRatio: 0.5, Trend7D: 1, Trend90D: 2}
	if vol != nil {
		m.Volatility = *vol
		m.VolatilityKnown = true
	}
	return domain.NewCandidate(rec).WithMetrics(m).WithTier(tier, 1.25)
}

func TestBuildAndRoundTrip(t *testing.T) {
	vol := 0.08
	ranked := []domain.Candidate{
		rankedCandidate("1", "★ 蝴蝶刀 | 渐变之色", 5000, domain.TierS, &vol),
		rankedCandidate("2", "AK-47 | 红线", 123.45, domain.TierC, nil),
		domain.NewCandidate(domain.RawMarketRecord{ID: "3"}).Reject("yield", "低"),
	}
	at := time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)
	doc := Build(ranked, "batch-1", 0.90, at)

	require.Equal(t, 2, doc.Total)
	first := doc.Items[0]
	assert.Equal(t, domain.TierS, first.Tier)
	assert.Equal(t, "heavy", first.AssetClass)
	assert.Equal(t, "4500", first.BuyLimit.String())
	require.NotNil(t, first.Volatility)
	assert.Equal(t, 0.08, *first.Volatility)

	second := doc.Items[1]
	assert.Equal(t, "steady", second.AssetClass)
	assert.Equal(t, "111.11", second.BuyLimit.StringFixed(2))
	assert.Nil(t, second.Volatility)

	s := NewStore(filepath.Join(t.TempDir(), "data", "whitelist.json"))
	require.NoError(t, s.Save(doc))
	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, doc.BatchID, got.BatchID)
	assert.True(t, doc.GeneratedAt.Equal(got.GeneratedAt))
	require.Len(t, got.Items, 2)
	assert.Equal(t, domain.TierS, got.Items[0].Tier)
	assert.True(t, doc.Items[1].BuyLimit.Equal(got.Items[1].BuyLimit))
	assert.Nil(t, got.Items[1].Volatility)

	targets := got.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "1", targets[0].ItemID)
	assert.Equal(t, "batch-1", targets[0].BatchID)
}

func TestLoadMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(filepath.Join(dir, "nope.json")).Load()
	assert.ErrorIs(t, err, ErrEmpty)

	s := NewStore(filepath.Join(dir, "empty.json"))
	require.NoError(t, s.Save(Build(nil, "b", 0.9, time.Now())))
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrEmpty)
}
