package tiering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/pkg/config"
)

func testTiering() config.TieringConfig {
	return config.TieringConfig{
		SMaxVolatility:    0.15,
		SMinRelativeHeat:  1.5,
		SMinDailyRent:     0.5,
		AMinRelativeHeat:  0.8,
		BLeaseRatioMargin: 1.5,
	}
}

func accepted(id string, leased int, m domain.Metrics) domain.Candidate {
	rec := domain.RawMarketRecord{ID: id, Name: id, LeasedCount: leased, HasLeasedCount: true}
	return domain.NewCandidate(rec).WithMetrics(m).Accept()
}

func TestBaselineAndRelativeHeat(t *testing.T) {
	recs := []domain.RawMarketRecord{
		{LeasedCount: 10, HasLeasedCount: true},
		{LeasedCount: 50, HasLeasedCount: true},
		{LeasedCount: 999}, // 未知的不计入
	}
	b := Baseline(recs)
	assert.Equal(t, 30.0, b)
	assert.Equal(t, 1.0, RelativeHeat(30, b))
	assert.Equal(t, 2.0, RelativeHeat(60, b))

	assert.Equal(t, 0.0, Baseline(nil))
	assert.Equal(t, 5.0, RelativeHeat(5, 0), "基线不足 1 时按 1 计")
}

func TestRank_Scenario(t *testing.T) {
	e := New(testTiering(), 0.10)
	x := accepted("X", 60, domain.Metrics{Volatility: 0.10, VolatilityKnown: true, Trend90D: 2, Trend7D: 1, DailyRent: 0.8, LeaseRatio: 0.4})
	y := accepted("Y", 20, domain.Metrics{Trend90D: 5, Trend7D: 5, DailyRent: 5, LeaseRatio: 0.9})

	out := e.Rank([]domain.Candidate{y, x}, 30)
	require.Len(t, out, 2)
	assert.Equal(t, "X", out[0].Record.ID)
	assert.Equal(t, domain.TierS, out[0].Outcome.Tier)
	assert.Equal(t, 2.0, out[0].Metrics.RelativeHeat)
	assert.Equal(t, "Y", out[1].Record.ID)
	assert.Equal(t, domain.TierC, out[1].Outcome.Tier, "波动率未知一律为 C")
}

func TestClassify_Rules(t *testing.T) {
	e := New(testTiering(), 0.10)
	known := func(m domain.Metrics) domain.Metrics { m.VolatilityKnown = true; return m }

	cases := []struct {
		name string
		m    domain.Metrics
		heat float64
		want domain.Tier
	}{
		{"S", known(domain.Metrics{Volatility: 0.1, DailyRent: 1, Trend90D: 0}), 1.6, domain.TierS},
		{"S needs heat above 1.5", known(domain.Metrics{Volatility: 0.1, DailyRent: 1, Trend90D: 1, Trend7D: 1}), 1.5, domain.TierA},
		{"S needs rent", known(domain.Metrics{Volatility: 0.1, DailyRent: 0.2, Trend90D: 1, Trend7D: 1}), 2, domain.TierA},
		{"A", known(domain.Metrics{Volatility: 0.2, Trend90D: 1, Trend7D: 1}), 0.8, domain.TierA},
		{"A needs heat", known(domain.Metrics{Volatility: 0.2, Trend90D: 1, Trend7D: 1}), 0.5, domain.TierC},
		{"B by ratio", known(domain.Metrics{Volatility: 0.2, LeaseRatio: 0.15}), 0.5, domain.TierB},
		{"B by rebound", known(domain.Metrics{Volatility: 0.2, Trend90D: -4, Trend7D: 0}), 0.5, domain.TierB},
		{"C", known(domain.Metrics{Volatility: 0.2, LeaseRatio: 0.12}), 0.5, domain.TierC},
		{"unknown volatility", domain.Metrics{Volatility: 0.01, DailyRent: 9, Trend90D: 9, Trend7D: 9, LeaseRatio: 9}, 9, domain.TierC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := accepted("1", 10, tc.m)
			assert.Equal(t, tc.want, e.Classify(c, tc.heat))
		})
	}
}

func TestRank_DeterministicAndStable(t *testing.T) {
	e := New(testTiering(), 0.10)
	batch := []domain.Candidate{
		accepted("c1", 5, domain.Metrics{Volatility: 0.2, VolatilityKnown: true}),
		accepted("b1", 5, domain.Metrics{Volatility: 0.2, VolatilityKnown: true, LeaseRatio: 0.5}),
		accepted("c2", 5, domain.Metrics{Volatility: 0.2, VolatilityKnown: true}),
		accepted("b2", 5, domain.Metrics{Volatility: 0.2, VolatilityKnown: true, LeaseRatio: 0.5}),
		domain.NewCandidate(domain.RawMarketRecord{ID: "r"}).Reject("price_band", "x"),
	}

	first := e.Rank(batch, 10)
	second := e.Rank(batch, 10)
	assert.Equal(t, first, second)

	ids := make([]string, 0, len(first))
	for _, c := range first {
		ids = append(ids, c.Record.ID)
	}
	assert.Equal(t, []string{"b1", "b2", "c1", "c2"}, ids)
	assert.True(t, batch[0].Outcome.Tier == 0, "输入不被修改")
}
