package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/domain"
	"github.com/betbot/skinscan/internal/ports"
	"github.com/betbot/skinscan/internal/signal"
	"github.com/betbot/skinscan/pkg/config"
)

type fakeQuotes struct {
	price decimal.Decimal
	errs  []error // 按调用顺序返回；用完后返回报价
	calls int
}

func (f *fakeQuotes) LiveQuote(_ context.Context, itemID string) (domain.Quote, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.Quote{}, err
		}
	}
	return domain.Quote{ItemID: itemID, Name: "item-" + itemID, LowestPrice: f.price}, nil
}

type fakePlacer struct {
	outcomes []domain.PurchaseOutcome
	placed   []domain.Signal
}

func (f *fakePlacer) PlaceBuyOrder(_ context.Context, sig domain.Signal) (domain.PurchaseResult, error) {
	f.placed = append(f.placed, sig)
	o := domain.PurchaseSuccess
	if len(f.outcomes) > 0 {
		o = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	res := domain.PurchaseResult{Outcome: o}
	if o == domain.PurchaseSuccess {
		res.OrderID = fmt.Sprintf("ord-%d", len(f.placed))
	}
	return res, nil
}

type memJournal struct {
	signals []domain.Signal
	err     error
}

func (m *memJournal) Append(s domain.Signal) error {
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, s)
	return nil
}

type sleepLog struct{ waits []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func investCfg() config.InvestConfig {
	return config.InvestConfig{
		MaxAttemptsPerRun:      10,
		MaxOrdersPerRun:        5,
		JitterMinSeconds:       20,
		JitterMaxSeconds:       40,
		BusyThreshold:          2,
		BusyRecoverySeconds:    60,
		SuccessCooldownSeconds: 90,
		PriceTolerance:         0.01,
		BuyPriceRatio:          0.90,
		BidUndercutRatio:       0.98,
		MinPrice:               100,
		MaxPrice:               30000,
	}
}

type harness struct {
	loop    *Loop
	quotes  *fakeQuotes
	placer  *fakePlacer
	journal *memJournal
	sleeps  *sleepLog
}

func newHarness(cfg config.InvestConfig) *harness {
	h := &harness{
		quotes:  &fakeQuotes{price: decimal.NewFromInt(200)},
		placer:  &fakePlacer{},
		journal: &memJournal{},
		sleeps:  &sleepLog{},
	}
	h.loop = New(ConfigFrom(cfg), Deps{
		Quotes:    h.quotes,
		Placer:    h.placer,
		Journal:   h.journal,
		Generator: signal.NewGenerator(cfg),
		Gate:      signal.NewGate(cfg),
		Sleep:     h.sleeps.sleep,
		Rand:      rand.New(rand.NewSource(7)),
	})
	return h
}

func targets(n int) []domain.Target {
	out := make([]domain.Target, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Target{ItemID: fmt.Sprint(i + 1), Name: fmt.Sprintf("t%d", i+1), Tier: domain.TierA, BatchID: "b"})
	}
	return out
}

func TestLoop_TwoConsecutiveBusyAbortsBeforeThird(t *testing.T) {
	h := newHarness(investCfg())
	h.placer.outcomes = []domain.PurchaseOutcome{domain.PurchaseSuccess, domain.PurchaseBusy, domain.PurchaseBusy, domain.PurchaseSuccess}

	rep, err := h.loop.Run(context.Background(), targets(6), decimal.NewFromInt(10000))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, rep.Attempted, "第二次繁忙后不再尝试下一个")
	assert.Len(t, h.placer.placed, 3)
	assert.Equal(t, 1, rep.Successes(), "只统计第二次繁忙之前的成功")
	assert.Equal(t, 1, rep.Circuit.SuccessCount)
	assert.True(t, rep.Circuit.Tripped)
	assert.Equal(t, "circuit_open", rep.AbortReason)
}

func TestLoop_BusyThenNonBusyResetsCounter(t *testing.T) {
	h := newHarness(investCfg())
	h.placer.outcomes = []domain.PurchaseOutcome{domain.PurchaseBusy, domain.PurchaseRejected, domain.PurchaseBusy, domain.PurchaseSuccess}

	rep, err := h.loop.Run(context.Background(), targets(4), decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Attempted)
	assert.Equal(t, 1, rep.Successes())
	assert.Contains(t, h.sleeps.waits, 60*time.Second, "繁忙后休息固定恢复时长")
}

func TestLoop_BusyQuoteCountsTowardsBreaker(t *testing.T) {
	h := newHarness(investCfg())
	h.quotes.errs = []error{fmt.Errorf("code 84104: %w", ports.ErrBusy), fmt.Errorf("%w", ports.ErrBusy)}

	rep, err := h.loop.Run(context.Background(), targets(5), decimal.NewFromInt(10000))
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, rep.Attempted)
	assert.Empty(t, h.placer.placed)
	assert.Empty(t, h.journal.signals)
}

func TestLoop_AuthExpiredAbortsImmediately(t *testing.T) {
	h := newHarness(investCfg())
	h.placer.outcomes = []domain.PurchaseOutcome{domain.PurchaseSuccess, domain.PurchaseAuthExpired}

	rep, err := h.loop.Run(context.Background(), targets(5), decimal.NewFromInt(10000))
	require.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, 1, rep.Successes())
	assert.Equal(t, "auth_expired", rep.AbortReason)

	h2 := newHarness(investCfg())
	h2.quotes.errs = []error{fmt.Errorf("%w: 401", ports.ErrAuthExpired)}
	_, err = h2.loop.Run(context.Background(), targets(5), decimal.NewFromInt(10000))
	require.ErrorIs(t, err, ErrAuthExpired)
	assert.Empty(t, h2.placer.placed)
}

func TestLoop_StopsAtOrderCapAndDeductsBalance(t *testing.T) {
	cfg := investCfg()
	cfg.MaxOrdersPerRun = 2
	h := newHarness(cfg)

	rep, err := h.loop.Run(context.Background(), targets(5), decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Successes())
	assert.Equal(t, 2, rep.Attempted)
	assert.True(t, decimal.NewFromInt(640).Equal(rep.FinalBalance), "1000 - 2×180")
	assert.Empty(t, rep.AbortReason)

	cooldowns := 0
	for _, w := range h.sleeps.waits {
		if w == 90*time.Second {
			cooldowns++
		}
	}
	assert.Equal(t, 1, cooldowns, "达到上限后不再休息")
}

func TestLoop_CapsAttemptsAndJitterWithinBounds(t *testing.T) {
	cfg := investCfg()
	cfg.MaxAttemptsPerRun = 3
	cfg.MaxOrdersPerRun = 10
	h := newHarness(cfg)
	h.placer.outcomes = []domain.PurchaseOutcome{domain.PurchaseRejected, domain.PurchaseRejected, domain.PurchaseRejected}

	rep, err := h.loop.Run(context.Background(), targets(8), decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Attempted)
	assert.Len(t, rep.Skipped, 3)
	require.Len(t, h.sleeps.waits, 3)
	for _, w := range h.sleeps.waits {
		assert.GreaterOrEqual(t, w, 20*time.Second)
		assert.Less(t, w, 40*time.Second)
	}
}

func TestLoop_BusySeparatedByQuoteIsNotConsecutive(t *testing.T) {
	cfg := investCfg()
	cfg.MaxPrice = 150 // 200*0.9=180 超出区间，报价成功后被风控检查拒绝
	h := newHarness(cfg)
	h.quotes.errs = []error{ports.ErrBusy, nil, ports.ErrBusy}

	rep, err := h.loop.Run(context.Background(), targets(4), decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Attempted)
	assert.False(t, rep.Circuit.Tripped)
	require.Len(t, rep.Skipped, 2)
	for _, s := range rep.Skipped {
		assert.Equal(t, "gate", s.Stage)
	}
	assert.Empty(t, h.placer.placed)
}

func TestLoop_GateRejectionContinuesAndSignalIsJournaledFirst(t *testing.T) {
	h := newHarness(investCfg())

	// 余额只够一单：第二个信号被余额检查拒绝，但仍然先落盘
	rep, err := h.loop.Run(context.Background(), targets(2), decimal.NewFromInt(200))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Successes())
	assert.Len(t, h.journal.signals, 2)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "gate", rep.Skipped[0].Stage)
	assert.Contains(t, rep.Skipped[0].Reason, "余额")
}

func TestLoop_JournalFailureStopsBeforeOrder(t *testing.T) {
	h := newHarness(investCfg())
	h.journal.err = errors.New("disk full")

	_, err := h.loop.Run(context.Background(), targets(3), decimal.NewFromInt(10000))
	require.Error(t, err)
	assert.Empty(t, h.placer.placed)
}

func TestLoop_DoesNotReorderCallerSlice(t *testing.T) {
	h := newHarness(investCfg())
	in := targets(5)
	_, err := h.loop.Run(context.Background(), in, decimal.NewFromInt(10000))
	require.NoError(t, err)
	assert.Equal(t, targets(5), in)
}
