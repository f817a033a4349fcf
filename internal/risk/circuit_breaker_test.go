package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsOnConsecutiveBusy(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{BusyThreshold: 2})
	require.NoError(t, cb.AllowTrading())

	assert.False(t, cb.OnBusy())
	require.NoError(t, cb.AllowTrading())
	assert.True(t, cb.OnBusy())
	assert.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)

	// 打开后成功也不会自动恢复
	cb.OnSuccess()
	assert.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)
	assert.True(t, cb.Snapshot().Tripped)
}

func TestCircuitBreaker_NonBusyBreaksTheRun(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{BusyThreshold: 2})

	cb.OnBusy()
	cb.OnSuccess()
	assert.False(t, cb.OnBusy())

	cb.OnNeutral()
	assert.False(t, cb.OnBusy())
	assert.NoError(t, cb.AllowTrading())
	assert.Equal(t, 1, cb.Successes())
}

func TestCircuitBreaker_Snapshot(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{BusyThreshold: 3}).WithClock(func() time.Time { return now })

	now = now.Add(10 * time.Second)
	cb.OnSuccess()
	cb.OnBusy()
	now = now.Add(5 * time.Second)

	s := cb.Snapshot()
	assert.Equal(t, 1, s.BusyCount)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 5*time.Second, s.SinceLastSuccess)
	assert.False(t, s.Tripped)
}

func TestCircuitBreaker_DisabledAndNil(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	for i := 0; i < 10; i++ {
		assert.False(t, cb.OnBusy())
	}
	assert.NoError(t, cb.AllowTrading())

	var nilCB *CircuitBreaker
	assert.NoError(t, nilCB.AllowTrading())
	assert.False(t, nilCB.OnBusy())
	nilCB.OnSuccess()
	nilCB.Halt()
}

func TestCircuitBreaker_Halt(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{BusyThreshold: 2})
	cb.Halt()
	assert.ErrorIs(t, cb.AllowTrading(), ErrCircuitBreakerOpen)
	assert.True(t, cb.Snapshot().Tripped)
}
