package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestTTLCache_ExpiresPerEntry(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	c := New[string, float64](time.Minute, clk.Now)

	c.Set("short", 1.5, 10*time.Second)
	c.Set("default", 2.5, 0)

	v, ok := c.Get("short")
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	exp, ok := c.ExpiresAt("default")
	assert.True(t, ok)
	assert.Equal(t, clk.now.Add(time.Minute), exp)

	clk.now = clk.now.Add(10 * time.Second)
	_, ok = c.Get("short")
	assert.False(t, ok, "到期的条目不应再返回")
	_, ok = c.Get("default")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestTTLCache_PurgeAndClear(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	c := New[int, string](time.Second, clk.Now)
	c.Set(1, "a", 0)
	c.Set(2, "b", time.Hour)

	clk.now = clk.now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Size())

	c.Delete(2)
	assert.Equal(t, 0, c.Size())

	c.Set(3, "c", 0)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}
