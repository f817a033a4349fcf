package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/skinscan/internal/source"
	"github.com/betbot/skinscan/internal/youpin"
	"github.com/betbot/skinscan/pkg/config"
)

func TestTradingDeps(t *testing.T) {
	cfg := config.Default()
	src := source.NewFromConfig(cfg.Pricing)

	cfg.Trading.DryRun = false
	cfg.Trading.Token = "tok"
	q, p, b := TradingDeps(cfg, src)
	assert.IsType(t, &youpin.Client{}, q)
	assert.IsType(t, &youpin.Client{}, p)
	assert.IsType(t, &youpin.Client{}, b)

	cfg.Trading.DryRun = true
	q, p, b = TradingDeps(cfg, src)
	assert.IsType(t, &youpin.Client{}, q)
	assert.IsType(t, &youpin.DryRunPlacer{}, p)
	assert.IsType(t, &youpin.Client{}, b)

	cfg.Trading.Token = ""
	q, p, b = TradingDeps(cfg, src)
	assert.IsType(t, &source.QuoteAdapter{}, q)
	assert.IsType(t, &youpin.DryRunPlacer{}, p)
	assert.IsType(t, youpin.FixedBalance{}, b)
}

func TestOpenStores(t *testing.T) {
	dir := t.TempDir()
	st, err := OpenStores(config.StorageConfig{
		WhitelistFile: filepath.Join(dir, "whitelist.json"),
		SignalDir:     filepath.Join(dir, "signals"),
		AuditDB:       filepath.Join(dir, "db", "audit.db"),
	})
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, filepath.Join(dir, "whitelist.json"), st.Whitelist.Path())
	assert.Equal(t, filepath.Join(dir, "signals"), st.Journal.Dir())
}

func TestLoggerConfig(t *testing.T) {
	lc := LoggerConfig(config.LogConfig{Level: "debug", File: "logs/x.log", DailyFile: true, MaxSizeMB: 10, MaxBackups: 2, MaxAgeDays: 3})
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "logs/x.log", lc.OutputFile)
	assert.Equal(t, 10, lc.MaxSize)
	assert.True(t, lc.DailyFile)
}
