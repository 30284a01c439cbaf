package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  env: prod
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, 10, cfg.Strategy.ShortPeriod)
	assert.Equal(t, 50, cfg.Strategy.LongPeriod)
	assert.InDelta(t, 0.7, cfg.Strategy.Threshold, 1e-9)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Scorer.BaseURL)
	assert.InDelta(t, 10000, cfg.Backtest.InitialCash, 1e-9)
	assert.Equal(t, 2, cfg.Backtest.MaxConcurrent)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
app:
  log_level: debug
  http_addr: ":8099"
data:
  source: binance
  binance:
    symbol: BTCUSDT
    interval: 5m
strategy:
  short_period: 5
  long_period: 30
  threshold: 0.8
  lot: 3
scorer:
  base_url: http://scorer:8000
  timeout_seconds: 3
backtest:
  initial_cash: 50000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "binance", cfg.Data.Source)
	assert.Equal(t, "BTCUSDT", cfg.Data.Binance.Symbol)
	assert.Equal(t, "5m", cfg.Data.Binance.Interval)
	params := cfg.Strategy.Params()
	assert.Equal(t, 5, params.ShortPeriod)
	assert.Equal(t, 30, params.LongPeriod)
	assert.InDelta(t, 0.8, params.Threshold, 1e-9)
	assert.Equal(t, int64(3), params.Lot)
	assert.Equal(t, "http://scorer:8000", cfg.Scorer.BaseURL)
	assert.Equal(t, 3, cfg.Scorer.TimeoutSeconds)
	assert.InDelta(t, 50000, cfg.Backtest.InitialCash, 1e-9)
}

func TestLoadLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
scorer:
  base_url: http://scorer:8000
  timeout_seconds: 3
`)
	writeConfig(t, dir, "config.local.yaml", `
scorer:
  base_url: http://127.0.0.1:9001
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	// 本地覆盖只改它声明的键，其余沿用主配置。
	assert.Equal(t, "http://127.0.0.1:9001", cfg.Scorer.BaseURL)
	assert.Equal(t, 3, cfg.Scorer.TimeoutSeconds)
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad log level", "app:\n  log_level: chatty\n"},
		{"bad source", "data:\n  source: ftp\n"},
		{"short >= long", "strategy:\n  short_period: 50\n  long_period: 20\n"},
		{"threshold above one", "strategy:\n  threshold: 1.5\n"},
		{"bad scorer url", "scorer:\n  base_url: scorer:8000\n"},
		{"autorun without path", "data:\n  source: csv\n  auto_run: true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, dir, "bad.yaml", tc.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}

func TestWatcherSnapshotAndParams(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
strategy:
  threshold: 0.9
`)
	w, err := NewWatcher(path)
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, 1, snap.Version)
	assert.InDelta(t, 0.9, w.Params().Threshold, 1e-9)

	// reload 直接调用，等价于一次 FS 事件。
	require.NoError(t, os.WriteFile(path, []byte("strategy:\n  threshold: 0.75\n"), 0o644))
	require.NoError(t, w.reload())
	assert.Equal(t, 2, w.Snapshot().Version)
	assert.InDelta(t, 0.75, w.Params().Threshold, 1e-9)
}
