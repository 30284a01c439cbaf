package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, *ResultStore, string) {
	t.Helper()
	store := newTestStore(t)
	reportDir := filepath.Join(t.TempDir(), "reports")
	runner, err := NewRunner(RunnerConfig{
		Store:       store,
		Scorer:      alwaysBuy(t),
		InitialCash: 10000,
		ReportDir:   reportDir,
	})
	require.NoError(t, err)
	return runner, store, reportDir
}

func waitForRun(t *testing.T, store *ResultStore, id string) Run {
	t.Helper()
	var run Run
	require.Eventually(t, func() bool {
		got, ok, err := store.GetRun(context.Background(), id)
		if err != nil || !ok {
			return false
		}
		run = got
		return run.Status == RunStatusDone || run.Status == RunStatusFailed
	}, 15*time.Second, 50*time.Millisecond)
	return run
}

func TestRunnerExecutesCSVRun(t *testing.T) {
	runner, store, reportDir := newTestRunner(t)
	path := writeTickCSV(t, 60, 50)

	run, err := runner.StartRun(RunRequest{Source: "csv", DataPath: path})
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.NotEmpty(t, run.ID)

	done := waitForRun(t, store, run.ID)
	require.Equal(t, RunStatusDone, done.Status, "message=%s", done.Message)
	assert.Equal(t, 60, done.Stats.Ticks)
	assert.Equal(t, 1, done.Stats.Trades)
	assert.InDelta(t, 9500.0, done.Stats.FinalCash, 1e-9)
	assert.False(t, done.CompletedAt.IsZero())

	trades, err := store.ListTrades(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	// 产物：资金曲线 HTML 与成交 CSV。
	_, err = os.Stat(filepath.Join(reportDir, run.ID+".html"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, run.ID+"_trades.csv"))
	assert.NoError(t, err)
}

func TestRunnerMarksFailedRun(t *testing.T) {
	runner, store, _ := newTestRunner(t)

	run, err := runner.StartRun(RunRequest{Source: "csv", DataPath: filepath.Join(t.TempDir(), "missing.csv")})
	require.NoError(t, err)

	done := waitForRun(t, store, run.ID)
	assert.Equal(t, RunStatusFailed, done.Status)
	assert.NotEmpty(t, done.Message)
}

func TestRunnerRequestValidation(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.StartRun(RunRequest{Source: "csv"})
	assert.Error(t, err, "csv 缺 data_path 应直接拒绝")

	_, err = runner.StartRun(RunRequest{Source: "binance"})
	assert.Error(t, err, "binance 缺 symbol/interval 应直接拒绝")

	_, err = runner.StartRun(RunRequest{Source: "ftp", DataPath: "x.csv"})
	assert.Error(t, err)
}

func TestRunnerThresholdOverride(t *testing.T) {
	runner, store, _ := newTestRunner(t)
	path := writeTickCSV(t, 60, 50)

	// 阈值抬到 0.95，打分 0.9 不再触发买入。
	run, err := runner.StartRun(RunRequest{Source: "csv", DataPath: path, Threshold: 0.95})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, run.Config.Strategy.Threshold, 1e-9)

	done := waitForRun(t, store, run.ID)
	require.Equal(t, RunStatusDone, done.Status)
	assert.Zero(t, done.Stats.Trades)
	assert.InDelta(t, 10000.0, done.Stats.FinalCash, 1e-9)
}
