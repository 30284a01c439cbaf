package backtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tickmill/internal/ledger"
	"tickmill/internal/loader"
	"tickmill/internal/logger"
	"tickmill/internal/recorder"
	"tickmill/internal/report"
	"tickmill/internal/strategy"

	"github.com/google/uuid"
)

// Runner 负责回放任务的创建、并发控制与结果落库。
// 每个任务内部仍然是单消费者流水线，并发只发生在任务之间。
type Runner struct {
	store   *ResultStore
	scorer  ScorerClient
	params  func() strategy.Params
	cash    float64
	spread  float64
	reports string

	sem     chan struct{}
	baseCtx context.Context
}

type RunnerConfig struct {
	Store         *ResultStore
	Scorer        ScorerClient
	Params        func() strategy.Params // 每次任务启动时取最新参数
	InitialCash   float64
	SpreadBps     float64
	ReportDir     string
	MaxConcurrent int
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store 不能为空")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer 不能为空")
	}
	if cfg.Params == nil {
		defaults := strategy.DefaultParams()
		cfg.Params = func() strategy.Params { return defaults }
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 10000
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		store:   cfg.Store,
		scorer:  cfg.Scorer,
		params:  cfg.Params,
		cash:    cfg.InitialCash,
		spread:  cfg.SpreadBps,
		reports: cfg.ReportDir,
		sem:     make(chan struct{}, maxConcurrent),
		baseCtx: context.Background(),
	}, nil
}

// SetContext 指定后台任务使用的根上下文。
func (r *Runner) SetContext(ctx context.Context) {
	if ctx != nil {
		r.baseCtx = ctx
	}
}

// StartRun 创建任务并立即返回，回放在后台进行。
func (r *Runner) StartRun(req RunRequest) (Run, error) {
	cfg, err := r.buildConfig(req)
	if err != nil {
		return Run{}, err
	}
	source, err := buildSource(cfg)
	if err != nil {
		return Run{}, err
	}

	now := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Status:    RunStatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.InsertRun(r.baseCtx, run); err != nil {
		return Run{}, fmt.Errorf("写入任务失败: %w", err)
	}
	go r.execute(run, source)
	return run, nil
}

func (r *Runner) buildConfig(req RunRequest) (RunConfig, error) {
	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = "csv"
	}
	cfg := RunConfig{
		Source:      source,
		DataPath:    req.DataPath,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Interval:    strings.ToLower(strings.TrimSpace(req.Interval)),
		StartTS:     req.StartTS,
		EndTS:       req.EndTS,
		SpreadBps:   r.spread,
		InitialCash: req.InitialCash,
		Strategy:    r.params(),
	}
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = r.cash
	}
	if req.Threshold > 0 {
		cfg.Strategy.Threshold = req.Threshold
	}
	switch cfg.Source {
	case "csv":
		if cfg.DataPath == "" {
			return RunConfig{}, fmt.Errorf("csv 数据源需要 data_path")
		}
	case "binance":
		if cfg.Symbol == "" || cfg.Interval == "" {
			return RunConfig{}, fmt.Errorf("binance 数据源需要 symbol 与 interval")
		}
	default:
		return RunConfig{}, fmt.Errorf("未知数据源: %s", cfg.Source)
	}
	return cfg, nil
}

func buildSource(cfg RunConfig) (loader.Source, error) {
	switch cfg.Source {
	case "csv":
		return loader.NewCSVSource(cfg.DataPath), nil
	case "binance":
		return loader.NewBinanceSource(loader.BinanceConfig{
			Symbol:    cfg.Symbol,
			Interval:  cfg.Interval,
			Start:     cfg.StartTS,
			End:       cfg.EndTS,
			SpreadBps: cfg.SpreadBps,
		})
	default:
		return nil, fmt.Errorf("未知数据源: %s", cfg.Source)
	}
}

func (r *Runner) execute(run Run, source loader.Source) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	ctx := r.baseCtx
	run.Status = RunStatusRunning
	run.UpdatedAt = time.Now()
	if err := r.store.UpdateRun(ctx, run); err != nil {
		logger.Warnf("[backtest] run %s 更新状态失败: %v", run.ID, err)
	}
	logger.Infof("[backtest] run %s 开始：source=%s", run.ID, source.Name())

	session, err := NewSession(SessionConfig{
		RunID:       run.ID,
		Source:      source,
		Scorer:      r.scorer,
		Params:      run.Config.Strategy,
		InitialCash: run.Config.InitialCash,
		Extra:       r.store.TradeRecorder(run.ID),
	})
	if err != nil {
		r.finish(run, RunStats{}, err)
		return
	}
	result, err := session.Run(ctx)
	if err != nil {
		r.finish(run, RunStats{}, err)
		return
	}
	r.writeArtifacts(run, result)
	r.finish(run, result.Stats, nil)
}

func (r *Runner) finish(run Run, stats RunStats, err error) {
	now := time.Now()
	run.UpdatedAt = now
	run.CompletedAt = now
	if err != nil {
		run.Status = RunStatusFailed
		run.Message = err.Error()
		logger.Warnf("[backtest] run %s 失败: %v", run.ID, err)
	} else {
		run.Status = RunStatusDone
		stats.FinishedAt = now
		run.Stats = stats
	}
	if uerr := r.store.UpdateRun(r.baseCtx, run); uerr != nil {
		logger.Warnf("[backtest] run %s 写入结果失败: %v", run.ID, uerr)
	}
}

// writeArtifacts 导出资金曲线 HTML 与交易 CSV，失败只告警。
func (r *Runner) writeArtifacts(run Run, result Result) {
	if r.reports == "" {
		return
	}
	if err := os.MkdirAll(r.reports, 0o755); err != nil {
		logger.Warnf("[backtest] 创建报告目录失败: %v", err)
		return
	}
	points := make([]report.Point, 0, len(result.Equity))
	for _, p := range result.Equity {
		points = append(points, report.Point{TS: p.TS, Equity: p.Equity})
	}
	htmlPath := filepath.Join(r.reports, run.ID+".html")
	if err := report.WriteEquity(htmlPath, run.ID, run.Config.InitialCash, points); err != nil {
		logger.Warnf("[backtest] run %s 生成报告失败: %v", run.ID, err)
	}
	csvPath := filepath.Join(r.reports, run.ID+"_trades.csv")
	if err := recorder.WriteCSV(csvPath, result.Trades); err != nil {
		logger.Warnf("[backtest] run %s 导出交易失败: %v", run.ID, err)
	}
}

// GetRun 查询单个任务。
func (r *Runner) GetRun(ctx context.Context, id string) (Run, bool, error) {
	return r.store.GetRun(ctx, id)
}

// ListRuns 返回全部任务。
func (r *Runner) ListRuns(ctx context.Context) ([]Run, error) {
	return r.store.ListRuns(ctx)
}

// ListTrades 返回某任务的全部成交。
func (r *Runner) ListTrades(ctx context.Context, id string) ([]ledger.TradeRecord, error) {
	return r.store.ListTrades(ctx, id)
}
