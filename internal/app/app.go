package app

import (
	"context"
	"fmt"

	"tickmill/internal/backtest"
	tmcfg "tickmill/internal/config"
	"tickmill/internal/logger"
	"tickmill/internal/scorer"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与可选的自动回放。
type App struct {
	watcher *tmcfg.Watcher
	cfg     tmcfg.Config
	store   *backtest.ResultStore
	scorer  *scorer.Client
	runner  *backtest.Runner
	server  *backtest.HTTPServer
}

// NewApp 根据配置监听器构建应用对象（不启动）。
func NewApp(watcher *tmcfg.Watcher) (*App, error) {
	if watcher == nil {
		return nil, fmt.Errorf("nil config watcher")
	}
	cfg := watcher.Snapshot().Config

	store, err := backtest.NewResultStore(cfg.Backtest.DBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}
	client := scorer.NewClient(scorer.ClientConfig{
		BaseURL:        cfg.Scorer.BaseURL,
		TimeoutSeconds: cfg.Scorer.TimeoutSeconds,
		MaxRetries:     cfg.Scorer.MaxRetries,
	})
	runner, err := backtest.NewRunner(backtest.RunnerConfig{
		Store:         store,
		Scorer:        client,
		Params:        watcher.Params, // 新任务总是取热加载后的最新参数
		InitialCash:   cfg.Backtest.InitialCash,
		SpreadBps:     cfg.Data.Binance.SpreadBps,
		ReportDir:     cfg.Backtest.ReportDir,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	server, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:   cfg.App.HTTPAddr,
		Runner: runner,
		Scorer: client,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &App{
		watcher: watcher,
		cfg:     cfg,
		store:   store,
		scorer:  client,
		runner:  runner,
		server:  server,
	}, nil
}

// Run 启动 HTTP 服务，若配置了 auto_run 则在后台提交一次回放。
// ctx 取消后优雅收尾。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.runner == nil {
		return fmt.Errorf("app not initialized")
	}
	a.runner.SetContext(ctx)
	if !a.scorer.Health(ctx) {
		logger.Warnf("[app] 打分服务 %s 不可用，回放仍可提交，但不会产生交易", a.cfg.Scorer.BaseURL)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.cfg.Data.AutoRun {
		group.Go(func() error {
			run, err := a.runner.StartRun(a.autoRunRequest())
			if err != nil {
				// 自动回放失败不拖垮服务，HTTP 提交仍然可用。
				logger.Errorf("[app] 自动回放提交失败: %v", err)
				return nil
			}
			logger.Infof("[app] 自动回放已提交：run=%s source=%s", run.ID, run.Config.Source)
			return nil
		})
	}
	return group.Wait()
}

func (a *App) autoRunRequest() backtest.RunRequest {
	return backtest.RunRequest{
		Source:   a.cfg.Data.Source,
		DataPath: a.cfg.Data.CSVPath,
		Symbol:   a.cfg.Data.Binance.Symbol,
		Interval: a.cfg.Data.Binance.Interval,
		StartTS:  a.cfg.Data.Binance.StartTS,
		EndTS:    a.cfg.Data.Binance.EndTS,
	}
}

// Runner 暴露底层 Runner，供测试与重放工具使用。
func (a *App) Runner() *backtest.Runner {
	if a == nil {
		return nil
	}
	return a.runner
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
