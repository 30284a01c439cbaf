package config

import (
	"tickmill/internal/strategy"
)

// Config 是 tickmill 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Data     DataConfig     `toml:"data"`
	Strategy StrategyConfig `toml:"strategy"`
	Scorer   ScorerConfig   `toml:"scorer"`
	Backtest BacktestConfig `toml:"backtest"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	LogPath     string `toml:"log_path"`
	WireLogPath string `toml:"wire_log_path"`
	WireDump    bool   `toml:"wire_dump_payload"`
}

// DataConfig 描述回放数据来源。source 为 csv 时读取本地文件，
// 为 binance 时走合约行情接口拉取 K 线。
type DataConfig struct {
	Source  string        `toml:"source"` // "csv" | "binance"
	CSVPath string        `toml:"csv_path"`
	AutoRun bool          `toml:"auto_run"` // 启动时自动执行一次回放
	Binance BinanceConfig `toml:"binance"`
}

type BinanceConfig struct {
	Symbol    string  `toml:"symbol"`
	Interval  string  `toml:"interval"`
	StartTS   int64   `toml:"start_ts"` // Unix ms
	EndTS     int64   `toml:"end_ts"`   // Unix ms
	SpreadBps float64 `toml:"spread_bps"`
}

// StrategyConfig 暴露均线策略的全部可调参数，热更新后对新任务生效。
type StrategyConfig struct {
	ShortPeriod      int     `toml:"short_period"`
	LongPeriod       int     `toml:"long_period"`
	VolatilityPeriod int     `toml:"volatility_period"`
	Threshold        float64 `toml:"threshold"`
	Lot              int64   `toml:"lot"`
	HistoryMargin    int     `toml:"history_margin"`
}

// Params 把配置映射为策略参数。
func (s StrategyConfig) Params() strategy.Params {
	return strategy.Params{
		ShortPeriod:      s.ShortPeriod,
		LongPeriod:       s.LongPeriod,
		VolatilityPeriod: s.VolatilityPeriod,
		Threshold:        s.Threshold,
		Lot:              s.Lot,
		HistoryMargin:    s.HistoryMargin,
	}
}

// ScorerConfig 描述外部打分服务的访问方式。
type ScorerConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}

type BacktestConfig struct {
	InitialCash   float64 `toml:"initial_cash"`
	MaxConcurrent int     `toml:"max_concurrent"`
	DBPath        string  `toml:"db_path"`
	ReportDir     string  `toml:"report_dir"`
}
