package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9980"
	defaultAppLogPath        = "data/logs/tickmill.log"
	defaultAppWireLogPath    = "data/logs/tickmill-wire.log"
	defaultDataSource        = "csv"
	defaultBinanceInterval   = "1m"
	defaultBinanceSpreadBps  = 2.0
	defaultStrategyShort     = 10
	defaultStrategyLong      = 50
	defaultStrategyVol       = 20
	defaultStrategyThreshold = 0.7
	defaultStrategyLot       = 10
	defaultStrategyMargin    = 10
	defaultScorerBaseURL     = "http://127.0.0.1:8000"
	defaultScorerTimeout     = 10
	defaultScorerRetries     = 2
	defaultBacktestCash      = 10000
	defaultBacktestParallel  = 2
	defaultBacktestDB        = "data/db/backtests.db"
	defaultBacktestReports   = "data/reports"
)

// Load 读取主配置文件，若同目录存在 <name>.local.yaml 则覆盖合并，
// 便于把密钥和本机路径留在不进版本库的副本里。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config 路径不能为空")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := mergeConfigFile(v, abs); err != nil {
		return nil, fmt.Errorf("读取配置失败 (%s): %w", abs, err)
	}
	if local := localOverridePath(abs); local != "" {
		if err := mergeConfigFile(v, local); err != nil {
			return nil, fmt.Errorf("读取本地覆盖失败 (%s): %w", local, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(tmp.AllSettings())
}

// localOverridePath 返回 config.yaml 旁边的 config.local.yaml，不存在时为空。
func localOverridePath(path string) string {
	ext := filepath.Ext(path)
	local := strings.TrimSuffix(path, ext) + ".local" + ext
	if _, err := os.Stat(local); err != nil {
		return ""
	}
	return local
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultAppLogPath
	}
	if c.App.WireLogPath == "" {
		c.App.WireLogPath = defaultAppWireLogPath
	}
	if c.Data.Source == "" {
		c.Data.Source = defaultDataSource
	}
	if c.Data.Binance.Interval == "" {
		c.Data.Binance.Interval = defaultBinanceInterval
	}
	if c.Data.Binance.SpreadBps <= 0 {
		c.Data.Binance.SpreadBps = defaultBinanceSpreadBps
	}
	if c.Strategy.ShortPeriod <= 0 {
		c.Strategy.ShortPeriod = defaultStrategyShort
	}
	if c.Strategy.LongPeriod <= 0 {
		c.Strategy.LongPeriod = defaultStrategyLong
	}
	if c.Strategy.VolatilityPeriod <= 0 {
		c.Strategy.VolatilityPeriod = defaultStrategyVol
	}
	if c.Strategy.Threshold <= 0 {
		c.Strategy.Threshold = defaultStrategyThreshold
	}
	if c.Strategy.Lot <= 0 {
		c.Strategy.Lot = defaultStrategyLot
	}
	if c.Strategy.HistoryMargin <= 0 {
		c.Strategy.HistoryMargin = defaultStrategyMargin
	}
	if c.Scorer.BaseURL == "" {
		c.Scorer.BaseURL = defaultScorerBaseURL
	}
	if c.Scorer.TimeoutSeconds <= 0 {
		c.Scorer.TimeoutSeconds = defaultScorerTimeout
	}
	if c.Scorer.MaxRetries < 0 {
		c.Scorer.MaxRetries = defaultScorerRetries
	}
	if c.Backtest.InitialCash <= 0 {
		c.Backtest.InitialCash = defaultBacktestCash
	}
	if c.Backtest.MaxConcurrent <= 0 {
		c.Backtest.MaxConcurrent = defaultBacktestParallel
	}
	if c.Backtest.DBPath == "" {
		c.Backtest.DBPath = defaultBacktestDB
	}
	if c.Backtest.ReportDir == "" {
		c.Backtest.ReportDir = defaultBacktestReports
	}
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app.log_level 不合法: %s", c.App.LogLevel)
	}
	switch strings.ToLower(c.Data.Source) {
	case "csv":
		if c.Data.AutoRun && c.Data.CSVPath == "" {
			return fmt.Errorf("data.auto_run 需要 data.csv_path")
		}
	case "binance":
		if c.Data.AutoRun && c.Data.Binance.Symbol == "" {
			return fmt.Errorf("data.auto_run 需要 data.binance.symbol")
		}
	default:
		return fmt.Errorf("data.source 不合法: %s", c.Data.Source)
	}
	if c.Strategy.LongPeriod <= c.Strategy.ShortPeriod {
		return fmt.Errorf("strategy.long_period 必须大于 short_period（%d <= %d）",
			c.Strategy.LongPeriod, c.Strategy.ShortPeriod)
	}
	if c.Strategy.Threshold > 1 {
		return fmt.Errorf("strategy.threshold 必须在 (0, 1] 区间: %v", c.Strategy.Threshold)
	}
	if !strings.HasPrefix(c.Scorer.BaseURL, "http://") && !strings.HasPrefix(c.Scorer.BaseURL, "https://") {
		return fmt.Errorf("scorer.base_url 必须是 http(s) 地址: %s", c.Scorer.BaseURL)
	}
	return nil
}
