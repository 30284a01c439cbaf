package backtest

import (
	"encoding/json"
	"time"

	"tickmill/internal/strategy"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录一次回放的参数快照，便于审计与重放。
type RunConfig struct {
	Source      string          `json:"source"` // csv | binance
	DataPath    string          `json:"data_path,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Interval    string          `json:"interval,omitempty"`
	StartTS     int64           `json:"start_ts,omitempty"` // Unix ms
	EndTS       int64           `json:"end_ts,omitempty"`   // Unix ms
	SpreadBps   float64         `json:"spread_bps,omitempty"`
	InitialCash float64         `json:"initial_cash"`
	Strategy    strategy.Params `json:"strategy"`
}

// RunStats 汇总一次回放的结果指标。
type RunStats struct {
	Ticks          int       `json:"ticks"`
	Trades         int       `json:"trades"`
	Predictions    int       `json:"predictions"`
	ScorerFailures int       `json:"scorer_failures"`
	RejectedOrders int       `json:"rejected_orders"`
	FinalCash      float64   `json:"final_cash"`
	FinalValue     float64   `json:"final_value"`
	ReturnPct      float64   `json:"return_pct"`
	EquityPeak     float64   `json:"equity_peak"`
	EquityValley   float64   `json:"equity_valley"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Run 表示一次回放任务的生命周期。
type Run struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

func (r Run) MarshalStats() ([]byte, error) {
	return json.Marshal(r.Stats)
}

// RunRequest 为 HTTP 提交使用；零值字段回落到服务端配置。
type RunRequest struct {
	Source      string  `json:"source"`
	DataPath    string  `json:"data_path"`
	Symbol      string  `json:"symbol"`
	Interval    string  `json:"interval"`
	StartTS     int64   `json:"start_ts"`
	EndTS       int64   `json:"end_ts"`
	InitialCash float64 `json:"initial_cash"`
	Threshold   float64 `json:"threshold"`
}

// EquityPoint 是资金曲线上的一个采样点。
type EquityPoint struct {
	TS     int64   `json:"ts"`
	Equity float64 `json:"equity"`
}
