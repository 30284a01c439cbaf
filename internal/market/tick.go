package market

import "time"

// Tick 表示单个 symbol 在某一时刻的历史行情快照，生成后只读。
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	AdjClose  float64   `json:"adj_close"`
	Volume    int64     `json:"volume"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
}

// Mid 返回买卖中间价。
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread 返回买卖价差。
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// PriceSnapshot 记录各 symbol 最近一次成交价，用于估值。
type PriceSnapshot map[string]float64
