package ledger

import (
	"time"

	"tickmill/internal/scorer"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeRecord 是一笔已执行交易的审计记录，创建后不可变。
// 除了成交本身，还保留触发这笔交易的打分结果。
type TradeRecord struct {
	Timestamp     time.Time    `json:"timestamp"`
	Strategy      string       `json:"strategy"`
	Symbol        string       `json:"symbol"`
	Side          string       `json:"side"`
	Quantity      int64        `json:"quantity"`
	Price         float64      `json:"price"`
	CashAfter     float64      `json:"cash_after"`
	PositionAfter int64        `json:"position_after"`
	Label         scorer.Label `json:"label"`
	Score         float64      `json:"score"`
	ProbBuy       float64      `json:"prob_buy"`
	ModelVersion  string       `json:"model_version"`
}

// Recorder 接收成交记录。实现方负责持久化或聚合，失败自行消化，
// 不允许把错误传回交易路径。
type Recorder interface {
	Record(rec TradeRecord)
}
