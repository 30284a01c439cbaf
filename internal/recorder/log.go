package recorder

import (
	"sync"

	"tickmill/internal/ledger"
)

// Log 在内存中按成交顺序累积交易记录。
// 正常情况下只有消费协程写入，但导出/查询可能来自其它协程，所以仍然加锁。
type Log struct {
	mu     sync.Mutex
	trades []ledger.TradeRecord
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Record(rec ledger.TradeRecord) {
	l.mu.Lock()
	l.trades = append(l.trades, rec)
	l.mu.Unlock()
}

// Count 返回已记录的交易笔数。
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.trades)
}

// Trades 返回按成交顺序排列的记录拷贝。
func (l *Log) Trades() []ledger.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// Tee 把同一条记录分发给多个下游。
func Tee(recorders ...ledger.Recorder) ledger.Recorder {
	return teeRecorder(recorders)
}

type teeRecorder []ledger.Recorder

func (t teeRecorder) Record(rec ledger.TradeRecord) {
	for _, r := range t {
		if r != nil {
			r.Record(rec)
		}
	}
}
