package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tickmill/internal/market"
	"tickmill/internal/scorer"

	"github.com/shopspring/decimal"
)

// Ledger 维护现金与持仓。资金运算走 decimal，避免长序列回测的浮点漂移。
//
// Ledger 不做内部加锁：整条流水线只有引擎的消费协程会调用
// CanBuy/CanSell/ExecuteTrade（单写者约定），check-then-act 因此是安全的。
type Ledger struct {
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]int64
	recorder    Recorder
}

func New(initialCash float64, recorder Recorder) *Ledger {
	cash := decimal.NewFromFloat(initialCash)
	return &Ledger{
		initialCash: cash,
		cash:        cash,
		positions:   make(map[string]int64),
		recorder:    recorder,
	}
}

// CanBuy 判断现金是否足以按 price 买入 qty 股。
func (l *Ledger) CanBuy(symbol string, qty int64, price float64) bool {
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty))
	return l.cash.GreaterThanOrEqual(cost)
}

// CanSell 判断持仓是否足以卖出 qty 股，symbol 不存在视为持仓 0。
func (l *Ledger) CanSell(symbol string, qty int64) bool {
	return l.positions[symbol] >= qty
}

// TradeInput 是 ExecuteTrade 的入参；打分字段原样进入审计记录。
type TradeInput struct {
	Timestamp    time.Time
	Strategy     string
	Symbol       string
	Side         string
	Quantity     int64
	Price        float64
	Label        scorer.Label
	Score        float64
	ProbBuy      float64
	ModelVersion string
}

// ExecuteTrade 执行一笔已经通过 CanBuy/CanSell 校验的交易。
// 这里不再重复校验——校验与执行必须发生在同一个逻辑步骤内，
// 由调用方（策略）在消费协程里保证。
func (l *Ledger) ExecuteTrade(in TradeInput) TradeRecord {
	notional := decimal.NewFromFloat(in.Price).Mul(decimal.NewFromInt(in.Quantity))
	switch in.Side {
	case SideBuy:
		l.cash = l.cash.Sub(notional)
		l.positions[in.Symbol] += in.Quantity
	case SideSell:
		l.cash = l.cash.Add(notional)
		l.positions[in.Symbol] -= in.Quantity
		if l.positions[in.Symbol] == 0 {
			delete(l.positions, in.Symbol)
		}
	}
	cashAfter, _ := l.cash.Float64()
	rec := TradeRecord{
		Timestamp:     in.Timestamp,
		Strategy:      in.Strategy,
		Symbol:        in.Symbol,
		Side:          in.Side,
		Quantity:      in.Quantity,
		Price:         in.Price,
		CashAfter:     cashAfter,
		PositionAfter: l.positions[in.Symbol],
		Label:         in.Label,
		Score:         in.Score,
		ProbBuy:       in.ProbBuy,
		ModelVersion:  in.ModelVersion,
	}
	if l.recorder != nil {
		l.recorder.Record(rec)
	}
	return rec
}

// Cash 返回当前现金。
func (l *Ledger) Cash() float64 {
	f, _ := l.cash.Float64()
	return f
}

// InitialCash 返回建仓时的现金快照。
func (l *Ledger) InitialCash() float64 {
	f, _ := l.initialCash.Float64()
	return f
}

// Position 返回某 symbol 的持仓，不存在时为 0。
func (l *Ledger) Position(symbol string) int64 {
	return l.positions[symbol]
}

// Positions 返回持仓拷贝。
func (l *Ledger) Positions() map[string]int64 {
	out := make(map[string]int64, len(l.positions))
	for k, v := range l.positions {
		out[k] = v
	}
	return out
}

// TotalValue 返回现金 + 持仓市值。快照里没有价格的 symbol 按 0 计入，
// 宁可低估也不报错。
func (l *Ledger) TotalValue(prices market.PriceSnapshot) float64 {
	total := l.cash
	for symbol, qty := range l.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		total = total.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty)))
	}
	f, _ := total.Float64()
	return f
}

// Summary 渲染账户概要，供日志输出。
func (l *Ledger) Summary(prices market.PriceSnapshot) string {
	var b strings.Builder
	initial, _ := l.initialCash.Float64()
	b.WriteString("=== 账户概要 ===\n")
	fmt.Fprintf(&b, "初始现金: $%.2f\n", initial)
	fmt.Fprintf(&b, "当前现金: $%.2f\n", l.Cash())
	if len(l.positions) == 0 {
		b.WriteString("持仓: 无\n")
	} else {
		symbols := make([]string, 0, len(l.positions))
		for s := range l.positions {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			fmt.Fprintf(&b, "持仓: %s %d 股 @ $%.2f\n", s, l.positions[s], prices[s])
		}
	}
	total := l.TotalValue(prices)
	pnl := total - initial
	fmt.Fprintf(&b, "总市值: $%.2f\n", total)
	if initial != 0 {
		fmt.Fprintf(&b, "盈亏: $%.2f (%.2f%%)\n", pnl, pnl/initial*100)
	}
	return b.String()
}
