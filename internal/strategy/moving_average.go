package strategy

import (
	"context"

	"tickmill/internal/ledger"
	"tickmill/internal/logger"
	"tickmill/internal/market"
	"tickmill/internal/scorer"

	talib "github.com/markcheno/go-talib"
)

// Params 是均线策略的全部可调参数。
type Params struct {
	ShortPeriod      int     `json:"short_period"`
	LongPeriod       int     `json:"long_period"`
	VolatilityPeriod int     `json:"volatility_period"`
	Threshold        float64 `json:"threshold"`
	Lot              int64   `json:"lot"`
	HistoryMargin    int     `json:"history_margin"`
}

// DefaultParams 与训练模型时使用的窗口保持一致。
func DefaultParams() Params {
	return Params{
		ShortPeriod:      10,
		LongPeriod:       50,
		VolatilityPeriod: 20,
		Threshold:        0.7,
		Lot:              10,
		HistoryMargin:    10,
	}
}

type phase int

const (
	phaseFilling phase = iota // 历史不足 long_period
	phasePriming              // 刚满窗口，只用来确立 prevClose 基线
	phaseActive               // 正常决策
)

type symbolState struct {
	closes    []float64
	volumes   []float64
	prevClose float64
	phase     phase
}

// MovingAverage 维护每个 symbol 的滚动窗口，计算固定顺序的特征向量，
// 调用打分服务，并按阈值规则对账本下单。特征顺序是与模型的契约，
// 调整顺序必须同步升级模型版本。
type MovingAverage struct {
	name   string
	params Params
	ledger *ledger.Ledger
	scorer Scorer
	states map[string]*symbolState
	stats  Stats
}

func NewMovingAverage(params Params, led *ledger.Ledger, sc Scorer) *MovingAverage {
	if params.ShortPeriod <= 0 {
		params.ShortPeriod = 10
	}
	if params.LongPeriod <= params.ShortPeriod {
		params.LongPeriod = params.ShortPeriod * 5
	}
	if params.VolatilityPeriod <= 0 {
		params.VolatilityPeriod = 20
	}
	if params.Lot <= 0 {
		params.Lot = 10
	}
	if params.HistoryMargin <= 0 {
		params.HistoryMargin = 10
	}
	return &MovingAverage{
		name:   "MovingAverage",
		params: params,
		ledger: led,
		scorer: sc,
		states: make(map[string]*symbolState),
	}
}

func (s *MovingAverage) Name() string {
	return s.name
}

// Stats 返回当前计数快照，只应在引擎停止后读取。
func (s *MovingAverage) Stats() Stats {
	return s.stats
}

func (s *MovingAverage) state(symbol string) *symbolState {
	st, ok := s.states[symbol]
	if !ok {
		st = &symbolState{}
		s.states[symbol] = st
	}
	return st
}

func (s *MovingAverage) OnTick(ctx context.Context, tick market.Tick) {
	s.stats.Ticks++
	st := s.state(tick.Symbol)
	st.closes = append(st.closes, tick.Close)
	st.volumes = append(st.volumes, float64(tick.Volume))
	if max := s.params.LongPeriod + s.params.HistoryMargin; len(st.closes) > max {
		st.closes = st.closes[1:]
		st.volumes = st.volumes[1:]
	}

	// 暖机阶段不打分不交易，只推进基线。状态按 symbol 单调前进。
	if len(st.closes) < s.params.LongPeriod {
		st.phase = phaseFilling
		st.prevClose = tick.Close
		return
	}
	if st.phase != phaseActive {
		st.phase = phaseActive
		st.prevClose = tick.Close
		return
	}

	features := s.features(st, tick)
	s.stats.Predictions++
	pred := s.scorer.Predict(ctx, tick.Symbol, tick.Timestamp.Unix(), features)
	if !pred.OK {
		// 打分失败只跳过本 tick，滚动状态照常推进，不能卡住流水线。
		s.stats.ScorerFailures++
		logger.Warnf("[strategy] %s 打分失败: %s", tick.Symbol, pred.Err)
		st.prevClose = tick.Close
		return
	}
	logger.Debugf("[strategy] %s 打分: label=%s score=%.4f probBuy=%.4f",
		tick.Symbol, pred.Label, pred.Score, pred.ProbBuy())

	s.decide(tick, pred)
	st.prevClose = tick.Close
}

// decide 每 tick 每 symbol 至多执行一笔交易。
func (s *MovingAverage) decide(tick market.Tick, pred scorer.Prediction) {
	position := s.ledger.Position(tick.Symbol)
	switch {
	case pred.Label == scorer.LabelBuy && pred.Score >= s.params.Threshold && position == 0:
		if !s.ledger.CanBuy(tick.Symbol, s.params.Lot, tick.Close) {
			s.stats.RejectedOrders++
			logger.Debugf("[strategy] %s 现金不足，跳过买入", tick.Symbol)
			return
		}
		rec := s.ledger.ExecuteTrade(ledger.TradeInput{
			Timestamp:    tick.Timestamp,
			Strategy:     s.name,
			Symbol:       tick.Symbol,
			Side:         ledger.SideBuy,
			Quantity:     s.params.Lot,
			Price:        tick.Close,
			Label:        pred.Label,
			Score:        pred.Score,
			ProbBuy:      pred.ProbBuy(),
			ModelVersion: pred.ModelVersion,
		})
		logger.Infof("[trade] BUY %d %s @ $%.2f（现金 $%.2f）", rec.Quantity, rec.Symbol, rec.Price, rec.CashAfter)

	case pred.Label == scorer.LabelSell && pred.Score >= s.params.Threshold && position > 0:
		if !s.ledger.CanSell(tick.Symbol, position) {
			s.stats.RejectedOrders++
			logger.Debugf("[strategy] %s 持仓不足，跳过卖出", tick.Symbol)
			return
		}
		rec := s.ledger.ExecuteTrade(ledger.TradeInput{
			Timestamp:    tick.Timestamp,
			Strategy:     s.name,
			Symbol:       tick.Symbol,
			Side:         ledger.SideSell,
			Quantity:     position, // 全部清仓
			Price:        tick.Close,
			Label:        pred.Label,
			Score:        pred.Score,
			ProbBuy:      pred.ProbBuy(),
			ModelVersion: pred.ModelVersion,
		})
		logger.Infof("[trade] SELL %d %s @ $%.2f（现金 $%.2f）", rec.Quantity, rec.Symbol, rec.Price, rec.CashAfter)
	}
}

// features 计算固定顺序的特征向量：
// [ret1, ret5, shortMA, longMA, volatility, volumeRatio, close, momentum]
func (s *MovingAverage) features(st *symbolState, tick market.Tick) []float64 {
	closes := st.closes
	n := len(closes)

	ret1 := 0.0
	if st.prevClose != 0 {
		ret1 = (tick.Close - st.prevClose) / st.prevClose
	}
	ret5 := 0.0
	if n >= 5 && closes[n-5] != 0 {
		ret5 = (tick.Close - closes[n-5]) / closes[n-5]
	}
	shortMA := lastValue(talib.Sma(closes, s.params.ShortPeriod))
	longMA := lastValue(talib.Sma(closes, s.params.LongPeriod))
	volatility := 0.0
	if n >= s.params.VolatilityPeriod {
		// talib 的 StdDev 为总体标准差，与模型训练口径一致。
		volatility = lastValue(talib.StdDev(closes, s.params.VolatilityPeriod, 1.0))
	}
	volRatio := volumeRatio(st.volumes, s.params.VolatilityPeriod)
	momentum := ret5 // 与 ret5 同式，按契约作为独立特征保留

	return []float64{ret1, ret5, shortMA, longMA, volatility, volRatio, tick.Close, momentum}
}

// volumeRatio 返回当前成交量与此前 period 个 tick 均量之比，历史不足时为 1。
func volumeRatio(volumes []float64, period int) float64 {
	n := len(volumes)
	if n < period+1 {
		return 1.0
	}
	current := volumes[n-1]
	sum := 0.0
	for _, v := range volumes[n-period-1 : n-1] {
		sum += v
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 1.0
	}
	return current / avg
}

func lastValue(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
