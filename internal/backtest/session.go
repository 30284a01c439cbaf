package backtest

import (
	"context"
	"fmt"

	"tickmill/internal/engine"
	"tickmill/internal/ledger"
	"tickmill/internal/loader"
	"tickmill/internal/logger"
	"tickmill/internal/market"
	"tickmill/internal/recorder"
	"tickmill/internal/strategy"
)

// ScorerClient 是回测会话对打分服务的完整依赖：决策打分加可用性探测。
type ScorerClient interface {
	strategy.Scorer
	Health(ctx context.Context) bool
}

// Session 把一次回放所需的部件接成一条流水线：
// 数据源 → 事件队列 → 消费协程 → 策略 → 账本 → 交易记录。
// 账本与策略归本次会话所有，只活到会话结束。
type Session struct {
	runID  string
	source loader.Source
	scorer ScorerClient
	params strategy.Params
	cash   float64
	extra  ledger.Recorder // 可选的额外落库下游
}

type SessionConfig struct {
	RunID       string
	Source      loader.Source
	Scorer      ScorerClient
	Params      strategy.Params
	InitialCash float64
	Extra       ledger.Recorder
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("数据源不能为空")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer 不能为空")
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("初始现金必须为正，当前 %v", cfg.InitialCash)
	}
	return &Session{
		runID:  cfg.RunID,
		source: cfg.Source,
		scorer: cfg.Scorer,
		params: cfg.Params,
		cash:   cfg.InitialCash,
		extra:  cfg.Extra,
	}, nil
}

// Result 是一次会话的全部产出。
type Result struct {
	Stats  RunStats
	Trades []ledger.TradeRecord
	Equity []EquityPoint
	Ledger LedgerSnapshot
}

// LedgerSnapshot 是会话结束时的账本快照。
type LedgerSnapshot struct {
	Cash      float64          `json:"cash"`
	Positions map[string]int64 `json:"positions"`
}

// Run 执行完整回放：无论打分或校验失败多少次，回测总会完成并
// 产出已成交的交易与最终账本快照。
func (s *Session) Run(ctx context.Context) (Result, error) {
	ticks, err := s.source.Load(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(ticks) == 0 {
		return Result{}, fmt.Errorf("数据源 %s 没有任何 tick", s.source.Name())
	}

	if !s.scorer.Health(ctx) {
		// 与其直接失败，不如照常跑完：打分失败会被逐 tick 跳过。
		logger.Warnf("[backtest] run %s 打分服务不可用，策略将不会产生交易", s.runID)
	}

	log := recorder.NewLog()
	var sink ledger.Recorder = log
	if s.extra != nil {
		sink = recorder.Tee(log, s.extra)
	}
	led := ledger.New(s.cash, sink)
	strat := strategy.NewMovingAverage(s.params, led, s.scorer)
	tracker := newEquityTracker(strat, led)
	eng := engine.New(tracker)

	if err := eng.Start(ctx); err != nil {
		return Result{}, err
	}
	for _, tick := range ticks {
		eng.AddEvent(tick)
	}
	eng.Stop() // Finish 排空队列后消费协程退出

	stats := s.buildStats(strat.Stats(), log.Count(), led, tracker)
	logger.Infof("[backtest] run %s 完成：tick=%d 交易=%d 终值=%.2f（%+.2f%%）",
		s.runID, stats.Ticks, stats.Trades, stats.FinalValue, stats.ReturnPct)
	logger.InfoBlock(led.Summary(tracker.prices))

	return Result{
		Stats:  stats,
		Trades: log.Trades(),
		Equity: tracker.points,
		Ledger: LedgerSnapshot{Cash: led.Cash(), Positions: led.Positions()},
	}, nil
}

func (s *Session) buildStats(ss strategy.Stats, trades int, led *ledger.Ledger, tracker *equityTracker) RunStats {
	finalValue := led.TotalValue(tracker.prices)
	stats := RunStats{
		Ticks:          ss.Ticks,
		Trades:         trades,
		Predictions:    ss.Predictions,
		ScorerFailures: ss.ScorerFailures,
		RejectedOrders: ss.RejectedOrders,
		FinalCash:      led.Cash(),
		FinalValue:     finalValue,
	}
	if s.cash > 0 {
		stats.ReturnPct = (finalValue - s.cash) / s.cash * 100
	}
	peak, valley := s.cash, s.cash
	for _, p := range tracker.points {
		if p.Equity > peak {
			peak = p.Equity
		}
		if p.Equity < valley {
			valley = p.Equity
		}
	}
	stats.EquityPeak = peak
	stats.EquityValley = valley
	return stats
}

// equityTracker 包装策略，在每个 tick 处理完后按最新收盘价采样权益。
// 只在消费协程里被调用，无需加锁。
type equityTracker struct {
	inner  strategy.Strategy
	ledger *ledger.Ledger
	prices market.PriceSnapshot
	points []EquityPoint
}

func newEquityTracker(inner strategy.Strategy, led *ledger.Ledger) *equityTracker {
	return &equityTracker{
		inner:  inner,
		ledger: led,
		prices: make(market.PriceSnapshot),
	}
}

func (t *equityTracker) Name() string { return t.inner.Name() }

func (t *equityTracker) OnTick(ctx context.Context, tick market.Tick) {
	t.inner.OnTick(ctx, tick)
	t.prices[tick.Symbol] = tick.Close
	t.points = append(t.points, EquityPoint{
		TS:     tick.Timestamp.UnixMilli(),
		Equity: t.ledger.TotalValue(t.prices),
	})
}
