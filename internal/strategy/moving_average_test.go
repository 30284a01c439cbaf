package strategy

import (
	"context"
	"testing"
	"time"

	"tickmill/internal/ledger"
	"tickmill/internal/market"
	"tickmill/internal/recorder"
	"tickmill/internal/scorer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedScorer struct {
	pred     scorer.Prediction
	calls    int
	features [][]float64
	symbols  []string
}

func (s *scriptedScorer) Predict(_ context.Context, symbol string, _ int64, features []float64) scorer.Prediction {
	s.calls++
	s.symbols = append(s.symbols, symbol)
	cp := make([]float64, len(features))
	copy(cp, features)
	s.features = append(s.features, cp)
	return s.pred
}

func buyPrediction(score float64) scorer.Prediction {
	return scorer.Prediction{Label: scorer.LabelBuy, Probabilities: []float64{0.1, 0.9}, Score: score, ModelVersion: "v1", OK: true}
}

func sellPrediction(score float64) scorer.Prediction {
	return scorer.Prediction{Label: scorer.LabelSell, Probabilities: []float64{0.8, 0.2}, Score: score, ModelVersion: "v1", OK: true}
}

func tickAt(i int, symbol string, close float64, volume int64) market.Tick {
	ts := time.Date(2020, 1, 2, 9, 30, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute)
	return market.Tick{
		Timestamp: ts, Symbol: symbol,
		Open: close, High: close, Low: close, Close: close, AdjClose: close,
		Volume: volume, Bid: close - 0.05, Ask: close + 0.05,
	}
}

// 推送 n 个等价 tick。
func feed(s *MovingAverage, symbol string, n int, close float64, volume int64) {
	for i := 0; i < n; i++ {
		s.OnTick(context.Background(), tickAt(i, symbol, close, volume))
	}
}

func TestNoPredictionBeforeWarmup(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.9)}
	led := ledger.New(10000, nil)
	s := NewMovingAverage(DefaultParams(), led, sc)

	// 49 个 tick：不足 long_period=50，一次也不该调用打分。
	feed(s, "AAPL", 49, 50, 1000)
	assert.Equal(t, 0, sc.calls)

	// 第 50 个 tick 进入 Priming，仍然不打分。
	s.OnTick(context.Background(), tickAt(49, "AAPL", 50, 1000))
	assert.Equal(t, 0, sc.calls)

	// 第 51 个 tick 进入 Active，开始打分。
	s.OnTick(context.Background(), tickAt(50, "AAPL", 50, 1000))
	assert.Equal(t, 1, sc.calls)
}

func TestBuyExecutesOnce(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.9)}
	log := recorder.NewLog()
	led := ledger.New(10000, log)
	s := NewMovingAverage(DefaultParams(), led, sc)

	feed(s, "AAPL", 52, 50, 1000)

	require.Equal(t, 1, log.Count(), "已持仓时不应重复买入")
	trade := log.Trades()[0]
	assert.Equal(t, ledger.SideBuy, trade.Side)
	assert.EqualValues(t, 10, trade.Quantity)
	assert.InDelta(t, 50, trade.Price, 1e-9)
	assert.InDelta(t, 9500, led.Cash(), 1e-9)
	assert.EqualValues(t, 10, led.Position("AAPL"))
}

func TestBuySkippedWhenCashShort(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.9)}
	log := recorder.NewLog()
	led := ledger.New(100, log) // 100 < 10*50
	s := NewMovingAverage(DefaultParams(), led, sc)

	feed(s, "AAPL", 55, 50, 1000)

	assert.Equal(t, 0, log.Count())
	assert.InDelta(t, 100, led.Cash(), 1e-9)
	assert.EqualValues(t, 0, led.Position("AAPL"))
	assert.Greater(t, s.Stats().RejectedOrders, 0)
}

func TestBuySkippedBelowThreshold(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.5)}
	log := recorder.NewLog()
	led := ledger.New(10000, log)
	s := NewMovingAverage(DefaultParams(), led, sc)

	feed(s, "AAPL", 55, 50, 1000)
	assert.Equal(t, 0, log.Count())
}

func TestSellLiquidatesPosition(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.9)}
	log := recorder.NewLog()
	led := ledger.New(10000, log)
	s := NewMovingAverage(DefaultParams(), led, sc)

	feed(s, "AAPL", 52, 50, 1000)
	require.EqualValues(t, 10, led.Position("AAPL"))

	sc.pred = sellPrediction(0.8)
	s.OnTick(context.Background(), tickAt(52, "AAPL", 60, 1000))

	require.Equal(t, 2, log.Count())
	sell := log.Trades()[1]
	assert.Equal(t, ledger.SideSell, sell.Side)
	assert.EqualValues(t, 10, sell.Quantity)
	assert.EqualValues(t, 0, led.Position("AAPL"))
	_, exists := led.Positions()["AAPL"]
	assert.False(t, exists)
	// 9500 + 10*60
	assert.InDelta(t, 10100, led.Cash(), 1e-9)
}

func TestScorerFailureAdvancesState(t *testing.T) {
	sc := &scriptedScorer{pred: scorer.Prediction{OK: false, Err: "connection failed"}}
	log := recorder.NewLog()
	led := ledger.New(10000, log)
	s := NewMovingAverage(DefaultParams(), led, sc)

	feed(s, "AAPL", 51, 50, 1000)
	require.Equal(t, 1, sc.calls)
	assert.Equal(t, 0, log.Count())
	assert.Equal(t, 1, s.Stats().ScorerFailures)

	// 失败后 prevClose 仍应推进到 50；下一个 tick 收盘 55，ret1 应按 50 计算。
	sc.pred = buyPrediction(0.9)
	s.OnTick(context.Background(), tickAt(51, "AAPL", 55, 1000))
	require.Equal(t, 2, sc.calls)
	ret1 := sc.features[1][0]
	assert.InDelta(t, (55.0-50.0)/50.0, ret1, 1e-12)
}

func TestFeatureVectorOrder(t *testing.T) {
	sc := &scriptedScorer{pred: scorer.Prediction{OK: false, Err: "scripted"}}
	led := ledger.New(10000, nil)
	s := NewMovingAverage(DefaultParams(), led, sc)

	// 恒定价格与成交量下各特征有闭式值。
	feed(s, "AAPL", 51, 100, 2000)
	require.Equal(t, 1, sc.calls)
	f := sc.features[0]
	require.Len(t, f, 8)
	assert.InDelta(t, 0, f[0], 1e-12)    // ret1
	assert.InDelta(t, 0, f[1], 1e-12)    // ret5
	assert.InDelta(t, 100, f[2], 1e-9)   // short MA
	assert.InDelta(t, 100, f[3], 1e-9)   // long MA
	assert.InDelta(t, 0, f[4], 1e-9)     // volatility
	assert.InDelta(t, 1.0, f[5], 1e-12)  // volume ratio
	assert.InDelta(t, 100, f[6], 1e-12)  // close
	assert.InDelta(t, f[1], f[7], 1e-12) // momentum == ret5
}

func TestPerSymbolIsolation(t *testing.T) {
	sc := &scriptedScorer{pred: buyPrediction(0.9)}
	log := recorder.NewLog()
	led := ledger.New(100000, log)
	s := NewMovingAverage(DefaultParams(), led, sc)

	// AAPL 热完身，MSFT 只喂了一半历史。
	feed(s, "AAPL", 52, 50, 1000)
	feed(s, "MSFT", 25, 80, 1000)

	assert.EqualValues(t, 10, led.Position("AAPL"))
	assert.EqualValues(t, 0, led.Position("MSFT"))
	for _, sym := range sc.symbols {
		assert.Equal(t, "AAPL", sym, "未热身的 symbol 不应触发打分")
	}
}

func TestHistoryBounded(t *testing.T) {
	sc := &scriptedScorer{pred: scorer.Prediction{OK: false, Err: "scripted"}}
	led := ledger.New(10000, nil)
	p := DefaultParams()
	s := NewMovingAverage(p, led, sc)

	feed(s, "AAPL", 500, 50, 1000)
	st := s.states["AAPL"]
	assert.LessOrEqual(t, len(st.closes), p.LongPeriod+p.HistoryMargin)
	assert.Equal(t, len(st.closes), len(st.volumes))
}
