package strategy

import (
	"context"

	"tickmill/internal/market"
	"tickmill/internal/scorer"
)

// Strategy 逐个消费 tick 并决定是否下单。实现必须假定 OnTick 只会被
// 引擎的消费协程串行调用，内部状态无需加锁。
type Strategy interface {
	Name() string
	OnTick(ctx context.Context, tick market.Tick)
}

// Scorer 是策略对外部打分服务的最小依赖。
type Scorer interface {
	Predict(ctx context.Context, symbol string, timestamp int64, features []float64) scorer.Prediction
}

// Stats 汇总一次回测里策略侧的可观测计数。
type Stats struct {
	Ticks          int `json:"ticks"`
	Predictions    int `json:"predictions"`
	ScorerFailures int `json:"scorer_failures"`
	RejectedOrders int `json:"rejected_orders"`
}
