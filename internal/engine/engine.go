package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"tickmill/internal/logger"
	"tickmill/internal/market"
	"tickmill/internal/queue"
	"tickmill/internal/strategy"
)

// ErrAlreadyRunning 表示 Start 在 Running 状态被再次调用。
// 这里拒绝而不是静默忽略：第二个消费协程会破坏账本的单写者约定。
var ErrAlreadyRunning = errors.New("engine already running")

// Engine 持有事件队列和唯一的消费协程。生产方任意，消费方只有一个：
// 所有 tick 按入队顺序同步派发给策略。
type Engine struct {
	events *queue.Queue[market.Tick]
	strat  strategy.Strategy

	running atomic.Bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func New(strat strategy.Strategy) *Engine {
	return &Engine{
		events: queue.New[market.Tick](),
		strat:  strat,
	}
}

// AddEvent 入队一个 tick，与引擎状态无关；Finish 只封口不丢弃，
// Stop 请求之后、队列排空之前入队的事件仍会被消费。
func (e *Engine) AddEvent(tick market.Tick) {
	e.events.Push(tick)
}

// Start 从 Stopped 切换到 Running 并启动消费协程。
// 已在 Running 时返回 ErrAlreadyRunning，绝不会再起第二个消费者。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e.wg.Add(1)
	go e.consume(ctx)
	return nil
}

func (e *Engine) consume(ctx context.Context) {
	defer e.wg.Done()
	logger.Infof("[engine] 回测引擎启动（策略=%s）", e.strat.Name())
	for {
		tick, ok := e.events.Pop()
		if !ok {
			break // 流结束
		}
		e.strat.OnTick(ctx, tick)
	}
	e.running.Store(false)
	logger.Infof("[engine] 回测引擎停止")
}

// Stop 幂等，可从任意协程调用。返回时消费协程已退出，
// 之后不会再有 tick 被派发。已入队的事件会先被排空。
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running.Store(false)
	e.events.Finish()
	e.mu.Unlock()
	e.wg.Wait()
}

// IsRunning 报告消费协程是否仍在运行。
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// QueueLen 返回尚未消费的事件数，仅用于观测。
func (e *Engine) QueueLen() int {
	return e.events.Len()
}
