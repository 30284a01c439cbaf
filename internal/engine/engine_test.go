package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tickmill/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStrategy struct {
	mu    sync.Mutex
	ticks []market.Tick
	seen  atomic.Int64
}

func (c *countingStrategy) Name() string { return "counting" }

func (c *countingStrategy) OnTick(_ context.Context, tick market.Tick) {
	c.mu.Lock()
	c.ticks = append(c.ticks, tick)
	c.mu.Unlock()
	c.seen.Add(1)
}

func (c *countingStrategy) snapshot() []market.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]market.Tick, len(c.ticks))
	copy(out, c.ticks)
	return out
}

func tickN(i int) market.Tick {
	return market.Tick{Symbol: "AAPL", Close: float64(i), Timestamp: time.Unix(int64(i), 0)}
}

func TestProcessesAllTicksInOrder(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))

	for i := 1; i <= 10; i++ {
		e.AddEvent(tickN(i))
	}
	e.Stop()

	ticks := strat.snapshot()
	require.Len(t, ticks, 10, "Stop 前入队的事件必须全部派发")
	for i, tk := range ticks {
		assert.InDelta(t, float64(i+1), tk.Close, 1e-9)
	}
	assert.False(t, e.IsRunning())
}

func TestEventsBeforeStartStillDelivered(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)

	e.AddEvent(tickN(1))
	e.AddEvent(tickN(2))
	require.NoError(t, e.Start(context.Background()))
	e.Stop()

	assert.Len(t, strat.snapshot(), 2)
}

func TestStartWhileRunning(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))
	assert.ErrorIs(t, e.Start(context.Background()), ErrAlreadyRunning)
	e.Stop()
}

func TestStopIdempotent(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))
	e.AddEvent(tickN(1))

	e.Stop()
	e.Stop()
	e.Stop()

	assert.Len(t, strat.snapshot(), 1)
	assert.False(t, e.IsRunning())
}

func TestStopWithoutStart(t *testing.T) {
	e := New(&countingStrategy{})
	e.Stop() // 不应阻塞或 panic
	assert.False(t, e.IsRunning())
}

func TestConcurrentAddDuringStop(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				e.AddEvent(tickN(i))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		e.Stop()
		close(done)
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop 与并发 AddEvent 发生死锁")
	}
	assert.False(t, e.IsRunning())
}

func TestNoDispatchAfterStop(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))
	e.AddEvent(tickN(1))
	e.Stop()

	processed := strat.seen.Load()
	e.AddEvent(tickN(2))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, processed, strat.seen.Load(), "Stop 返回后不得再派发 tick")
}

func TestConsumerExitsOnEndOfStream(t *testing.T) {
	strat := &countingStrategy{}
	e := New(strat)
	require.NoError(t, e.Start(context.Background()))
	for i := 0; i < 5; i++ {
		e.AddEvent(tickN(i))
	}
	e.Stop()
	// 消费协程自行退出后引擎回到 Stopped。
	assert.False(t, e.IsRunning())
	assert.Equal(t, 0, e.QueueLen())
}
