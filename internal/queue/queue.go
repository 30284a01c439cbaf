package queue

import "sync"

// Queue 是一个无界阻塞 FIFO，用于把事件生产方与唯一消费方解耦。
// Push 永不阻塞（除锁竞争外）；Pop 挂起直到有元素或队列已 Finish 且排空。
// Finish 只封口不丢弃，已入队的元素仍会被依次取出。
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	finished bool
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push 入队。队列 Finish 之后的 Push 仍然接受，但不会有新的消费者等到它；
// 调用方应保证 Finish 之后不再生产。
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop 阻塞取出队头元素。第二个返回值为 false 表示流已结束（Finish 且排空）。
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.finished {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// TryPop 非阻塞取出，队列为空时立即返回 false。
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Finish 置终止标记并唤醒所有等待者，可重复调用。
func (q *Queue[T]) Finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finished
}
