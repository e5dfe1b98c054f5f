package mqx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
)

// MemoryQueue 进程内消息队列，实现 Producer 并额外提供消费端，
// 用于测试和单机部署。延迟消息通过定时器到期后再入队来模拟
type MemoryQueue[T any] struct {
	ch     chan T
	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

func NewMemoryQueue[T any](capacity int) *MemoryQueue[T] {
	return &MemoryQueue[T]{
		ch: make(chan T, capacity),
	}
}

func (q *MemoryQueue[T]) Produce(ctx context.Context, evt T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("队列已关闭")
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- evt:
		return nil
	}
}

func (q *MemoryQueue[T]) ProduceBatch(ctx context.Context, evts []T) error {
	if len(evts) > DefaultMaxBatchSize {
		return fmt.Errorf("%w: %d > %d", errs.ErrBatchTooLarge, len(evts), DefaultMaxBatchSize)
	}
	for i := range evts {
		if err := q.Produce(ctx, evts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (q *MemoryQueue[T]) ProduceDelayed(_ context.Context, evt T, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("队列已关闭")
	}
	t := time.AfterFunc(delay, func() {
		// 定时器触发时原始 ctx 可能已经结束，入队不受其控制
		_ = q.Produce(context.Background(), evt)
	})
	q.timers = append(q.timers, t)
	return nil
}

// Consume 阻塞直到有消息可读或者 ctx 被取消
func (q *MemoryQueue[T]) Consume(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case evt, ok := <-q.ch:
		if !ok {
			return zero, fmt.Errorf("队列已关闭")
		}
		return evt, nil
	}
}

// TryConsume 非阻塞读取，队列为空时第二个返回值为 false
func (q *MemoryQueue[T]) TryConsume() (T, bool) {
	var zero T
	select {
	case evt, ok := <-q.ch:
		if !ok {
			return zero, false
		}
		return evt, true
	default:
		return zero, false
	}
}

func (q *MemoryQueue[T]) Len() int {
	return len(q.ch)
}

func (q *MemoryQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	close(q.ch)
}
