package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
)

// Producer 记录所有入队消息的内存生产者，断言用
type Producer[T any] struct {
	mu      sync.Mutex
	items   []T
	delayed []DelayedMessage[T]
}

type DelayedMessage[T any] struct {
	Message T
	Delay   time.Duration
}

func NewProducer[T any]() *Producer[T] {
	return &Producer[T]{}
}

var _ mqx.Producer[int] = (*Producer[int])(nil)

func (p *Producer[T]) Produce(_ context.Context, evt T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, evt)
	return nil
}

func (p *Producer[T]) ProduceBatch(_ context.Context, evts []T) error {
	if len(evts) > mqx.DefaultMaxBatchSize {
		return fmt.Errorf("%w: %d > %d", errs.ErrBatchTooLarge, len(evts), mqx.DefaultMaxBatchSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, evts...)
	return nil
}

func (p *Producer[T]) ProduceDelayed(_ context.Context, evt T, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delayed = append(p.delayed, DelayedMessage[T]{Message: evt, Delay: delay})
	return nil
}

func (p *Producer[T]) Close() {}

func (p *Producer[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]T(nil), p.items...)
}

func (p *Producer[T]) Delayed() []DelayedMessage[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DelayedMessage[T](nil), p.delayed...)
}

// Drain 取走目前积压的全部即时消息
func (p *Producer[T]) Drain() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := p.items
	p.items = nil
	return items
}

// DrainDelayed 取走目前积压的全部延迟消息
func (p *Producer[T]) DrainDelayed() []DelayedMessage[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	delayed := p.delayed
	p.delayed = nil
	return delayed
}
