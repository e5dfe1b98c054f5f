package mqx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	// DefaultMaxBatchSize 单次批量入队上限，超过要求调用方自行拆分
	DefaultMaxBatchSize = 100
	// HeaderDeliverAfter 延迟投递时间戳（毫秒）的消息头
	HeaderDeliverAfter = "deliver-after-ms"
)

// Producer 消息队列生产者抽象，投递语义是 at-least-once
type Producer[T any] interface {
	Produce(ctx context.Context, evt T) error
	// ProduceBatch 批量入队，长度超过 DefaultMaxBatchSize 时返回 errs.ErrBatchTooLarge
	ProduceBatch(ctx context.Context, evts []T) error
	// ProduceDelayed 延迟入队，消费方在 delay 过后才会处理这条消息
	ProduceDelayed(ctx context.Context, evt T, delay time.Duration) error
	Close()
}

// GeneralProducer 把任意事件序列化成JSON写入Kafka
type GeneralProducer[T any] struct {
	producer *kafka.Producer
	topic    string
}

func NewGeneralProducer[T any](producer *kafka.Producer, topic string) (*GeneralProducer[T], error) {
	return &GeneralProducer[T]{
		producer: producer,
		topic:    topic,
	}, nil
}

func (p *GeneralProducer[T]) Produce(ctx context.Context, evt T) error {
	return p.produce(ctx, evt, nil)
}

func (p *GeneralProducer[T]) ProduceBatch(ctx context.Context, evts []T) error {
	if len(evts) > DefaultMaxBatchSize {
		return fmt.Errorf("%w: %d > %d", errs.ErrBatchTooLarge, len(evts), DefaultMaxBatchSize)
	}
	for i := range evts {
		if err := p.produce(ctx, evts[i], nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *GeneralProducer[T]) ProduceDelayed(ctx context.Context, evt T, delay time.Duration) error {
	deliverAfter := time.Now().Add(delay).UnixMilli()
	return p.produce(ctx, evt, []kafka.Header{
		{Key: HeaderDeliverAfter, Value: []byte(strconv.FormatInt(deliverAfter, 10))},
	})
}

func (p *GeneralProducer[T]) produce(ctx context.Context, evt T, headers []kafka.Header) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Value:          data,
		Headers:        headers,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("未知的交付事件类型: %T", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("消息交付失败: %w", m.TopicPartition.Error)
		}
		return nil
	}
}

func (p *GeneralProducer[T]) Close() {
	p.producer.Close()
}

// DeliverAfter 从消息头里解析延迟投递时间，没有设置时返回零值
func DeliverAfter(msg *kafka.Message) time.Time {
	for _, h := range msg.Headers {
		if h.Key == HeaderDeliverAfter {
			ms, err := strconv.ParseInt(string(h.Value), 10, 64)
			if err != nil {
				return time.Time{}
			}
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}
