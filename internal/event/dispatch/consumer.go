package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/service/sender"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gotomicro/ego/core/elog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize    = 32
	defaultBatchTimeout = time.Second
	defaultConcurrency  = 8

	// maxInlineWait 快到投递时间的消息原地等一小会儿就投，
	// 更久的回投队列，不让延迟重投拖住同批在线消息的位点
	maxInlineWait = 2 * time.Second
)

// EventConsumer 投递消息消费者：攒一小批消息后并发投递，
// 整批完成后按分区提交最后一条消息的位点
type EventConsumer struct {
	svc      sender.Sender
	consumer mqx.Consumer
	producer mqx.Producer[Event]

	batchSize    int
	batchTimeout time.Duration
	concurrency  int

	logger *elog.Component
}

// NewEventConsumer 创建投递消息消费者并订阅主题
func NewEventConsumer(svc sender.Sender, consumer *kafka.Consumer, producer mqx.Producer[Event]) (*EventConsumer, error) {
	return NewEventConsumerWithTopic(svc, consumer, producer, EventName)
}

func NewEventConsumerWithTopic(svc sender.Sender, consumer *kafka.Consumer, producer mqx.Producer[Event], topic string) (*EventConsumer, error) {
	err := consumer.SubscribeTopics([]string{topic}, nil)
	if err != nil {
		return nil, err
	}
	return newEventConsumer(svc, consumer, producer), nil
}

func newEventConsumer(svc sender.Sender, consumer mqx.Consumer, producer mqx.Producer[Event]) *EventConsumer {
	return &EventConsumer{
		svc:          svc,
		consumer:     consumer,
		producer:     producer,
		batchSize:    defaultBatchSize,
		batchTimeout: defaultBatchTimeout,
		concurrency:  defaultConcurrency,
		logger:       elog.DefaultLogger,
	}
}

func (c *EventConsumer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if er := c.Consume(ctx); er != nil {
				c.logger.Error("消费投递消息失败", elog.FieldErr(er))
			}
		}
	}()
}

func (c *EventConsumer) Consume(ctx context.Context) error {
	var (
		evts              []Event
		dueTimes          []time.Time
		processedMessages []*kafka.Message
	)

	batchTimer := time.NewTimer(c.batchTimeout)
	defer batchTimer.Stop()

collectBatch:
	for len(evts) < c.batchSize {
		select {
		case <-ctx.Done():
			break collectBatch
		case <-batchTimer.C:
			break collectBatch
		default:
		}

		msg, err := c.consumer.ReadMessage(c.batchTimeout)
		if err != nil {
			var kErr kafka.Error
			if errors.As(err, &kErr) && kErr.Code() == kafka.ErrTimedOut {
				break
			}
			return fmt.Errorf("获取消息失败: %w", err)
		}

		var evt Event
		if err = json.Unmarshal(msg.Value, &evt); err != nil {
			// 解析失败，跳过本条，继续下一轮
			c.logger.Warn("解析投递消息失败",
				elog.FieldErr(err),
				elog.Any("msg", msg))
			continue
		}

		due := mqx.DeliverAfter(msg)
		if wait := time.Until(due); wait > maxInlineWait {
			// 远没到投递时间的延迟重投消息回投队列再提交位点
			if err = c.producer.ProduceDelayed(ctx, evt, wait); err != nil {
				return fmt.Errorf("回投延迟消息失败: notificationID=%d, recipientID=%s, %w",
					evt.NotificationID, evt.RecipientID, err)
			}
			processedMessages = append(processedMessages, msg)
			continue
		}

		evts = append(evts, evt)
		dueTimes = append(dueTimes, due)
		processedMessages = append(processedMessages, msg)
	}

	if len(evts) > 0 {
		// 并发投递整批消息，任何一条投递落库失败都不提交位点，等队列重投
		// 接收者记录上的状态CAS保证重投不会二次生效
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(c.concurrency)
		for i := range evts {
			evt, due := evts[i], dueTimes[i]
			eg.Go(func() error {
				if err := waitUntil(egCtx, due); err != nil {
					return err
				}
				if _, err := c.svc.Deliver(egCtx, evt); err != nil {
					return fmt.Errorf("投递失败: notificationID=%d, recipientID=%s, %w",
						evt.NotificationID, evt.RecipientID, err)
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	if len(processedMessages) == 0 {
		return nil
	}
	return commitLastPerPartition(c.consumer, c.logger, processedMessages)
}

func waitUntil(ctx context.Context, due time.Time) error {
	delay := time.Until(due)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// commitLastPerPartition 只提交每个分区的最后一条消息
func commitLastPerPartition(consumer mqx.Consumer, logger *elog.Component, msgs []*kafka.Message) error {
	lastMessages := make(map[int32]*kafka.Message)
	for _, msg := range msgs {
		lastMessages[msg.TopicPartition.Partition] = msg
	}
	for _, lastMsg := range lastMessages {
		if _, err := consumer.CommitMessage(lastMsg); err != nil {
			logger.Warn("提交消息失败",
				elog.FieldErr(err),
				elog.Any("partition", lastMsg.TopicPartition.Partition),
				elog.Any("offset", lastMsg.TopicPartition.Offset))
			return err
		}
	}
	return nil
}
