package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/service/aggregator"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gotomicro/ego/core/elog"
)

const (
	defaultBatchSize    = 64
	defaultBatchTimeout = time.Second
)

// EventConsumer 结果事件消费者：把每个接收者的终态喂给聚合器
// 聚合器对重复事件免疫，所以位点提交失败导致的重复消费是安全的
type EventConsumer struct {
	agg      aggregator.Aggregator
	consumer mqx.Consumer

	batchSize    int
	batchTimeout time.Duration

	logger *elog.Component
}

// NewEventConsumer 创建结果事件消费者并订阅主题
func NewEventConsumer(agg aggregator.Aggregator, consumer *kafka.Consumer) (*EventConsumer, error) {
	return NewEventConsumerWithTopic(agg, consumer, EventName)
}

func NewEventConsumerWithTopic(agg aggregator.Aggregator, consumer *kafka.Consumer, topic string) (*EventConsumer, error) {
	err := consumer.SubscribeTopics([]string{topic}, nil)
	if err != nil {
		return nil, err
	}
	return &EventConsumer{
		agg:          agg,
		consumer:     consumer,
		batchSize:    defaultBatchSize,
		batchTimeout: defaultBatchTimeout,
		logger:       elog.DefaultLogger,
	}, nil
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
				c.logger.Error("消费结果事件失败", elog.FieldErr(er))
			}
		}
	}()
}

func (c *EventConsumer) Consume(ctx context.Context) error {
	var (
		evts              []Event
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
			c.logger.Warn("解析结果事件失败",
				elog.FieldErr(err),
				elog.Any("msg", msg))
			continue
		}

		evts = append(evts, evt)
		processedMessages = append(processedMessages, msg)
	}

	if len(evts) == 0 {
		return nil
	}

	// 计数器更新必须串行套用，聚合器内部靠版本号CAS处理跨实例的并发
	for i := range evts {
		if err := c.agg.RecordOutcome(ctx, evts[i]); err != nil {
			return fmt.Errorf("记录投递结果失败: notificationID=%d, recipientID=%s, %w",
				evts[i].NotificationID, evts[i].RecipientID, err)
		}
	}

	// 只提交每个分区的最后一条消息
	lastMessages := make(map[int32]*kafka.Message)
	for _, msg := range processedMessages {
		lastMessages[msg.TopicPartition.Partition] = msg
	}
	for _, lastMsg := range lastMessages {
		if _, err := c.consumer.CommitMessage(lastMsg); err != nil {
			c.logger.Warn("提交消息失败",
				elog.FieldErr(err),
				elog.Any("partition", lastMsg.TopicPartition.Partition),
				elog.Any("offset", lastMsg.TopicPartition.Offset))
			return err
		}
	}
	return nil
}
