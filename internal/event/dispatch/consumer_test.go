package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/test/fakes"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender 记录投递过的消息
type recordingSender struct {
	mu        sync.Mutex
	delivered []domain.DispatchMessage
}

func (s *recordingSender) Deliver(_ context.Context, msg domain.DispatchMessage) (domain.DeliveryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, msg)
	return domain.DeliveryResult{Status: domain.DeliveryStatusSucceeded}, nil
}

func (s *recordingSender) deliveredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.delivered))
	for i := range s.delivered {
		ids = append(ids, s.delivered[i].RecipientID)
	}
	return ids
}

// scriptedConsumer 预置消息读完后返回超时，模拟队列暂时没有新消息
type scriptedConsumer struct {
	mu        sync.Mutex
	msgs      []*kafka.Message
	committed []kafka.TopicPartition
}

func (c *scriptedConsumer) ReadMessage(_ time.Duration) (*kafka.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil, kafka.NewError(kafka.ErrTimedOut, "没有更多消息", false)
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}

func (c *scriptedConsumer) Pause(_ []kafka.TopicPartition) error  { return nil }
func (c *scriptedConsumer) Resume(_ []kafka.TopicPartition) error { return nil }
func (c *scriptedConsumer) Poll(_ int) kafka.Event                { return nil }

func (c *scriptedConsumer) CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = append(c.committed, m.TopicPartition)
	return []kafka.TopicPartition{m.TopicPartition}, nil
}

func (c *scriptedConsumer) commitments() []kafka.TopicPartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]kafka.TopicPartition(nil), c.committed...)
}

var _ mqx.Consumer = (*scriptedConsumer)(nil)

func newDispatchMessage(t *testing.T, evt Event, offset kafka.Offset, deliverAfter time.Time) *kafka.Message {
	t.Helper()
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	topic := EventName
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: offset},
		Value:          data,
	}
	if !deliverAfter.IsZero() {
		msg.Headers = []kafka.Header{{
			Key:   mqx.HeaderDeliverAfter,
			Value: []byte(strconv.FormatInt(deliverAfter.UnixMilli(), 10)),
		}}
	}
	return msg
}

func TestConsumeDeliversDueMessages(t *testing.T) {
	t.Parallel()
	svc := &recordingSender{}
	queue := &scriptedConsumer{msgs: []*kafka.Message{
		newDispatchMessage(t, Event{NotificationID: 1, RecipientID: "user-1"}, 1, time.Time{}),
		newDispatchMessage(t, Event{NotificationID: 1, RecipientID: "user-2"}, 2, time.Time{}),
	}}
	c := newEventConsumer(svc, queue, fakes.NewProducer[Event]())

	require.NoError(t, c.Consume(context.Background()))

	assert.ElementsMatch(t, []string{"user-1", "user-2"}, svc.deliveredIDs())
	committed := queue.commitments()
	require.Len(t, committed, 1)
	assert.Equal(t, kafka.Offset(2), committed[0].Offset)
}

func TestConsumeRequeuesNotYetDueRedelivery(t *testing.T) {
	t.Parallel()
	svc := &recordingSender{}
	producer := fakes.NewProducer[Event]()
	// 一条在线消息和一条 5 分钟后才到点的延迟重投消息挤在同一批里
	queue := &scriptedConsumer{msgs: []*kafka.Message{
		newDispatchMessage(t, Event{NotificationID: 2, RecipientID: "user-1"}, 1, time.Time{}),
		newDispatchMessage(t, Event{NotificationID: 2, RecipientID: "user-2", Redelivery: 1},
			2, time.Now().Add(5*time.Minute)),
	}}
	c := newEventConsumer(svc, queue, producer)

	start := time.Now()
	require.NoError(t, c.Consume(context.Background()))

	// 在线消息立刻投出去，没有被延迟消息拖住
	assert.Less(t, time.Since(start), 30*time.Second)
	assert.Equal(t, []string{"user-1"}, svc.deliveredIDs())

	// 延迟消息带着剩余等待时间回投了队列
	delayed := producer.Delayed()
	require.Len(t, delayed, 1)
	assert.Equal(t, "user-2", delayed[0].Message.RecipientID)
	assert.Equal(t, int32(1), delayed[0].Message.Redelivery)
	assert.Greater(t, delayed[0].Delay, 4*time.Minute)

	// 两条消息的位点都提交了，回投的那条靠新消息接力
	committed := queue.commitments()
	require.Len(t, committed, 1)
	assert.Equal(t, kafka.Offset(2), committed[0].Offset)
}

func TestConsumeWaitsForNearlyDueMessage(t *testing.T) {
	t.Parallel()
	svc := &recordingSender{}
	producer := fakes.NewProducer[Event]()
	// 只差几十毫秒就到点的消息原地等到点再投，不再回投队列
	queue := &scriptedConsumer{msgs: []*kafka.Message{
		newDispatchMessage(t, Event{NotificationID: 3, RecipientID: "user-1", Redelivery: 1},
			1, time.Now().Add(50*time.Millisecond)),
	}}
	c := newEventConsumer(svc, queue, producer)

	require.NoError(t, c.Consume(context.Background()))

	assert.Equal(t, []string{"user-1"}, svc.deliveredIDs())
	assert.Empty(t, producer.Delayed())
}
