package sender

import (
	"context"
	"sync"
	"testing"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/service/delivery"
	"gitee.com/flycash/broadcast-platform/internal/test/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient 按脚本返回状态码，超出脚本后重复最后一个
type scriptedClient struct {
	mu    sync.Mutex
	codes []int
	calls int
}

func (c *scriptedClient) Deliver(_ context.Context, _, _ string, _ delivery.Payload) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.codes) {
		idx = len(c.codes) - 1
	}
	c.calls++
	return c.codes[idx], nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type staticSettings struct {
	settings domain.DeliverySettings
}

func (s staticSettings) Get(context.Context, string) (domain.DeliverySettings, error) {
	return s.settings, nil
}

func (s staticSettings) Save(context.Context, string, domain.DeliverySettings) error {
	return nil
}

func fastSettings() domain.DeliverySettings {
	return domain.DeliverySettings{
		MaxAttempts:     5,
		MaxRedeliveries: 3,
		RedeliveryDelay: 5 * time.Minute,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
	}
}

type senderFixture struct {
	sender           Sender
	notificationRepo *fakes.NotificationRepo
	recipientRepo    *fakes.RecipientRepo
	client           *scriptedClient
	dispatchProducer *fakes.Producer[domain.DispatchMessage]
	outcomeProducer  *fakes.Producer[domain.OutcomeEvent]
}

func newSenderFixture(t *testing.T, codes []int, settings domain.DeliverySettings) *senderFixture {
	t.Helper()
	f := &senderFixture{
		notificationRepo: fakes.NewNotificationRepo(),
		recipientRepo:    fakes.NewRecipientRepo(),
		client:           &scriptedClient{codes: codes},
		dispatchProducer: fakes.NewProducer[domain.DispatchMessage](),
		outcomeProducer:  fakes.NewProducer[domain.OutcomeEvent](),
	}
	f.sender = NewSender(f.notificationRepo, f.recipientRepo, f.client,
		f.dispatchProducer, f.outcomeProducer, staticSettings{settings: settings})
	return f
}

const (
	testNotificationID = uint64(100)
	testBatchKey       = "100:1"
	testRecipientID    = "user-1"
)

func (f *senderFixture) seed(t *testing.T, status domain.SendStatus) {
	t.Helper()
	_, err := f.notificationRepo.Create(context.Background(), domain.Notification{
		ID:       testNotificationID,
		Title:    "标题",
		Content:  "内容",
		Audience: domain.Audience{UserIDs: []string{testRecipientID}},
		Status:   status,
	})
	require.NoError(t, err)
	err = f.recipientRepo.BatchCreate(context.Background(), []domain.RecipientRecord{{
		NotificationID: testNotificationID,
		BatchKey:       testBatchKey,
		Recipient:      domain.NewUserRecipient(testRecipientID, "conv-1", "https://push.example.com"),
		Status:         domain.DeliveryStatusPending,
	}})
	require.NoError(t, err)
}

func (f *senderFixture) message() domain.DispatchMessage {
	return domain.DispatchMessage{
		NotificationID: testNotificationID,
		BatchKey:       testBatchKey,
		RecipientType:  domain.RecipientTypeUser,
		RecipientID:    testRecipientID,
		ConversationID: "conv-1",
		ServiceURL:     "https://push.example.com",
		Title:          "标题",
		Content:        "内容",
	}
}

func TestDeliverSucceedsFirstTry(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{201}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusSucceeded, result.Status)
	assert.Equal(t, []int{201}, result.StatusHistory)

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusSucceeded, rec.Status)

	events := f.outcomeProducer.Items()
	require.Len(t, events, 1)
	assert.Equal(t, domain.DeliveryStatusSucceeded, events[0].Status)
	assert.Equal(t, testBatchKey, events[0].BatchKey)
}

func TestDeliverRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	// 三次502之后成功，仍在 MaxAttempts=5 的额度内
	f := newSenderFixture(t, []int{502, 502, 502, 201}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusSucceeded, result.Status)
	assert.Equal(t, []int{502, 502, 502, 201}, result.StatusHistory)
	assert.Equal(t, 4, f.client.callCount())
}

func TestDeliverFailsWhenAttemptsExhausted(t *testing.T) {
	t.Parallel()
	settings := fastSettings()
	settings.MaxAttempts = 3
	f := newSenderFixture(t, []int{502}, settings)
	f.seed(t, domain.SendStatusSending)

	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusFailed, result.Status)
	assert.Len(t, result.StatusHistory, 3)
	assert.Equal(t, 3, f.client.callCount())

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusFailed, rec.Status)
	assert.NotEmpty(t, rec.ErrorMessage)
}

func TestDeliverThrottleDoesNotBlockWorker(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{429}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	start := time.Now()
	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	// 限流立即返回，不原地等待限流窗口
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.DeliveryStatusThrottled, result.Status)
	assert.Equal(t, int32(1), result.NumberOfThrottles)
	assert.Equal(t, 1, f.client.callCount())

	// 行保持待投递，限流次数已记账，延迟重投已入队
	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusPending, rec.Status)
	assert.Equal(t, int32(1), rec.ThrottleCount)

	delayed := f.dispatchProducer.Delayed()
	require.Len(t, delayed, 1)
	assert.Equal(t, fastSettings().RedeliveryDelay, delayed[0].Delay)
	assert.Equal(t, int32(1), delayed[0].Message.Redelivery)

	// 没有发出终态事件
	assert.Empty(t, f.outcomeProducer.Items())
}

func TestDeliverThrottleExhaustsRedeliveries(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{429}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	msg := f.message()
	msg.Redelivery = fastSettings().MaxRedeliveries

	result, err := f.sender.Deliver(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusThrottled, result.Status)
	assert.Empty(t, f.dispatchProducer.Delayed())

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusThrottled, rec.Status)

	events := f.outcomeProducer.Items()
	require.Len(t, events, 1)
	assert.Equal(t, domain.DeliveryStatusThrottled, events[0].Status)
}

func TestDeliverConversationNotFound(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{404}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	// 404不重试
	assert.Equal(t, domain.DeliveryStatusNotFound, result.Status)
	assert.Equal(t, 1, f.client.callCount())

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusNotFound, rec.Status)
}

func TestDeliverSkipsCanceledNotification(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{201}, fastSettings())
	f.seed(t, domain.SendStatusCanceled)

	result, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusCanceled, result.Status)
	// 取消的通知不触发任何外部调用
	assert.Zero(t, f.client.callCount())

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusCanceled, rec.Status)
}

func TestDeliverFailsWithoutConversation(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{201}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	msg := f.message()
	msg.ConversationID = ""

	result, err := f.sender.Deliver(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, domain.DeliveryStatusFailed, result.Status)
	assert.Zero(t, f.client.callCount())
}

func TestDeliverDuplicateMessageIsNoOp(t *testing.T) {
	t.Parallel()
	f := newSenderFixture(t, []int{201}, fastSettings())
	f.seed(t, domain.SendStatusSending)

	_, err := f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)
	require.Len(t, f.outcomeProducer.Items(), 1)

	// 队列重复投递同一条消息，行已是终态，不再发事件
	_, err = f.sender.Deliver(context.Background(), f.message())
	require.NoError(t, err)
	assert.Len(t, f.outcomeProducer.Items(), 1)

	rec, err := f.recipientRepo.GetByKey(context.Background(), testNotificationID, testRecipientID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryStatusSucceeded, rec.Status)
}
