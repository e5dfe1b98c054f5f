package sender

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/pkg/retry"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	configsvc "gitee.com/flycash/broadcast-platform/internal/service/config"
	"gitee.com/flycash/broadcast-platform/internal/service/delivery"
	"github.com/gotomicro/ego/core/elog"
)

// Sender 投递工作者：消费一条投递消息，完成一次带重试的投递，
// 把终态写进接收者记录并向聚合器发出完成通知
type Sender interface {
	Deliver(ctx context.Context, msg domain.DispatchMessage) (domain.DeliveryResult, error)
}

type sender struct {
	notificationRepo repository.NotificationRepository
	recipientRepo    repository.RecipientRepository
	client           delivery.Client
	dispatchProducer mqx.Producer[domain.DispatchMessage]
	outcomeProducer  mqx.Producer[domain.OutcomeEvent]
	settingsSvc      configsvc.DeliverySettingsService
	logger           *elog.Component
}

// NewSender 创建投递工作者
func NewSender(
	notificationRepo repository.NotificationRepository,
	recipientRepo repository.RecipientRepository,
	client delivery.Client,
	dispatchProducer mqx.Producer[domain.DispatchMessage],
	outcomeProducer mqx.Producer[domain.OutcomeEvent],
	settingsSvc configsvc.DeliverySettingsService,
) Sender {
	return &sender{
		notificationRepo: notificationRepo,
		recipientRepo:    recipientRepo,
		client:           client,
		dispatchProducer: dispatchProducer,
		outcomeProducer:  outcomeProducer,
		settingsSvc:      settingsSvc,
		logger:           elog.DefaultLogger,
	}
}

func (s *sender) Deliver(ctx context.Context, msg domain.DispatchMessage) (domain.DeliveryResult, error) {
	settings, err := s.settingsSvc.Get(ctx, configsvc.DefaultKey)
	if err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("获取投递配置失败: %w", err)
	}

	// 投递前检查取消标记：已取消的通知直接跳过，记录为取消而不是失败
	notification, err := s.notificationRepo.GetByID(ctx, msg.NotificationID)
	if err != nil {
		return domain.DeliveryResult{}, fmt.Errorf("获取通知失败: %w", err)
	}
	if notification.Status == domain.SendStatusCanceled {
		result := domain.DeliveryResult{Status: domain.DeliveryStatusCanceled}
		return result, s.recordOutcome(ctx, msg, result)
	}

	// 没有可投递的会话，终态失败
	if msg.ConversationID == "" {
		result := domain.DeliveryResult{
			Status:    domain.DeliveryStatusFailed,
			LastError: "接收者尚未安装应用，没有可投递的会话",
		}
		return result, s.recordOutcome(ctx, msg, result)
	}

	result := s.attempt(ctx, msg, settings)

	// 被限流且还有重投额度：不在工作者里原地等待限流窗口结束，
	// 而是把限流次数记到行上，延迟重投，让出工作者槽位
	if result.Status == domain.DeliveryStatusThrottled && msg.Redelivery < settings.MaxRedeliveries {
		if err = s.redeliver(ctx, msg, settings, result); err != nil {
			return result, err
		}
		return result, nil
	}

	return result, s.recordOutcome(ctx, msg, result)
}

// attempt 执行一次投递尝试序列：
// 5xx走去相关抖动退避，429立即返回限流结果，404终态不重试
func (s *sender) attempt(ctx context.Context, msg domain.DispatchMessage, settings domain.DeliverySettings) domain.DeliveryResult {
	payload := delivery.Payload{
		Title:     msg.Title,
		Content:   msg.Content,
		Important: msg.Important,
	}

	var result domain.DeliveryResult

	// 首次尝试之外最多再重试 MaxAttempts-1 次
	backoff, err := retry.NewRetry(retry.Config{
		Type: "exponential",
		ExponentialBackoff: &retry.ExponentialBackoffConfig{
			InitialInterval: settings.InitialBackoff,
			MaxInterval:     settings.MaxBackoff,
			MaxRetries:      settings.MaxAttempts - 1,
		},
	})
	if err != nil {
		result.Status = domain.DeliveryStatusFailed
		result.LastError = err.Error()
		return result
	}
	for {
		code, err := s.client.Deliver(ctx, msg.ServiceURL, msg.ConversationID, payload)
		result.StatusHistory = append(result.StatusHistory, code)

		switch {
		case err == nil && code >= http.StatusOK && code < http.StatusMultipleChoices:
			result.Status = domain.DeliveryStatusSucceeded
			return result

		case code == http.StatusTooManyRequests:
			// 限流不做原地重试，交给外层的延迟重投
			result.Status = domain.DeliveryStatusThrottled
			result.NumberOfThrottles++
			return result

		case code == http.StatusNotFound:
			result.Status = domain.DeliveryStatusNotFound
			result.LastError = "目标会话不存在"
			return result

		case err != nil || code >= http.StatusInternalServerError:
			// 瞬时错误，退避后重试
			delay, ok := backoff.Next()
			if !ok {
				result.Status = domain.DeliveryStatusFailed
				if err != nil {
					result.LastError = fmt.Sprintf("重试次数耗尽: %s", err.Error())
				} else {
					result.LastError = fmt.Sprintf("重试次数耗尽: 最后状态码 %d", code)
				}
				return result
			}
			select {
			case <-ctx.Done():
				result.Status = domain.DeliveryStatusFailed
				result.LastError = ctx.Err().Error()
				return result
			case <-time.After(delay):
			}

		default:
			// 其余状态码视为不可恢复
			result.Status = domain.DeliveryStatusFailed
			result.LastError = fmt.Sprintf("不可恢复的状态码 %d", code)
			return result
		}
	}
}

// redeliver 把限流的消息延迟重投，并把本次观测到的限流次数记到行上
func (s *sender) redeliver(ctx context.Context, msg domain.DispatchMessage, settings domain.DeliverySettings, result domain.DeliveryResult) error {
	err := s.recipientRepo.AppendError(ctx, msg.NotificationID, msg.RecipientID, "", result.NumberOfThrottles)
	if err != nil {
		s.logger.Warn("记录限流次数失败",
			elog.FieldErr(err),
			elog.Any("notificationID", msg.NotificationID),
			elog.String("recipientID", msg.RecipientID))
	}

	next := msg
	next.Redelivery++
	if err = s.dispatchProducer.ProduceDelayed(ctx, next, settings.RedeliveryDelay); err != nil {
		// 重投失败要把错误抛给队列，靠消息重投保证不丢
		return fmt.Errorf("延迟重投失败: %w", err)
	}
	return nil
}

// recordOutcome 把终态CAS进接收者记录，只有真正完成流转的那次才发聚合事件，
// 队列重复投递同一条消息时这里天然幂等
func (s *sender) recordOutcome(ctx context.Context, msg domain.DispatchMessage, result domain.DeliveryResult) error {
	var errMsg string
	if result.LastError != "" {
		errMsg = fmt.Sprintf("[%s] %s; ", time.Now().Format(time.RFC3339), result.LastError)
	}

	won, err := s.recipientRepo.CASDeliveryStatus(ctx, domain.RecipientRecord{
		NotificationID: msg.NotificationID,
		BatchKey:       msg.BatchKey,
		Recipient:      msg.Recipient(),
		Status:         result.Status,
		ThrottleCount:  result.NumberOfThrottles,
		ErrorMessage:   errMsg,
	}, []domain.DeliveryStatus{domain.DeliveryStatusPending})
	if err != nil {
		// 存储层持续失败会威胁聚合不变式，记下来等人工对账
		s.logger.Error("写入投递终态失败",
			elog.FieldErr(err),
			elog.Any("notificationID", msg.NotificationID),
			elog.String("recipientID", msg.RecipientID))
		return fmt.Errorf("写入投递终态失败: %w", err)
	}
	if !won {
		// 重复投递，终态已经写过
		return nil
	}

	return s.outcomeProducer.Produce(ctx, domain.OutcomeEvent{
		NotificationID: msg.NotificationID,
		BatchKey:       msg.BatchKey,
		RecipientID:    msg.RecipientID,
		Status:         result.Status,
		OccurredAt:     time.Now(),
	})
}
