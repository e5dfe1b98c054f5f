package aggregator

import (
	"context"
	"errors"
	"fmt"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/pkg/idempotent"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	"github.com/gotomicro/ego/core/elog"
)

// maxCASRetries 计数器CAS更新的最大重试次数
// 并发工作者抢同一行时靠重读版本号解决，而不是最后写入者覆盖
const maxCASRetries = 5

// Aggregator 聚合器：消费每个接收者的投递终态，
// 滚动更新通知上的计数器，并在全部批次报完后把通知推进到终态
type Aggregator interface {
	// RecordOutcome 记录一个接收者的终态，重复记录是无操作
	RecordOutcome(ctx context.Context, evt domain.OutcomeEvent) error
	// IsComplete 通知是否已经没有待投递的接收者
	IsComplete(ctx context.Context, notificationID uint64) (bool, error)
	// Reconcile 从接收者记录整体重算计数器，对账扫描的安全网
	Reconcile(ctx context.Context, notificationID uint64) error
}

type aggregator struct {
	notificationRepo repository.NotificationRepository
	recipientRepo    repository.RecipientRepository
	idempotency      idempotent.IdempotencyService
	logger           *elog.Component
}

// NewAggregator 创建聚合器
func NewAggregator(
	notificationRepo repository.NotificationRepository,
	recipientRepo repository.RecipientRepository,
	idempotency idempotent.IdempotencyService,
) Aggregator {
	return &aggregator{
		notificationRepo: notificationRepo,
		recipientRepo:    recipientRepo,
		idempotency:      idempotency,
		logger:           elog.DefaultLogger,
	}
}

func (a *aggregator) RecordOutcome(ctx context.Context, evt domain.OutcomeEvent) error {
	// 队列是 at-least-once，同一个终态事件可能到达多次
	seen, err := a.idempotency.Exists(ctx, outcomeKey(evt))
	if err != nil {
		return fmt.Errorf("幂等性检测失败: %w", err)
	}
	if seen {
		return nil
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		notification, err1 := a.notificationRepo.GetByID(ctx, evt.NotificationID)
		if err1 != nil {
			return fmt.Errorf("获取通知失败: %w", err1)
		}
		// 终态之后不再处理任何接收者结果
		if notification.Status.IsTerminal() {
			return nil
		}
		if notification.Counters.Pending <= 0 {
			// 计数器已经走完，剩下的交给收尾
			return a.finalize(ctx, notification)
		}

		applyOutcome(&notification.Counters, evt.Status)
		if notification.Counters.Pending == 0 {
			notification.Status = domain.SendStatusCompleting
		}

		err1 = a.notificationRepo.CASCounters(ctx, notification)
		if err1 == nil {
			if notification.Counters.Pending == 0 {
				return a.finalize(ctx, notification)
			}
			return nil
		}
		if !errors.Is(err1, errs.ErrNotificationVersionMismatch) {
			return fmt.Errorf("更新计数器失败: %w", err1)
		}
		// 版本冲突，重读后重试
	}

	// 重试耗尽会丢计数，记下来等对账扫描兜底
	a.logger.Error("计数器CAS重试耗尽",
		elog.Any("notificationID", evt.NotificationID),
		elog.String("recipientID", evt.RecipientID))
	return fmt.Errorf("%w: id=%d", errs.ErrNotificationVersionMismatch, evt.NotificationID)
}

func (a *aggregator) IsComplete(ctx context.Context, notificationID uint64) (bool, error) {
	notification, err := a.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return false, err
	}
	return notification.Status.IsTerminal() || notification.Counters.Pending == 0, nil
}

func (a *aggregator) Reconcile(ctx context.Context, notificationID uint64) error {
	counters, err := a.recipientRepo.CountByStatus(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("重算计数器失败: %w", err)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		notification, err1 := a.notificationRepo.GetByID(ctx, notificationID)
		if err1 != nil {
			return err1
		}
		if notification.Status.IsTerminal() {
			return nil
		}

		// 接收者记录是事实来源，总数以通知上记录的为准
		notification.Counters.Succeeded = counters.Succeeded
		notification.Counters.Failed = counters.Failed
		notification.Counters.Throttled = counters.Throttled
		notification.Counters.Canceled = counters.Canceled
		notification.Counters.Pending = notification.Counters.Total -
			counters.Succeeded - counters.Failed - counters.Throttled - counters.Canceled
		if notification.Counters.Pending == 0 {
			notification.Status = domain.SendStatusCompleting
		}

		err1 = a.notificationRepo.CASCounters(ctx, notification)
		if err1 == nil {
			if notification.Counters.Pending == 0 {
				return a.finalize(ctx, notification)
			}
			return nil
		}
		if !errors.Is(err1, errs.ErrNotificationVersionMismatch) {
			return err1
		}
	}
	return fmt.Errorf("%w: id=%d", errs.ErrNotificationVersionMismatch, notificationID)
}

// finalize 把通知推进到终态，幂等：重复调用不会二次流转
func (a *aggregator) finalize(ctx context.Context, notification domain.Notification) error {
	final := notification.FinalStatus()
	if final == domain.SendStatusUnknown {
		return nil
	}
	transitioned, err := a.notificationRepo.MarkTerminal(ctx, notification.ID,
		[]domain.SendStatus{domain.SendStatusSending, domain.SendStatusCompleting}, final)
	if err != nil {
		return fmt.Errorf("通知收尾失败: %w", err)
	}
	if transitioned {
		a.logger.Info("通知到达终态",
			elog.Any("notificationID", notification.ID),
			elog.String("status", final.String()),
			elog.Int64("succeeded", notification.Counters.Succeeded),
			elog.Int64("failed", notification.Counters.Failed),
			elog.Int64("throttled", notification.Counters.Throttled))
	}
	return nil
}

// applyOutcome 把一个接收者终态套用到计数器上
// 增量是可交换的，接收者以任意顺序完成都不影响结果
func applyOutcome(c *domain.Counters, status domain.DeliveryStatus) {
	switch status {
	case domain.DeliveryStatusSucceeded:
		c.Succeeded++
	case domain.DeliveryStatusFailed, domain.DeliveryStatusNotFound:
		c.Failed++
	case domain.DeliveryStatusThrottled:
		c.Throttled++
	case domain.DeliveryStatusCanceled:
		c.Canceled++
	default:
		return
	}
	c.Pending--
}

func outcomeKey(evt domain.OutcomeEvent) string {
	return fmt.Sprintf("outcome:%d:%s", evt.NotificationID, evt.RecipientID)
}
