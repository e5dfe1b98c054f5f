package orchestrator

import (
	"context"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	"gitee.com/flycash/broadcast-platform/internal/service/aggregator"
	"github.com/gotomicro/ego/core/elog"
	"github.com/hashicorp/go-multierror"
)

const (
	// defaultStuckAfter 投递中的通知多久没有更新才算滞留
	defaultStuckAfter = 5 * time.Minute
	// defaultSweepBatchSize 单轮扫描处理的通知数上限
	defaultSweepBatchSize = 20
)

// sweepStatuses 对账扫描覆盖的非终态：
// 投递中的通知重算计数器并补投，卡在投递开始之前的通知超时判失败
var sweepStatuses = []domain.SendStatus{
	domain.SendStatusQueued,
	domain.SendStatusPreparing,
	domain.SendStatusSending,
}

// SweepTask 对账扫描：找出滞留在非终态的通知，
// 以接收者记录为事实来源重算计数器，能收尾的收尾，
// 还有待投递记录的补投一遍，兜住入队中断和丢失的聚合事件
type SweepTask struct {
	notificationRepo repository.NotificationRepository
	recipientRepo    repository.RecipientRepository
	agg              aggregator.Aggregator
	dispatchProducer mqx.Producer[domain.DispatchMessage]
	stuckAfter       time.Duration
	batchSize        int
	logger           *elog.Component
}

// NewSweepTask 创建对账扫描任务
func NewSweepTask(
	notificationRepo repository.NotificationRepository,
	recipientRepo repository.RecipientRepository,
	agg aggregator.Aggregator,
	dispatchProducer mqx.Producer[domain.DispatchMessage],
) *SweepTask {
	return &SweepTask{
		notificationRepo: notificationRepo,
		recipientRepo:    recipientRepo,
		agg:              agg,
		dispatchProducer: dispatchProducer,
		stuckAfter:       defaultStuckAfter,
		batchSize:        defaultSweepBatchSize,
		logger:           elog.DefaultLogger,
	}
}

// Do 执行一轮对账，单个通知的失败不阻塞其余通知
func (t *SweepTask) Do(ctx context.Context) error {
	notifications, err := t.notificationRepo.FindStuckBefore(ctx,
		sweepStatuses, time.Now().Add(-t.stuckAfter), t.batchSize)
	if err != nil {
		return fmt.Errorf("查找滞留通知失败: %w", err)
	}

	var result *multierror.Error
	for i := range notifications {
		if err = t.sweepOne(ctx, notifications[i]); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("对账失败: id=%d, %w", notifications[i].ID, err))
		}
	}
	return result.ErrorOrNil()
}

func (t *SweepTask) sweepOne(ctx context.Context, notification domain.Notification) error {
	if notification.Status != domain.SendStatusSending {
		return t.failStalled(ctx, notification)
	}

	if err := t.agg.Reconcile(ctx, notification.ID); err != nil {
		return err
	}

	complete, err := t.agg.IsComplete(ctx, notification.ID)
	if err != nil {
		return err
	}
	if complete {
		return nil
	}

	// 对账后仍有待投递记录，说明入队被打断过或消息丢了，补投一遍
	// 投递侧的状态CAS保证重复消息不会二次生效
	requeued, err := t.requeuePending(ctx, notification)
	if err != nil {
		return err
	}
	if requeued > 0 {
		t.logger.Info("补投待投递接收者",
			elog.Any("notificationID", notification.ID),
			elog.Int("requeued", requeued))
	}
	return nil
}

// failStalled 处理崩溃后卡在投递开始之前的通知：
// 编排流程不会再回来接手，拿着同一个ID重发也过不了 Draft->Queued 的CAS，
// 超时直接判失败，让调用方重建一条新通知
func (t *SweepTask) failStalled(ctx context.Context, notification domain.Notification) error {
	flipped, err := t.notificationRepo.MarkTerminal(ctx, notification.ID,
		[]domain.SendStatus{domain.SendStatusQueued, domain.SendStatusPreparing}, domain.SendStatusFailed)
	if err != nil {
		return err
	}
	if flipped {
		t.logger.Warn("通知滞留在投递开始之前，超时标记为失败",
			elog.Any("notificationID", notification.ID),
			elog.String("status", notification.Status.String()))
	}
	return nil
}

func (t *SweepTask) requeuePending(ctx context.Context, notification domain.Notification) (int, error) {
	requeued := 0
	for _, batchKey := range notification.BatchKeys {
		offset := 0
		for {
			records, err := t.recipientRepo.FindByBatchKey(ctx, batchKey, offset, enqueuePageSize)
			if err != nil {
				return requeued, err
			}
			if len(records) == 0 {
				break
			}

			msgs := make([]domain.DispatchMessage, 0, len(records))
			for i := range records {
				if records[i].Status != domain.DeliveryStatusPending {
					continue
				}
				msgs = append(msgs, buildDispatchMessage(notification, records[i]))
			}
			if len(msgs) > 0 {
				if err = t.dispatchProducer.ProduceBatch(ctx, msgs); err != nil {
					return requeued, err
				}
				requeued += len(msgs)
			}

			if len(records) < enqueuePageSize {
				break
			}
			offset += enqueuePageSize
		}
	}
	return requeued, nil
}
