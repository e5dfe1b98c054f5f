package orchestrator

import (
	"context"
	"fmt"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/pkg/mqx"
	"gitee.com/flycash/broadcast-platform/internal/repository"
	"gitee.com/flycash/broadcast-platform/internal/service/audience"
	"gitee.com/flycash/broadcast-platform/internal/service/batcher"
	"github.com/gotomicro/ego/core/elog"
)

// enqueuePageSize 入队时的分页大小，和队列的单次批量上限保持一致
const enqueuePageSize = mqx.DefaultMaxBatchSize

// Orchestrator 编排器：驱动一次广播从草稿到终态的状态机
// 每一步都通过状态CAS落盘，崩溃后从上一个完成的步骤继续，而不是整体重放
type Orchestrator interface {
	// CreateDraft 创建草稿
	CreateDraft(ctx context.Context, notification domain.Notification) (domain.Notification, error)
	// Send 触发发送，受众解析与分批同步完成，投递本身异步进行
	// 进入投递阶段之前的任何失败都同步返回给调用方
	Send(ctx context.Context, notificationID uint64) error
	// Cancel 取消一次广播，已入队的消息由工作者消费时丢弃
	Cancel(ctx context.Context, notificationID uint64) error
	// GetStatus 查询通知当前状态与计数器
	GetStatus(ctx context.Context, notificationID uint64) (domain.Notification, error)
}

type orchestrator struct {
	notificationRepo repository.NotificationRepository
	recipientRepo    repository.RecipientRepository
	resolver         audience.Resolver
	batcher          batcher.Batcher
	dispatchProducer mqx.Producer[domain.DispatchMessage]
	idGen            func() (uint64, error)
	logger           *elog.Component
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	notificationRepo repository.NotificationRepository,
	recipientRepo repository.RecipientRepository,
	resolver audience.Resolver,
	b batcher.Batcher,
	dispatchProducer mqx.Producer[domain.DispatchMessage],
	idGen func() (uint64, error),
) Orchestrator {
	return &orchestrator{
		notificationRepo: notificationRepo,
		recipientRepo:    recipientRepo,
		resolver:         resolver,
		batcher:          b,
		dispatchProducer: dispatchProducer,
		idGen:            idGen,
		logger:           elog.DefaultLogger,
	}
}

func (o *orchestrator) CreateDraft(ctx context.Context, notification domain.Notification) (domain.Notification, error) {
	if err := notification.Validate(); err != nil {
		return domain.Notification{}, err
	}
	id, err := o.idGen()
	if err != nil {
		return domain.Notification{}, fmt.Errorf("生成通知ID失败: %w", err)
	}
	notification.ID = id
	notification.Status = domain.SendStatusDraft
	return o.notificationRepo.Create(ctx, notification)
}

func (o *orchestrator) Send(ctx context.Context, notificationID uint64) error {
	notification, err := o.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if err = notification.Validate(); err != nil {
		return err
	}

	// Draft -> Queued
	err = o.notificationRepo.CASStatus(ctx, notificationID,
		[]domain.SendStatus{domain.SendStatusDraft}, domain.SendStatusQueued)
	if err != nil {
		return err
	}
	return o.run(ctx, notification)
}

// run 依次执行 受众解析 -> 分批落库 -> 入队 三个步骤
// 步骤之间通过状态CAS做检查点
func (o *orchestrator) run(ctx context.Context, notification domain.Notification) error {
	id := notification.ID

	// Queued -> Preparing
	err := o.notificationRepo.CASStatus(ctx, id,
		[]domain.SendStatus{domain.SendStatusQueued}, domain.SendStatusPreparing)
	if err != nil {
		return err
	}

	recipients, err := o.resolver.Resolve(ctx, notification.Audience)
	if err != nil {
		return o.failPreparing(ctx, id, fmt.Errorf("受众解析失败: %w", err))
	}

	result, err := o.batcher.Batch(ctx, id, recipients)
	if err != nil {
		return o.failPreparing(ctx, id, fmt.Errorf("分批落库失败: %w", err))
	}
	if result.HasPendingInstallation {
		o.logger.Warn("存在尚未安装应用的接收者",
			elog.Any("notificationID", id))
	}

	if err = o.notificationRepo.RecordBatches(ctx, id, result.TotalCount, result.BatchKeys); err != nil {
		return o.failPreparing(ctx, id, fmt.Errorf("记录批次失败: %w", err))
	}

	// 受众为空：没有任何要投递的接收者，直接收尾
	if result.TotalCount == 0 {
		_, err = o.notificationRepo.MarkTerminal(ctx, id,
			[]domain.SendStatus{domain.SendStatusPreparing}, domain.SendStatusSent)
		return err
	}

	// Preparing -> Sending，之后的失败都是接收者级别的，不再让整个通知失败
	err = o.notificationRepo.CASStatus(ctx, id,
		[]domain.SendStatus{domain.SendStatusPreparing}, domain.SendStatusSending)
	if err != nil {
		return err
	}

	if err = o.enqueueBatches(ctx, notification, result.BatchKeys); err != nil {
		// 入队中断靠对账扫描补投，不回滚已入队的消息
		o.logger.Error("入队中断，等待对账扫描补投",
			elog.FieldErr(err),
			elog.Any("notificationID", id))
		return err
	}
	return nil
}

// enqueueBatches 把每个批次的待投递接收者分页读出并入队
func (o *orchestrator) enqueueBatches(ctx context.Context, notification domain.Notification, batchKeys []string) error {
	for _, batchKey := range batchKeys {
		offset := 0
		for {
			records, err := o.recipientRepo.FindByBatchKey(ctx, batchKey, offset, enqueuePageSize)
			if err != nil {
				return fmt.Errorf("扫描批次失败: batchKey=%s, %w", batchKey, err)
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
				if err = o.dispatchProducer.ProduceBatch(ctx, msgs); err != nil {
					return fmt.Errorf("批量入队失败: batchKey=%s, %w", batchKey, err)
				}
			}

			if len(records) < enqueuePageSize {
				break
			}
			offset += enqueuePageSize
		}
	}
	return nil
}

func (o *orchestrator) Cancel(ctx context.Context, notificationID uint64) error {
	return o.notificationRepo.CASStatus(ctx, notificationID,
		[]domain.SendStatus{
			domain.SendStatusQueued,
			domain.SendStatusPreparing,
			domain.SendStatusSending,
		}, domain.SendStatusCanceled)
}

func (o *orchestrator) GetStatus(ctx context.Context, notificationID uint64) (domain.Notification, error) {
	return o.notificationRepo.GetByID(ctx, notificationID)
}

// failPreparing 投递开始前的步骤失败让整个发送请求失败
func (o *orchestrator) failPreparing(ctx context.Context, notificationID uint64, cause error) error {
	_, err := o.notificationRepo.MarkTerminal(ctx, notificationID,
		[]domain.SendStatus{domain.SendStatusPreparing}, domain.SendStatusFailed)
	if err != nil {
		o.logger.Error("标记通知失败时出错",
			elog.FieldErr(err),
			elog.Any("notificationID", notificationID))
	}
	return cause
}

func buildDispatchMessage(notification domain.Notification, record domain.RecipientRecord) domain.DispatchMessage {
	return domain.DispatchMessage{
		NotificationID: notification.ID,
		BatchKey:       record.BatchKey,
		RecipientType:  record.Recipient.Type,
		RecipientID:    record.Recipient.ID,
		ConversationID: record.Recipient.ConversationID,
		ServiceURL:     record.Recipient.ServiceURL,
		Title:          notification.Title,
		Content:        notification.Content,
	}
}
