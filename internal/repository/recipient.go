package repository

import (
	"context"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// RecipientRepository 接收者投递记录仓储接口
type RecipientRepository interface {
	// BatchCreate 批量落库一个批次的接收者记录，重复写入静默跳过
	BatchCreate(ctx context.Context, records []domain.RecipientRecord) error

	// GetByKey 根据复合键获取记录
	GetByKey(ctx context.Context, notificationID uint64, recipientID string) (domain.RecipientRecord, error)

	// CASDeliveryStatus 投递状态流转，返回本次调用是否真正完成了流转
	// 重复投递（at-least-once 队列的重复消息）不会命中任何行
	CASDeliveryStatus(ctx context.Context, record domain.RecipientRecord, from []domain.DeliveryStatus) (bool, error)

	// AppendError 追加错误日志与限流计数，不流转状态
	AppendError(ctx context.Context, notificationID uint64, recipientID, errMsg string, throttleDelta int32) error

	// FindByBatchKey 按批次分页扫描
	FindByBatchKey(ctx context.Context, batchKey string, offset, limit int) ([]domain.RecipientRecord, error)

	// CountByStatus 汇总一个通知下的投递计数器，对账扫描用
	CountByStatus(ctx context.Context, notificationID uint64) (domain.Counters, error)
}

type recipientRepository struct {
	dao dao.RecipientDAO
}

// NewRecipientRepository 创建接收者仓储实例
func NewRecipientRepository(d dao.RecipientDAO) RecipientRepository {
	return &recipientRepository{
		dao: d,
	}
}

func (r *recipientRepository) BatchCreate(ctx context.Context, records []domain.RecipientRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.dao.BatchCreate(ctx, slice.Map(records, func(_ int, src domain.RecipientRecord) dao.Recipient {
		return r.toEntity(src)
	}))
}

func (r *recipientRepository) GetByKey(ctx context.Context, notificationID uint64, recipientID string) (domain.RecipientRecord, error) {
	rec, err := r.dao.GetByKey(ctx, notificationID, recipientID)
	if err != nil {
		return domain.RecipientRecord{}, err
	}
	return r.toDomain(rec), nil
}

func (r *recipientRepository) CASDeliveryStatus(ctx context.Context, record domain.RecipientRecord, from []domain.DeliveryStatus) (bool, error) {
	affected, err := r.dao.CASDeliveryStatus(ctx, r.toEntity(record),
		slice.Map(from, func(_ int, src domain.DeliveryStatus) string {
			return src.String()
		}))
	return affected > 0, err
}

func (r *recipientRepository) AppendError(ctx context.Context, notificationID uint64, recipientID, errMsg string, throttleDelta int32) error {
	return r.dao.AppendError(ctx, notificationID, recipientID, errMsg, throttleDelta)
}

func (r *recipientRepository) FindByBatchKey(ctx context.Context, batchKey string, offset, limit int) ([]domain.RecipientRecord, error) {
	recs, err := r.dao.FindByBatchKey(ctx, batchKey, offset, limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(recs, func(_ int, src dao.Recipient) domain.RecipientRecord {
		return r.toDomain(src)
	}), nil
}

func (r *recipientRepository) CountByStatus(ctx context.Context, notificationID uint64) (domain.Counters, error) {
	counts, err := r.dao.CountByStatus(ctx, notificationID)
	if err != nil {
		return domain.Counters{}, err
	}
	var c domain.Counters
	for status, cnt := range counts {
		c.Total += cnt
		switch domain.DeliveryStatus(status) {
		case domain.DeliveryStatusSucceeded:
			c.Succeeded += cnt
		case domain.DeliveryStatusFailed, domain.DeliveryStatusNotFound:
			// 会话不存在在行上单独记录，通知级计数并入失败
			c.Failed += cnt
		case domain.DeliveryStatusThrottled:
			c.Throttled += cnt
		case domain.DeliveryStatusCanceled:
			c.Canceled += cnt
		case domain.DeliveryStatusPending:
			c.Pending += cnt
		}
	}
	return c, nil
}

// toEntity 将领域对象转换为DAO实体
func (r *recipientRepository) toEntity(record domain.RecipientRecord) dao.Recipient {
	return dao.Recipient{
		NotificationID: record.NotificationID,
		BatchKey:       record.BatchKey,
		RecipientID:    record.Recipient.ID,
		RecipientType:  string(record.Recipient.Type),
		ConversationID: record.Recipient.ConversationID,
		ServiceURL:     record.Recipient.ServiceURL,
		Status:         record.Status.String(),
		ThrottleCount:  record.ThrottleCount,
		ErrorMessage:   record.ErrorMessage,
	}
}

// toDomain 将DAO实体转换为领域对象
func (r *recipientRepository) toDomain(rec dao.Recipient) domain.RecipientRecord {
	return domain.RecipientRecord{
		NotificationID: rec.NotificationID,
		BatchKey:       rec.BatchKey,
		Recipient: domain.Recipient{
			Type:           domain.RecipientType(rec.RecipientType),
			ID:             rec.RecipientID,
			ConversationID: rec.ConversationID,
			ServiceURL:     rec.ServiceURL,
		},
		Status:        domain.DeliveryStatus(rec.Status),
		ThrottleCount: rec.ThrottleCount,
		ErrorMessage:  rec.ErrorMessage,
	}
}
