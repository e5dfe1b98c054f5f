package repository

import (
	"context"
	"encoding/json"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
)

// NotificationRepository 通知仓储接口
type NotificationRepository interface {
	// Create 创建一条通知
	Create(ctx context.Context, notification domain.Notification) (domain.Notification, error)

	// GetByID 根据ID获取通知
	GetByID(ctx context.Context, id uint64) (domain.Notification, error)

	// CASStatus 状态流转，from 不匹配时返回 errs.ErrInvalidStatusTransition
	CASStatus(ctx context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) error

	// CASCounters 按版本号回写计数器与状态，冲突时返回 errs.ErrNotificationVersionMismatch
	CASCounters(ctx context.Context, notification domain.Notification) error

	// MarkTerminal 幂等地把通知置为终态，返回本次调用是否真正完成了流转
	MarkTerminal(ctx context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) (bool, error)

	// RecordBatches 分批完成后记录接收者总数与批次键
	RecordBatches(ctx context.Context, id uint64, total int64, batchKeys []string) error

	// FindStuckBefore 找出滞留在给定状态的通知，供对账扫描使用
	FindStuckBefore(ctx context.Context, statuses []domain.SendStatus, before time.Time, limit int) ([]domain.Notification, error)
}

// notificationRepository 通知仓储实现
type notificationRepository struct {
	dao dao.NotificationDAO
}

// NewNotificationRepository 创建通知仓储实例
func NewNotificationRepository(d dao.NotificationDAO) NotificationRepository {
	return &notificationRepository{
		dao: d,
	}
}

func (r *notificationRepository) Create(ctx context.Context, notification domain.Notification) (domain.Notification, error) {
	created, err := r.dao.Create(ctx, r.toEntity(notification))
	if err != nil {
		return domain.Notification{}, err
	}
	return r.toDomain(created), nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint64) (domain.Notification, error) {
	n, err := r.dao.GetByID(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}
	return r.toDomain(n), nil
}

func (r *notificationRepository) CASStatus(ctx context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) error {
	return r.dao.CASStatus(ctx, id, statusStrings(from), to.String())
}

func (r *notificationRepository) CASCounters(ctx context.Context, notification domain.Notification) error {
	return r.dao.CASCounters(ctx, r.toEntity(notification))
}

func (r *notificationRepository) MarkTerminal(ctx context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) (bool, error) {
	affected, err := r.dao.MarkTerminal(ctx, id, statusStrings(from), to.String())
	return affected > 0, err
}

func (r *notificationRepository) RecordBatches(ctx context.Context, id uint64, total int64, batchKeys []string) error {
	keys, err := json.Marshal(batchKeys)
	if err != nil {
		return err
	}
	return r.dao.RecordBatches(ctx, id, total, string(keys))
}

func (r *notificationRepository) FindStuckBefore(ctx context.Context, statuses []domain.SendStatus, before time.Time, limit int) ([]domain.Notification, error) {
	ns, err := r.dao.FindStuckBefore(ctx, statusStrings(statuses), before.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	return slice.Map(ns, func(_ int, src dao.Notification) domain.Notification {
		return r.toDomain(src)
	}), nil
}

func statusStrings(statuses []domain.SendStatus) []string {
	return slice.Map(statuses, func(_ int, src domain.SendStatus) string {
		return src.String()
	})
}

// toEntity 将领域对象转换为DAO实体
func (r *notificationRepository) toEntity(n domain.Notification) dao.Notification {
	batchKeys, _ := json.Marshal(n.BatchKeys)
	audience, _ := json.Marshal(n.Audience)
	var sentAt int64
	if !n.SentAt.IsZero() {
		sentAt = n.SentAt.UnixMilli()
	}
	return dao.Notification{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Author:    n.Author,
		Audience:  string(audience),
		Status:    n.Status.String(),
		Total:     n.Counters.Total,
		Succeeded: n.Counters.Succeeded,
		Failed:    n.Counters.Failed,
		Throttled: n.Counters.Throttled,
		Canceled:  n.Counters.Canceled,
		Pending:   n.Counters.Pending,
		BatchKeys: string(batchKeys),
		Version:   n.Version,
		SentAt:    sentAt,
	}
}

// toDomain 将DAO实体转换为领域对象
func (r *notificationRepository) toDomain(n dao.Notification) domain.Notification {
	var batchKeys []string
	_ = json.Unmarshal([]byte(n.BatchKeys), &batchKeys)

	var audience domain.Audience
	_ = json.Unmarshal([]byte(n.Audience), &audience)

	var sentAt time.Time
	if n.SentAt > 0 {
		sentAt = time.UnixMilli(n.SentAt)
	}
	return domain.Notification{
		ID:       n.ID,
		Title:    n.Title,
		Content:  n.Content,
		Author:   n.Author,
		Audience: audience,
		Status:   domain.SendStatus(n.Status),
		Counters: domain.Counters{
			Total:     n.Total,
			Succeeded: n.Succeeded,
			Failed:    n.Failed,
			Throttled: n.Throttled,
			Canceled:  n.Canceled,
			Pending:   n.Pending,
		},
		BatchKeys: batchKeys,
		Version:   n.Version,
		CreatedAt: time.UnixMilli(n.Ctime),
		SentAt:    sentAt,
	}
}
