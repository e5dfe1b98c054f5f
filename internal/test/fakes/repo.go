package fakes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/repository"
)

// 内存版仓储，单测里替代MySQL，语义和DAO保持一致：
// 状态CAS、版本号CAS、重复写入静默跳过

type NotificationRepo struct {
	mu    sync.Mutex
	items map[uint64]domain.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{items: make(map[uint64]domain.Notification)}
}

var _ repository.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Create(_ context.Context, notification domain.Notification) (domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[notification.ID]; ok {
		return domain.Notification{}, fmt.Errorf("%w: id=%d", errs.ErrNotificationDuplicate, notification.ID)
	}
	notification.Version = 1
	notification.CreatedAt = time.Now()
	r.items[notification.ID] = notification
	return notification, nil
}

func (r *NotificationRepo) GetByID(_ context.Context, id uint64) (domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return domain.Notification{}, fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, id)
	}
	return n, nil
}

func (r *NotificationRepo) CASStatus(_ context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, id)
	}
	if !statusIn(n.Status, from) {
		return fmt.Errorf("%w: id=%d, 当前状态 %s", errs.ErrInvalidStatusTransition, id, n.Status)
	}
	n.Status = to
	n.Version++
	r.items[id] = n
	return nil
}

func (r *NotificationRepo) CASCounters(_ context.Context, notification domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[notification.ID]
	if !ok {
		return fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, notification.ID)
	}
	if cur.Version != notification.Version {
		return fmt.Errorf("%w: id=%d", errs.ErrNotificationVersionMismatch, notification.ID)
	}
	cur.Counters = notification.Counters
	cur.Status = notification.Status
	cur.Version++
	r.items[notification.ID] = cur
	return nil
}

func (r *NotificationRepo) MarkTerminal(_ context.Context, id uint64, from []domain.SendStatus, to domain.SendStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return false, fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, id)
	}
	if !statusIn(n.Status, from) {
		return false, nil
	}
	n.Status = to
	n.SentAt = time.Now()
	n.Version++
	r.items[id] = n
	return true, nil
}

func (r *NotificationRepo) RecordBatches(_ context.Context, id uint64, total int64, batchKeys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, id)
	}
	if n.Status != domain.SendStatusPreparing {
		return nil
	}
	n.Counters.Total = total
	n.Counters.Pending = total
	n.BatchKeys = batchKeys
	n.Version++
	r.items[id] = n
	return nil
}

func (r *NotificationRepo) FindStuckBefore(_ context.Context, statuses []domain.SendStatus, _ time.Time, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.Notification
	for _, n := range r.items {
		if statusIn(n.Status, statuses) {
			res = append(res, n)
			if len(res) >= limit {
				break
			}
		}
	}
	return res, nil
}

func statusIn(status domain.SendStatus, set []domain.SendStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

type RecipientRepo struct {
	mu    sync.Mutex
	keys  []string
	items map[string]domain.RecipientRecord
}

func NewRecipientRepo() *RecipientRepo {
	return &RecipientRepo{items: make(map[string]domain.RecipientRecord)}
}

var _ repository.RecipientRepository = (*RecipientRepo)(nil)

func recipientKey(notificationID uint64, recipientID string) string {
	return fmt.Sprintf("%d:%s", notificationID, recipientID)
}

func (r *RecipientRepo) BatchCreate(_ context.Context, records []domain.RecipientRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range records {
		key := recipientKey(records[i].NotificationID, records[i].Recipient.ID)
		if _, ok := r.items[key]; ok {
			continue
		}
		r.keys = append(r.keys, key)
		r.items[key] = records[i]
	}
	return nil
}

func (r *RecipientRepo) GetByKey(_ context.Context, notificationID uint64, recipientID string) (domain.RecipientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[recipientKey(notificationID, recipientID)]
	if !ok {
		return domain.RecipientRecord{}, fmt.Errorf("%w: id=%s", errs.ErrRecipientNotFound, recipientID)
	}
	return rec, nil
}

func (r *RecipientRepo) CASDeliveryStatus(_ context.Context, record domain.RecipientRecord, from []domain.DeliveryStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recipientKey(record.NotificationID, record.Recipient.ID)
	cur, ok := r.items[key]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if cur.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	cur.Status = record.Status
	cur.ThrottleCount += record.ThrottleCount
	cur.ErrorMessage += record.ErrorMessage
	r.items[key] = cur
	return true, nil
}

func (r *RecipientRepo) AppendError(_ context.Context, notificationID uint64, recipientID, errMsg string, throttleDelta int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recipientKey(notificationID, recipientID)
	cur, ok := r.items[key]
	if !ok {
		return fmt.Errorf("%w: id=%s", errs.ErrRecipientNotFound, recipientID)
	}
	cur.ErrorMessage += errMsg
	cur.ThrottleCount += throttleDelta
	r.items[key] = cur
	return nil
}

func (r *RecipientRepo) FindByBatchKey(_ context.Context, batchKey string, offset, limit int) ([]domain.RecipientRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.RecipientRecord
	for _, key := range r.keys {
		if r.items[key].BatchKey == batchKey {
			matched = append(matched, r.items[key])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *RecipientRepo) CountByStatus(_ context.Context, notificationID uint64) (domain.Counters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c domain.Counters
	for _, rec := range r.items {
		if rec.NotificationID != notificationID {
			continue
		}
		c.Total++
		switch rec.Status {
		case domain.DeliveryStatusSucceeded:
			c.Succeeded++
		case domain.DeliveryStatusFailed, domain.DeliveryStatusNotFound:
			c.Failed++
		case domain.DeliveryStatusThrottled:
			c.Throttled++
		case domain.DeliveryStatusCanceled:
			c.Canceled++
		case domain.DeliveryStatusPending:
			c.Pending++
		}
	}
	return c, nil
}
