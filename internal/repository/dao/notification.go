package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
	"github.com/ego-component/egorm"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type NotificationDAO interface {
	// Create 创建单条通知记录
	Create(ctx context.Context, data Notification) (Notification, error)
	// GetByID 根据ID查询通知
	GetByID(ctx context.Context, id uint64) (Notification, error)

	// CASStatus 在当前状态匹配 from 之一时把状态流转到 to，使用乐观锁控制并发
	// 没有命中任何行时返回 errs.ErrInvalidStatusTransition
	CASStatus(ctx context.Context, id uint64, from []string, to string) error
	// CASCounters 按版本号整体回写计数器，必要时同时流转状态
	CASCounters(ctx context.Context, data Notification) error
	// MarkTerminal 把通知置为终态并记录完成时间，幂等：已是终态时不命中任何行
	MarkTerminal(ctx context.Context, id uint64, from []string, to string) (int64, error)

	// RecordBatches 分批完成后记录总数、批次键与初始pending值
	RecordBatches(ctx context.Context, id uint64, total int64, batchKeys string) error

	// FindStuckBefore 找出更新时间早于给定时刻、仍停在给定状态的通知，供对账扫描使用
	FindStuckBefore(ctx context.Context, statuses []string, utime int64, limit int) ([]Notification, error)
}

// Notification 广播通知表
type Notification struct {
	ID        uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	Title     string `gorm:"type:VARCHAR(256);NOT NULL;comment:'标题'"`
	Content   string `gorm:"type:TEXT;NOT NULL;comment:'消息内容'"`
	Author    string `gorm:"type:VARCHAR(256);NOT NULL;comment:'创建人'"`
	Status    string `gorm:"type:ENUM('DRAFT','QUEUED','PREPARING','SENDING','COMPLETING','SENT','FAILED','CANCELED');DEFAULT:'DRAFT';index:idx_status_utime,priority:1;comment:'发送状态'"`
	Total     int64  `gorm:"NOT NULL;DEFAULT:0;comment:'接收者总数'"`
	Succeeded int64  `gorm:"NOT NULL;DEFAULT:0"`
	Failed    int64  `gorm:"NOT NULL;DEFAULT:0"`
	Throttled int64  `gorm:"NOT NULL;DEFAULT:0"`
	Canceled  int64  `gorm:"NOT NULL;DEFAULT:0"`
	Pending   int64  `gorm:"NOT NULL;DEFAULT:0"`
	Audience  string `gorm:"type:TEXT;NOT NULL;comment:'目标受众，JSON'"`
	BatchKeys string `gorm:"type:TEXT;comment:'批次键，JSON数组'"`
	Version   int    `gorm:"type:INT;NOT NULL;DEFAULT:1;comment:'版本号，用于CAS操作'"`
	SentAt    int64  `gorm:"comment:'到达终态的时间'"`
	Ctime     int64
	Utime     int64 `gorm:"index:idx_status_utime,priority:2"`
}

type notificationDAO struct {
	db *egorm.Component
}

// NewNotificationDAO 创建通知DAO实例
func NewNotificationDAO(db *egorm.Component) NotificationDAO {
	return &notificationDAO{
		db: db,
	}
}

func (d *notificationDAO) Create(ctx context.Context, data Notification) (Notification, error) {
	now := time.Now().UnixMilli()
	data.Ctime, data.Utime = now, now
	data.Version = 1
	if err := d.db.WithContext(ctx).Create(&data).Error; err != nil {
		if isUniqueConstraintError(err) {
			return Notification{}, fmt.Errorf("%w", errs.ErrNotificationDuplicate)
		}
		return Notification{}, err
	}
	return data, nil
}

// isUniqueConstraintError 检查是否是唯一索引冲突错误
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	me := new(mysql.MySQLError)
	if ok := errors.As(err, &me); ok {
		const uniqueIndexErrNo uint16 = 1062
		return me.Number == uniqueIndexErrNo
	}
	return false
}

func (d *notificationDAO) GetByID(ctx context.Context, id uint64) (Notification, error) {
	var notification Notification
	err := d.db.WithContext(ctx).First(&notification, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Notification{}, fmt.Errorf("%w: id=%d", errs.ErrNotificationNotFound, id)
		}
		return Notification{}, err
	}
	return notification, nil
}

func (d *notificationDAO) CASStatus(ctx context.Context, id uint64, from []string, to string) error {
	result := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
			"utime":   time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("%w: id=%d, to=%s", errs.ErrInvalidStatusTransition, id, to)
	}
	return nil
}

func (d *notificationDAO) CASCounters(ctx context.Context, data Notification) error {
	updates := map[string]any{
		"succeeded": data.Succeeded,
		"failed":    data.Failed,
		"throttled": data.Throttled,
		"canceled":  data.Canceled,
		"pending":   data.Pending,
		"status":    data.Status,
		"sent_at":   data.SentAt,
		"version":   gorm.Expr("version + 1"),
		"utime":     time.Now().UnixMilli(),
	}

	result := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND version = ?", data.ID, data.Version).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("并发竞争失败 %w, id %d", errs.ErrNotificationVersionMismatch, data.ID)
	}
	return nil
}

func (d *notificationDAO) MarkTerminal(ctx context.Context, id uint64, from []string, to string) (int64, error) {
	now := time.Now().UnixMilli()
	result := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]any{
			"status":  to,
			"sent_at": now,
			"version": gorm.Expr("version + 1"),
			"utime":   now,
		})
	return result.RowsAffected, result.Error
}

func (d *notificationDAO) RecordBatches(ctx context.Context, id uint64, total int64, batchKeys string) error {
	result := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND status = ?", id, "PREPARING").
		Updates(map[string]any{
			"total":      total,
			"pending":    total,
			"batch_keys": batchKeys,
			"version":    gorm.Expr("version + 1"),
			"utime":      time.Now().UnixMilli(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("%w: id=%d", errs.ErrInvalidStatusTransition, id)
	}
	return nil
}

func (d *notificationDAO) FindStuckBefore(ctx context.Context, statuses []string, utime int64, limit int) ([]Notification, error) {
	var res []Notification
	err := d.db.WithContext(ctx).
		Where("status IN ? AND utime <= ?", statuses, utime).
		Limit(limit).
		Find(&res).Error
	return res, err
}
