package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxErrorMessageLen 错误日志在存储层的截断长度
const maxErrorMessageLen = 1024

type RecipientDAO interface {
	// BatchCreate 以批次为单位批量落库，整个批次在一个事务内，
	// 重复写入（编排重入）通过唯一索引静默跳过
	BatchCreate(ctx context.Context, dataList []Recipient) error

	// GetByKey 根据复合键获取接收者记录
	GetByKey(ctx context.Context, notificationID uint64, recipientID string) (Recipient, error)

	// CASDeliveryStatus 在当前状态匹配 from 之一时流转到 to，
	// 返回命中的行数，0 表示重复投递或状态已终结
	CASDeliveryStatus(ctx context.Context, data Recipient, from []string) (int64, error)

	// AppendError 追加错误日志并累加限流计数，超长自动截断
	AppendError(ctx context.Context, notificationID uint64, recipientID, errMsg string, throttleDelta int32) error

	// FindByBatchKey 按批次分页扫描
	FindByBatchKey(ctx context.Context, batchKey string, offset, limit int) ([]Recipient, error)

	// CountByStatus 统计一个通知下各投递状态的数量
	CountByStatus(ctx context.Context, notificationID uint64) (map[string]int64, error)
}

// Recipient 接收者投递记录表
// batch_key 充当分区键，各批次的扫描互不干扰
type Recipient struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	NotificationID uint64 `gorm:"NOT NULL;uniqueIndex:uidx_notification_recipient,priority:1;comment:'通知ID'"`
	BatchKey       string `gorm:"type:VARCHAR(128);NOT NULL;index:idx_batch_key;comment:'批次键'"`
	RecipientID    string `gorm:"type:VARCHAR(256);NOT NULL;uniqueIndex:uidx_notification_recipient,priority:2;comment:'用户ID或团队ID'"`
	RecipientType  string `gorm:"type:ENUM('USER','TEAM');NOT NULL;comment:'接收者类型'"`
	ConversationID string `gorm:"type:VARCHAR(512);comment:'会话ID，为空表示待安装'"`
	ServiceURL     string `gorm:"type:VARCHAR(512);comment:'投递服务地址'"`
	Status         string `gorm:"type:ENUM('PENDING','SUCCEEDED','FAILED','THROTTLED','NOT_FOUND','CANCELED');DEFAULT:'PENDING';comment:'投递状态'"`
	ThrottleCount  int32  `gorm:"NOT NULL;DEFAULT:0;comment:'观测到的429次数'"`
	ErrorMessage   string `gorm:"type:VARCHAR(1024);comment:'追加式错误日志'"`
	Ctime          int64
	Utime          int64
}

type recipientDAO struct {
	db *egorm.Component
}

// NewRecipientDAO 创建接收者DAO实例
func NewRecipientDAO(db *egorm.Component) RecipientDAO {
	return &recipientDAO{
		db: db,
	}
}

func (d *recipientDAO) BatchCreate(ctx context.Context, dataList []Recipient) error {
	if len(dataList) == 0 {
		return nil
	}

	const batchSize = 100
	now := time.Now().UnixMilli()
	for i := range dataList {
		dataList[i].Ctime, dataList[i].Utime = now, now
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			CreateInBatches(dataList, batchSize).Error
	})
}

func (d *recipientDAO) GetByKey(ctx context.Context, notificationID uint64, recipientID string) (Recipient, error) {
	var r Recipient
	err := d.db.WithContext(ctx).
		Where("notification_id = ? AND recipient_id = ?", notificationID, recipientID).
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Recipient{}, fmt.Errorf("%w: notificationID=%d, recipientID=%s",
				errs.ErrRecipientNotFound, notificationID, recipientID)
		}
		return Recipient{}, err
	}
	return r, nil
}

func (d *recipientDAO) CASDeliveryStatus(ctx context.Context, data Recipient, from []string) (int64, error) {
	updates := map[string]any{
		"status": data.Status,
		"utime":  time.Now().UnixMilli(),
	}
	if data.ErrorMessage != "" {
		updates["error_message"] = gorm.Expr(
			"SUBSTRING(CONCAT(error_message, ?), 1, ?)", data.ErrorMessage, maxErrorMessageLen)
	}
	if data.ThrottleCount > 0 {
		updates["throttle_count"] = gorm.Expr("throttle_count + ?", data.ThrottleCount)
	}

	result := d.db.WithContext(ctx).Model(&Recipient{}).
		Where("notification_id = ? AND recipient_id = ? AND status IN ?",
			data.NotificationID, data.RecipientID, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (d *recipientDAO) AppendError(ctx context.Context, notificationID uint64, recipientID, errMsg string, throttleDelta int32) error {
	updates := map[string]any{
		"utime": time.Now().UnixMilli(),
	}
	if errMsg != "" {
		updates["error_message"] = gorm.Expr(
			"SUBSTRING(CONCAT(error_message, ?), 1, ?)", errMsg, maxErrorMessageLen)
	}
	if throttleDelta > 0 {
		updates["throttle_count"] = gorm.Expr("throttle_count + ?", throttleDelta)
	}
	return d.db.WithContext(ctx).Model(&Recipient{}).
		Where("notification_id = ? AND recipient_id = ?", notificationID, recipientID).
		Updates(updates).Error
}

func (d *recipientDAO) FindByBatchKey(ctx context.Context, batchKey string, offset, limit int) ([]Recipient, error) {
	var res []Recipient
	err := d.db.WithContext(ctx).
		Where("batch_key = ?", batchKey).
		Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&res).Error
	return res, err
}

func (d *recipientDAO) CountByStatus(ctx context.Context, notificationID uint64) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Cnt    int64
	}
	var rows []statusCount
	err := d.db.WithContext(ctx).Model(&Recipient{}).
		Select("status, COUNT(*) AS cnt").
		Where("notification_id = ?", notificationID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make(map[string]int64, len(rows))
	for i := range rows {
		res[rows[i].Status] = rows[i].Cnt
	}
	return res, nil
}
