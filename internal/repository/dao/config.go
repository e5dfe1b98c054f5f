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

type DeliverySettingsDAO interface {
	// GetByKey 根据配置键获取投递配置
	GetByKey(ctx context.Context, key string) (DeliverySettings, error)
	// Upsert 写入或覆盖投递配置
	Upsert(ctx context.Context, data DeliverySettings) error
}

// DeliverySettings 投递配置表，配置体为JSON
type DeliverySettings struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	BizKey string `gorm:"type:VARCHAR(128);NOT NULL;uniqueIndex:uidx_biz_key;comment:'配置键'"`
	Config string `gorm:"type:TEXT;NOT NULL;comment:'配置体，JSON'"`
	Ctime  int64
	Utime  int64
}

type deliverySettingsDAO struct {
	db *egorm.Component
}

func NewDeliverySettingsDAO(db *egorm.Component) DeliverySettingsDAO {
	return &deliverySettingsDAO{
		db: db,
	}
}

func (d *deliverySettingsDAO) GetByKey(ctx context.Context, key string) (DeliverySettings, error) {
	var cfg DeliverySettings
	err := d.db.WithContext(ctx).Where("biz_key = ?", key).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DeliverySettings{}, fmt.Errorf("%w: key=%s", errs.ErrSettingsNotFound, key)
		}
		return DeliverySettings{}, err
	}
	return cfg, nil
}

func (d *deliverySettingsDAO) Upsert(ctx context.Context, data DeliverySettings) error {
	now := time.Now().UnixMilli()
	data.Ctime, data.Utime = now, now
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "biz_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "utime"}),
	}).Create(&data).Error
}
