package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"gitee.com/flycash/broadcast-platform/internal/errs"
	"gitee.com/flycash/broadcast-platform/internal/repository/dao"
	"github.com/gotomicro/ego/core/elog"
	"github.com/patrickmn/go-cache"
)

// DefaultKey 全局投递配置的配置键
const DefaultKey = "delivery"

// DeliverySettingsService 投递配置服务
// 配置对象由调用方显式持有并传递，不做进程级单例；
// 本地缓存未命中时回源数据库重读
type DeliverySettingsService interface {
	Get(ctx context.Context, key string) (domain.DeliverySettings, error)
	Save(ctx context.Context, key string, settings domain.DeliverySettings) error
}

// settingsConfig 配置体的存储格式，时间字段以毫秒为单位
type settingsConfig struct {
	MaxAttempts       int32 `json:"maxAttempts"`
	MaxRedeliveries   int32 `json:"maxRedeliveries"`
	RedeliveryDelayMs int64 `json:"redeliveryDelayMs"`
	InitialBackoffMs  int64 `json:"initialBackoffMs"`
	MaxBackoffMs      int64 `json:"maxBackoffMs"`
}

type deliverySettingsService struct {
	dao    dao.DeliverySettingsDAO
	cache  *cache.Cache
	logger *elog.Component
}

// NewDeliverySettingsService 创建投递配置服务
func NewDeliverySettingsService(d dao.DeliverySettingsDAO, c *cache.Cache) DeliverySettingsService {
	return &deliverySettingsService{
		dao:    d,
		cache:  c,
		logger: elog.DefaultLogger,
	}
}

func (s *deliverySettingsService) Get(ctx context.Context, key string) (domain.DeliverySettings, error) {
	if cached, ok := s.cache.Get(key); ok {
		if settings, ok1 := cached.(domain.DeliverySettings); ok1 {
			return settings, nil
		}
	}

	entity, err := s.dao.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, errs.ErrSettingsNotFound) {
			// 配置缺失时使用兜底值，不缓存，等配置写入后下次命中
			return domain.DefaultDeliverySettings(), nil
		}
		return domain.DeliverySettings{}, fmt.Errorf("获取投递配置失败: %w", err)
	}

	var cfg settingsConfig
	if err = json.Unmarshal([]byte(entity.Config), &cfg); err != nil {
		s.logger.Warn("解析投递配置失败，使用兜底值",
			elog.FieldErr(err),
			elog.String("key", key))
		return domain.DefaultDeliverySettings(), nil
	}

	settings := s.toDomain(cfg)
	s.cache.Set(key, settings, cache.DefaultExpiration)
	return settings, nil
}

func (s *deliverySettingsService) Save(ctx context.Context, key string, settings domain.DeliverySettings) error {
	data, err := json.Marshal(settingsConfig{
		MaxAttempts:       settings.MaxAttempts,
		MaxRedeliveries:   settings.MaxRedeliveries,
		RedeliveryDelayMs: settings.RedeliveryDelay.Milliseconds(),
		InitialBackoffMs:  settings.InitialBackoff.Milliseconds(),
		MaxBackoffMs:      settings.MaxBackoff.Milliseconds(),
	})
	if err != nil {
		return err
	}
	err = s.dao.Upsert(ctx, dao.DeliverySettings{
		BizKey: key,
		Config: string(data),
	})
	if err != nil {
		return fmt.Errorf("保存投递配置失败: %w", err)
	}
	s.cache.Delete(key)
	return nil
}

func (s *deliverySettingsService) toDomain(cfg settingsConfig) domain.DeliverySettings {
	settings := domain.DefaultDeliverySettings()
	if cfg.MaxAttempts > 0 {
		settings.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.MaxRedeliveries > 0 {
		settings.MaxRedeliveries = cfg.MaxRedeliveries
	}
	if cfg.RedeliveryDelayMs > 0 {
		settings.RedeliveryDelay = time.Duration(cfg.RedeliveryDelayMs) * time.Millisecond
	}
	if cfg.InitialBackoffMs > 0 {
		settings.InitialBackoff = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		settings.MaxBackoff = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	return settings
}
