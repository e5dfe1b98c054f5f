package ioc

import (
	"time"

	"gitee.com/flycash/broadcast-platform/internal/pkg/ratelimit"
	"gitee.com/flycash/broadcast-platform/internal/service/audience"
	"gitee.com/flycash/broadcast-platform/internal/service/delivery"
	"github.com/gotomicro/ego/core/econf"
	"github.com/redis/go-redis/v9"
)

const (
	// 目录服务的限流窗口，和上游配额对齐
	directoryLimitInterval = time.Second
	directoryLimitRate     = 30
)

func InitDeliveryClient() delivery.Client {
	type Config struct {
		TimeoutMs int64 `yaml:"timeoutMs"`
	}
	var cfg Config
	if err := econf.UnmarshalKey("delivery", &cfg); err != nil {
		panic(err)
	}
	return delivery.NewHTTPClient(time.Duration(cfg.TimeoutMs) * time.Millisecond)
}

func InitDirectoryService() audience.DirectoryService {
	type Config struct {
		BaseURL   string `yaml:"baseURL"`
		TimeoutMs int64  `yaml:"timeoutMs"`
	}
	var cfg Config
	if err := econf.UnmarshalKey("directory", &cfg); err != nil {
		panic(err)
	}
	return audience.NewHTTPDirectoryService(cfg.BaseURL, time.Duration(cfg.TimeoutMs)*time.Millisecond)
}

func InitDirectoryLimiter(rdb redis.Cmdable) ratelimit.Limiter {
	return ratelimit.NewRedisSlidingWindowLimiter(rdb, directoryLimitInterval, directoryLimitRate)
}
