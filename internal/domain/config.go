package domain

import "time"

// DeliverySettings 投递相关的运行时配置
// 不使用进程级单例缓存，调用方显式持有，缓存未命中时回源重读
type DeliverySettings struct {
	// MaxAttempts 单次投递序列内（含首次）的最大尝试次数，只覆盖5xx类瞬时错误
	MaxAttempts int32
	// MaxRedeliveries 因限流(429)触发的延迟重投上限，超过后按限流终态记录
	MaxRedeliveries int32
	// RedeliveryDelay 限流后延迟重投的等待时间
	RedeliveryDelay time.Duration
	// InitialBackoff 瞬时错误重试的首个退避间隔
	InitialBackoff time.Duration
	// MaxBackoff 退避间隔上限
	MaxBackoff time.Duration
}

// DefaultDeliverySettings 配置缺失时的兜底值
func DefaultDeliverySettings() DeliverySettings {
	return DeliverySettings{
		MaxAttempts:     5,
		MaxRedeliveries: 3,
		RedeliveryDelay: 5 * time.Minute,
		InitialBackoff:  time.Second,
		MaxBackoff:      30 * time.Second,
	}
}
