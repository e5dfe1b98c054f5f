package strategy

import "time"

// Strategy 重试策略
type Strategy interface {
	// Next 返回下一次重试的等待时间，第二个返回值为 false 时表示不应再重试
	Next() (time.Duration, bool)
}
