package strategy

import (
	"sync/atomic"
	"time"
)

// FixedIntervalRetryStrategy 固定间隔重试
type FixedIntervalRetryStrategy struct {
	interval   time.Duration
	maxRetries int32
	retries    int32
}

func NewFixedIntervalRetryStrategy(interval time.Duration, maxRetries int32) *FixedIntervalRetryStrategy {
	return &FixedIntervalRetryStrategy{
		interval:   interval,
		maxRetries: maxRetries,
	}
}

func (s *FixedIntervalRetryStrategy) Next() (time.Duration, bool) {
	retries := atomic.AddInt32(&s.retries, 1)
	if s.maxRetries > 0 && retries > s.maxRetries {
		return 0, false
	}
	return s.interval, true
}
