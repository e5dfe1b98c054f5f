package strategy

import (
	"math/rand"
	"sync"
	"time"
)

// ExponentialBackoffRetryStrategy 带去相关抖动的指数退避
// 下一次等待时间在 [initialInterval, 上一次等待*3] 之间随机取值，
// 并以 maxInterval 封顶，避免并发重试相互踩踏
type ExponentialBackoffRetryStrategy struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      int32

	mu      sync.Mutex
	retries int32
	last    time.Duration
	rand    *rand.Rand
}

func NewExponentialBackoffRetryStrategy(initialInterval, maxInterval time.Duration, maxRetries int32) *ExponentialBackoffRetryStrategy {
	return &ExponentialBackoffRetryStrategy{
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
		maxRetries:      maxRetries,
		rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *ExponentialBackoffRetryStrategy) Next() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retries++
	if s.maxRetries > 0 && s.retries > s.maxRetries {
		return 0, false
	}

	if s.last == 0 {
		s.last = s.initialInterval
		return s.last, true
	}

	const growthFactor = 3
	upper := s.last * growthFactor
	if upper > s.maxInterval {
		upper = s.maxInterval
	}
	next := s.initialInterval
	if upper > s.initialInterval {
		next += time.Duration(s.rand.Int63n(int64(upper - s.initialInterval)))
	}
	s.last = next
	return next, true
}
