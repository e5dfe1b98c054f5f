package idempotent

import (
	"context"
	"sync"
)

// LocalIdempotencyService 进程内幂等性服务，用于测试和单机部署
type LocalIdempotencyService struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewLocalService() *LocalIdempotencyService {
	return &LocalIdempotencyService{
		seen: make(map[string]struct{}),
	}
}

func (s *LocalIdempotencyService) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true, nil
	}
	s.seen[key] = struct{}{}
	return false, nil
}

func (s *LocalIdempotencyService) MExists(ctx context.Context, keys ...string) ([]bool, error) {
	res := make([]bool, len(keys))
	for i := range keys {
		seen, err := s.Exists(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		res[i] = seen
	}
	return res, nil
}
