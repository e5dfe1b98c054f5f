package idempotent

import "context"

//go:generate mockgen -source=./type.go -package=idempotentmocks -destination=./mocks/idempotent.mock.go -typed IdempotencyService

// IdempotencyService 幂等性服务
// Exists 在返回 false 的同时登记 key，同一个 key 第二次调用返回 true
type IdempotencyService interface {
	Exists(ctx context.Context, key string) (bool, error)
	MExists(ctx context.Context, keys ...string) ([]bool, error)
}
