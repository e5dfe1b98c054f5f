package ioc

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

func InitLocalCache() *cache.Cache {
	return cache.New(defaultExpiration, cleanupInterval)
}
