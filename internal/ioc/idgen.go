package ioc

import (
	"time"

	"github.com/sony/sonyflake"
)

// InitIDGenerator 通知ID生成器，跨实例不重复
func InitIDGenerator() func() (uint64, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return sf.NextID
}
