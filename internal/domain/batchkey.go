package domain

import (
	"fmt"
	"strconv"
	"strings"

	"gitee.com/flycash/broadcast-platform/internal/errs"
)

// 批次键把 (通知ID, 批次序号) 编码成一个可逆的分区键，
// 让各批次的扫描和更新落在不同分区上，避免热点。
// 形如 "1234:7"，批次序号从1开始。

const batchKeySeparator = ":"

// MakeBatchKey 生成批次键，index 从1开始
func MakeBatchKey(notificationID uint64, index int) string {
	return fmt.Sprintf("%d%s%d", notificationID, batchKeySeparator, index)
}

// ParseBatchKey 从批次键中还原通知ID和批次序号
func ParseBatchKey(key string) (notificationID uint64, index int, err error) {
	parts := strings.Split(key, batchKeySeparator)
	const expectedParts = 2
	if len(parts) != expectedParts {
		return 0, 0, fmt.Errorf("%w: %q", errs.ErrInvalidBatchKey, key)
	}
	notificationID, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errs.ErrInvalidBatchKey, key)
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil || index <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", errs.ErrInvalidBatchKey, key)
	}
	return notificationID, index, nil
}
