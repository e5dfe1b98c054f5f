package errs

import (
	"errors"
)

// 定义统一的错误类型
var (
	ErrInvalidParameter            = errors.New("参数错误")
	ErrNotificationNotFound        = errors.New("通知记录不存在")
	ErrNotificationDuplicate       = errors.New("通知记录主键冲突")
	ErrNotificationVersionMismatch = errors.New("通知记录版本不匹配")
	ErrNotificationTerminal        = errors.New("通知已处于终态")
	ErrInvalidStatusTransition     = errors.New("非法的状态流转")

	ErrRecipientNotFound  = errors.New("接收者记录不存在")
	ErrOutcomeAlreadySeen = errors.New("接收者结果已经处理过")

	ErrBatchTooLarge    = errors.New("批量消息超过队列单次上限")
	ErrInvalidBatchKey  = errors.New("批次键格式非法")
	ErrDeliveryCanceled = errors.New("通知已取消，跳过投递")

	ErrSettingsNotFound = errors.New("投递配置不存在")
	ErrRateLimited      = errors.New("已达到速率限制")
)
