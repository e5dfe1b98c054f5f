package domain

import (
	"fmt"
	"time"

	"gitee.com/flycash/broadcast-platform/internal/errs"
)

// SendStatus 通知发送状态
type SendStatus string

const (
	SendStatusDraft      SendStatus = "DRAFT"      // 草稿
	SendStatusQueued     SendStatus = "QUEUED"     // 已提交，等待编排
	SendStatusPreparing  SendStatus = "PREPARING"  // 解析受众并分批中
	SendStatusSending    SendStatus = "SENDING"    // 投递中
	SendStatusCompleting SendStatus = "COMPLETING" // 聚合完成，收尾中
	SendStatusSent       SendStatus = "SENT"       // 发送成功
	SendStatusFailed     SendStatus = "FAILED"     // 发送失败
	SendStatusCanceled   SendStatus = "CANCELED"   // 已取消
	SendStatusUnknown    SendStatus = "UNKNOWN"    // 未知
)

func (s SendStatus) String() string {
	return string(s)
}

// IsTerminal 是否是终态，终态之后不再处理任何接收者结果
func (s SendStatus) IsTerminal() bool {
	return s == SendStatusSent || s == SendStatusFailed || s == SendStatusCanceled
}

// Counters 通知维度的投递计数器
// 不变式：Succeeded+Failed+Throttled+Canceled+Pending == Total（分批落库之后）
type Counters struct {
	Total     int64
	Succeeded int64
	Failed    int64
	Throttled int64
	Canceled  int64
	Pending   int64
}

// Notification 一次广播通知的领域模型
type Notification struct {
	ID        uint64     // 通知唯一标识
	Title     string     // 标题
	Content   string     // 消息内容
	Author    string     // 创建人
	Audience  Audience   // 目标受众
	Status    SendStatus // 发送状态
	Counters  Counters   // 投递计数器
	BatchKeys []string   // 分批落库之后的批次键
	Version   int        // 版本号，用于CAS操作
	CreatedAt time.Time
	SentAt    time.Time // 到达终态的时间
}

// Validate 校验"发送"请求的入参
func (n *Notification) Validate() error {
	if n.Title == "" {
		return fmt.Errorf("%w: Title 不能为空", errs.ErrInvalidParameter)
	}
	if n.Content == "" {
		return fmt.Errorf("%w: Content 不能为空", errs.ErrInvalidParameter)
	}
	return n.Audience.Validate()
}

// CanTransitionTo 状态机合法流转判定
func (n *Notification) CanTransitionTo(target SendStatus) bool {
	if n.Status.IsTerminal() {
		return false
	}
	switch target {
	case SendStatusQueued:
		return n.Status == SendStatusDraft
	case SendStatusPreparing:
		return n.Status == SendStatusQueued
	case SendStatusSending:
		return n.Status == SendStatusPreparing
	case SendStatusCompleting:
		return n.Status == SendStatusSending
	case SendStatusSent:
		// 受众为空时允许从 Preparing 直接收尾
		return n.Status == SendStatusPreparing ||
			n.Status == SendStatusSending ||
			n.Status == SendStatusCompleting
	case SendStatusFailed:
		// 投递开始之前的失败（解析/分批出错、滞留超时）直接判失败
		return n.Status == SendStatusQueued ||
			n.Status == SendStatusPreparing ||
			n.Status == SendStatusSending ||
			n.Status == SendStatusCompleting
	case SendStatusCanceled:
		// 取消只允许发生在投递完成之前
		return n.Status == SendStatusQueued ||
			n.Status == SendStatusPreparing ||
			n.Status == SendStatusSending
	default:
		return false
	}
}

// FinalStatus 聚合收尾时根据计数器推导终态
// 任何不可恢复的失败（含限流重投耗尽）都会让整个通知判定为失败
func (n *Notification) FinalStatus() SendStatus {
	if n.Counters.Pending > 0 {
		return SendStatusUnknown
	}
	if n.Status == SendStatusCanceled || n.Counters.Canceled > 0 {
		return SendStatusCanceled
	}
	if n.Counters.Failed == 0 && n.Counters.Throttled == 0 {
		return SendStatusSent
	}
	return SendStatusFailed
}
