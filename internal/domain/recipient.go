package domain

import (
	"fmt"

	"gitee.com/flycash/broadcast-platform/internal/errs"
)

// RecipientType 接收者类型
type RecipientType string

const (
	RecipientTypeUser RecipientType = "USER" // 个人用户
	RecipientTypeTeam RecipientType = "TEAM" // 团队频道
)

// DeliveryStatus 单个接收者的投递状态
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"   // 待投递
	DeliveryStatusSucceeded DeliveryStatus = "SUCCEEDED" // 投递成功
	DeliveryStatusFailed    DeliveryStatus = "FAILED"    // 投递失败
	DeliveryStatusThrottled DeliveryStatus = "THROTTLED" // 被限流，等待延迟重投
	DeliveryStatusNotFound  DeliveryStatus = "NOT_FOUND" // 会话不存在，不再重试
	DeliveryStatusCanceled  DeliveryStatus = "CANCELED"  // 通知取消时被跳过
)

func (s DeliveryStatus) String() string {
	return string(s)
}

// IsTerminal 终态之后该接收者不再参与任何投递
// 被限流的行在延迟重投期间停在 PENDING，THROTTLED 只在重投额度耗尽后写入
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusSucceeded ||
		s == DeliveryStatusFailed ||
		s == DeliveryStatusThrottled ||
		s == DeliveryStatusNotFound ||
		s == DeliveryStatusCanceled
}

// Recipient 接收者，User 和 Team 两种变体通过构造函数区分
// ConversationID 为空表示对方尚未安装应用，等待目录同步补全
type Recipient struct {
	Type           RecipientType
	ID             string // 用户ID或团队ID
	ConversationID string // 会话ID
	ServiceURL     string // 投递服务地址
}

// NewUserRecipient 创建用户类型接收者
func NewUserRecipient(userID, conversationID, serviceURL string) Recipient {
	return Recipient{
		Type:           RecipientTypeUser,
		ID:             userID,
		ConversationID: conversationID,
		ServiceURL:     serviceURL,
	}
}

// NewTeamRecipient 创建团队类型接收者
func NewTeamRecipient(teamID, conversationID, serviceURL string) Recipient {
	return Recipient{
		Type:           RecipientTypeTeam,
		ID:             teamID,
		ConversationID: conversationID,
		ServiceURL:     serviceURL,
	}
}

func (r Recipient) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: 接收者ID不能为空", errs.ErrInvalidParameter)
	}
	if r.Type != RecipientTypeUser && r.Type != RecipientTypeTeam {
		return fmt.Errorf("%w: 接收者类型 %q", errs.ErrInvalidParameter, r.Type)
	}
	return nil
}

// PendingInstallation 是否还没有可投递的目标会话
func (r Recipient) PendingInstallation() bool {
	return r.ConversationID == ""
}

// RecipientRecord 接收者投递记录，复合键为 (NotificationID, BatchKey, RecipientID)
type RecipientRecord struct {
	NotificationID uint64
	BatchKey       string
	Recipient      Recipient
	Status         DeliveryStatus
	ThrottleCount  int32  // 观测到的429次数
	ErrorMessage   string // 追加式错误日志，超长截断
}
