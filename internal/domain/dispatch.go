package domain

import "time"

// DispatchMessage 投递队列中的一条消息
// 携带投递所需的全部信息，发送端无需回读接收者记录
type DispatchMessage struct {
	NotificationID uint64        `json:"notificationId"`
	BatchKey       string        `json:"batchKey"`
	RecipientType  RecipientType `json:"recipientType"`
	RecipientID    string        `json:"recipientId"`
	ConversationID string        `json:"conversationId"`
	ServiceURL     string        `json:"serviceUrl"`
	Title          string        `json:"title"`
	Content        string        `json:"content"`
	Important      bool          `json:"important"`
	// Redelivery 因限流被延迟重投的次数
	Redelivery int32 `json:"redelivery"`
}

// Recipient 还原消息中内嵌的接收者
func (m DispatchMessage) Recipient() Recipient {
	return Recipient{
		Type:           m.RecipientType,
		ID:             m.RecipientID,
		ConversationID: m.ConversationID,
		ServiceURL:     m.ServiceURL,
	}
}

// DeliveryResult 一次投递尝试序列的最终结果
// HTTP错误码不抛异常，统一收敛成显式的结果值
type DeliveryResult struct {
	Status DeliveryStatus
	// StatusHistory 每次尝试拿到的HTTP状态码
	StatusHistory []int
	// NumberOfThrottles 本次尝试序列中观测到的429次数
	NumberOfThrottles int32
	// LastError 终态为失败时的错误描述
	LastError string
}

// OutcomeEvent 投递终态事件，发送端写完接收者记录后发给聚合器
type OutcomeEvent struct {
	NotificationID uint64         `json:"notificationId"`
	BatchKey       string         `json:"batchKey"`
	RecipientID    string         `json:"recipientId"`
	Status         DeliveryStatus `json:"status"`
	OccurredAt     time.Time      `json:"occurredAt"`
}
