package outcome

import "gitee.com/flycash/broadcast-platform/internal/domain"

const (
	// EventName 投递结果事件的主题
	EventName = "broadcast_outcome_events"
)

// Event 一个接收者到达终态后发出的结果事件
type Event = domain.OutcomeEvent
