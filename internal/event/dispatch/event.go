package dispatch

import "gitee.com/flycash/broadcast-platform/internal/domain"

const (
	// EventName 投递消息的主题
	EventName = "broadcast_dispatch_events"
)

// Event 队列里的投递消息，一条消息对应一个接收者的一次投递序列
type Event = domain.DispatchMessage
