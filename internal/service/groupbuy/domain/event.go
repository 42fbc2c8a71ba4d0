// internal/service/groupbuy/domain/event.go
package domain

import "time"

// EventType 枚举所有发往通知队列的状态变更事件。
type EventType string

const (
	EventGroupJoined    EventType = "GroupJoined"
	EventGroupSucceeded EventType = "GroupSucceeded"
	EventGroupFailed    EventType = "GroupFailed"
	EventOrderPaid      EventType = "OrderPaid"
	EventOrderRefunded  EventType = "OrderRefunded"
	EventOrderShipped   EventType = "OrderShipped"
	EventOrderCancelled EventType = "OrderCancelled"
)

// NotificationEvent 是投递给通知分发器的载荷。
// 至少一次投递、尽力而为；事件只在触发它的事务提交之后入队，
// 入队失败不回滚业务，只记一条告警日志。
type NotificationEvent struct {
	Type       EventType `json:"type"`
	UserID     int64     `json:"userId,omitempty"`
	MerchantID int64     `json:"merchantId,omitempty"`
	DealID     int64     `json:"dealId,omitempty"`
	OrderID    int64     `json:"orderId,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}
