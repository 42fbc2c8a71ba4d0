// internal/service/order/domain/state.go
package domain

// Status 定义订单的生命周期状态
type Status string

const (
	StatusPendingPay Status = "PENDING_PAY" // 待支付
	StatusPaid       Status = "PAID"        // 已支付
	StatusShipped    Status = "SHIPPED"     // 已发货
	StatusCompleted  Status = "COMPLETED"   // 已完成（确认收货或超期自动确认）
	StatusCancelled  Status = "CANCELLED"   // 已取消（支付前）
	StatusRefunded   Status = "REFUNDED"    // 已退款（支付后取消）
)

// PaymentStatus 支付侧的子状态
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// DeliveryStatus 履约侧的子状态
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryShipped   DeliveryStatus = "SHIPPED"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
)
