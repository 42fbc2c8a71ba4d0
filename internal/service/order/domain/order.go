// internal/service/order/domain/order.go
package domain

import (
	"time"
)

// Order 是订单聚合的根实体。
// DealID 非空时订单与团购活动耦合：支付把参团记录推进到 PAID，
// 取消/退款把参团记录置为 CANCELLED 并释放席位。
type Order struct {
	ID             int64
	OrderNo        string
	UserID         int64
	MerchantID     int64
	DealID         *int64
	AddressID      int64
	Status         Status
	PaymentStatus  PaymentStatus
	DeliveryStatus DeliveryStatus
	TotalAmount    int64 // 单位：分
	BuyerComment   string
	Carrier        string
	TrackingNo     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

// OrderItem 订单行项目。团购订单的单价被强制为活动的拼团价。
type OrderItem struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	SpecificationID *int64
	ProductTitle    string
	UnitPrice       int64 // 单位：分
	Quantity        int
	Subtotal        int64
}

// Payment 支付记录。退款时不删除，状态翻转为 REFUNDED 留痕。
type Payment struct {
	ID         int64
	OrderID    int64
	PaymentNo  string
	Method     string
	Amount     int64
	Status     PaymentStatus
	PaidAt     time.Time
	RefundedAt *time.Time
}

// IsDealOrder 是否为团购订单。
func (o *Order) IsDealOrder() bool {
	return o.DealID != nil
}

// ActiveForDeal 该订单是否仍占用着 (user, deal) 的唯一名额。
func (o *Order) ActiveForDeal() bool {
	return o.Status != StatusCancelled && o.Status != StatusRefunded
}

// PaymentExpired 判断待支付订单是否已超出支付窗口。
func (o *Order) PaymentExpired(window time.Duration, now time.Time) bool {
	return o.Status == StatusPendingPay && now.After(o.CreatedAt.Add(window))
}

// MarkPaid 待支付 -> 已支付。
func (o *Order) MarkPaid(now time.Time) error {
	if o.Status != StatusPendingPay {
		return ErrOrderStateInvalid
	}
	o.Status = StatusPaid
	o.PaymentStatus = PaymentPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel 支付前取消。
func (o *Order) Cancel(now time.Time) error {
	if o.Status != StatusPendingPay {
		return ErrOrderStateInvalid
	}
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Refund 支付后取消，进入退款态。实际打款由支付网关异步完成。
func (o *Order) Refund(now time.Time) error {
	if o.Status != StatusPaid {
		return ErrOrderStateInvalid
	}
	o.Status = StatusRefunded
	o.PaymentStatus = PaymentRefunded
	o.CancelledAt = &now
	o.UpdatedAt = now
	return nil
}

// Ship 商家发货：已支付 -> 已发货。
func (o *Order) Ship(carrier, trackingNo string, now time.Time) error {
	if o.Status != StatusPaid {
		return ErrOrderStateInvalid
	}
	o.Status = StatusShipped
	o.DeliveryStatus = DeliveryShipped
	o.Carrier = carrier
	o.TrackingNo = trackingNo
	o.ShippedAt = &now
	o.UpdatedAt = now
	return nil
}

// Complete 确认收货：已发货 -> 已完成。
func (o *Order) Complete(now time.Time) error {
	if o.Status != StatusShipped {
		return ErrOrderStateInvalid
	}
	o.Status = StatusCompleted
	o.DeliveryStatus = DeliveryDelivered
	o.CompletedAt = &now
	o.UpdatedAt = now
	return nil
}

// AutoConfirmDue 发货后超过宽限期仍未确认，可以自动完成。
func (o *Order) AutoConfirmDue(window time.Duration, now time.Time) bool {
	return o.Status == StatusShipped && o.ShippedAt != nil && now.After(o.ShippedAt.Add(window))
}
