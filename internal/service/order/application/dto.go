// internal/service/order/application/dto.go
package application

// CreateOrderRequest 下单入参。团购单带 DealID，
// 条目会被强制成活动商品、单价强制为拼团价。
type CreateOrderRequest struct {
	MerchantID   int64
	AddressID    int64
	DealID       *int64
	BuyerComment string
	Items        []OrderItemRequest
}

type OrderItemRequest struct {
	ProductID       int64
	SpecificationID *int64
	Quantity        int
}

// PayOrderRequest 支付入参。
type PayOrderRequest struct {
	Method string
}

// PayResult 支付结果。
type PayResult struct {
	OrderID   int64
	PaymentNo string
	Amount    int64
}
