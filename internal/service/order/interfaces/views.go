// internal/service/order/interfaces/views.go
package interfaces

import (
	"time"

	"tuanbuy/internal/pkg/money"
	"tuanbuy/internal/service/order/domain"
)

// OrderView 订单的 JSON 视图。金额 "12.50" 字符串，时间 UTC RFC3339。
type OrderView struct {
	ID             int64            `json:"id"`
	OrderNo        string           `json:"order_no"`
	UserID         int64            `json:"user_id"`
	MerchantID     int64            `json:"merchant_id"`
	DealID         *int64           `json:"deal_id,omitempty"`
	AddressID      int64            `json:"address_id"`
	Status         string           `json:"status"`
	PaymentStatus  string           `json:"payment_status"`
	DeliveryStatus string           `json:"delivery_status"`
	TotalAmount    string           `json:"total_amount"`
	BuyerComment   string           `json:"buyer_comment,omitempty"`
	Carrier        string           `json:"carrier,omitempty"`
	TrackingNo     string           `json:"tracking_no,omitempty"`
	CreatedAt      string           `json:"created_at"`
	PaidAt         *string          `json:"paid_at,omitempty"`
	ShippedAt      *string          `json:"shipped_at,omitempty"`
	CompletedAt    *string          `json:"completed_at,omitempty"`
	CancelledAt    *string          `json:"cancelled_at,omitempty"`
	Items          []*OrderItemView `json:"items,omitempty"`
}

type OrderItemView struct {
	ID              int64  `json:"id"`
	ProductID       int64  `json:"product_id"`
	SpecificationID *int64 `json:"specification_id,omitempty"`
	ProductTitle    string `json:"product_title"`
	UnitPrice       string `json:"unit_price"`
	Quantity        int    `json:"quantity"`
	Subtotal        string `json:"subtotal"`
}

func toOrderView(o *domain.Order, items []*domain.OrderItem) *OrderView {
	v := &OrderView{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		UserID:         o.UserID,
		MerchantID:     o.MerchantID,
		DealID:         o.DealID,
		AddressID:      o.AddressID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		TotalAmount:    money.FormatCents(o.TotalAmount),
		BuyerComment:   o.BuyerComment,
		Carrier:        o.Carrier,
		TrackingNo:     o.TrackingNo,
		CreatedAt:      formatTime(o.CreatedAt),
		PaidAt:         formatTimePtr(o.PaidAt),
		ShippedAt:      formatTimePtr(o.ShippedAt),
		CompletedAt:    formatTimePtr(o.CompletedAt),
		CancelledAt:    formatTimePtr(o.CancelledAt),
	}
	for _, item := range items {
		v.Items = append(v.Items, &OrderItemView{
			ID:              item.ID,
			ProductID:       item.ProductID,
			SpecificationID: item.SpecificationID,
			ProductTitle:    item.ProductTitle,
			UnitPrice:       money.FormatCents(item.UnitPrice),
			Quantity:        item.Quantity,
			Subtotal:        money.FormatCents(item.Subtotal),
		})
	}
	return v
}

// PayResultView 支付结果视图。
type PayResultView struct {
	OrderID   int64  `json:"order_id"`
	PaymentNo string `json:"payment_no"`
	Amount    string `json:"amount"`
}

// PageView 统一的分页信封。
type PageView struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
