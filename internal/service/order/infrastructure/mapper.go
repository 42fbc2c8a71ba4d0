// internal/service/order/infrastructure/mapper.go
package infrastructure

import (
	"tuanbuy/internal/service/order/domain"
)

// --- 数据库模型与领域模型的转换 ---

func toDomainOrder(m *OrderModel) *domain.Order {
	return &domain.Order{
		ID:             m.ID,
		OrderNo:        m.OrderNo,
		UserID:         m.UserID,
		MerchantID:     m.MerchantID,
		DealID:         m.DealID,
		AddressID:      m.AddressID,
		Status:         domain.Status(m.Status),
		PaymentStatus:  domain.PaymentStatus(m.PaymentStatus),
		DeliveryStatus: domain.DeliveryStatus(m.DeliveryStatus),
		TotalAmount:    m.TotalAmount,
		BuyerComment:   m.BuyerComment,
		Carrier:        m.Carrier,
		TrackingNo:     m.TrackingNo,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		PaidAt:         m.PaidAt,
		ShippedAt:      m.ShippedAt,
		CompletedAt:    m.CompletedAt,
		CancelledAt:    m.CancelledAt,
	}
}

func toOrderModel(o *domain.Order) *OrderModel {
	return &OrderModel{
		ID:             o.ID,
		OrderNo:        o.OrderNo,
		UserID:         o.UserID,
		MerchantID:     o.MerchantID,
		DealID:         o.DealID,
		AddressID:      o.AddressID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryStatus: string(o.DeliveryStatus),
		TotalAmount:    o.TotalAmount,
		BuyerComment:   o.BuyerComment,
		Carrier:        o.Carrier,
		TrackingNo:     o.TrackingNo,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		PaidAt:         o.PaidAt,
		ShippedAt:      o.ShippedAt,
		CompletedAt:    o.CompletedAt,
		CancelledAt:    o.CancelledAt,
	}
}

func toDomainOrderItem(m *OrderItemModel) *domain.OrderItem {
	return &domain.OrderItem{
		ID:              m.ID,
		OrderID:         m.OrderID,
		ProductID:       m.ProductID,
		SpecificationID: m.SpecificationID,
		ProductTitle:    m.ProductTitle,
		UnitPrice:       m.UnitPrice,
		Quantity:        m.Quantity,
		Subtotal:        m.Subtotal,
	}
}

func toOrderItemModel(i *domain.OrderItem) *OrderItemModel {
	return &OrderItemModel{
		ID:              i.ID,
		OrderID:         i.OrderID,
		ProductID:       i.ProductID,
		SpecificationID: i.SpecificationID,
		ProductTitle:    i.ProductTitle,
		UnitPrice:       i.UnitPrice,
		Quantity:        i.Quantity,
		Subtotal:        i.Subtotal,
	}
}

func toDomainPayment(m *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:         m.ID,
		OrderID:    m.OrderID,
		PaymentNo:  m.PaymentNo,
		Method:     m.Method,
		Amount:     m.Amount,
		Status:     domain.PaymentStatus(m.Status),
		PaidAt:     m.PaidAt,
		RefundedAt: m.RefundedAt,
	}
}

func toPaymentModel(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:         p.ID,
		OrderID:    p.OrderID,
		PaymentNo:  p.PaymentNo,
		Method:     p.Method,
		Amount:     p.Amount,
		Status:     string(p.Status),
		PaidAt:     p.PaidAt,
		RefundedAt: p.RefundedAt,
	}
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:         m.ID,
		MerchantID: m.MerchantID,
		Title:      m.Title,
		Price:      m.Price,
		Stock:      m.Stock,
		Active:     m.Active,
	}
}

func toDomainSpecification(m *SpecificationModel) *domain.Specification {
	return &domain.Specification{
		ID:        m.ID,
		ProductID: m.ProductID,
		Name:      m.Name,
		Price:     m.Price,
		Stock:     m.Stock,
	}
}
