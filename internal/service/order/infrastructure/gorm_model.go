// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import "time"

// OrderModel 对应 orders 表。
// (status, created_at) 联合索引服务待支付超时扫描，
// (user_id, deal_id) 索引服务“每人每团一单”的活跃订单查询。
type OrderModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrderNo        string    `gorm:"size:64;not null;uniqueIndex"`
	UserID         int64     `gorm:"not null;index:idx_orders_user_deal,priority:1"`
	MerchantID     int64     `gorm:"not null;index"`
	DealID         *int64    `gorm:"index:idx_orders_user_deal,priority:2;index"`
	AddressID      int64     `gorm:"not null"`
	Status         string    `gorm:"size:16;not null;index:idx_orders_status_created,priority:1"`
	PaymentStatus  string    `gorm:"size:16;not null"`
	DeliveryStatus string    `gorm:"size:16;not null"`
	TotalAmount    int64     `gorm:"not null"`
	BuyerComment   string    `gorm:"size:512"`
	Carrier        string    `gorm:"size:64"`
	TrackingNo     string    `gorm:"size:64"`
	CreatedAt      time.Time `gorm:"index:idx_orders_status_created,priority:2"`
	UpdatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time `gorm:"index"`
	CompletedAt    *time.Time
	CancelledAt    *time.Time
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应 order_items 表。
type OrderItemModel struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	OrderID         int64  `gorm:"not null;index"`
	ProductID       int64  `gorm:"not null"`
	SpecificationID *int64
	ProductTitle    string `gorm:"size:128;not null"`
	UnitPrice       int64  `gorm:"not null"`
	Quantity        int    `gorm:"not null"`
	Subtotal        int64  `gorm:"not null"`
}

func (OrderItemModel) TableName() string { return "order_items" }

// PaymentModel 对应 payments 表。退款翻转状态，不删行。
type PaymentModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	OrderID    int64  `gorm:"not null;index"`
	PaymentNo  string `gorm:"size:64;not null;uniqueIndex"`
	Method     string `gorm:"size:32;not null"`
	Amount     int64  `gorm:"not null"`
	Status     string `gorm:"size:16;not null"`
	PaidAt     time.Time
	RefundedAt *time.Time
}

func (PaymentModel) TableName() string { return "payments" }

// ProductModel 对应 products 表。下单路径只读商品目录，
// 库存扣减用原子 UPDATE，不经过这个模型的 Save。
type ProductModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	MerchantID int64  `gorm:"not null;index"`
	Title      string `gorm:"size:128;not null"`
	Price      int64  `gorm:"not null"`
	Stock      int    `gorm:"not null"`
	Active     bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ProductModel) TableName() string { return "products" }

// SpecificationModel 对应 product_specifications 表。
type SpecificationModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ProductID int64  `gorm:"not null;index"`
	Name      string `gorm:"size:64;not null"`
	Price     int64  `gorm:"not null"`
	Stock     int    `gorm:"not null"`
}

func (SpecificationModel) TableName() string { return "product_specifications" }
