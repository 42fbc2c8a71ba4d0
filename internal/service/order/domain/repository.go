// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"

	gbdomain "tuanbuy/internal/service/groupbuy/domain"
)

// TxStore 是订单事务内的写侧仓储。内嵌团购侧的 TxStore：
// 订单与团购的耦合变更（支付传导、席位释放）必须发生在同一个
// 数据库事务里，且以 Deal 行锁为先（锁序：先 Deal 后 Order）。
type TxStore interface {
	gbdomain.TxStore

	CreateOrder(ctx context.Context, order *Order, items []*OrderItem) error
	// LockOrder 锁定并返回订单行，不存在时返回 ErrOrderNotFound。
	LockOrder(ctx context.Context, orderID int64) (*Order, error)
	SaveOrder(ctx context.Context, order *Order) error
	ListOrderItems(ctx context.Context, orderID int64) ([]*OrderItem, error)

	// FindActiveDealOrder 返回 (user, deal) 下未取消的订单，没有则 nil。
	FindActiveDealOrder(ctx context.Context, userID, dealID int64) (*Order, error)

	CreatePayment(ctx context.Context, payment *Payment) error
	// FindPayment 返回订单的支付记录，没有则 nil。
	FindPayment(ctx context.Context, orderID int64) (*Payment, error)
	SavePayment(ctx context.Context, payment *Payment) error

	GetProduct(ctx context.Context, productID int64) (*Product, error)
	GetSpecification(ctx context.Context, specID int64) (*Specification, error)

	// DecrementStock 原子扣减库存：UPDATE ... WHERE stock >= qty，
	// 影响行数为 0 时返回 ErrOutOfStock。specID 非空时扣规格行。
	DecrementStock(ctx context.Context, productID int64, specID *int64, qty int) error
	// RestoreStock 取消/退款时把扣掉的库存加回去。
	RestoreStock(ctx context.Context, productID int64, specID *int64, qty int) error
}

// Store 是订单上下文的仓储入口。
type Store interface {
	InTx(ctx context.Context, fn func(tx TxStore) error) error

	GetOrder(ctx context.Context, orderID int64) (*Order, []*OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID int64, page, pageSize int) ([]*Order, int64, error)

	// 扫描任务的批量查询，均按 created_at / shipped_at 升序截断
	StalePendingPayOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
	OverdueShippedOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}
