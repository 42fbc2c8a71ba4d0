// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tuanbuy/internal/service/order/domain"

	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	gbinfra "tuanbuy/internal/service/groupbuy/infrastructure"
)

// GormStore 是订单上下文 domain.Store 的 GORM 实现。
// 事务入口复用团购侧的 GormStore：两个上下文共享同一个数据库，
// 耦合写操作必须落在同一个事务里。
type GormStore struct {
	db      *gorm.DB
	gbStore *gbinfra.GormStore
}

func NewGormStore(db *gorm.DB, gbStore *gbinfra.GormStore) *GormStore {
	return &GormStore{db: db, gbStore: gbStore}
}

func (s *GormStore) InTx(ctx context.Context, fn func(tx domain.TxStore) error) error {
	return s.gbStore.InTx(ctx, func(gbTx gbdomain.TxStore) error {
		t, ok := gbTx.(*gbinfra.GormTxStore)
		if !ok {
			return errors.New("unexpected tx store implementation")
		}
		return fn(&gormTxStore{GormTxStore: t})
	})
}

// gormTxStore 内嵌团购侧的事务仓储，补齐订单相关的方法。
type gormTxStore struct {
	*gbinfra.GormTxStore
}

var _ domain.TxStore = (*gormTxStore)(nil)

func (t *gormTxStore) CreateOrder(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	m := toOrderModel(order)
	if err := t.DB.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	order.ID = m.ID
	for _, item := range items {
		item.OrderID = m.ID
		im := toOrderItemModel(item)
		if err := t.DB.WithContext(ctx).Create(im).Error; err != nil {
			return err
		}
		item.ID = im.ID
	}
	return nil
}

// LockOrder 锁定订单行。锁序约定：团购订单必须先 LockDeal 再 LockOrder。
func (t *gormTxStore) LockOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var m OrderModel
	err := t.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return toDomainOrder(&m), nil
}

func (t *gormTxStore) SaveOrder(ctx context.Context, order *domain.Order) error {
	return t.DB.WithContext(ctx).Save(toOrderModel(order)).Error
}

func (t *gormTxStore) ListOrderItems(ctx context.Context, orderID int64) ([]*domain.OrderItem, error) {
	return listOrderItems(ctx, t.DB, orderID)
}

func (t *gormTxStore) FindActiveDealOrder(ctx context.Context, userID, dealID int64) (*domain.Order, error) {
	var m OrderModel
	err := t.DB.WithContext(ctx).
		Where("user_id = ? AND deal_id = ? AND status NOT IN ?",
			userID, dealID,
			[]string{string(domain.StatusCancelled), string(domain.StatusRefunded)}).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainOrder(&m), nil
}

func (t *gormTxStore) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	m := toPaymentModel(payment)
	if err := t.DB.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	payment.ID = m.ID
	return nil
}

func (t *gormTxStore) FindPayment(ctx context.Context, orderID int64) (*domain.Payment, error) {
	var m PaymentModel
	err := t.DB.WithContext(ctx).Where("order_id = ?", orderID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainPayment(&m), nil
}

func (t *gormTxStore) SavePayment(ctx context.Context, payment *domain.Payment) error {
	return t.DB.WithContext(ctx).Save(toPaymentModel(payment)).Error
}

func (t *gormTxStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var m ProductModel
	err := t.DB.WithContext(ctx).First(&m, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return toDomainProduct(&m), nil
}

func (t *gormTxStore) GetSpecification(ctx context.Context, specID int64) (*domain.Specification, error) {
	var m SpecificationModel
	err := t.DB.WithContext(ctx).First(&m, specID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return toDomainSpecification(&m), nil
}

// DecrementStock 原子扣减：条件更新影响 0 行即库存不足。
// 不走 SELECT 再 UPDATE，避免给热门商品再加一把行锁。
func (t *gormTxStore) DecrementStock(ctx context.Context, productID int64, specID *int64, qty int) error {
	var result *gorm.DB
	if specID != nil {
		result = t.DB.WithContext(ctx).Model(&SpecificationModel{}).
			Where("id = ? AND stock >= ?", *specID, qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	} else {
		result = t.DB.WithContext(ctx).Model(&ProductModel{}).
			Where("id = ? AND stock >= ?", productID, qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrOutOfStock
	}
	return nil
}

func (t *gormTxStore) RestoreStock(ctx context.Context, productID int64, specID *int64, qty int) error {
	if specID != nil {
		return t.DB.WithContext(ctx).Model(&SpecificationModel{}).
			Where("id = ?", *specID).
			UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
	}
	return t.DB.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
}

// --- 读侧 ---

func (s *GormStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, []*domain.OrderItem, error) {
	var m OrderModel
	err := s.db.WithContext(ctx).First(&m, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, domain.ErrOrderNotFound
		}
		return nil, nil, err
	}
	items, err := listOrderItems(ctx, s.db, orderID)
	if err != nil {
		return nil, nil, err
	}
	return toDomainOrder(&m), items, nil
}

func (s *GormStore) ListOrdersByUser(ctx context.Context, userID int64, page, pageSize int) ([]*domain.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&OrderModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []*OrderModel
	err := query.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*domain.Order, len(models))
	for i, m := range models {
		out[i] = toDomainOrder(m)
	}
	return out, total, nil
}

func (s *GormStore) StalePendingPayOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&OrderModel{}).
		Where("status = ? AND created_at < ?", string(domain.StatusPendingPay), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) OverdueShippedOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&OrderModel{}).
		Where("status = ? AND shipped_at < ?", string(domain.StatusShipped), cutoff).
		Order("shipped_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func listOrderItems(ctx context.Context, db *gorm.DB, orderID int64) ([]*domain.OrderItem, error) {
	var models []*OrderItemModel
	if err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.OrderItem, len(models))
	for i, m := range models {
		out[i] = toDomainOrderItem(m)
	}
	return out, nil
}
