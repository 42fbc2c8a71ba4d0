// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/metrics"
	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	gbport "tuanbuy/internal/service/groupbuy/port"
	"tuanbuy/internal/service/order/domain"
	"tuanbuy/internal/service/order/port"
)

// errDealExpired 事务内部信号：活动已过期，回滚后走惰性终态化。
var errDealExpired = errors.New("deal expired")

// OrderService 实现订单与团购核心的耦合（Order Binder）。
// 锁序约定：团购订单先锁 Deal 行再锁 Order 行，避免与参团路径死锁。
// 库存是权威的“货座”：下单扣、取消/退款还，与席位互相独立。
type OrderService struct {
	store     domain.Store
	notifier  gbport.Notifier
	dealCache gbport.DealCache
	finalizer port.DealFinalizer
	refunds   port.RefundGateway
	tracer    trace.Tracer

	paymentWindow     time.Duration
	autoConfirmWindow time.Duration

	now func() time.Time
}

func NewOrderService(store domain.Store, notifier gbport.Notifier, dealCache gbport.DealCache,
	finalizer port.DealFinalizer, refunds port.RefundGateway, tracer trace.Tracer,
	paymentWindow, autoConfirmWindow time.Duration) *OrderService {
	return &OrderService{
		store:             store,
		notifier:          notifier,
		dealCache:         dealCache,
		finalizer:         finalizer,
		refunds:           refunds,
		tracer:            tracer,
		paymentWindow:     paymentWindow,
		autoConfirmWindow: autoConfirmWindow,
		now:               time.Now,
	}
}

// WithClock 替换时间源。
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// CreateOrder 创建订单。团购单在同一事务里校验活动可下单、
// 参团记录为 JOINED、(user, deal) 无未取消订单，然后原子扣库存。
// 创建阶段不改参团状态，支付成功才会传导。
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	if len(req.Items) == 0 && req.DealID == nil {
		return nil, domain.ErrEmptyOrder
	}

	var (
		order      *domain.Order
		lazyDealID int64
		needsFinal bool
	)
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		now := s.now()

		var items []*domain.OrderItem
		if req.DealID != nil {
			deal, err := tx.LockDeal(ctx, *req.DealID)
			if err != nil {
				return err
			}
			deal.Activate(now)
			if deal.State == gbdomain.StateOngoing && deal.Expired(now) {
				lazyDealID = deal.ID
				needsFinal = true
				return errDealExpired
			}
			if deal.State != gbdomain.StateOngoing {
				return gbdomain.ErrDealNotJoinable
			}

			p, err := tx.FindParticipation(ctx, deal.ID, userID)
			if err != nil {
				return err
			}
			if p == nil || !p.Active() {
				return gbdomain.ErrNotJoined
			}
			if p.Status != gbdomain.ParticipationJoined {
				return domain.ErrDuplicateDealOrder
			}

			existing, err := tx.FindActiveDealOrder(ctx, userID, deal.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return domain.ErrDuplicateDealOrder
			}

			// 条目被强制为活动商品，单价为拼团价
			product, err := tx.GetProduct(ctx, deal.ProductID)
			if err != nil {
				return err
			}
			qty := dealQuantity(req.Items, deal.ProductID)
			items = []*domain.OrderItem{{
				ProductID:    deal.ProductID,
				ProductTitle: product.Title,
				UnitPrice:    deal.GroupPrice,
				Quantity:     qty,
				Subtotal:     deal.GroupPrice * int64(qty),
			}}
			req.MerchantID = deal.MerchantID
		} else {
			var err error
			items, err = s.buildItems(ctx, tx, req)
			if err != nil {
				return err
			}
		}

		// 原子扣库存：不足即整单失败
		for _, it := range items {
			if err := tx.DecrementStock(ctx, it.ProductID, it.SpecificationID, it.Quantity); err != nil {
				return err
			}
		}

		var total int64
		for _, it := range items {
			total += it.Subtotal
		}

		order = &domain.Order{
			OrderNo:        newOrderNo(),
			UserID:         userID,
			MerchantID:     req.MerchantID,
			DealID:         req.DealID,
			AddressID:      req.AddressID,
			Status:         domain.StatusPendingPay,
			PaymentStatus:  domain.PaymentUnpaid,
			DeliveryStatus: domain.DeliveryPending,
			TotalAmount:    total,
			BuyerComment:   req.BuyerComment,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.CreateOrder(ctx, order, items)
	})

	if needsFinal {
		if _, ferr := s.finalizer.FinalizeDeal(ctx, lazyDealID); ferr != nil {
			logger.Ctx(ctx).Warn().Err(ferr).Int64("deal_id", lazyDealID).
				Msg("opportunistic finalize failed")
		}
		err = gbdomain.ErrDealNotJoinable
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		metrics.OrderTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	metrics.OrderTotal.WithLabelValues("create", "success").Inc()
	logger.Ctx(ctx).Info().
		Int64("order_id", order.ID).
		Str("order_no", order.OrderNo).
		Msg("order created")
	return order, nil
}

// PayOrder 支付订单。超时的待支付单当场走自动取消路径并报
// ErrPaymentExpired；正常路径落支付记录、订单置 PAID，
// 团购单同时把参团记录推进到 PAID。
func (s *OrderService) PayOrder(ctx context.Context, userID, orderID int64, req *PayOrderRequest) (*PayResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PayOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	dealID, err := s.peekDealID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		result     *PayResult
		expired    bool
		needsFinal bool
		events     []gbdomain.NotificationEvent
	)
	err = s.store.InTx(ctx, func(tx domain.TxStore) error {
		now := s.now()

		var deal *gbdomain.Deal
		if dealID != nil {
			var err error
			deal, err = tx.LockDeal(ctx, *dealID)
			if err != nil {
				return err
			}
			deal.Activate(now)
		}
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return domain.ErrForbidden
		}

		// 活动已过截止时间：这张待支付单不再有意义，就地取消，
		// 提交后顺手把活动终态化
		if deal != nil && deal.State == gbdomain.StateOngoing && deal.Expired(now) &&
			order.Status == domain.StatusPendingPay {
			evs, err := s.cancelLocked(ctx, tx, order, deal, now)
			if err != nil {
				return err
			}
			events = evs
			expired = true
			needsFinal = true
			return nil
		}

		if order.PaymentExpired(s.paymentWindow, now) {
			// 过期单就地收口，提交这次取消而不是支付
			evs, err := s.cancelLocked(ctx, tx, order, deal, now)
			if err != nil {
				return err
			}
			events = evs
			expired = true
			return nil
		}
		if order.Status != domain.StatusPendingPay {
			return domain.ErrOrderStateInvalid
		}

		payment := &domain.Payment{
			OrderID:   order.ID,
			PaymentNo: strings.ReplaceAll(uuid.New().String(), "-", ""),
			Method:    req.Method,
			Amount:    order.TotalAmount,
			Status:    domain.PaymentPaid,
			PaidAt:    now,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if err := order.MarkPaid(now); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}

		if deal != nil {
			p, err := tx.FindParticipation(ctx, deal.ID, userID)
			if err != nil {
				return err
			}
			if p != nil && p.Status == gbdomain.ParticipationJoined {
				p.Status = gbdomain.ParticipationPaid
				if err := tx.SaveParticipation(ctx, p); err != nil {
					return err
				}
			}
		}

		events = append(events, gbdomain.NotificationEvent{
			Type:    gbdomain.EventOrderPaid,
			UserID:  order.UserID,
			OrderID: order.ID,
			At:      now,
		})
		result = &PayResult{OrderID: order.ID, PaymentNo: payment.PaymentNo, Amount: payment.Amount}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		metrics.OrderTotal.WithLabelValues("pay", "error").Inc()
		return nil, err
	}

	s.afterCommit(ctx, dealID, events)
	if needsFinal {
		if _, ferr := s.finalizer.FinalizeDeal(ctx, *dealID); ferr != nil {
			logger.Ctx(ctx).Warn().Err(ferr).Int64("deal_id", *dealID).
				Msg("opportunistic finalize failed")
		}
	}
	if expired {
		metrics.OrderTotal.WithLabelValues("pay", "expired").Inc()
		return nil, domain.ErrPaymentExpired
	}
	metrics.OrderTotal.WithLabelValues("pay", "success").Inc()
	return result, nil
}

// CancelOrder 用户取消订单。待支付单直接取消；已支付单转退款，
// 打款动作异步排给支付网关。两条路径都还库存，团购单释放席位。
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64, reason string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	dealID, err := s.peekDealID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		cancelled *domain.Order
		refundNo  string
		refundAmt int64
		events    []gbdomain.NotificationEvent
	)
	err = s.store.InTx(ctx, func(tx domain.TxStore) error {
		now := s.now()

		var deal *gbdomain.Deal
		if dealID != nil {
			var err error
			deal, err = tx.LockDeal(ctx, *dealID)
			if err != nil {
				return err
			}
		}
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return domain.ErrForbidden
		}

		wasPaid := order.Status == domain.StatusPaid
		evs, err := s.cancelLocked(ctx, tx, order, deal, now)
		if err != nil {
			return err
		}
		events = evs
		cancelled = order

		if wasPaid {
			payment, err := tx.FindPayment(ctx, orderID)
			if err != nil {
				return err
			}
			if payment != nil {
				refundNo = payment.PaymentNo
				refundAmt = payment.Amount
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		metrics.OrderTotal.WithLabelValues("cancel", "error").Inc()
		return nil, err
	}

	s.afterCommit(ctx, dealID, events)
	if refundNo != "" {
		// 退款是尽力而为的异步动作，失败由对账兜底
		if err := s.refunds.EnqueueRefund(ctx, refundNo, refundAmt); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("payment_no", refundNo).
				Msg("failed to enqueue refund, reconciliation will retry")
		}
	}
	metrics.OrderTotal.WithLabelValues("cancel", "success").Inc()
	logger.Ctx(ctx).Info().Int64("order_id", orderID).Str("reason", reason).Msg("order cancelled")
	return cancelled, nil
}

// cancelLocked 在已持有必要行锁的事务里执行取消/退款的公共部分：
// 订单状态流转、库存回补、团购席位释放。用户请求、支付超时、
// 扫描任务三条路径共用。
func (s *OrderService) cancelLocked(ctx context.Context, tx domain.TxStore, order *domain.Order, deal *gbdomain.Deal, now time.Time) ([]gbdomain.NotificationEvent, error) {
	var eventType gbdomain.EventType
	switch order.Status {
	case domain.StatusPendingPay:
		if err := order.Cancel(now); err != nil {
			return nil, err
		}
		eventType = gbdomain.EventOrderCancelled
	case domain.StatusPaid:
		if err := order.Refund(now); err != nil {
			return nil, err
		}
		payment, err := tx.FindPayment(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			payment.Status = domain.PaymentRefunded
			payment.RefundedAt = &now
			if err := tx.SavePayment(ctx, payment); err != nil {
				return nil, err
			}
		}
		eventType = gbdomain.EventOrderRefunded
	default:
		return nil, domain.ErrOrderStateInvalid
	}

	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := tx.RestoreStock(ctx, it.ProductID, it.SpecificationID, it.Quantity); err != nil {
			return nil, err
		}
	}
	if err := tx.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	// 团购席位释放：只在活动未终态时进行。终态活动的名单和计数
	// 是已定格的成团结果，不再回改。
	if deal != nil && !deal.IsTerminal() {
		p, err := tx.FindParticipation(ctx, deal.ID, order.UserID)
		if err != nil {
			return nil, err
		}
		if p != nil && p.Active() {
			active, err := tx.ListActiveParticipants(ctx, deal.ID)
			if err != nil {
				return nil, err
			}
			remaining := make([]*gbdomain.Participation, 0, len(active))
			for _, a := range active {
				if a.UserID != order.UserID {
					remaining = append(remaining, a)
				}
			}
			newLeader := gbdomain.ReleaseSeat(deal, p, remaining, now)
			if err := tx.SaveParticipation(ctx, p); err != nil {
				return nil, err
			}
			if newLeader != nil {
				if err := tx.SaveParticipation(ctx, newLeader); err != nil {
					return nil, err
				}
			}
			if err := tx.SaveDeal(ctx, deal); err != nil {
				return nil, err
			}
		}
	}

	return []gbdomain.NotificationEvent{{
		Type:    eventType,
		UserID:  order.UserID,
		OrderID: order.ID,
		At:      now,
	}}, nil
}

// AutoCancelExpired 供扫描任务按单收口超时未支付的订单。
// 幂等：锁内重查状态与截止时间，已流转的单直接跳过。
func (s *OrderService) AutoCancelExpired(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order.AutoCancelExpired")
	defer span.End()

	dealID, err := s.peekDealID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}

	var (
		done   bool
		events []gbdomain.NotificationEvent
	)
	err = s.store.InTx(ctx, func(tx domain.TxStore) error {
		now := s.now()

		var deal *gbdomain.Deal
		if dealID != nil {
			var err error
			deal, err = tx.LockDeal(ctx, *dealID)
			if err != nil {
				return err
			}
		}
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.PaymentExpired(s.paymentWindow, now) {
			return nil
		}
		evs, err := s.cancelLocked(ctx, tx, order, deal, now)
		if err != nil {
			return err
		}
		events = evs
		done = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if done {
		s.afterCommit(ctx, dealID, events)
	}
	return done, nil
}

// AutoComplete 发货超过宽限期的订单自动确认收货。
func (s *OrderService) AutoComplete(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "order.AutoComplete")
	defer span.End()

	var done bool
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				return nil
			}
			return err
		}
		now := s.now()
		if !order.AutoConfirmDue(s.autoConfirmWindow, now) {
			return nil
		}
		if err := order.Complete(now); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return done, nil
}

// DeliverOrder 商家发货：PAID -> SHIPPED。不触碰团购侧。
func (s *OrderService) DeliverOrder(ctx context.Context, merchantID, orderID int64, carrier, trackingNo string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.DeliverOrder")
	defer span.End()

	var shipped *domain.Order
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.MerchantID != merchantID {
			return domain.ErrForbidden
		}
		if err := order.Ship(carrier, trackingNo, s.now()); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		shipped = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.notifier.Enqueue(ctx, gbdomain.NotificationEvent{
		Type:    gbdomain.EventOrderShipped,
		UserID:  shipped.UserID,
		OrderID: shipped.ID,
		At:      s.now(),
	})
	return shipped, nil
}

// ConfirmReceipt 用户确认收货：SHIPPED -> COMPLETED。
func (s *OrderService) ConfirmReceipt(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmReceipt")
	defer span.End()

	var completed *domain.Order
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return domain.ErrForbidden
		}
		if err := order.Complete(s.now()); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, order); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return completed, nil
}

// GetOrder 订单详情（含条目）。
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, []*domain.OrderItem, error) {
	order, items, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != userID && order.MerchantID != userID {
		return nil, nil, domain.ErrForbidden
	}
	return order, items, nil
}

// ListOrders 用户订单列表。
func (s *OrderService) ListOrders(ctx context.Context, userID int64, page, pageSize int) ([]*domain.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.ListOrdersByUser(ctx, userID, page, pageSize)
}

// peekDealID 不加锁地读出订单关联的活动 ID，用于确定锁序。
// DealID 创建后不可变，所以这里的快照是安全的。
func (s *OrderService) peekDealID(ctx context.Context, orderID int64) (*int64, error) {
	order, _, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.DealID, nil
}

func (s *OrderService) afterCommit(ctx context.Context, dealID *int64, events []gbdomain.NotificationEvent) {
	if dealID != nil {
		s.dealCache.Invalidate(ctx, *dealID)
	}
	for _, ev := range events {
		s.notifier.Enqueue(ctx, ev)
	}
}

func (s *OrderService) buildItems(ctx context.Context, tx domain.TxStore, req *CreateOrderRequest) ([]*domain.OrderItem, error) {
	items := make([]*domain.OrderItem, 0, len(req.Items))
	for _, ir := range req.Items {
		if ir.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be at least 1", gbdomain.ErrValidation)
		}
		product, err := tx.GetProduct(ctx, ir.ProductID)
		if err != nil {
			return nil, err
		}
		if product.MerchantID != req.MerchantID {
			return nil, fmt.Errorf("%w: product %d does not belong to merchant", gbdomain.ErrValidation, ir.ProductID)
		}
		price := product.Price
		if ir.SpecificationID != nil {
			spec, err := tx.GetSpecification(ctx, *ir.SpecificationID)
			if err != nil {
				return nil, err
			}
			if spec.ProductID != product.ID {
				return nil, fmt.Errorf("%w: specification does not belong to product", gbdomain.ErrValidation)
			}
			price = spec.Price
		}
		items = append(items, &domain.OrderItem{
			ProductID:       ir.ProductID,
			SpecificationID: ir.SpecificationID,
			ProductTitle:    product.Title,
			UnitPrice:       price,
			Quantity:        ir.Quantity,
			Subtotal:        price * int64(ir.Quantity),
		})
	}
	return items, nil
}

// dealQuantity 从请求条目里找活动商品的数量，找不到按 1 件处理。
func dealQuantity(items []OrderItemRequest, productID int64) int {
	for _, it := range items {
		if it.ProductID == productID && it.Quantity > 0 {
			return it.Quantity
		}
	}
	return 1
}

func newOrderNo() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
