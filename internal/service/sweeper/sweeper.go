// internal/service/sweeper/sweeper.go
package sweeper

import (
	"context"
	"time"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/metrics"
	"tuanbuy/internal/zookeeper"

	gbapp "tuanbuy/internal/service/groupbuy/application"
	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	orderapp "tuanbuy/internal/service/order/application"
	orderdomain "tuanbuy/internal/service/order/domain"
)

// Sweeper 是兜底的定时扫描器。真正的状态推进都委托给应用层的
// 幂等原语（终态化、自动取消、自动完成），这里只负责找出候选行、
// 逐行驱动。单行失败只记日志，下一轮自然重试。
type Sweeper struct {
	gbStore    gbdomain.Store
	orderStore orderdomain.Store
	groupBuy   *gbapp.GroupBuyService
	orders     *orderapp.OrderService
	lease      *zookeeper.Lease

	interval          time.Duration
	batchSize         int
	paymentWindow     time.Duration
	autoConfirmWindow time.Duration

	now func() time.Time
}

type Config struct {
	Interval          time.Duration
	BatchSize         int
	PaymentWindow     time.Duration
	AutoConfirmWindow time.Duration
}

func New(gbStore gbdomain.Store, orderStore orderdomain.Store,
	groupBuy *gbapp.GroupBuyService, orders *orderapp.OrderService,
	lease *zookeeper.Lease, cfg Config) *Sweeper {
	return &Sweeper{
		gbStore:           gbStore,
		orderStore:        orderStore,
		groupBuy:          groupBuy,
		orders:            orders,
		lease:             lease,
		interval:          cfg.Interval,
		batchSize:         cfg.BatchSize,
		paymentWindow:     cfg.PaymentWindow,
		autoConfirmWindow: cfg.AutoConfirmWindow,
		now:               time.Now,
	}
}

// Run 阻塞运行直到 ctx 取消。每一轮先抢 zk 租约，抢不到说明
// 别的实例在扫，本实例安静跳过。
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if s.lease != nil {
		held, err := s.lease.TryAcquire()
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("sweeper lease acquire failed")
			return
		}
		if !held {
			return
		}
	}

	s.sweepExpiredDeals(ctx)
	s.sweepStalePendingPay(ctx)
	s.sweepOverdueShipped(ctx)
}

// sweepExpiredDeals 给过期未收口的活动补终态。
func (s *Sweeper) sweepExpiredDeals(ctx context.Context) {
	start := s.now()
	defer func() {
		metrics.SweeperRunSeconds.WithLabelValues("finalize_deals").Observe(time.Since(start).Seconds())
	}()

	ids, err := s.gbStore.ExpiredOngoingDealIDs(ctx, s.now(), s.batchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("list expired deals")
		return
	}
	for _, id := range ids {
		finalized, err := s.groupBuy.FinalizeDeal(ctx, id)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("deal_id", id).Msg("finalize deal")
			continue
		}
		if finalized {
			metrics.SweeperSweptTotal.WithLabelValues("finalize_deals").Inc()
		}
	}
}

// sweepStalePendingPay 取消超出支付窗口仍未支付的订单。
func (s *Sweeper) sweepStalePendingPay(ctx context.Context) {
	start := s.now()
	defer func() {
		metrics.SweeperRunSeconds.WithLabelValues("auto_cancel").Observe(time.Since(start).Seconds())
	}()

	cutoff := s.now().Add(-s.paymentWindow)
	ids, err := s.orderStore.StalePendingPayOrderIDs(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("list stale pending-pay orders")
		return
	}
	for _, id := range ids {
		cancelled, err := s.orders.AutoCancelExpired(ctx, id)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", id).Msg("auto-cancel order")
			continue
		}
		if cancelled {
			metrics.SweeperSweptTotal.WithLabelValues("auto_cancel").Inc()
		}
	}
}

// sweepOverdueShipped 把发货后超过宽限期的订单自动置为完成。
func (s *Sweeper) sweepOverdueShipped(ctx context.Context) {
	start := s.now()
	defer func() {
		metrics.SweeperRunSeconds.WithLabelValues("auto_complete").Observe(time.Since(start).Seconds())
	}()

	cutoff := s.now().Add(-s.autoConfirmWindow)
	ids, err := s.orderStore.OverdueShippedOrderIDs(ctx, cutoff, s.batchSize)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("list overdue shipped orders")
		return
	}
	for _, id := range ids {
		completed, err := s.orders.AutoComplete(ctx, id)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Int64("order_id", id).Msg("auto-complete order")
			continue
		}
		if completed {
			metrics.SweeperSweptTotal.WithLabelValues("auto_complete").Inc()
		}
	}
}
