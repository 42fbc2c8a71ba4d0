// internal/service/groupbuy/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/metrics"
	"tuanbuy/internal/service/groupbuy/domain"
	"tuanbuy/internal/service/groupbuy/port"
)

// errExpiredNeedsFinalize 是 Join 事务内部的信号：活动已过期，
// 当前事务按失败回滚，随后在独立事务里补一次终态化。
var errExpiredNeedsFinalize = errors.New("deal expired, finalize required")

// GroupBuyService 编排团购活动的全部业务用例。
// 所有改变席位计数的路径都在一个数据库事务里执行，并以活动行的
// 排他锁为串行化点；通知只在事务提交之后入队。
type GroupBuyService struct {
	store    domain.Store
	notifier port.Notifier
	cache    port.DealCache
	tracer   trace.Tracer

	minMembers int

	now func() time.Time
}

func NewGroupBuyService(store domain.Store, notifier port.Notifier, cache port.DealCache, tracer trace.Tracer) *GroupBuyService {
	return &GroupBuyService{
		store:      store,
		notifier:   notifier,
		cache:      cache,
		tracer:     tracer,
		minMembers: 2,
		now:        time.Now,
	}
}

// WithClock 替换时间源。
func (s *GroupBuyService) WithClock(now func() time.Time) *GroupBuyService {
	s.now = now
	return s
}

// WithMinMembers 配置成团人数的全局下限。2 是拼团成立的硬底线，
// 配置只能往上提。
func (s *GroupBuyService) WithMinMembers(n int) *GroupBuyService {
	if n > 2 {
		s.minMembers = n
	}
	return s
}

// CreateDeal 商家创建活动。商品必须归属该商家且上架中，
// 同一商品不允许同时存在两个未终态的活动。
func (s *GroupBuyService) CreateDeal(ctx context.Context, merchantID int64, req *CreateDealRequest) (*domain.Deal, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.CreateDeal")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("merchant.id", merchantID),
		attribute.Int64("product.id", req.ProductID),
	)

	if req.DurationDays < 1 || req.DurationDays > 30 {
		return nil, fmt.Errorf("%w: duration must be between 1 and 30 days", domain.ErrValidation)
	}
	if req.MinParticipants < s.minMembers {
		return nil, fmt.Errorf("%w: min participants must be at least %d", domain.ErrValidation, s.minMembers)
	}

	now := s.now()
	startAt := now
	if req.StartAt != nil {
		startAt = *req.StartAt
	}
	endAt := startAt.Add(time.Duration(req.DurationDays) * 24 * time.Hour)

	deal, err := domain.NewDeal(merchantID, req.ProductID, req.Title,
		req.GroupPrice, req.OriginalPrice, req.MinParticipants, req.MaxParticipants,
		startAt, endAt, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	deal.CoverImage = req.CoverImage
	deal.Description = req.Description
	deal.IsFeatured = req.IsFeatured

	err = s.store.InTx(ctx, func(tx domain.TxStore) error {
		ok, err := tx.ProductBelongsToMerchant(ctx, req.ProductID, merchantID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrProductNotFound
		}
		dup, err := tx.HasOngoingDealForProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrDuplicateActiveDeal
		}
		return tx.CreateDeal(ctx, deal)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Int64("deal_id", deal.ID).
		Int64("merchant_id", merchantID).
		Msg("deal created")
	return deal, nil
}

// UpdateDeal 商家编辑活动，受 C1 的编辑守卫约束。
func (s *GroupBuyService) UpdateDeal(ctx context.Context, merchantID, dealID int64, update domain.DealUpdate) (*domain.Deal, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.UpdateDeal")
	defer span.End()
	span.SetAttributes(attribute.Int64("deal.id", dealID))

	var updated *domain.Deal
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		deal, err := tx.LockDeal(ctx, dealID)
		if err != nil {
			return err
		}
		if deal.MerchantID != merchantID {
			return domain.ErrForbidden
		}
		now := s.now()
		deal.Activate(now)
		if err := deal.ApplyUpdate(update, now); err != nil {
			return err
		}
		if err := tx.SaveDeal(ctx, deal); err != nil {
			return err
		}
		updated = deal
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.cache.Invalidate(ctx, dealID)
	return updated, nil
}

// Join 加入活动。并发加入者在活动行锁上排队，先提交者先占席位，
// 第一个加入者成为团长。活动已过期时顺手触发终态化再报错，
// 保证用户看到的状态与扫描任务最终写入的一致。
func (s *GroupBuyService) Join(ctx context.Context, dealID, userID int64) (*JoinResult, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.Join")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("deal.id", dealID),
		attribute.Int64("user.id", userID),
	)

	var result *JoinResult
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		deal, err := tx.LockDeal(ctx, dealID)
		if err != nil {
			return err
		}
		now := s.now()
		deal.Activate(now)
		if deal.State == domain.StateOngoing && deal.Expired(now) {
			return errExpiredNeedsFinalize
		}
		if err := deal.CheckJoinable(now); err != nil {
			return err
		}

		existing, err := tx.FindParticipation(ctx, dealID, userID)
		if err != nil {
			return err
		}

		var p *domain.Participation
		switch {
		case existing == nil:
			p = &domain.Participation{
				DealID:   dealID,
				UserID:   userID,
				IsLeader: deal.CurrentParticipants == 0,
				Status:   domain.ParticipationJoined,
				JoinedAt: now,
			}
			if err := tx.CreateParticipation(ctx, p); err != nil {
				return err
			}
		case existing.Active():
			return domain.ErrAlreadyJoined
		default:
			// 复用已取消的行，避免违反 (deal_id, user_id) 的唯一约束
			existing.Rejoin(now)
			existing.IsLeader = deal.CurrentParticipants == 0
			if err := tx.SaveParticipation(ctx, existing); err != nil {
				return err
			}
			p = existing
		}

		deal.CurrentParticipants++
		deal.UpdatedAt = now
		if err := tx.SaveDeal(ctx, deal); err != nil {
			return err
		}

		result = &JoinResult{
			Participation:       p,
			CurrentParticipants: deal.CurrentParticipants,
			MinParticipants:     deal.MinParticipants,
			MaxParticipants:     deal.MaxParticipants,
		}
		return nil
	})

	if errors.Is(err, errExpiredNeedsFinalize) {
		// 过期活动的惰性收口：独立事务，不影响本次请求的结论
		if _, ferr := s.FinalizeDeal(ctx, dealID); ferr != nil {
			logger.Ctx(ctx).Warn().Err(ferr).Int64("deal_id", dealID).
				Msg("opportunistic finalize failed")
		}
		err = domain.ErrDealNotJoinable
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "join failed")
		metrics.JoinTotal.WithLabelValues(joinResultLabel(err)).Inc()
		return nil, err
	}

	metrics.JoinTotal.WithLabelValues("success").Inc()
	s.cache.Invalidate(ctx, dealID)
	s.notifier.Enqueue(ctx, domain.NotificationEvent{
		Type:   domain.EventGroupJoined,
		UserID: userID,
		DealID: dealID,
		At:     s.now(),
	})
	return result, nil
}

// CancelParticipation 主动退团。已支付的席位必须走订单退款路径。
// 不触发活动状态变化：人数掉到门槛以下也要等截止时间再判失败。
func (s *GroupBuyService) CancelParticipation(ctx context.Context, dealID, userID int64) error {
	ctx, span := s.tracer.Start(ctx, "groupbuy.CancelParticipation")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("deal.id", dealID),
		attribute.Int64("user.id", userID),
	)

	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		deal, err := tx.LockDeal(ctx, dealID)
		if err != nil {
			return err
		}
		now := s.now()
		deal.Activate(now)
		if deal.IsTerminal() {
			return domain.ErrStateTerminal
		}

		p, err := tx.FindParticipation(ctx, dealID, userID)
		if err != nil {
			return err
		}
		if p == nil || !p.Active() {
			return domain.ErrNotJoined
		}
		if p.Status == domain.ParticipationPaid {
			return domain.ErrCannotCancelPaid
		}

		active, err := tx.ListActiveParticipants(ctx, dealID)
		if err != nil {
			return err
		}
		remaining := withoutUser(active, userID)

		newLeader := domain.ReleaseSeat(deal, p, remaining, now)
		if err := tx.SaveParticipation(ctx, p); err != nil {
			return err
		}
		if newLeader != nil {
			if err := tx.SaveParticipation(ctx, newLeader); err != nil {
				return err
			}
		}
		return tx.SaveDeal(ctx, deal)
	})
	if err != nil {
		span.RecordError(err)
		metrics.CancelTotal.WithLabelValues(cancelResultLabel(err)).Inc()
		return err
	}

	metrics.CancelTotal.WithLabelValues("success").Inc()
	s.cache.Invalidate(ctx, dealID)
	return nil
}

// FinalizeDeal 是共享的终态化原语，扫描任务和各惰性路径都走这里。
// 幂等：锁内重查谓词，已终态或未到期直接返回 false。
func (s *GroupBuyService) FinalizeDeal(ctx context.Context, dealID int64) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.FinalizeDeal")
	defer span.End()
	span.SetAttributes(attribute.Int64("deal.id", dealID))

	var (
		outcome      domain.DealState
		transitioned bool
		events       []domain.NotificationEvent
	)
	err := s.store.InTx(ctx, func(tx domain.TxStore) error {
		deal, err := tx.LockDeal(ctx, dealID)
		if err != nil {
			if errors.Is(err, domain.ErrDealNotFound) {
				return nil
			}
			return err
		}
		now := s.now()
		deal.Activate(now)
		outcome, transitioned = deal.Finalize(now)
		if !transitioned {
			return nil
		}
		if err := tx.SaveDeal(ctx, deal); err != nil {
			return err
		}

		eventType := domain.EventGroupSucceeded
		if outcome == domain.StateFailed {
			eventType = domain.EventGroupFailed
		}
		active, err := tx.ListActiveParticipants(ctx, dealID)
		if err != nil {
			return err
		}
		for _, p := range active {
			events = append(events, domain.NotificationEvent{
				Type:   eventType,
				UserID: p.UserID,
				DealID: dealID,
				At:     now,
			})
		}
		events = append(events, domain.NotificationEvent{
			Type:       eventType,
			MerchantID: deal.MerchantID,
			DealID:     dealID,
			At:         now,
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !transitioned {
		return false, nil
	}

	s.cache.Invalidate(ctx, dealID)
	for _, ev := range events {
		s.notifier.Enqueue(ctx, ev)
	}
	metrics.DealFinalizedTotal.WithLabelValues(string(outcome)).Inc()
	logger.Ctx(ctx).Info().
		Int64("deal_id", dealID).
		Str("outcome", string(outcome)).
		Msg("deal finalized")
	return true, nil
}

// GetDealDetail 活动详情，走读穿缓存；调用方已登录时附带 is_joined。
func (s *GroupBuyService) GetDealDetail(ctx context.Context, dealID, callerUserID int64) (*DealDetail, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.GetDealDetail")
	defer span.End()

	deal, ok := s.cache.Get(ctx, dealID)
	if !ok {
		var err error
		deal, err = s.store.GetDeal(ctx, dealID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, deal)
	}

	now := s.now()
	// 展示层面的惰性激活：持久化的流转由加锁的写路径完成
	deal.Activate(now)

	detail := &DealDetail{
		Deal:             deal,
		RemainingSeconds: deal.RemainingSeconds(now),
	}
	if callerUserID > 0 {
		parts, err := s.store.ListParticipants(ctx, dealID, false)
		if err != nil {
			return nil, err
		}
		for _, p := range parts {
			if p.UserID == callerUserID {
				detail.IsJoined = true
				break
			}
		}
	}
	return detail, nil
}

// ListDeals 活动列表。
func (s *GroupBuyService) ListDeals(ctx context.Context, q domain.ListDealsQuery) ([]*domain.Deal, int64, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.ListDeals")
	defer span.End()

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}
	return s.store.ListDeals(ctx, q)
}

// ListParticipants 参团成员列表，默认不含已取消。
func (s *GroupBuyService) ListParticipants(ctx context.Context, dealID int64) ([]*domain.Participation, error) {
	return s.store.ListParticipants(ctx, dealID, false)
}

func withoutUser(parts []*domain.Participation, userID int64) []*domain.Participation {
	out := make([]*domain.Participation, 0, len(parts))
	for _, p := range parts {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}

func joinResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrDealFull):
		return "full"
	case errors.Is(err, domain.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, domain.ErrDealNotJoinable):
		return "not_joinable"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	default:
		return "error"
	}
}

func cancelResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, domain.ErrCannotCancelPaid):
		return "paid"
	case errors.Is(err, domain.ErrStateTerminal):
		return "terminal"
	default:
		return "error"
	}
}
