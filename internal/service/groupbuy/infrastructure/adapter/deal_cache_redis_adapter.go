// internal/service/groupbuy/infrastructure/adapter/deal_cache_redis_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/redis"
	"tuanbuy/internal/service/groupbuy/domain"
	"tuanbuy/internal/service/groupbuy/port"
)

const dealCacheTTL = 5 * time.Minute

// DealCacheRedisAdapter 实现了 port.DealCache 接口。
// 缓存只是加速读路径：任何 Redis 故障都按未命中处理，
// 上层照常回源数据库。
type DealCacheRedisAdapter struct {
	client *redis.Client
}

var _ port.DealCache = (*DealCacheRedisAdapter)(nil)

func NewDealCacheRedisAdapter(client *redis.Client) *DealCacheRedisAdapter {
	return &DealCacheRedisAdapter{client: client}
}

func dealCacheKey(dealID int64) string {
	return fmt.Sprintf("tuanbuy:deal:%d", dealID)
}

func (a *DealCacheRedisAdapter) Get(ctx context.Context, dealID int64) (*domain.Deal, bool) {
	raw, err := a.client.Get(ctx, dealCacheKey(dealID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", dealID).Msg("deal cache get")
		}
		return nil, false
	}
	var deal domain.Deal
	if err := json.Unmarshal([]byte(raw), &deal); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", dealID).Msg("deal cache decode")
		return nil, false
	}
	return &deal, true
}

func (a *DealCacheRedisAdapter) Set(ctx context.Context, deal *domain.Deal) {
	payload, err := json.Marshal(deal)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", deal.ID).Msg("deal cache encode")
		return
	}
	if err := a.client.Set(ctx, dealCacheKey(deal.ID), payload, dealCacheTTL); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", deal.ID).Msg("deal cache set")
	}
}

func (a *DealCacheRedisAdapter) Invalidate(ctx context.Context, dealID int64) {
	if err := a.client.Del(ctx, dealCacheKey(dealID)); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Int64("deal_id", dealID).Msg("deal cache invalidate")
	}
}
