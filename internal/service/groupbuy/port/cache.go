// internal/service/groupbuy/port/cache.go
package port

import (
	"context"

	"tuanbuy/internal/service/groupbuy/domain"
)

// DealCache 是活动详情读穿缓存的出站端口。
// 缓存不参与事务正确性：写路径提交成功后 fire-and-forget 地失效，
// 读路径未命中时回源数据库。
type DealCache interface {
	Get(ctx context.Context, dealID int64) (*domain.Deal, bool)
	Set(ctx context.Context, deal *domain.Deal)
	Invalidate(ctx context.Context, dealID int64)
}
