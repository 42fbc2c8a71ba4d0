// internal/service/groupbuy/domain/repository.go
package domain

import (
	"context"
	"time"
)

// TxStore 是一次数据库事务内可用的写侧仓储。
// 所有席位相关的写操作都必须从 LockDeal 开始：它对 Deal 行加排他锁
// (SELECT ... FOR UPDATE)，同一活动上的并发操作在这里串行化。
type TxStore interface {
	// LockDeal 锁定并返回活动行，不存在时返回 ErrDealNotFound。
	LockDeal(ctx context.Context, dealID int64) (*Deal, error)
	CreateDeal(ctx context.Context, deal *Deal) error
	SaveDeal(ctx context.Context, deal *Deal) error

	// FindParticipation 返回 (deal, user) 的参团记录，含已取消的；
	// 从未加入过返回 nil, nil。
	FindParticipation(ctx context.Context, dealID, userID int64) (*Participation, error)
	CreateParticipation(ctx context.Context, p *Participation) error
	SaveParticipation(ctx context.Context, p *Participation) error

	// ListActiveParticipants 返回非取消的参团记录，
	// 按 joined_at 升序、id 升序。
	ListActiveParticipants(ctx context.Context, dealID int64) ([]*Participation, error)

	// ProductBelongsToMerchant 校验商品存在、上架中且归属该商家。
	ProductBelongsToMerchant(ctx context.Context, productID, merchantID int64) (bool, error)

	// HasOngoingDealForProduct 同一商品是否已有未终态的活动。
	HasOngoingDealForProduct(ctx context.Context, productID int64) (bool, error)
}

// Store 是团购上下文的仓储入口。
// InTx 在单个数据库事务里执行 fn；fn 返回错误时整体回滚，
// 死锁会在内部做有限次重试，耗尽后以 ErrBusy 浮出。
type Store interface {
	InTx(ctx context.Context, fn func(tx TxStore) error) error

	GetDeal(ctx context.Context, dealID int64) (*Deal, error)
	ListDeals(ctx context.Context, q ListDealsQuery) ([]*Deal, int64, error)
	ListParticipants(ctx context.Context, dealID int64, includeCancelled bool) ([]*Participation, error)

	// ExpiredOngoingDealIDs 供扫描任务使用：返回一批已过截止时间、
	// 仍处于 ONGOING（或已该激活的 PENDING）的活动 ID。
	ExpiredOngoingDealIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// ListDealsQuery 是活动列表的过滤与分页参数。
type ListDealsQuery struct {
	Keyword    string
	MerchantID int64
	ProductID  int64
	State      DealState
	Featured   *bool
	Page       int
	PageSize   int
}
