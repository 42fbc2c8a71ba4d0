// internal/service/groupbuy/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/service/groupbuy/domain"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213

	maxTxRetries = 3
)

// GormStore 是 domain.Store 的 GORM 实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// InTx 在单个事务里执行 fn。死锁和锁等待超时在这里做有限次重试，
// 重试耗尽后以 ErrBusy 浮出，客户端可以安全重试整个请求。
func (s *GormStore) InTx(ctx context.Context, fn func(tx domain.TxStore) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&GormTxStore{DB: tx})
		})
		if err == nil {
			return nil
		}
		if !retryableMysqlErr(err) {
			return err
		}
		lastErr = err
		logger.Ctx(ctx).Warn().Err(err).Int("attempt", attempt+1).
			Msg("transaction conflict, retrying")
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	logger.Ctx(ctx).Error().Err(lastErr).Msg("transaction retries exhausted")
	return domain.ErrBusy
}

// retryableMysqlErr 识别值得重试的存储层冲突。
func retryableMysqlErr(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}

// GormTxStore 是事务内的写侧仓储，持有事务级的 *gorm.DB。
// 订单上下文的事务仓储内嵌它来复用团购侧的全部方法。
type GormTxStore struct {
	DB *gorm.DB
}

// LockDeal 用 SELECT ... FOR UPDATE 锁定活动行。
// 这是团购核心唯一的正确性关键锁：同一活动上的全部席位变更
// 在这里串行化。
func (t *GormTxStore) LockDeal(ctx context.Context, dealID int64) (*domain.Deal, error) {
	var m DealModel
	err := t.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, dealID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDealNotFound
		}
		return nil, err
	}
	return toDomainDeal(&m), nil
}

func (t *GormTxStore) CreateDeal(ctx context.Context, deal *domain.Deal) error {
	m := toDealModel(deal)
	if err := t.DB.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	deal.ID = m.ID
	return nil
}

func (t *GormTxStore) SaveDeal(ctx context.Context, deal *domain.Deal) error {
	return t.DB.WithContext(ctx).Save(toDealModel(deal)).Error
}

func (t *GormTxStore) FindParticipation(ctx context.Context, dealID, userID int64) (*domain.Participation, error) {
	var m ParticipationModel
	err := t.DB.WithContext(ctx).
		Where("deal_id = ? AND user_id = ?", dealID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toDomainParticipation(&m), nil
}

func (t *GormTxStore) CreateParticipation(ctx context.Context, p *domain.Participation) error {
	m := toParticipationModel(p)
	if err := t.DB.WithContext(ctx).Create(m).Error; err != nil {
		// 行锁之下不应该撞唯一键，留这个翻译是对并发缺陷的兜底
		if isDuplicateEntry(err) {
			return domain.ErrAlreadyJoined
		}
		return err
	}
	p.ID = m.ID
	return nil
}

func (t *GormTxStore) SaveParticipation(ctx context.Context, p *domain.Participation) error {
	return t.DB.WithContext(ctx).Save(toParticipationModel(p)).Error
}

func (t *GormTxStore) ListActiveParticipants(ctx context.Context, dealID int64) ([]*domain.Participation, error) {
	var models []*ParticipationModel
	err := t.DB.WithContext(ctx).
		Where("deal_id = ? AND status <> ?", dealID, string(domain.ParticipationCancelled)).
		Order("joined_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Participation, len(models))
	for i, m := range models {
		out[i] = toDomainParticipation(m)
	}
	return out, nil
}

// ProductBelongsToMerchant 直接打到 products 表，商品目录归
// 商品模块维护，这里只做归属与上架校验。
func (t *GormTxStore) ProductBelongsToMerchant(ctx context.Context, productID, merchantID int64) (bool, error) {
	var n int64
	err := t.DB.WithContext(ctx).Table("products").
		Where("id = ? AND merchant_id = ? AND active = ?", productID, merchantID, true).
		Count(&n).Error
	return n > 0, err
}

func (t *GormTxStore) HasOngoingDealForProduct(ctx context.Context, productID int64) (bool, error) {
	var n int64
	err := t.DB.WithContext(ctx).Model(&DealModel{}).
		Where("product_id = ? AND state IN ?", productID,
			[]string{string(domain.StatePending), string(domain.StateOngoing)}).
		Count(&n).Error
	return n > 0, err
}

// --- 读侧 ---

func (s *GormStore) GetDeal(ctx context.Context, dealID int64) (*domain.Deal, error) {
	var m DealModel
	err := s.db.WithContext(ctx).First(&m, dealID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDealNotFound
		}
		return nil, err
	}
	return toDomainDeal(&m), nil
}

func (s *GormStore) ListDeals(ctx context.Context, q domain.ListDealsQuery) ([]*domain.Deal, int64, error) {
	query := s.db.WithContext(ctx).Model(&DealModel{})
	if q.Keyword != "" {
		query = query.Where("title LIKE ?", "%"+q.Keyword+"%")
	}
	if q.MerchantID > 0 {
		query = query.Where("merchant_id = ?", q.MerchantID)
	}
	if q.ProductID > 0 {
		query = query.Where("product_id = ?", q.ProductID)
	}
	if q.State != "" {
		query = query.Where("state = ?", string(q.State))
	}
	if q.Featured != nil {
		query = query.Where("is_featured = ?", *q.Featured)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []*DealModel
	err := query.
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	out := make([]*domain.Deal, len(models))
	for i, m := range models {
		out[i] = toDomainDeal(m)
	}
	return out, total, nil
}

func (s *GormStore) ListParticipants(ctx context.Context, dealID int64, includeCancelled bool) ([]*domain.Participation, error) {
	query := s.db.WithContext(ctx).Where("deal_id = ?", dealID)
	if !includeCancelled {
		query = query.Where("status <> ?", string(domain.ParticipationCancelled))
	}
	var models []*ParticipationModel
	if err := query.Order("joined_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Participation, len(models))
	for i, m := range models {
		out[i] = toDomainParticipation(m)
	}
	return out, nil
}

// ExpiredOngoingDealIDs 到期待收口的活动。PENDING 一并捞出：
// end_at > start_at 保证过了截止时间的活动必然也过了开始时间，
// 终态化原语会先激活再判定结果。
func (s *GormStore) ExpiredOngoingDealIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&DealModel{}).
		Where("state IN ? AND end_at < ?",
			[]string{string(domain.StatePending), string(domain.StateOngoing)}, now).
		Order("end_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
