// internal/storetest/store.go
//
// Package storetest 提供一个内存版的仓储实现，供应用层和扫描任务的
// 单元测试使用。事务语义用“快照 + 提交时整体替换”模拟：fn 返回错误
// 即整体丢弃，等价于回滚；全局互斥锁模拟活动行锁的串行化效果。
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	orderdomain "tuanbuy/internal/service/order/domain"
)

type data struct {
	deals    map[int64]*gbdomain.Deal
	parts    map[int64]*gbdomain.Participation
	orders   map[int64]*orderdomain.Order
	items    map[int64]*orderdomain.OrderItem
	payments map[int64]*orderdomain.Payment
	products map[int64]*orderdomain.Product
	specs    map[int64]*orderdomain.Specification
}

func newData() *data {
	return &data{
		deals:    make(map[int64]*gbdomain.Deal),
		parts:    make(map[int64]*gbdomain.Participation),
		orders:   make(map[int64]*orderdomain.Order),
		items:    make(map[int64]*orderdomain.OrderItem),
		payments: make(map[int64]*orderdomain.Payment),
		products: make(map[int64]*orderdomain.Product),
		specs:    make(map[int64]*orderdomain.Specification),
	}
}

func (d *data) clone() *data {
	c := newData()
	for id, v := range d.deals {
		cp := *v
		c.deals[id] = &cp
	}
	for id, v := range d.parts {
		cp := *v
		c.parts[id] = &cp
	}
	for id, v := range d.orders {
		cp := *v
		c.orders[id] = &cp
	}
	for id, v := range d.items {
		cp := *v
		c.items[id] = &cp
	}
	for id, v := range d.payments {
		cp := *v
		c.payments[id] = &cp
	}
	for id, v := range d.products {
		cp := *v
		c.products[id] = &cp
	}
	for id, v := range d.specs {
		cp := *v
		c.specs[id] = &cp
	}
	return c
}

// Store 是内存仓储的根。GroupBuy() 和 Orders() 分别暴露两个上下文
// 的 Store 接口，共享同一份数据和同一把事务锁。
type Store struct {
	mu  sync.Mutex
	d   *data
	seq int64
}

func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) inTx(ctx context.Context, fn func(tx *txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scratch := s.d.clone()
	if err := fn(&txStore{s: s, d: scratch}); err != nil {
		return err
	}
	s.d = scratch
	return nil
}

// --- 种子与断言辅助 ---

func (s *Store) SeedProduct(p *orderdomain.Product) *orderdomain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	cp := *p
	s.d.products[p.ID] = &cp
	return p
}

func (s *Store) SeedSpecification(sp *orderdomain.Specification) *orderdomain.Specification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp.ID == 0 {
		sp.ID = s.nextID()
	}
	cp := *sp
	s.d.specs[sp.ID] = &cp
	return sp
}

func (s *Store) SeedDeal(d *gbdomain.Deal) *gbdomain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.nextID()
	}
	cp := *d
	s.d.deals[d.ID] = &cp
	return d
}

func (s *Store) SeedParticipation(p *gbdomain.Participation) *gbdomain.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	cp := *p
	s.d.parts[p.ID] = &cp
	return p
}

func (s *Store) SeedOrder(o *orderdomain.Order, items []*orderdomain.OrderItem) *orderdomain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.nextID()
	}
	cp := *o
	s.d.orders[o.ID] = &cp
	for _, it := range items {
		if it.ID == 0 {
			it.ID = s.nextID()
		}
		it.OrderID = o.ID
		icp := *it
		s.d.items[it.ID] = &icp
	}
	return o
}

func (s *Store) SeedPayment(p *orderdomain.Payment) *orderdomain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	cp := *p
	s.d.payments[p.ID] = &cp
	return p
}

// Deal 返回已提交状态的活动副本。
func (s *Store) Deal(id int64) *gbdomain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.d.deals[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

// Participation 按 (deal, user) 返回已提交的参团记录副本。
func (s *Store) Participation(dealID, userID int64) *gbdomain.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.parts {
		if p.DealID == dealID && p.UserID == userID {
			cp := *p
			return &cp
		}
	}
	return nil
}

func (s *Store) Order(id int64) *orderdomain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.d.orders[id]; ok {
		cp := *o
		return &cp
	}
	return nil
}

func (s *Store) Product(id int64) *orderdomain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.d.products[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (s *Store) Payment(orderID int64) *orderdomain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp
		}
	}
	return nil
}

// ActiveParticipants 返回已提交状态下的非取消参团记录。
func (s *Store) ActiveParticipants(dealID int64) []*gbdomain.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeParts(s.d, dealID)
}

func activeParts(d *data, dealID int64) []*gbdomain.Participation {
	var out []*gbdomain.Participation
	for _, p := range d.parts {
		if p.DealID == dealID && p.Status != gbdomain.ParticipationCancelled {
			cp := *p
			out = append(out, &cp)
		}
	}
	sortParts(out)
	return out
}

func sortParts(parts []*gbdomain.Participation) {
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].JoinedAt.Equal(parts[j].JoinedAt) {
			return parts[i].ID < parts[j].ID
		}
		return parts[i].JoinedAt.Before(parts[j].JoinedAt)
	})
}

// GroupBuy 返回团购上下文的 Store 视图。
func (s *Store) GroupBuy() gbdomain.Store { return gbView{s} }

// Orders 返回订单上下文的 Store 视图。
func (s *Store) Orders() orderdomain.Store { return orderView{s} }

type gbView struct{ s *Store }

func (v gbView) InTx(ctx context.Context, fn func(tx gbdomain.TxStore) error) error {
	return v.s.inTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (v gbView) GetDeal(ctx context.Context, dealID int64) (*gbdomain.Deal, error) {
	if d := v.s.Deal(dealID); d != nil {
		return d, nil
	}
	return nil, gbdomain.ErrDealNotFound
}

func (v gbView) ListDeals(ctx context.Context, q gbdomain.ListDealsQuery) ([]*gbdomain.Deal, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var all []*gbdomain.Deal
	for _, d := range v.s.d.deals {
		if q.Keyword != "" && !strings.Contains(d.Title, q.Keyword) {
			continue
		}
		if q.MerchantID > 0 && d.MerchantID != q.MerchantID {
			continue
		}
		if q.ProductID > 0 && d.ProductID != q.ProductID {
			continue
		}
		if q.State != "" && d.State != q.State {
			continue
		}
		if q.Featured != nil && d.IsFeatured != *q.Featured {
			continue
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (q.Page - 1) * q.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (v gbView) ListParticipants(ctx context.Context, dealID int64, includeCancelled bool) ([]*gbdomain.Participation, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*gbdomain.Participation
	for _, p := range v.s.d.parts {
		if p.DealID != dealID {
			continue
		}
		if !includeCancelled && p.Status == gbdomain.ParticipationCancelled {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sortParts(out)
	return out, nil
}

func (v gbView) ExpiredOngoingDealIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var candidates []*gbdomain.Deal
	for _, d := range v.s.d.deals {
		if (d.State == gbdomain.StatePending || d.State == gbdomain.StateOngoing) && d.EndAt.Before(now) {
			candidates = append(candidates, d)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].EndAt.Before(candidates[j].EndAt) })
	var ids []int64
	for _, d := range candidates {
		if len(ids) >= limit {
			break
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}

type orderView struct{ s *Store }

func (v orderView) InTx(ctx context.Context, fn func(tx orderdomain.TxStore) error) error {
	return v.s.inTx(ctx, func(tx *txStore) error { return fn(tx) })
}

func (v orderView) GetOrder(ctx context.Context, orderID int64) (*orderdomain.Order, []*orderdomain.OrderItem, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.d.orders[orderID]
	if !ok {
		return nil, nil, orderdomain.ErrOrderNotFound
	}
	cp := *o
	return &cp, orderItems(v.s.d, orderID), nil
}

func (v orderView) ListOrdersByUser(ctx context.Context, userID int64, page, pageSize int) ([]*orderdomain.Order, int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var all []*orderdomain.Order
	for _, o := range v.s.d.orders {
		if o.UserID == userID {
			cp := *o
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (v orderView) StalePendingPayOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []int64
	for _, o := range sortedOrders(v.s.d) {
		if len(out) >= limit {
			break
		}
		if o.Status == orderdomain.StatusPendingPay && o.CreatedAt.Before(cutoff) {
			out = append(out, o.ID)
		}
	}
	return out, nil
}

func (v orderView) OverdueShippedOrderIDs(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []int64
	for _, o := range sortedOrders(v.s.d) {
		if len(out) >= limit {
			break
		}
		if o.Status == orderdomain.StatusShipped && o.ShippedAt != nil && o.ShippedAt.Before(cutoff) {
			out = append(out, o.ID)
		}
	}
	return out, nil
}

func sortedOrders(d *data) []*orderdomain.Order {
	var out []*orderdomain.Order
	for _, o := range d.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func orderItems(d *data, orderID int64) []*orderdomain.OrderItem {
	var out []*orderdomain.OrderItem
	for _, it := range d.items {
		if it.OrderID == orderID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// txStore 在快照上实现两个上下文的 TxStore。
type txStore struct {
	s *Store
	d *data
}

var _ orderdomain.TxStore = (*txStore)(nil)

func (t *txStore) LockDeal(ctx context.Context, dealID int64) (*gbdomain.Deal, error) {
	d, ok := t.d.deals[dealID]
	if !ok {
		return nil, gbdomain.ErrDealNotFound
	}
	cp := *d
	return &cp, nil
}

func (t *txStore) CreateDeal(ctx context.Context, deal *gbdomain.Deal) error {
	if deal.ID == 0 {
		deal.ID = t.s.nextID()
	}
	cp := *deal
	t.d.deals[deal.ID] = &cp
	return nil
}

func (t *txStore) SaveDeal(ctx context.Context, deal *gbdomain.Deal) error {
	cp := *deal
	t.d.deals[deal.ID] = &cp
	return nil
}

func (t *txStore) FindParticipation(ctx context.Context, dealID, userID int64) (*gbdomain.Participation, error) {
	for _, p := range t.d.parts {
		if p.DealID == dealID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *txStore) CreateParticipation(ctx context.Context, p *gbdomain.Participation) error {
	for _, existing := range t.d.parts {
		if existing.DealID == p.DealID && existing.UserID == p.UserID {
			return gbdomain.ErrAlreadyJoined
		}
	}
	if p.ID == 0 {
		p.ID = t.s.nextID()
	}
	cp := *p
	t.d.parts[p.ID] = &cp
	return nil
}

func (t *txStore) SaveParticipation(ctx context.Context, p *gbdomain.Participation) error {
	cp := *p
	t.d.parts[p.ID] = &cp
	return nil
}

func (t *txStore) ListActiveParticipants(ctx context.Context, dealID int64) ([]*gbdomain.Participation, error) {
	return activeParts(t.d, dealID), nil
}

func (t *txStore) ProductBelongsToMerchant(ctx context.Context, productID, merchantID int64) (bool, error) {
	p, ok := t.d.products[productID]
	return ok && p.MerchantID == merchantID && p.Active, nil
}

func (t *txStore) HasOngoingDealForProduct(ctx context.Context, productID int64) (bool, error) {
	for _, d := range t.d.deals {
		if d.ProductID == productID && !d.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *txStore) CreateOrder(ctx context.Context, order *orderdomain.Order, items []*orderdomain.OrderItem) error {
	if order.ID == 0 {
		order.ID = t.s.nextID()
	}
	cp := *order
	t.d.orders[order.ID] = &cp
	for _, it := range items {
		if it.ID == 0 {
			it.ID = t.s.nextID()
		}
		it.OrderID = order.ID
		icp := *it
		t.d.items[it.ID] = &icp
	}
	return nil
}

func (t *txStore) LockOrder(ctx context.Context, orderID int64) (*orderdomain.Order, error) {
	o, ok := t.d.orders[orderID]
	if !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *txStore) SaveOrder(ctx context.Context, order *orderdomain.Order) error {
	cp := *order
	t.d.orders[order.ID] = &cp
	return nil
}

func (t *txStore) ListOrderItems(ctx context.Context, orderID int64) ([]*orderdomain.OrderItem, error) {
	return orderItems(t.d, orderID), nil
}

func (t *txStore) FindActiveDealOrder(ctx context.Context, userID, dealID int64) (*orderdomain.Order, error) {
	for _, o := range t.d.orders {
		if o.UserID == userID && o.DealID != nil && *o.DealID == dealID && o.ActiveForDeal() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *txStore) CreatePayment(ctx context.Context, payment *orderdomain.Payment) error {
	if payment.ID == 0 {
		payment.ID = t.s.nextID()
	}
	cp := *payment
	t.d.payments[payment.ID] = &cp
	return nil
}

func (t *txStore) FindPayment(ctx context.Context, orderID int64) (*orderdomain.Payment, error) {
	for _, p := range t.d.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *txStore) SavePayment(ctx context.Context, payment *orderdomain.Payment) error {
	cp := *payment
	t.d.payments[payment.ID] = &cp
	return nil
}

func (t *txStore) GetProduct(ctx context.Context, productID int64) (*orderdomain.Product, error) {
	p, ok := t.d.products[productID]
	if !ok {
		return nil, orderdomain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *txStore) GetSpecification(ctx context.Context, specID int64) (*orderdomain.Specification, error) {
	sp, ok := t.d.specs[specID]
	if !ok {
		return nil, orderdomain.ErrProductNotFound
	}
	cp := *sp
	return &cp, nil
}

func (t *txStore) DecrementStock(ctx context.Context, productID int64, specID *int64, qty int) error {
	if specID != nil {
		sp, ok := t.d.specs[*specID]
		if !ok || sp.Stock < qty {
			return orderdomain.ErrOutOfStock
		}
		sp.Stock -= qty
		return nil
	}
	p, ok := t.d.products[productID]
	if !ok || p.Stock < qty {
		return orderdomain.ErrOutOfStock
	}
	p.Stock -= qty
	return nil
}

func (t *txStore) RestoreStock(ctx context.Context, productID int64, specID *int64, qty int) error {
	if specID != nil {
		if sp, ok := t.d.specs[*specID]; ok {
			sp.Stock += qty
		}
		return nil
	}
	if p, ok := t.d.products[productID]; ok {
		p.Stock += qty
	}
	return nil
}
