// internal/storetest/fakes.go
package storetest

import (
	"context"
	"sync"

	gbdomain "tuanbuy/internal/service/groupbuy/domain"
)

// RecordingNotifier 记录所有入队的事件，供测试断言。
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []gbdomain.NotificationEvent
}

func (n *RecordingNotifier) Enqueue(ctx context.Context, event gbdomain.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, event)
}

// ByType 返回指定类型的事件。
func (n *RecordingNotifier) ByType(t gbdomain.EventType) []gbdomain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []gbdomain.NotificationEvent
	for _, ev := range n.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// MemoryCache 是 DealCache 的内存实现，记录失效调用。
type MemoryCache struct {
	mu            sync.Mutex
	deals         map[int64]*gbdomain.Deal
	Invalidations []int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{deals: make(map[int64]*gbdomain.Deal)}
}

func (c *MemoryCache) Get(ctx context.Context, dealID int64) (*gbdomain.Deal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deals[dealID]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

func (c *MemoryCache) Set(ctx context.Context, deal *gbdomain.Deal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *deal
	c.deals[deal.ID] = &cp
}

func (c *MemoryCache) Invalidate(ctx context.Context, dealID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deals, dealID)
	c.Invalidations = append(c.Invalidations, dealID)
}

// RecordingRefunds 记录排给支付网关的退款请求。
type RecordingRefunds struct {
	mu      sync.Mutex
	Refunds []RefundRequest
}

type RefundRequest struct {
	PaymentNo string
	Amount    int64
}

func (r *RecordingRefunds) EnqueueRefund(ctx context.Context, paymentNo string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Refunds = append(r.Refunds, RefundRequest{PaymentNo: paymentNo, Amount: amount})
	return nil
}
