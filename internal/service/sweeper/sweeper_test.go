// internal/service/sweeper/sweeper_test.go
package sweeper

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	gbapp "tuanbuy/internal/service/groupbuy/application"
	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	orderapp "tuanbuy/internal/service/order/application"
	orderdomain "tuanbuy/internal/service/order/domain"
	"tuanbuy/internal/storetest"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	paymentWindow     = 15 * time.Minute
	autoConfirmWindow = 7 * 24 * time.Hour
)

type fixture struct {
	store    *storetest.Store
	notifier *storetest.RecordingNotifier
	sw       *Sweeper
	now      time.Time
}

func newFixture(t *testing.T, batchSize int) *fixture {
	t.Helper()
	f := &fixture{
		store:    storetest.New(),
		notifier: &storetest.RecordingNotifier{},
		now:      base,
	}
	tracer := noop.NewTracerProvider().Tracer("")
	clock := func() time.Time { return f.now }
	cache := storetest.NewMemoryCache()
	groupBuy := gbapp.NewGroupBuyService(f.store.GroupBuy(), f.notifier, cache, tracer).WithClock(clock)
	orders := orderapp.NewOrderService(f.store.Orders(), f.notifier, cache, groupBuy,
		&storetest.RecordingRefunds{}, tracer, paymentWindow, autoConfirmWindow).WithClock(clock)
	f.sw = New(f.store.GroupBuy(), f.store.Orders(), groupBuy, orders, nil, Config{
		Interval:          time.Minute,
		BatchSize:         batchSize,
		PaymentWindow:     paymentWindow,
		AutoConfirmWindow: autoConfirmWindow,
	})
	f.sw.now = clock
	return f
}

func (f *fixture) seedExpiredDeal(members int) *gbdomain.Deal {
	deal := f.store.SeedDeal(&gbdomain.Deal{
		MerchantID:          10,
		ProductID:           20,
		Title:               "expired deal",
		GroupPrice:          990,
		OriginalPrice:       1990,
		MinParticipants:     2,
		CurrentParticipants: members,
		State:               gbdomain.StateOngoing,
		StartAt:             base.Add(-48 * time.Hour),
		EndAt:               base.Add(-time.Hour),
	})
	for i := 0; i < members; i++ {
		f.store.SeedParticipation(&gbdomain.Participation{
			DealID:   deal.ID,
			UserID:   int64(100 + i),
			IsLeader: i == 0,
			Status:   gbdomain.ParticipationJoined,
			JoinedAt: base.Add(-24 * time.Hour),
		})
	}
	return deal
}

func (f *fixture) seedPendingPayOrder(userID int64, createdAt time.Time) *orderdomain.Order {
	f.store.SeedProduct(&orderdomain.Product{ID: 30, MerchantID: 10, Title: "tea", Price: 500, Stock: 5, Active: true})
	return f.store.SeedOrder(&orderdomain.Order{
		OrderNo:     "ord-pending",
		UserID:      userID,
		MerchantID:  10,
		Status:      orderdomain.StatusPendingPay,
		TotalAmount: 500,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, []*orderdomain.OrderItem{{ProductID: 30, ProductTitle: "tea", UnitPrice: 500, Quantity: 1, Subtotal: 500}})
}

func (f *fixture) seedShippedOrder(userID int64, shippedAt time.Time) *orderdomain.Order {
	return f.store.SeedOrder(&orderdomain.Order{
		OrderNo:     "ord-shipped",
		UserID:      userID,
		MerchantID:  10,
		Status:      orderdomain.StatusShipped,
		TotalAmount: 500,
		CreatedAt:   shippedAt.Add(-time.Hour),
		UpdatedAt:   shippedAt,
		ShippedAt:   &shippedAt,
	}, nil)
}

func TestRunOnceSweepsAllThree(t *testing.T) {
	f := newFixture(t, 100)
	deal := f.seedExpiredDeal(3)
	pending := f.seedPendingPayOrder(200, base.Add(-time.Hour))
	shipped := f.seedShippedOrder(300, base.Add(-8*24*time.Hour))

	f.sw.runOnce(context.Background())

	if got := f.store.Deal(deal.ID).State; got != gbdomain.StateSucceeded {
		t.Fatalf("deal must be finalized to SUCCEEDED: %s", got)
	}
	if got := f.store.Order(pending.ID).Status; got != orderdomain.StatusCancelled {
		t.Fatalf("pending-pay order must be cancelled: %s", got)
	}
	if got := f.store.Order(shipped.ID).Status; got != orderdomain.StatusCompleted {
		t.Fatalf("shipped order must be completed: %s", got)
	}
	// 成团通知：3 个成员 + 商家
	if got := len(f.notifier.ByType(gbdomain.EventGroupSucceeded)); got != 4 {
		t.Fatalf("want 4 succeeded events, got %d", got)
	}
}

func TestRunOnceIdempotent(t *testing.T) {
	f := newFixture(t, 100)
	deal := f.seedExpiredDeal(1)
	pending := f.seedPendingPayOrder(200, base.Add(-time.Hour))

	f.sw.runOnce(context.Background())
	firstEvents := len(f.notifier.Events)

	f.sw.runOnce(context.Background())

	if got := f.store.Deal(deal.ID).State; got != gbdomain.StateFailed {
		t.Fatalf("1 < 2 members must fail the deal: %s", got)
	}
	if got := f.store.Order(pending.ID).Status; got != orderdomain.StatusCancelled {
		t.Fatalf("order status: %s", got)
	}
	if got := len(f.notifier.Events); got != firstEvents {
		t.Fatalf("second pass must not emit events: %d -> %d", firstEvents, got)
	}
}

func TestRunOnceRespectsBatchSize(t *testing.T) {
	f := newFixture(t, 1)
	d1 := f.seedExpiredDeal(1)
	d2 := f.store.SeedDeal(&gbdomain.Deal{
		MerchantID:      10,
		ProductID:       21,
		Title:           "second expired deal",
		GroupPrice:      990,
		OriginalPrice:   1990,
		MinParticipants: 2,
		State:           gbdomain.StateOngoing,
		StartAt:         base.Add(-48 * time.Hour),
		EndAt:           base.Add(-30 * time.Minute),
	})

	f.sw.runOnce(context.Background())

	// 批量上限 1：最早到期的先收口，第二个等下一轮
	if got := f.store.Deal(d1.ID).State; got != gbdomain.StateFailed {
		t.Fatalf("earliest expiry must be swept first: %s", got)
	}
	if got := f.store.Deal(d2.ID).State; got != gbdomain.StateOngoing {
		t.Fatalf("second deal must wait for the next round: %s", got)
	}

	f.sw.runOnce(context.Background())
	if got := f.store.Deal(d2.ID).State; got != gbdomain.StateFailed {
		t.Fatalf("second round must sweep the rest: %s", got)
	}
}

func TestRunOnceLeavesFreshRowsAlone(t *testing.T) {
	f := newFixture(t, 100)
	pending := f.seedPendingPayOrder(200, base.Add(-time.Minute))
	shipped := f.seedShippedOrder(300, base.Add(-time.Hour))

	f.sw.runOnce(context.Background())

	if got := f.store.Order(pending.ID).Status; got != orderdomain.StatusPendingPay {
		t.Fatalf("order inside payment window must be untouched: %s", got)
	}
	if got := f.store.Order(shipped.ID).Status; got != orderdomain.StatusShipped {
		t.Fatalf("order inside confirm window must be untouched: %s", got)
	}
}
