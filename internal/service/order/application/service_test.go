// internal/service/order/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	gbapp "tuanbuy/internal/service/groupbuy/application"
	gbdomain "tuanbuy/internal/service/groupbuy/domain"
	"tuanbuy/internal/service/order/domain"
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
	cache    *storetest.MemoryCache
	refunds  *storetest.RecordingRefunds
	groupBuy *gbapp.GroupBuyService
	svc      *OrderService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storetest.New(),
		notifier: &storetest.RecordingNotifier{},
		cache:    storetest.NewMemoryCache(),
		refunds:  &storetest.RecordingRefunds{},
		now:      base,
	}
	tracer := noop.NewTracerProvider().Tracer("")
	clock := func() time.Time { return f.now }
	f.groupBuy = gbapp.NewGroupBuyService(f.store.GroupBuy(), f.notifier, f.cache, tracer).WithClock(clock)
	f.svc = NewOrderService(f.store.Orders(), f.notifier, f.cache, f.groupBuy, f.refunds, tracer,
		paymentWindow, autoConfirmWindow)
	f.svc.now = clock
	return f
}

// seedDealWithMember 准备一个进行中的活动、对应商品和一个已参团用户。
func (f *fixture) seedDealWithMember(t *testing.T, userID int64, stock int) *gbdomain.Deal {
	t.Helper()
	f.store.SeedProduct(&domain.Product{ID: 20, MerchantID: 10, Title: "fruit box", Price: 1990, Stock: stock, Active: true})
	deal := f.store.SeedDeal(&gbdomain.Deal{
		MerchantID:      10,
		ProductID:       20,
		Title:           "fruit box deal",
		GroupPrice:      990,
		OriginalPrice:   1990,
		MinParticipants: 2,
		State:           gbdomain.StateOngoing,
		StartAt:         base.Add(-time.Hour),
		EndAt:           base.Add(24 * time.Hour),
	})
	if _, err := f.groupBuy.Join(context.Background(), deal.ID, userID); err != nil {
		t.Fatal(err)
	}
	return deal
}

func dealOrderRequest(dealID int64, qty int) *CreateOrderRequest {
	return &CreateOrderRequest{
		DealID:    &dealID,
		AddressID: 1,
		Items:     []OrderItemRequest{{ProductID: 20, Quantity: qty}},
	}
}

func TestCreateDealOrder(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)

	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 2))
	if err != nil {
		t.Fatal(err)
	}
	if order.Status != domain.StatusPendingPay {
		t.Fatalf("status: %s", order.Status)
	}
	if order.MerchantID != 10 {
		t.Fatalf("merchant must come from the deal, got %d", order.MerchantID)
	}
	if order.TotalAmount != 2*990 {
		t.Fatalf("total must use the group price: %d", order.TotalAmount)
	}
	if got := f.store.Product(20).Stock; got != 8 {
		t.Fatalf("stock must be decremented: %d", got)
	}

	// 同一 (user, deal) 不允许第二张有效订单
	if _, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1)); !errors.Is(err, domain.ErrDuplicateDealOrder) {
		t.Fatalf("want ErrDuplicateDealOrder, got %v", err)
	}
}

func TestCreateDealOrderRequiresMembership(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)

	if _, err := f.svc.CreateOrder(context.Background(), 999, dealOrderRequest(deal.ID, 1)); !errors.Is(err, gbdomain.ErrNotJoined) {
		t.Fatalf("want ErrNotJoined, got %v", err)
	}

	// 参团记录已是 PAID：说明前一单已支付，同样拒绝
	p := f.store.Participation(deal.ID, 100)
	p.Status = gbdomain.ParticipationPaid
	f.store.SeedParticipation(p)
	if _, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1)); !errors.Is(err, domain.ErrDuplicateDealOrder) {
		t.Fatalf("want ErrDuplicateDealOrder, got %v", err)
	}
}

func TestCreateDealOrderExpiredDealFinalizes(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)

	f.now = base.Add(25 * time.Hour)
	_, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if !errors.Is(err, gbdomain.ErrDealNotJoinable) {
		t.Fatalf("want ErrDealNotJoinable, got %v", err)
	}
	if got := f.store.Deal(deal.ID).State; got != gbdomain.StateFailed {
		t.Fatalf("deal must be finalized, got %s", got)
	}
	if got := f.store.Product(20).Stock; got != 10 {
		t.Fatalf("stock must be untouched: %d", got)
	}
}

func TestCreateOrderOutOfStockRollsBack(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 1)

	_, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 2))
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("want ErrOutOfStock, got %v", err)
	}
	if got := f.store.Product(20).Stock; got != 1 {
		t.Fatalf("stock must be untouched: %d", got)
	}
	// 回滚后对该活动仍可下单
	if _, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1)); err != nil {
		t.Fatal(err)
	}
}

func TestCreatePlainOrder(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct(&domain.Product{ID: 30, MerchantID: 11, Title: "tea", Price: 500, Stock: 5, Active: true})

	order, err := f.svc.CreateOrder(context.Background(), 100, &CreateOrderRequest{
		MerchantID: 11,
		AddressID:  1,
		Items:      []OrderItemRequest{{ProductID: 30, Quantity: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if order.TotalAmount != 1500 {
		t.Fatalf("total: %d", order.TotalAmount)
	}
	if got := f.store.Product(30).Stock; got != 2 {
		t.Fatalf("stock: %d", got)
	}

	if _, err := f.svc.CreateOrder(context.Background(), 100, &CreateOrderRequest{MerchantID: 11}); !errors.Is(err, domain.ErrEmptyOrder) {
		t.Fatalf("want ErrEmptyOrder, got %v", err)
	}
}

func TestPayOrder(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Amount != 990 || result.PaymentNo == "" {
		t.Fatalf("unexpected pay result: %+v", result)
	}
	if got := f.store.Order(order.ID).Status; got != domain.StatusPaid {
		t.Fatalf("order status: %s", got)
	}
	if got := f.store.Payment(order.ID); got == nil || got.Status != domain.PaymentPaid {
		t.Fatalf("payment row missing or not paid: %+v", got)
	}
	// 支付成功传导到参团记录
	if got := f.store.Participation(deal.ID, 100).Status; got != gbdomain.ParticipationPaid {
		t.Fatalf("participation status: %s", got)
	}
	if got := len(f.notifier.ByType(gbdomain.EventOrderPaid)); got != 1 {
		t.Fatalf("want 1 paid event, got %d", got)
	}

	// 重复支付
	if _, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"}); !errors.Is(err, domain.ErrOrderStateInvalid) {
		t.Fatalf("want ErrOrderStateInvalid, got %v", err)
	}
}

func TestPayOrderPastWindowCancels(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	f.now = base.Add(paymentWindow + time.Minute)
	_, err = f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"})
	if !errors.Is(err, domain.ErrPaymentExpired) {
		t.Fatalf("want ErrPaymentExpired, got %v", err)
	}
	// 取消已提交：订单终态、库存回补、席位释放
	if got := f.store.Order(order.ID).Status; got != domain.StatusCancelled {
		t.Fatalf("order status: %s", got)
	}
	if got := f.store.Product(20).Stock; got != 10 {
		t.Fatalf("stock must be restored: %d", got)
	}
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 0 {
		t.Fatalf("seat must be released: %d", got)
	}
	if got := f.store.Participation(deal.ID, 100).Status; got != gbdomain.ParticipationCancelled {
		t.Fatalf("participation status: %s", got)
	}
}

func TestPayOrderAfterDealExpiryFinalizes(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	// 第二个成员使人数达到门槛
	if _, err := f.groupBuy.Join(context.Background(), deal.ID, 101); err != nil {
		t.Fatal(err)
	}
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	// 活动先于支付窗口到期
	f.now = base.Add(25 * time.Hour)
	_, err = f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"})
	if !errors.Is(err, domain.ErrPaymentExpired) {
		t.Fatalf("want ErrPaymentExpired, got %v", err)
	}
	if got := f.store.Order(order.ID).Status; got != domain.StatusCancelled {
		t.Fatalf("order status: %s", got)
	}
	if got := f.store.Product(20).Stock; got != 10 {
		t.Fatalf("stock must be restored: %d", got)
	}
	// 未支付者的席位先释放，再终态化：只剩 1 人，流团
	final := f.store.Deal(deal.ID)
	if final.State != gbdomain.StateFailed {
		t.Fatalf("deal must be finalized to FAILED: %s", final.State)
	}
	if final.CurrentParticipants != 1 {
		t.Fatalf("seat count: %d", final.CurrentParticipants)
	}
}

func TestCancelPendingPayOrder(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := f.svc.CancelOrder(context.Background(), 100, order.ID, "changed my mind")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("status: %s", cancelled.Status)
	}
	if got := f.store.Product(20).Stock; got != 10 {
		t.Fatalf("stock must be restored: %d", got)
	}
	if len(f.refunds.Refunds) != 0 {
		t.Fatal("no refund for an unpaid order")
	}
	if got := len(f.notifier.ByType(gbdomain.EventOrderCancelled)); got != 1 {
		t.Fatalf("want 1 cancelled event, got %d", got)
	}
}

func TestCancelPaidOrderRefunds(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"}); err != nil {
		t.Fatal(err)
	}

	cancelled, err := f.svc.CancelOrder(context.Background(), 100, order.ID, "refund please")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != domain.StatusRefunded {
		t.Fatalf("status: %s", cancelled.Status)
	}
	payment := f.store.Payment(order.ID)
	if payment.Status != domain.PaymentRefunded || payment.RefundedAt == nil {
		t.Fatalf("payment not refunded: %+v", payment)
	}
	if len(f.refunds.Refunds) != 1 || f.refunds.Refunds[0].Amount != 990 {
		t.Fatalf("refund not enqueued: %+v", f.refunds.Refunds)
	}
	if got := f.store.Product(20).Stock; got != 10 {
		t.Fatalf("stock must be restored: %d", got)
	}
	// 活动未终态，席位释放
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 0 {
		t.Fatalf("seat must be released: %d", got)
	}
}

func TestCancelPaidOrderAfterDealSucceededKeepsRoster(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"}); err != nil {
		t.Fatal(err)
	}

	// 活动定格为成团
	d := f.store.Deal(deal.ID)
	d.State = gbdomain.StateSucceeded
	f.store.SeedDeal(d)

	if _, err := f.svc.CancelOrder(context.Background(), 100, order.ID, "refund"); err != nil {
		t.Fatal(err)
	}
	if len(f.refunds.Refunds) != 1 {
		t.Fatal("refund must still be enqueued")
	}
	// 成团结果已定格：名单与计数不回改
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 1 {
		t.Fatalf("seat count must be frozen: %d", got)
	}
	if got := f.store.Participation(deal.ID, 100).Status; got != gbdomain.ParticipationPaid {
		t.Fatalf("participation must be untouched: %s", got)
	}
}

func TestDeliverAndConfirm(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"}); err != nil {
		t.Fatal(err)
	}

	// 非本商家发货
	if _, err := f.svc.DeliverOrder(context.Background(), 999, order.ID, "SF", "sf-001"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	shipped, err := f.svc.DeliverOrder(context.Background(), 10, order.ID, "SF", "sf-001")
	if err != nil {
		t.Fatal(err)
	}
	if shipped.Status != domain.StatusShipped || shipped.ShippedAt == nil {
		t.Fatalf("not shipped: %+v", shipped)
	}
	if got := len(f.notifier.ByType(gbdomain.EventOrderShipped)); got != 1 {
		t.Fatalf("want 1 shipped event, got %d", got)
	}

	completed, err := f.svc.ConfirmReceipt(context.Background(), 100, order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if completed.Status != domain.StatusCompleted {
		t.Fatalf("status: %s", completed.Status)
	}

	// 已发货/已完成的单不可取消
	if _, err := f.svc.CancelOrder(context.Background(), 100, order.ID, "too late"); !errors.Is(err, domain.ErrOrderStateInvalid) {
		t.Fatalf("want ErrOrderStateInvalid, got %v", err)
	}
}

func TestAutoCancelExpired(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	// 未超时不动
	done, err := f.svc.AutoCancelExpired(context.Background(), order.ID)
	if err != nil || done {
		t.Fatalf("premature cancel: done=%v err=%v", done, err)
	}

	f.now = base.Add(paymentWindow + time.Minute)
	done, err = f.svc.AutoCancelExpired(context.Background(), order.ID)
	if err != nil || !done {
		t.Fatalf("cancel failed: done=%v err=%v", done, err)
	}
	if got := f.store.Order(order.ID).Status; got != domain.StatusCancelled {
		t.Fatalf("order status: %s", got)
	}

	// 幂等：再扫一遍无动作
	done, err = f.svc.AutoCancelExpired(context.Background(), order.ID)
	if err != nil || done {
		t.Fatalf("second pass must be a no-op: done=%v err=%v", done, err)
	}

	// 不存在的单直接跳过
	done, err = f.svc.AutoCancelExpired(context.Background(), 424242)
	if err != nil || done {
		t.Fatalf("missing order: done=%v err=%v", done, err)
	}
}

func TestAutoCancelExpiredReelectsLeader(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	f.now = base.Add(time.Minute)
	if _, err := f.groupBuy.Join(context.Background(), deal.ID, 101); err != nil {
		t.Fatal(err)
	}
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	f.now = base.Add(paymentWindow + time.Hour)
	done, err := f.svc.AutoCancelExpired(context.Background(), order.ID)
	if err != nil || !done {
		t.Fatalf("cancel failed: done=%v err=%v", done, err)
	}

	// 团长的单被自动取消，席位释放，剩下的成员接任团长
	if got := f.store.Participation(deal.ID, 100).Status; got != gbdomain.ParticipationCancelled {
		t.Fatalf("payer's participation must be cancelled: %s", got)
	}
	if p := f.store.Participation(deal.ID, 101); !p.IsLeader {
		t.Fatal("remaining member must inherit leadership")
	}
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 1 {
		t.Fatalf("seat count: %d", got)
	}
}

func TestAutoComplete(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PayOrder(context.Background(), 100, order.ID, &PayOrderRequest{Method: "wechat"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.DeliverOrder(context.Background(), 10, order.ID, "SF", "sf-001"); err != nil {
		t.Fatal(err)
	}

	done, err := f.svc.AutoComplete(context.Background(), order.ID)
	if err != nil || done {
		t.Fatalf("within grace period: done=%v err=%v", done, err)
	}

	f.now = f.now.Add(autoConfirmWindow + time.Hour)
	done, err = f.svc.AutoComplete(context.Background(), order.ID)
	if err != nil || !done {
		t.Fatalf("auto complete failed: done=%v err=%v", done, err)
	}
	if got := f.store.Order(order.ID).Status; got != domain.StatusCompleted {
		t.Fatalf("order status: %s", got)
	}
}

func TestGetOrderVisibility(t *testing.T) {
	f := newFixture(t)
	deal := f.seedDealWithMember(t, 100, 10)
	order, err := f.svc.CreateOrder(context.Background(), 100, dealOrderRequest(deal.ID, 1))
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := f.svc.GetOrder(context.Background(), 100, order.ID); err != nil {
		t.Fatal(err)
	}
	// 商家也可见
	if _, _, err := f.svc.GetOrder(context.Background(), 10, order.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.svc.GetOrder(context.Background(), 999, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}
