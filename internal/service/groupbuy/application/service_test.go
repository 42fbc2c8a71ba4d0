// internal/service/groupbuy/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"tuanbuy/internal/service/groupbuy/domain"
	orderdomain "tuanbuy/internal/service/order/domain"
	"tuanbuy/internal/storetest"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

type fixture struct {
	store    *storetest.Store
	notifier *storetest.RecordingNotifier
	cache    *storetest.MemoryCache
	svc      *GroupBuyService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storetest.New(),
		notifier: &storetest.RecordingNotifier{},
		cache:    storetest.NewMemoryCache(),
		now:      base,
	}
	f.svc = NewGroupBuyService(f.store.GroupBuy(), f.notifier, f.cache, noop.NewTracerProvider().Tracer(""))
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seedOngoingDeal(min int, max *int) *domain.Deal {
	return f.store.SeedDeal(&domain.Deal{
		MerchantID:      10,
		ProductID:       20,
		Title:           "fruit box",
		GroupPrice:      990,
		OriginalPrice:   1990,
		MinParticipants: min,
		MaxParticipants: max,
		State:           domain.StateOngoing,
		StartAt:         base.Add(-time.Hour),
		EndAt:           base.Add(24 * time.Hour),
	})
}

func TestCreateDeal(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct(&orderdomain.Product{ID: 20, MerchantID: 10, Title: "fruit box", Price: 1990, Stock: 100, Active: true})

	req := &CreateDealRequest{
		ProductID:       20,
		Title:           "fruit box deal",
		GroupPrice:      990,
		OriginalPrice:   1990,
		MinParticipants: 3,
		DurationDays:    3,
	}
	deal, err := f.svc.CreateDeal(context.Background(), 10, req)
	if err != nil {
		t.Fatal(err)
	}
	if deal.ID == 0 || deal.State != domain.StateOngoing {
		t.Fatalf("deal not persisted correctly: id=%d state=%s", deal.ID, deal.State)
	}

	// 同一商品的第二个活动被拒绝
	if _, err := f.svc.CreateDeal(context.Background(), 10, req); !errors.Is(err, domain.ErrDuplicateActiveDeal) {
		t.Fatalf("want ErrDuplicateActiveDeal, got %v", err)
	}

	// 他人的商品
	req2 := *req
	req2.ProductID = 99
	if _, err := f.svc.CreateDeal(context.Background(), 10, &req2); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("want ErrProductNotFound, got %v", err)
	}

	// 非法持续时间
	req3 := *req
	req3.DurationDays = 31
	if _, err := f.svc.CreateDeal(context.Background(), 10, &req3); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestCreateDealConfiguredMinMembers(t *testing.T) {
	f := newFixture(t)
	f.store.SeedProduct(&orderdomain.Product{ID: 20, MerchantID: 10, Title: "fruit box", Price: 1990, Stock: 100, Active: true})
	f.svc.WithMinMembers(3)

	req := &CreateDealRequest{
		ProductID:       20,
		Title:           "fruit box deal",
		GroupPrice:      990,
		OriginalPrice:   1990,
		MinParticipants: 2,
		DurationDays:    3,
	}
	if _, err := f.svc.CreateDeal(context.Background(), 10, req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("min below the configured floor must be rejected, got %v", err)
	}

	req.MinParticipants = 3
	if _, err := f.svc.CreateDeal(context.Background(), 10, req); err != nil {
		t.Fatal(err)
	}

	// 配置不能把硬底线降到 2 以下
	f2 := newFixture(t)
	f2.svc.WithMinMembers(1)
	f2.store.SeedProduct(&orderdomain.Product{ID: 20, MerchantID: 10, Title: "fruit box", Price: 1990, Stock: 100, Active: true})
	req.MinParticipants = 1
	if _, err := f2.svc.CreateDeal(context.Background(), 10, req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("a group of one is never a group, got %v", err)
	}
}

func TestJoinAssignsLeaderAndCounts(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	r1, err := f.svc.Join(context.Background(), deal.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !r1.Participation.IsLeader {
		t.Fatal("first joiner must be leader")
	}
	if r1.CurrentParticipants != 1 {
		t.Fatalf("count after first join: %d", r1.CurrentParticipants)
	}

	f.now = f.now.Add(time.Minute)
	r2, err := f.svc.Join(context.Background(), deal.ID, 200)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Participation.IsLeader {
		t.Fatal("second joiner must not be leader")
	}
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 2 {
		t.Fatalf("persisted count: want 2, got %d", got)
	}

	// 重复加入
	if _, err := f.svc.Join(context.Background(), deal.ID, 100); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("want ErrAlreadyJoined, got %v", err)
	}

	// 入队了两条 GroupJoined 事件
	if got := len(f.notifier.ByType(domain.EventGroupJoined)); got != 2 {
		t.Fatalf("want 2 join events, got %d", got)
	}
}

func TestJoinFullDeal(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(2, intPtr(2))

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Join(context.Background(), deal.ID, 200); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Join(context.Background(), deal.ID, 300); !errors.Is(err, domain.ErrDealFull) {
		t.Fatalf("want ErrDealFull, got %v", err)
	}
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 2 {
		t.Fatalf("failed join must not change count: %d", got)
	}
}

func TestRejoinReusesRow(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	r1, err := f.svc.Join(context.Background(), deal.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	firstRowID := r1.Participation.ID

	if err := f.svc.CancelParticipation(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 0 {
		t.Fatalf("count after cancel: %d", got)
	}

	f.now = f.now.Add(time.Minute)
	r2, err := f.svc.Join(context.Background(), deal.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Participation.ID != firstRowID {
		t.Fatalf("rejoin must reuse row %d, got %d", firstRowID, r2.Participation.ID)
	}
	if !r2.Participation.IsLeader {
		t.Fatal("sole rejoiner must become leader again")
	}
	if !r2.Participation.JoinedAt.Equal(f.now) {
		t.Fatal("rejoin must reset joined_at")
	}
}

func TestCancelParticipationReelectsLeader(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(time.Minute)
	if _, err := f.svc.Join(context.Background(), deal.ID, 200); err != nil {
		t.Fatal(err)
	}
	f.now = f.now.Add(time.Minute)
	if _, err := f.svc.Join(context.Background(), deal.ID, 300); err != nil {
		t.Fatal(err)
	}

	// 团长退出，最早加入的剩余成员接任
	if err := f.svc.CancelParticipation(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	if p := f.store.Participation(deal.ID, 200); !p.IsLeader {
		t.Fatal("user 200 must inherit leadership")
	}
	if p := f.store.Participation(deal.ID, 300); p.IsLeader {
		t.Fatal("user 300 must not be leader")
	}

	active := f.store.ActiveParticipants(deal.ID)
	leaders := 0
	for _, p := range active {
		if p.IsLeader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("exactly one leader expected, got %d", leaders)
	}
}

func TestCancelParticipationErrors(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	if err := f.svc.CancelParticipation(context.Background(), deal.ID, 100); !errors.Is(err, domain.ErrNotJoined) {
		t.Fatalf("want ErrNotJoined, got %v", err)
	}

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	p := f.store.Participation(deal.ID, 100)
	p.Status = domain.ParticipationPaid
	f.store.SeedParticipation(p)
	if err := f.svc.CancelParticipation(context.Background(), deal.ID, 100); !errors.Is(err, domain.ErrCannotCancelPaid) {
		t.Fatalf("want ErrCannotCancelPaid, got %v", err)
	}

	// 终态活动冻结名单
	d := f.store.Deal(deal.ID)
	d.State = domain.StateSucceeded
	f.store.SeedDeal(d)
	if err := f.svc.CancelParticipation(context.Background(), deal.ID, 100); !errors.Is(err, domain.ErrStateTerminal) {
		t.Fatalf("want ErrStateTerminal, got %v", err)
	}
}

func TestJoinExpiredDealFinalizesLazily(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(2, nil)

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}

	// 过了截止时间再来一个加入者
	f.now = base.Add(25 * time.Hour)
	_, err := f.svc.Join(context.Background(), deal.ID, 200)
	if !errors.Is(err, domain.ErrDealNotJoinable) {
		t.Fatalf("want ErrDealNotJoinable, got %v", err)
	}

	// 活动被顺手终态化：1 < 2，流团
	if got := f.store.Deal(deal.ID).State; got != domain.StateFailed {
		t.Fatalf("deal must be finalized to FAILED, got %s", got)
	}
	// 失败的加入不占席位
	if got := f.store.Deal(deal.ID).CurrentParticipants; got != 1 {
		t.Fatalf("count must stay 1, got %d", got)
	}
}

func TestFinalizeDeal(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(2, nil)

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Join(context.Background(), deal.ID, 200); err != nil {
		t.Fatal(err)
	}

	// 未到期不得终态化
	done, err := f.svc.FinalizeDeal(context.Background(), deal.ID)
	if err != nil || done {
		t.Fatalf("premature finalize: done=%v err=%v", done, err)
	}

	f.now = base.Add(25 * time.Hour)
	done, err = f.svc.FinalizeDeal(context.Background(), deal.ID)
	if err != nil || !done {
		t.Fatalf("finalize failed: done=%v err=%v", done, err)
	}
	if got := f.store.Deal(deal.ID).State; got != domain.StateSucceeded {
		t.Fatalf("want SUCCEEDED, got %s", got)
	}

	// 每个成员一条 + 商家一条
	events := f.notifier.ByType(domain.EventGroupSucceeded)
	if len(events) != 3 {
		t.Fatalf("want 3 succeeded events, got %d", len(events))
	}

	// 幂等
	done, err = f.svc.FinalizeDeal(context.Background(), deal.ID)
	if err != nil || done {
		t.Fatalf("repeated finalize must be a no-op: done=%v err=%v", done, err)
	}
}

func TestGetDealDetailCacheAndIsJoined(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}

	detail, err := f.svc.GetDealDetail(context.Background(), deal.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !detail.IsJoined {
		t.Fatal("caller 100 has joined")
	}
	if detail.RemainingSeconds <= 0 {
		t.Fatal("ongoing deal must have remaining time")
	}

	// 第二次走缓存
	if _, ok := f.cache.Get(context.Background(), deal.ID); !ok {
		t.Fatal("detail read must populate the cache")
	}

	detail, err = f.svc.GetDealDetail(context.Background(), deal.ID, 999)
	if err != nil {
		t.Fatal(err)
	}
	if detail.IsJoined {
		t.Fatal("caller 999 has not joined")
	}
}

func TestListDealsKeywordFilter(t *testing.T) {
	f := newFixture(t)
	f.seedOngoingDeal(3, nil)
	f.store.SeedDeal(&domain.Deal{
		MerchantID:      11,
		ProductID:       21,
		Title:           "tea sampler",
		GroupPrice:      500,
		OriginalPrice:   900,
		MinParticipants: 2,
		State:           domain.StateOngoing,
		StartAt:         base.Add(-time.Hour),
		EndAt:           base.Add(24 * time.Hour),
	})

	deals, total, err := f.svc.ListDeals(context.Background(), domain.ListDealsQuery{Keyword: "tea"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(deals) != 1 || deals[0].Title != "tea sampler" {
		t.Fatalf("keyword filter: total=%d deals=%+v", total, deals)
	}

	_, total, err = f.svc.ListDeals(context.Background(), domain.ListDealsQuery{Keyword: "durian"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Fatalf("no deal matches, got %d", total)
	}
}

func TestUpdateDealForbiddenForOtherMerchant(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(3, nil)

	title := "renamed"
	if _, err := f.svc.UpdateDeal(context.Background(), 999, deal.ID, domain.DealUpdate{Title: &title}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}

	updated, err := f.svc.UpdateDeal(context.Background(), 10, deal.ID, domain.DealUpdate{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("title not applied: %s", updated.Title)
	}
}
