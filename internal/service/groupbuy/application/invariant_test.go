// internal/service/groupbuy/application/invariant_test.go
package application

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"tuanbuy/internal/service/groupbuy/domain"
)

// TestConcurrentJoinCancelInvariants 让一群用户并发地随机加入/退出
// 同一个活动，结束后校验席位账本的不变量。存内存实现用同一把锁
// 串行化事务，与行锁语义一致。
func TestConcurrentJoinCancelInvariants(t *testing.T) {
	const (
		users  = 16
		rounds = 40
		maxCap = 8
	)

	f := newFixture(t)
	deal := f.seedOngoingDeal(3, intPtr(maxCap))

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		userID := int64(1000 + u)
		rng := rand.New(rand.NewSource(int64(u) + 1))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < rounds; i++ {
				var err error
				if rng.Intn(2) == 0 {
					_, err = f.svc.Join(ctx, deal.ID, userID)
				} else {
					err = f.svc.CancelParticipation(ctx, deal.ID, userID)
				}
				switch {
				case err == nil,
					errors.Is(err, domain.ErrAlreadyJoined),
					errors.Is(err, domain.ErrNotJoined),
					errors.Is(err, domain.ErrDealFull):
					// 业务上预期的结果
				default:
					t.Errorf("user %d: unexpected error: %v", userID, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	final := f.store.Deal(deal.ID)
	active := f.store.ActiveParticipants(deal.ID)

	if final.CurrentParticipants != len(active) {
		t.Fatalf("seat count %d != active participants %d", final.CurrentParticipants, len(active))
	}
	if final.CurrentParticipants < 0 || final.CurrentParticipants > maxCap {
		t.Fatalf("seat count out of range: %d", final.CurrentParticipants)
	}

	leaders := 0
	seen := map[int64]bool{}
	for _, p := range active {
		if p.IsLeader {
			leaders++
		}
		if seen[p.UserID] {
			t.Fatalf("user %d appears twice in the roster", p.UserID)
		}
		seen[p.UserID] = true
	}
	if len(active) > 0 && leaders != 1 {
		t.Fatalf("want exactly one leader among %d members, got %d", len(active), leaders)
	}
	if len(active) == 0 && leaders != 0 {
		t.Fatalf("empty roster cannot have a leader")
	}
}

// TestFinalizeRaceWithJoin 在临近截止时间的并发加入与终态化之间
// 校验定格语义：终态之后名单与计数不再变化。
func TestFinalizeRaceWithJoin(t *testing.T) {
	f := newFixture(t)
	deal := f.seedOngoingDeal(2, nil)

	if _, err := f.svc.Join(context.Background(), deal.ID, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Join(context.Background(), deal.ID, 200); err != nil {
		t.Fatal(err)
	}

	f.now = base.Add(25 * time.Hour)

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		userID := int64(300 + u)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Join(context.Background(), deal.ID, userID)
			if err != nil && !errors.Is(err, domain.ErrDealNotJoinable) {
				t.Errorf("user %d: unexpected error: %v", userID, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.svc.FinalizeDeal(context.Background(), deal.ID); err != nil {
			t.Errorf("finalize: %v", err)
		}
	}()
	wg.Wait()

	final := f.store.Deal(deal.ID)
	if final.State != domain.StateSucceeded {
		t.Fatalf("2 >= 2 members must succeed the deal: %s", final.State)
	}
	if final.CurrentParticipants != 2 {
		t.Fatalf("roster must be frozen at 2, got %d", final.CurrentParticipants)
	}
	if got := len(f.store.ActiveParticipants(deal.ID)); got != 2 {
		t.Fatalf("active participants: %d", got)
	}
}
