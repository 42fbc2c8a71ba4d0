// internal/service/groupbuy/domain/participation_test.go
package domain

import (
	"testing"
	"time"
)

func part(id, userID int64, joinedAt time.Time, leader bool) *Participation {
	return &Participation{
		ID:       id,
		DealID:   1,
		UserID:   userID,
		IsLeader: leader,
		Status:   ParticipationJoined,
		JoinedAt: joinedAt,
	}
}

func TestElectLeader(t *testing.T) {
	if got := ElectLeader(nil); got != nil {
		t.Fatal("empty roster must elect nobody")
	}

	a := part(3, 100, base.Add(time.Minute), false)
	b := part(1, 200, base.Add(2*time.Minute), false)
	c := part(2, 300, base.Add(time.Minute), false)

	// a 和 c 同时加入，ID 小的 c 胜出
	got := ElectLeader([]*Participation{b, a, c})
	if got != c {
		t.Fatalf("want participation %d elected, got %d", c.ID, got.ID)
	}

	// 输入顺序不影响结果
	again := ElectLeader([]*Participation{a, c, b})
	if again != c {
		t.Fatalf("election is order dependent: got %d", again.ID)
	}
}

func TestRejoinResetsLeadership(t *testing.T) {
	p := part(1, 100, base, true)
	p.Cancel()
	if p.Active() {
		t.Fatal("cancelled participation still active")
	}

	at := base.Add(time.Hour)
	p.Rejoin(at)
	if p.Status != ParticipationJoined {
		t.Fatalf("want JOINED, got %s", p.Status)
	}
	if p.IsLeader {
		t.Fatal("rejoin must not restore leadership")
	}
	if !p.JoinedAt.Equal(at) {
		t.Fatal("rejoin must reset joined_at")
	}
}

func TestReleaseSeat(t *testing.T) {
	t.Run("leader exit re-elects", func(t *testing.T) {
		deal := testDeal(StateOngoing, 3, 2, nil)
		leader := part(1, 100, base, true)
		second := part(2, 200, base.Add(time.Minute), false)
		third := part(3, 300, base.Add(2*time.Minute), false)

		newLeader := ReleaseSeat(deal, leader, []*Participation{second, third}, base.Add(time.Hour))
		if deal.CurrentParticipants != 2 {
			t.Fatalf("seat count: want 2, got %d", deal.CurrentParticipants)
		}
		if leader.Status != ParticipationCancelled || leader.IsLeader {
			t.Fatal("released participation must be cancelled and demoted")
		}
		if newLeader != second || !second.IsLeader {
			t.Fatal("earliest remaining member must become leader")
		}
	})

	t.Run("non-leader exit keeps leader", func(t *testing.T) {
		deal := testDeal(StateOngoing, 2, 2, nil)
		leader := part(1, 100, base, true)
		member := part(2, 200, base.Add(time.Minute), false)

		newLeader := ReleaseSeat(deal, member, []*Participation{leader}, base.Add(time.Hour))
		if newLeader != nil {
			t.Fatal("no re-election when a regular member leaves")
		}
		if !leader.IsLeader {
			t.Fatal("leader demoted by member exit")
		}
	})

	t.Run("last member leaves leader vacant", func(t *testing.T) {
		deal := testDeal(StateOngoing, 1, 2, nil)
		leader := part(1, 100, base, true)

		newLeader := ReleaseSeat(deal, leader, nil, base.Add(time.Hour))
		if newLeader != nil {
			t.Fatal("empty roster must leave leadership vacant")
		}
		if deal.CurrentParticipants != 0 {
			t.Fatalf("seat count: want 0, got %d", deal.CurrentParticipants)
		}
	})
}
