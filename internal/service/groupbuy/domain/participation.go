// internal/service/groupbuy/domain/participation.go
package domain

import (
	"sort"
	"time"
)

// ParticipationStatus 定义了参团记录的状态
type ParticipationStatus string

const (
	ParticipationJoined    ParticipationStatus = "JOINED"    // 已加入，未支付
	ParticipationPaid      ParticipationStatus = "PAID"      // 已支付
	ParticipationCancelled ParticipationStatus = "CANCELLED" // 已取消（主动退出或订单退款）
)

// Participation 是用户在某个团购活动中的成员记录。
// 逻辑键是 (DealID, UserID)：同一用户对同一活动最多只有一条非取消记录，
// 取消后重新加入时复用原行而不是新插入一条。
type Participation struct {
	ID       int64
	DealID   int64
	UserID   int64
	IsLeader bool
	Status   ParticipationStatus
	JoinedAt time.Time
}

// Active 判断该记录是否还占着席位。
func (p *Participation) Active() bool {
	return p.Status != ParticipationCancelled
}

// Rejoin 复用一条已取消的记录重新入团。
func (p *Participation) Rejoin(now time.Time) {
	p.Status = ParticipationJoined
	p.IsLeader = false
	p.JoinedAt = now
}

// Cancel 释放席位。团长身份随之失效，由调用方负责重新选举。
func (p *Participation) Cancel() {
	p.Status = ParticipationCancelled
	p.IsLeader = false
}

// ElectLeader 从存活的参团记录中选出团长：按加入时间升序，
// 时间相同按 ID 升序，保证选举结果是确定性的。
// 返回被选中的记录；列表为空时返回 nil（团长空缺）。
func ElectLeader(active []*Participation) *Participation {
	if len(active) == 0 {
		return nil
	}
	sorted := make([]*Participation, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

// ReleaseSeat 封装了释放一个席位的完整领域规则，供主动退团、
// 订单取消、订单退款三条路径共用：
//  1. 参团记录置为 CANCELLED
//  2. 活动席位数减一
//  3. 如果退出的是团长，从剩余成员中重选；无人剩余则团长空缺
//
// remaining 必须是提交事务前查出的、不含 p 的存活成员列表。
// 返回新团长（可能为 nil），调用方负责持久化所有被修改的实体。
func ReleaseSeat(deal *Deal, p *Participation, remaining []*Participation, now time.Time) *Participation {
	wasLeader := p.IsLeader
	p.Cancel()
	if deal.CurrentParticipants > 0 {
		deal.CurrentParticipants--
	}
	deal.UpdatedAt = now

	if !wasLeader {
		return nil
	}
	newLeader := ElectLeader(remaining)
	if newLeader != nil {
		newLeader.IsLeader = true
	}
	return newLeader
}
