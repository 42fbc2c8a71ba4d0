// internal/service/groupbuy/domain/deal.go
package domain

import (
	"fmt"
	"time"
)

// DealState 定义了团购活动的生命周期状态
type DealState string

const (
	StatePending   DealState = "PENDING"   // 已创建但未到开始时间
	StateOngoing   DealState = "ONGOING"   // 进行中，可加入
	StateSucceeded DealState = "SUCCEEDED" // 到期且人数达标，成团
	StateFailed    DealState = "FAILED"    // 到期且人数不足，流团
)

// Deal 是团购活动聚合的根实体。
// CurrentParticipants 是席位计数，必须与非取消的参团记录数严格一致，
// 所有修改它的操作都要求先对 Deal 行加排他锁。
type Deal struct {
	ID                  int64
	MerchantID          int64
	ProductID           int64
	Title               string
	CoverImage          string
	Description         string
	GroupPrice          int64 // 单位：分
	OriginalPrice       int64 // 单位：分
	MinParticipants     int
	MaxParticipants     *int // 不限人数时为 nil
	CurrentParticipants int
	State               DealState
	IsFeatured          bool
	StartAt             time.Time
	EndAt               time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewDeal 是工厂函数，校验创建参数并计算初始状态。
// 开始时间已到则直接进入 ONGOING，否则 PENDING。
func NewDeal(merchantID, productID int64, title string, groupPrice, originalPrice int64, minParticipants int, maxParticipants *int, startAt, endAt, now time.Time) (*Deal, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if groupPrice <= 0 {
		return nil, fmt.Errorf("%w: group price must be positive", ErrValidation)
	}
	if groupPrice > originalPrice {
		return nil, fmt.Errorf("%w: group price cannot exceed original price", ErrValidation)
	}
	if minParticipants < 2 {
		return nil, fmt.Errorf("%w: min participants must be at least 2", ErrValidation)
	}
	if maxParticipants != nil && *maxParticipants < minParticipants {
		return nil, fmt.Errorf("%w: max participants cannot be below min participants", ErrValidation)
	}
	if !endAt.After(startAt) {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}

	state := StatePending
	if !now.Before(startAt) {
		state = StateOngoing
	}

	return &Deal{
		MerchantID:      merchantID,
		ProductID:       productID,
		Title:           title,
		GroupPrice:      groupPrice,
		OriginalPrice:   originalPrice,
		MinParticipants: minParticipants,
		MaxParticipants: maxParticipants,
		State:           state,
		StartAt:         startAt,
		EndAt:           endAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// IsTerminal 判断活动是否已进入终态。终态后所有变更操作都被拒绝。
func (d *Deal) IsTerminal() bool {
	return d.State == StateSucceeded || d.State == StateFailed
}

// Activate 执行惰性的 PENDING -> ONGOING 流转。
// 没有独立的定时任务负责这一步：任何在开始时间之后第一次观察到
// 该活动的操作（查询、加入、扫描）都会触发它。
func (d *Deal) Activate(now time.Time) bool {
	if d.State == StatePending && !now.Before(d.StartAt) {
		d.State = StateOngoing
		d.UpdatedAt = now
		return true
	}
	return false
}

// Expired 判断活动是否已过截止时间。
func (d *Deal) Expired(now time.Time) bool {
	return !now.Before(d.EndAt)
}

// EvaluateOutcome 是纯函数：计算到期时刻的成团结果。
// 只有 ONGOING 且已到期的活动才有结果，否则返回 false。
func (d *Deal) EvaluateOutcome(now time.Time) (DealState, bool) {
	if d.State != StateOngoing || !d.Expired(now) {
		return d.State, false
	}
	if d.CurrentParticipants >= d.MinParticipants {
		return StateSucceeded, true
	}
	return StateFailed, true
}

// Finalize 把到期的 ONGOING 活动置为终态，返回是否发生了流转。
// 幂等：对已终态或未到期的活动调用是 no-op。
func (d *Deal) Finalize(now time.Time) (DealState, bool) {
	outcome, ok := d.EvaluateOutcome(now)
	if !ok {
		return d.State, false
	}
	d.State = outcome
	d.UpdatedAt = now
	return outcome, true
}

// CheckJoinable 校验当前时刻能否加入。调用方必须已持有行锁。
func (d *Deal) CheckJoinable(now time.Time) error {
	d.Activate(now)
	if d.State != StateOngoing || d.Expired(now) {
		return ErrDealNotJoinable
	}
	if d.MaxParticipants != nil && d.CurrentParticipants >= *d.MaxParticipants {
		return ErrDealFull
	}
	return nil
}

// DealUpdate 承载商家可编辑的字段，nil 表示不修改。
type DealUpdate struct {
	Title           *string
	CoverImage      *string
	Description     *string
	MinParticipants *int
	MaxParticipants *int
	EndAt           *time.Time
	IsFeatured      *bool
}

// ApplyUpdate 应用商家的编辑请求。
// 进行中的活动不允许做出会反向影响已占席位的修改：
//   - min 不能升到当前人数之上（降低总是允许，对成员只会更有利）
//   - max 不能压到当前人数以下
//   - 截止时间只能延长
func (d *Deal) ApplyUpdate(u DealUpdate, now time.Time) error {
	if d.IsTerminal() {
		return ErrStateTerminal
	}
	if u.MinParticipants != nil {
		if *u.MinParticipants < 2 {
			return fmt.Errorf("%w: min participants must be at least 2", ErrValidation)
		}
		if d.State == StateOngoing && *u.MinParticipants > d.CurrentParticipants && *u.MinParticipants > d.MinParticipants {
			return fmt.Errorf("%w: cannot raise min participants above current count", ErrValidation)
		}
		d.MinParticipants = *u.MinParticipants
	}
	if u.MaxParticipants != nil {
		if *u.MaxParticipants < d.MinParticipants {
			return fmt.Errorf("%w: max participants cannot be below min participants", ErrValidation)
		}
		if *u.MaxParticipants < d.CurrentParticipants {
			return fmt.Errorf("%w: max participants cannot be below current count", ErrValidation)
		}
		d.MaxParticipants = u.MaxParticipants
	}
	if u.EndAt != nil {
		if u.EndAt.Before(d.EndAt) {
			return fmt.Errorf("%w: end time can only be extended", ErrValidation)
		}
		d.EndAt = *u.EndAt
	}
	if u.Title != nil {
		if *u.Title == "" {
			return fmt.Errorf("%w: title is required", ErrValidation)
		}
		d.Title = *u.Title
	}
	if u.CoverImage != nil {
		d.CoverImage = *u.CoverImage
	}
	if u.Description != nil {
		d.Description = *u.Description
	}
	if u.IsFeatured != nil {
		d.IsFeatured = *u.IsFeatured
	}
	d.UpdatedAt = now
	return nil
}

// RemainingSeconds 距离截止的剩余秒数，已过期返回 0。
func (d *Deal) RemainingSeconds(now time.Time) int64 {
	if d.Expired(now) {
		return 0
	}
	return int64(d.EndAt.Sub(now).Seconds())
}
