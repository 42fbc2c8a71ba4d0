// internal/service/groupbuy/application/dto.go
package application

import (
	"time"

	"tuanbuy/internal/service/groupbuy/domain"
)

// CreateDealRequest 承载商家创建活动的入参。
// 价格单位为分；DurationDays 限制在 1~30 天。
type CreateDealRequest struct {
	ProductID       int64
	Title           string
	CoverImage      string
	Description     string
	GroupPrice      int64
	OriginalPrice   int64
	MinParticipants int
	MaxParticipants *int
	DurationDays    int
	IsFeatured      bool
	StartAt         *time.Time // 缺省立即开始
}

// JoinResult 返回给加入者的视图：参团记录加当前席位水位。
type JoinResult struct {
	Participation       *domain.Participation
	CurrentParticipants int
	MinParticipants     int
	MaxParticipants     *int
}

// DealDetail 是活动详情视图，带上调用方相关的状态。
type DealDetail struct {
	Deal             *domain.Deal
	RemainingSeconds int64
	IsJoined         bool
}
