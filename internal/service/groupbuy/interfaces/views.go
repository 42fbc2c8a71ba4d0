// internal/service/groupbuy/interfaces/views.go
package interfaces

import (
	"time"

	"tuanbuy/internal/pkg/money"
	"tuanbuy/internal/service/groupbuy/domain"
)

// DealView 是活动的 JSON 视图。金额渲染成 "12.50" 字符串，
// 时间一律 UTC RFC3339。
type DealView struct {
	ID                  int64  `json:"id"`
	MerchantID          int64  `json:"merchant_id"`
	ProductID           int64  `json:"product_id"`
	Title               string `json:"title"`
	CoverImage          string `json:"cover_image,omitempty"`
	Description         string `json:"description,omitempty"`
	GroupPrice          string `json:"group_price"`
	OriginalPrice       string `json:"original_price"`
	MinParticipants     int    `json:"min_participants"`
	MaxParticipants     *int   `json:"max_participants,omitempty"`
	CurrentParticipants int    `json:"current_participants"`
	State               string `json:"state"`
	IsFeatured          bool   `json:"is_featured"`
	StartAt             string `json:"start_at"`
	EndAt               string `json:"end_at"`
	CreatedAt           string `json:"created_at"`
}

func toDealView(d *domain.Deal) *DealView {
	return &DealView{
		ID:                  d.ID,
		MerchantID:          d.MerchantID,
		ProductID:           d.ProductID,
		Title:               d.Title,
		CoverImage:          d.CoverImage,
		Description:         d.Description,
		GroupPrice:          money.FormatCents(d.GroupPrice),
		OriginalPrice:       money.FormatCents(d.OriginalPrice),
		MinParticipants:     d.MinParticipants,
		MaxParticipants:     d.MaxParticipants,
		CurrentParticipants: d.CurrentParticipants,
		State:               string(d.State),
		IsFeatured:          d.IsFeatured,
		StartAt:             formatTime(d.StartAt),
		EndAt:               formatTime(d.EndAt),
		CreatedAt:           formatTime(d.CreatedAt),
	}
}

// DealDetailView 在 DealView 上追加调用方相关的状态。
type DealDetailView struct {
	DealView
	RemainingSeconds int64 `json:"remaining_seconds"`
	IsJoined         bool  `json:"is_joined"`
}

// ParticipationView 参团记录的 JSON 视图。
type ParticipationView struct {
	ID       int64  `json:"id"`
	DealID   int64  `json:"deal_id"`
	UserID   int64  `json:"user_id"`
	IsLeader bool   `json:"is_leader"`
	Status   string `json:"status"`
	JoinedAt string `json:"joined_at"`
}

func toParticipationView(p *domain.Participation) *ParticipationView {
	return &ParticipationView{
		ID:       p.ID,
		DealID:   p.DealID,
		UserID:   p.UserID,
		IsLeader: p.IsLeader,
		Status:   string(p.Status),
		JoinedAt: formatTime(p.JoinedAt),
	}
}

// JoinView 加入结果：参团记录加当前席位水位。
type JoinView struct {
	Participation       *ParticipationView `json:"participation"`
	CurrentParticipants int                `json:"current_participants"`
	MinParticipants     int                `json:"min_participants"`
	MaxParticipants     *int               `json:"max_participants,omitempty"`
}

// PageView 统一的分页信封。
type PageView struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
