// internal/service/groupbuy/infrastructure/mapper.go
package infrastructure

import (
	"tuanbuy/internal/service/groupbuy/domain"
)

// --- 数据库模型与领域模型的转换 ---

func toDomainDeal(m *DealModel) *domain.Deal {
	return &domain.Deal{
		ID:                  m.ID,
		MerchantID:          m.MerchantID,
		ProductID:           m.ProductID,
		Title:               m.Title,
		CoverImage:          m.CoverImage,
		Description:         m.Description,
		GroupPrice:          m.GroupPrice,
		OriginalPrice:       m.OriginalPrice,
		MinParticipants:     m.MinParticipants,
		MaxParticipants:     m.MaxParticipants,
		CurrentParticipants: m.CurrentParticipants,
		State:               domain.DealState(m.State),
		IsFeatured:          m.IsFeatured,
		StartAt:             m.StartAt,
		EndAt:               m.EndAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toDealModel(d *domain.Deal) *DealModel {
	return &DealModel{
		ID:                  d.ID,
		MerchantID:          d.MerchantID,
		ProductID:           d.ProductID,
		Title:               d.Title,
		CoverImage:          d.CoverImage,
		Description:         d.Description,
		GroupPrice:          d.GroupPrice,
		OriginalPrice:       d.OriginalPrice,
		MinParticipants:     d.MinParticipants,
		MaxParticipants:     d.MaxParticipants,
		CurrentParticipants: d.CurrentParticipants,
		State:               string(d.State),
		IsFeatured:          d.IsFeatured,
		StartAt:             d.StartAt,
		EndAt:               d.EndAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func toDomainParticipation(m *ParticipationModel) *domain.Participation {
	return &domain.Participation{
		ID:       m.ID,
		DealID:   m.DealID,
		UserID:   m.UserID,
		IsLeader: m.IsLeader,
		Status:   domain.ParticipationStatus(m.Status),
		JoinedAt: m.JoinedAt,
	}
}

func toParticipationModel(p *domain.Participation) *ParticipationModel {
	return &ParticipationModel{
		ID:       p.ID,
		DealID:   p.DealID,
		UserID:   p.UserID,
		IsLeader: p.IsLeader,
		Status:   string(p.Status),
		JoinedAt: p.JoinedAt,
	}
}
