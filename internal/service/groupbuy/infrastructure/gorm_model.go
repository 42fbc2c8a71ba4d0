// internal/service/groupbuy/infrastructure/gorm_model.go
package infrastructure

import "time"

// DealModel 对应数据库中的 deals 表。
// (state, end_at) 联合索引服务扫描任务的到期查询。
type DealModel struct {
	ID                  int64  `gorm:"primaryKey;autoIncrement"`
	MerchantID          int64  `gorm:"not null;index"`
	ProductID           int64  `gorm:"not null;index"`
	Title               string `gorm:"size:128;not null"`
	CoverImage          string `gorm:"size:512"`
	Description         string `gorm:"type:text"`
	GroupPrice          int64  `gorm:"not null"`
	OriginalPrice       int64  `gorm:"not null"`
	MinParticipants     int    `gorm:"not null"`
	MaxParticipants     *int
	CurrentParticipants int    `gorm:"not null;default:0"`
	State               string `gorm:"size:16;not null;index:idx_deals_state_end,priority:1"`
	IsFeatured          bool
	StartAt             time.Time `gorm:"not null"`
	EndAt               time.Time `gorm:"not null;index:idx_deals_state_end,priority:2"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (DealModel) TableName() string { return "deals" }

// ParticipationModel 对应 deal_participants 表。
// (deal_id, user_id) 唯一：取消后重新加入复用同一行，
// 这样普通唯一索引就能表达“每人每团最多一条非取消记录”。
type ParticipationModel struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	DealID   int64  `gorm:"not null;uniqueIndex:uniq_deal_user,priority:1"`
	UserID   int64  `gorm:"not null;uniqueIndex:uniq_deal_user,priority:2"`
	IsLeader bool   `gorm:"not null;default:false"`
	Status   string `gorm:"size:16;not null;index"`
	JoinedAt time.Time
}

func (ParticipationModel) TableName() string { return "deal_participants" }
