// internal/service/order/infrastructure/migrate.go
package infrastructure

import (
	"gorm.io/gorm"

	gbinfra "tuanbuy/internal/service/groupbuy/infrastructure"
)

// Migrate 建出两个上下文共享的全部表结构。
// 只在进程启动时调用一次，生产环境的结构变更走独立的迁移流程。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&gbinfra.DealModel{},
		&gbinfra.ParticipationModel{},
		&ProductModel{},
		&SpecificationModel{},
		&OrderModel{},
		&OrderItemModel{},
		&PaymentModel{},
	)
}
