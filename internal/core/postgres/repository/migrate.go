package repository

import (
	"gorm.io/gorm"

	"procflow/internal/domain"
)

// AutoMigrate creates the checkpoint, transition, approval and dependency
// tables. Development convenience only; production schemas are managed by
// external migration tooling.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Checkpoint{},
		&domain.Transition{},
		&domain.ApprovalSlot{},
		&domain.DependencyLink{},
	)
}
