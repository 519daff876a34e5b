package repository

import (
	"context"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
)

type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository persists approval slots, one row per
// (thread, slot). Re-submission overwrites the existing row.
func NewApprovalRepository(db *gorm.DB) ports.ApprovalStore {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Upsert(ctx context.Context, slot *domain.ApprovalSlot) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "thread_id"}, {Name: "slot_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"decision", "actor", "comments", "decided_at",
		}),
	}).Create(slot).Error
	if err != nil {
		return pkgerrors.Wrap(err, "could not upsert approval slot")
	}
	return nil
}

func (r *approvalRepository) ListByThread(ctx context.Context, threadID string) ([]domain.ApprovalSlot, error) {
	var slots []domain.ApprovalSlot
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("slot_name ASC").
		Find(&slots).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not list approval slots")
	}
	return slots, nil
}

type dependencyRepository struct {
	db *gorm.DB
}

// NewDependencyRepository records upstream links declared at workflow
// start.
func NewDependencyRepository(db *gorm.DB) ports.DependencyStore {
	return &dependencyRepository{db: db}
}

func (r *dependencyRepository) Link(ctx context.Context, link *domain.DependencyLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}, {Name: "depends_on_thread_id"}},
		DoNothing: true,
	}).Create(link).Error
	if err != nil {
		return pkgerrors.Wrap(err, "could not record dependency link")
	}
	return nil
}
