package repository

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
)

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository exposes the append-only transition history as a read
// model. Transitions are inserted by the checkpoint store's Save; nothing
// here ever mutates them.
func NewAuditRepository(db *gorm.DB) ports.AuditLog {
	return &auditRepository{db: db}
}

func (r *auditRepository) ListTransitions(ctx context.Context, threadID string) ([]domain.Transition, error) {
	var transitions []domain.Transition
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("at ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not list transitions")
	}
	return transitions, nil
}
