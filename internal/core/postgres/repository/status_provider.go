package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
)

type statusProvider struct {
	db *gorm.DB
}

// NewStatusProvider reports entity status straight from the owning
// workflow instance's checkpoint: the entity id is the thread id of the
// workflow that onboarded it, and the status is the instance's
// current_status field.
func NewStatusProvider(db *gorm.DB) ports.EntityStatusProvider {
	return &statusProvider{db: db}
}

func (p *statusProvider) GetStatus(ctx context.Context, entityType, entityID string) (*domain.EntityStatus, error) {
	workflowType, ok := domain.WorkflowTypeForEntity(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}

	var cp domain.Checkpoint
	err := p.db.WithContext(ctx).
		Where("thread_id = ? AND workflow_type = ?", entityID, workflowType).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	state, err := cp.StateDocument()
	if err != nil {
		return nil, err
	}
	return &domain.EntityStatus{
		Status:      state.String(domain.FieldCurrentStatus),
		LastUpdated: cp.UpdatedAt,
	}, nil
}
