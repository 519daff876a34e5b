package repository

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
)

type checkpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates the durable checkpoint store backed by
// Postgres.
func NewCheckpointRepository(db *gorm.DB) ports.CheckpointStore {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Create(ctx context.Context, cp *domain.Checkpoint) error {
	if err := r.db.WithContext(ctx).Create(cp).Error; err != nil {
		return pkgerrors.Wrap(err, "could not create checkpoint")
	}
	return nil
}

func (r *checkpointRepository) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "could not load checkpoint")
	}
	return &cp, nil
}

// Save is the compare-and-set write: the version in the WHERE clause must
// match the version the caller loaded, otherwise a concurrent update won
// and the caller must retry from a fresh load. Checkpoint update and audit
// record insert commit in one transaction.
func (r *checkpointRepository) Save(ctx context.Context, cp *domain.Checkpoint, trans *domain.Transition) error {
	loadedVersion := cp.Version
	now := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Checkpoint{}).
			Where("thread_id = ? AND version = ?", cp.ThreadID, loadedVersion).
			Updates(map[string]interface{}{
				"current_node": cp.CurrentNode,
				"state":        cp.State,
				"version":      loadedVersion + 1,
				"updated_at":   now,
			})
		if result.Error != nil {
			return pkgerrors.Wrap(result.Error, "could not update checkpoint")
		}
		if result.RowsAffected == 0 {
			return domain.ErrStaleVersion
		}

		if trans != nil {
			if err := tx.Create(trans).Error; err != nil {
				return pkgerrors.Wrap(err, "could not append transition")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cp.Version = loadedVersion + 1
	cp.UpdatedAt = now
	return nil
}
