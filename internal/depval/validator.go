// Package depval holds the stateless dependency predicates consulted by
// node functions before a stage may advance: a SKU cannot proceed until
// its vendor is approved, a price until its SKU, and so on. A failed check
// is a normal rejection with a reason, never a retry loop.
package depval

import (
	"context"
	"errors"
	"fmt"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
)

type Validator struct {
	statuses ports.EntityStatusProvider
}

func New(statuses ports.EntityStatusProvider) *Validator {
	return &Validator{statuses: statuses}
}

// IsApproved reports whether the upstream entity reached the success
// terminal. A missing entity is simply not approved.
func (v *Validator) IsApproved(ctx context.Context, entityType, entityID string) (bool, error) {
	status, err := v.statuses.GetStatus(ctx, entityType, entityID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status.Status == domain.StatusApproved, nil
}

// Exists reports whether the upstream entity is known at all, regardless
// of its approval state.
func (v *Validator) Exists(ctx context.Context, entityType, entityID string) (bool, error) {
	_, err := v.statuses.GetStatus(ctx, entityType, entityID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RequireApproved returns a human-readable reason naming the unmet
// dependency, or "" when the dependency is satisfied. Infrastructure
// failures are returned as errors so the caller stays retryable.
func (v *Validator) RequireApproved(ctx context.Context, entityType, entityID string) (string, error) {
	ok, err := v.IsApproved(ctx, entityType, entityID)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf("dependency not satisfied: %s %q is not approved", entityType, entityID), nil
	}
	return "", nil
}
