package ports

import (
	"context"

	"procflow/internal/domain"
)

// CheckpointStore is the durable mirror of workflow instances. Save is a
// compare-and-set on Version: it must fail with domain.ErrStaleVersion when
// the stored version advanced since the caller's Load.
type CheckpointStore interface {
	// Create persists a brand-new instance at version 0.
	Create(ctx context.Context, cp *domain.Checkpoint) error

	// Load returns the latest persisted instance or domain.ErrNotFound.
	Load(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// Save atomically bumps the version, writes position + state, and
	// appends the transition audit record (when non-nil) in one unit.
	Save(ctx context.Context, cp *domain.Checkpoint, trans *domain.Transition) error
}

// AuditLog is the read model over the append-only transition history. The
// engine only ever writes transitions (through CheckpointStore.Save); this
// interface exists for external traceability.
type AuditLog interface {
	ListTransitions(ctx context.Context, threadID string) ([]domain.Transition, error)
}

// ApprovalStore mirrors human decisions, one row per (thread, slot).
// Re-submission overwrites rather than duplicates.
type ApprovalStore interface {
	Upsert(ctx context.Context, slot *domain.ApprovalSlot) error
	ListByThread(ctx context.Context, threadID string) ([]domain.ApprovalSlot, error)
}

// DependencyStore records upstream links declared at start.
type DependencyStore interface {
	Link(ctx context.Context, link *domain.DependencyLink) error
}

// EntityStatusProvider reports the status of an upstream business entity
// (vendor, sku, price, po, grn). External collaborator from storage.
type EntityStatusProvider interface {
	GetStatus(ctx context.Context, entityType, entityID string) (*domain.EntityStatus, error)
}

// ContentProvider is the generative collaborator slotted into agent nodes
// (risk scoring, duplicate detection, OCR). Failures propagate as node
// errors; the engine never special-cases this interface.
type ContentProvider interface {
	Generate(ctx context.Context, req *domain.GenerateRequest) (*domain.GenerateResult, error)
}

// EventBus broadcasts committed transitions to external observers.
type EventBus interface {
	PublishTransition(ctx context.Context, event domain.TransitionEvent) error
	SubscribeToTransitions(ctx context.Context) (<-chan domain.TransitionEvent, error)
}
