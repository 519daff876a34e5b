package engine

import (
	"fmt"
	"sync"

	"procflow/internal/domain"
)

// Registry maps workflow types to their engines. Populated once at startup
// and read-only afterwards; the mutex only guards late registrations in
// tests.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: map[string]*Engine{}}
}

func (r *Registry) Register(e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wt := e.WorkflowType()
	if _, dup := r.engines[wt]; dup {
		return fmt.Errorf("workflow type %q registered twice", wt)
	}
	r.engines[wt] = e
	return nil
}

func (r *Registry) Get(workflowType string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[workflowType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownWorkflowType, workflowType)
	}
	return e, nil
}

// IsInterrupt reports whether a node of a workflow type is an interrupt
// node. Used by the notifier to detect awaiting-approval transitions;
// unknown types report false.
func (r *Registry) IsInterrupt(workflowType, node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.engines[workflowType]
	if !ok {
		return false
	}
	return e.Definition().IsInterrupt(node)
}
