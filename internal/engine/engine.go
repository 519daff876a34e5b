// Package engine interprets a workflow definition against one instance's
// state: it advances through nodes until an interrupt node, a terminal
// node, or the step budget, persisting position + state + version after
// every transition. Suspension holds no resource; a suspended instance is
// indistinguishable from a terminated process until resume is called.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procflow/internal/core/ports"
	"procflow/internal/domain"
	"procflow/internal/graph"
	"procflow/internal/metrics"
)

// DefaultStepBudget bounds a single run pass. The sanctioned
// wait-for-approvals loop costs two steps per resume, so real workflows
// stay far below this; hitting it means a misconfigured conditional edge.
const DefaultStepBudget = 50

// InitFunc decodes and validates a caller-supplied initial payload into
// the workflow type's state document. Shape failures (undecodable JSON)
// return domain.ValidationError; missing business fields are left for the
// workflow's validation node to route to the rejection terminal.
type InitFunc func(threadID string, raw json.RawMessage) (domain.State, error)

type Engine struct {
	def   *graph.Definition
	init  InitFunc
	store ports.CheckpointStore
	bus   ports.EventBus
	met   *metrics.Metrics
	log   *slog.Logger
	steps int
}

type Option func(*Engine)

func WithEventBus(bus ports.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.met = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithStepBudget(n int) Option {
	return func(e *Engine) { e.steps = n }
}

func New(def *graph.Definition, init InitFunc, store ports.CheckpointStore, opts ...Option) *Engine {
	e := &Engine{
		def:   def,
		init:  init,
		store: store,
		log:   slog.Default(),
		steps: DefaultStepBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("workflow_type", def.WorkflowType())
	return e
}

func (e *Engine) WorkflowType() string { return e.def.WorkflowType() }

// Definition exposes the graph for read-only queries (notifier, service).
func (e *Engine) Definition() *graph.Definition { return e.def }

// Start creates the instance at the entry node with version 0, persists
// it, then immediately performs a run pass.
func (e *Engine) Start(ctx context.Context, threadID string, raw json.RawMessage) (*domain.Checkpoint, error) {
	state, err := e.init(threadID, raw)
	if err != nil {
		return nil, err
	}

	cp, err := domain.NewCheckpoint(threadID, e.def.WorkflowType(), e.def.Entry(), state)
	if err != nil {
		return nil, err
	}
	if err := e.store.Create(ctx, cp); err != nil {
		return nil, err
	}

	e.met.WorkflowStarted(e.def.WorkflowType())
	e.log.Info("workflow started", "thread_id", threadID)

	return e.runPass(ctx, cp, state, false, "")
}

// Resume merges external updates into a suspended instance and continues
// execution. Fails with InvalidResumeError unless the instance is sitting
// at an interrupt node. Safe to call twice with the same payload: the merge
// is idempotent, and a racing resume on the same thread observes
// ErrStaleVersion instead of double-applying.
func (e *Engine) Resume(ctx context.Context, threadID string, updates map[string]any, actor string) (*domain.Checkpoint, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !e.def.IsInterrupt(cp.CurrentNode) {
		return nil, &domain.InvalidResumeError{ThreadID: threadID, CurrentNode: cp.CurrentNode}
	}

	state, err := cp.StateDocument()
	if err != nil {
		return nil, err
	}
	state = state.Merge(updates)
	if err := e.def.CheckState(state); err != nil {
		return nil, err
	}

	e.met.WorkflowResumed(e.def.WorkflowType())
	e.log.Debug("workflow resumed", "thread_id", threadID, "node", cp.CurrentNode, "actor", actor)

	return e.runPass(ctx, cp, state, true, actor)
}

// Run re-drives an instance from its current node without merging any
// updates. This is the retry path after a collaborator failure: the
// instance was left at the failed node with its error field set, and a
// fresh run pass re-invokes the same node. Legal from any non-terminal
// node; at an interrupt node it suspends again without executing anything.
func (e *Engine) Run(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if e.def.IsTerminal(cp.CurrentNode) {
		return nil, &domain.InvalidResumeError{ThreadID: threadID, CurrentNode: cp.CurrentNode}
	}

	state, err := cp.StateDocument()
	if err != nil {
		return nil, err
	}
	state = state.WithError("")

	e.log.Debug("workflow re-driven", "thread_id", threadID, "node", cp.CurrentNode)
	return e.runPass(ctx, cp, state, false, "")
}

// Cancel drives a suspended instance to the cancelled terminal. Modeled as
// a normal transition with actor and reason; only legal from an interrupt
// node, mirroring the resume contract.
func (e *Engine) Cancel(ctx context.Context, threadID, actor, reason string) (*domain.Checkpoint, error) {
	cancel := e.def.CancelNode()
	if cancel == "" {
		return nil, &domain.ConfigurationError{WorkflowType: e.def.WorkflowType(), Detail: "cancellation not declared"}
	}

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !e.def.IsInterrupt(cp.CurrentNode) {
		return nil, &domain.InvalidResumeError{ThreadID: threadID, CurrentNode: cp.CurrentNode}
	}

	state, err := cp.StateDocument()
	if err != nil {
		return nil, err
	}
	state = state.Clone()
	state[domain.FieldCurrentStatus] = domain.StatusCancelled
	state[domain.FieldUpdatedAt] = time.Now()

	if err := e.commit(ctx, cp, state, cp.CurrentNode, cancel, actor, reason); err != nil {
		return nil, err
	}
	e.log.Info("workflow cancelled", "thread_id", threadID, "actor", actor)
	return cp, nil
}

// Inspect returns a read-only snapshot; it never mutates the instance.
func (e *Engine) Inspect(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return e.store.Load(ctx, threadID)
}

// runPass advances the instance until it suspends, terminates, or exhausts
// the step budget. fromResume permits executing the interrupt node the
// instance is currently parked at; in every other case the engine suspends
// before executing an interrupt node.
func (e *Engine) runPass(ctx context.Context, cp *domain.Checkpoint, state domain.State, fromResume bool, actor string) (*domain.Checkpoint, error) {
	started := time.Now()
	defer e.met.ObserveRunPass(e.def.WorkflowType(), started)

	for step := 0; step < e.steps; step++ {
		node := cp.CurrentNode

		if e.def.IsTerminal(node) {
			return cp, nil
		}
		if e.def.IsInterrupt(node) && !(fromResume && step == 0) {
			e.met.Suspended(e.def.WorkflowType(), node)
			e.log.Info("workflow suspended", "thread_id", cp.ThreadID, "node", node)
			return cp, nil
		}

		fn, err := e.def.Node(node)
		if err != nil {
			return cp, err
		}

		next, err := fn(ctx, state)
		if err != nil {
			return cp, e.recordNodeFailure(ctx, cp, state, node, err)
		}

		target, err := e.def.Next(node, next)
		if err != nil {
			return cp, err
		}

		transitionActor := ""
		if fromResume && step == 0 {
			transitionActor = actor
		}
		if err := e.commit(ctx, cp, next, node, target, transitionActor, transitionReason(next)); err != nil {
			return cp, err
		}
		state = next
	}

	return cp, fmt.Errorf("%w: workflow %q stopped at %q after %d steps",
		domain.ErrStepBudgetExhausted, e.def.WorkflowType(), cp.CurrentNode, e.steps)
}

// commit persists the transition and the new instance atomically, then
// publishes the transition event best-effort.
func (e *Engine) commit(ctx context.Context, cp *domain.Checkpoint, state domain.State, from, to, actor, reason string) error {
	if err := cp.SetStateDocument(state); err != nil {
		return err
	}
	cp.CurrentNode = to

	trans := domain.NewTransition(cp.ThreadID, from, to, actor, reason)
	if err := e.store.Save(ctx, cp, trans); err != nil {
		cp.CurrentNode = from
		return err
	}

	e.met.TransitionCommitted(e.def.WorkflowType(), to)
	e.log.Debug("transition committed", "thread_id", cp.ThreadID, "from", from, "to", to, "version", cp.Version)
	e.publish(ctx, cp, trans)
	return nil
}

// recordNodeFailure implements the collaborator error contract: persist the
// failure on the instance's error field, keep the position unchanged so the
// node can be retried, and surface the error to the caller.
func (e *Engine) recordNodeFailure(ctx context.Context, cp *domain.Checkpoint, state domain.State, node string, cause error) error {
	var collab *domain.CollaboratorError
	if !errors.As(cause, &collab) {
		collab = &domain.CollaboratorError{Node: node, Err: cause}
	}

	failed := state.WithError(collab.Error())
	if err := cp.SetStateDocument(failed); err != nil {
		return err
	}
	if err := e.store.Save(ctx, cp, nil); err != nil {
		return err
	}

	e.log.Warn("node function failed, instance left retryable",
		"thread_id", cp.ThreadID, "node", node, "error", cause)
	return collab
}

func (e *Engine) publish(ctx context.Context, cp *domain.Checkpoint, trans *domain.Transition) {
	if e.bus == nil {
		return
	}
	event := domain.TransitionEvent{
		ThreadID:     trans.ThreadID,
		WorkflowType: cp.WorkflowType,
		FromNode:     trans.FromNode,
		ToNode:       trans.ToNode,
		Actor:        trans.Actor,
		Reason:       trans.Reason,
		Version:      cp.Version,
		At:           trans.At,
	}
	if err := e.bus.PublishTransition(ctx, event); err != nil {
		e.log.Warn("transition event publish failed", "thread_id", trans.ThreadID, "error", err)
	}
}

// transitionReason surfaces the node-provided reason, falling back to the
// instance error field (set by validation nodes on rejection).
func transitionReason(s domain.State) string {
	if reason := s.String(domain.FieldStatusReason); reason != "" {
		return reason
	}
	return s.ErrorMessage()
}
