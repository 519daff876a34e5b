package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"procflow/internal/api/dto"
	"procflow/internal/core/ports"
	"procflow/internal/domain"
	"procflow/internal/engine"
	"procflow/internal/procurement"
)

// WorkflowService is the orchestration facade the API layer talks to. It
// resolves the engine for a workflow type, generates thread ids, and
// mirrors approval decisions and dependency links into their tables.
type WorkflowService interface {
	Start(ctx context.Context, req dto.StartWorkflowRequest) (*dto.WorkflowView, error)
	Resume(ctx context.Context, threadID string, req dto.ResumeWorkflowRequest) (*dto.WorkflowView, error)
	Run(ctx context.Context, threadID string) (*dto.WorkflowView, error)
	Cancel(ctx context.Context, threadID string, req dto.CancelWorkflowRequest) (*dto.WorkflowView, error)
	Inspect(ctx context.Context, threadID string) (*dto.WorkflowView, error)
	Transitions(ctx context.Context, threadID string) ([]dto.TransitionView, error)
}

type workflowService struct {
	registry  *engine.Registry
	store     ports.CheckpointStore
	audit     ports.AuditLog
	approvals ports.ApprovalStore
	deps      ports.DependencyStore
	log       *slog.Logger
}

// Options carries the optional mirrors; nil fields disable the mirror.
type Options struct {
	Approvals ports.ApprovalStore
	Deps      ports.DependencyStore
	Logger    *slog.Logger
}

func NewWorkflowService(registry *engine.Registry, store ports.CheckpointStore, audit ports.AuditLog, opts Options) WorkflowService {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &workflowService{
		registry:  registry,
		store:     store,
		audit:     audit,
		approvals: opts.Approvals,
		deps:      opts.Deps,
		log:       log,
	}
}

func (s *workflowService) Start(ctx context.Context, req dto.StartWorkflowRequest) (*dto.WorkflowView, error) {
	eng, err := s.registry.Get(req.WorkflowType)
	if err != nil {
		return nil, err
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	cp, err := eng.Start(ctx, threadID, req.InitialState)
	if err != nil {
		return nil, err
	}

	s.recordDependencies(ctx, req.WorkflowType, threadID, req.InitialState)
	return view(cp), nil
}

func (s *workflowService) Resume(ctx context.Context, threadID string, req dto.ResumeWorkflowRequest) (*dto.WorkflowView, error) {
	eng, err := s.engineFor(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cp, err := eng.Resume(ctx, threadID, req.Updates, req.Actor)
	if err != nil {
		return nil, err
	}

	s.recordApprovals(ctx, threadID, req.Actor, req.Updates)
	return view(cp), nil
}

// Run retries an instance parked at a failed node, typically after the
// collaborator behind that node recovered.
func (s *workflowService) Run(ctx context.Context, threadID string) (*dto.WorkflowView, error) {
	eng, err := s.engineFor(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cp, err := eng.Run(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return view(cp), nil
}

func (s *workflowService) Cancel(ctx context.Context, threadID string, req dto.CancelWorkflowRequest) (*dto.WorkflowView, error) {
	eng, err := s.engineFor(ctx, threadID)
	if err != nil {
		return nil, err
	}

	cp, err := eng.Cancel(ctx, threadID, req.Actor, req.Reason)
	if err != nil {
		return nil, err
	}
	return view(cp), nil
}

func (s *workflowService) Inspect(ctx context.Context, threadID string) (*dto.WorkflowView, error) {
	cp, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return view(cp), nil
}

func (s *workflowService) Transitions(ctx context.Context, threadID string) ([]dto.TransitionView, error) {
	if _, err := s.store.Load(ctx, threadID); err != nil {
		return nil, err
	}
	transitions, err := s.audit.ListTransitions(ctx, threadID)
	if err != nil {
		return nil, err
	}

	views := make([]dto.TransitionView, 0, len(transitions))
	for _, t := range transitions {
		views = append(views, dto.TransitionView{
			FromNode: t.FromNode,
			ToNode:   t.ToNode,
			Actor:    t.Actor,
			Reason:   t.Reason,
			At:       t.At,
		})
	}
	return views, nil
}

func (s *workflowService) engineFor(ctx context.Context, threadID string) (*engine.Engine, error) {
	cp, err := s.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(cp.WorkflowType)
}

// recordDependencies mirrors declared upstream links. Best-effort: the
// instance is already durable, a mirror failure only loses the link row.
func (s *workflowService) recordDependencies(ctx context.Context, workflowType, threadID string, raw json.RawMessage) {
	if s.deps == nil {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	for _, link := range procurement.DependencyLinks(workflowType, threadID, payload) {
		l := link
		if err := s.deps.Link(ctx, &l); err != nil {
			s.log.Warn("dependency link not recorded", "thread_id", threadID, "error", err)
		}
	}
}

// recordApprovals mirrors approval decisions found in resume updates into
// the approvals table, one upserted row per slot.
func (s *workflowService) recordApprovals(ctx context.Context, threadID, actor string, updates map[string]any) {
	if s.approvals == nil {
		return
	}
	for slotName, record := range approvalRecords(updates) {
		approval := decodeApproval(record)
		slot := &domain.ApprovalSlot{
			ThreadID:  threadID,
			SlotName:  slotName,
			Decision:  procurement.ApprovalDecision(approval),
			Actor:     firstNonEmpty(approval.Actor, actor),
			Comments:  approval.Comments,
			DecidedAt: time.Now(),
		}
		if err := s.approvals.Upsert(ctx, slot); err != nil {
			s.log.Warn("approval slot not recorded", "thread_id", threadID, "slot", slotName, "error", err)
		}
	}
}

// approvalRecords flattens updates into slot-name -> record pairs: any
// top-level "*_approval" field plus each entry of a "dept_approvals" map.
func approvalRecords(updates map[string]any) map[string]map[string]any {
	records := map[string]map[string]any{}
	for key, value := range updates {
		record, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if strings.HasSuffix(key, "_approval") {
			records[strings.TrimSuffix(key, "_approval")] = record
			continue
		}
		if key == "dept_approvals" {
			for slot, v := range record {
				if r, ok := v.(map[string]any); ok {
					records[slot] = r
				}
			}
		}
	}
	return records
}

func decodeApproval(record map[string]any) *domain.Approval {
	raw, err := json.Marshal(record)
	if err != nil {
		return &domain.Approval{}
	}
	var a domain.Approval
	if err := json.Unmarshal(raw, &a); err != nil {
		return &domain.Approval{}
	}
	return &a
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func view(cp *domain.Checkpoint) *dto.WorkflowView {
	return &dto.WorkflowView{
		ThreadID:     cp.ThreadID,
		WorkflowType: cp.WorkflowType,
		CurrentNode:  cp.CurrentNode,
		State:        json.RawMessage(cp.State),
		Version:      cp.Version,
		UpdatedAt:    cp.UpdatedAt,
	}
}
