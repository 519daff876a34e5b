package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procflow/internal/domain"
	"procflow/internal/engine"
	"procflow/internal/graph"
)

// Vendor onboarding nodes.
const (
	NodeRiskAssessment  = "risk_assessment"
	NodeCentralReview   = "central_review"
	NodeParallelRouting = "parallel_routing"
	NodeDeptReview      = "dept_review"
	NodeAggregate       = "aggregate"
)

const fieldCentralApproval = "central_manager_approval"

// DeptSlots are the parallel approval slots opened by the fan-out node.
var DeptSlots = []string{"finance", "legal", "business"}

// VendorState is the typed shape of a vendor onboarding instance.
type VendorState struct {
	RequestID       string                      `json:"request_id"`
	WorkflowType    string                      `json:"workflow_type"`
	CurrentStatus   string                      `json:"current_status"`
	VendorData      map[string]any              `json:"vendor_data"`
	CentralApproval *domain.Approval            `json:"central_manager_approval,omitempty"`
	DeptApprovals   map[string]*domain.Approval `json:"dept_approvals,omitempty"`
	RiskAssessment  map[string]any              `json:"risk_assessment,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Error           string                      `json:"error,omitempty"`
}

// NewVendorOnboarding builds the vendor onboarding workflow:
//
//	validate -> risk_assessment -> central_review (interrupt)
//	  -> parallel_routing -> dept_review (interrupt) -> aggregate
//	  -> approved | rejected
//
// The aggregate node routes back to dept_review while any department slot
// is pending; that self-loop is the suspend-and-wait pattern, never a busy
// spin, because dept_review is an interrupt node.
func NewVendorOnboarding(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowVendorOnboarding).
		AddNode(NodeValidate, vendorValidate).
		AddNode(NodeRiskAssessment, vendorRiskAssessment(d)).
		AddNode(NodeCentralReview, vendorCentralReview).
		AddNode(NodeParallelRouting, vendorParallelRouting).
		AddNode(NodeDeptReview, vendorDeptReview).
		AddNode(NodeAggregate, vendorAggregate).
		SetEntry(NodeValidate).
		SetStateCheck(typedStateCheck[VendorState]()).
		MarkInterrupt(NodeCentralReview, NodeDeptReview).
		AddTerminal(TerminalApproved).
		AddTerminal(TerminalRejected).
		WithCancel(TerminalCancelled).
		AddConditionalEdges(NodeValidate, routeAfterValidation, map[string]string{
			labelProceed: NodeRiskAssessment,
			labelReject:  TerminalRejected,
		}).
		AddEdge(NodeRiskAssessment, NodeCentralReview).
		AddConditionalEdges(NodeCentralReview, routeOnApproval(fieldCentralApproval), map[string]string{
			labelApproved: NodeParallelRouting,
			labelRejected: TerminalRejected,
		}).
		AddEdge(NodeParallelRouting, NodeDeptReview).
		AddEdge(NodeDeptReview, NodeAggregate).
		AddConditionalEdges(NodeAggregate, routeDeptAggregation, map[string]string{
			labelWaiting:  NodeDeptReview,
			labelRejected: TerminalRejected,
			labelComplete: TerminalApproved,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return def, vendorInit, nil
}

func vendorInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return domain.EncodeState(VendorState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowVendorOnboarding,
		CurrentStatus: StatusDraft,
		VendorData:    payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// vendorValidate runs the rule-based field checks. Missing required fields
// route the instance to the rejection terminal with a reason naming them;
// this never raises an error.
func vendorValidate(_ context.Context, s domain.State) (domain.State, error) {
	var vs VendorState
	if err := s.Decode(&vs); err != nil {
		return nil, err
	}

	if reason, missing := missingFieldsReason(vs.VendorData, "name", "category", "contact_email", "tax_id"); missing {
		vs.CurrentStatus = domain.StatusRejected
		vs.Error = reason
	} else {
		vs.CurrentStatus = StatusCentralPending
		vs.Error = ""
	}
	vs.UpdatedAt = time.Now()
	return domain.EncodeState(vs)
}

func routeAfterValidation(s domain.State) string {
	if s.String(domain.FieldCurrentStatus) == domain.StatusRejected {
		return labelReject
	}
	return labelProceed
}

// vendorRiskAssessment is the agent slot: when a content provider is
// configured it scores the vendor, otherwise the node passes through. A
// provider failure is a collaborator error; the engine keeps the instance
// at this node so the call can be retried.
func vendorRiskAssessment(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		if d.Content == nil {
			return s, nil
		}
		var vs VendorState
		if err := s.Decode(&vs); err != nil {
			return nil, err
		}

		result, err := d.Content.Generate(ctx, &domain.GenerateRequest{
			Prompt: fmt.Sprintf("Assess the onboarding risk of vendor %q in category %q.",
				vs.VendorData["name"], vs.VendorData["category"]),
			Schema: map[string]any{
				"score":   "integer",
				"factors": "array",
			},
		})
		if err != nil {
			return nil, &domain.CollaboratorError{Node: NodeRiskAssessment, Err: err}
		}

		vs.RiskAssessment = result.Content
		if vs.RiskAssessment == nil {
			vs.RiskAssessment = map[string]any{}
		}
		vs.RiskAssessment["model"] = result.Model
		vs.UpdatedAt = time.Now()
		return domain.EncodeState(vs)
	}
}

// vendorCentralReview executes right after the central manager's decision
// was merged in by resume. Rejection is recorded here so the terminal
// transition carries the reason.
func vendorCentralReview(_ context.Context, s domain.State) (domain.State, error) {
	var vs VendorState
	if err := s.Decode(&vs); err != nil {
		return nil, err
	}
	if vs.CentralApproval == nil || !vs.CentralApproval.Approved {
		vs.CurrentStatus = domain.StatusRejected
		vs.Error = "central manager approval not granted"
	}
	vs.UpdatedAt = time.Now()
	return domain.EncodeState(vs)
}

// vendorParallelRouting fans out: every department slot starts pending.
func vendorParallelRouting(_ context.Context, s domain.State) (domain.State, error) {
	var vs VendorState
	if err := s.Decode(&vs); err != nil {
		return nil, err
	}
	vs.CurrentStatus = StatusDeptReview
	vs.DeptApprovals = make(map[string]*domain.Approval, len(DeptSlots))
	for _, slot := range DeptSlots {
		vs.DeptApprovals[slot] = nil
	}
	vs.UpdatedAt = time.Now()
	return domain.EncodeState(vs)
}

// vendorDeptReview is the wait point for department decisions; decisions
// arrive through resume merges, so the node itself only touches the
// timestamp.
func vendorDeptReview(_ context.Context, s domain.State) (domain.State, error) {
	out := s.Clone()
	out[domain.FieldUpdatedAt] = time.Now()
	return out, nil
}

// vendorAggregate applies the AND merge policy. A single rejected slot
// decides immediately; otherwise the instance keeps waiting until no slot
// is pending.
func vendorAggregate(_ context.Context, s domain.State) (domain.State, error) {
	var vs VendorState
	if err := s.Decode(&vs); err != nil {
		return nil, err
	}

	switch deptOutcome(vs.DeptApprovals) {
	case labelRejected:
		vs.CurrentStatus = domain.StatusRejected
		vs.Error = rejectedSlotsReason(vs.DeptApprovals)
	case labelComplete:
		vs.CurrentStatus = domain.StatusApproved
	}
	vs.UpdatedAt = time.Now()
	return domain.EncodeState(vs)
}

func routeDeptAggregation(s domain.State) string {
	var vs VendorState
	if err := s.Decode(&vs); err != nil {
		return labelWaiting
	}
	return deptOutcome(vs.DeptApprovals)
}

// deptOutcome implements the merge policy: rejection short-circuits past
// pending slots, approval requires every slot decided and approved.
func deptOutcome(approvals map[string]*domain.Approval) string {
	pending := false
	for _, slot := range DeptSlots {
		a := approvals[slot]
		if a == nil {
			pending = true
			continue
		}
		if !a.Approved {
			return labelRejected
		}
	}
	if pending {
		return labelWaiting
	}
	return labelComplete
}

func rejectedSlotsReason(approvals map[string]*domain.Approval) string {
	for _, slot := range DeptSlots {
		if a := approvals[slot]; a != nil && !a.Approved {
			return fmt.Sprintf("department %q rejected the vendor", slot)
		}
	}
	return "department review rejected the vendor"
}
