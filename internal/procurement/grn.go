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

// GRNState is the typed shape of a goods receipt verification instance.
type GRNState struct {
	RequestID       string           `json:"request_id"`
	WorkflowType    string           `json:"workflow_type"`
	CurrentStatus   string           `json:"current_status"`
	GRNData         map[string]any   `json:"grn_data"`
	POID            string           `json:"po_id"`
	ManagerApproval *domain.Approval `json:"manager_approval,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Error           string           `json:"error,omitempty"`
}

// NewGRNVerification builds the goods receipt workflow: validation checks
// the PO dependency and the received-vs-ordered quantity rule, then a
// manager review decides.
func NewGRNVerification(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowGRNVerification).
		AddNode(NodeValidate, grnValidate(d)).
		AddNode(NodeManagerReview, reviewNode(fieldManagerApproval, domain.StatusApproved)).
		SetEntry(NodeValidate).
		SetStateCheck(typedStateCheck[GRNState]()).
		MarkInterrupt(NodeManagerReview).
		AddTerminal(TerminalApproved).
		AddTerminal(TerminalRejected).
		WithCancel(TerminalCancelled).
		AddConditionalEdges(NodeValidate, routeAfterValidation, map[string]string{
			labelProceed: NodeManagerReview,
			labelReject:  TerminalRejected,
		}).
		AddConditionalEdges(NodeManagerReview, routeOnApproval(fieldManagerApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return def, grnInit, nil
}

func grnInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	poID, _ := payload["po_id"].(string)
	now := time.Now()
	return domain.EncodeState(GRNState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowGRNVerification,
		CurrentStatus: StatusReceived,
		GRNData:       payload,
		POID:          poID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func grnValidate(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		var gs GRNState
		if err := s.Decode(&gs); err != nil {
			return nil, err
		}

		if reason, missing := missingFieldsReason(gs.GRNData, "grn_number", "po_id", "quantity_received"); missing {
			return grnReject(gs, reason)
		}

		reason, err := d.Validator.RequireApproved(ctx, domain.EntityPO, gs.POID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return grnReject(gs, reason)
		}

		// Received quantity may not exceed the ordered quantity when the
		// caller supplied it for comparison.
		received, _ := gs.GRNData["quantity_received"].(float64)
		if ordered, ok := gs.GRNData["po_quantity"].(float64); ok && received > ordered {
			return grnReject(gs, fmt.Sprintf("received quantity %.0f exceeds ordered quantity %.0f", received, ordered))
		}

		gs.CurrentStatus = StatusValidation
		gs.Error = ""
		gs.UpdatedAt = time.Now()
		return domain.EncodeState(gs)
	}
}

func grnReject(gs GRNState, reason string) (domain.State, error) {
	gs.CurrentStatus = domain.StatusRejected
	gs.Error = reason
	gs.UpdatedAt = time.Now()
	return domain.EncodeState(gs)
}
