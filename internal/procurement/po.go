package procurement

import (
	"context"
	"encoding/json"
	"time"

	"procflow/internal/domain"
	"procflow/internal/engine"
	"procflow/internal/graph"
)

// PO creation nodes. The compliance check routes to one of three review
// levels derived from the order amount.
const (
	NodeComplianceCheck = "compliance_check"
	NodeL1Review        = "l1_review"
	NodeL2Review        = "l2_review"
	NodeL3Review        = "l3_review"

	fieldLevelApproval = "level_approval"

	labelL1 = "l1"
	labelL2 = "l2"
	labelL3 = "l3"
)

// Approval level thresholds in currency units.
const (
	l2Threshold = 100_000
	l3Threshold = 1_000_000
)

// POState is the typed shape of a purchase order creation instance.
type POState struct {
	RequestID     string           `json:"request_id"`
	WorkflowType  string           `json:"workflow_type"`
	CurrentStatus string           `json:"current_status"`
	POData        map[string]any   `json:"po_data"`
	VendorID      string           `json:"vendor_id"`
	PriceID       string           `json:"price_id"`
	ApprovalLevel string           `json:"approval_level,omitempty"`
	LevelApproval *domain.Approval `json:"level_approval,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Error         string           `json:"error,omitempty"`
}

// NewPOCreation builds the purchase order workflow. The compliance check
// validates fields and both upstream dependencies (approved vendor and
// approved price), then derives the review level from the amount.
func NewPOCreation(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowPOCreation).
		AddNode(NodeComplianceCheck, poComplianceCheck(d)).
		AddNode(NodeL1Review, reviewNode(fieldLevelApproval, domain.StatusApproved)).
		AddNode(NodeL2Review, reviewNode(fieldLevelApproval, domain.StatusApproved)).
		AddNode(NodeL3Review, reviewNode(fieldLevelApproval, domain.StatusApproved)).
		SetEntry(NodeComplianceCheck).
		SetStateCheck(typedStateCheck[POState]()).
		MarkInterrupt(NodeL1Review, NodeL2Review, NodeL3Review).
		AddTerminal(TerminalApproved).
		AddTerminal(TerminalRejected).
		WithCancel(TerminalCancelled).
		AddConditionalEdges(NodeComplianceCheck, routeAfterCompliance, map[string]string{
			labelReject: TerminalRejected,
			labelL1:     NodeL1Review,
			labelL2:     NodeL2Review,
			labelL3:     NodeL3Review,
		}).
		AddConditionalEdges(NodeL1Review, routeOnApproval(fieldLevelApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		AddConditionalEdges(NodeL2Review, routeOnApproval(fieldLevelApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		AddConditionalEdges(NodeL3Review, routeOnApproval(fieldLevelApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return def, poInit, nil
}

func poInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	vendorID, _ := payload["vendor_id"].(string)
	priceID, _ := payload["price_id"].(string)
	now := time.Now()
	return domain.EncodeState(POState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowPOCreation,
		CurrentStatus: StatusDraft,
		POData:        payload,
		VendorID:      vendorID,
		PriceID:       priceID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func poComplianceCheck(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		var ps POState
		if err := s.Decode(&ps); err != nil {
			return nil, err
		}

		if reason, missing := missingFieldsReason(ps.POData, "po_number", "vendor_id", "price_id", "amount", "quantity"); missing {
			return poReject(ps, reason)
		}

		for _, dep := range []struct{ entityType, id string }{
			{domain.EntityVendor, ps.VendorID},
			{domain.EntityPrice, ps.PriceID},
		} {
			reason, err := d.Validator.RequireApproved(ctx, dep.entityType, dep.id)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				return poReject(ps, reason)
			}
		}

		amount, ok := ps.POData["amount"].(float64)
		if !ok || amount <= 0 {
			return poReject(ps, "po amount must be a positive number")
		}

		ps.ApprovalLevel = approvalLevelFor(amount)
		ps.CurrentStatus = "PO_" + ps.ApprovalLevel
		ps.Error = ""
		ps.UpdatedAt = time.Now()
		return domain.EncodeState(ps)
	}
}

func poReject(ps POState, reason string) (domain.State, error) {
	ps.CurrentStatus = domain.StatusRejected
	ps.Error = reason
	ps.UpdatedAt = time.Now()
	return domain.EncodeState(ps)
}

func approvalLevelFor(amount float64) string {
	switch {
	case amount < l2Threshold:
		return "L1"
	case amount < l3Threshold:
		return "L2"
	default:
		return "L3"
	}
}

func routeAfterCompliance(s domain.State) string {
	if s.String(domain.FieldCurrentStatus) == domain.StatusRejected {
		return labelReject
	}
	switch s.String("approval_level") {
	case "L2":
		return labelL2
	case "L3":
		return labelL3
	default:
		return labelL1
	}
}
