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

const (
	NodeDuplicateCheck = "duplicate_check"
	NodeBusinessReview = "business_review"

	fieldBusinessApproval = "business_approval"
)

// SKUState is the typed shape of a SKU creation instance.
type SKUState struct {
	RequestID        string           `json:"request_id"`
	WorkflowType     string           `json:"workflow_type"`
	CurrentStatus    string           `json:"current_status"`
	SKUData          map[string]any   `json:"sku_data"`
	VendorID         string           `json:"vendor_id"`
	DuplicateCheck   map[string]any   `json:"duplicate_check_result,omitempty"`
	BusinessApproval *domain.Approval `json:"business_approval,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	Error            string           `json:"error,omitempty"`
}

// NewSKUCreation builds the SKU creation workflow. Validation enforces the
// upstream rule: the referenced vendor must already be approved, otherwise
// the instance goes straight to the rejection terminal with a reason
// naming the unmet dependency.
func NewSKUCreation(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowSKUCreation).
		AddNode(NodeValidate, skuValidate(d)).
		AddNode(NodeDuplicateCheck, skuDuplicateCheck(d)).
		AddNode(NodeBusinessReview, reviewNode(fieldBusinessApproval, domain.StatusApproved)).
		SetEntry(NodeValidate).
		SetStateCheck(typedStateCheck[SKUState]()).
		MarkInterrupt(NodeBusinessReview).
		AddTerminal(TerminalApproved).
		AddTerminal(TerminalRejected).
		WithCancel(TerminalCancelled).
		AddConditionalEdges(NodeValidate, routeAfterValidation, map[string]string{
			labelProceed: NodeDuplicateCheck,
			labelReject:  TerminalRejected,
		}).
		AddEdge(NodeDuplicateCheck, NodeBusinessReview).
		AddConditionalEdges(NodeBusinessReview, routeOnApproval(fieldBusinessApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return def, skuInit, nil
}

func skuInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	vendorID, _ := payload["vendor_id"].(string)
	now := time.Now()
	return domain.EncodeState(SKUState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowSKUCreation,
		CurrentStatus: StatusDraft,
		SKUData:       payload,
		VendorID:      vendorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func skuValidate(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		var ss SKUState
		if err := s.Decode(&ss); err != nil {
			return nil, err
		}

		if reason, missing := missingFieldsReason(ss.SKUData, "name", "category", "vendor_id"); missing {
			ss.CurrentStatus = domain.StatusRejected
			ss.Error = reason
			ss.UpdatedAt = time.Now()
			return domain.EncodeState(ss)
		}

		reason, err := d.Validator.RequireApproved(ctx, domain.EntityVendor, ss.VendorID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			ss.CurrentStatus = domain.StatusRejected
			ss.Error = reason
		} else {
			ss.CurrentStatus = StatusValidation
			ss.Error = ""
		}
		ss.UpdatedAt = time.Now()
		return domain.EncodeState(ss)
	}
}

// skuDuplicateCheck is the agent slot for catalog duplicate detection.
// Advisory only: the result is recorded for the business reviewer, it does
// not gate the workflow.
func skuDuplicateCheck(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		if d.Content == nil {
			return s, nil
		}
		var ss SKUState
		if err := s.Decode(&ss); err != nil {
			return nil, err
		}

		result, err := d.Content.Generate(ctx, &domain.GenerateRequest{
			Prompt: fmt.Sprintf("Check the catalog for duplicates of SKU %q in category %q.",
				ss.SKUData["name"], ss.SKUData["category"]),
			Schema: map[string]any{"is_duplicate": "boolean", "matches": "array"},
		})
		if err != nil {
			return nil, &domain.CollaboratorError{Node: NodeDuplicateCheck, Err: err}
		}

		ss.DuplicateCheck = result.Content
		ss.CurrentStatus = StatusBusinessApproval
		ss.UpdatedAt = time.Now()
		return domain.EncodeState(ss)
	}
}
