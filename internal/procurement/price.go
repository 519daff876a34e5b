package procurement

import (
	"context"
	"encoding/json"
	"time"

	"procflow/internal/domain"
	"procflow/internal/engine"
	"procflow/internal/graph"
)

const (
	NodeManagerReview = "manager_review"

	fieldManagerApproval = "manager_approval"
)

// PriceState is the typed shape of a price approval instance.
type PriceState struct {
	RequestID       string           `json:"request_id"`
	WorkflowType    string           `json:"workflow_type"`
	CurrentStatus   string           `json:"current_status"`
	PriceData       map[string]any   `json:"price_data"`
	SKUID           string           `json:"sku_id"`
	ManagerApproval *domain.Approval `json:"manager_approval,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Error           string           `json:"error,omitempty"`
}

// NewPriceApproval builds the price approval workflow: validation with a
// SKU dependency check, then a single manager review.
func NewPriceApproval(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowPriceApproval).
		AddNode(NodeValidate, priceValidate(d)).
		AddNode(NodeManagerReview, reviewNode(fieldManagerApproval, domain.StatusApproved)).
		SetEntry(NodeValidate).
		SetStateCheck(typedStateCheck[PriceState]()).
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
	return def, priceInit, nil
}

func priceInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	skuID, _ := payload["sku_id"].(string)
	now := time.Now()
	return domain.EncodeState(PriceState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowPriceApproval,
		CurrentStatus: StatusDraft,
		PriceData:     payload,
		SKUID:         skuID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func priceValidate(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		var ps PriceState
		if err := s.Decode(&ps); err != nil {
			return nil, err
		}

		if reason, missing := missingFieldsReason(ps.PriceData, "amount", "currency", "sku_id"); missing {
			ps.CurrentStatus = domain.StatusRejected
			ps.Error = reason
			ps.UpdatedAt = time.Now()
			return domain.EncodeState(ps)
		}

		reason, err := d.Validator.RequireApproved(ctx, domain.EntitySKU, ps.SKUID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			ps.CurrentStatus = domain.StatusRejected
			ps.Error = reason
		} else {
			ps.CurrentStatus = StatusManagerApproval
			ps.Error = ""
		}
		ps.UpdatedAt = time.Now()
		return domain.EncodeState(ps)
	}
}
