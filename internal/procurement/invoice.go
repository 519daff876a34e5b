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
	NodeOCRExtract    = "ocr_extract"
	NodeFinanceReview = "finance_review"

	fieldFinanceApproval = "finance_approval"
)

// InvoiceState is the typed shape of an invoice processing instance.
type InvoiceState struct {
	RequestID       string           `json:"request_id"`
	WorkflowType    string           `json:"workflow_type"`
	CurrentStatus   string           `json:"current_status"`
	InvoiceData     map[string]any   `json:"invoice_data"`
	GRNID           string           `json:"grn_id"`
	OCRExtraction   map[string]any   `json:"ocr_extraction,omitempty"`
	FinanceApproval *domain.Approval `json:"finance_approval,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Error           string           `json:"error,omitempty"`
}

// NewInvoiceProcessing builds the invoice workflow: validation with a GRN
// dependency, an OCR agent slot for the scanned document, then finance
// review.
func NewInvoiceProcessing(d Deps) (*graph.Definition, engine.InitFunc, error) {
	def, err := graph.New(domain.WorkflowInvoiceProcessing).
		AddNode(NodeValidate, invoiceValidate(d)).
		AddNode(NodeOCRExtract, invoiceOCRExtract(d)).
		AddNode(NodeFinanceReview, reviewNode(fieldFinanceApproval, domain.StatusApproved)).
		SetEntry(NodeValidate).
		SetStateCheck(typedStateCheck[InvoiceState]()).
		MarkInterrupt(NodeFinanceReview).
		AddTerminal(TerminalApproved).
		AddTerminal(TerminalRejected).
		WithCancel(TerminalCancelled).
		AddConditionalEdges(NodeValidate, routeAfterValidation, map[string]string{
			labelProceed: NodeOCRExtract,
			labelReject:  TerminalRejected,
		}).
		AddEdge(NodeOCRExtract, NodeFinanceReview).
		AddConditionalEdges(NodeFinanceReview, routeOnApproval(fieldFinanceApproval), map[string]string{
			labelApproved: TerminalApproved,
			labelRejected: TerminalRejected,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return def, invoiceInit, nil
}

func invoiceInit(threadID string, raw json.RawMessage) (domain.State, error) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, err
	}
	grnID, _ := payload["grn_id"].(string)
	now := time.Now()
	return domain.EncodeState(InvoiceState{
		RequestID:     threadID,
		WorkflowType:  domain.WorkflowInvoiceProcessing,
		CurrentStatus: StatusReceived,
		InvoiceData:   payload,
		GRNID:         grnID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func invoiceValidate(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		var is InvoiceState
		if err := s.Decode(&is); err != nil {
			return nil, err
		}

		if reason, missing := missingFieldsReason(is.InvoiceData, "invoice_number", "grn_id", "amount"); missing {
			is.CurrentStatus = domain.StatusRejected
			is.Error = reason
			is.UpdatedAt = time.Now()
			return domain.EncodeState(is)
		}

		reason, err := d.Validator.RequireApproved(ctx, domain.EntityGRN, is.GRNID)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			is.CurrentStatus = domain.StatusRejected
			is.Error = reason
		} else {
			is.CurrentStatus = StatusValidation
			is.Error = ""
		}
		is.UpdatedAt = time.Now()
		return domain.EncodeState(is)
	}
}

// invoiceOCRExtract is the agent slot that pulls line items out of the
// scanned invoice document when a content provider is configured.
func invoiceOCRExtract(d Deps) graph.NodeFunc {
	return func(ctx context.Context, s domain.State) (domain.State, error) {
		if d.Content == nil {
			return s, nil
		}
		var is InvoiceState
		if err := s.Decode(&is); err != nil {
			return nil, err
		}

		result, err := d.Content.Generate(ctx, &domain.GenerateRequest{
			Prompt: fmt.Sprintf("Extract line items from invoice %q at %v.",
				is.InvoiceData["invoice_number"], is.InvoiceData["document_url"]),
			Schema: map[string]any{"line_items": "array", "total": "number"},
		})
		if err != nil {
			return nil, &domain.CollaboratorError{Node: NodeOCRExtract, Err: err}
		}

		is.OCRExtraction = result.Content
		is.CurrentStatus = StatusFinanceApproval
		is.UpdatedAt = time.Now()
		return domain.EncodeState(is)
	}
}
