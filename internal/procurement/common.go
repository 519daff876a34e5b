// Package procurement defines the six approval workflows of the
// procurement pipeline as graphs over the execution engine. Business
// policy lives here, in node functions and routing predicates; the engine
// stays generic.
package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"procflow/internal/core/ports"
	"procflow/internal/depval"
	"procflow/internal/domain"
	"procflow/internal/engine"
	"procflow/internal/graph"
)

// Shared node and terminal names. Per-workflow review nodes are declared
// next to their graphs.
const (
	NodeValidate = "validate"

	TerminalApproved  = "approved"
	TerminalRejected  = "rejected"
	TerminalCancelled = "cancelled"
)

// Routing labels.
const (
	labelProceed  = "proceed"
	labelReject   = "reject"
	labelApproved = "approved"
	labelRejected = "rejected"
	labelWaiting  = "waiting"
	labelComplete = "complete"
)

// Intermediate statuses, mirroring the stage each workflow is parked at.
const (
	StatusDraft            = "DRAFT"
	StatusCentralPending   = "CENTRAL_PENDING"
	StatusDeptReview       = "DEPT_REVIEW"
	StatusValidation       = "VALIDATION"
	StatusBusinessApproval = "BUSINESS_APPROVAL"
	StatusManagerApproval  = "MANAGER_APPROVAL"
	StatusFinanceApproval  = "FINANCE_APPROVAL"
	StatusReceived         = "RECEIVED"
)

// Deps carries the external collaborators handed to node functions.
// Content may be nil, in which case agent nodes pass through unchanged.
type Deps struct {
	Validator *depval.Validator
	Content   ports.ContentProvider
}

// RegisterAll builds every workflow definition and registers an engine for
// each one on the shared store.
func RegisterAll(reg *engine.Registry, store ports.CheckpointStore, d Deps, opts ...engine.Option) error {
	builders := []func(Deps) (*graph.Definition, engine.InitFunc, error){
		NewVendorOnboarding,
		NewSKUCreation,
		NewPriceApproval,
		NewPOCreation,
		NewGRNVerification,
		NewInvoiceProcessing,
	}
	for _, build := range builders {
		def, init, err := build(d)
		if err != nil {
			return err
		}
		if err := reg.Register(engine.New(def, init, store, opts...)); err != nil {
			return err
		}
	}
	return nil
}

// decodePayload is the common InitFunc front half: the raw initial state
// must be a JSON object.
func decodePayload(raw json.RawMessage) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &domain.ValidationError{Detail: fmt.Sprintf("initial state is not a JSON object: %v", err)}
	}
	return payload, nil
}

// missingFields returns the sorted names of required fields absent or
// empty in the payload.
func missingFields(data map[string]any, required ...string) []string {
	var missing []string
	for _, f := range required {
		v, ok := data[f]
		if !ok || v == nil || v == "" {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing
}

// missingFieldsReason renders a rejection reason naming the missing
// fields. The second return is false when nothing is missing.
func missingFieldsReason(data map[string]any, required ...string) (string, bool) {
	missing := missingFields(data, required...)
	if len(missing) == 0 {
		return "", false
	}
	return "missing required fields: " + strings.Join(missing, ", "), true
}

// typedStateCheck rejects documents that no longer decode into the
// workflow's typed state, so a malformed resume payload surfaces as a
// ValidationError before anything is persisted.
func typedStateCheck[T any]() func(domain.State) error {
	return func(s domain.State) error {
		var v T
		if err := s.Decode(&v); err != nil {
			return &domain.ValidationError{Detail: err.Error()}
		}
		return nil
	}
}

// ApprovalDecision classifies a recorded approval: pending when absent.
func ApprovalDecision(a *domain.Approval) string {
	switch {
	case a == nil:
		return domain.DecisionPending
	case a.Approved:
		return domain.DecisionApproved
	default:
		return domain.DecisionRejected
	}
}

// routeOnApproval builds the standard post-review route: the named
// approval field decides approved vs rejected; absent means rejected, the
// interrupt contract guarantees this is only evaluated after a resume.
func routeOnApproval(field string) graph.RouteFunc {
	return func(s domain.State) string {
		record, ok := s[field].(map[string]any)
		if !ok {
			return labelRejected
		}
		if approved, _ := record["approved"].(bool); approved {
			return labelApproved
		}
		return labelRejected
	}
}

// reviewNode is the standard human-in-the-loop node body: it records the
// outcome of the merged approval on the business status and touches the
// update timestamp. The named approval decides; absent counts as rejected.
func reviewNode(field, approvedStatus string) graph.NodeFunc {
	return func(_ context.Context, s domain.State) (domain.State, error) {
		out := s.Clone()
		record, ok := out[field].(map[string]any)
		approved := false
		if ok {
			approved, _ = record["approved"].(bool)
		}
		if approved {
			out[domain.FieldCurrentStatus] = approvedStatus
			delete(out, domain.FieldStatusReason)
		} else {
			out[domain.FieldCurrentStatus] = domain.StatusRejected
			out[domain.FieldStatusReason] = fmt.Sprintf("%s not granted", field)
		}
		out[domain.FieldUpdatedAt] = time.Now()
		return out, nil
	}
}
