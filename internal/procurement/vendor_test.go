package procurement

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"procflow/internal/core/memory"
	"procflow/internal/domain"
	"procflow/internal/engine"
)

func newVendorEngine(t *testing.T, store *memory.Store) *engine.Engine {
	t.Helper()
	def, init, err := NewVendorOnboarding(Deps{})
	require.NoError(t, err)
	return engine.New(def, init, store)
}

func vendorPayload() json.RawMessage {
	return json.RawMessage(`{
		"name": "Acme Industrial",
		"category": "raw_materials",
		"contact_email": "ops@acme.example",
		"tax_id": "TAX-123"
	}`)
}

func approval(approved bool, actor string) map[string]any {
	return map[string]any{"approved": approved, "actor": actor}
}

func decodeVendor(t *testing.T, cp *domain.Checkpoint) VendorState {
	t.Helper()
	state, err := cp.StateDocument()
	require.NoError(t, err)
	var vs VendorState
	require.NoError(t, state.Decode(&vs))
	return vs
}

func TestVendorHappyPath(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	// Start runs validation and suspends awaiting the central manager.
	cp, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)
	require.Equal(t, NodeCentralReview, cp.CurrentNode)
	require.Equal(t, StatusCentralPending, decodeVendor(t, cp).CurrentStatus)

	// Central approval fans out to three pending department slots.
	cp, err = eng.Resume(ctx, "v1", map[string]any{
		fieldCentralApproval: approval(true, "central_mgr"),
	}, "central_mgr")
	require.NoError(t, err)
	require.Equal(t, NodeDeptReview, cp.CurrentNode)

	vs := decodeVendor(t, cp)
	require.Equal(t, StatusDeptReview, vs.CurrentStatus)
	require.Len(t, vs.DeptApprovals, len(DeptSlots))
	for _, slot := range DeptSlots {
		require.Nil(t, vs.DeptApprovals[slot], "slot %q must start pending", slot)
	}

	// Two of three departments decide; the instance keeps waiting.
	cp, err = eng.Resume(ctx, "v1", map[string]any{
		"dept_approvals": map[string]any{
			"finance": approval(true, "fin_lead"),
			"legal":   approval(true, "legal_lead"),
		},
	}, "fin_lead")
	require.NoError(t, err)
	require.Equal(t, NodeDeptReview, cp.CurrentNode, "pending business slot keeps the instance suspended")

	vs = decodeVendor(t, cp)
	require.NotNil(t, vs.DeptApprovals["finance"])
	require.NotNil(t, vs.DeptApprovals["legal"])
	require.Nil(t, vs.DeptApprovals["business"])

	// The last slot lands and the AND merge completes.
	cp, err = eng.Resume(ctx, "v1", map[string]any{
		"dept_approvals": map[string]any{
			"business": approval(true, "biz_lead"),
		},
	}, "biz_lead")
	require.NoError(t, err)
	require.Equal(t, TerminalApproved, cp.CurrentNode)

	vs = decodeVendor(t, cp)
	require.Equal(t, domain.StatusApproved, vs.CurrentStatus)
	require.NotNil(t, vs.DeptApprovals["finance"], "earlier approvals survive later merges")
}

func TestVendorDeptRejectionShortCircuits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	_, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "v1", map[string]any{
		fieldCentralApproval: approval(true, "central_mgr"),
	}, "central_mgr")
	require.NoError(t, err)

	// Legal rejects while finance and business are still pending; the
	// rejection decides immediately, nobody waits on the open slots.
	cp, err := eng.Resume(ctx, "v1", map[string]any{
		"dept_approvals": map[string]any{
			"legal": approval(false, "legal_lead"),
		},
	}, "legal_lead")
	require.NoError(t, err)
	require.Equal(t, TerminalRejected, cp.CurrentNode)

	vs := decodeVendor(t, cp)
	require.Equal(t, domain.StatusRejected, vs.CurrentStatus)
	require.Contains(t, vs.Error, `"legal"`)
}

func TestVendorResumeRejectsCorruptDeptApprovals(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	_, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "v1", map[string]any{
		fieldCentralApproval: approval(true, "central_mgr"),
	}, "central_mgr")
	require.NoError(t, err)

	before, err := eng.Inspect(ctx, "v1")
	require.NoError(t, err)

	// A scalar where the approvals map belongs must be rejected up front,
	// not persisted and left to blow up inside the aggregate node.
	_, err = eng.Resume(ctx, "v1", map[string]any{
		"dept_approvals": "yes",
	}, "legal_lead")
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	after, err := eng.Inspect(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, NodeDeptReview, after.CurrentNode)
	require.Equal(t, before.Version, after.Version)

	vs := decodeVendor(t, after)
	require.Len(t, vs.DeptApprovals, len(DeptSlots), "approvals map survives the rejected payload")

	// The instance is still resumable with a well-formed decision.
	cp, err := eng.Resume(ctx, "v1", map[string]any{
		"dept_approvals": map[string]any{
			"finance": approval(true, "fin_lead"),
		},
	}, "fin_lead")
	require.NoError(t, err)
	require.Equal(t, NodeDeptReview, cp.CurrentNode)
}

func TestVendorCentralRejection(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	_, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)

	cp, err := eng.Resume(ctx, "v1", map[string]any{
		fieldCentralApproval: approval(false, "central_mgr"),
	}, "central_mgr")
	require.NoError(t, err)
	require.Equal(t, TerminalRejected, cp.CurrentNode)
	require.Equal(t, "central manager approval not granted", decodeVendor(t, cp).Error)
}

func TestVendorValidationRejectsMissingFields(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	cp, err := eng.Start(ctx, "v1", json.RawMessage(`{
		"name": "Acme Industrial",
		"category": "raw_materials"
	}`))
	require.NoError(t, err)
	require.Equal(t, TerminalRejected, cp.CurrentNode)

	vs := decodeVendor(t, cp)
	require.Equal(t, domain.StatusRejected, vs.CurrentStatus)
	require.Equal(t, "missing required fields: contact_email, tax_id", vs.Error)

	// The instance never reaches the review stages.
	transitions, err := store.ListTransitions(ctx, "v1")
	require.NoError(t, err)
	for _, tr := range transitions {
		require.NotEqual(t, NodeCentralReview, tr.ToNode)
		require.NotEqual(t, NodeDeptReview, tr.ToNode)
	}
	require.Equal(t, TerminalRejected, transitions[len(transitions)-1].ToNode)
}

func TestVendorSlotOrderDoesNotMatter(t *testing.T) {
	ctx := context.Background()

	run := func(order [][]string) string {
		store := memory.NewStore()
		eng := newVendorEngine(t, store)

		_, err := eng.Start(ctx, "v1", vendorPayload())
		require.NoError(t, err)
		_, err = eng.Resume(ctx, "v1", map[string]any{
			fieldCentralApproval: approval(true, "central_mgr"),
		}, "central_mgr")
		require.NoError(t, err)

		var cp *domain.Checkpoint
		for _, batch := range order {
			slots := map[string]any{}
			for _, s := range batch {
				slots[s] = approval(true, s+"_lead")
			}
			cp, err = eng.Resume(ctx, "v1", map[string]any{"dept_approvals": slots}, "")
			require.NoError(t, err)
		}
		return cp.CurrentNode
	}

	require.Equal(t, TerminalApproved, run([][]string{{"finance"}, {"legal"}, {"business"}}))
	require.Equal(t, TerminalApproved, run([][]string{{"business"}, {"finance"}, {"legal"}}))
	require.Equal(t, TerminalApproved, run([][]string{{"legal", "business", "finance"}}))
}

func TestVendorCancelDuringDeptReview(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newVendorEngine(t, store)

	_, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "v1", map[string]any{
		fieldCentralApproval: approval(true, "central_mgr"),
	}, "central_mgr")
	require.NoError(t, err)

	cp, err := eng.Cancel(ctx, "v1", "requester", "vendor withdrew")
	require.NoError(t, err)
	require.Equal(t, TerminalCancelled, cp.CurrentNode)

	state, err := cp.StateDocument()
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, state.String(domain.FieldCurrentStatus))
}

type fixedContent struct {
	content map[string]any
	err     error
}

func (f *fixedContent) Generate(_ context.Context, _ *domain.GenerateRequest) (*domain.GenerateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GenerateResult{Content: f.content, Model: "test-model"}, nil
}

func TestVendorRiskAssessmentRecordsContent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	def, init, err := NewVendorOnboarding(Deps{
		Content: &fixedContent{content: map[string]any{"score": 2}},
	})
	require.NoError(t, err)
	eng := engine.New(def, init, store)

	cp, err := eng.Start(ctx, "v1", vendorPayload())
	require.NoError(t, err)
	require.Equal(t, NodeCentralReview, cp.CurrentNode)

	vs := decodeVendor(t, cp)
	require.NotNil(t, vs.RiskAssessment)
	require.Equal(t, "test-model", vs.RiskAssessment["model"])
}
