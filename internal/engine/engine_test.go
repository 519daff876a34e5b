package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"procflow/internal/core/memory"
	"procflow/internal/domain"
	"procflow/internal/graph"
)

func mapInit(_ string, raw json.RawMessage) (domain.State, error) {
	var s domain.State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &domain.ValidationError{Detail: err.Error()}
	}
	if s == nil {
		s = domain.State{}
	}
	return s, nil
}

// reviewState is the typed shape resume updates must keep fitting.
type reviewState struct {
	Prepared         bool   `json:"prepared,omitempty"`
	DecisionApproved bool   `json:"decision_approved,omitempty"`
	Payload          string `json:"payload,omitempty"`
}

// reviewGraph is a minimal human-in-the-loop flow: prepare, suspend at
// review, then route on the merged decision.
func reviewGraph(t *testing.T) *graph.Definition {
	t.Helper()
	def, err := graph.New("review_flow").
		AddNode("prepare", func(_ context.Context, s domain.State) (domain.State, error) {
			out := s.Clone()
			out["prepared"] = true
			return out, nil
		}).
		AddNode("review", func(_ context.Context, s domain.State) (domain.State, error) {
			return s, nil
		}).
		SetEntry("prepare").
		SetStateCheck(func(s domain.State) error {
			var rs reviewState
			if err := s.Decode(&rs); err != nil {
				return &domain.ValidationError{Detail: err.Error()}
			}
			return nil
		}).
		MarkInterrupt("review").
		AddTerminal("approved").
		AddTerminal("rejected").
		WithCancel("cancelled").
		AddEdge("prepare", "review").
		AddConditionalEdges("review", func(s domain.State) string {
			if ok, _ := s["decision_approved"].(bool); ok {
				return "ok"
			}
			return "no"
		}, map[string]string{
			"ok": "approved",
			"no": "rejected",
		}).
		Build()
	require.NoError(t, err)
	return def
}

func TestStartSuspendsAtInterrupt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	cp, err := eng.Start(ctx, "t1", json.RawMessage(`{"payload":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "review", cp.CurrentNode)
	require.Equal(t, 1, cp.Version)

	state, err := cp.StateDocument()
	require.NoError(t, err)
	require.Equal(t, true, state["prepared"])
	require.Equal(t, "x", state.String("payload"))
}

func TestStartRejectsMalformedInitialState(t *testing.T) {
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(context.Background(), "t1", json.RawMessage(`not json`))
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = store.Load(context.Background(), "t1")
	require.ErrorIs(t, err, domain.ErrNotFound, "nothing may be persisted for a rejected start payload")
}

func TestResumeRoutesOnDecision(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	cp, err := eng.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "alice")
	require.NoError(t, err)
	require.Equal(t, "approved", cp.CurrentNode)

	transitions, err := store.ListTransitions(ctx, "t1")
	require.NoError(t, err)
	last := transitions[len(transitions)-1]
	require.Equal(t, "review", last.FromNode)
	require.Equal(t, "approved", last.ToNode)
	require.Equal(t, "alice", last.Actor)
}

func TestResumeOnTerminalFails(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "")
	require.NoError(t, err)

	before, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)

	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": false}, "")
	var invalid *domain.InvalidResumeError
	require.ErrorAs(t, err, &invalid)

	after, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version, "failed resume must not mutate the instance")
	require.Equal(t, before.State, after.State)
}

func TestResumeUnknownThread(t *testing.T) {
	eng := New(reviewGraph(t), mapInit, memory.NewStore())

	_, err := eng.Resume(context.Background(), "ghost", map[string]any{}, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentResumeObservesStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	// Simulate a racing writer that commits between this resume's load
	// and save by advancing the stored version out from under it.
	racer, err := store.Load(ctx, "t1")
	require.NoError(t, err)

	// First resume wins.
	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "first")
	require.NoError(t, err)

	// The loser's snapshot is now stale; a save through it must fail.
	err = store.Save(ctx, racer, nil)
	require.ErrorIs(t, err, domain.ErrStaleVersion)
}

func TestStepBudgetExhaustion(t *testing.T) {
	def, err := graph.New("spinner").
		AddNode("spin", func(_ context.Context, s domain.State) (domain.State, error) {
			return s, nil
		}).
		SetEntry("spin").
		AddEdge("spin", "spin").
		Build()
	require.NoError(t, err)

	eng := New(def, mapInit, memory.NewStore(), WithStepBudget(5))

	_, err = eng.Start(context.Background(), "t1", json.RawMessage(`{}`))
	require.ErrorIs(t, err, domain.ErrStepBudgetExhausted)
}

func TestNodeFailureLeavesInstanceRetryable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	healthy := false
	def, err := graph.New("flaky").
		AddNode("call", func(_ context.Context, s domain.State) (domain.State, error) {
			if !healthy {
				return nil, &domain.CollaboratorError{Node: "call", Err: errors.New("provider down")}
			}
			out := s.Clone()
			out["scored"] = true
			return out, nil
		}).
		AddNode("review", func(_ context.Context, s domain.State) (domain.State, error) {
			return s, nil
		}).
		SetEntry("call").
		MarkInterrupt("review").
		AddTerminal("approved").
		AddEdge("call", "review").
		AddEdge("review", "approved").
		Build()
	require.NoError(t, err)

	eng := New(def, mapInit, store)

	_, err = eng.Start(ctx, "t1", json.RawMessage(`{}`))
	var collab *domain.CollaboratorError
	require.ErrorAs(t, err, &collab)
	require.Equal(t, "call", collab.Node)

	cp, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "call", cp.CurrentNode, "instance must stay at the failed node")

	state, err := cp.StateDocument()
	require.NoError(t, err)
	require.Contains(t, state.ErrorMessage(), "provider down")

	// Resume cannot re-drive a non-interrupt node.
	_, err = eng.Resume(ctx, "t1", map[string]any{}, "")
	var invalid *domain.InvalidResumeError
	require.ErrorAs(t, err, &invalid)

	// Provider recovers; Run re-invokes the failed node and clears the
	// recorded error.
	healthy = true
	cp, err = eng.Run(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "review", cp.CurrentNode)

	state, err = cp.StateDocument()
	require.NoError(t, err)
	require.Empty(t, state.ErrorMessage())
	require.Equal(t, true, state["scored"])
}

func TestRunOnTerminalFails(t *testing.T) {
	ctx := context.Background()
	eng := New(reviewGraph(t), mapInit, memory.NewStore())

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "")
	require.NoError(t, err)

	_, err = eng.Run(ctx, "t1")
	var invalid *domain.InvalidResumeError
	require.ErrorAs(t, err, &invalid)
}

func TestRunAtInterruptSuspendsAgain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	before, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)

	cp, err := eng.Run(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "review", cp.CurrentNode)

	after, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version, "re-driving a suspended instance commits nothing")
}

func TestResumeRejectsMalformedUpdates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	before, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)

	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": "yes"}, "alice")
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	after, err := eng.Inspect(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version, "rejected updates must not be persisted")
	require.Equal(t, before.State, after.State)
	require.Equal(t, "review", after.CurrentNode)
}

func TestCancelFromInterrupt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	cp, err := eng.Cancel(ctx, "t1", "alice", "no longer needed")
	require.NoError(t, err)
	require.Equal(t, "cancelled", cp.CurrentNode)

	state, err := cp.StateDocument()
	require.NoError(t, err)
	require.Equal(t, domain.StatusCancelled, state.String(domain.FieldCurrentStatus))

	transitions, err := store.ListTransitions(ctx, "t1")
	require.NoError(t, err)
	last := transitions[len(transitions)-1]
	require.Equal(t, "cancelled", last.ToNode)
	require.Equal(t, "alice", last.Actor)
	require.Equal(t, "no longer needed", last.Reason)
}

func TestCancelFromTerminalFails(t *testing.T) {
	ctx := context.Background()
	eng := New(reviewGraph(t), mapInit, memory.NewStore())

	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "")
	require.NoError(t, err)

	_, err = eng.Cancel(ctx, "t1", "alice", "")
	var invalid *domain.InvalidResumeError
	require.ErrorAs(t, err, &invalid)
}

func TestInspectDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := New(reviewGraph(t), mapInit, store)

	started, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		cp, err := eng.Inspect(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, started.Version, cp.Version)
		require.Equal(t, started.CurrentNode, cp.CurrentNode)
	}
}

func TestSuspensionHoldsNothing(t *testing.T) {
	// A suspended instance is just a row; resuming after an arbitrary
	// delay works from a cold load.
	ctx := context.Background()
	store := memory.NewStore()

	eng := New(reviewGraph(t), mapInit, store)
	_, err := eng.Start(ctx, "t1", json.RawMessage(`{}`))
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// Fresh engine over the same store stands in for a process restart.
	eng2 := New(reviewGraph(t), mapInit, store)
	cp, err := eng2.Resume(ctx, "t1", map[string]any{"decision_approved": true}, "")
	require.NoError(t, err)
	require.Equal(t, "approved", cp.CurrentNode)
}
