package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"procflow/internal/domain"
)

func passThrough(_ context.Context, s domain.State) (domain.State, error) {
	return s, nil
}

func TestBuildValidGraph(t *testing.T) {
	def, err := New("test").
		AddNode("a", passThrough).
		AddNode("b", passThrough).
		SetEntry("a").
		MarkInterrupt("b").
		AddTerminal("done").
		AddEdge("a", "b").
		AddEdge("b", "done").
		Build()
	require.NoError(t, err)

	require.Equal(t, "test", def.WorkflowType())
	require.Equal(t, "a", def.Entry())
	require.True(t, def.IsInterrupt("b"))
	require.True(t, def.IsTerminal("done"))
	require.False(t, def.IsTerminal("a"))
}

func TestBuildRejectsDanglingEdge(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		AddEdge("a", "missing").
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildRejectsUnreachableNode(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		AddNode("island", passThrough).
		SetEntry("a").
		AddTerminal("done").
		AddEdge("a", "done").
		AddEdge("island", "done").
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, cfgErr.Detail, "island")
}

func TestBuildRejectsMissingEntry(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		AddTerminal("done").
		AddEdge("a", "done").
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildRejectsInterruptEntry(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		MarkInterrupt("a").
		AddTerminal("done").
		AddEdge("a", "done").
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildRejectsNodeWithoutEdge(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		AddTerminal("done").
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuildRejectsConditionalTargetUndeclared(t *testing.T) {
	_, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		AddTerminal("done").
		AddConditionalEdges("a", func(domain.State) string { return "x" }, map[string]string{
			"x": "nowhere",
		}).
		Build()

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNextUnconditional(t *testing.T) {
	def, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		AddTerminal("done").
		AddEdge("a", "done").
		Build()
	require.NoError(t, err)

	next, err := def.Next("a", domain.State{})
	require.NoError(t, err)
	require.Equal(t, "done", next)
}

func TestNextConditionalRouting(t *testing.T) {
	def, err := New("test").
		AddNode("a", passThrough).
		AddNode("b", passThrough).
		SetEntry("a").
		AddTerminal("done").
		AddConditionalEdges("a", func(s domain.State) string {
			return s.String("label")
		}, map[string]string{
			"go":   "b",
			"stop": "done",
		}).
		AddEdge("b", "done").
		Build()
	require.NoError(t, err)

	next, err := def.Next("a", domain.State{"label": "go"})
	require.NoError(t, err)
	require.Equal(t, "b", next)

	next, err = def.Next("a", domain.State{"label": "stop"})
	require.NoError(t, err)
	require.Equal(t, "done", next)
}

func TestNextUndeclaredLabelIsConfigurationError(t *testing.T) {
	def, err := New("test").
		AddNode("a", passThrough).
		SetEntry("a").
		AddTerminal("done").
		AddConditionalEdges("a", func(domain.State) string { return "surprise" }, map[string]string{
			"expected": "done",
		}).
		Build()
	require.NoError(t, err)

	_, err = def.Next("a", domain.State{})
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, cfgErr.Detail, "surprise")
}

func TestWithCancelDeclaresTerminal(t *testing.T) {
	def, err := New("test").
		AddNode("a", passThrough).
		AddNode("wait", passThrough).
		SetEntry("a").
		MarkInterrupt("wait").
		AddTerminal("done").
		WithCancel("cancelled").
		AddEdge("a", "wait").
		AddEdge("wait", "done").
		Build()
	require.NoError(t, err)

	require.Equal(t, "cancelled", def.CancelNode())
	require.True(t, def.IsTerminal("cancelled"))
}
