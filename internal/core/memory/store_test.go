package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"procflow/internal/domain"
)

func TestLoadUnknownThread(t *testing.T) {
	store := NewStore()

	_, err := store.Load(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cp, err := domain.NewCheckpoint("t1", "vendor_onboarding", "validate", domain.State{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, cp))

	cp.CurrentNode = "central_review"
	require.NoError(t, store.Save(ctx, cp, domain.NewTransition("t1", "validate", "central_review", "", "")))
	require.Equal(t, 1, cp.Version)

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "central_review", loaded.CurrentNode)
	require.Equal(t, 1, loaded.Version)

	state, err := loaded.StateDocument()
	require.NoError(t, err)
	require.Equal(t, "v", state.String("k"))
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cp, err := domain.NewCheckpoint("t1", "vendor_onboarding", "validate", domain.State{})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, cp))

	// Two loads of version 0; the second save must lose.
	first, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	second, err := store.Load(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, first, nil))
	err = store.Save(ctx, second, nil)
	require.ErrorIs(t, err, domain.ErrStaleVersion)
}

func TestTransitionsAppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	cp, err := domain.NewCheckpoint("t1", "vendor_onboarding", "a", domain.State{})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, cp))

	require.NoError(t, store.Save(ctx, cp, domain.NewTransition("t1", "a", "b", "", "")))
	require.NoError(t, store.Save(ctx, cp, domain.NewTransition("t1", "b", "c", "alice", "ok")))

	transitions, err := store.ListTransitions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	require.Equal(t, "a", transitions[0].FromNode)
	require.Equal(t, "c", transitions[1].ToNode)
	require.Equal(t, "alice", transitions[1].Actor)
}
