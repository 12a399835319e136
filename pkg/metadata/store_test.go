package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

func TestStoreLoadAndCurrent(t *testing.T) {
	exec := &fakeExecutor{
		queryFn: func(_ context.Context, query string, _ int) (*warehouse.Result, error) {
			return referenceTableRows(query)
		},
	}
	store := NewStore(NewLoader(exec, zap.NewNop()), zap.NewNop())

	assert.Nil(t, store.Current(), "no snapshot before first load")

	require.NoError(t, store.Load(context.Background()))
	snap := store.Current()
	require.NotNil(t, snap)
	assert.Len(t, snap.Companies(), 2)
}

func TestStoreLoadWrapsMetadataError(t *testing.T) {
	exec := &fakeExecutor{
		queryFn: func(_ context.Context, _ string, _ int) (*warehouse.Result, error) {
			return nil, errors.New("warehouse unreachable")
		},
	}
	store := NewStore(NewLoader(exec, zap.NewNop()), zap.NewNop())

	err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMetadataLoad)
	assert.Nil(t, store.Current())
}

func TestStoreRefreshKeepsPreviousSnapshotOnFailure(t *testing.T) {
	fail := false
	exec := &fakeExecutor{
		queryFn: func(_ context.Context, query string, _ int) (*warehouse.Result, error) {
			if fail {
				return nil, errors.New("warehouse unreachable")
			}
			return referenceTableRows(query)
		},
	}
	store := NewStore(NewLoader(exec, zap.NewNop()), zap.NewNop())

	require.NoError(t, store.Load(context.Background()))
	first := store.Current()
	require.NotNil(t, first)

	fail = true
	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, first, store.Current(), "failed refresh must not discard the active snapshot")

	fail = false
	require.NoError(t, store.Refresh(context.Background()))
	assert.NotSame(t, first, store.Current())
}
