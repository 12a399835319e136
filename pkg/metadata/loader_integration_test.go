//go:build integration

package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/testhelpers"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse/postgres"
)

// Loads the snapshot from a real warehouse so that the loader's column
// references are checked against the actual schema, not a fake.
func TestLoader_LoadFromWarehouse(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)

	loader := metadata.NewLoader(exec, zap.NewNop())
	snap, err := loader.Load(context.Background())
	require.NoError(t, err)

	ubl, ok := snap.CompanyByTicker("UBL")
	require.True(t, ok)
	assert.Equal(t, testhelpers.FixtureCompanyUBL, ubl.CompanyID)
	assert.Equal(t, "United Bank Limited", ubl.Name)
	assert.Equal(t, 12, ubl.FiscalYearEndMonth)

	// IndustryID comes from the sector mapping, not the company row.
	assert.Equal(t, 100, ubl.IndustryID)

	mtl, ok := snap.CompanyByTicker("MTL")
	require.True(t, ok)
	assert.Equal(t, 6, mtl.FiscalYearEndMonth, "June fiscal year end survives the load")

	heads := snap.RegularHeadsByName("Net Income")
	require.Len(t, heads, 1)
	assert.Equal(t, testhelpers.FixtureHeadNetIncome, heads[0].HeadID)
	assert.Equal(t, models.KindRegular, heads[0].Kind)

	ratios := snap.RatioHeadsByName("Return on Equity")
	require.Len(t, ratios, 1)
	assert.Equal(t, testhelpers.FixtureHeadROE, ratios[0].HeadID)

	ttm, ok := snap.TermByLabel("TTM")
	require.True(t, ok)
	assert.Equal(t, 6, ttm.TermID)

	uncons, ok := snap.ConsolidationByName("Unconsolidated")
	require.True(t, ok)
	assert.Equal(t, models.ConsolidationUnconsolidated, uncons.ConsolidationID)

	group, ok := snap.DissectionGroup(models.DissectionPerShare)
	require.True(t, ok)
	assert.Equal(t, "Per Share", group.Name)
}

func TestStore_LoadAndRefreshFromWarehouse(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)

	store := metadata.NewStore(metadata.NewLoader(exec, zap.NewNop()), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.Load(ctx))
	first := store.Current()
	require.NotNil(t, first)

	require.NoError(t, store.Refresh(ctx))
	second := store.Current()
	require.NotNil(t, second)

	assert.False(t, second.LoadedAt().Before(first.LoadedAt()))
	assert.Len(t, second.Companies(), len(first.Companies()))
}
