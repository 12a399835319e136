//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-hq/finsight-engine/pkg/testhelpers"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse/postgres"
)

func TestExecutor_QueryWithParams(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)
	ctx := context.Background()

	res, err := exec.QueryWithParams(ctx, `
		SELECT f.CompanyID, f.FY, f.PeriodEnd, f.Value_
		FROM tbl_financialrawdata f
		WHERE f.CompanyID = $1 AND f.SubHeadID = $2 AND f.ConsolidationID = 2 AND f.TermID = 4
		ORDER BY f.PeriodEnd DESC
	`, []any{testhelpers.FixtureCompanyUBL, testhelpers.FixtureHeadNetIncome}, 10)
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount, "full-year net income for FY2023 and FY2024")

	// PostgreSQL folds the unquoted column names to lowercase; the Field
	// helpers must still find them under their mixed-case spelling.
	latest := res.Rows[0]

	companyID, ok := warehouse.FieldInt(latest, "CompanyID")
	require.True(t, ok)
	assert.Equal(t, int64(testhelpers.FixtureCompanyUBL), companyID)

	fy, ok := warehouse.FieldInt(latest, "FY")
	require.True(t, ok)
	assert.Equal(t, int64(2024), fy)

	value, ok := warehouse.FieldFloat(latest, "Value_")
	require.True(t, ok)
	assert.InDelta(t, 61000, value, 0.001)

	periodEnd, ok := warehouse.FieldTime(latest, "PeriodEnd")
	require.True(t, ok)
	assert.Equal(t, 2024, periodEnd.Year())
	assert.Equal(t, time.December, periodEnd.Month())
}

func TestExecutor_LimitsResultSize(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)

	res, err := exec.Query(context.Background(),
		"SELECT * FROM tbl_financialrawdata", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
}

func TestExecutor_QueryRowCount(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)

	count, err := exec.QueryRowCount(context.Background(), `
		SELECT COUNT(*) AS cnt
		FROM tbl_financialrawdata f
		WHERE f.CompanyID = $1 AND f.SubHeadID = $2 AND f.ConsolidationID = 2
	`, []any{testhelpers.FixtureCompanyUBL, testhelpers.FixtureHeadNetIncome})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count, "FY2023 full year plus four FY2024 term buckets")
}

func TestExecutor_ColumnTypes(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)

	res, err := exec.Query(context.Background(),
		"SELECT CompanyID, CompanyName, FiscalYearEnd FROM tbl_companieslist", 10)
	require.NoError(t, err)
	require.Len(t, res.Columns, 3)

	assert.Equal(t, "companyid", res.Columns[0].Name)
	assert.Equal(t, "INT4", res.Columns[0].Type)
	assert.Equal(t, "TEXT", res.Columns[1].Type)
}

func TestNewExecutor_ConnectAndClose(t *testing.T) {
	wh := testhelpers.GetWarehouseDB(t)
	ctx := context.Background()

	exec, err := postgres.NewExecutor(ctx, wh.ConnStr)
	require.NoError(t, err)

	require.NoError(t, exec.Ping(ctx))
	require.NoError(t, exec.Close())
}
