//go:build integration

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/testhelpers"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse/postgres"
)

// newWarehouseResolutionService wires the real pipeline: deterministic
// extraction, snapshot loaded from the container, probes and retrievals
// executed against seeded tables.
func newWarehouseResolutionService(t *testing.T) ResolutionService {
	t.Helper()

	wh := testhelpers.GetWarehouseDB(t)
	exec := postgres.NewExecutorFromPool(wh.Pool)
	logger := zap.NewNop()

	store := metadata.NewStore(metadata.NewLoader(exec, logger), logger)
	require.NoError(t, store.Load(context.Background()))

	lex, err := NewLexicon()
	require.NoError(t, err)

	return NewResolutionService(
		store,
		exec,
		NewEntityExtractor(store, lex, logger),
		NewCompanyResolver(store, 0, logger),
		NewPeriodResolver(store, exec, lex, logger),
		NewMetricResolver(store, exec, lex, logger),
		lex,
		ResolutionOptions{ExecuteQueries: true},
		logger,
	)
}

func requireSingleValue(t *testing.T, res *ResolutionResult, want float64) map[string]any {
	t.Helper()
	require.True(t, res.Executed)
	require.Equal(t, 1, res.RowCount, "rows: %v", res.Rows)
	got, ok := warehouse.FieldFloat(res.Rows[0], "Value")
	require.True(t, ok, "row has no Value column: %v", res.Rows[0])
	assert.InDelta(t, want, got, 0.001)
	return res.Rows[0]
}

func TestResolveAgainstWarehouse_FiscalYear(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "What was UBL's total assets in FY2024?", "")
	require.NoError(t, err)

	row := requireSingleValue(t, res, 3000000)

	company, _ := warehouse.FieldString(row, "Company")
	assert.Equal(t, "United Bank Limited", company)
	metric, _ := warehouse.FieldString(row, "Metric")
	assert.Equal(t, "Total Assets", metric)
	term, _ := warehouse.FieldString(row, "Term")
	assert.Equal(t, "12M", term)
	consolidation, _ := warehouse.FieldString(row, "Consolidation")
	assert.Equal(t, "Unconsolidated", consolidation)
	unit, _ := warehouse.FieldString(row, "Unit")
	assert.Equal(t, "PKR Million", unit)

	assert.Equal(t,
		[]any{testhelpers.FixtureCompanyUBL, testhelpers.FixtureHeadTotalAssets, models.ConsolidationUnconsolidated, 4, 2024},
		res.Args)
}

func TestResolveAgainstWarehouse_QuarterBucket(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	// Q2 is the cumulative six-month bucket of the base table.
	res, err := svc.Resolve(context.Background(), "What was UBL's net income in Q2 2024?", "")
	require.NoError(t, err)

	row := requireSingleValue(t, res, 29000)
	term, _ := warehouse.FieldString(row, "Term")
	assert.Equal(t, "6M", term)
}

func TestResolveAgainstWarehouse_Latest(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "What is the latest total assets of UBL?", "")
	require.NoError(t, err)

	require.NotNil(t, res.Spec.Period.PeriodEnd)
	assert.Equal(t, "2024-12-31", res.Spec.Period.PeriodEnd.Format("2006-01-02"))
	requireSingleValue(t, res, 3000000)
}

func TestResolveAgainstWarehouse_TrailingTwelveMonths(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "UBL net income ttm", "")
	require.NoError(t, err)

	assert.Equal(t, models.FamilyTTM, res.Spec.Period.Family)
	assert.Contains(t, res.SQL, "tbl_financialrawdataTTM")
	row := requireSingleValue(t, res, 61000)
	term, _ := warehouse.FieldString(row, "Term")
	assert.Equal(t, "TTM", term)
}

func TestResolveAgainstWarehouse_PerShareBreakdown(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "What is the EPS of UBL?", "")
	require.NoError(t, err)

	assert.Equal(t, models.KindDissection, res.Spec.Head.Kind)
	assert.Equal(t, models.DissectionPerShare, res.Spec.Head.DissectionGroupID)
	requireSingleValue(t, res, 49.8)
}

func TestResolveAgainstWarehouse_RatioMetric(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "UBL return on equity FY2024", "")
	require.NoError(t, err)

	assert.Equal(t, models.KindRatio, res.Spec.Head.Kind)
	assert.Contains(t, res.SQL, "tbl_ratiorawdata")
	requireSingleValue(t, res, 19.5)
}

func TestResolveAgainstWarehouse_ConsolidationOverride(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(), "What was UBL's total assets in FY2024?", "consolidated")
	require.NoError(t, err)

	assert.Equal(t, models.ConsolidationConsolidated, res.Spec.ConsolidationID)
	requireSingleValue(t, res, 3100000)
}

func TestResolveAgainstWarehouse_JuneFiscalYearEnd(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	res, err := svc.Resolve(context.Background(),
		"Millat Tractors depreciation and amortisation for FY2024", "")
	require.NoError(t, err)

	assert.Equal(t, testhelpers.FixtureCompanyMTL, res.Spec.Company.Company.CompanyID)
	row := requireSingleValue(t, res, 1000)

	// June year end: FY2024 closed on 2024-06-30.
	periodEnd, ok := warehouse.FieldTime(row, "PeriodEnd")
	require.True(t, ok)
	assert.Equal(t, "2024-06-30", periodEnd.Format("2006-01-02"))
}

func TestResolveAgainstWarehouse_UnknownCompany(t *testing.T) {
	svc := newWarehouseResolutionService(t)

	_, err := svc.Resolve(context.Background(), "What was Zorbco's net income in 2024?", "")
	require.Error(t, err)

	var notFound *apperrors.CompanyNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "zorbco", notFound.Phrase)
}
