package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// fakeExecutor routes existence probes and retrievals to canned answers.
// Probe SQL always binds company id then head id first, so countFn can key
// on params[1] without parsing SQL.
type fakeExecutor struct {
	countFn func(query string, params []any) (int64, error)
	queryFn func(query string, params []any, limit int) (*warehouse.Result, error)

	countSQL []string
	querySQL []string
}

func (f *fakeExecutor) Query(ctx context.Context, query string, limit int) (*warehouse.Result, error) {
	return f.QueryWithParams(ctx, query, nil, limit)
}

func (f *fakeExecutor) QueryWithParams(_ context.Context, query string, params []any, limit int) (*warehouse.Result, error) {
	f.querySQL = append(f.querySQL, query)
	if f.queryFn == nil {
		return &warehouse.Result{}, nil
	}
	return f.queryFn(query, params, limit)
}

func (f *fakeExecutor) QueryRowCount(_ context.Context, query string, params []any) (int64, error) {
	f.countSQL = append(f.countSQL, query)
	if f.countFn == nil {
		return 0, nil
	}
	return f.countFn(query, params)
}

func (f *fakeExecutor) Ping(context.Context) error { return nil }
func (f *fakeExecutor) Close() error               { return nil }

var _ warehouse.Executor = (*fakeExecutor)(nil)

// countsByHead answers COUNT(*) probes from a head-id table; heads not
// listed count zero.
func countsByHead(counts map[int]int64) func(string, []any) (int64, error) {
	return func(_ string, params []any) (int64, error) {
		if len(params) < 2 {
			return 0, nil
		}
		headID, _ := params[1].(int)
		return counts[headID], nil
	}
}

// Fixture ids, shared across the service tests.
const (
	companyUBL    = 123
	companyMTL    = 200
	companyNestle = 300
	companyUBH    = 401
	companyAKB    = 501
	companyABG    = 502

	headDepAmortBanking = 89
	headDepAmortMfg     = 480
	headDepAmortExpense = 124
	headAccumDepAmort   = 139
	headNetIncome       = 7
	headRevenue         = 8
	headTotalAssets     = 9
	headROE             = 305
	headPERatio         = 307
	headNetIncomeRatio  = 310

	term3M  = 1
	term6M  = 2
	term9M  = 3
	term12M = 4
	termTTM = 6
)

// testSnapshot builds the reference universe the service tests run against:
// a banking company (UBL), a manufacturer (MTL, June fiscal year end), a
// food producer (NESTLE), a second "United Bank ..." for tied-score
// ambiguity cases, and an "Askari ..." pair whose scores split for
// clear-leader ambiguity cases.
func testSnapshot() *metadata.Snapshot {
	return metadata.NewSnapshot(metadata.Tables{
		Companies: []models.Company{
			{CompanyID: companyUBL, Name: "United Bank Limited", Ticker: "UBL", SectorID: 10, IndustryID: 100, FiscalYearEndMonth: 12},
			{CompanyID: companyMTL, Name: "Millat Tractors Limited", Ticker: "MTL", SectorID: 30, IndustryID: 200, FiscalYearEndMonth: 6},
			{CompanyID: companyNestle, Name: "Nestle Pakistan Limited", Ticker: "NESTLE", SectorID: 40, IndustryID: 300, FiscalYearEndMonth: 12},
			{CompanyID: companyUBH, Name: "United Bank Holdings", Ticker: "UBH", SectorID: 10, IndustryID: 100, FiscalYearEndMonth: 12},
			{CompanyID: companyAKB, Name: "Askari Bank Limited", Ticker: "AKBL", SectorID: 10, IndustryID: 100, FiscalYearEndMonth: 12},
			{CompanyID: companyABG, Name: "Askari Banking Group Holdings", Ticker: "ABGH", SectorID: 10, IndustryID: 100, FiscalYearEndMonth: 12},
		},
		Sectors: []models.Sector{
			{SectorID: 10, Name: "Commercial Banks"},
			{SectorID: 30, Name: "Automobile Assembler"},
			{SectorID: 40, Name: "Food & Personal Care"},
		},
		Industries: []models.Industry{
			{IndustryID: 100, Name: "Banking"},
			{IndustryID: 200, Name: "Manufacturing"},
			{IndustryID: 300, Name: "Food"},
		},
		SectorIndustries: []models.IndustrySectorMapping{
			{SectorID: 10, IndustryID: 100},
			{SectorID: 30, IndustryID: 200},
			{SectorID: 40, IndustryID: 300},
		},
		RegularHeads: []models.MetricHead{
			models.NewRegularHead(headDepAmortBanking, "Depreciation and Amortisation", 100),
			models.NewRegularHead(headDepAmortMfg, "Depreciation and Amortisation", 200),
			models.NewRegularHead(headDepAmortExpense, "Depreciation and Amortisation Expense", 100),
			models.NewRegularHead(headAccumDepAmort, "Accumulated Depreciation and Amortisation", 100),
			models.NewRegularHead(headNetIncome, "Net Income", 100),
			models.NewRegularHead(headRevenue, "Revenue", 100),
			models.NewRegularHead(headTotalAssets, "Total Assets", 100),
		},
		RatioHeads: []models.MetricHead{
			models.NewRatioHead(headROE, "Return on Equity", 100),
			models.NewRatioHead(headPERatio, "PE Ratio", 100),
			models.NewRatioHead(headNetIncomeRatio, "Net Income", 100),
		},
		DissectionGroups: []models.DissectionGroup{
			{GroupID: models.DissectionPerShare, Name: "Per Share"},
			{GroupID: models.DissectionAnnualGrowth, Name: "Annual Growth"},
			{GroupID: models.DissectionPercentOfAssets, Name: "Percentage of Assets"},
			{GroupID: models.DissectionPercentOfSales, Name: "Percentage of Sales"},
			{GroupID: models.DissectionQuarterlyGrowth, Name: "Quarterly Growth"},
		},
		Terms: []models.Term{
			{TermID: term3M, Label: "3M"},
			{TermID: term6M, Label: "6M"},
			{TermID: term9M, Label: "9M"},
			{TermID: term12M, Label: "12M"},
			{TermID: termTTM, Label: "TTM"},
		},
		Consolidations: []models.ConsolidationType{
			{ConsolidationID: models.ConsolidationConsolidated, Name: "Consolidated"},
			{ConsolidationID: models.ConsolidationUnconsolidated, Name: "Unconsolidated"},
		},
		Units: []models.Unit{
			{UnitID: 1, Name: "PKR in 000"},
		},
	})
}

func testStore() *metadata.Store {
	return metadata.NewStaticStore(testSnapshot())
}

func testLexicon(t *testing.T) *Lexicon {
	t.Helper()
	lex, err := NewLexicon()
	require.NoError(t, err)
	return lex
}

func ublContext() models.CompanyContext {
	return testSnapshot().ContextFor(models.Company{
		CompanyID: companyUBL, Name: "United Bank Limited", Ticker: "UBL",
		SectorID: 10, IndustryID: 100, FiscalYearEndMonth: 12,
	})
}
