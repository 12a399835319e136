package testhelpers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Fixture ids. Mirrors the snapshot the service unit tests run against, so
// integration tests can make the same assertions against real tables.
const (
	FixtureCompanyUBL    = 123 // United Bank Limited, banking, December fiscal year end
	FixtureCompanyMTL    = 200 // Millat Tractors Limited, manufacturing, June fiscal year end
	FixtureCompanyNestle = 300 // Nestle Pakistan Limited, no fact rows seeded
	FixtureCompanyUBH    = 401 // United Bank Holdings, for ambiguity cases

	FixtureHeadNetIncome   = 7
	FixtureHeadRevenue     = 8
	FixtureHeadTotalAssets = 9
	FixtureHeadDepAmort    = 480 // manufacturing industry head
	FixtureHeadROE         = 305 // ratio head
)

// seedStatements is applied once after migrations. Statements run in order;
// fact rows reference the dimension rows seeded by the migrations themselves
// (terms, consolidation modes, dissection groups, units).
var seedStatements = []string{
	`INSERT INTO tbl_sectornames (SectorID, SectorName) VALUES
		(10, 'Commercial Banks'),
		(30, 'Automobile Assembler'),
		(40, 'Food & Personal Care')`,

	`INSERT INTO tbl_industrynames (IndustryID, IndustryName) VALUES
		(100, 'Banking'),
		(200, 'Manufacturing'),
		(300, 'Food')`,

	`INSERT INTO tbl_industryandsectormapping (SectorID, IndustryID) VALUES
		(10, 100),
		(30, 200),
		(40, 300)`,

	`INSERT INTO tbl_companieslist (CompanyID, CompanyName, Symbol, SectorID, FiscalYearEnd) VALUES
		(123, 'United Bank Limited', 'UBL', 10, 12),
		(200, 'Millat Tractors Limited', 'MTL', 30, 6),
		(300, 'Nestle Pakistan Limited', 'NESTLE', 40, 12),
		(401, 'United Bank Holdings', 'UBH', 10, 12)`,

	`INSERT INTO tbl_headsmaster (SubHeadID, SubHeadName, IndustryID, UnitID) VALUES
		(7, 'Net Income', 100, 3),
		(8, 'Revenue', 100, 3),
		(9, 'Total Assets', 100, 3),
		(89, 'Depreciation and Amortisation', 100, 3),
		(480, 'Depreciation and Amortisation', 200, 3)`,

	`INSERT INTO tbl_ratiosheadmaster (SubHeadID, HeadNames, IndustryID, UnitID) VALUES
		(305, 'Return on Equity', 100, 4),
		(307, 'PE Ratio', 100, 5)`,

	// Base facts are cumulative spans: net income FY2024 carries all four
	// term buckets so "Q2 2024" (the 6M bucket) resolves. Total assets, a
	// point-in-time metric, only has year-end rows. MTL's June year end
	// exercises fiscal year alignment. Consolidated rows exist only for UBL
	// FY2024.
	`INSERT INTO tbl_financialrawdata (CompanyID, SubHeadID, TermID, FY, PeriodEnd, ConsolidationID, Value_) VALUES
		(123, 9, 4, 2022, '2022-12-31', 2, 2500000),
		(123, 9, 4, 2023, '2023-12-31', 2, 2750000),
		(123, 9, 4, 2024, '2024-12-31', 2, 3000000),
		(123, 9, 4, 2024, '2024-12-31', 1, 3100000),
		(123, 7, 4, 2023, '2023-12-31', 2, 52000),
		(123, 7, 1, 2024, '2024-03-31', 2, 14000),
		(123, 7, 2, 2024, '2024-06-30', 2, 29000),
		(123, 7, 3, 2024, '2024-09-30', 2, 45000),
		(123, 7, 4, 2024, '2024-12-31', 2, 61000),
		(123, 7, 4, 2024, '2024-12-31', 1, 63000),
		(123, 8, 4, 2024, '2024-12-31', 2, 150000),
		(200, 480, 4, 2023, '2023-06-30', 2, 900),
		(200, 480, 4, 2024, '2024-06-30', 2, 1000)`,

	// Discrete-quarter values; each row spans three months, so they all
	// carry the 3M term and differ by period end.
	`INSERT INTO tbl_financialrawdata_Quarter (CompanyID, SubHeadID, TermID, FY, PeriodEnd, ConsolidationID, Value_) VALUES
		(123, 7, 1, 2024, '2024-03-31', 2, 14000),
		(123, 7, 1, 2024, '2024-06-30', 2, 15000),
		(123, 7, 1, 2024, '2024-09-30', 2, 16000),
		(123, 7, 1, 2024, '2024-12-31', 2, 16000)`,

	`INSERT INTO tbl_financialrawdataTTM (CompanyID, SubHeadID, TermID, FY, PeriodEnd, ConsolidationID, Value_) VALUES
		(123, 7, 6, 2024, '2024-09-30', 2, 59000),
		(123, 7, 6, 2024, '2024-12-31', 2, 61000)`,

	`INSERT INTO tbl_ratiorawdata (CompanyID, SubHeadID, TermID, FY, PeriodEnd, ConsolidationID, Value_) VALUES
		(123, 305, 4, 2023, '2023-12-31', 2, 18.2),
		(123, 305, 4, 2024, '2024-12-31', 2, 19.5)`,

	// Per-share breakdown of net income, i.e. earnings per share.
	`INSERT INTO tbl_disectionrawdata (CompanyID, SubHeadID, DisectionGroupID, TermID, FY, PeriodEnd, ConsolidationID, Value_) VALUES
		(123, 7, 1, 4, 2023, '2023-12-31', 2, 42.5),
		(123, 7, 1, 4, 2024, '2024-12-31', 2, 49.8)`,
}

// seedWarehouse loads the fixture dataset. Idempotence comes from the shared
// container being seeded exactly once per test binary, so plain INSERTs are
// fine and conflicts surface as loud failures rather than silent skips.
func seedWarehouse(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range seedStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("seed statement %d: %w", i+1, err)
		}
	}
	return nil
}
