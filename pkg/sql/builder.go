// Package sql assembles parameterized warehouse retrievals from resolved
// identifiers. Free text never reaches this package: every filter value is
// a bound parameter, and bound strings are additionally screened with
// libinjection before a query is lowered to SQL.
package sql

import (
	"fmt"
	"strings"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// Warehouse data tables, fixed by the warehouse schema.
const (
	TableFinancialAnnual   = "tbl_financialrawdata"
	TableFinancialQuarter  = "tbl_financialrawdata_Quarter"
	TableFinancialTTM      = "tbl_financialrawdataTTM"
	TableRatio             = "tbl_ratiorawdata"
	TableDissectionAnnual  = "tbl_disectionrawdata"
	TableDissectionQuarter = "tbl_disectionrawdata_Quarter"
	TableDissectionTTM     = "tbl_disectionrawdataTTM"
	TableDissectionRatios  = "tbl_disectionrawdata_Ratios"
)

// Head master tables joined for display names.
const (
	tableHeads      = "tbl_headsmaster"
	tableRatioHeads = "tbl_ratiosheadmaster"
)

// Op is a predicate comparison operator.
type Op string

// OpEq is the only operator retrievals use; every filter the resolution
// pipeline produces is an equality against a bound value.
const OpEq Op = "="

// Predicate is one ANDed filter on the data table.
type Predicate struct {
	Column string
	Op     Op
	Value  any
}

// Query is a lowered, executable retrieval: PostgreSQL-placeholder SQL plus
// the ordered bound arguments. The SQL Server executor converts $n to @pN.
type Query struct {
	SQL  string
	Args []any
}

// Mode selects what a retrieval returns.
type Mode int

const (
	// ModeRetrieve is the full projection with display-name joins.
	ModeRetrieve Mode = iota
	// ModeCount is the COUNT(*) existence probe the metric validator runs
	// against candidate heads.
	ModeCount
	// ModeGroupScan counts rows per dissection group, the fallback used
	// when the group-filtered probe comes back empty.
	ModeGroupScan
	// ModeLatest scans for the newest period-end row, anchoring relative
	// period phrases on periods that actually have data.
	ModeLatest
)

// RetrievalQuery is the structured form of a warehouse retrieval, assembled
// from resolved identifiers and lowered to SQL in a separate step.
type RetrievalQuery struct {
	Mode        Mode
	Table       string
	HeadTable   string
	HeadNameCol string
	Predicates  []Predicate

	// Offset skips rows newest-first in ModeLatest: 0 is the newest
	// period, 1 the one before it.
	Offset int

	projectGroup bool
}

// Build assembles the full retrieval for a validated query spec.
func Build(spec models.ResolvedQuerySpec) (*RetrievalQuery, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query spec: %w", err)
	}
	period := spec.Period
	return assemble(spec.Company.Company.CompanyID, spec.Head, &period, spec.ConsolidationID, ModeRetrieve, "")
}

// BuildCount assembles the existence probe for a candidate head. period may
// be nil when the validator has no period filter to apply yet.
func BuildCount(companyID int, head models.MetricHead, period *models.ResolvedPeriod, consolidationID int) (*RetrievalQuery, error) {
	return assemble(companyID, head, period, consolidationID, ModeCount, "")
}

// BuildCountForFamily is the existence probe with an explicit table family,
// for probes that run before the period is known: a trailing-twelve-month
// phrase forces the TTM variant while the period is still relative.
func BuildCountForFamily(companyID int, head models.MetricHead, family models.TableFamily, consolidationID int) (*RetrievalQuery, error) {
	return assemble(companyID, head, nil, consolidationID, ModeCount, family)
}

// BuildGroupScan assembles the dissection fallback that counts rows per
// group for a head, best-evidenced group first.
func BuildGroupScan(companyID int, head models.MetricHead, period *models.ResolvedPeriod, consolidationID int) (*RetrievalQuery, error) {
	if head.Kind != models.KindDissection {
		return nil, fmt.Errorf("group scan requires a dissection head, got %s head %d", head.Kind, head.HeadID)
	}
	return assemble(companyID, head, period, consolidationID, ModeGroupScan, "")
}

// BuildGroupScanForFamily is the group scan with an explicit table family,
// the companion of BuildCountForFamily for pre-period probes.
func BuildGroupScanForFamily(companyID int, head models.MetricHead, family models.TableFamily, consolidationID int) (*RetrievalQuery, error) {
	if head.Kind != models.KindDissection {
		return nil, fmt.Errorf("group scan requires a dissection head, got %s head %d", head.Kind, head.HeadID)
	}
	return assemble(companyID, head, nil, consolidationID, ModeGroupScan, family)
}

// LatestSpec parameterizes a newest-first period scan for a resolved head.
type LatestSpec struct {
	CompanyID       int
	Head            models.MetricHead
	Family          models.TableFamily
	ConsolidationID int

	// TermID narrows the scan to one reporting term. Used when the
	// quarterly variant is empty and the scan falls back to the base
	// table's three-month rows.
	TermID int
	// Offset skips rows newest-first: 0 is the newest period, 1 the one
	// before it ("previous quarter").
	Offset int
}

// BuildLatest assembles the newest-period scan that anchors relative period
// phrases ("latest", "last quarter") on rows that exist.
func BuildLatest(spec LatestSpec) (*RetrievalQuery, error) {
	if err := spec.Head.Validate(); err != nil {
		return nil, err
	}
	if spec.CompanyID <= 0 {
		return nil, fmt.Errorf("company id is required")
	}
	if spec.Offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative, got %d", spec.Offset)
	}
	table, err := tableFor(spec.Head, spec.Family)
	if err != nil {
		return nil, err
	}

	preds := []Predicate{
		{Column: "CompanyID", Op: OpEq, Value: spec.CompanyID},
		{Column: "SubHeadID", Op: OpEq, Value: spec.Head.HeadID},
	}
	if spec.Head.Kind == models.KindDissection {
		preds = append(preds, Predicate{Column: "DisectionGroupID", Op: OpEq, Value: spec.Head.DissectionGroupID})
	}
	if spec.ConsolidationID > 0 {
		preds = append(preds, Predicate{Column: "ConsolidationID", Op: OpEq, Value: spec.ConsolidationID})
	}
	if spec.TermID > 0 {
		preds = append(preds, Predicate{Column: "TermID", Op: OpEq, Value: spec.TermID})
	}

	return &RetrievalQuery{
		Mode:       ModeLatest,
		Table:      table,
		Predicates: preds,
		Offset:     spec.Offset,
	}, nil
}

func assemble(companyID int, head models.MetricHead, period *models.ResolvedPeriod, consolidationID int, mode Mode, family models.TableFamily) (*RetrievalQuery, error) {
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if companyID <= 0 {
		return nil, fmt.Errorf("company id is required")
	}

	if period != nil {
		if err := period.Validate(); err != nil {
			return nil, err
		}
		if family == "" {
			family = period.Family
		}
	}
	if family == "" {
		family = models.FamilyAnnual
	}

	table, err := tableFor(head, family)
	if err != nil {
		return nil, err
	}
	headTable, headNameCol := headJoin(head)

	preds := []Predicate{
		{Column: "CompanyID", Op: OpEq, Value: companyID},
		{Column: "SubHeadID", Op: OpEq, Value: head.HeadID},
	}
	if head.Kind == models.KindDissection && mode != ModeGroupScan {
		preds = append(preds, Predicate{Column: "DisectionGroupID", Op: OpEq, Value: head.DissectionGroupID})
	}
	if consolidationID > 0 {
		preds = append(preds, Predicate{Column: "ConsolidationID", Op: OpEq, Value: consolidationID})
	}
	if period != nil {
		switch {
		case period.HasPeriodEnd():
			preds = append(preds, Predicate{Column: "PeriodEnd", Op: OpEq, Value: *period.PeriodEnd})
		case period.HasTerm():
			preds = append(preds,
				Predicate{Column: "TermID", Op: OpEq, Value: period.TermID},
				Predicate{Column: "FY", Op: OpEq, Value: period.FiscalYear})
		}
	}

	return &RetrievalQuery{
		Mode:         mode,
		Table:        table,
		HeadTable:    headTable,
		HeadNameCol:  headNameCol,
		Predicates:   preds,
		projectGroup: head.Kind == models.KindDissection,
	}, nil
}

// tableFor selects the data table from the head kind, the period's table
// family, and (for dissection heads) the group's data family. A TTM period
// overrides the group family so trailing-twelve-month breakdowns land on
// the TTM variant.
func tableFor(head models.MetricHead, family models.TableFamily) (string, error) {
	switch head.Kind {
	case models.KindRatio:
		// Ratio data lives in one table across all term granularities.
		return TableRatio, nil

	case models.KindRegular:
		switch family {
		case models.FamilyQuarterly:
			return TableFinancialQuarter, nil
		case models.FamilyTTM:
			return TableFinancialTTM, nil
		case models.FamilyAnnual, models.TableFamily(""):
			return TableFinancialAnnual, nil
		default:
			return "", fmt.Errorf("regular head %d has no table for family %q", head.HeadID, family)
		}

	case models.KindDissection:
		if family == models.FamilyTTM {
			return TableDissectionTTM, nil
		}
		switch models.DissectionGroupFamily(head.DissectionGroupID) {
		case models.FamilyQuarterly:
			return TableDissectionQuarter, nil
		case models.FamilyRatio:
			return TableDissectionRatios, nil
		default:
			return TableDissectionAnnual, nil
		}
	}
	return "", fmt.Errorf("unknown metric kind %q", head.Kind)
}

// headJoin picks the master table whose display name the projection carries.
func headJoin(head models.MetricHead) (table, nameCol string) {
	if head.Kind == models.KindRatio || head.RatioMaster {
		return tableRatioHeads, "HeadNames"
	}
	return tableHeads, "SubHeadName"
}

// Lower renders the query as PostgreSQL-placeholder SQL with ordered args.
// Bound string values are screened with libinjection first. Values are
// bound parameters either way, so a hit means hostile text slipped through
// resolution and the retrieval is aborted.
func (q *RetrievalQuery) Lower() (*Query, error) {
	for _, p := range q.Predicates {
		if hit := CheckParameterForInjection(p.Column, p.Value); hit != nil {
			return nil, fmt.Errorf("parameter %q rejected by injection screen (fingerprint %s): %w",
				hit.ParamName, hit.Fingerprint, apperrors.ErrQueryExecution)
		}
	}

	var sb strings.Builder
	switch q.Mode {
	case ModeCount:
		fmt.Fprintf(&sb, "SELECT COUNT(*) AS cnt FROM %s f", q.Table)
	case ModeGroupScan:
		fmt.Fprintf(&sb, "SELECT f.DisectionGroupID AS DisectionGroupID, COUNT(*) AS cnt FROM %s f", q.Table)
	case ModeLatest:
		fmt.Fprintf(&sb, "SELECT f.TermID AS TermID, f.PeriodEnd AS PeriodEnd FROM %s f", q.Table)
	default:
		sb.WriteString("SELECT f.Value_ AS Value, u.unitname AS Unit, t.term AS Term, c.CompanyName AS Company, ")
		fmt.Fprintf(&sb, "h.%s AS Metric, con.consolidationname AS Consolidation, f.PeriodEnd AS PeriodEnd", q.HeadNameCol)
		if q.projectGroup {
			sb.WriteString(", f.DisectionGroupID AS DisectionGroupID")
		}
		fmt.Fprintf(&sb, " FROM %s f", q.Table)
		sb.WriteString(" JOIN tbl_companieslist c ON f.CompanyID = c.CompanyID")
		fmt.Fprintf(&sb, " JOIN %s h ON f.SubHeadID = h.SubHeadID", q.HeadTable)
		sb.WriteString(" JOIN tbl_unitofmeasurement u ON h.UnitID = u.UnitID")
		sb.WriteString(" JOIN tbl_terms t ON f.TermID = t.TermID")
		sb.WriteString(" JOIN tbl_consolidation con ON f.ConsolidationID = con.ConsolidationID")
	}

	args := make([]any, 0, len(q.Predicates))
	for i, p := range q.Predicates {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		args = append(args, p.Value)
		fmt.Fprintf(&sb, "f.%s %s $%d", p.Column, p.Op, len(args))
	}

	switch q.Mode {
	case ModeCount:
	case ModeGroupScan:
		sb.WriteString(" GROUP BY f.DisectionGroupID ORDER BY COUNT(*) DESC")
	case ModeLatest:
		// OFFSET/FETCH is valid on both PostgreSQL and SQL Server, so the
		// single-row window needs no dialect-specific rendering.
		fmt.Fprintf(&sb, " ORDER BY f.PeriodEnd DESC OFFSET %d ROWS FETCH NEXT 1 ROWS ONLY", q.Offset)
	default:
		sb.WriteString(" ORDER BY f.PeriodEnd DESC")
	}

	return &Query{SQL: sb.String(), Args: args}, nil
}
