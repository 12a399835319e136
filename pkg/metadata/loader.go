package metadata

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// Reference-table queries. The loader owns this list; nothing else in the
// engine reads metadata tables directly.
const (
	companiesQuery = "SELECT CompanyID, CompanyName, Symbol, SectorID, FiscalYearEnd FROM tbl_companieslist"
	// Legacy warehouses predate the FiscalYearEnd column.
	companiesLegacyQuery = "SELECT CompanyID, CompanyName, Symbol, SectorID FROM tbl_companieslist"
	sectorsQuery         = "SELECT SectorID, SectorName FROM tbl_sectornames"
	industriesQuery      = "SELECT IndustryID, IndustryName FROM tbl_industrynames"
	mappingQuery         = "SELECT SectorID, IndustryID FROM tbl_industryandsectormapping"
	headsQuery           = "SELECT SubHeadID, SubHeadName, IndustryID FROM tbl_headsmaster"
	ratioHeadsQuery      = "SELECT SubHeadID, HeadNames, IndustryID FROM tbl_ratiosheadmaster"
	groupsQuery          = "SELECT DisectionGroupID, DisectionGroupName FROM tbl_disectionmaster"
	termsQuery           = "SELECT TermID, Term FROM tbl_terms"
	consolidationsQuery  = "SELECT ConsolidationID, ConsolidationName FROM tbl_consolidation"
	unitsQuery           = "SELECT UnitID, UnitName FROM tbl_unitofmeasurement"
)

// Loader reads the warehouse reference tables and assembles snapshots.
type Loader struct {
	exec   warehouse.Executor
	logger *zap.Logger
}

// NewLoader creates a metadata loader over a warehouse executor.
func NewLoader(exec warehouse.Executor, logger *zap.Logger) *Loader {
	return &Loader{exec: exec, logger: logger}
}

// Load reads all ten reference tables and builds a fresh snapshot.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	var t Tables
	var err error

	if t.Companies, err = l.loadCompanies(ctx); err != nil {
		return nil, err
	}
	if t.Sectors, err = l.loadSectors(ctx); err != nil {
		return nil, err
	}
	if t.Industries, err = l.loadIndustries(ctx); err != nil {
		return nil, err
	}
	if t.SectorIndustries, err = l.loadMapping(ctx); err != nil {
		return nil, err
	}
	if t.RegularHeads, err = l.loadHeads(ctx, headsQuery, "SubHeadName", false); err != nil {
		return nil, err
	}
	if t.RatioHeads, err = l.loadHeads(ctx, ratioHeadsQuery, "HeadNames", true); err != nil {
		return nil, err
	}
	if t.DissectionGroups, err = l.loadGroups(ctx); err != nil {
		return nil, err
	}
	if t.Terms, err = l.loadTerms(ctx); err != nil {
		return nil, err
	}
	if t.Consolidations, err = l.loadConsolidations(ctx); err != nil {
		return nil, err
	}
	if t.Units, err = l.loadUnits(ctx); err != nil {
		return nil, err
	}

	return NewSnapshot(t), nil
}

// pageRows fetches every row of a reference table in bounded pages. The
// ORDER BY ... OFFSET n ROWS form is valid on both PostgreSQL and SQL
// Server, so paging stays inside the executor's limit contract.
func (l *Loader) pageRows(ctx context.Context, baseQuery, orderColumn string) ([]map[string]any, error) {
	var rows []map[string]any
	for offset := 0; ; offset += warehouse.MaxQueryLimit {
		q := fmt.Sprintf("%s ORDER BY %s OFFSET %d ROWS", baseQuery, orderColumn, offset)
		res, err := l.exec.Query(ctx, q, warehouse.MaxQueryLimit)
		if err != nil {
			return nil, err
		}
		rows = append(rows, res.Rows...)
		if res.RowCount < warehouse.MaxQueryLimit {
			return rows, nil
		}
	}
}

func (l *Loader) loadCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := l.pageRows(ctx, companiesQuery, "CompanyID")
	if err != nil {
		l.logger.Warn("FiscalYearEnd column unavailable, loading companies with calendar year ends",
			zap.Error(err))
		rows, err = l.pageRows(ctx, companiesLegacyQuery, "CompanyID")
		if err != nil {
			return nil, fmt.Errorf("load companies: %w", err)
		}
	}

	companies := make([]models.Company, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "CompanyID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "CompanyName")
		ticker, _ := warehouse.FieldString(row, "Symbol")
		sectorID, _ := warehouse.FieldInt(row, "SectorID")
		fyEnd, ok := warehouse.FieldInt(row, "FiscalYearEnd")
		if !ok || fyEnd < 1 || fyEnd > 12 {
			fyEnd = 12
		}
		companies = append(companies, models.Company{
			CompanyID:          id,
			Name:               name,
			Ticker:             ticker,
			SectorID:           sectorID,
			FiscalYearEndMonth: fyEnd,
		})
	}
	return companies, nil
}

func (l *Loader) loadSectors(ctx context.Context) ([]models.Sector, error) {
	rows, err := l.pageRows(ctx, sectorsQuery, "SectorID")
	if err != nil {
		return nil, fmt.Errorf("load sectors: %w", err)
	}
	sectors := make([]models.Sector, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "SectorID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "SectorName")
		sectors = append(sectors, models.Sector{SectorID: id, Name: name})
	}
	return sectors, nil
}

func (l *Loader) loadIndustries(ctx context.Context) ([]models.Industry, error) {
	rows, err := l.pageRows(ctx, industriesQuery, "IndustryID")
	if err != nil {
		return nil, fmt.Errorf("load industries: %w", err)
	}
	industries := make([]models.Industry, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "IndustryID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "IndustryName")
		industries = append(industries, models.Industry{IndustryID: id, Name: name})
	}
	return industries, nil
}

func (l *Loader) loadMapping(ctx context.Context) ([]models.IndustrySectorMapping, error) {
	rows, err := l.pageRows(ctx, mappingQuery, "SectorID")
	if err != nil {
		return nil, fmt.Errorf("load industry/sector mapping: %w", err)
	}
	mapping := make([]models.IndustrySectorMapping, 0, len(rows))
	for _, row := range rows {
		sectorID, ok := warehouse.FieldInt(row, "SectorID")
		if !ok {
			continue
		}
		industryID, ok := warehouse.FieldInt(row, "IndustryID")
		if !ok {
			continue
		}
		mapping = append(mapping, models.IndustrySectorMapping{SectorID: sectorID, IndustryID: industryID})
	}
	return mapping, nil
}

func (l *Loader) loadHeads(ctx context.Context, query, nameColumn string, ratioMaster bool) ([]models.MetricHead, error) {
	rows, err := l.pageRows(ctx, query, "SubHeadID")
	if err != nil {
		return nil, fmt.Errorf("load heads: %w", err)
	}

	kind := models.KindRegular
	if ratioMaster {
		kind = models.KindRatio
	}

	heads := make([]models.MetricHead, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "SubHeadID")
		if !ok || id <= 0 {
			continue
		}
		name, ok := warehouse.FieldString(row, nameColumn)
		if !ok || name == "" {
			continue
		}
		industryID, _ := warehouse.FieldInt(row, "IndustryID")
		heads = append(heads, models.MetricHead{
			HeadID:      id,
			Name:        name,
			IndustryID:  industryID,
			Kind:        kind,
			RatioMaster: ratioMaster,
		})
	}
	return heads, nil
}

func (l *Loader) loadGroups(ctx context.Context) ([]models.DissectionGroup, error) {
	rows, err := l.pageRows(ctx, groupsQuery, "DisectionGroupID")
	if err != nil {
		return nil, fmt.Errorf("load dissection groups: %w", err)
	}
	groups := make([]models.DissectionGroup, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "DisectionGroupID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "DisectionGroupName")
		groups = append(groups, models.DissectionGroup{GroupID: id, Name: name})
	}
	return groups, nil
}

func (l *Loader) loadTerms(ctx context.Context) ([]models.Term, error) {
	rows, err := l.pageRows(ctx, termsQuery, "TermID")
	if err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}
	terms := make([]models.Term, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "TermID")
		if !ok || id <= 0 {
			continue
		}
		label, _ := warehouse.FieldString(row, "Term")
		terms = append(terms, models.Term{TermID: id, Label: label})
	}
	return terms, nil
}

func (l *Loader) loadConsolidations(ctx context.Context) ([]models.ConsolidationType, error) {
	rows, err := l.pageRows(ctx, consolidationsQuery, "ConsolidationID")
	if err != nil {
		return nil, fmt.Errorf("load consolidations: %w", err)
	}
	consolidations := make([]models.ConsolidationType, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "ConsolidationID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "ConsolidationName")
		consolidations = append(consolidations, models.ConsolidationType{ConsolidationID: id, Name: name})
	}
	return consolidations, nil
}

func (l *Loader) loadUnits(ctx context.Context) ([]models.Unit, error) {
	rows, err := l.pageRows(ctx, unitsQuery, "UnitID")
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	units := make([]models.Unit, 0, len(rows))
	for _, row := range rows {
		id, ok := warehouse.FieldInt(row, "UnitID")
		if !ok || id <= 0 {
			continue
		}
		name, _ := warehouse.FieldString(row, "UnitName")
		units = append(units, models.Unit{UnitID: id, Name: name})
	}
	return units, nil
}
