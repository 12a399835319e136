package models

import (
	"fmt"
	"time"
)

// TableFamily selects which data table variant a query targets. Annual is
// the base cumulative table; Quarterly and TTM are its discrete-quarter and
// trailing-twelve-month variants; Ratio is the ratio data family.
type TableFamily string

const (
	FamilyAnnual    TableFamily = "annual"
	FamilyQuarterly TableFamily = "quarterly"
	FamilyTTM       TableFamily = "ttm"
	FamilyRatio     TableFamily = "ratio"
)

// Term is a reporting-period label row. Labels are cumulative-month buckets
// ("3M", "6M", "9M", "12M") plus "TTM"; quarters alias onto them (Q1 is the
// first three months, Q2 the first six, and so on).
type Term struct {
	TermID int    `json:"term_id"`
	Label  string `json:"label"`
}

// Consolidation identifiers, fixed by the warehouse.
const (
	ConsolidationConsolidated   = 1
	ConsolidationUnconsolidated = 2
)

// ConsolidationType is a warehouse consolidation row (standalone vs
// consolidated-across-subsidiaries reporting).
type ConsolidationType struct {
	ConsolidationID int    `json:"consolidation_id"`
	Name            string `json:"name"`
}

// ResolvedPeriod is a concrete period filter: either an exact period-end
// date or a (term, fiscal year) pair, never both. Build one through
// NewExactPeriod or NewTermPeriod; zero values of this type are invalid.
type ResolvedPeriod struct {
	PeriodEnd  *time.Time  `json:"period_end,omitempty"`
	TermID     int         `json:"term_id,omitempty"`
	FiscalYear int         `json:"fiscal_year,omitempty"`
	Family     TableFamily `json:"family"`
}

// NewExactPeriod builds a period filter pinned to an exact period-end date.
func NewExactPeriod(end time.Time, family TableFamily) ResolvedPeriod {
	return ResolvedPeriod{PeriodEnd: &end, Family: family}
}

// NewTermPeriod builds a period filter on a (term, fiscal year) pair.
func NewTermPeriod(termID, fiscalYear int, family TableFamily) ResolvedPeriod {
	return ResolvedPeriod{TermID: termID, FiscalYear: fiscalYear, Family: family}
}

// HasPeriodEnd reports whether the filter is the exact-date form.
func (p ResolvedPeriod) HasPeriodEnd() bool { return p.PeriodEnd != nil }

// HasTerm reports whether the filter is the (term, fiscal year) form.
func (p ResolvedPeriod) HasTerm() bool { return p.TermID != 0 && p.FiscalYear != 0 }

// Validate enforces that exactly one filter form is populated.
func (p ResolvedPeriod) Validate() error {
	hasDate := p.HasPeriodEnd()
	hasTerm := p.TermID != 0 || p.FiscalYear != 0
	switch {
	case hasDate && hasTerm:
		return fmt.Errorf("period has both period_end and term/fiscal_year")
	case !hasDate && !p.HasTerm():
		return fmt.Errorf("period has neither period_end nor a complete term/fiscal_year pair")
	}
	return nil
}

func (p ResolvedPeriod) String() string {
	if p.HasPeriodEnd() {
		return p.PeriodEnd.Format("2006-01-02")
	}
	return fmt.Sprintf("term %d FY%d", p.TermID, p.FiscalYear)
}
