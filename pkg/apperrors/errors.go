// Package apperrors defines the resolution error taxonomy.
//
// Recoverable outcomes (company/period/metric failures) are typed errors
// carrying suggestions for the caller to render; each unwraps to its sentinel
// so errors.Is works across fmt.Errorf wrapping. Infrastructure failures
// (ErrMetadataLoad, ErrQueryExecution) have no typed carrier and abort the
// request.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrCompanyNotFound    = errors.New("company not found")
	ErrAmbiguousCompany   = errors.New("ambiguous company")
	ErrPeriodUnresolvable = errors.New("period unresolvable")
	ErrMetricNotFound     = errors.New("metric not found")
	ErrMetricNoData       = errors.New("metric has no data")
	ErrIndustryValidation = errors.New("industry validation failed")
	ErrMetadataLoad       = errors.New("metadata load failed")
	ErrQueryExecution     = errors.New("query execution failed")
)

// CompanyMatch is a scored company candidate surfaced in suggestions.
type CompanyMatch struct {
	CompanyID int     `json:"company_id"`
	Name      string  `json:"name"`
	Ticker    string  `json:"ticker"`
	Score     float64 `json:"score"`
}

// HeadCandidate is a metric head that matched by name during the cascade.
type HeadCandidate struct {
	HeadID int    `json:"head_id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
}

// CompanyNotFoundError reports that no company cleared the similarity
// threshold for the given phrase. Suggestions hold the closest misses.
type CompanyNotFoundError struct {
	Phrase      string
	Suggestions []CompanyMatch
}

func (e *CompanyNotFoundError) Error() string {
	return fmt.Sprintf("no company matches %q", e.Phrase)
}

func (e *CompanyNotFoundError) Unwrap() error { return ErrCompanyNotFound }

// AmbiguousCompanyError reports that multiple companies cleared the
// similarity threshold. Candidates are ordered best-first.
type AmbiguousCompanyError struct {
	Phrase     string
	Candidates []CompanyMatch
}

func (e *AmbiguousCompanyError) Error() string {
	return fmt.Sprintf("%d companies match %q", len(e.Candidates), e.Phrase)
}

func (e *AmbiguousCompanyError) Unwrap() error { return ErrAmbiguousCompany }

// PeriodUnresolvableError reports a period phrase that matched no known
// pattern. Examples lists accepted phrasings for the caller to surface.
type PeriodUnresolvableError struct {
	Phrase   string
	Examples []string
}

func (e *PeriodUnresolvableError) Error() string {
	return fmt.Sprintf("cannot resolve period %q", e.Phrase)
}

func (e *PeriodUnresolvableError) Unwrap() error { return ErrPeriodUnresolvable }

// MetricNotFoundError reports a metric phrase with no lexicon match at all.
// Distinct from MetricNoDataError, which means names matched but nothing had
// backing rows.
type MetricNotFoundError struct {
	Phrase      string
	Suggestions []string
}

func (e *MetricNotFoundError) Error() string {
	return fmt.Sprintf("no metric head matches %q", e.Phrase)
}

func (e *MetricNotFoundError) Unwrap() error { return ErrMetricNotFound }

// MetricNoDataError reports that the cascade matched one or more heads by
// name but every candidate had a verified row count of zero for the requested
// company/period/consolidation.
type MetricNoDataError struct {
	Phrase string
	Tried  []HeadCandidate
}

func (e *MetricNoDataError) Error() string {
	return fmt.Sprintf("metric %q matched %d head(s) but none have data", e.Phrase, len(e.Tried))
}

func (e *MetricNoDataError) Unwrap() error { return ErrMetricNoData }

// IsRecoverable reports whether err is one of the structured resolution
// failures the caller should render with suggestions, as opposed to an
// infrastructure failure that aborts the request.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCompanyNotFound) ||
		errors.Is(err, ErrAmbiguousCompany) ||
		errors.Is(err, ErrPeriodUnresolvable) ||
		errors.Is(err, ErrMetricNotFound) ||
		errors.Is(err, ErrMetricNoData)
}
