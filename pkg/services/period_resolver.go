package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/retry"
	"github.com/finsight-hq/finsight-engine/pkg/sql"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// periodExamples lists accepted phrasings, carried on unresolvable errors.
var periodExamples = []string{
	"2021-03-31",
	"Q2 2023",
	"FY2021",
	"latest",
	"last quarter",
	"TTM",
	"YTD",
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
}

var (
	fiscalYearPattern = regexp.MustCompile(`^(?:fy\s*|fiscal\s+year\s+)((?:19|20)\d{2})$`)
	termFYPattern     = regexp.MustCompile(`^(.+?)\s+fy\s*((?:19|20)\d{2})$`)
	yearOnlyPattern   = regexp.MustCompile(`^((?:19|20)\d{2})$`)
	termYearPattern   = regexp.MustCompile(`^(.+?)\s+(?:of\s+|in\s+|for\s+)?((?:19|20)\d{2})$`)
	yearTermPattern   = regexp.MustCompile(`^((?:19|20)\d{2})\s+(.+)$`)
)

// PeriodResolver turns period phrases into concrete period filters.
//
// Date and term forms ("2021-03-31", "Q2 2023", "FY2021") resolve from the
// phrase and snapshot alone. Relative forms ("latest", "last quarter",
// "TTM") anchor on the newest warehouse rows that exist for the resolved
// company, head, and consolidation, so they need a validated head first.
type PeriodResolver interface {
	// ResolveStatic resolves the date and term forms without touching the
	// warehouse. ok=false with a nil error means the phrase is relative
	// (or empty, which defaults to the most recent period) and must go
	// through Resolve once the head is known.
	ResolveStatic(phrase string) (models.ResolvedPeriod, bool, error)

	// Resolve handles the full phrase taxonomy.
	Resolve(ctx context.Context, phrase string, company models.CompanyContext, head models.MetricHead, consolidationID int) (models.ResolvedPeriod, error)
}

type periodResolver struct {
	store  *metadata.Store
	exec   warehouse.Executor
	lex    *Lexicon
	logger *zap.Logger

	// now is swapped in tests to pin fiscal-bucket resolution.
	now func() time.Time
}

// NewPeriodResolver builds the resolver. The executor is only touched for
// relative phrases.
func NewPeriodResolver(store *metadata.Store, exec warehouse.Executor, lex *Lexicon, logger *zap.Logger) PeriodResolver {
	return &periodResolver{
		store:  store,
		exec:   exec,
		lex:    lex,
		logger: logger.Named("period-resolver"),
		now:    time.Now,
	}
}

var _ PeriodResolver = (*periodResolver)(nil)

func (r *periodResolver) ResolveStatic(phrase string) (models.ResolvedPeriod, bool, error) {
	p := normalizeText(phrase)
	if p == "" {
		return models.ResolvedPeriod{}, false, nil
	}

	if end, ok := parseDate(p); ok {
		return models.NewExactPeriod(end, models.FamilyAnnual), true, nil
	}

	if period, ok := r.parseTermYear(p); ok {
		return period, true, nil
	}

	if _, ok := r.lex.RelativeTerm(p); ok {
		return models.ResolvedPeriod{}, false, nil
	}

	return models.ResolvedPeriod{}, false, &apperrors.PeriodUnresolvableError{
		Phrase:   phrase,
		Examples: periodExamples,
	}
}

func (r *periodResolver) Resolve(ctx context.Context, phrase string, company models.CompanyContext, head models.MetricHead, consolidationID int) (models.ResolvedPeriod, error) {
	if period, ok, err := r.ResolveStatic(phrase); err != nil {
		return models.ResolvedPeriod{}, err
	} else if ok {
		return period, nil
	}

	kind := relMostRecentPeriod
	if k, ok := r.lex.RelativeTerm(phrase); ok {
		kind = k
	}
	r.logger.Debug("resolving relative period",
		zap.String("phrase", phrase),
		zap.String("kind", string(kind)),
		zap.Int("company_id", company.Company.CompanyID),
		zap.Int("head_id", head.HeadID))

	switch kind {
	case relMostRecentPeriod:
		return r.newestPeriod(ctx, phrase, company, head, consolidationID, 0)
	case relLastPeriod:
		return r.newestPeriod(ctx, phrase, company, head, consolidationID, 1)
	case relMostRecentQuarter:
		return r.newestQuarter(ctx, phrase, company, head, consolidationID, 0)
	case relLastQuarter:
		return r.newestQuarter(ctx, phrase, company, head, consolidationID, 1)
	case relTTM:
		return r.newestTTM(ctx, phrase, company, head, consolidationID)
	case relCurrentPeriod, relYTD:
		return r.fiscalBucket(company)
	}
	return models.ResolvedPeriod{}, &apperrors.PeriodUnresolvableError{Phrase: phrase, Examples: periodExamples}
}

// parseTermYear handles "<term> <year>" in its spoken orderings: "Q2 2023",
// "q2 fy2023", "FY2021", bare "2023", "2023 annual".
func (r *periodResolver) parseTermYear(p string) (models.ResolvedPeriod, bool) {
	if m := fiscalYearPattern.FindStringSubmatch(p); m != nil {
		return r.termPeriod("12M", m[1])
	}
	if m := termFYPattern.FindStringSubmatch(p); m != nil {
		return r.termPeriod(r.lex.NormalizeTerm(m[1]), m[2])
	}
	if m := yearOnlyPattern.FindStringSubmatch(p); m != nil {
		return r.termPeriod("12M", m[1])
	}
	if m := termYearPattern.FindStringSubmatch(p); m != nil {
		return r.termPeriod(r.lex.NormalizeTerm(m[1]), m[2])
	}
	if m := yearTermPattern.FindStringSubmatch(p); m != nil {
		return r.termPeriod(r.lex.NormalizeTerm(m[2]), m[1])
	}
	return models.ResolvedPeriod{}, false
}

func (r *periodResolver) termPeriod(label, year string) (models.ResolvedPeriod, bool) {
	snap := r.store.Current()
	if snap == nil {
		return models.ResolvedPeriod{}, false
	}
	term, ok := snap.TermByLabel(label)
	if !ok {
		return models.ResolvedPeriod{}, false
	}
	fy, err := strconv.Atoi(year)
	if err != nil {
		return models.ResolvedPeriod{}, false
	}
	family := models.FamilyAnnual
	if term.Label == "TTM" {
		family = models.FamilyTTM
	}
	return models.NewTermPeriod(term.TermID, fy, family), true
}

// newestPeriod anchors on the newest row in the head's base table, falling
// back to the quarterly variant when the base table has nothing.
func (r *periodResolver) newestPeriod(ctx context.Context, phrase string, company models.CompanyContext, head models.MetricHead, consolidationID, offset int) (models.ResolvedPeriod, error) {
	end, ok, err := r.latestPeriodEnd(ctx, sql.LatestSpec{
		CompanyID:       company.Company.CompanyID,
		Head:            head,
		Family:          models.FamilyAnnual,
		ConsolidationID: consolidationID,
		Offset:          offset,
	})
	if err != nil {
		return models.ResolvedPeriod{}, err
	}
	if ok {
		return models.NewExactPeriod(end, models.FamilyAnnual), nil
	}

	end, ok, err = r.latestPeriodEnd(ctx, sql.LatestSpec{
		CompanyID:       company.Company.CompanyID,
		Head:            head,
		Family:          models.FamilyQuarterly,
		ConsolidationID: consolidationID,
		Offset:          offset,
	})
	if err != nil {
		return models.ResolvedPeriod{}, err
	}
	if ok {
		return models.NewExactPeriod(end, models.FamilyQuarterly), nil
	}
	return models.ResolvedPeriod{}, &apperrors.PeriodUnresolvableError{Phrase: phrase, Examples: periodExamples}
}

// newestQuarter anchors on the quarterly variant; when that is empty it
// falls back to the base table's three-month rows at the same offset.
func (r *periodResolver) newestQuarter(ctx context.Context, phrase string, company models.CompanyContext, head models.MetricHead, consolidationID, offset int) (models.ResolvedPeriod, error) {
	end, ok, err := r.latestPeriodEnd(ctx, sql.LatestSpec{
		CompanyID:       company.Company.CompanyID,
		Head:            head,
		Family:          models.FamilyQuarterly,
		ConsolidationID: consolidationID,
		Offset:          offset,
	})
	if err != nil {
		return models.ResolvedPeriod{}, err
	}
	if ok {
		return models.NewExactPeriod(end, models.FamilyQuarterly), nil
	}

	spec := sql.LatestSpec{
		CompanyID:       company.Company.CompanyID,
		Head:            head,
		Family:          models.FamilyAnnual,
		ConsolidationID: consolidationID,
		Offset:          offset,
	}
	if snap := r.store.Current(); snap != nil {
		if term, found := snap.TermByLabel("3M"); found {
			spec.TermID = term.TermID
		}
	}
	end, ok, err = r.latestPeriodEnd(ctx, spec)
	if err != nil {
		return models.ResolvedPeriod{}, err
	}
	if ok {
		return models.NewExactPeriod(end, models.FamilyAnnual), nil
	}
	return models.ResolvedPeriod{}, &apperrors.PeriodUnresolvableError{Phrase: phrase, Examples: periodExamples}
}

func (r *periodResolver) newestTTM(ctx context.Context, phrase string, company models.CompanyContext, head models.MetricHead, consolidationID int) (models.ResolvedPeriod, error) {
	end, ok, err := r.latestPeriodEnd(ctx, sql.LatestSpec{
		CompanyID:       company.Company.CompanyID,
		Head:            head,
		Family:          models.FamilyTTM,
		ConsolidationID: consolidationID,
	})
	if err != nil {
		return models.ResolvedPeriod{}, err
	}
	if ok {
		return models.NewExactPeriod(end, models.FamilyTTM), nil
	}
	return models.ResolvedPeriod{}, &apperrors.PeriodUnresolvableError{Phrase: phrase, Examples: periodExamples}
}

// fiscalBucket resolves "current"/"YTD" to the cumulative term covering the
// months reported so far in the company's fiscal year, which ends in
// FiscalYearEndMonth. A June 30 year end puts August 2026 two months into
// FY2027, so the bucket is 3M FY2027.
func (r *periodResolver) fiscalBucket(company models.CompanyContext) (models.ResolvedPeriod, error) {
	snap := r.store.Current()
	if snap == nil {
		return models.ResolvedPeriod{}, fmt.Errorf("metadata snapshot not loaded: %w", apperrors.ErrMetadataLoad)
	}

	fyEnd := company.Company.FiscalYearEndMonth
	if fyEnd < 1 || fyEnd > 12 {
		fyEnd = 12
	}
	now := r.now()
	month := int(now.Month())

	monthsIn := ((month - fyEnd - 1 + 12) % 12) + 1
	var label string
	switch {
	case monthsIn <= 3:
		label = "3M"
	case monthsIn <= 6:
		label = "6M"
	case monthsIn <= 9:
		label = "9M"
	default:
		label = "12M"
	}

	fy := now.Year()
	if month > fyEnd {
		fy++
	}

	term, ok := snap.TermByLabel(label)
	if !ok {
		return models.ResolvedPeriod{}, fmt.Errorf("term %q missing from snapshot: %w", label, apperrors.ErrMetadataLoad)
	}
	return models.NewTermPeriod(term.TermID, fy, models.FamilyAnnual), nil
}

// latestPeriodEnd runs one newest-first scan. ok=false means the table had
// no matching rows; transient warehouse errors are retried.
func (r *periodResolver) latestPeriodEnd(ctx context.Context, spec sql.LatestSpec) (time.Time, bool, error) {
	rq, err := sql.BuildLatest(spec)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to build latest-period scan: %w", err)
	}
	q, err := rq.Lower()
	if err != nil {
		return time.Time{}, false, err
	}

	var res *warehouse.Result
	err = retry.DoIfRetryable(ctx, nil, func() error {
		var qerr error
		res, qerr = r.exec.QueryWithParams(ctx, q.SQL, q.Args, 1)
		return qerr
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to scan %s for newest period: %w", rq.Table, err)
	}
	if res.RowCount == 0 {
		return time.Time{}, false, nil
	}
	end, ok := warehouse.FieldTime(res.Rows[0], "PeriodEnd")
	if !ok {
		return time.Time{}, false, fmt.Errorf("latest-period scan on %s returned no PeriodEnd column: %w",
			rq.Table, apperrors.ErrQueryExecution)
	}
	return end, true, nil
}

func parseDate(p string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, p); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
