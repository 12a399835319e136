package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
	"github.com/finsight-hq/finsight-engine/pkg/retry"
	"github.com/finsight-hq/finsight-engine/pkg/sql"
	"github.com/finsight-hq/finsight-engine/pkg/warehouse"
)

// MetricResolver validates metric phrases against the head masters and the
// data that actually exists for a company.
//
// A phrase is classified first (dissection beats ratio beats regular), then
// walked through the name cascade: exact match industry-filtered, exact
// match unfiltered, contains match industry-filtered, contains match
// unfiltered. Every candidate is probed with a COUNT(*) on its data table;
// the first candidate with rows wins. Heads that matched by name but probed
// empty are reported in MetricNoDataError; a phrase matching no head name
// at all is MetricNotFoundError.
type MetricResolver interface {
	// Resolve returns the first data-backed head for the phrase. period
	// narrows the probes when the period is already concrete; nil means it
	// is still relative. wantTTM redirects probes to the trailing-twelve-
	// month variant while the period phrase is still relative.
	//
	// When ctx expires mid-cascade the candidates probed so far are
	// returned as a MetricNoDataError rather than losing that progress.
	Resolve(ctx context.Context, phrase string, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, wantTTM bool) (models.MetricHead, error)
}

type metricResolver struct {
	store  *metadata.Store
	exec   warehouse.Executor
	lex    *Lexicon
	logger *zap.Logger
}

// NewMetricResolver builds the cascade resolver.
func NewMetricResolver(store *metadata.Store, exec warehouse.Executor, lex *Lexicon, logger *zap.Logger) MetricResolver {
	return &metricResolver{
		store:  store,
		exec:   exec,
		lex:    lex,
		logger: logger.Named("metric-resolver"),
	}
}

var _ MetricResolver = (*metricResolver)(nil)

func (r *metricResolver) Resolve(ctx context.Context, phrase string, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, wantTTM bool) (models.MetricHead, error) {
	snap := r.store.Current()
	if snap == nil {
		return models.MetricHead{}, fmt.Errorf("metadata snapshot not loaded: %w", apperrors.ErrMetadataLoad)
	}

	name := normalizeText(phrase)
	if name == "" {
		return models.MetricHead{}, &apperrors.MetricNotFoundError{Phrase: phrase}
	}
	if canonical, ok := r.lex.CanonicalMetric(name); ok {
		name = canonical
	}

	var probeFamily models.TableFamily
	if wantTTM && period == nil {
		probeFamily = models.FamilyTTM
	}

	if groupID, ok := r.lex.DissectionGroup(name); ok {
		return r.resolveDissection(ctx, snap, phrase, name, groupID, company, period, consolidationID, probeFamily)
	}
	if r.lex.RatioIndicator(name) {
		return r.resolveRatio(ctx, snap, phrase, name, company, period, consolidationID, probeFamily)
	}
	return r.resolveRegular(ctx, snap, phrase, name, company, period, consolidationID, probeFamily)
}

func (r *metricResolver) resolveRegular(ctx context.Context, snap *metadata.Snapshot, phrase, name string, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (models.MetricHead, error) {
	head, found, tried, err := r.runCascade(ctx, snap, models.KindRegular, name, company, period, consolidationID, probeFamily)
	if err != nil {
		return models.MetricHead{}, partialOrFatal(err, phrase, tried)
	}
	if found {
		return head, nil
	}

	// No regular head has data; the name may live in the ratio master
	// instead ("dividend per share" style heads defined as ratios).
	head, found, ratioTried, err := r.runCascade(ctx, snap, models.KindRatio, name, company, period, consolidationID, probeFamily)
	tried = append(tried, ratioTried...)
	if err != nil {
		return models.MetricHead{}, partialOrFatal(err, phrase, tried)
	}
	if found {
		return head, nil
	}

	if len(tried) > 0 {
		return models.MetricHead{}, &apperrors.MetricNoDataError{Phrase: phrase, Tried: tried}
	}
	return models.MetricHead{}, &apperrors.MetricNotFoundError{
		Phrase:      phrase,
		Suggestions: r.suggestions(snap, name, models.KindRegular, models.KindRatio),
	}
}

// resolveRatio never falls back into regular heads: a phrase that names a
// ratio must resolve as one.
func (r *metricResolver) resolveRatio(ctx context.Context, snap *metadata.Snapshot, phrase, name string, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (models.MetricHead, error) {
	head, found, tried, err := r.runCascade(ctx, snap, models.KindRatio, name, company, period, consolidationID, probeFamily)
	if err != nil {
		return models.MetricHead{}, partialOrFatal(err, phrase, tried)
	}
	if found {
		return head, nil
	}
	if len(tried) > 0 {
		return models.MetricHead{}, &apperrors.MetricNoDataError{Phrase: phrase, Tried: tried}
	}
	return models.MetricHead{}, &apperrors.MetricNotFoundError{
		Phrase:      phrase,
		Suggestions: r.suggestions(snap, name, models.KindRatio),
	}
}

func (r *metricResolver) resolveDissection(ctx context.Context, snap *metadata.Snapshot, phrase, name string, groupID int, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (models.MetricHead, error) {
	base := r.lex.StripDissection(name, groupID)
	if canonical, ok := r.lex.CanonicalMetric(base); ok {
		base = canonical
	}

	// Growth and percentage-of-base breakdowns name their base metric in
	// the ratio master; per-share and quarter-growth bases live in the
	// regular master.
	ratioMaster := models.DissectionGroupFamily(groupID) == models.FamilyRatio
	masterKind := models.KindRegular
	if ratioMaster {
		masterKind = models.KindRatio
	}

	r.logger.Debug("dissection metric classified",
		zap.String("phrase", phrase),
		zap.Int("group_id", groupID),
		zap.String("base_metric", base),
		zap.Bool("ratio_master", ratioMaster))

	heads := make([]models.MetricHead, 0, 8)
	for _, h := range r.candidates(snap, masterKind, base, company.SectorID) {
		dh := models.NewDissectionHead(h.HeadID, h.Name, h.IndustryID, groupID)
		dh.RatioMaster = ratioMaster
		heads = append(heads, dh)
	}

	var tried []apperrors.HeadCandidate
	for _, dh := range heads {
		count, err := r.probe(ctx, company.Company.CompanyID, dh, period, consolidationID, probeFamily)
		if err != nil {
			return models.MetricHead{}, partialOrFatal(err, phrase, tried)
		}
		if count > 0 {
			return dh, nil
		}
		tried = append(tried, apperrors.HeadCandidate{HeadID: dh.HeadID, Name: dh.Name, Kind: string(models.KindDissection)})
	}

	// No candidate has rows under the requested group. Scan each
	// candidate's groups by evidence and take the best-populated one.
	for _, dh := range heads {
		adjusted, ok, err := r.groupScan(ctx, company.Company.CompanyID, dh, period, consolidationID, probeFamily)
		if err != nil {
			return models.MetricHead{}, partialOrFatal(err, phrase, tried)
		}
		if ok {
			r.logger.Debug("dissection group adjusted by data scan",
				zap.Int("head_id", dh.HeadID),
				zap.Int("requested_group", groupID),
				zap.Int("found_group", adjusted))
			dh.DissectionGroupID = adjusted
			return dh, nil
		}
	}

	if len(tried) > 0 {
		return models.MetricHead{}, &apperrors.MetricNoDataError{Phrase: phrase, Tried: tried}
	}
	return models.MetricHead{}, &apperrors.MetricNotFoundError{
		Phrase:      phrase,
		Suggestions: r.suggestions(snap, base, masterKind),
	}
}

// runCascade probes the name-cascade candidates for one master in order and
// returns the first data-backed head plus every candidate that probed empty.
func (r *metricResolver) runCascade(ctx context.Context, snap *metadata.Snapshot, kind models.MetricKind, name string, company models.CompanyContext, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (models.MetricHead, bool, []apperrors.HeadCandidate, error) {
	var tried []apperrors.HeadCandidate
	for _, h := range r.candidates(snap, kind, name, company.SectorID) {
		count, err := r.probe(ctx, company.Company.CompanyID, h, period, consolidationID, probeFamily)
		if err != nil {
			return models.MetricHead{}, false, tried, err
		}
		if count > 0 {
			r.logger.Debug("head validated",
				zap.Int("head_id", h.HeadID),
				zap.String("head_name", h.Name),
				zap.String("kind", string(h.Kind)),
				zap.Int64("rows", count))
			return h, true, tried, nil
		}
		tried = append(tried, apperrors.HeadCandidate{HeadID: h.HeadID, Name: h.Name, Kind: string(h.Kind)})
	}
	return models.MetricHead{}, false, tried, nil
}

// candidates returns the cascade's candidate heads in probe order: exact
// name match industry-filtered, exact unfiltered, contains filtered,
// contains unfiltered. A head is listed once, at its earliest stage.
func (r *metricResolver) candidates(snap *metadata.Snapshot, kind models.MetricKind, name string, sectorID int) []models.MetricHead {
	var exact, all []models.MetricHead
	if kind == models.KindRatio {
		exact = snap.RatioHeadsByName(name)
		all = snap.RatioHeads()
	} else {
		exact = snap.RegularHeadsByName(name)
		all = snap.RegularHeads()
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	var contains []models.MetricHead
	for _, h := range all {
		if strings.Contains(strings.ToLower(h.Name), lower) {
			contains = append(contains, h)
		}
	}

	seen := make(map[int]bool, len(exact)+len(contains))
	ordered := make([]models.MetricHead, 0, len(exact)+len(contains))
	stage := func(heads []models.MetricHead, industryOnly bool) {
		for _, h := range heads {
			if seen[h.HeadID] {
				continue
			}
			if industryOnly {
				if err := r.industryFit(snap, h, sectorID); err != nil {
					r.logger.Debug("candidate deferred to unfiltered stage",
						zap.Int("head_id", h.HeadID),
						zap.Error(err))
					continue
				}
			}
			seen[h.HeadID] = true
			ordered = append(ordered, h)
		}
	}
	stage(exact, true)
	stage(exact, false)
	stage(contains, true)
	stage(contains, false)
	return ordered
}

// industryFit checks a head's industry against the company's sector under
// the industry/sector mapping. Failures only demote the candidate to the
// unfiltered stages.
func (r *metricResolver) industryFit(snap *metadata.Snapshot, head models.MetricHead, sectorID int) error {
	if snap.IndustryMatchesSector(head.IndustryID, sectorID) {
		return nil
	}
	return fmt.Errorf("head %d industry %d not mapped to sector %d: %w",
		head.HeadID, head.IndustryID, sectorID, apperrors.ErrIndustryValidation)
}

// probe runs the COUNT(*) existence check for one candidate.
func (r *metricResolver) probe(ctx context.Context, companyID int, head models.MetricHead, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (int64, error) {
	var (
		rq  *sql.RetrievalQuery
		err error
	)
	if probeFamily != "" && period == nil {
		rq, err = sql.BuildCountForFamily(companyID, head, probeFamily, consolidationID)
	} else {
		rq, err = sql.BuildCount(companyID, head, period, consolidationID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to build existence probe: %w", err)
	}
	q, err := rq.Lower()
	if err != nil {
		return 0, err
	}

	var count int64
	err = retry.DoIfRetryable(ctx, nil, func() error {
		var qerr error
		count, qerr = r.exec.QueryRowCount(ctx, q.SQL, q.Args)
		return qerr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to probe %s for head %d: %w", rq.Table, head.HeadID, err)
	}
	return count, nil
}

// groupScan finds the best-evidenced dissection group for a head. ok=false
// means the head has no dissection rows at all.
func (r *metricResolver) groupScan(ctx context.Context, companyID int, head models.MetricHead, period *models.ResolvedPeriod, consolidationID int, probeFamily models.TableFamily) (int, bool, error) {
	var (
		rq  *sql.RetrievalQuery
		err error
	)
	if probeFamily != "" && period == nil {
		rq, err = sql.BuildGroupScanForFamily(companyID, head, probeFamily, consolidationID)
	} else {
		rq, err = sql.BuildGroupScan(companyID, head, period, consolidationID)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to build group scan: %w", err)
	}
	q, err := rq.Lower()
	if err != nil {
		return 0, false, err
	}

	var res *warehouse.Result
	err = retry.DoIfRetryable(ctx, nil, func() error {
		var qerr error
		res, qerr = r.exec.QueryWithParams(ctx, q.SQL, q.Args, warehouse.MaxQueryLimit)
		return qerr
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to scan %s groups for head %d: %w", rq.Table, head.HeadID, err)
	}
	if res.RowCount == 0 {
		return 0, false, nil
	}
	groupID, ok := warehouse.FieldInt(res.Rows[0], "DisectionGroupID")
	if !ok {
		return 0, false, fmt.Errorf("group scan on %s returned no DisectionGroupID column: %w",
			rq.Table, apperrors.ErrQueryExecution)
	}
	return groupID, true, nil
}

// suggestions ranks head names near the phrase for not-found errors.
func (r *metricResolver) suggestions(snap *metadata.Snapshot, name string, kinds ...models.MetricKind) []string {
	set := make(map[string]struct{})
	for _, kind := range kinds {
		heads := snap.RegularHeads()
		if kind == models.KindRatio {
			heads = snap.RatioHeads()
		}
		for _, h := range heads {
			set[h.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)

	ranked := rankNames(name, names, maxSuggestions)
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.Name)
	}
	return out
}

// partialOrFatal converts a deadline hit mid-cascade into the best partial
// failure gathered so far; anything else propagates as-is.
func partialOrFatal(err error, phrase string, tried []apperrors.HeadCandidate) error {
	if (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) && len(tried) > 0 {
		return &apperrors.MetricNoDataError{Phrase: phrase, Tried: tried}
	}
	return err
}
