package services

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// DefaultSimilarityThreshold is the fuzzy-match floor used when the config
// does not set one.
const DefaultSimilarityThreshold = 0.55

// maxSuggestions caps the candidate lists carried on resolution errors.
const maxSuggestions = 5

// CompanyResolver maps free-text company phrases onto warehouse companies.
type CompanyResolver interface {
	// Resolve returns the company context for a phrase. Failures are typed:
	// CompanyNotFoundError with the closest misses, or AmbiguousCompanyError
	// with the ranked candidates.
	Resolve(phrase string) (models.CompanyContext, error)

	// Search ranks companies against a free-text query for typeahead. An
	// empty query lists companies in snapshot order.
	Search(query string, limit int) []apperrors.CompanyMatch
}

type companyResolver struct {
	store     *metadata.Store
	threshold float64
	logger    *zap.Logger
}

// NewCompanyResolver builds the snapshot-backed resolver. A non-positive
// threshold falls back to DefaultSimilarityThreshold.
func NewCompanyResolver(store *metadata.Store, threshold float64, logger *zap.Logger) CompanyResolver {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &companyResolver{
		store:     store,
		threshold: threshold,
		logger:    logger.Named("company-resolver"),
	}
}

var _ CompanyResolver = (*companyResolver)(nil)

func (r *companyResolver) Resolve(phrase string) (models.CompanyContext, error) {
	snap := r.store.Current()
	if snap == nil {
		return models.CompanyContext{}, fmt.Errorf("metadata snapshot not loaded: %w", apperrors.ErrMetadataLoad)
	}

	p := normalizeText(phrase)
	if p == "" {
		return models.CompanyContext{}, &apperrors.CompanyNotFoundError{Phrase: phrase}
	}

	// Ticker equality beats any name similarity.
	if c, ok := snap.CompanyByTicker(p); ok {
		r.logger.Debug("company resolved by ticker",
			zap.String("phrase", phrase),
			zap.Int("company_id", c.CompanyID))
		return snap.ContextFor(c), nil
	}
	if c, ok := snap.CompanyByName(p); ok {
		r.logger.Debug("company resolved by exact name",
			zap.String("phrase", phrase),
			zap.Int("company_id", c.CompanyID))
		return snap.ContextFor(c), nil
	}

	matches := scoreCompanies(snap.Companies(), p)
	var above []apperrors.CompanyMatch
	for _, m := range matches {
		if m.Score >= r.threshold {
			above = append(above, m)
		}
	}

	switch {
	case len(above) == 0:
		r.logger.Debug("no company cleared threshold",
			zap.String("phrase", phrase),
			zap.Float64("threshold", r.threshold),
			zap.Int("scored", len(matches)))
		return models.CompanyContext{}, &apperrors.CompanyNotFoundError{
			Phrase:      phrase,
			Suggestions: capMatches(matches, maxSuggestions),
		}

	// More than one company above the threshold is ambiguous even when one
	// leads on score; the caller disambiguates with the ranked candidates.
	case len(above) > 1:
		return models.CompanyContext{}, &apperrors.AmbiguousCompanyError{
			Phrase:     phrase,
			Candidates: capMatches(above, maxSuggestions),
		}
	}

	winner, ok := companyByID(snap, above[0].CompanyID)
	if !ok {
		return models.CompanyContext{}, fmt.Errorf("scored company %d missing from snapshot: %w",
			above[0].CompanyID, apperrors.ErrMetadataLoad)
	}
	r.logger.Debug("company resolved by similarity",
		zap.String("phrase", phrase),
		zap.Int("company_id", winner.CompanyID),
		zap.Float64("score", above[0].Score))
	return snap.ContextFor(winner), nil
}

func (r *companyResolver) Search(query string, limit int) []apperrors.CompanyMatch {
	snap := r.store.Current()
	if snap == nil {
		return nil
	}
	if limit <= 0 || limit > maxCompanySearchResults {
		limit = maxCompanySearchResults
	}

	q := normalizeText(query)
	if q == "" {
		companies := snap.Companies()
		out := make([]apperrors.CompanyMatch, 0, limit)
		for _, c := range companies {
			if len(out) == limit {
				break
			}
			out = append(out, apperrors.CompanyMatch{
				CompanyID: c.CompanyID, Name: c.Name, Ticker: c.Ticker, Score: 0,
			})
		}
		return out
	}
	return capMatches(scoreCompanies(snap.Companies(), q), limit)
}

const maxCompanySearchResults = 25

// scoreCompanies ranks all companies against the phrase, best first. The
// score is the better of the name and ticker similarity.
func scoreCompanies(companies []models.Company, phrase string) []apperrors.CompanyMatch {
	out := make([]apperrors.CompanyMatch, 0, len(companies))
	for _, c := range companies {
		score := similarityScore(phrase, c.Name)
		if ts := similarityScore(phrase, c.Ticker); ts > score {
			score = ts
		}
		if score <= 0 {
			continue
		}
		out = append(out, apperrors.CompanyMatch{
			CompanyID: c.CompanyID,
			Name:      c.Name,
			Ticker:    c.Ticker,
			Score:     score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func capMatches(matches []apperrors.CompanyMatch, limit int) []apperrors.CompanyMatch {
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func companyByID(snap *metadata.Snapshot, id int) (models.Company, bool) {
	for _, c := range snap.Companies() {
		if c.CompanyID == id {
			return c, true
		}
	}
	return models.Company{}, false
}
