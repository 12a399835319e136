package services

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/metadata"
	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// Extraction confidence tiers. A snapshot-confirmed company or a fully
// explicit period scores high; a regex capture nothing could confirm is kept
// at low confidence for the downstream resolvers to fuzzy-match.
const (
	confConfirmed = 0.95
	confPattern   = 0.85
	confInferred  = 0.7
	confGuess     = 0.6
)

var (
	companyPossessivePattern = regexp.MustCompile(`(?i)\b([a-z0-9][a-z0-9&.\- ]*?)'s\b`)
	companyForOfPattern      = regexp.MustCompile(`(?i)\b(?:for|of)\s+([a-z0-9][a-z0-9&.\- ]*?)(?:'s\b|\s+(?:in|for|from|on|at|during|by|with|and|or)\b|[.,?!]|$)`)

	isoDatePattern   = regexp.MustCompile(`\b((?:19|20)\d{2}-\d{2}-\d{2})\b`)
	dmyDatePattern   = regexp.MustCompile(`\b(\d{2}-\d{2}-(?:19|20)\d{2})\b`)
	monthDatePattern = regexp.MustCompile(`(?i)\b((?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+\d{1,2},?\s+(?:19|20)\d{2})\b`)

	fiscalYearExtractPattern = regexp.MustCompile(`(?i)\b(?:fiscal\s+year|fy)\s*(?:19|20)\d{2}\b`)
	periodTermPattern        = regexp.MustCompile(`(?i)\b(?:q[1-4]|quarter\s+[1-4]|(?:first|second|third|fourth|1st|2nd|3rd|4th)\s+quarter|half[\s-]year|full[\s-]year|ttm|trailing\s+(?:twelve|12)\s+months|(?:3|6|9|12)\s*m(?:onths?)?\b|(?:three|six|nine|twelve)\s+months?)`)
	trailingYearPattern      = regexp.MustCompile(`^\s*(?:(?:of|in|for)\s+)?((?:fy\s*)?(?:19|20)\d{2})\b`)
	leadingYearPattern       = regexp.MustCompile(`((?:19|20)\d{2})\s*$`)
	bareYearPattern          = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	pureYearPattern          = regexp.MustCompile(`^(?:19|20)\d{2}$`)
)

// questionStopwords are leading filler tokens trimmed off company captures:
// "What was UBL" becomes "UBL" before the snapshot confirm.
var questionStopwords = map[string]bool{
	"what": true, "whats": true, "was": true, "is": true, "are": true,
	"were": true, "the": true, "a": true, "an": true, "show": true,
	"me": true, "tell": true, "us": true, "give": true, "did": true,
	"does": true, "do": true, "how": true, "much": true, "many": true,
	"please": true, "about": true, "of": true, "for": true, "in": true,
}

// EntityExtractor turns a raw question into candidate fragments with
// confidences and indicator flags. Extraction is never fatal: an empty or
// low-confidence fragment is the downstream resolver's problem to report.
type EntityExtractor interface {
	Extract(ctx context.Context, question string) (models.ExtractedEntities, error)
}

type entityExtractor struct {
	store  *metadata.Store
	lex    *Lexicon
	logger *zap.Logger
}

// NewEntityExtractor builds the lexical extractor. The snapshot is only used
// to confirm company captures; extraction works (at lower confidence) before
// the first metadata load too.
func NewEntityExtractor(store *metadata.Store, lex *Lexicon, logger *zap.Logger) EntityExtractor {
	return &entityExtractor{
		store:  store,
		lex:    lex,
		logger: logger.Named("entity-extractor"),
	}
}

var _ EntityExtractor = (*entityExtractor)(nil)

func (e *entityExtractor) Extract(_ context.Context, question string) (models.ExtractedEntities, error) {
	var out models.ExtractedEntities
	q := strings.TrimSpace(question)
	if q == "" {
		return out, nil
	}
	snap := e.store.Current()

	out.Period, out.HasRelativePeriod = e.extractPeriod(q)
	out.Metric, out.HasDissectionIndicator, out.DissectionGroupLabel = e.extractMetric(q)
	out.Company = e.extractCompany(q, snap)
	out.Consolidation = extractConsolidation(q)

	e.logger.Debug("entities extracted",
		zap.String("company", out.Company.Text),
		zap.String("metric", out.Metric.Text),
		zap.String("period", out.Period.Text),
		zap.String("consolidation", out.Consolidation.Text),
		zap.Bool("relative_period", out.HasRelativePeriod),
		zap.Bool("dissection", out.HasDissectionIndicator))
	return out, nil
}

// extractPeriod walks the period forms from most to least explicit. The
// returned bool marks a relative indicator (resolved later against live
// data, after the metric is known).
func (e *entityExtractor) extractPeriod(question string) (models.Fragment, bool) {
	for _, re := range []*regexp.Regexp{isoDatePattern, dmyDatePattern, monthDatePattern} {
		if m := re.FindString(question); m != "" {
			return models.Fragment{Text: normalizeText(m), Confidence: confConfirmed}, false
		}
	}
	if m := fiscalYearExtractPattern.FindString(question); m != "" {
		return models.Fragment{Text: normalizeText(m), Confidence: confConfirmed}, false
	}

	if loc := periodTermPattern.FindStringIndex(question); loc != nil {
		frag := question[loc[0]:loc[1]]
		if m := trailingYearPattern.FindStringSubmatch(question[loc[1]:]); m != nil {
			frag = frag + " " + m[1]
			return models.Fragment{Text: normalizeText(frag), Confidence: confConfirmed}, false
		}
		if m := leadingYearPattern.FindStringSubmatch(question[:loc[0]]); m != nil {
			frag = m[1] + " " + frag
			return models.Fragment{Text: normalizeText(frag), Confidence: confConfirmed}, false
		}
		// A bare term like "Q2" has no year to anchor on; whether it can
		// resolve is the period resolver's call.
		if phrase, _, ok := e.lex.RelativePhrase(frag); ok {
			return models.Fragment{Text: phrase, Confidence: confPattern}, true
		}
		return models.Fragment{Text: normalizeText(frag), Confidence: confGuess}, false
	}

	if m := bareYearPattern.FindStringSubmatch(question); m != nil {
		return models.Fragment{Text: m[1], Confidence: confInferred}, false
	}
	if phrase, _, ok := e.lex.RelativePhrase(question); ok {
		return models.Fragment{Text: phrase, Confidence: confPattern}, true
	}
	return models.Fragment{}, false
}

// extractMetric finds the longest lexicon alias in the question. When a
// dissection indicator is present the indicator region is stripped before
// the alias search (so "% of sales" cannot hijack the base metric) and
// re-attached to the fragment afterwards.
func (e *entityExtractor) extractMetric(question string) (models.Fragment, bool, string) {
	groupID, hasDissection := e.lex.DissectionGroup(question)

	searchText := question
	if hasDissection {
		searchText = e.lex.StripDissection(question, groupID)
	}
	matched, _, ok := e.lex.FindMetricPhrase(searchText)
	if !ok {
		if hasDissection {
			return models.Fragment{}, true, e.lex.GroupLabel(groupID)
		}
		return models.Fragment{}, false, ""
	}

	frag := matched
	if hasDissection {
		if gid, again := e.lex.DissectionGroup(matched); !again || gid != groupID {
			if indicator, found := e.lex.DissectionIndicatorText(question, groupID); found {
				frag = matched + " " + indicator
			}
		}
		return models.Fragment{Text: frag, Confidence: confPattern}, true, e.lex.GroupLabel(groupID)
	}
	return models.Fragment{Text: frag, Confidence: confPattern}, false, ""
}

// extractCompany tries the possessive and for/of captures, confirming each
// against the snapshot by progressively dropping leading tokens ("what was
// ubl" confirms as "ubl"). Unconfirmed captures fall through to a ticker
// token scan and a longest-company-name scan before being kept as guesses.
func (e *entityExtractor) extractCompany(question string, snap *metadata.Snapshot) models.Fragment {
	var captures []string
	if m := companyPossessivePattern.FindStringSubmatch(question); m != nil {
		captures = append(captures, m[1])
	}
	if m := companyForOfPattern.FindStringSubmatch(question); m != nil {
		captures = append(captures, m[1])
	}

	var fallback string
	for _, capture := range captures {
		cleaned := trimStopwords(normalizeText(capture))
		if cleaned == "" || pureYearPattern.MatchString(cleaned) {
			continue
		}
		if snap != nil {
			toks := strings.Fields(cleaned)
			for i := range toks {
				cand := strings.Join(toks[i:], " ")
				if _, ok := snap.CompanyByTicker(cand); ok {
					return models.Fragment{Text: cand, Confidence: confConfirmed}
				}
				if _, ok := snap.CompanyByName(cand); ok {
					return models.Fragment{Text: cand, Confidence: confConfirmed}
				}
			}
		}
		if fallback == "" {
			fallback = cleaned
		}
	}

	if snap != nil {
		if t := tickerToken(question, snap); t != "" {
			return models.Fragment{Text: t, Confidence: confConfirmed}
		}
		if n := longestNameHit(question, snap); n != "" {
			return models.Fragment{Text: n, Confidence: confConfirmed}
		}
	}
	if fallback != "" {
		return models.Fragment{Text: fallback, Confidence: confGuess}
	}
	return models.Fragment{}
}

// tickerToken scans raw tokens for an uppercase ticker the snapshot knows.
// Case matters here: "UBL" is a ticker hit, "ubl" in running text is not.
func tickerToken(question string, snap *metadata.Snapshot) string {
	for _, tok := range strings.Fields(question) {
		t := strings.TrimSuffix(strings.Trim(tok, ".,?!()\"'"), "'s")
		if len(t) < 2 || len(t) > 6 || t != strings.ToUpper(t) {
			continue
		}
		if strings.IndexFunc(t, func(r rune) bool { return r < 'A' || r > 'Z' }) >= 0 {
			continue
		}
		if _, ok := snap.CompanyByTicker(t); ok {
			return strings.ToLower(t)
		}
	}
	return ""
}

// longestNameHit returns the longest full company name appearing in the
// question.
func longestNameHit(question string, snap *metadata.Snapshot) string {
	q := normalizeText(question)
	best := ""
	for _, c := range snap.Companies() {
		name := normalizeText(c.Name)
		if len(name) > len(best) && phraseContains(q, name) {
			best = name
		}
	}
	return best
}

func extractConsolidation(question string) models.Fragment {
	for _, tok := range tokens(normalizeText(question)) {
		switch tok {
		case "unconsolidated", "standalone", "separate", "consolidated":
			return models.Fragment{Text: tok, Confidence: confConfirmed}
		}
	}
	return models.Fragment{}
}

func trimStopwords(phrase string) string {
	toks := strings.Fields(phrase)
	for len(toks) > 0 && questionStopwords[toks[0]] {
		toks = toks[1:]
	}
	return strings.Join(toks, " ")
}
