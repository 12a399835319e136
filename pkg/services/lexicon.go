package services

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/finsight-hq/finsight-engine/pkg/models"
)

//go:embed lexicon/metrics.yaml
var metricsLexiconYAML []byte

//go:embed lexicon/periods.yaml
var periodsLexiconYAML []byte

// relativeKind names a relative-period resolution strategy.
type relativeKind string

const (
	relMostRecentPeriod  relativeKind = "most_recent_period"
	relMostRecentQuarter relativeKind = "most_recent_quarter"
	relLastQuarter       relativeKind = "last_quarter"
	relLastPeriod        relativeKind = "last_period"
	relCurrentPeriod     relativeKind = "current_period"
	relYTD               relativeKind = "ytd"
	relTTM               relativeKind = "ttm"
)

var validRelativeKinds = map[relativeKind]bool{
	relMostRecentPeriod:  true,
	relMostRecentQuarter: true,
	relLastQuarter:       true,
	relLastPeriod:        true,
	relCurrentPeriod:     true,
	relYTD:               true,
	relTTM:               true,
}

type metricLexicon struct {
	Aliases       map[string]string   `yaml:"aliases"`
	RatioKeywords []string            `yaml:"ratio_keywords"`
	Dissection    map[string][]string `yaml:"dissection"`
}

type periodLexicon struct {
	TermAliases   map[string]string `yaml:"term_aliases"`
	RelativeTerms map[string]string `yaml:"relative_terms"`
}

var dissectionGroupKeys = map[string]int{
	"per_share":         models.DissectionPerShare,
	"annual_growth":     models.DissectionAnnualGrowth,
	"percent_of_assets": models.DissectionPercentOfAssets,
	"percent_of_sales":  models.DissectionPercentOfSales,
	"quarterly_growth":  models.DissectionQuarterlyGrowth,
}

var dissectionGroupLabels = map[int]string{
	models.DissectionPerShare:        "Per Share",
	models.DissectionAnnualGrowth:    "Annual Growth",
	models.DissectionPercentOfAssets: "Percentage of Assets",
	models.DissectionPercentOfSales:  "Percentage of Sales",
	models.DissectionQuarterlyGrowth: "Quarterly Growth",
}

// Detection order follows the warehouse convention: growth and percentage
// indicators are checked before per-share so "EPS Annual Growth" lands in the
// growth group, not per-share.
var dissectionDetectionOrder = []int{
	models.DissectionAnnualGrowth,
	models.DissectionPerShare,
	models.DissectionPercentOfAssets,
	models.DissectionPercentOfSales,
	models.DissectionQuarterlyGrowth,
}

var dissectionStripPatterns = map[int]*regexp.Regexp{
	models.DissectionPerShare:        regexp.MustCompile(`(?i)\s*(?:per[\s-]*share|/share)\s*`),
	models.DissectionAnnualGrowth:    regexp.MustCompile(`(?i)\s*(?:annual|yoy|year[\s-]over[\s-]year)\s*growth\s*|\byoy\b`),
	models.DissectionPercentOfAssets: regexp.MustCompile(`(?i)\s*(?:as\s+)?(?:a\s+)?(?:percentage|percent|%)\s*of\s*assets?\s*`),
	models.DissectionPercentOfSales:  regexp.MustCompile(`(?i)\s*(?:as\s+)?(?:a\s+)?(?:percentage|percent|%)\s*of\s*(?:sales|revenue)\s*`),
	models.DissectionQuarterlyGrowth: regexp.MustCompile(`(?i)\s*(?:quarterly|qoq|q/q|quarter[\s-]over[\s-]quarter)\s*growth\s*|\bqoq\b`),
}

type relativeEntry struct {
	phrase string
	kind   relativeKind
}

// Lexicon holds the embedded metric and period vocabularies with their
// lookup indexes. Immutable after NewLexicon; safe for concurrent use.
type Lexicon struct {
	rawAliases         map[string]string
	singularAliases    map[string]string
	sortedAliasKeys    []string
	sortedSingularKeys []string
	ratioKeywords      []string
	dissection         map[int][]string
	termAliases        map[string]string
	relativeTerms      []relativeEntry
}

// NewLexicon parses the embedded lexicon files and builds the indexes.
func NewLexicon() (*Lexicon, error) {
	var metrics metricLexicon
	if err := yaml.Unmarshal(metricsLexiconYAML, &metrics); err != nil {
		return nil, fmt.Errorf("failed to parse metric lexicon: %w", err)
	}
	var periods periodLexicon
	if err := yaml.Unmarshal(periodsLexiconYAML, &periods); err != nil {
		return nil, fmt.Errorf("failed to parse period lexicon: %w", err)
	}

	l := &Lexicon{
		rawAliases:      make(map[string]string, len(metrics.Aliases)),
		singularAliases: make(map[string]string, len(metrics.Aliases)),
		ratioKeywords:   metrics.RatioKeywords,
		dissection:      make(map[int][]string, len(metrics.Dissection)),
		termAliases:     make(map[string]string, len(periods.TermAliases)),
	}

	for key, canonical := range metrics.Aliases {
		raw := normalizeText(key)
		l.rawAliases[raw] = canonical
		l.singularAliases[singularizePhrase(raw)] = canonical
	}
	l.sortedAliasKeys = sortedKeysByLength(l.rawAliases)
	l.sortedSingularKeys = sortedKeysByLength(l.singularAliases)

	for key, keywords := range metrics.Dissection {
		groupID, ok := dissectionGroupKeys[key]
		if !ok {
			return nil, fmt.Errorf("metric lexicon has unknown dissection group %q", key)
		}
		l.dissection[groupID] = keywords
	}

	for key, label := range periods.TermAliases {
		l.termAliases[normalizeText(key)] = label
	}

	for phrase, kind := range periods.RelativeTerms {
		rk := relativeKind(kind)
		if !validRelativeKinds[rk] {
			return nil, fmt.Errorf("period lexicon maps %q to unknown relative kind %q", phrase, kind)
		}
		l.relativeTerms = append(l.relativeTerms, relativeEntry{phrase: normalizeText(phrase), kind: rk})
	}
	sort.Slice(l.relativeTerms, func(i, j int) bool {
		if len(l.relativeTerms[i].phrase) != len(l.relativeTerms[j].phrase) {
			return len(l.relativeTerms[i].phrase) > len(l.relativeTerms[j].phrase)
		}
		return l.relativeTerms[i].phrase < l.relativeTerms[j].phrase
	})

	return l, nil
}

// CanonicalMetric maps a spoken metric phrase to its canonical head name.
func (l *Lexicon) CanonicalMetric(phrase string) (string, bool) {
	p := normalizeText(phrase)
	if canonical, ok := l.rawAliases[p]; ok {
		return canonical, true
	}
	if canonical, ok := l.singularAliases[singularizePhrase(p)]; ok {
		return canonical, true
	}
	return "", false
}

// FindMetricPhrase scans a question for the longest known metric alias and
// returns the matched alias together with its canonical name.
func (l *Lexicon) FindMetricPhrase(question string) (matched, canonical string, ok bool) {
	q := normalizeText(question)
	for _, key := range l.sortedAliasKeys {
		if phraseContains(q, key) {
			return key, l.rawAliases[key], true
		}
	}
	qs := singularizePhrase(q)
	for _, key := range l.sortedSingularKeys {
		if phraseContains(qs, key) {
			return key, l.singularAliases[key], true
		}
	}
	return "", "", false
}

// RatioIndicator reports whether the phrase carries a ratio keyword.
func (l *Lexicon) RatioIndicator(phrase string) bool {
	p := normalizeText(phrase)
	for _, kw := range l.ratioKeywords {
		if phraseContains(p, kw) {
			return true
		}
	}
	return false
}

// DissectionGroup detects a dissection indicator in the phrase and returns
// the warehouse group id. Bare "EPS" counts as per-share even though it
// carries no explicit indicator.
func (l *Lexicon) DissectionGroup(phrase string) (int, bool) {
	p := normalizeText(phrase)
	if p == "" {
		return 0, false
	}
	for _, groupID := range dissectionDetectionOrder {
		for _, kw := range l.dissection[groupID] {
			if phraseContains(p, kw) {
				return groupID, true
			}
		}
	}
	if phraseContains(p, "eps") {
		return models.DissectionPerShare, true
	}
	return 0, false
}

// GroupLabel returns the display label for a dissection group id.
func (l *Lexicon) GroupLabel(groupID int) string {
	return dissectionGroupLabels[groupID]
}

// DissectionIndicatorText returns the explicit indicator phrase the text
// carries for the group. Implicit detections (bare "EPS") have no indicator
// text.
func (l *Lexicon) DissectionIndicatorText(text string, groupID int) (string, bool) {
	p := normalizeText(text)
	for _, kw := range l.dissection[groupID] {
		if phraseContains(p, kw) {
			return kw, true
		}
	}
	return "", false
}

// StripDissection removes the group's indicator words from a phrase, leaving
// the base metric name. Returns the normalized phrase unchanged when
// stripping would leave nothing.
func (l *Lexicon) StripDissection(phrase string, groupID int) string {
	re, ok := dissectionStripPatterns[groupID]
	if !ok {
		return normalizeText(phrase)
	}
	base := re.ReplaceAllString(strings.ToLower(phrase), " ")
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return normalizeText(phrase)
	}
	return base
}

// NormalizeTerm maps a spoken term phrase to its warehouse term label
// ("q2" and "second quarter" both become "6M").
func (l *Lexicon) NormalizeTerm(term string) string {
	t := normalizeText(term)
	if label, ok := l.termAliases[t]; ok {
		return label
	}
	return strings.ToUpper(t)
}

// RelativeTerm detects a relative-period indicator, longest phrase first.
func (l *Lexicon) RelativeTerm(phrase string) (relativeKind, bool) {
	p := normalizeText(phrase)
	for _, entry := range l.relativeTerms {
		if phraseContains(p, entry.phrase) {
			return entry.kind, true
		}
	}
	return "", false
}

// RelativePhrase is RelativeTerm plus the indicator phrase that matched, for
// callers that need to quote it back.
func (l *Lexicon) RelativePhrase(text string) (string, relativeKind, bool) {
	p := normalizeText(text)
	for _, entry := range l.relativeTerms {
		if phraseContains(p, entry.phrase) {
			return entry.phrase, entry.kind, true
		}
	}
	return "", "", false
}

// normalizeText lowercases, trims terminal punctuation, and collapses
// whitespace so lexicon matching sees a stable form.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "?!.")
	return strings.Join(strings.Fields(s), " ")
}

// tokens splits normalized text into words with edge punctuation and
// possessive suffixes removed.
func tokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		f = strings.TrimSuffix(f, "'s")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// phraseContains matches multi-word needles as substrings and single words
// as whole tokens, so "roe" never matches inside an unrelated word.
func phraseContains(haystack, needle string) bool {
	if strings.ContainsAny(needle, " /%-") {
		return strings.Contains(haystack, needle)
	}
	for _, tok := range tokens(haystack) {
		if tok == needle {
			return true
		}
	}
	return false
}

func singularizePhrase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = inflection.Singular(f)
	}
	return strings.Join(fields, " ")
}

func sortedKeysByLength(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
