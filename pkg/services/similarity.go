package services

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// similarityScore rates how well a user phrase matches a candidate name, in
// [0,1]. Token overlap carries the score (Dice over the two token sets,
// prefix-tolerant so "bank" still counts against "bankers"); whole-phrase
// containment and leading-token alignment raise the floor so short phrases
// like "nestle" still clear the threshold against their full legal names.
func similarityScore(phrase, candidate string) float64 {
	p := normalizeText(phrase)
	c := normalizeText(candidate)
	if p == "" || c == "" {
		return 0
	}
	if p == c {
		return 1
	}

	pt := tokens(p)
	ct := tokens(c)
	if len(pt) == 0 || len(ct) == 0 {
		return 0
	}

	matched := 0
	for _, a := range pt {
		for _, b := range ct {
			if tokenMatch(a, b) {
				matched++
				break
			}
		}
	}
	score := float64(2*matched) / float64(len(pt)+len(ct))

	if strings.Contains(c, p) || strings.Contains(p, c) {
		shorter, longer := len(p), len(c)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		if ratio := float64(shorter) / float64(longer); ratio > score {
			score = ratio
		}
	}

	if leadingMatch(pt, ct) && score < leadingMatchFloor {
		score = leadingMatchFloor
	}
	return score
}

// leadingMatchFloor is the minimum score for a phrase whose tokens all line
// up with the start of the candidate name ("nestle" → "Nestle Pakistan
// Limited").
const leadingMatchFloor = 0.7

func leadingMatch(phraseTokens, candidateTokens []string) bool {
	if len(phraseTokens) > len(candidateTokens) {
		return false
	}
	for i, tok := range phraseTokens {
		if !tokenMatch(tok, candidateTokens[i]) {
			return false
		}
	}
	return true
}

// tokenMatch reports whether two tokens count as the same word: exact,
// same singular form, or one a prefix of the other at four-plus characters
// ("bank" / "bankers").
func tokenMatch(a, b string) bool {
	if a == b {
		return true
	}
	if inflection.Singular(a) == inflection.Singular(b) {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= 4 && strings.HasPrefix(long, short)
}

// rankNames scores every candidate name against the phrase and returns the
// indexes of the top matches, best first. Ties keep input order.
func rankNames(phrase string, names []string, limit int) []scoredName {
	scored := make([]scoredName, 0, len(names))
	for i, name := range names {
		s := similarityScore(phrase, name)
		if s <= 0 {
			continue
		}
		scored = append(scored, scoredName{Index: i, Name: name, Score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

type scoredName struct {
	Index int
	Name  string
	Score float64
}
