package matcher

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// indelOptions weighs a substitution as a deletion plus an insertion, which
// makes the normalized distance an Indel similarity.
var indelOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 2,
	Matches: levenshtein.IdenticalRunes,
}

// ratio returns the normalized Indel similarity of two strings in [0, 1].
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	dist := levenshtein.DistanceForStrings(ra, rb, indelOptions)
	return float64(total-dist) / float64(total)
}

// TokenSetRatio compares two strings by their word sets, so that extra
// words on one side ("Staples Inc" vs "Staples") do not lower the score.
// Inputs are lower-cased and trimmed. Empty input yields 0.
func TokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, onlyA, onlyB []string
	for tok := range ta {
		if tb[tok] {
			sect = append(sect, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if !ta[tok] {
			onlyB = append(onlyB, tok)
		}
	}

	if len(sect) > 0 && (len(onlyA) == 0 || len(onlyB) == 0) {
		return 1
	}

	sort.Strings(sect)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	sectStr := strings.Join(sect, " ")
	aStr := strings.Join(onlyA, " ")
	bStr := strings.Join(onlyB, " ")
	if sectStr == "" {
		return ratio(aStr, bStr)
	}

	combinedA := sectStr + " " + aStr
	combinedB := sectStr + " " + bStr

	best := ratio(combinedA, combinedB)
	if r := ratio(sectStr, combinedA); r > best {
		best = r
	}
	if r := ratio(sectStr, combinedB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(strings.TrimSpace(s))) {
		set[tok] = true
	}
	return set
}
