package sync

import (
	"strings"
	"unicode"
)

// fuzzyThreshold is the minimum normalized similarity for a fuzzy match.
const fuzzyThreshold = 0.7

// normalizeName lowercases a name or identifier-object and strips
// whitespace, underscores and hyphens, so that "Living Room Lamp" and
// "living_room_lamp" normalize identically.
func normalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// similarity returns the normalized Levenshtein similarity of two strings:
// 1 - distance/max(len). Identical strings score 1, disjoint strings
// approach 0. Both empty scores 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// fuzzyMatch reports whether two names describe the same thing: after
// normalization, one contains the other or their edit-distance similarity
// meets the threshold. Empty normalized strings never match.
func fuzzyMatch(a, b string) bool {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return similarity(na, nb) >= fuzzyThreshold
}
