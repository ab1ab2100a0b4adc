// Package fuzzy ranks catalog search results against the user's query with
// typo tolerance.
package fuzzy

import (
	"strings"
	"unicode"
)

// Distance calculates the Levenshtein edit distance between two strings,
// case-insensitively.
func Distance(s1, s2 string) int {
	a := strings.ToLower(s1)
	b := strings.ToLower(s2)

	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// Similarity returns a score between 0 and 1. 1.0 means identical ignoring
// case, 0.0 means completely different.
func Similarity(s1, s2 string) float64 {
	maxLen := max(len(s1), len(s2))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Distance(s1, s2))/float64(maxLen)
}

// thresholdFor picks a similarity cutoff by word length. Short words leave
// little room for typos before becoming a different word.
func thresholdFor(word string) float64 {
	switch {
	case len(word) <= 3:
		return 0.8
	case len(word) <= 5:
		return 0.7
	default:
		return 0.65
	}
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Contains reports whether the query appears in the text, tolerating typos.
func Contains(text, query string) bool {
	if query == "" {
		return false
	}

	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)
	if strings.Contains(textLower, queryLower) {
		return true
	}

	textWords := words(text)
	for _, word := range textWords {
		if Similarity(word, queryLower) >= thresholdFor(queryLower) {
			return true
		}
	}

	queryWords := words(query)
	if len(queryWords) == 0 {
		return false
	}

	matched := 0
	for _, qWord := range queryWords {
		for _, tWord := range textWords {
			if Similarity(tWord, qWord) >= thresholdFor(qWord) {
				matched++
				break
			}
		}
	}
	return float64(matched)/float64(len(queryWords)) >= 0.6
}

// MatchScore calculates how well text matches the query. Exact prefix and
// substring matches outrank any fuzzy match.
func MatchScore(text, query string) float64 {
	textLower := strings.ToLower(text)
	queryLower := strings.ToLower(query)

	if strings.HasPrefix(textLower, queryLower) {
		return 1.0
	}
	if strings.Contains(textLower, queryLower) {
		return 0.95
	}

	queryWords := words(query)
	if len(queryWords) == 0 {
		return 0.0
	}
	textWords := words(text)

	var total float64
	for _, qWord := range queryWords {
		var best float64
		for _, tWord := range textWords {
			if sim := Similarity(tWord, qWord); sim > best {
				best = sim
			}
		}
		total += best
	}
	return (total / float64(len(queryWords))) * 0.9
}
