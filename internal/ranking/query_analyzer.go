package ranking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// QueryAnalyzer turns query text into lowercase match terms.
type QueryAnalyzer struct{}

// NewQueryAnalyzer creates a new QueryAnalyzer.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Analyze parses a query string and returns an AnalyzedQuery.
// Terms are split on whitespace only and de-duplicated, keeping first occurrence order.
func (qa *QueryAnalyzer) Analyze(query string) *AnalyzedQuery {
	lower := strings.ToLower(query)
	result := &AnalyzedQuery{
		Original: query,
		Lower:    lower,
		Terms:    []string{},
	}
	seen := make(map[string]bool)
	for _, word := range strings.Fields(lower) {
		if !seen[word] {
			result.Terms = append(result.Terms, word)
			seen[word] = true
		}
	}
	return result
}

// MatchTerm classifies how term matches value. Both are compared case-insensitively;
// term is expected to be lowercase already.
func MatchTerm(term, value string) MatchType {
	if term == "" {
		return MatchTypeNone
	}
	valueLower := strings.ToLower(value)
	switch {
	case valueLower == term:
		return MatchTypeExact
	case ContainsWholeWord(valueLower, term):
		return MatchTypeWholeWord
	case strings.Contains(valueLower, term):
		return MatchTypeSubstring
	default:
		return MatchTypeNone
	}
}

// ContainsWholeWord reports whether term occurs in text bounded on both sides by
// the start/end of text or a rune that is not a letter, digit or underscore.
func ContainsWholeWord(text, term string) bool {
	if term == "" {
		return false
	}
	for start := 0; start <= len(text)-len(term); {
		idx := strings.Index(text[start:], term)
		if idx == -1 {
			return false
		}
		idx += start
		end := idx + len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:idx])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		start = idx + 1
	}
	return false
}

// isWordRune reports whether r can be part of a word. utf8.RuneError (also returned
// at the edges of text) is not.
func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// ContainsAnyTerm reports whether value contains any of terms as a case-insensitive substring.
func ContainsAnyTerm(terms []string, value string) bool {
	valueLower := strings.ToLower(value)
	for _, term := range terms {
		if term != "" && strings.Contains(valueLower, term) {
			return true
		}
	}
	return false
}

// CountMatchingTerms counts how many query terms are found in the text.
func CountMatchingTerms(terms []string, text string) int {
	count := 0
	textLower := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(textLower, term) {
			count++
		}
	}
	return count
}
