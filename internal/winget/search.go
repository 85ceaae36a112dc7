package winget

import (
	"regexp"
	"strings"
)

// MatchType enumerates manifestSearch's query.MatchType values.
type MatchType string

const (
	MatchExact           MatchType = "Exact"
	MatchCaseInsensitive MatchType = "CaseInsensitive"
	MatchStartsWith      MatchType = "StartsWith"
	MatchSubstring       MatchType = "Substring"
	MatchWildcard        MatchType = "Wildcard"
	MatchFuzzy           MatchType = "Fuzzy"
	MatchFuzzySubstring  MatchType = "FuzzySubstring"
)

// Match implements the match-type semantics for a single candidate
// string (typically a PackageIdentifier) against keyword.
func Match(matchType MatchType, keyword, candidate string) bool {
	lowerKeyword := strings.ToLower(keyword)
	lowerCandidate := strings.ToLower(candidate)

	switch matchType {
	case MatchExact:
		return lowerCandidate == lowerKeyword
	case MatchCaseInsensitive, MatchSubstring:
		return strings.Contains(lowerCandidate, lowerKeyword)
	case MatchStartsWith:
		return strings.HasPrefix(lowerCandidate, lowerKeyword)
	case MatchWildcard:
		return matchWildcard(lowerKeyword, lowerCandidate)
	case MatchFuzzy:
		return isSubsequence(lowerKeyword, lowerCandidate)
	case MatchFuzzySubstring:
		for _, word := range strings.Fields(lowerCandidate) {
			if isSubsequence(lowerKeyword, word) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(lowerCandidate, lowerKeyword)
	}
}

func matchWildcard(pattern, candidate string) bool {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*`)
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}

// isSubsequence reports whether every rune of keyword appears in s, in
// order, not necessarily contiguously.
func isSubsequence(keyword, s string) bool {
	if keyword == "" {
		return true
	}
	runes := []rune(keyword)
	i := 0
	for _, r := range s {
		if runes[i] == r {
			i++
			if i == len(runes) {
				return true
			}
		}
	}
	return false
}
