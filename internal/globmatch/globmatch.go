// Package globmatch implements the fnmatch-style glob matching Substrate
// uses for command and path patterns: '*' and '?' wildcards, falling back
// to a plain substring match when a pattern carries no wildcards at all
// (kept for legacy compatibility with patterns authored before globbing was
// introduced).
package globmatch

import "strings"

// Match reports whether s matches pattern. Patterns with no '*' or '?' are
// treated as a substring match against s rather than an exact match.
func Match(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(s, pattern)
	}
	return fnmatch(pattern, s)
}

// fnmatch implements a small '*'/'?' glob matcher over
// plain strings (not paths — '/' has no special meaning here).
func fnmatch(pattern, s string) bool {
	return fnmatchRec([]rune(pattern), []rune(s))
}

func fnmatchRec(pattern, s []rune) bool {
	// Standard two-pointer glob match with backtracking on '*'.
	var pIdx, sIdx int
	var starIdx = -1
	var starMatch int

	for sIdx < len(s) {
		switch {
		case pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == s[sIdx]):
			pIdx++
			sIdx++
		case pIdx < len(pattern) && pattern[pIdx] == '*':
			starIdx = pIdx
			starMatch = sIdx
			pIdx++
		case starIdx != -1:
			pIdx = starIdx + 1
			starMatch++
			sIdx = starMatch
		default:
			return false
		}
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

// MatchAny reports whether s matches any of patterns, returning the first
// matching pattern and true, or "" and false.
func MatchAny(patterns []string, s string) (string, bool) {
	for _, p := range patterns {
		if Match(p, s) {
			return p, true
		}
	}
	return "", false
}
