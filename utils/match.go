package utils

import "strings"

// MatchScope checks whether a "resource:action" scope matches pattern. Patterns may
// include:
//   - '*' which matches any sequence of characters within one segment.
//   - A lone "*" which matches every scope.
//   - A pattern without ':' which matches the resource segment only.
//
// Examples: "transaction:*", "*:read", "charging-station:remote-*", "site".
func MatchScope(scope, pattern string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	resource, action, ok := strings.Cut(scope, ":")
	if !ok {
		return false
	}
	pRes, pAct, hasAction := strings.Cut(pattern, ":")
	if !hasAction {
		return matchSegment(resource, pRes)
	}
	return matchSegment(resource, pRes) && matchSegment(action, pAct)
}

// matchSegment matches value against a pattern containing '*' wildcards.
func matchSegment(value, pattern string) bool {
	vIndex, pIndex := 0, 0
	vLen, pLen := len(value), len(pattern)
	starP, starV := -1, 0

	for vIndex < vLen {
		switch {
		case pIndex < pLen && pattern[pIndex] == '*':
			// remember the star, try to match zero chars first
			starP, starV = pIndex, vIndex
			pIndex++
		case pIndex < pLen && pattern[pIndex] == value[vIndex]:
			vIndex++
			pIndex++
		case starP >= 0:
			// backtrack: let the last star swallow one more char
			starV++
			vIndex = starV
			pIndex = starP + 1
		default:
			return false
		}
	}
	for pIndex < pLen && pattern[pIndex] == '*' {
		pIndex++
	}
	return pIndex == pLen
}
