package exec

import "strings"

// matchLike implements LIKE matching: a single "%" wildcard in
// prefix, suffix, or contains position (and, as a superset, ordered
// multiple wildcards) against value.
func matchLike(value, pattern string) bool {
	if !strings.Contains(pattern, "%") {
		return value == pattern
	}

	parts := strings.Split(pattern, "%")
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	if !strings.HasSuffix(value, parts[len(parts)-1]) {
		return false
	}

	pos := len(parts[0])
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(value[pos:], parts[i])
		if idx == -1 {
			return false
		}
		pos += idx + len(parts[i])
	}
	return true
}
