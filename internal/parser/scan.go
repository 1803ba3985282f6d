// Package parser implements the zero-copy combat-log line parser (§4.1)
// and its trailing sub-parser (§4.2).
//
// Strings returned by Parse are slices of the caller's input line: Go's
// string slicing does not copy the backing array, so borrowing is the
// natural, allocation-free behavior. Callers that need a record to outlive
// the input buffer must use event.CombatEvent.DeepClone.
package parser

import "strings"

// skipSpaces advances i past any run of ASCII spaces.
func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}

// isDigit reports whether b is an ASCII digit.
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// readUint parses a contiguous run of ASCII digits starting at i without
// allocating. Returns the parsed value, the index after the last digit, and
// whether at least one digit was consumed.
func readUint(s string, i int) (uint64, int, bool) {
	start := i
	var v uint64
	for i < len(s) && isDigit(s[i]) {
		v = v*10 + uint64(s[i]-'0')
		i++
	}
	return v, i, i > start
}

// readInt parses an optionally negative contiguous run of digits.
func readInt(s string, i int) (int64, int, bool) {
	neg := false
	j := i
	if j < len(s) && s[j] == '-' {
		neg = true
		j++
	}
	v, next, ok := readUint(s, j)
	if !ok {
		return 0, i, false
	}
	if neg {
		return -int64(v), next, true
	}
	return int64(v), next, true
}

// readFloat parses a decimal number (optional sign, optional fractional
// part) without using strconv/regexp, matching the fast-path requirement
// that numeric fields parse with a single linear scan.
func readFloat(s string, i int) (float64, int, bool) {
	start := i
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	intPart, next, ok := readUint(s, i)
	if !ok {
		return 0, start, false
	}
	i = next
	value := float64(intPart)
	if i < len(s) && s[i] == '.' {
		j := i + 1
		fracStart := j
		fracVal, fracNext, fok := readUint(s, j)
		if fok {
			digits := fracNext - fracStart
			div := 1.0
			for k := 0; k < digits; k++ {
				div *= 10
			}
			value += float64(fracVal) / div
			i = fracNext
		}
	}
	if neg {
		value = -value
	}
	return value, i, true
}

// findMatching finds the index of the byte that closes the delimiter pair
// (open, close) starting at s[start] == open, honoring nesting (needed for
// the mitigation chain's nested absorbed sub-group). Returns -1 if
// unbalanced.
func findMatching(s string, start int, open, close byte) int {
	if start >= len(s) || s[start] != open {
		return -1
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// readBracket reads a "[...]" group starting at s[i] == '['. Returns the
// content (without brackets), the index just past ']', and ok.
func readBracket(s string, i int) (content string, next int, ok bool) {
	end := findMatching(s, i, '[', ']')
	if end < 0 {
		return "", i, false
	}
	return s[i+1 : end], end + 1, true
}

// readParen reads a "(...)" group starting at s[i] == '('.
func readParen(s string, i int) (content string, next int, ok bool) {
	end := findMatching(s, i, '(', ')')
	if end < 0 {
		return "", i, false
	}
	return s[i+1 : end], end + 1, true
}

// readAngle reads a "<...>" group starting at s[i] == '<'.
func readAngle(s string, i int) (content string, next int, ok bool) {
	end := findMatching(s, i, '<', '>')
	if end < 0 {
		return "", i, false
	}
	return s[i+1 : end], end + 1, true
}

// trimSpace is an alias kept local to avoid repeated package qualification
// in hot-path call sites.
func trimSpace(s string) string { return strings.TrimSpace(s) }
