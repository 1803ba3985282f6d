package parser

import (
	"strings"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// parseTrailingRegion parses everything after the EVT bracket (§4.2). It
// never fails: an unrecognized shape yields Trailing::Unknown with the
// original text preserved, per spec ("this is not a fatal parse error").
func parseTrailingRegion(raw string) event.Trailing {
	s := trimSpace(raw)

	var threat *float64
	if s != "" && s[len(s)-1] == '>' {
		if open := strings.LastIndexByte(s, '<'); open >= 0 {
			inner := trimSpace(s[open+1 : len(s)-1])
			if v, next, ok := readFloat(inner, 0); ok && next == len(inner) {
				threat = &v
				s = trimSpace(s[:open])
			}
		}
	}

	if s == "" {
		return event.Trailing{Kind: event.TrailingNone, Threat: threat}
	}

	if s[0] != '(' {
		return event.Trailing{Kind: event.TrailingUnknown, Unparsed: s, Threat: threat}
	}
	closeIdx := findMatching(s, 0, '(', ')')
	if closeIdx < 0 {
		return event.Trailing{Kind: event.TrailingUnknown, Unparsed: s, Threat: threat}
	}
	if trimSpace(s[closeIdx+1:]) != "" {
		return event.Trailing{Kind: event.TrailingUnknown, Unparsed: s, Threat: threat}
	}

	group := s[1:closeIdx]
	if count, ok := parseChargesGroup(group); ok {
		return event.Trailing{Kind: event.TrailingCharges, Charges: count, Threat: threat}
	}

	if numeric, ok := parseValueGroup(group); ok {
		return event.Trailing{Kind: event.TrailingNumeric, Numeric: numeric, Threat: threat}
	}

	return event.Trailing{Kind: event.TrailingUnknown, Unparsed: s, Threat: threat}
}

// parseChargesGroup matches "<int> charges" exactly.
func parseChargesGroup(group string) (int32, bool) {
	i := skipSpaces(group, 0)
	v, next, ok := readUint(group, i)
	if !ok {
		return 0, false
	}
	i = skipSpaces(group, next)
	if !strings.HasPrefix(group[i:], "charges") {
		return 0, false
	}
	i += len("charges")
	i = skipSpaces(group, i)
	if i != len(group) {
		return 0, false
	}
	return int32(v), true
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// parseValueGroup parses the VALGROUP value-group grammar in a single
// forward scan with no backtracking:
//
//	amount ["*"] ["~" secondary] [schoolName ["{" u64 "}"]] MITIG_CHAIN
//
// The common shape ("amount[*] [~sec] school {id}", no mitigation chain)
// falls straight through the zero-iteration mitigation loop below, so this
// one function serves as both the documented fast path and the tolerant
// general parser: there is no separate code path to keep in sync.
func parseValueGroup(content string) (event.NumericValue, bool) {
	i := skipSpaces(content, 0)
	amount, next, ok := readInt(content, i)
	if !ok {
		return event.NumericValue{}, false
	}
	i = next

	crit := false
	if i < len(content) && content[i] == '*' {
		crit = true
		i++
	}
	i = skipSpaces(content, i)

	var secondary *int64
	if i < len(content) && content[i] == '~' {
		i = skipSpaces(content, i+1)
		v, next2, ok2 := readInt(content, i)
		if !ok2 {
			return event.NumericValue{}, false
		}
		secondary = &v
		i = next2
	}
	i = skipSpaces(content, i)

	var school *event.School
	if i < len(content) && content[i] != '-' {
		nameStart := i
		for i < len(content) && content[i] != ' ' && content[i] != '{' && content[i] != '-' {
			i++
		}
		if i > nameStart {
			name := content[nameStart:i]
			var id uint64
			j := skipSpaces(content, i)
			if j < len(content) && content[j] == '{' {
				closeB := findMatching(content, j, '{', '}')
				if closeB < 0 {
					return event.NumericValue{}, false
				}
				idVal, _, idok := readUint(content, j+1)
				if !idok {
					return event.NumericValue{}, false
				}
				id = idVal
				i = closeB + 1
			} else {
				i = j
			}
			school = &event.School{Name: name, ID: id}
		}
	}
	i = skipSpaces(content, i)

	var mitigation event.MitigationFlags
	var shield *event.Shield
	for i < len(content) && content[i] == '-' {
		i++
		tokenStart := i
		for i < len(content) && isAlpha(content[i]) {
			i++
		}
		tokenLen := i - tokenStart
		if tokenLen == 0 {
			return event.NumericValue{}, false
		}
		flag, known := mitigationTable[mitigationKey{content[tokenStart], tokenLen}]
		if !known {
			return event.NumericValue{}, false
		}
		mitigation |= flag

		i = skipSpaces(content, i)
		var effectID uint64
		if i < len(content) && content[i] == '{' {
			closeB := findMatching(content, i, '{', '}')
			if closeB < 0 {
				return event.NumericValue{}, false
			}
			effectID, _, _ = readUint(content, i+1)
			i = closeB + 1
		}
		i = skipSpaces(content, i)

		if flag == event.MitigationShield {
			if i < len(content) && content[i] == '(' {
				closeP := findMatching(content, i, '(', ')')
				if closeP < 0 {
					return event.NumericValue{}, false
				}
				absorbed, absorbedID, aok := parseAbsorbedGroup(content[i+1 : closeP])
				if !aok {
					return event.NumericValue{}, false
				}
				shield = &event.Shield{EffectID: effectID, Absorbed: absorbed, AbsorbedID: absorbedID}
				i = closeP + 1
			} else {
				shield = &event.Shield{EffectID: effectID}
			}
			i = skipSpaces(content, i)
		}
	}

	i = skipSpaces(content, i)
	if i != len(content) {
		return event.NumericValue{}, false
	}

	return event.NumericValue{
		Amount:     amount,
		Crit:       crit,
		Secondary:  secondary,
		School:     school,
		Mitigation: mitigation,
		Shield:     shield,
	}, true
}

// parseAbsorbedGroup matches "<int> absorbed {<id>}" (the id is mandatory:
// an absorbed sub-group without an id is not a recognized shape).
func parseAbsorbedGroup(inner string) (absorbed int64, absorbedID uint64, ok bool) {
	i := skipSpaces(inner, 0)
	v, next, vok := readInt(inner, i)
	if !vok {
		return 0, 0, false
	}
	i = skipSpaces(inner, next)
	if !strings.HasPrefix(inner[i:], "absorbed") {
		return 0, 0, false
	}
	i = skipSpaces(inner, i+len("absorbed"))
	if i >= len(inner) || inner[i] != '{' {
		return 0, 0, false
	}
	closeB := findMatching(inner, i, '{', '}')
	if closeB < 0 {
		return 0, 0, false
	}
	id, _, idok := readUint(inner, i+1)
	if !idok {
		return 0, 0, false
	}
	i = skipSpaces(inner, closeB+1)
	if i != len(inner) {
		return 0, 0, false
	}
	return v, id, true
}
