// Package parser implements the zero-copy combat-log line parser (§4.1)
// and its trailing sub-parser (§4.2).
//
// Strings returned by Parse are slices of the caller's input line: Go's
// string slicing does not copy the backing array, so borrowing is the
// natural, allocation-free behavior. Callers that need a record to outlive
// the input buffer must use event.CombatEvent.DeepClone.
package parser

import (
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// Parse converts one textual log line into a fully typed CombatEvent
// (§4.1). It returns a *MalformedError when a mandatory bracket is missing
// or unbalanced, a required numeric field fails to parse, or entity
// grammar is ambiguous. The trailing grammar is tolerant: an unrecognized
// shape never fails Parse, it only yields Trailing::Unknown.
//
// Parse is idempotent: parsing the same line twice yields bit-identical
// records (apart from Time.EpochMs, which stays at event.EpochUnset until
// the Time Reconstructor runs).
func Parse(line string) (event.CombatEvent, error) {
	i := skipSpaces(line, 0)

	tf, i, err := parseTimeField(line, i)
	if err != nil {
		return event.CombatEvent{}, err
	}

	i = skipSpaces(line, i)
	src, i, err := parseEntityBracket(line, i)
	if err != nil {
		return event.CombatEvent{}, err
	}

	i = skipSpaces(line, i)
	tgt, i, err := parseEntityBracket(line, i)
	if err != nil {
		return event.CombatEvent{}, err
	}

	i = skipSpaces(line, i)
	abilContent, i, ok := readBracket(line, i)
	if !ok {
		return event.CombatEvent{}, malformed("missing ability bracket", line)
	}
	ability := parseNamedId(abilContent)

	i = skipSpaces(line, i)
	evtContent, i, ok := readBracket(line, i)
	if !ok {
		return event.CombatEvent{}, malformed("missing event bracket", line)
	}
	desc, areaPayload, disciplinePayload, err := parseEventBody(evtContent)
	if err != nil {
		return event.CombatEvent{}, err
	}

	if src.Kind == event.EntitySameAsSource {
		return event.CombatEvent{}, malformed("source cannot be '='", line)
	}
	if tgt.Kind == event.EntitySameAsSource {
		tgt = src
	}

	var tail event.Trailing
	if desc.TypeName == "AreaEntered" && areaPayload != nil {
		rawValue, version := parseAreaTrailingRegion(line[i:])
		areaPayload.RawValue = rawValue
		areaPayload.VersionTag = version
	} else {
		tail = parseTrailingRegion(line[i:])
	}

	ev := event.CombatEvent{
		Time:              tf,
		Source:            src,
		Target:            tgt,
		Ability:           ability,
		Desc:              desc,
		Tail:              tail,
		AreaPayload:       areaPayload,
		DisciplinePayload: disciplinePayload,
		RawLine:           line,
	}
	ev.Time.EpochMs = event.EpochUnset
	return ev, nil
}

// parseTimeField parses "[HH:MM:SS.mmm]" starting at line[i] == '['.
func parseTimeField(line string, i int) (event.TimeField, int, error) {
	content, next, ok := readBracket(line, i)
	if !ok {
		return event.TimeField{}, i, malformed("missing/unbalanced timestamp bracket", line)
	}
	tf, ok := parseTimestamp(content)
	if !ok {
		return event.TimeField{}, i, malformed("bad timestamp", content)
	}
	return tf, next, nil
}

// parseTimestamp parses "HH:MM:SS.mmm" (no brackets).
func parseTimestamp(s string) (event.TimeField, bool) {
	h, i, ok := readUint(s, 0)
	if !ok || i >= len(s) || s[i] != ':' {
		return event.TimeField{}, false
	}
	i++
	m, i2, ok := readUint(s, i)
	if !ok || i2 >= len(s) || s[i2] != ':' {
		return event.TimeField{}, false
	}
	i = i2 + 1
	sec, i3, ok := readUint(s, i)
	if !ok || i3 >= len(s) || s[i3] != '.' {
		return event.TimeField{}, false
	}
	i = i3 + 1
	ms, i4, ok := readUint(s, i)
	if !ok || i4 != len(s) {
		return event.TimeField{}, false
	}
	combatMs := ((int64(h)*60+int64(m))*60+int64(sec))*1000 + int64(ms)
	return event.TimeField{
		H: int(h), M: int(m), S: int(sec), Ms: int(ms),
		CombatMs: combatMs,
	}, true
}

// parseEntityBracket parses a "[...]" entity field, which may legitimately
// be empty ("[]").
func parseEntityBracket(line string, i int) (event.Entity, int, error) {
	content, next, ok := readBracket(line, i)
	if !ok {
		return event.Entity{}, i, malformed("missing/unbalanced entity bracket", line)
	}
	ent, err := parseEntity(content)
	if err != nil {
		return event.Entity{}, i, err
	}
	return ent, next, nil
}

// parseAreaTrailingRegion parses the AreaEntered-specific trailing shape:
// an optional "(raw_value)" verbatim string followed by an optional
// "<version>" verbatim string (§4.1 "For AreaEntered, the text after the
// top-level closing bracket may carry (raw_value) and <version>").
func parseAreaTrailingRegion(raw string) (rawValue, version string) {
	s := trimSpace(raw)

	if s != "" && s[0] == '(' {
		closeIdx := findMatching(s, 0, '(', ')')
		if closeIdx >= 0 {
			rawValue = s[1:closeIdx]
			s = trimSpace(s[closeIdx+1:])
		}
	}
	if s != "" && s[0] == '<' {
		closeIdx := findMatching(s, 0, '<', '>')
		if closeIdx >= 0 {
			version = s[1:closeIdx]
		}
	}
	return rawValue, version
}
