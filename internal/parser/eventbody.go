package parser

import (
	"strings"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// parseEventBody parses the EVT bracket's content:
//
//	EVENTBODY := TYPE_NAME " {" u64 "}" [":" EFFECT_BODY]
//
// EFFECT_BODY's shape depends on TYPE_NAME: AreaEntered and
// DisciplineChanged populate their own payloads; every other type carries
// a single trailing NamedId (the action name and id).
func parseEventBody(content string) (event.EventDesc, *event.AreaEnteredPayload, *event.DisciplinePayload, error) {
	desc := event.EventDesc{RawText: content}

	colon := strings.IndexByte(content, ':')
	head := content
	var effectBody string
	hasEffect := false
	if colon >= 0 {
		head = content[:colon]
		effectBody = trimSpace(content[colon+1:])
		hasEffect = true
	}

	typeName, typeID := splitNameAndBrace(head)
	desc.TypeName = typeName
	desc.TypeID = typeID

	kind := eventTypeTable[typeName]

	switch kind {
	case event.EventTypeAreaEntered:
		if !hasEffect {
			return desc, nil, nil, malformed("AreaEntered missing effect body", content)
		}
		payload, err := parseAreaEffectBody(effectBody)
		if err != nil {
			return desc, nil, nil, err
		}
		return desc, payload, nil, nil

	case event.EventTypeDisciplineChanged:
		if !hasEffect {
			return desc, nil, nil, malformed("DisciplineChanged missing effect body", content)
		}
		payload, err := parseDisciplineEffectBody(effectBody)
		if err != nil {
			return desc, nil, nil, err
		}
		return desc, nil, payload, nil

	default:
		if hasEffect {
			action := parseNamedId(effectBody)
			desc.ActionName = action.Name
			desc.ActionID = action.ID
		}
		return desc, nil, nil, nil
	}
}

// splitNameAndBrace parses "Name {id}". A missing or unterminated brace
// group is not an error: the name is returned with id 0.
func splitNameAndBrace(s string) (name string, id uint64) {
	s = trimSpace(s)
	if s == "" {
		return "", 0
	}
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return s, 0
	}
	name = trimSpace(s[:open])
	close := strings.IndexByte(s[open:], '}')
	if close < 0 {
		return name, 0
	}
	id, _, _ = readUint(s, open+1)
	return name, id
}

// parseAreaEffectBody parses:
//
//	AreaName " {" areaId "}" [" " DifficultyDescription " {" difficultyId "}"]
func parseAreaEffectBody(body string) (*event.AreaEnteredPayload, error) {
	open := strings.IndexByte(body, '{')
	if open < 0 {
		return nil, malformed("AreaEntered: missing area id", body)
	}
	close := findMatching(body, open, '{', '}')
	if close < 0 {
		return nil, malformed("AreaEntered: unbalanced area id braces", body)
	}
	areaName := trimSpace(body[:open])
	areaID, _, ok := readUint(body, open+1)
	if !ok {
		return nil, malformed("AreaEntered: bad area id", body)
	}

	payload := &event.AreaEnteredPayload{
		Area: event.NamedId{Name: areaName, ID: areaID},
	}

	remainder := trimSpace(body[close+1:])
	if remainder != "" {
		diff := parseNamedId(remainder)
		payload.Difficulty = &diff
		payload.DifficultyKind = lookupAreaDifficulty(diff.ID)
	} else {
		payload.DifficultyKind = lookupAreaDifficulty(0)
	}
	return payload, nil
}

// parseDisciplineEffectBody parses:
//
//	CombatClassName " {" classId "}" " " DisciplineName " {" disciplineId "}"
func parseDisciplineEffectBody(body string) (*event.DisciplinePayload, error) {
	open := strings.IndexByte(body, '{')
	if open < 0 {
		return nil, malformed("DisciplineChanged: missing class id", body)
	}
	close := findMatching(body, open, '{', '}')
	if close < 0 {
		return nil, malformed("DisciplineChanged: unbalanced class id braces", body)
	}
	className := trimSpace(body[:open])
	classID, _, ok := readUint(body, open+1)
	if !ok {
		return nil, malformed("DisciplineChanged: bad class id", body)
	}

	remainder := trimSpace(body[close+1:])
	discipline := parseNamedId(remainder)

	return &event.DisciplinePayload{
		CombatClass:    event.NamedId{Name: className, ID: classID},
		Discipline:     discipline,
		ClassEnum:      classID,
		DisciplineEnum: discipline.ID,
		Role:           roleForDiscipline(discipline.ID),
	}, nil
}
