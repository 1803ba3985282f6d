package parser

import (
	"strings"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// sameAsSourceMarker is the display text stashed on a shorthand "[=]"
// entity so the caller can detect and substitute it after both source and
// target have been parsed (§4.1 "Target shorthand").
const sameAsSourceMarker = "="

// parseNamedId parses "name {id}" or "name" (id optional), per the
// NAMEDID grammar: `name " {" u64 "}"` with braces optional.
func parseNamedId(s string) event.NamedId {
	s = trimSpace(s)
	if s == "" {
		return event.NamedId{}
	}
	if s[len(s)-1] == '}' {
		open := strings.LastIndexByte(s, '{')
		if open >= 0 {
			id, _, ok := readUint(s, open+1)
			if ok {
				name := trimSpace(s[:open])
				return event.NamedId{Name: name, ID: id}
			}
		}
	}
	return event.NamedId{Name: s}
}

// combineStaticInstance derives a single 64-bit identity from an entity's
// (static_id, instance_id) pair. instance_id disambiguates multiple
// simultaneous spawns of the same static entity; when absent, identity
// collapses to the static id alone.
func combineStaticInstance(staticID, instanceID uint64) uint64 {
	if instanceID == 0 {
		return staticID
	}
	const mix = 0x9E3779B97F4A7C15 // golden-ratio multiplicative mix
	return staticID ^ (instanceID * mix)
}

// parseIdSuffix parses an optional "{staticId[:instId]}" suffix attached
// directly to a name (no separating space), returning the name with the
// suffix stripped plus the parsed static/instance ids (0 if absent).
func parseIdSuffix(s string) (name string, staticID, instanceID uint64) {
	s = trimSpace(s)
	if s == "" || s[len(s)-1] != '}' {
		return s, 0, 0
	}
	open := strings.LastIndexByte(s, '{')
	if open < 0 {
		return s, 0, 0
	}
	inner := s[open+1 : len(s)-1]
	name = trimSpace(s[:open])
	if colon := strings.IndexByte(inner, ':'); colon >= 0 {
		staticID, _, _ = readUint(inner, 0)
		instanceID, _, _ = readUint(inner, colon+1)
		return name, staticID, instanceID
	}
	staticID, _, _ = readUint(inner, 0)
	return name, staticID, 0
}

// parseEntity parses the ENTITY grammar:
//
//	ENTITY := DISPLAY "|" "(" x,y,z,f ")" "|" "(" cur/max ")"
//
// content is the bracket body with the surrounding "[" "]" already
// stripped. Empty content yields EntityEmpty; content == "=" yields
// EntitySameAsSource, a transient marker the caller substitutes.
func parseEntity(content string) (event.Entity, error) {
	if content == "" {
		return event.Entity{Kind: event.EntityEmpty}, nil
	}
	if content == sameAsSourceMarker {
		return event.Entity{Kind: event.EntitySameAsSource}, nil
	}

	firstPipe := strings.IndexByte(content, '|')
	if firstPipe < 0 {
		return event.Entity{}, malformed("entity: missing '|' separators", content)
	}
	display := content[:firstPipe]
	rest := content[firstPipe+1:]

	secondPipe := strings.IndexByte(rest, '|')
	if secondPipe < 0 {
		return event.Entity{}, malformed("entity: missing second '|' separator", content)
	}
	posField := rest[:secondPipe]
	healthField := rest[secondPipe+1:]

	pos, err := parsePosition(posField)
	if err != nil {
		return event.Entity{}, err
	}
	health, err := parseHealth(healthField)
	if err != nil {
		return event.Entity{}, err
	}

	e, err := parseDisplay(display)
	if err != nil {
		return event.Entity{}, err
	}
	e.Position = pos
	e.Health = health
	return e, nil
}

func parsePosition(s string) (event.Position, error) {
	s = trimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return event.Position{}, malformed("entity: bad position field", s)
	}
	inner := s[1 : len(s)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 4 {
		return event.Position{}, malformed("entity: position needs 4 components", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, _, ok := readFloat(trimSpace(p), 0)
		if !ok {
			return event.Position{}, malformed("entity: bad position component", p)
		}
		vals[i] = v
	}
	return event.Position{X: vals[0], Y: vals[1], Z: vals[2], Facing: vals[3]}, nil
}

func parseHealth(s string) (event.Health, error) {
	s = trimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return event.Health{}, malformed("entity: bad health field", s)
	}
	inner := s[1 : len(s)-1]
	slash := strings.IndexByte(inner, '/')
	if slash < 0 {
		return event.Health{}, malformed("entity: health missing '/'", s)
	}
	cur, _, ok1 := readInt(trimSpace(inner[:slash]), 0)
	max, _, ok2 := readInt(trimSpace(inner[slash+1:]), 0)
	if !ok1 || !ok2 {
		return event.Health{}, malformed("entity: bad health component", s)
	}
	return event.Health{Current: cur, Max: max}, nil
}

// parseDisplay classifies DISPLAY by syntactic cue (§4.1):
//
//   - contains '/': Companion (the owner token may itself start with '@')
//   - starts with '@': Player
//   - otherwise: NpcOrObject
func parseDisplay(display string) (event.Entity, error) {
	switch {
	case strings.ContainsRune(display, '/'):
		return parseCompanionDisplay(display)
	case strings.HasPrefix(display, "@"):
		return parsePlayerDisplay(display)
	default:
		return parseNpcDisplay(display)
	}
}

// parsePlayerToken parses "@Name#accountId" (the "#accountId" suffix is
// optional), returning name and account id (0 if absent).
func parsePlayerToken(tok string) (name string, accountID uint64) {
	tok = strings.TrimPrefix(tok, "@")
	if hash := strings.IndexByte(tok, '#'); hash >= 0 {
		name = tok[:hash]
		accountID, _, _ = readUint(tok, hash+1)
		return name, accountID
	}
	return tok, 0
}

func parsePlayerDisplay(display string) (event.Entity, error) {
	name, accountID := parsePlayerToken(display)
	return event.Entity{
		Kind:        event.EntityPlayer,
		DisplayText: display,
		Name:        name,
		AccountID:   accountID,
		ID:          accountID,
	}, nil
}

func parseCompanionDisplay(display string) (event.Entity, error) {
	slash := strings.IndexByte(display, '/')
	ownerTok := display[:slash]
	companionTok := display[slash+1:]

	ownerName, ownerAccountID := parsePlayerToken(ownerTok)
	owner := event.Entity{
		Kind:      event.EntityPlayer,
		Name:      ownerName,
		AccountID: ownerAccountID,
		ID:        ownerAccountID,
	}

	companionName, staticID, instanceID := parseIdSuffix(companionTok)
	return event.Entity{
		Kind:          event.EntityCompanion,
		DisplayText:   display,
		Name:          companionName,
		CompanionName: companionName,
		OwnerRef:      &owner,
		StaticID:      staticID,
		InstanceID:    instanceID,
		ID:            combineStaticInstance(staticID, instanceID),
	}, nil
}

func parseNpcDisplay(display string) (event.Entity, error) {
	name, staticID, instanceID := parseIdSuffix(display)
	return event.Entity{
		Kind:        event.EntityNpcOrObject,
		DisplayText: display,
		Name:        name,
		StaticID:    staticID,
		InstanceID:  instanceID,
		ID:          combineStaticInstance(staticID, instanceID),
	}, nil
}
