package combatlog

import (
	"encoding/json"
	"fmt"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// jsonEntity is the wire schema for event.Entity, per §6 "Persisted state":
//
//	{name, companion?, owner?, owner_id?, kind, id_hi?, id_lo?, is_player?, is_companion?}
//
// 64-bit ids are split into two uint32 halves (id_hi/id_lo) so the encoding
// survives round-tripping through JSON consumers whose numeric type cannot
// exactly represent the full 64-bit range.
type jsonEntity struct {
	Name        string  `json:"name,omitempty"`
	Companion   string  `json:"companion,omitempty"`
	Owner       string  `json:"owner,omitempty"`
	OwnerID     *uint64 `json:"owner_id,omitempty"`
	Kind        uint8   `json:"kind"`
	IDHi        *uint32 `json:"id_hi,omitempty"`
	IDLo        *uint32 `json:"id_lo,omitempty"`
	IsPlayer    bool    `json:"is_player,omitempty"`
	IsCompanion bool    `json:"is_companion,omitempty"`
}

func splitID(id uint64) (hi, lo uint32) {
	return uint32(id >> 32), uint32(id)
}

func joinID(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func entityToJSON(e event.Entity) jsonEntity {
	out := jsonEntity{
		Name:        e.Name,
		Kind:        uint8(e.Kind),
		IsPlayer:    e.Kind == event.EntityPlayer,
		IsCompanion: e.Kind == event.EntityCompanion,
	}
	if e.Kind == event.EntityCompanion {
		out.Companion = e.CompanionName
		if e.OwnerRef != nil {
			out.Owner = e.OwnerRef.Name
			oid := e.OwnerRef.ID
			out.OwnerID = &oid
		}
	}
	if e.ID != 0 {
		hi, lo := splitID(e.ID)
		out.IDHi, out.IDLo = &hi, &lo
	}
	return out
}

func entityFromJSON(j jsonEntity) event.Entity {
	e := event.Entity{
		Kind:          event.EntityKind(j.Kind),
		Name:          j.Name,
		DisplayText:   j.Name,
		CompanionName: j.Companion,
	}
	if j.IDHi != nil || j.IDLo != nil {
		var hi, lo uint32
		if j.IDHi != nil {
			hi = *j.IDHi
		}
		if j.IDLo != nil {
			lo = *j.IDLo
		}
		e.ID = joinID(hi, lo)
	}
	if j.Owner != "" || j.OwnerID != nil {
		owner := event.Entity{Kind: event.EntityPlayer, Name: j.Owner}
		if j.OwnerID != nil {
			owner.ID = *j.OwnerID
		}
		e.OwnerRef = &owner
	}
	return e
}

// jsonAbility is the wire schema for a NamedId.
type jsonAbility struct {
	Name string  `json:"name,omitempty"`
	IDHi *uint32 `json:"id_hi,omitempty"`
	IDLo *uint32 `json:"id_lo,omitempty"`
}

func namedIDToJSON(n event.NamedId) jsonAbility {
	out := jsonAbility{Name: n.Name}
	if n.ID != 0 {
		hi, lo := splitID(n.ID)
		out.IDHi, out.IDLo = &hi, &lo
	}
	return out
}

func namedIDFromJSON(j jsonAbility) event.NamedId {
	n := event.NamedId{Name: j.Name}
	if j.IDHi != nil || j.IDLo != nil {
		var hi, lo uint32
		if j.IDHi != nil {
			hi = *j.IDHi
		}
		if j.IDLo != nil {
			lo = *j.IDLo
		}
		n.ID = joinID(hi, lo)
	}
	return n
}

// jsonEventDesc is the wire schema for the "event" key.
type jsonEventDesc struct {
	TypeID     uint64 `json:"type_id,omitempty"`
	TypeName   string `json:"type_name,omitempty"`
	ActionID   uint64 `json:"action_id,omitempty"`
	ActionName string `json:"action_name,omitempty"`
}

// jsonTail is the wire schema for the "tail" key, tagged by kind.
type jsonTail struct {
	Kind       string   `json:"kind"`
	Amount     int64    `json:"amount,omitempty"`
	Crit       bool     `json:"crit,omitempty"`
	Secondary  *int64   `json:"secondary,omitempty"`
	SchoolName string   `json:"school_name,omitempty"`
	SchoolID   uint64   `json:"school_id,omitempty"`
	Mitigation uint8    `json:"mitigation,omitempty"`
	ShieldEffectID uint64 `json:"shield_effect_id,omitempty"`
	ShieldAbsorbed int64  `json:"shield_absorbed,omitempty"`
	ShieldAbsorbedID uint64 `json:"shield_absorbed_id,omitempty"`
	Charges    int32    `json:"charges,omitempty"`
	Threat     *float64 `json:"threat,omitempty"`
	Unparsed   string   `json:"unparsed,omitempty"`
}

func tailKindName(k event.TrailingKind) string {
	switch k {
	case event.TrailingNumeric:
		return "Numeric"
	case event.TrailingCharges:
		return "Charges"
	case event.TrailingUnknown:
		return "Unknown"
	default:
		return "None"
	}
}

func tailKindFromName(s string) event.TrailingKind {
	switch s {
	case "Numeric":
		return event.TrailingNumeric
	case "Charges":
		return event.TrailingCharges
	case "Unknown":
		return event.TrailingUnknown
	default:
		return event.TrailingNone
	}
}

func tailToJSON(t event.Trailing) jsonTail {
	out := jsonTail{Kind: tailKindName(t.Kind), Threat: t.Threat, Unparsed: t.Unparsed}
	switch t.Kind {
	case event.TrailingNumeric:
		out.Amount = t.Numeric.Amount
		out.Crit = t.Numeric.Crit
		out.Secondary = t.Numeric.Secondary
		out.Mitigation = uint8(t.Numeric.Mitigation)
		if t.Numeric.School != nil {
			out.SchoolName = t.Numeric.School.Name
			out.SchoolID = t.Numeric.School.ID
		}
		if t.Numeric.Shield != nil {
			out.ShieldEffectID = t.Numeric.Shield.EffectID
			out.ShieldAbsorbed = t.Numeric.Shield.Absorbed
			out.ShieldAbsorbedID = t.Numeric.Shield.AbsorbedID
		}
	case event.TrailingCharges:
		out.Charges = t.Charges
	}
	return out
}

func tailFromJSON(j jsonTail) event.Trailing {
	t := event.Trailing{Kind: tailKindFromName(j.Kind), Threat: j.Threat, Unparsed: j.Unparsed}
	switch t.Kind {
	case event.TrailingNumeric:
		t.Numeric.Amount = j.Amount
		t.Numeric.Crit = j.Crit
		t.Numeric.Secondary = j.Secondary
		t.Numeric.Mitigation = event.MitigationFlags(j.Mitigation)
		if j.SchoolName != "" || j.SchoolID != 0 {
			t.Numeric.School = &event.School{Name: j.SchoolName, ID: j.SchoolID}
		}
		if j.ShieldEffectID != 0 || j.ShieldAbsorbed != 0 || j.ShieldAbsorbedID != 0 {
			t.Numeric.Shield = &event.Shield{
				EffectID:   j.ShieldEffectID,
				Absorbed:   j.ShieldAbsorbed,
				AbsorbedID: j.ShieldAbsorbedID,
			}
		}
	case event.TrailingCharges:
		t.Charges = j.Charges
	}
	return t
}

// jsonEvent is the top-level wire schema: t_ms, t_epoch?, src, tgt, ability, event, tail.
type jsonEvent struct {
	TMs     int64         `json:"t_ms"`
	TEpoch  *int64        `json:"t_epoch,omitempty"`
	Src     jsonEntity    `json:"src"`
	Tgt     jsonEntity    `json:"tgt"`
	Ability jsonAbility   `json:"ability"`
	Event   jsonEventDesc `json:"event"`
	Tail    jsonTail      `json:"tail"`
}

// ToJSON encodes a CombatEvent using the compact schema from spec §6.
func ToJSON(e event.CombatEvent) ([]byte, error) {
	je := jsonEvent{
		TMs:     e.Time.CombatMs,
		Src:     entityToJSON(e.Source),
		Tgt:     entityToJSON(e.Target),
		Ability: namedIDToJSON(e.Ability),
		Event: jsonEventDesc{
			TypeID:     e.Desc.TypeID,
			TypeName:   e.Desc.TypeName,
			ActionID:   e.Desc.ActionID,
			ActionName: e.Desc.ActionName,
		},
		Tail: tailToJSON(e.Tail),
	}
	if e.Time.EpochMs != event.EpochUnset {
		ep := e.Time.EpochMs
		je.TEpoch = &ep
	}
	return json.Marshal(je)
}

// FromJSON decodes a CombatEvent previously encoded with ToJSON.
func FromJSON(data []byte) (event.CombatEvent, error) {
	var je jsonEvent
	if err := json.Unmarshal(data, &je); err != nil {
		return event.CombatEvent{}, fmt.Errorf("combatlog: decode event: %w", err)
	}
	e := event.CombatEvent{
		Source:  entityFromJSON(je.Src),
		Target:  entityFromJSON(je.Tgt),
		Ability: namedIDFromJSON(je.Ability),
		Desc: event.EventDesc{
			TypeID:     je.Event.TypeID,
			TypeName:   je.Event.TypeName,
			ActionID:   je.Event.ActionID,
			ActionName: je.Event.ActionName,
		},
		Tail: tailFromJSON(je.Tail),
	}
	e.Time.CombatMs = je.TMs
	e.Time.H = int(je.TMs / 3600000)
	rem := je.TMs % 3600000
	e.Time.M = int(rem / 60000)
	rem = rem % 60000
	e.Time.S = int(rem / 1000)
	e.Time.Ms = int(rem % 1000)
	if je.TEpoch != nil {
		e.Time.EpochMs = *je.TEpoch
	} else {
		e.Time.EpochMs = event.EpochUnset
	}
	return e, nil
}
