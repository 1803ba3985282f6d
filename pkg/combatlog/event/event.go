// Package event defines the core CombatEvent type and its nested tagged
// variants.
//
// This package is separated from pkg/combatlog to avoid an import cycle
// between pkg/combatlog and internal/parser: the parser must return
// event.CombatEvent values without importing the pipeline package that
// drives it.
package event

// EntityKind tags the variant held by an Entity.
type EntityKind uint8

const (
	EntityEmpty EntityKind = iota
	EntitySameAsSource
	EntityPlayer
	EntityCompanion
	EntityNpcOrObject
)

// Position is a 3D coordinate plus facing angle.
type Position struct {
	X, Y, Z, Facing float64
}

// Health is a current/max health pair.
type Health struct {
	Current, Max int64
}

// Entity is the tagged-variant source/target of a CombatEvent.
//
// Identity for equality purposes is the 64-bit ID field: two Entity values
// with the same non-zero ID refer to the same game object regardless of
// which Kind parsed them.
type Entity struct {
	Kind EntityKind

	DisplayText string
	Name        string

	// CompanionName and OwnerRef are populated only when Kind == EntityCompanion.
	CompanionName string
	OwnerRef      *Entity

	// ID is the 64-bit identity used for equality. For players this is the
	// account id; for NPCs and companions it is derived from StaticID/InstanceID.
	ID uint64

	// AccountID is populated only for EntityPlayer.
	AccountID uint64

	// StaticID/InstanceID are populated for EntityNpcOrObject and EntityCompanion.
	StaticID   uint64
	InstanceID uint64

	TypeID uint64

	Position Position
	Health   Health
}

// IsEmpty reports whether the entity carries no identity at all.
func (e Entity) IsEmpty() bool {
	return e.Kind == EntityEmpty
}

// Equal compares entities by identity, per spec: "Identity for equality is
// the 64-bit id."
func (e Entity) Equal(o Entity) bool {
	if e.Kind == EntityEmpty || o.Kind == EntityEmpty {
		return e.Kind == o.Kind
	}
	return e.ID == o.ID
}

// NamedId is a display name plus an optional 64-bit numeric id.
// ID == 0 iff no "{...}" suffix was present in the source text.
type NamedId struct {
	Name string
	ID   uint64
}

// Present reports whether this NamedId carried a numeric id.
func (n NamedId) Present() bool { return n.ID != 0 }

// TimeField is the parsed [HH:MM:SS.mmm] timestamp plus derived fields.
type TimeField struct {
	H, M, S, Ms int

	// CombatMs is ((h*60+m)*60+s)*1000+ms: milliseconds since local midnight.
	CombatMs int64

	// EpochMs starts at EpochUnset and is assigned by the Time Reconstructor.
	EpochMs int64
}

// EpochUnset is the sentinel value of TimeField.EpochMs before the Time
// Reconstructor has processed the event.
const EpochUnset int64 = -1

// EventDesc carries the event-type/action classification of a line.
type EventDesc struct {
	TypeID     uint64
	TypeName   string
	ActionID   uint64
	ActionName string
	RawText    string
}

// MitigationFlags is a bit set over the eight recognized mitigation tokens.
type MitigationFlags uint8

const (
	MitigationShield MitigationFlags = 1 << iota
	MitigationDeflect
	MitigationGlance
	MitigationDodge
	MitigationParry
	MitigationResist
	MitigationMiss
	MitigationImmune
)

// Has reports whether flag is set.
func (m MitigationFlags) Has(flag MitigationFlags) bool { return m&flag != 0 }

// Empty reports whether no mitigation flag is set.
func (m MitigationFlags) Empty() bool { return m == 0 }

// String renders the set mitigation tokens, longest-name-stable ordering
// matching the fixed set of 8 names in spec order.
func (m MitigationFlags) String() string {
	names := []struct {
		flag MitigationFlags
		name string
	}{
		{MitigationShield, "shield"},
		{MitigationDeflect, "deflect"},
		{MitigationGlance, "glance"},
		{MitigationDodge, "dodge"},
		{MitigationParry, "parry"},
		{MitigationResist, "resist"},
		{MitigationMiss, "miss"},
		{MitigationImmune, "immune"},
	}
	out := ""
	for _, n := range names {
		if m.Has(n.flag) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	return out
}

// School is a damage/heal school name plus optional numeric id.
type School struct {
	Name string
	ID   uint64
}

// Shield carries the absorbed-hit sub-group of a mitigation chain.
type Shield struct {
	EffectID   uint64
	Absorbed   int64
	AbsorbedID uint64
}

// TrailingKind tags the Trailing variant.
type TrailingKind uint8

const (
	TrailingNone TrailingKind = iota
	TrailingNumeric
	TrailingCharges
	TrailingUnknown
)

// NumericValue is the Trailing::Numeric payload.
type NumericValue struct {
	Amount    int64
	Crit      bool
	Secondary *int64
	School    *School
	Mitigation MitigationFlags
	Shield    *Shield
}

// Trailing is the tagged variant carried after the event bracket.
type Trailing struct {
	Kind TrailingKind

	Numeric NumericValue

	// Charges is populated when Kind == TrailingCharges.
	Charges int32

	// Threat and Unparsed are cross-cutting optional fields independent of Kind.
	Threat   *float64
	Unparsed string
}

// AreaDifficultyKind classifies an AreaEntered difficulty id.
type AreaDifficultyKind uint8

const (
	AreaDifficultyUnknown AreaDifficultyKind = iota
	AreaDifficultySolo
	AreaDifficultyStory4
	AreaDifficultyVeteran4
	AreaDifficultyMaster4
	AreaDifficultyStory8
	AreaDifficultyVeteran8
	AreaDifficultyMaster8
	AreaDifficultyStory16
	AreaDifficultyVeteran16
	AreaDifficultyMaster16
)

// AreaEnteredPayload populates the area_payload field of an AreaEntered event.
type AreaEnteredPayload struct {
	Area           NamedId
	Difficulty     *NamedId
	DifficultyKind AreaDifficultyKind
	VersionTag     string
	RawValue       string
}

// CombatRole classifies a discipline as DPS, Healer, or Tank.
type CombatRole uint8

const (
	RoleUnknown CombatRole = iota
	RoleDPS
	RoleHealer
	RoleTank
)

// DisciplinePayload populates the discipline_payload field of a
// DisciplineChanged event.
type DisciplinePayload struct {
	CombatClass    NamedId
	Discipline     NamedId
	ClassEnum      uint64
	DisciplineEnum uint64
	Role           CombatRole
}

// EventTypeID enumerates the classified line types (§4.1 "Event type detection").
type EventTypeID uint8

const (
	EventTypeUnknown EventTypeID = iota
	EventTypeEvent
	EventTypeSpend
	EventTypeRestore
	EventTypeApplyEffect
	EventTypeRemoveEffect
	EventTypeModifyCharges
	EventTypeAreaEntered
	EventTypeDisciplineChanged
)

// CombatEvent is one fully-parsed log line.
type CombatEvent struct {
	Time   TimeField
	Source Entity
	Target Entity
	Ability NamedId
	Desc   EventDesc
	Tail   Trailing

	AreaPayload       *AreaEnteredPayload
	DisciplinePayload *DisciplinePayload

	// RawLine is the original text this event was parsed from. The parser
	// returns it as a borrow into the caller's buffer; DeepClone interns it.
	RawLine string
}

// DeepClone copies every borrowed string field into buffers allocated from
// arena, returning a CombatEvent safe to retain beyond the lifetime of the
// original input line. arena is invoked once per string that needs interning
// and must return a string backed by memory the caller owns (e.g. a copy
// into a caller-managed byte arena).
func (e CombatEvent) DeepClone(arena func(string) string) CombatEvent {
	clone := e
	clone.RawLine = arena(e.RawLine)
	clone.Source = cloneEntity(e.Source, arena)
	clone.Target = cloneEntity(e.Target, arena)
	clone.Ability = NamedId{Name: arena(e.Ability.Name), ID: e.Ability.ID}
	clone.Desc.TypeName = arena(e.Desc.TypeName)
	clone.Desc.ActionName = arena(e.Desc.ActionName)
	clone.Desc.RawText = arena(e.Desc.RawText)

	if e.Tail.Numeric.School != nil {
		s := *e.Tail.Numeric.School
		s.Name = arena(s.Name)
		clone.Tail.Numeric.School = &s
	}
	if e.Tail.Numeric.Secondary != nil {
		v := *e.Tail.Numeric.Secondary
		clone.Tail.Numeric.Secondary = &v
	}
	if e.Tail.Numeric.Shield != nil {
		s := *e.Tail.Numeric.Shield
		clone.Tail.Numeric.Shield = &s
	}
	if e.Tail.Threat != nil {
		v := *e.Tail.Threat
		clone.Tail.Threat = &v
	}
	clone.Tail.Unparsed = arena(e.Tail.Unparsed)

	if e.AreaPayload != nil {
		ap := *e.AreaPayload
		ap.Area.Name = arena(ap.Area.Name)
		if ap.Difficulty != nil {
			d := *ap.Difficulty
			d.Name = arena(d.Name)
			ap.Difficulty = &d
		}
		ap.VersionTag = arena(ap.VersionTag)
		ap.RawValue = arena(ap.RawValue)
		clone.AreaPayload = &ap
	}
	if e.DisciplinePayload != nil {
		dp := *e.DisciplinePayload
		dp.CombatClass.Name = arena(dp.CombatClass.Name)
		dp.Discipline.Name = arena(dp.Discipline.Name)
		clone.DisciplinePayload = &dp
	}

	return clone
}

func cloneEntity(e Entity, arena func(string) string) Entity {
	clone := e
	clone.DisplayText = arena(e.DisplayText)
	clone.Name = arena(e.Name)
	clone.CompanionName = arena(e.CompanionName)
	if e.OwnerRef != nil {
		owner := cloneEntity(*e.OwnerRef, arena)
		clone.OwnerRef = &owner
	}
	return clone
}
