package parser

import "github.com/combatlog/combatlog/pkg/combatlog/event"

// mitigationKey is the (first byte, token length) pair used to recognize a
// mitigation token in a single pass, per §4.2: "Mitigation tokens are
// recognized by first character and length (a fixed set of 8)."
type mitigationKey struct {
	first byte
	length int
}

var mitigationTable = map[mitigationKey]event.MitigationFlags{
	{'s', 6}: event.MitigationShield,
	{'d', 7}: event.MitigationDeflect,
	{'g', 6}: event.MitigationGlance,
	{'d', 5}: event.MitigationDodge,
	{'p', 5}: event.MitigationParry,
	{'r', 6}: event.MitigationResist,
	{'m', 4}: event.MitigationMiss,
	{'i', 6}: event.MitigationImmune,
}

// eventTypeTable maps the line's TYPE_NAME token to the classified
// EventTypeID (§4.1 "Event type detection").
var eventTypeTable = map[string]event.EventTypeID{
	"Event":             event.EventTypeEvent,
	"Spend":             event.EventTypeSpend,
	"Restore":           event.EventTypeRestore,
	"ApplyEffect":       event.EventTypeApplyEffect,
	"RemoveEffect":      event.EventTypeRemoveEffect,
	"ModifyCharges":     event.EventTypeModifyCharges,
	"AreaEntered":       event.EventTypeAreaEntered,
	"DisciplineChanged": event.EventTypeDisciplineChanged,
}

// areaDifficultyTable maps a difficulty NamedId's numeric id to the
// AreaDifficultyKind enum (§9 Open Question: "the correct mapping from the
// documented ids to the AreaDifficulty enum must be supplied by a lookup
// table"). Ids are the real swtor::AreaDifficulty enum constants; unknown
// ids (including the absent-difficulty id 0) map to AreaDifficultyUnknown
// rather than defaulting to Solo.
var areaDifficultyTable = map[uint64]event.AreaDifficultyKind{
	1:               event.AreaDifficultySolo,
	836045448953656: event.AreaDifficultyStory4,
	836045448953657: event.AreaDifficultyVeteran4,
	836045448953659: event.AreaDifficultyMaster4,
	836045448953651: event.AreaDifficultyStory8,
	836045448953652: event.AreaDifficultyVeteran8,
	836045448953655: event.AreaDifficultyMaster8,
	836045448953653: event.AreaDifficultyStory16,
	836045448953654: event.AreaDifficultyVeteran16,
	836045448953658: event.AreaDifficultyMaster16,
}

func lookupAreaDifficulty(id uint64) event.AreaDifficultyKind {
	if kind, ok := areaDifficultyTable[id]; ok {
		return kind
	}
	return event.AreaDifficultyUnknown
}

// disciplineRoleTable maps a discipline's numeric id to its CombatRole.
// All disciplines not listed here are DPS, per spec: "all disciplines not
// classified as Tank or Healer are DPS." Ids are the real swtor::Discipline
// enum constants for the documented Healer/Tank disciplines; anything
// absent from this table resolves to RoleDPS in roleForDiscipline.
var disciplineRoleTable = map[uint64]event.CombatRole{
	// Healers
	1610854127306954: event.RoleHealer, // CombatMedic (Trooper/Bounty Hunter)
	2203256920318106: event.RoleHealer, // Bodyguard (Trooper/Bounty Hunter)
	2487567242063162: event.RoleHealer, // Sawbones (Smuggler/Imperial Agent)
	1932232264187162: event.RoleHealer, // Medicine (Smuggler/Imperial Agent)
	3218621659655354: event.RoleHealer, // Seer (Jedi Consular/Sith Inquisitor)
	583093866373434:  event.RoleHealer, // Corruption (Jedi Consular/Sith Inquisitor)
	// Tanks
	3007101716805754: event.RoleTank, // ShieldSpecialist (Trooper/Bounty Hunter)
	1929098417348794: event.RoleTank, // ShieldTech (Trooper/Bounty Hunter)
	1929098417479866: event.RoleTank, // Defense (Jedi Knight/Sith Warrior)
	1913582031199546: event.RoleTank, // Immortal (Jedi Knight/Sith Warrior)
	3218586805260602: event.RoleTank, // KineticCombat (Jedi Consular/Sith Inquisitor)
	1930851419333946: event.RoleTank, // Darkness (Jedi Consular/Sith Inquisitor)
}

func roleForDiscipline(disciplineID uint64) event.CombatRole {
	if role, ok := disciplineRoleTable[disciplineID]; ok {
		return role
	}
	return event.RoleDPS
}
