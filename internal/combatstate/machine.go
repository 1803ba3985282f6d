// Package combatstate implements the Combat State Machine (§4.5): the
// Idle/InCombat/InCombatMonitoring lifecycle driven by semantic event
// kinds derived from the parsed CombatEvent stream.
package combatstate

import (
	"io"
	"log/slog"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// ReviveMergeWindowMs is the window, in milliseconds, within which a
// post-revive EnterCombat or Damage from the owner continues the same
// encounter instead of starting a new one (§4.5).
const ReviveMergeWindowMs int64 = 15_000

// State is one of the three Combat State Machine states.
type State int

const (
	Idle State = iota
	InCombat
	InCombatMonitoring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InCombat:
		return "InCombat"
	case InCombatMonitoring:
		return "InCombatMonitoring"
	default:
		return "Unknown"
	}
}

// Kind is a semantic event kind the machine reacts to, derived from a
// CombatEvent's classified EventTypeID and action.
type Kind int

const (
	KindOther Kind = iota
	KindEnterCombat
	KindExitCombat
	KindDamage
	KindDeath
	KindRevive
	KindAreaEntered
	KindDisciplineChanged
)

// Machine holds the Combat State Machine's mutable state (§4.5
// "Variables").
type Machine struct {
	log *slog.Logger

	state State

	owner        event.Entity
	ownerSet     bool
	ownerDead    bool
	diedInCombat bool

	lastEnteredEpoch  int64
	lastExitEpoch     int64
	lastDiedEpoch     int64
	reviveAnchorEpoch int64

	deadPlayers     map[uint64]struct{}
	fightingPlayers map[uint64]struct{}

	lastArea *event.AreaEnteredPayload
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// New creates an idle Combat State Machine.
func New(log *slog.Logger) *Machine {
	if log == nil {
		log = discardLogger
	}
	return &Machine{
		log:             log,
		state:           Idle,
		deadPlayers:     make(map[uint64]struct{}),
		fightingPlayers: make(map[uint64]struct{}),
	}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// Owner returns the entity the log belongs to, and whether one has been
// established yet (it is set on the first AreaEntered).
func (m *Machine) Owner() (event.Entity, bool) { return m.owner, m.ownerSet }

// OwnerDead reports whether the owner is currently dead.
func (m *Machine) OwnerDead() bool { return m.ownerDead }

// AllPlayersDead implements §4.5's all_players_dead():
//
//	if |fighting_players| > 1 then |dead_players| >= |fighting_players|
//	else owner_dead
func (m *Machine) AllPlayersDead() bool {
	if len(m.fightingPlayers) > 1 {
		return len(m.deadPlayers) >= len(m.fightingPlayers)
	}
	return m.ownerDead
}

// CombatDurationMs returns the encounter duration per §4.5: now - last
// entered while InCombat, else last_exit - last_entered.
func (m *Machine) CombatDurationMs(nowEpochMs int64) int64 {
	if m.lastEnteredEpoch == 0 {
		return 0
	}
	if m.state == InCombat || m.state == InCombatMonitoring {
		return nowEpochMs - m.lastEnteredEpoch
	}
	return m.lastExitEpoch - m.lastEnteredEpoch
}

// Transition is the result of processing one event against the machine.
// EnteredCombat is true exactly when this event started a fresh
// encounter (Idle -> InCombat, or a post-revive merge window exceeded):
// the Entity Registry must be notified to run new_combat_reset in that
// case (§4.6 "invoked by the pipeline when combat re-enters").
type Transition struct {
	EnteredCombat bool
	State         State
}

// classify maps a CombatEvent to the semantic Kind the machine reacts to.
func classify(ev *event.CombatEvent) Kind {
	switch ev.Desc.TypeName {
	case "AreaEntered":
		return KindAreaEntered
	case "DisciplineChanged":
		return KindDisciplineChanged
	}
	switch ev.Desc.ActionName {
	case "EnterCombat":
		return KindEnterCombat
	case "ExitCombat":
		return KindExitCombat
	case "Death":
		return KindDeath
	case "Revive":
		return KindRevive
	}
	if ev.Desc.TypeName == "Event" && ev.Desc.ActionName == "Damage" {
		return KindDamage
	}
	return KindOther
}

// isPlayer reports whether ent is a player (the state machine keys its
// dead/fighting sets by player id).
func isPlayer(ent event.Entity) bool {
	return ent.Kind == event.EntityPlayer
}

// Process advances the machine by one event (§4.5 "Transitions and
// actions") and reports whether this event started a fresh encounter.
func (m *Machine) Process(ev *event.CombatEvent) Transition {
	kind := classify(ev)
	epoch := ev.Time.EpochMs

	switch kind {
	case KindAreaEntered:
		m.fullReset()
		m.owner = ev.Source
		m.ownerSet = true
		m.lastArea = ev.AreaPayload
		return Transition{State: m.state}

	case KindEnterCombat:
		switch m.state {
		case Idle:
			m.lastEnteredEpoch = epoch
			m.state = InCombat
			return Transition{EnteredCombat: true, State: m.state}
		case InCombatMonitoring:
			if m.isOwner(ev.Source) {
				if epoch-m.reviveAnchorEpoch < ReviveMergeWindowMs {
					m.state = InCombat
				} else {
					m.fullReset()
					m.lastEnteredEpoch = epoch
					m.state = InCombat
					return Transition{EnteredCombat: true, State: m.state}
				}
			}
		}

	case KindDamage:
		if m.state == InCombatMonitoring && m.isOwner(ev.Source) {
			if epoch-m.reviveAnchorEpoch < ReviveMergeWindowMs {
				m.state = InCombat
			} else {
				m.fullReset()
				m.lastEnteredEpoch = epoch
				m.state = InCombat
				return Transition{EnteredCombat: true, State: m.state}
			}
		}

	case KindDeath:
		if m.isOwner(ev.Target) {
			m.ownerDead = true
			m.diedInCombat = true
			m.lastDiedEpoch = epoch
		}
		if isPlayer(ev.Target) {
			m.deadPlayers[ev.Target.ID] = struct{}{}
		}
		if m.state == InCombat && m.AllPlayersDead() {
			m.state = Idle
			m.lastExitEpoch = epoch
		}

	case KindRevive:
		if m.isOwner(ev.Source) {
			m.ownerDead = false
			m.reviveAnchorEpoch = epoch
			m.state = InCombatMonitoring
		}
		delete(m.deadPlayers, ev.Source.ID)

	case KindDisciplineChanged:
		if m.state == InCombat || m.state == InCombatMonitoring {
			if isPlayer(ev.Source) {
				m.fightingPlayers[ev.Source.ID] = struct{}{}
			}
		}

	case KindExitCombat:
		m.fullReset()
		return Transition{State: m.state}
	}

	return Transition{State: m.state}
}

func (m *Machine) isOwner(ent event.Entity) bool {
	return m.ownerSet && ent.ID == m.owner.ID && !ent.IsEmpty()
}

// fullReset clears the machine back to Idle, preserving only owner
// identity handling (callers that need AreaEntered's "owner := event.source"
// semantics set owner explicitly after calling fullReset).
func (m *Machine) fullReset() {
	m.state = Idle
	m.ownerDead = false
	m.diedInCombat = false
	m.lastEnteredEpoch = 0
	m.lastExitEpoch = 0
	m.lastDiedEpoch = 0
	m.reviveAnchorEpoch = 0
	m.deadPlayers = make(map[uint64]struct{})
	m.fightingPlayers = make(map[uint64]struct{})
}
