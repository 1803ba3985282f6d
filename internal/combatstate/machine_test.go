package combatstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

func player(id uint64) event.Entity {
	return event.Entity{Kind: event.EntityPlayer, ID: id}
}

func evAt(epochMs int64, typeName, actionName string, source, target event.Entity) *event.CombatEvent {
	return &event.CombatEvent{
		Time:   event.TimeField{EpochMs: epochMs},
		Source: source,
		Target: target,
		Desc:   event.EventDesc{TypeName: typeName, ActionName: actionName},
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "InCombat", InCombat.String())
	assert.Equal(t, "InCombatMonitoring", InCombatMonitoring.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestNew_DefaultsToIdle(t *testing.T) {
	m := New(nil)
	assert.Equal(t, Idle, m.State())
	_, ownerSet := m.Owner()
	assert.False(t, ownerSet)
}

func TestProcess_AreaEnteredSetsOwnerAndResets(t *testing.T) {
	m := New(nil)
	owner := player(1)
	ev := evAt(1000, "AreaEntered", "", owner, event.Entity{})

	tr := m.Process(ev)

	assert.False(t, tr.EnteredCombat)
	got, ok := m.Owner()
	require.True(t, ok)
	assert.Equal(t, owner.ID, got.ID)
	assert.Equal(t, Idle, m.State())
}

func TestProcess_IdleToInCombatOnEnterCombat(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))

	tr := m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))

	assert.True(t, tr.EnteredCombat)
	assert.Equal(t, InCombat, m.State())
}

func TestProcess_ExitCombatResetsToIdle(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))

	tr := m.Process(evAt(2000, "Event", "ExitCombat", owner, event.Entity{}))

	assert.False(t, tr.EnteredCombat)
	assert.Equal(t, Idle, m.State())
}

func TestProcess_DeathOfOwnerAloneEndsCombat(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))

	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))

	assert.True(t, m.OwnerDead())
	assert.Equal(t, Idle, m.State())
}

func TestProcess_ReviveEntersMonitoring(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))

	m.Process(evAt(2500, "Event", "Revive", owner, event.Entity{}))

	assert.False(t, m.OwnerDead())
	assert.Equal(t, InCombatMonitoring, m.State())
}

func TestProcess_EnterCombatWithinMergeWindowContinuesEncounter(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))
	m.Process(evAt(2500, "Event", "Revive", owner, event.Entity{}))

	tr := m.Process(evAt(2500+ReviveMergeWindowMs-1, "Event", "EnterCombat", owner, event.Entity{}))

	assert.False(t, tr.EnteredCombat, "within the merge window this is a continuation, not a fresh encounter")
	assert.Equal(t, InCombat, m.State())
}

func TestProcess_EnterCombatAfterMergeWindowStartsFreshEncounter(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))
	m.Process(evAt(2500, "Event", "Revive", owner, event.Entity{}))

	tr := m.Process(evAt(2500+ReviveMergeWindowMs+1, "Event", "EnterCombat", owner, event.Entity{}))

	assert.True(t, tr.EnteredCombat, "past the merge window, this starts a new encounter")
	assert.Equal(t, InCombat, m.State())
}

func TestProcess_DamageWithinMergeWindowContinuesEncounter(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))
	m.Process(evAt(2500, "Event", "Revive", owner, event.Entity{}))

	tr := m.Process(evAt(3000, "Event", "Damage", owner, player(2)))

	assert.False(t, tr.EnteredCombat)
	assert.Equal(t, InCombat, m.State())
}

func TestProcess_AllPlayersDead_MultiplePlayers(t *testing.T) {
	m := New(nil)
	owner := player(1)
	ally := player(2)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(1100, "DisciplineChanged", "", owner, event.Entity{}))
	m.Process(evAt(1200, "DisciplineChanged", "", ally, event.Entity{}))

	assert.False(t, m.AllPlayersDead())

	m.Process(evAt(2000, "Event", "Death", event.Entity{}, owner))
	assert.False(t, m.AllPlayersDead(), "one of two fighters dead is not all dead")

	m.Process(evAt(2100, "Event", "Death", event.Entity{}, ally))
	assert.True(t, m.AllPlayersDead())
	assert.Equal(t, Idle, m.State())
}

func TestProcess_DisciplineChangedIgnoredOutsideCombat(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(1000, "DisciplineChanged", "", owner, event.Entity{}))

	assert.False(t, m.AllPlayersDead())
}

func TestCombatDurationMs_WhileInCombat(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))

	assert.Equal(t, int64(4000), m.CombatDurationMs(5000))
}

func TestCombatDurationMs_AfterExit(t *testing.T) {
	m := New(nil)
	owner := player(1)
	m.Process(evAt(0, "AreaEntered", "", owner, event.Entity{}))
	m.Process(evAt(1000, "Event", "EnterCombat", owner, event.Entity{}))
	m.Process(evAt(3000, "Event", "ExitCombat", owner, event.Entity{}))

	// fullReset clears lastEnteredEpoch, so a finished encounter's duration
	// is unavailable once the machine resets for the next one.
	assert.Equal(t, int64(0), m.CombatDurationMs(9999))
}

func TestCombatDurationMs_NeverEntered(t *testing.T) {
	m := New(nil)
	assert.Equal(t, int64(0), m.CombatDurationMs(5000))
}
