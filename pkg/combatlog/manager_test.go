package combatlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/combatlog/combatlog/internal/combatstate"
	"github.com/combatlog/combatlog/internal/timeline"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// recordingPlugin records every event it ingests and can be made to panic
// or report disabled, for exercising Manager's dispatch/recovery logic.
type recordingPlugin struct {
	name     string
	priority int
	enabled  bool
	panics   bool

	ingested []string
	resets   int
}

func (p *recordingPlugin) Name() string    { return p.name }
func (p *recordingPlugin) Priority() int   { return p.priority }
func (p *recordingPlugin) Enabled() bool   { return p.enabled }
func (p *recordingPlugin) Reset()          { p.resets++ }
func (p *recordingPlugin) Ingest(ctx *PluginContext, ev *event.CombatEvent) {
	if p.panics {
		panic("boom")
	}
	p.ingested = append(p.ingested, p.name)
}

func newRecordingPlugin(name string, priority int) *recordingPlugin {
	return &recordingPlugin{name: name, priority: priority, enabled: true}
}

func playerEntity(id uint64, name string) event.Entity {
	return event.Entity{Kind: event.EntityPlayer, ID: id, Name: name}
}

func TestNew_DefaultsToSystemClock(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	assert.IsType(t, timeline.SystemClock{}, m.ClockSource())
}

func TestNew_WithClockSourceOverride(t *testing.T) {
	custom := timeline.SystemClock{}
	m, err := New(WithClockSource(custom))
	require.NoError(t, err)
	assert.Equal(t, custom, m.ClockSource())
}

func TestNew_WithNTPServersBuildsNTPClock(t *testing.T) {
	m, err := New(WithNTPServers("127.0.0.1:123"))
	require.NoError(t, err)
	_, ok := m.ClockSource().(*timeline.NTPClock)
	assert.True(t, ok)
}

func TestRegisterPlugin_AssignsMonotoneIDs(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	id1 := m.RegisterPlugin(newRecordingPlugin("a", 10))
	id2 := m.RegisterPlugin(newRecordingPlugin("b", 5))

	assert.Equal(t, uint16(1), id1)
	assert.Equal(t, uint16(2), id2)
}

func TestRegisterPlugin_StableSortsByPriority(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	low := newRecordingPlugin("low", 10)
	high := newRecordingPlugin("high", 1)
	m.RegisterPlugin(low)
	m.RegisterPlugin(high)

	ev := &event.CombatEvent{
		Source: playerEntity(1, "Alice"),
		Target: playerEntity(2, "Bob"),
		Desc:   event.EventDesc{ActionName: "Damage"},
	}
	m.ProcessEvent(ev)

	assert.Equal(t, []string{"high"}, high.ingested)
	assert.Equal(t, []string{"low"}, low.ingested)
	require.Len(t, m.plugins, 2)
	assert.Equal(t, "high", m.plugins[0].plugin.Name())
	assert.Equal(t, "low", m.plugins[1].plugin.Name())
}

func TestProcessEvent_SkipsDisabledPlugin(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	disabled := newRecordingPlugin("disabled", 1)
	disabled.enabled = false
	m.RegisterPlugin(disabled)

	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})
	assert.Empty(t, disabled.ingested)
}

func TestProcessEvent_SkipsBuiltinPriorityPlugin(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	builtin := newRecordingPlugin("builtin", BuiltinPriority)
	m.RegisterPlugin(builtin)

	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})
	assert.Empty(t, builtin.ingested)
}

func TestProcessEvent_PanicDisablesPluginAndRecordsError(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	boom := newRecordingPlugin("boom", 1)
	boom.panics = true
	survivor := newRecordingPlugin("survivor", 2)
	m.RegisterPlugin(boom)
	m.RegisterPlugin(survivor)

	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})

	require.Error(t, m.LastPluginError())
	var panicErr *PluginPanicError
	require.ErrorAs(t, m.LastPluginError(), &panicErr)
	assert.Equal(t, "boom", panicErr.PluginName)
	assert.Equal(t, []string{"survivor"}, survivor.ingested)

	// The plugin stays force-disabled on subsequent events, even once it
	// would no longer panic.
	boom.panics = false
	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})
	assert.Empty(t, boom.ingested)
}

// TestProcessEvent_EnteredCombatResetHappensBeforeIngest guards §4.7's
// ordering: the registry's new_combat_reset() on a fresh encounter must
// run before that triggering event is ingested, or the event's own
// contribution is zeroed right after being recorded.
func TestProcessEvent_EnteredCombatResetHappensBeforeIngest(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	owner := playerEntity(1, "Alice")

	m.ProcessEvent(&event.CombatEvent{
		Time: event.TimeField{CombatMs: 0}, Source: owner,
		Desc: event.EventDesc{TypeName: "AreaEntered"},
	})
	m.ProcessEvent(&event.CombatEvent{
		Time: event.TimeField{CombatMs: 1000}, Source: owner,
		Desc: event.EventDesc{ActionName: "EnterCombat"},
	})
	m.ProcessEvent(&event.CombatEvent{
		Time: event.TimeField{CombatMs: 2000}, Source: owner,
		Desc: event.EventDesc{ActionName: "Revive"},
	})

	// Past the revive merge window, a Damage event from the owner starts a
	// fresh encounter (EnteredCombat=true) and must still be recorded.
	dmg := &event.CombatEvent{
		Time:   event.TimeField{CombatMs: 2000 + combatstate.ReviveMergeWindowMs + 1000},
		Source: owner,
		Desc:   event.EventDesc{TypeName: "Event", ActionName: "Damage"},
		Tail:   event.Trailing{Numeric: event.NumericValue{Amount: 500}},
	}
	m.ProcessEvent(dmg)

	assert.Equal(t, int64(500), m.registry.Lookup(1).TotalDamageDone)
}

func TestProcessEvent_AreaEnteredResetsAllPlugins(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	p := newRecordingPlugin("p", 1)
	m.RegisterPlugin(p)

	m.ProcessEvent(&event.CombatEvent{
		Source: playerEntity(1, "Alice"),
		Desc:   event.EventDesc{TypeName: "AreaEntered"},
	})

	assert.Equal(t, 1, p.resets)
}

func TestProcessLine_MalformedLineDropped(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	err = m.ProcessLine("not a combat log line")
	assert.Error(t, err)
}

func TestProcessLine_WellFormedLineProcessed(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	p := newRecordingPlugin("p", 1)
	m.RegisterPlugin(p)

	line := "[12:34:56.789] [@Alice#100|(0,0,0,0)|(100/100)] [Dummy{5:1}|(0,0,0,0)|(200/200)] " +
		"[Saber Strike {900}] [Event {1}: Damage {2}] (1234)"
	err = m.ProcessLine(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, p.ingested)
}

func TestStatistics_TracksProcessedLines(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})
	m.ProcessEvent(&event.CombatEvent{Source: playerEntity(1, "Alice")})

	assert.Equal(t, int64(2), m.Statistics().LinesProcessed)
}

func TestPluginContext_IsPlayer(t *testing.T) {
	machine := combatstate.New(nil)
	machine.Process(&event.CombatEvent{
		Source: playerEntity(1, "Alice"),
		Desc:   event.EventDesc{TypeName: "AreaEntered"},
	})

	ctx := &PluginContext{Machine: machine}
	assert.True(t, ctx.IsPlayer(1))
	assert.False(t, ctx.IsPlayer(2))
}

func TestPluginContext_GetTimeSinceLastEventMs(t *testing.T) {
	ctx := &PluginContext{}
	assert.Equal(t, int64(0), ctx.GetTimeSinceLastEventMs(5000))

	ctx.LastEvent = &event.CombatEvent{Time: event.TimeField{EpochMs: 1000}}
	assert.Equal(t, int64(4000), ctx.GetTimeSinceLastEventMs(5000))
}

func TestPluginPanicError_Error(t *testing.T) {
	err := &PluginPanicError{PluginID: 3, PluginName: "x", Recovered: "boom"}
	assert.Contains(t, err.Error(), "x")
	assert.Contains(t, err.Error(), "boom")
}
