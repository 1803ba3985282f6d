package combatlog

import (
	"github.com/combatlog/combatlog/internal/combatstate"
	"github.com/combatlog/combatlog/internal/registry"
	"github.com/combatlog/combatlog/internal/timeline"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// BuiltinPriority is the sentinel negative priority (§4.7: "priority < 0
// is reserved for built-ins ... excludes the plugin from the ordered
// dispatch"). ProcessEvent never calls Ingest on a plugin whose priority
// is below zero; such a plugin still receives Reset on AreaEntered.
const BuiltinPriority = -1

// Plugin is the contract every ingestion-path processor implements
// (§4.7 "Plugin contract").
type Plugin interface {
	// Name identifies the plugin for logging and diagnostics.
	Name() string

	// Priority determines dispatch order; lower runs first. A negative
	// priority marks a built-in excluded from ordered dispatch.
	Priority() int

	// Enabled reports whether the plugin currently wants events. The
	// Manager additionally force-disables a plugin that panics.
	Enabled() bool

	// Ingest processes one event with the shared plugin context.
	Ingest(ctx *PluginContext, ev *event.CombatEvent)

	// Reset clears any per-encounter state. Called on every AreaEntered.
	Reset()
}

// PluginContext is the shared, read-only view of pipeline state every
// plugin receives on Ingest (§4.7 "Plugins receive a shared context").
//
// The accessor methods below (IsEventType, IsPlayer, GetCombatTimeMs,
// GetTimeSinceLastEventMs) mirror the original host's ExternalPluginBase
// helpers, carried forward as convenience ergonomics for plugin authors.
type PluginContext struct {
	Clock    timeline.ClockSource
	Machine  *combatstate.Machine
	Registry *registry.Registry

	LastEvent            *event.CombatEvent
	LastAreaEvent        *event.CombatEvent
	LastEnterCombatEvent *event.CombatEvent
}

// IsEventType reports whether ev's classified type id matches typeID.
func (c *PluginContext) IsEventType(ev *event.CombatEvent, typeID uint64) bool {
	return ev.Desc.TypeID == typeID
}

// IsPlayer reports whether entityID belongs to the owning player.
func (c *PluginContext) IsPlayer(entityID uint64) bool {
	owner, ok := c.Machine.Owner()
	return ok && owner.ID == entityID
}

// GetCombatTimeMs returns the current encounter duration, per the Combat
// State Machine's combat-duration rule (§4.5).
func (c *PluginContext) GetCombatTimeMs(nowEpochMs int64) int64 {
	return c.Machine.CombatDurationMs(nowEpochMs)
}

// GetTimeSinceLastEventMs returns the elapsed time between the previous
// retained event and nowEpochMs, or 0 if there is no prior event.
func (c *PluginContext) GetTimeSinceLastEventMs(nowEpochMs int64) int64 {
	if c.LastEvent == nil {
		return 0
	}
	return nowEpochMs - c.LastEvent.Time.EpochMs
}
