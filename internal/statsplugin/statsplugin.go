// Package statsplugin implements the built-in, low-priority plugin that
// derives DamageStats, HealingStats, and Rotation from the events it
// ingests, tallied per source entity until the next Reset (every
// AreaEntered), grounded on the original host's stat_keeper.h.
package statsplugin

import (
	"github.com/combatlog/combatlog/pkg/combatlog"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// Priority is deliberately high (runs last among ordered plugins) so
// every other plugin for this event has already observed it before the
// derived statistics are recomputed.
const Priority = 1000

// DamageStats mirrors the original's stat_keeper::DamageStats.
type DamageStats struct {
	Total       int64
	DPS         float64
	LargestHit  int64
	CritRate    float64
	HitRate     float64
	ShieldedPct float64
}

// HealingStats mirrors the original's stat_keeper::HealingStats, scoped
// to the fields this implementation supplements (Total, HPS, LargestHit,
// CritRate, OverhealPct).
type HealingStats struct {
	Total       int64
	HPS         float64
	LargestHit  int64
	CritRate    float64
	OverhealPct float64
}

// Rotation mirrors the original's stat_keeper::Rotation, scoped to the
// fields derivable from the parsed event stream. The original's gcd_count
// and cast_time_ms (and the idle_time_ms derived from it) require a
// cast-begin/cast-end signal the EVENTBODY grammar does not carry, so they
// are not implemented rather than shipped as a permanently-zero stat.
type Rotation struct {
	Actions uint32
	APM     float64
}

// accumulator holds the raw tallies Plugin.Ingest builds up between
// resets; the derived-rate fields (DPS, APM, ...) are computed on demand
// in Damage/Healing/RotationFor, since they depend on encounter duration
// at query time.
type accumulator struct {
	damageTotal   int64
	damageHits    int64
	damageCrits   int64
	damageShielded int64
	largestHit    int64

	healingTotal   int64
	healingOverheal int64
	healingHits     int64
	healingCrits    int64
	largestHeal     int64

	actions uint32
}

// Plugin is the built-in stats processor (§4.7 "Plugin contract").
type Plugin struct {
	enabled bool
	perEntity map[uint64]*accumulator
}

// New creates an enabled stats Plugin.
func New() *Plugin {
	return &Plugin{enabled: true, perEntity: make(map[uint64]*accumulator)}
}

func (p *Plugin) Name() string   { return "statsplugin" }
func (p *Plugin) Priority() int  { return Priority }
func (p *Plugin) Enabled() bool  { return p.enabled }
func (p *Plugin) SetEnabled(v bool) { p.enabled = v }

// Reset clears all accumulated per-entity state, called on every
// AreaEntered per §4.7.
func (p *Plugin) Reset() {
	p.perEntity = make(map[uint64]*accumulator)
}

func (p *Plugin) acc(id uint64) *accumulator {
	a, ok := p.perEntity[id]
	if !ok {
		a = &accumulator{}
		p.perEntity[id] = a
	}
	return a
}

// Ingest accumulates one event's contribution to the tracked entity's
// rotation/damage/healing tallies.
func (p *Plugin) Ingest(ctx *combatlog.PluginContext, ev *event.CombatEvent) {
	if ev.Source.IsEmpty() {
		return
	}
	a := p.acc(ev.Source.ID)

	if ev.Ability.Present() {
		a.actions++
	}

	switch ev.Desc.ActionName {
	case "Damage":
		amount := ev.Tail.Numeric.Amount
		a.damageTotal += amount
		a.damageHits++
		if ev.Tail.Numeric.Crit {
			a.damageCrits++
		}
		if ev.Tail.Numeric.Mitigation.Has(event.MitigationShield) {
			a.damageShielded++
		}
		if amount > a.largestHit {
			a.largestHit = amount
		}

	case "Heal":
		amount := ev.Tail.Numeric.Amount
		a.healingTotal += amount
		a.healingHits++
		if ev.Tail.Numeric.Crit {
			a.healingCrits++
		}
		if ev.Tail.Numeric.Secondary != nil {
			a.healingOverheal += *ev.Tail.Numeric.Secondary
		}
		if amount > a.largestHeal {
			a.largestHeal = amount
		}
	}
}

// DamageStatsFor computes DamageStats for entityID over durationMs.
func (p *Plugin) DamageStatsFor(entityID uint64, durationMs int64) DamageStats {
	a, ok := p.perEntity[entityID]
	if !ok {
		return DamageStats{}
	}
	stats := DamageStats{
		Total:      a.damageTotal,
		LargestHit: a.largestHit,
	}
	if durationMs > 0 {
		stats.DPS = float64(a.damageTotal) / (float64(durationMs) / 1000.0)
	}
	if a.damageHits > 0 {
		stats.CritRate = float64(a.damageCrits) / float64(a.damageHits)
		stats.HitRate = float64(a.damageHits-a.damageShielded) / float64(a.damageHits)
		stats.ShieldedPct = float64(a.damageShielded) / float64(a.damageHits)
	}
	return stats
}

// HealingStatsFor computes HealingStats for entityID over durationMs.
func (p *Plugin) HealingStatsFor(entityID uint64, durationMs int64) HealingStats {
	a, ok := p.perEntity[entityID]
	if !ok {
		return HealingStats{}
	}
	stats := HealingStats{
		Total:      a.healingTotal,
		LargestHit: a.largestHeal,
	}
	if durationMs > 0 {
		stats.HPS = float64(a.healingTotal) / (float64(durationMs) / 1000.0)
	}
	if a.healingHits > 0 {
		stats.CritRate = float64(a.healingCrits) / float64(a.healingHits)
	}
	if a.healingTotal > 0 {
		stats.OverhealPct = float64(a.healingOverheal) / float64(a.healingTotal+a.healingOverheal)
	}
	return stats
}

// RotationFor computes Rotation for entityID over durationMs.
func (p *Plugin) RotationFor(entityID uint64, durationMs int64) Rotation {
	a, ok := p.perEntity[entityID]
	if !ok {
		return Rotation{}
	}
	r := Rotation{Actions: a.actions}
	if durationMs > 0 {
		r.APM = float64(a.actions) / (float64(durationMs) / 60000.0)
	}
	return r
}

var _ combatlog.Plugin = (*Plugin)(nil)
