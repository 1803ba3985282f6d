// Package registry implements the Entity Registry (§4.6): a map of
// EntityState keyed by entity id, tracking per-entity counters, applied
// effects, and targeting.
package registry

import (
	"io"
	"log/slog"
	"math"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// MitigationOutcome indexes the per-outcome counters on EntityState,
// mirroring event.MitigationFlags' eight tokens plus a "none" bucket for
// unmitigated hits.
type MitigationOutcome int

const (
	OutcomeNone MitigationOutcome = iota
	OutcomeShield
	OutcomeDeflect
	OutcomeGlance
	OutcomeDodge
	OutcomeParry
	OutcomeResist
	OutcomeMiss
	OutcomeImmune
	outcomeCount
)

// AppliedEffect records one active effect, kept symmetrically on both the
// target's applied_effects and the source's applied_by lists (§4.6).
type AppliedEffect struct {
	ActionID uint64
	SourceID uint64
	TargetID uint64
	Name     string
	Charges  int32

	AbilityID      uint64
	AppliedEpochMs int64
	OriginEvent    *event.CombatEvent
}

func (a AppliedEffect) matches(actionID, sourceID, targetID uint64) bool {
	return a.ActionID == actionID && a.SourceID == sourceID && a.TargetID == targetID
}

// EntityState is the registry's record for one entity id (§4.6).
type EntityState struct {
	ID   uint64
	Kind event.EntityKind
	Name string

	IsOwner bool

	IsDead      bool
	DeathCount  int64
	ReviveCount int64

	TotalDamageDone   int64
	TotalDamageTaken  int64
	TotalHealingDone  int64
	TotalHealingTaken int64
	TotalOverhealDone int64
	TotalAbsorb       int64
	TotalThreat       int64

	MitigationCounts [outcomeCount]int64

	CurrentTarget *uint64
	TargetOwner   *EntityState

	AppliedEffects []AppliedEffect
	AppliedBy      []AppliedEffect
}

func newEntityState(ent event.Entity) *EntityState {
	return &EntityState{
		ID:   ent.ID,
		Kind: ent.Kind,
		Name: ent.Name,
	}
}

// isPersistent reports whether an entity kind survives new_combat_reset
// (players and companions), as opposed to being evicted (§4.6).
func isPersistent(kind event.EntityKind) bool {
	return kind == event.EntityPlayer || kind == event.EntityCompanion
}

// Registry is the Entity Registry: an id-keyed map of EntityState plus the bookkeeping operations driven by the pipeline on
// every event (§4.6).
type Registry struct {
	log      *slog.Logger
	entities map[uint64]*EntityState
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// New creates an empty Entity Registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = discardLogger
	}
	return &Registry{log: log, entities: make(map[uint64]*EntityState)}
}

// Lookup returns the EntityState for id, or nil if unknown.
func (r *Registry) Lookup(id uint64) *EntityState {
	return r.entities[id]
}

// All returns every tracked EntityState. The returned slice is a fresh
// snapshot; callers may not mutate the registry's internal map through it.
func (r *Registry) All() []*EntityState {
	out := make([]*EntityState, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	return out
}

// Reset clears the entire registry, per "AreaEntered triggers reset()
// (clears the list)" (§4.6).
func (r *Registry) Reset() {
	r.entities = make(map[uint64]*EntityState)
}

// NewCombatReset implements new_combat_reset(): zero all numeric counters
// and target_* fields on players and companions, evict everything else
// (§4.6).
func (r *Registry) NewCombatReset() {
	for id, e := range r.entities {
		if !isPersistent(e.Kind) {
			delete(r.entities, id)
			continue
		}
		e.DeathCount = 0
		e.ReviveCount = 0
		e.TotalDamageDone = 0
		e.TotalDamageTaken = 0
		e.TotalHealingDone = 0
		e.TotalHealingTaken = 0
		e.TotalOverhealDone = 0
		e.TotalAbsorb = 0
		e.TotalThreat = 0
		e.MitigationCounts = [outcomeCount]int64{}
		e.CurrentTarget = nil
		e.TargetOwner = nil
	}
}

// ensure returns the EntityState for ent, creating and appending one if
// ent carries identity and is not yet tracked.
func (r *Registry) ensure(ent event.Entity) *EntityState {
	if ent.IsEmpty() {
		return nil
	}
	if e, ok := r.entities[ent.ID]; ok {
		return e
	}
	e := newEntityState(ent)
	r.entities[ent.ID] = e
	return e
}

func outcomeForMitigation(flags event.MitigationFlags) MitigationOutcome {
	switch {
	case flags.Has(event.MitigationShield):
		return OutcomeShield
	case flags.Has(event.MitigationDeflect):
		return OutcomeDeflect
	case flags.Has(event.MitigationGlance):
		return OutcomeGlance
	case flags.Has(event.MitigationDodge):
		return OutcomeDodge
	case flags.Has(event.MitigationParry):
		return OutcomeParry
	case flags.Has(event.MitigationResist):
		return OutcomeResist
	case flags.Has(event.MitigationMiss):
		return OutcomeMiss
	case flags.Has(event.MitigationImmune):
		return OutcomeImmune
	default:
		return OutcomeNone
	}
}

// Ingest applies one CombatEvent's bookkeeping to the registry, per the
// per-event rules in §4.6. isAreaEntered must reflect the classification
// already performed by the caller (the Combat State Machine / Pipeline
// Manager), since the registry itself does not classify event kinds.
func (r *Registry) Ingest(ev *event.CombatEvent, isAreaEntered bool) {
	if isAreaEntered {
		r.Reset()
	}

	src := r.ensure(ev.Source)
	var tgt *EntityState
	if !ev.Target.IsEmpty() && ev.Target.ID != ev.Source.ID {
		tgt = r.ensure(ev.Target)
	} else if !ev.Target.IsEmpty() {
		tgt = src
	}

	if isAreaEntered && src != nil {
		src.IsOwner = true
	}

	if src == nil {
		return
	}

	action := ev.Desc.ActionName
	switch action {
	case "Damage":
		src.TotalDamageDone += ev.Tail.Numeric.Amount
		if tgt != nil {
			tgt.TotalDamageTaken += ev.Tail.Numeric.Amount
		}
	case "Heal":
		src.TotalHealingDone += ev.Tail.Numeric.Amount
		if ev.Tail.Numeric.Secondary != nil {
			src.TotalOverhealDone += *ev.Tail.Numeric.Secondary
		}
		if tgt != nil {
			tgt.TotalHealingTaken += ev.Tail.Numeric.Amount
		}
	case "Death":
		if tgt != nil {
			tgt.IsDead = true
			tgt.DeathCount++
		}
	case "Revive":
		src.IsDead = false
		src.ReviveCount++
	}

	if ev.Tail.Threat != nil {
		src.TotalThreat += int64(math.Round(*ev.Tail.Threat))
	}

	if !ev.Tail.Numeric.Mitigation.Empty() {
		outcome := outcomeForMitigation(ev.Tail.Numeric.Mitigation)
		src.MitigationCounts[outcome]++
	}
	if ev.Tail.Numeric.Mitigation.Has(event.MitigationShield) && ev.Tail.Numeric.Shield != nil && tgt != nil {
		tgt.TotalAbsorb += ev.Tail.Numeric.Shield.Absorbed
	}

	switch action {
	case "TargetSet":
		if tgt != nil {
			id := tgt.ID
			src.CurrentTarget = &id
			src.TargetOwner = r.Lookup(tgt.ID)
		}
	case "TargetCleared":
		src.CurrentTarget = nil
		src.TargetOwner = nil
	}

	switch {
	case ev.Desc.TypeName == "ApplyEffect" && action != "Damage" && action != "Heal":
		r.applyEffect(ev, src, tgt)
	case ev.Desc.TypeName == "RemoveEffect":
		r.removeEffect(ev, src, tgt)
	case ev.Desc.TypeName == "ModifyCharges":
		r.modifyCharges(ev, tgt)
	}
}

func (r *Registry) applyEffect(ev *event.CombatEvent, src, tgt *EntityState) {
	if tgt == nil {
		return
	}
	effect := AppliedEffect{
		ActionID:       ev.Desc.ActionID,
		SourceID:       ev.Source.ID,
		TargetID:       ev.Target.ID,
		Name:           ev.Desc.ActionName,
		AbilityID:      ev.Ability.ID,
		AppliedEpochMs: ev.Time.EpochMs,
		OriginEvent:    ev,
	}

	found := false
	for i := range tgt.AppliedEffects {
		if tgt.AppliedEffects[i].matches(effect.ActionID, effect.SourceID, effect.TargetID) {
			tgt.AppliedEffects[i] = effect
			found = true
			break
		}
	}
	if !found {
		tgt.AppliedEffects = append(tgt.AppliedEffects, effect)
	}

	if src != nil {
		found = false
		for i := range src.AppliedBy {
			if src.AppliedBy[i].matches(effect.ActionID, effect.SourceID, effect.TargetID) {
				src.AppliedBy[i] = effect
				found = true
				break
			}
		}
		if !found {
			src.AppliedBy = append(src.AppliedBy, effect)
		}
	}
}

func (r *Registry) removeEffect(ev *event.CombatEvent, src, tgt *EntityState) {
	actionID, sourceID, targetID := ev.Desc.ActionID, ev.Source.ID, ev.Target.ID
	if tgt != nil {
		tgt.AppliedEffects = filterEffects(tgt.AppliedEffects, actionID, sourceID, targetID)
	}
	if src != nil {
		src.AppliedBy = filterEffects(src.AppliedBy, actionID, sourceID, targetID)
	}
}

func filterEffects(effects []AppliedEffect, actionID, sourceID, targetID uint64) []AppliedEffect {
	out := effects[:0]
	for _, e := range effects {
		if !e.matches(actionID, sourceID, targetID) {
			out = append(out, e)
		}
	}
	return out
}

func (r *Registry) modifyCharges(ev *event.CombatEvent, tgt *EntityState) {
	if tgt == nil {
		return
	}
	actionID, sourceID, targetID := ev.Desc.ActionID, ev.Source.ID, ev.Target.ID
	for i := range tgt.AppliedEffects {
		if tgt.AppliedEffects[i].matches(actionID, sourceID, targetID) {
			tgt.AppliedEffects[i].Charges = int32(ev.Tail.Charges)
			tgt.AppliedEffects[i].AppliedEpochMs = ev.Time.EpochMs
			tgt.AppliedEffects[i].OriginEvent = ev
			break
		}
	}
	src := r.Lookup(sourceID)
	if src == nil {
		return
	}
	for i := range src.AppliedBy {
		if src.AppliedBy[i].matches(actionID, sourceID, targetID) {
			src.AppliedBy[i].Charges = int32(ev.Tail.Charges)
			src.AppliedBy[i].AppliedEpochMs = ev.Time.EpochMs
			src.AppliedBy[i].OriginEvent = ev
			break
		}
	}
}
