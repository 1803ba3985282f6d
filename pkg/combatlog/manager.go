// Package combatlog is the public façade over the combat log engine: it
// wires the Time Reconstructor, Combat State Machine, Entity Registry,
// and plugin pipeline into one ordered Manager (§4.7), and provides the
// compact JSON wire encoding (§6).
package combatlog

import (
	"io"
	"log/slog"
	"sort"

	"github.com/combatlog/combatlog/internal/combatstate"
	"github.com/combatlog/combatlog/internal/parser"
	"github.com/combatlog/combatlog/internal/registry"
	"github.com/combatlog/combatlog/internal/timeline"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// pluginEntry pairs a registered Plugin with the id assigned at
// registration and a manager-side kill switch independent of the
// plugin's own Enabled().
type pluginEntry struct {
	plugin        Plugin
	id            uint16
	forceDisabled bool
}

// Manager owns the Time Reconstructor, State Machine, Entity Registry,
// and the ordered plugin list, and drives them per event (§4.7).
type Manager struct {
	log *slog.Logger

	clock         timeline.ClockSource
	reconstructor *timeline.Reconstructor
	machine       *combatstate.Machine
	registry      *registry.Registry

	plugins []*pluginEntry
	nextID  uint16

	lastEvent            *event.CombatEvent
	lastAreaEvent        *event.CombatEvent
	lastEnterCombatEvent *event.CombatEvent

	lastPluginError error
}

// New creates a Manager. It never fails on a nil/empty option set; it
// returns an error only when the assembled configuration is invalid.
func New(opts ...Option) (*Manager, error) {
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	clock := cfg.clock
	if len(cfg.ntpServers) > 0 {
		clock = timeline.NewNTPClock(cfg.ntpServers, timeline.WithLogger(log))
	}
	if clock == nil {
		clock = timeline.SystemClock{}
	}

	return &Manager{
		log:           log,
		clock:         clock,
		reconstructor: timeline.New(clock, log),
		machine:       combatstate.New(log),
		registry:      registry.New(log),
		nextID:        1,
	}, nil
}

// ClockSource returns the clock source backing the Time Reconstructor,
// for callers that need to drive synchronization directly (e.g. the
// reference host calling Synchronize at startup).
func (m *Manager) ClockSource() timeline.ClockSource { return m.clock }

// Statistics returns the Time Reconstructor's per-stream statistics.
func (m *Manager) Statistics() timeline.Stats { return m.reconstructor.Stats() }

// LastPluginError returns the most recent *PluginPanicError recovered from
// a plugin's Ingest, or nil if no plugin has panicked.
func (m *Manager) LastPluginError() error { return m.lastPluginError }

// RegisterPlugin appends p to the ordered plugin list and stable-sorts by
// priority (§4.7 "Plugin registration appends then stable-sorts by
// priority"). It returns the id assigned to p, a monotone counter
// starting at 1.
func (m *Manager) RegisterPlugin(p Plugin) uint16 {
	id := m.nextID
	m.nextID++
	m.plugins = append(m.plugins, &pluginEntry{plugin: p, id: id})
	sort.SliceStable(m.plugins, func(i, j int) bool {
		return m.plugins[i].plugin.Priority() < m.plugins[j].plugin.Priority()
	})
	return id
}

// ProcessLine parses raw and, on success, runs it through ProcessEvent. A
// Malformed line is dropped: the pipeline logs it and continues (§4.8
// "Parser: returns Malformed for a structurally broken line; the pipeline
// drops the line and continues").
func (m *Manager) ProcessLine(raw string) error {
	ev, err := parser.Parse(raw)
	if err != nil {
		m.log.Debug("dropping malformed line", "error", err)
		return err
	}
	m.ProcessEvent(&ev)
	return nil
}

// ProcessEvent runs ev through the full per-event control flow (§4.7):
// Time Reconstructor, State Machine, Entity Registry, plugin dispatch,
// then retained-event bookkeeping.
func (m *Manager) ProcessEvent(ev *event.CombatEvent) {
	m.reconstructor.Process(ev)

	isAreaEntered := ev.Desc.TypeName == "AreaEntered"

	transition := m.machine.Process(ev)
	if transition.EnteredCombat {
		m.registry.NewCombatReset()
	}
	m.registry.Ingest(ev, isAreaEntered)

	if isAreaEntered {
		for _, entry := range m.plugins {
			entry.plugin.Reset()
		}
	}

	ctx := &PluginContext{
		Clock:                m.clock,
		Machine:              m.machine,
		Registry:             m.registry,
		LastEvent:            m.lastEvent,
		LastAreaEvent:        m.lastAreaEvent,
		LastEnterCombatEvent: m.lastEnterCombatEvent,
	}

	for _, entry := range m.plugins {
		if entry.plugin.Priority() < 0 || entry.forceDisabled || !entry.plugin.Enabled() {
			continue
		}
		m.dispatch(entry, ctx, ev)
	}

	m.lastEvent = ev
	if isAreaEntered {
		m.lastAreaEvent = ev
	}
	if ev.Desc.ActionName == "EnterCombat" {
		m.lastEnterCombatEvent = ev
	}
}

// dispatch runs one plugin's Ingest, recovering a panic per §4.8: logged,
// the plugin is force-disabled, and subsequent plugins for this event
// still run.
func (m *Manager) dispatch(entry *pluginEntry, ctx *PluginContext, ev *event.CombatEvent) {
	defer func() {
		if r := recover(); r != nil {
			entry.forceDisabled = true
			err := &PluginPanicError{PluginID: entry.id, PluginName: entry.plugin.Name(), Recovered: r}
			m.lastPluginError = err
			m.log.Error("plugin panicked, disabling", "error", err)
		}
	}()
	entry.plugin.Ingest(ctx, ev)
}
