// Package timeline implements the Time Reconstructor (§4.3) and the NTP
// Clock Source it is synchronized against (§4.4).
package timeline

import (
	"io"
	"log/slog"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// MidnightThreshold is the two-phase arm/commit threshold, in milliseconds
// (§4.3: "MIDNIGHT_THRESHOLD is 60000 ms").
const MidnightThreshold int64 = 60_000

// OneDayMs is the number of milliseconds in a day.
const OneDayMs int64 = 24 * 60 * 60 * 1000

// Stats are the per-stream reconstructor statistics (§4.3 "State").
type Stats struct {
	LinesProcessed     int64
	AreaEvents         int64
	MidnightRollovers  int64
	TimeJumps          int64
	LateArrivalTotalMs int64
	MaxLateArrivalMs   int64
}

// Reconstructor assigns monotone absolute epoch_ms timestamps to events
// that carry only a wall-clock-of-day timestamp (§4.3).
type Reconstructor struct {
	clock ClockSource
	log   *slog.Logger

	baseDateEpochMs int64
	lastCombatMs    int64
	nearMidnight    bool
	initialized     bool

	stats Stats
}

// discardLogger is used when no logger is supplied, matching the teacher's
// convention of a non-nil no-op logger rather than nil-checks scattered
// through the hot path.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// New creates a Reconstructor bound to the given clock source. A nil
// logger disables logging.
func New(clock ClockSource, log *slog.Logger) *Reconstructor {
	if log == nil {
		log = discardLogger
	}
	return &Reconstructor{clock: clock, log: log}
}

// Stats returns a snapshot of the reconstructor's per-stream statistics.
func (r *Reconstructor) Stats() Stats { return r.stats }

// Process assigns ev.Time.EpochMs in place, following the per-event rule in
// §4.3. It must be called exactly once per event, in stream order.
func (r *Reconstructor) Process(ev *event.CombatEvent) {
	r.stats.LinesProcessed++

	isAreaEntered := ev.Desc.TypeName == "AreaEntered"
	if isAreaEntered {
		r.stats.AreaEvents++
	}

	if !r.initialized || isAreaEntered {
		r.initialize(ev.Time.CombatMs)
	}

	combatMs := ev.Time.CombatMs

	var epochMs int64
	if combatMs < 2*MidnightThreshold && r.nearMidnight {
		epochMs = r.baseDateEpochMs + OneDayMs + combatMs
	} else {
		epochMs = r.baseDateEpochMs + combatMs
	}

	if combatMs < r.lastCombatMs {
		r.stats.TimeJumps++
		late := r.lastCombatMs - combatMs
		r.stats.LateArrivalTotalMs += late
		if late > r.stats.MaxLateArrivalMs {
			r.stats.MaxLateArrivalMs = late
		}
	}
	r.lastCombatMs = combatMs

	if combatMs > OneDayMs-MidnightThreshold {
		r.nearMidnight = true
	} else if r.nearMidnight && combatMs > MidnightThreshold/2 && combatMs < OneDayMs-MidnightThreshold {
		r.nearMidnight = false
		r.baseDateEpochMs += OneDayMs
		r.stats.MidnightRollovers++
	}

	ev.Time.EpochMs = epochMs
}

// initialize (re)anchors base_date_epoch_ms against the clock source, on
// the first event or on any AreaEntered event (§4.3 "Initialization").
func (r *Reconstructor) initialize(combatMs int64) {
	now := r.clock.CurrentLocalEpochMs()
	base := r.clock.TruncateToMidnight(now)

	if base+combatMs > now {
		base -= OneDayMs
	}

	r.baseDateEpochMs = base
	r.lastCombatMs = combatMs
	r.nearMidnight = combatMs > OneDayMs-MidnightThreshold
	r.initialized = true
}
