package main

import (
	"fmt"
	"io"

	"github.com/combatlog/combatlog/pkg/combatlog"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

// validFormats lists the per-event output formats process accepts.
var validFormats = map[string]bool{
	"jsonl": true,
	"pretty": true,
	"none":  true,
}

// outputEvent writes ev in the given format to out. format "none" writes
// nothing, letting process run purely for its final statistics report.
func outputEvent(format string, ev event.CombatEvent, out io.Writer) error {
	switch format {
	case "jsonl":
		return outputJSON(ev, out)
	case "pretty":
		return outputPretty(ev, out)
	case "none":
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func outputJSON(ev event.CombatEvent, out io.Writer) error {
	data, err := combatlog.ToJSON(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func outputPretty(ev event.CombatEvent, out io.Writer) error {
	ts := fmt.Sprintf("%02d:%02d:%02d.%03d", ev.Time.H, ev.Time.M, ev.Time.S, ev.Time.Ms)

	src := entityLabel(ev.Source)
	tgt := entityLabel(ev.Target)

	line := fmt.Sprintf("[%s] %s -> %s: %s", ts, src, tgt, ev.Desc.ActionName)
	if ev.Ability.Name != "" {
		line += fmt.Sprintf(" (%s)", ev.Ability.Name)
	}
	if ev.Tail.Kind == event.TrailingNumeric {
		line += fmt.Sprintf(" %d", ev.Tail.Numeric.Amount)
		if ev.Tail.Numeric.Crit {
			line += "*"
		}
		if !ev.Tail.Numeric.Mitigation.Empty() {
			line += fmt.Sprintf(" [%s]", ev.Tail.Numeric.Mitigation)
		}
	}

	_, err := fmt.Fprintln(out, line)
	return err
}

func entityLabel(e event.Entity) string {
	if e.IsEmpty() {
		return "-"
	}
	if e.DisplayText != "" {
		return e.DisplayText
	}
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("#%d", e.ID)
}
