package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

func damageEvent() event.CombatEvent {
	return event.CombatEvent{
		Time: event.TimeField{H: 23, M: 59, S: 59, Ms: 250},
		Source: event.Entity{
			Kind:        event.EntityPlayer,
			DisplayText: "Alice",
			ID:          1,
		},
		Target: event.Entity{
			Kind:        event.EntityNpcOrObject,
			DisplayText: "Dummy",
			ID:          2,
		},
		Ability: event.NamedId{Name: "Force Lightning", ID: 900},
		Desc:    event.EventDesc{ActionName: "Damage", TypeName: "Event"},
		Tail: event.Trailing{
			Kind: event.TrailingNumeric,
			Numeric: event.NumericValue{
				Amount:     4200,
				Crit:       true,
				Mitigation: event.MitigationShield,
			},
		},
	}
}

func TestOutputJSON(t *testing.T) {
	ev := damageEvent()

	var buf bytes.Buffer
	if err := outputJSON(ev, &buf); err != nil {
		t.Fatalf("outputJSON() error = %v", err)
	}

	if !strings.Contains(buf.String(), `"action_name":"Damage"`) {
		t.Errorf("outputJSON() = %q, want action_name=Damage", buf.String())
	}
}

func TestOutputPretty(t *testing.T) {
	tests := []struct {
		name     string
		event    event.CombatEvent
		contains string
	}{
		{
			name:     "damage_with_ability_and_crit",
			event:    damageEvent(),
			contains: "Alice -> Dummy: Damage (Force Lightning) 4200*",
		},
		{
			name: "empty_source_and_target",
			event: event.CombatEvent{
				Time: event.TimeField{H: 1, M: 2, S: 3, Ms: 4},
				Desc: event.EventDesc{ActionName: "EnterCombat"},
			},
			contains: "- -> -: EnterCombat",
		},
		{
			name: "target_falls_back_to_id",
			event: event.CombatEvent{
				Target: event.Entity{Kind: event.EntityNpcOrObject, ID: 42},
				Desc:   event.EventDesc{ActionName: "ApplyEffect"},
			},
			contains: "#42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := outputPretty(tt.event, &buf); err != nil {
				t.Fatalf("outputPretty() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("outputPretty() = %q, want to contain %q", buf.String(), tt.contains)
			}
		})
	}
}

func TestOutputEvent(t *testing.T) {
	ev := damageEvent()

	tests := []struct {
		format    string
		wantErr   bool
		checkFunc func(string) bool
	}{
		{
			format: "jsonl",
			checkFunc: func(s string) bool {
				return strings.Contains(s, `"action_name":"Damage"`)
			},
		},
		{
			format: "pretty",
			checkFunc: func(s string) bool {
				return strings.Contains(s, "Damage")
			},
		},
		{
			format: "none",
			checkFunc: func(s string) bool {
				return s == ""
			},
		},
		{
			format:  "unknown",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			err := outputEvent(tt.format, ev, &buf)

			if (err != nil) != tt.wantErr {
				t.Errorf("outputEvent() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && !tt.checkFunc(buf.String()) {
				t.Errorf("outputEvent() output check failed: %q", buf.String())
			}
		})
	}
}

func TestEntityLabel(t *testing.T) {
	tests := []struct {
		name   string
		entity event.Entity
		want   string
	}{
		{"empty", event.Entity{}, "-"},
		{"display_text", event.Entity{Kind: event.EntityPlayer, DisplayText: "Alice"}, "Alice"},
		{"name_only", event.Entity{Kind: event.EntityPlayer, Name: "Bob"}, "Bob"},
		{"id_fallback", event.Entity{Kind: event.EntityNpcOrObject, ID: 7}, "#7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := entityLabel(tt.entity); got != tt.want {
				t.Errorf("entityLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
