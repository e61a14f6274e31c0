package parser

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
)

const heroSheet = `
id: hero
name: Aria
active: human
global:
  - level: 5
  - id: profBonus
    name: Proficiency Bonus
    expression: floor(level / 4) + 2
    usage: Constant
    tags: [Core, Derived]
subsheets:
  - id: human
    name: Human Form
    properties:
      - str: 16
      - id: strMod
        name: Strength Mod
        expression: floor((str - 10) / 2)
      - id: fireMagic
        name: Fire Magic
        usage: Quality
        tags: [Magic, Fire]
        description: Adds its rank to fire actions.
      - id: rank
        expression: "3"
        parentId: fireMagic
      - id: hp
        name: Hit Points
        expression: 10 + level * 5
        usage: HealthResource
        currentValue: 45
        priority: 1
        foregroundColor: "#4caf50"
    actions:
      - id: firebolt
        name: Fire Bolt
        type: Damage
        range: Ranged
        qualityTags: [Fire]
        effectTags: [Fire Damage]
        roll: d10
`

func TestParseSheet(t *testing.T) {
	s, err := Parse([]byte(heroSheet))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.ID != "hero" || s.Name != "Aria" || s.ActiveSubSheetID != "human" {
		t.Errorf("unexpected header %q %q %q", s.ID, s.Name, s.ActiveSubSheetID)
	}
	if len(s.GlobalProperties) != 2 {
		t.Fatalf("expected 2 global properties, got %d", len(s.GlobalProperties))
	}

	level := s.GlobalProperties[0]
	if level.ID != "level" || level.Name != "level" || level.Expression != "5" || level.Usage != sheet.UsageConstant {
		t.Errorf("unexpected shorthand property %+v", level)
	}
	prof := s.GlobalProperties[1]
	if prof.Expression != "floor(level / 4) + 2" || !prof.HasTag("Derived") {
		t.Errorf("unexpected property %+v", prof)
	}

	human := s.SubSheet("human")
	if human == nil {
		t.Fatal("missing subsheet 'human'")
	}
	if len(human.Properties) != 5 {
		t.Fatalf("expected 5 properties, got %d", len(human.Properties))
	}
	hp := human.Properties[4]
	if hp.CurrentValue == nil || *hp.CurrentValue != 45 {
		t.Errorf("expected currentValue 45, got %v", hp.CurrentValue)
	}
	if hp.Priority == nil || *hp.Priority != 1 || hp.ForegroundColor != "#4caf50" {
		t.Errorf("unexpected display fields %+v", hp)
	}
	if human.Properties[3].ParentID != "fireMagic" {
		t.Errorf("expected parentId fireMagic, got %q", human.Properties[3].ParentID)
	}

	if len(human.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(human.Actions))
	}
	a := human.Actions[0]
	if a.RollExpression != "d10" || a.Type != sheet.ActionDamage || a.Range != sheet.RangeRanged {
		t.Errorf("unexpected action %+v", a)
	}
}

func TestParseJSONRoundTrip(t *testing.T) {
	s, err := Parse([]byte(heroSheet))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("reparse of JSON: %v", err)
	}
	if len(again.AllProperties()) != len(s.AllProperties()) || again.ActiveSubSheetID != "human" {
		t.Errorf("JSON round trip lost data: %+v", again)
	}
}

func TestParseDefaultsActiveSubSheet(t *testing.T) {
	s, err := Parse([]byte(`
subsheets:
  - id: wolf
    properties:
      - bite: 1d6
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ActiveSubSheetID != "wolf" {
		t.Errorf("expected active 'wolf', got %q", s.ActiveSubSheetID)
	}
	if s.SubSheets[0].Name != "wolf" {
		t.Errorf("expected name to default to id, got %q", s.SubSheets[0].Name)
	}
}

func TestParseShorthandReservedIDs(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantID   string
		wantExpr string
	}{
		{"name", "global:\n  - name: 3", "name", "3"},
		{"priority", "global:\n  - priority: 1d4 + 1", "priority", "1d4 + 1"},
		{"expression", "global:\n  - expression: level", "expression", "level"},
		{"id alone is the long form", "global:\n  - id: header", "header", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.src))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(s.GlobalProperties) != 1 {
				t.Fatalf("expected 1 property, got %d", len(s.GlobalProperties))
			}
			p := s.GlobalProperties[0]
			if p.ID != tt.wantID || p.Name != tt.wantID || p.Expression != tt.wantExpr {
				t.Errorf("got id=%q name=%q expression=%q", p.ID, p.Name, p.Expression)
			}
			if p.Priority != nil {
				t.Errorf("shorthand must not set priority, got %d", *p.Priority)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", ``, "empty sheet definition"},
		{"not a mapping", `- a`, "must be a mapping"},
		{"invalid yaml", "global: [", "invalid YAML"},
		{"unknown top key", "foo: 1", "unknown key 'foo' in sheet"},
		{"global not sequence", "global: 1", "properties must be a sequence"},
		{"unknown property key", "global:\n  - id: a\n    bogus: 1", "unknown key 'bogus' in property"},
		{"missing id", "global:\n  - name: a\n    expression: 1", "property must have an 'id'"},
		{"duplicate id", "global:\n  - a: 1\n  - a: 2", "duplicate property id"},
		{"bad usage", "global:\n  - id: a\n    usage: Weird", "unknown usage"},
		{"bad current value", "global:\n  - id: a\n    currentValue: lots", "expected an integer"},
		{"missing active", "active: nope\nsubsheets:\n  - id: a", "active sub-sheet \"nope\" does not exist"},
		{"action without roll", "subsheets:\n  - id: a\n    actions:\n      - id: hit", "must have a 'roll' expression"},
		{"action bad type", "subsheets:\n  - id: a\n    actions:\n      - id: hit\n        type: Heal\n        roll: d4", "unknown action type"},
		{"reserved subsheet id", "subsheets:\n  - id: global", "reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	_, err := Parse([]byte("subsheets:\n  - id: human\n    properties:\n      - id: str\n        bogus: 1"))
	if err == nil {
		t.Fatal("expected error")
	}
	want := "parse error at property 'str' in subsheet 'human': unknown key 'bogus' in property"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestParseSourceTooLarge(t *testing.T) {
	src := make([]byte, MaxSourceSize+1)
	if _, err := Parse(src); err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestParseLibrary(t *testing.T) {
	lib, err := ParseLibrary([]byte(`
id: core
name: Core Attributes
templates:
  - id: template.str
    name: Strength
    usage: Attribute
    tags: [Core Stat, Physical]
    expression: "10"
  - id: template.hitpoints
    name: Hit Points
    usage: HealthResource
    tags: [Health]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lib.ID != "core" || len(lib.Templates) != 2 {
		t.Fatalf("unexpected library %+v", lib)
	}
	tpl, ok := lib.Template("template.str")
	if !ok || tpl.Expression != "10" || tpl.Usage != sheet.UsageAttribute {
		t.Errorf("unexpected template %+v", tpl)
	}

	if _, err := ParseLibrary([]byte("templates:\n  - id: a\n  - id: a")); err == nil {
		t.Error("expected duplicate template error")
	}
	if _, err := ParseLibrary([]byte("templates:\n  - name: nameless")); err == nil {
		t.Error("expected missing id error")
	}
}
