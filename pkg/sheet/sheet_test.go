package sheet

import (
	"reflect"
	"strings"
	"testing"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
)

func sampleSheet() *Sheet {
	return &Sheet{
		ID:   "hero",
		Name: "Aria",
		GlobalProperties: []Property{
			{ID: "level", Name: "Level", Expression: "5", Usage: UsageConstant},
		},
		SubSheets: []SubSheet{
			{
				ID:   "human",
				Name: "Human Form",
				Properties: []Property{
					{ID: "str", Name: "Strength", Expression: "16", Usage: UsageAttribute},
					{ID: "fireMagic", Name: "Fire Magic", Usage: UsageQuality, Tags: []string{"Magic", "Fire"}},
					{ID: "rank", Name: "Rank", Expression: "3", Usage: UsageConstant, ParentID: "fireMagic"},
				},
				Actions: []Action{
					{ID: "firebolt", Name: "Fire Bolt", Type: ActionDamage, QualityTags: []string{"Fire"}, RollExpression: "d10"},
				},
			},
		},
		ActiveSubSheetID: "human",
	}
}

func TestLookups(t *testing.T) {
	s := sampleSheet()

	if s.ActiveSubSheet() == nil || s.ActiveSubSheet().ID != "human" {
		t.Fatalf("expected active sub-sheet 'human'")
	}
	if s.SubSheet("wolf") != nil {
		t.Error("expected nil for missing sub-sheet")
	}
	if p, ok := s.Property(ScopeGlobal, "level"); !ok || p.Expression != "5" {
		t.Errorf("global lookup: got %+v, %v", p, ok)
	}
	if p, ok := s.Property("human", "str"); !ok || p.Name != "Strength" {
		t.Errorf("sub-sheet lookup: got %+v, %v", p, ok)
	}
	if _, ok := s.Property("human", "level"); ok {
		t.Error("global property must not be found in sub-sheet scope")
	}
	if _, ok := s.Action("human", "firebolt"); !ok {
		t.Error("expected action firebolt")
	}
	if _, ok := s.Action("wolf", "firebolt"); ok {
		t.Error("expected no action in missing sub-sheet")
	}
	if n := len(s.AllProperties()); n != 4 {
		t.Errorf("expected 4 properties, got %d", n)
	}
}

func TestQualifiedKey(t *testing.T) {
	if got := QualifiedKey(ScopeGlobal, "level"); got != "level" {
		t.Errorf("got %q", got)
	}
	if got := QualifiedKey("human", "str"); got != "human.str" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	if err := sampleSheet().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Sheet)
		want   string
	}{
		{"empty property id", func(s *Sheet) { s.GlobalProperties[0].ID = "" }, "empty id"},
		{"duplicate global", func(s *Sheet) {
			s.GlobalProperties = append(s.GlobalProperties, Property{ID: "level"})
		}, "duplicate property id \"level\""},
		{"unknown usage", func(s *Sheet) { s.GlobalProperties[0].Usage = "Mana" }, "unknown usage"},
		{"reserved sub-sheet", func(s *Sheet) { s.SubSheets[0].ID = ScopeGlobal }, "reserved"},
		{"duplicate sub-sheet", func(s *Sheet) {
			s.SubSheets = append(s.SubSheets, SubSheet{ID: "human"})
		}, "duplicate sub-sheet id"},
		{"duplicate action", func(s *Sheet) {
			s.SubSheets[0].Actions = append(s.SubSheets[0].Actions, Action{ID: "firebolt"})
		}, "duplicate action id"},
		{"missing active", func(s *Sheet) { s.ActiveSubSheetID = "wolf" }, "does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSheet()
			tt.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestSameIDInDifferentScopes(t *testing.T) {
	s := sampleSheet()
	s.GlobalProperties = append(s.GlobalProperties, Property{ID: "str", Expression: "10"})
	if err := s.Validate(); err != nil {
		t.Errorf("ids only need to be unique per scope: %v", err)
	}
}

func TestClone(t *testing.T) {
	orig := sampleSheet()
	orig.GlobalProperties[0].CurrentValue = new(int)
	cp := orig.Clone()
	if !reflect.DeepEqual(cp, orig) {
		t.Fatalf("clone differs from original:\n%+v\n%+v", cp, orig)
	}

	*cp.GlobalProperties[0].CurrentValue = 7
	cp.SubSheets[0].Properties[1].Tags[0] = "Ice"
	cp.SubSheets[0].Actions[0].QualityTags[0] = "Ice"
	cp.SubSheets[0].Properties[0].Expression = "1"

	if !reflect.DeepEqual(orig, sampleSheetWithCurrent()) {
		t.Errorf("mutating the clone changed the original: %+v", orig)
	}
	if (*Sheet)(nil).Clone() != nil {
		t.Error("nil sheet must clone to nil")
	}
}

func sampleSheetWithCurrent() *Sheet {
	s := sampleSheet()
	s.GlobalProperties[0].CurrentValue = new(int)
	return s
}

func TestInstantiate(t *testing.T) {
	tpl := PropertyTemplate{ID: "template.str", Name: "Strength", Usage: UsageAttribute, Tags: []string{"Core Stat"}, Expression: "10"}
	p := tpl.Instantiate("str")
	if p.ID != "str" || p.Name != "Strength" || p.Expression != "10" || p.Usage != UsageAttribute {
		t.Errorf("unexpected property %+v", p)
	}
	p.Tags[0] = "changed"
	if tpl.Tags[0] != "Core Stat" {
		t.Error("instantiated tags must not alias the template's")
	}

	lib := &Library{ID: "core", Templates: []PropertyTemplate{tpl}}
	if _, ok := lib.Template("template.str"); !ok {
		t.Error("expected template lookup to succeed")
	}
	if _, ok := lib.Template("template.dex"); ok {
		t.Error("expected template lookup to fail")
	}
}

func TestProcessAction(t *testing.T) {
	s := sampleSheet()
	props := s.SubSheets[0].Properties
	action := s.SubSheets[0].Actions[0]

	tests := []struct {
		name      string
		action    Action
		ctx       expr.Context
		wantExpr  string
		wantNotes []string
	}{
		{
			name:      "rank from child property",
			action:    action,
			ctx:       expr.Context{"rank": 3},
			wantExpr:  "d10 + rank",
			wantNotes: []string{"Used 'Fire Magic' Quality (Rank 3)"},
		},
		{
			name:      "own value takes precedence",
			action:    action,
			ctx:       expr.Context{"fireMagic": 2, "rank": 3},
			wantExpr:  "d10 + fireMagic",
			wantNotes: []string{"Used 'Fire Magic' Quality (Rank 2)"},
		},
		{
			name:     "zero rank is skipped",
			action:   action,
			ctx:      expr.Context{"rank": 0},
			wantExpr: "d10",
		},
		{
			name:     "unresolved quality is skipped",
			action:   action,
			ctx:      expr.Context{},
			wantExpr: "d10",
		},
		{
			name:     "no matching tag",
			action:   Action{RollExpression: "d8", QualityTags: []string{"Ice"}},
			ctx:      expr.Context{"rank": 3},
			wantExpr: "d8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notes := ProcessAction(tt.action, props, tt.ctx)
			if got != tt.wantExpr {
				t.Errorf("expression: got %q, want %q", got, tt.wantExpr)
			}
			if len(notes) != len(tt.wantNotes) {
				t.Fatalf("notes: got %v, want %v", notes, tt.wantNotes)
			}
			for i := range notes {
				if notes[i] != tt.wantNotes[i] {
					t.Errorf("note %d: got %q, want %q", i, notes[i], tt.wantNotes[i])
				}
			}
		})
	}
}
