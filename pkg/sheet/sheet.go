// Package sheet defines the character sheet model: global properties,
// sub-sheets with their own properties and actions, and property template
// libraries. These types are what the sheet parser produces, the stores
// persist and the runtime resolves.
package sheet

import (
	"fmt"
)

// ScopeGlobal is the scope name of properties that belong to no sub-sheet.
const ScopeGlobal = "global"

// Usage classifies how a property is presented and used.
type Usage string

const (
	UsageAttribute      Usage = "Attribute"
	UsageSkill          Usage = "Skill"
	UsageHealthResource Usage = "HealthResource"
	UsagePointResource  Usage = "PointResource"
	UsageConstant       Usage = "Constant"
	UsageQuality        Usage = "Quality"
)

// Valid reports whether u is one of the known usages.
func (u Usage) Valid() bool {
	switch u {
	case UsageAttribute, UsageSkill, UsageHealthResource, UsagePointResource, UsageConstant, UsageQuality:
		return true
	}
	return false
}

// ActionType is the kind of effect an action has.
type ActionType string

const (
	ActionDamage  ActionType = "Damage"
	ActionSupport ActionType = "Support"
)

// ActionRange is the reach of an action.
type ActionRange string

const (
	RangeMelee  ActionRange = "Melee"
	RangeRanged ActionRange = "Ranged"
)

// Sheet is a complete character sheet.
type Sheet struct {
	// ID identifies the sheet in a store. It is not part of the context.
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`

	// GlobalProperties are addressed by bare id from every sub-sheet.
	GlobalProperties []Property `json:"globalProperties"`

	// SubSheets each scope their properties as "subsheet.property".
	SubSheets []SubSheet `json:"subSheets"`

	// ActiveSubSheetID selects the sub-sheet whose properties are also
	// aliased by bare id in the final context.
	ActiveSubSheetID string `json:"activeSubSheetId"`
}

// SubSheet is one form or facet of a character.
type SubSheet struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
	Actions    []Action   `json:"actions"`
}

// Property is a named value defined by a dice expression.
type Property struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Expression  string   `json:"expression"`
	Usage       Usage    `json:"usage"`
	Tags        []string `json:"tags"`
	Description string   `json:"description,omitempty"`

	// CurrentValue tracks spent resources for HealthResource and PointResource.
	CurrentValue *int `json:"currentValue,omitempty"`

	Priority        *int   `json:"priority,omitempty"`
	ForegroundColor string `json:"foregroundColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`

	// ParentID nests a property under another, e.g. a Quality's rank.
	ParentID string `json:"parentId,omitempty"`
}

// HasTag reports whether the property carries tag.
func (p Property) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Action is something a character can roll for.
type Action struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Type           ActionType  `json:"type"`
	Range          ActionRange `json:"range"`
	QualityTags    []string    `json:"qualityTags"`
	EffectTags     []string    `json:"effectTags"`
	RollExpression string      `json:"rollExpression"`
}

// PropertyTemplate is a reusable property definition from a library.
type PropertyTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Usage       Usage    `json:"usage"`
	Tags        []string `json:"tags"`
	Expression  string   `json:"expression,omitempty"`
}

// Instantiate creates a property from the template with the given id.
func (t PropertyTemplate) Instantiate(id string) Property {
	return Property{
		ID:          id,
		Name:        t.Name,
		Expression:  t.Expression,
		Usage:       t.Usage,
		Tags:        append([]string(nil), t.Tags...),
		Description: t.Description,
	}
}

// Library is a named collection of property templates.
type Library struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Templates []PropertyTemplate `json:"templates"`
}

// Clone returns a deep copy of l.
func (l *Library) Clone() *Library {
	if l == nil {
		return nil
	}
	cp := *l
	if l.Templates != nil {
		cp.Templates = make([]PropertyTemplate, len(l.Templates))
		for i, t := range l.Templates {
			t.Tags = cloneStrings(t.Tags)
			cp.Templates[i] = t
		}
	}
	return &cp
}

// Template returns the template with the given id.
func (l *Library) Template(id string) (PropertyTemplate, bool) {
	for _, t := range l.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return PropertyTemplate{}, false
}

// Clone returns a deep copy of s.
func (s *Sheet) Clone() *Sheet {
	if s == nil {
		return nil
	}
	cp := *s
	cp.GlobalProperties = cloneProperties(s.GlobalProperties)
	if s.SubSheets != nil {
		cp.SubSheets = make([]SubSheet, len(s.SubSheets))
		for i, sub := range s.SubSheets {
			sub.Properties = cloneProperties(sub.Properties)
			if sub.Actions != nil {
				actions := make([]Action, len(sub.Actions))
				for j, a := range sub.Actions {
					a.QualityTags = cloneStrings(a.QualityTags)
					a.EffectTags = cloneStrings(a.EffectTags)
					actions[j] = a
				}
				sub.Actions = actions
			}
			cp.SubSheets[i] = sub
		}
	}
	return &cp
}

func cloneProperties(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	for i, p := range props {
		p.Tags = cloneStrings(p.Tags)
		p.CurrentValue = cloneInt(p.CurrentValue)
		p.Priority = cloneInt(p.Priority)
		out[i] = p
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// SubSheet returns the sub-sheet with the given id, or nil.
func (s *Sheet) SubSheet(id string) *SubSheet {
	for i := range s.SubSheets {
		if s.SubSheets[i].ID == id {
			return &s.SubSheets[i]
		}
	}
	return nil
}

// ActiveSubSheet returns the active sub-sheet, or nil.
func (s *Sheet) ActiveSubSheet() *SubSheet {
	return s.SubSheet(s.ActiveSubSheetID)
}

// Property returns a property by scope and id.
func (s *Sheet) Property(scope, id string) (Property, bool) {
	var props []Property
	if scope == ScopeGlobal {
		props = s.GlobalProperties
	} else if sub := s.SubSheet(scope); sub != nil {
		props = sub.Properties
	}
	for _, p := range props {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// Action returns an action of the given sub-sheet.
func (s *Sheet) Action(subSheetID, actionID string) (Action, bool) {
	sub := s.SubSheet(subSheetID)
	if sub == nil {
		return Action{}, false
	}
	for _, a := range sub.Actions {
		if a.ID == actionID {
			return a, true
		}
	}
	return Action{}, false
}

// AllProperties returns global properties followed by every sub-sheet's
// properties, in document order.
func (s *Sheet) AllProperties() []Property {
	all := append([]Property(nil), s.GlobalProperties...)
	for _, sub := range s.SubSheets {
		all = append(all, sub.Properties...)
	}
	return all
}

// QualifiedKey returns the context key of a property in scope.
func QualifiedKey(scope, id string) string {
	if scope == ScopeGlobal {
		return id
	}
	return scope + "." + id
}

// Validate checks structural invariants: non-empty unique ids per scope,
// unique sub-sheet ids, known usages, and an existing active sub-sheet.
func (s *Sheet) Validate() error {
	if err := validateProperties(ScopeGlobal, s.GlobalProperties); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, sub := range s.SubSheets {
		if sub.ID == "" {
			return fmt.Errorf("sub-sheet %q has an empty id", sub.Name)
		}
		if sub.ID == ScopeGlobal {
			return fmt.Errorf("sub-sheet id %q is reserved", ScopeGlobal)
		}
		if seen[sub.ID] {
			return fmt.Errorf("duplicate sub-sheet id %q", sub.ID)
		}
		seen[sub.ID] = true
		if err := validateProperties(sub.ID, sub.Properties); err != nil {
			return err
		}
		actions := make(map[string]bool)
		for _, a := range sub.Actions {
			if a.ID == "" {
				return fmt.Errorf("action %q in %s has an empty id", a.Name, sub.ID)
			}
			if actions[a.ID] {
				return fmt.Errorf("duplicate action id %q in %s", a.ID, sub.ID)
			}
			actions[a.ID] = true
		}
	}
	if s.ActiveSubSheetID != "" && !seen[s.ActiveSubSheetID] {
		return fmt.Errorf("active sub-sheet %q does not exist", s.ActiveSubSheetID)
	}
	return nil
}

func validateProperties(scope string, props []Property) error {
	seen := make(map[string]bool)
	for _, p := range props {
		if p.ID == "" {
			return fmt.Errorf("property %q in %s has an empty id", p.Name, scope)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate property id %q in %s", p.ID, scope)
		}
		seen[p.ID] = true
		if p.Usage != "" && !p.Usage.Valid() {
			return fmt.Errorf("property %q in %s has unknown usage %q", p.ID, scope, p.Usage)
		}
	}
	return nil
}
