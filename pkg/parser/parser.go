// Package parser converts YAML/JSON sheet and library documents into
// sheet model types.
package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
)

// MaxSourceSize is the maximum document size in bytes (128 KB).
const MaxSourceSize = 128 * 1024

// MaxProperties is the maximum number of properties in one sheet.
const MaxProperties = 500

// ParseError represents an error encountered during document parsing.
type ParseError struct {
	Message  string
	Location string // e.g., "property 'str' in subsheet 'human'"
}

func (e *ParseError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Parse parses a YAML or JSON sheet definition.
//
// Top-level keys are id, name, global (or globalProperties), subsheets (or
// subSheets) and active (or activeSubSheetId), so the JSON the API emits
// parses back unchanged. A property may be written as a single "id: expression"
// pair instead of a full mapping.
func Parse(source []byte) (*sheet.Sheet, error) {
	root, err := parseRoot(source, "sheet")
	if err != nil {
		return nil, err
	}

	s := &sheet.Sheet{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		switch key {
		case "id":
			s.ID = val.Value
		case "name":
			s.Name = val.Value
		case "active", "activeSubSheetId":
			s.ActiveSubSheetID = val.Value
		case "global", "globalProperties":
			props, err := parseProperties(val, "global properties")
			if err != nil {
				return nil, err
			}
			s.GlobalProperties = props
		case "subsheets", "subSheets":
			subs, err := parseSubSheets(val)
			if err != nil {
				return nil, err
			}
			s.SubSheets = subs
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in sheet", key)}
		}
	}

	if s.ActiveSubSheetID == "" && len(s.SubSheets) > 0 {
		s.ActiveSubSheetID = s.SubSheets[0].ID
	}
	if n := len(s.AllProperties()); n > MaxProperties {
		return nil, &ParseError{Message: fmt.Sprintf("sheet has %d properties, maximum is %d", n, MaxProperties)}
	}
	if err := s.Validate(); err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	return s, nil
}

// ParseLibrary parses a YAML or JSON property template library.
func ParseLibrary(source []byte) (*sheet.Library, error) {
	root, err := parseRoot(source, "library")
	if err != nil {
		return nil, err
	}

	lib := &sheet.Library{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		switch key {
		case "id":
			lib.ID = val.Value
		case "name":
			lib.Name = val.Value
		case "templates":
			if val.Kind != yaml.SequenceNode {
				return nil, &ParseError{Message: "templates must be a sequence", Location: "library"}
			}
			seen := make(map[string]bool)
			for _, item := range val.Content {
				t, err := parseTemplate(item)
				if err != nil {
					return nil, err
				}
				if seen[t.ID] {
					return nil, &ParseError{Message: fmt.Sprintf("duplicate template id '%s'", t.ID), Location: "library"}
				}
				seen[t.ID] = true
				lib.Templates = append(lib.Templates, t)
			}
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in library", key)}
		}
	}
	return lib, nil
}

func parseRoot(source []byte, kind string) (*yaml.Node, error) {
	if len(source) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("%s source size %d exceeds maximum %d bytes", kind, len(source), MaxSourceSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// The root node is a document node containing the actual content
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ParseError{Message: fmt.Sprintf("empty %s definition", kind)}
	}

	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Message: fmt.Sprintf("%s definition must be a mapping", kind)}
	}
	return root, nil
}

// parseSubSheets parses the sequence of sub-sheets.
func parseSubSheets(node *yaml.Node) ([]sheet.SubSheet, error) {
	if isNull(node) {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "subsheets must be a sequence"}
	}

	var subs []sheet.SubSheet
	for idx, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, &ParseError{Message: "subsheet must be a mapping", Location: fmt.Sprintf("subsheet #%d", idx+1)}
		}
		sub := sheet.SubSheet{Properties: []sheet.Property{}, Actions: []sheet.Action{}}
		// Resolve the id first so errors can name the sub-sheet.
		for i := 0; i+1 < len(item.Content); i += 2 {
			if item.Content[i].Value == "id" {
				sub.ID = item.Content[i+1].Value
			}
		}
		loc := fmt.Sprintf("subsheet '%s'", sub.ID)

		for i := 0; i+1 < len(item.Content); i += 2 {
			key := item.Content[i].Value
			val := item.Content[i+1]

			switch key {
			case "id":
			case "name":
				sub.Name = val.Value
			case "properties":
				props, err := parseProperties(val, loc)
				if err != nil {
					return nil, err
				}
				sub.Properties = props
			case "actions":
				actions, err := parseActions(val, loc)
				if err != nil {
					return nil, err
				}
				sub.Actions = actions
			default:
				return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in subsheet", key), Location: loc}
			}
		}
		if sub.Name == "" {
			sub.Name = sub.ID
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// parseProperties parses a sequence of property definitions.
func parseProperties(node *yaml.Node, context string) ([]sheet.Property, error) {
	if isNull(node) {
		return []sheet.Property{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "properties must be a sequence", Location: context}
	}

	props := []sheet.Property{}
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, &ParseError{Message: "property must be a mapping", Location: context}
		}

		// Shorthand: "- str: 16". Any single-pair mapping other than
		// "- id: x" is shorthand, so "- name: 3" defines property "name".
		if len(item.Content) == 2 && item.Content[0].Value != "id" {
			id := item.Content[0].Value
			val := item.Content[1]
			if val.Kind != yaml.ScalarNode {
				return nil, &ParseError{
					Message:  "shorthand property value must be an expression",
					Location: fmt.Sprintf("property '%s' in %s", id, context),
				}
			}
			props = append(props, sheet.Property{ID: id, Name: id, Expression: val.Value, Usage: sheet.UsageConstant, Tags: []string{}})
			continue
		}

		p, err := parseProperty(item, context)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

func parseProperty(node *yaml.Node, context string) (sheet.Property, error) {
	p := sheet.Property{Tags: []string{}}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "id" {
			p.ID = node.Content[i+1].Value
		}
	}
	loc := fmt.Sprintf("property '%s' in %s", p.ID, context)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "id":
		case "name":
			p.Name = val.Value
		case "expression":
			p.Expression = val.Value
		case "usage":
			p.Usage = sheet.Usage(val.Value)
		case "tags":
			tags, err := parseStrings(val, loc)
			if err != nil {
				return p, err
			}
			p.Tags = tags
		case "description":
			p.Description = val.Value
		case "currentValue":
			v, err := parseInt(val, loc)
			if err != nil {
				return p, err
			}
			p.CurrentValue = &v
		case "priority":
			v, err := parseInt(val, loc)
			if err != nil {
				return p, err
			}
			p.Priority = &v
		case "foregroundColor":
			p.ForegroundColor = val.Value
		case "backgroundColor":
			p.BackgroundColor = val.Value
		case "parentId":
			p.ParentID = val.Value
		default:
			return p, &ParseError{Message: fmt.Sprintf("unknown key '%s' in property", key), Location: loc}
		}
	}

	if p.ID == "" {
		return p, &ParseError{Message: "property must have an 'id'", Location: context}
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	if p.Usage == "" {
		p.Usage = sheet.UsageConstant
	}
	return p, nil
}

// parseActions parses a sequence of action definitions.
func parseActions(node *yaml.Node, context string) ([]sheet.Action, error) {
	if isNull(node) {
		return []sheet.Action{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "actions must be a sequence", Location: context}
	}

	actions := []sheet.Action{}
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, &ParseError{Message: "action must be a mapping", Location: context}
		}
		a := sheet.Action{QualityTags: []string{}, EffectTags: []string{}}
		loc := context

		for i := 0; i+1 < len(item.Content); i += 2 {
			key := item.Content[i].Value
			val := item.Content[i+1]

			switch key {
			case "id":
				a.ID = val.Value
				loc = fmt.Sprintf("action '%s' in %s", a.ID, context)
			case "name":
				a.Name = val.Value
			case "description":
				a.Description = val.Value
			case "type":
				a.Type = sheet.ActionType(val.Value)
			case "range":
				a.Range = sheet.ActionRange(val.Value)
			case "qualityTags":
				tags, err := parseStrings(val, loc)
				if err != nil {
					return nil, err
				}
				a.QualityTags = tags
			case "effectTags":
				tags, err := parseStrings(val, loc)
				if err != nil {
					return nil, err
				}
				a.EffectTags = tags
			case "roll", "rollExpression":
				a.RollExpression = val.Value
			default:
				return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in action", key), Location: loc}
			}
		}

		switch a.Type {
		case "", sheet.ActionDamage, sheet.ActionSupport:
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown action type '%s'", a.Type), Location: loc}
		}
		switch a.Range {
		case "", sheet.RangeMelee, sheet.RangeRanged:
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown action range '%s'", a.Range), Location: loc}
		}
		if strings.TrimSpace(a.RollExpression) == "" {
			return nil, &ParseError{Message: "action must have a 'roll' expression", Location: loc}
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func parseTemplate(node *yaml.Node) (sheet.PropertyTemplate, error) {
	t := sheet.PropertyTemplate{Tags: []string{}}
	if node.Kind != yaml.MappingNode {
		return t, &ParseError{Message: "template must be a mapping", Location: "library"}
	}
	loc := "library"
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		switch key {
		case "id":
			t.ID = val.Value
			loc = fmt.Sprintf("template '%s'", t.ID)
		case "name":
			t.Name = val.Value
		case "description":
			t.Description = val.Value
		case "usage":
			t.Usage = sheet.Usage(val.Value)
		case "tags":
			tags, err := parseStrings(val, loc)
			if err != nil {
				return t, err
			}
			t.Tags = tags
		case "expression":
			t.Expression = val.Value
		default:
			return t, &ParseError{Message: fmt.Sprintf("unknown key '%s' in template", key), Location: loc}
		}
	}
	if t.ID == "" {
		return t, &ParseError{Message: "template must have an 'id'", Location: loc}
	}
	if t.Usage != "" && !t.Usage.Valid() {
		return t, &ParseError{Message: fmt.Sprintf("unknown usage '%s'", t.Usage), Location: loc}
	}
	return t, nil
}

func parseStrings(node *yaml.Node, loc string) ([]string, error) {
	if isNull(node) {
		return []string{}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, &ParseError{Message: "expected a sequence of strings", Location: loc}
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, &ParseError{Message: "expected a string", Location: loc}
		}
		out = append(out, item.Value)
	}
	return out, nil
}

func parseInt(node *yaml.Node, loc string) (int, error) {
	var v int
	if err := node.Decode(&v); err != nil {
		return 0, &ParseError{Message: fmt.Sprintf("expected an integer, got '%s'", node.Value), Location: loc}
	}
	return v, nil
}

// isNull reports whether node is an explicit null, as JSON emits for empty lists.
func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
