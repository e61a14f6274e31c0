package runtime

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// MaxPasses bounds the number of resolution passes over a sheet.
const MaxPasses = 15

// Pending is a property that could not be resolved.
type Pending struct {
	Scope      string `json:"scope"`
	PropertyID string `json:"propertyId"`
	Name       string `json:"name"`
	Reason     string `json:"reason,omitempty"`
}

// Key returns the pending property's qualified context key.
func (p Pending) Key() string {
	return sheet.QualifiedKey(p.Scope, p.PropertyID)
}

// Resolution is the result of resolving a sheet.
type Resolution struct {
	// Context holds global values by bare id, sub-sheet values as
	// "subsheet.id", and the active sub-sheet's values again by bare id.
	Context    expr.Context `json:"context"`
	Unresolved []Pending    `json:"unresolved"`
	Passes     int          `json:"passes"`
}

// Err reports the unresolved properties as a CircularDependency error, or
// nil when everything resolved.
func (r *Resolution) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	return types.NewCircularDependencyError(r.unresolvedNames())
}

func (r *Resolution) unresolvedNames() []string {
	names := make([]string, len(r.Unresolved))
	for i, p := range r.Unresolved {
		names[i] = p.Name
	}
	return names
}

// Engine resolves sheets and rolls their properties and actions.
type Engine struct {
	funcs  FunctionRegistry
	roller *roll.Roller
	log    zerolog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	source expr.Source
	log    zerolog.Logger
}

// WithSource sets the dice source used for every roll.
func WithSource(s expr.Source) Option {
	return func(c *engineConfig) { c.source = s }
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *engineConfig) { c.log = l }
}

// NewEngine creates a sheet engine whose expressions may call funcs.
func NewEngine(funcs FunctionRegistry, opts ...Option) *Engine {
	cfg := engineConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	rollOpts := []roll.Option{roll.WithLogger(cfg.log)}
	if cfg.source != nil {
		rollOpts = append(rollOpts, roll.WithSource(cfg.source))
	}
	return &Engine{
		funcs:  funcs,
		roller: roll.New(rollOpts...),
		log:    cfg.log,
	}
}

// Roller returns the roller the engine uses.
func (e *Engine) Roller() *roll.Roller {
	return e.roller
}

type pendingProperty struct {
	scope string
	prop  sheet.Property
}

// BuildContext resolves s with its own active sub-sheet.
func (e *Engine) BuildContext(s *sheet.Sheet) *Resolution {
	return e.BuildContextFor(s, s.ActiveSubSheetID)
}

// BuildContextFor resolves every property of s and aliases the properties
// of the sub-sheet activeID by bare id.
//
// Each pass tries every pending property against the values resolved so
// far; sub-sheet properties also see their resolved siblings by bare id. A
// pass that resolves nothing ends resolution, leaving the remaining
// properties in Unresolved and out of the context.
func (e *Engine) BuildContextFor(s *sheet.Sheet, activeID string) *Resolution {
	var pending []pendingProperty
	queue := func(scope string, props []sheet.Property) {
		for _, p := range props {
			// Blank expressions, such as Quality headers, define no value.
			if strings.TrimSpace(p.Expression) == "" {
				continue
			}
			pending = append(pending, pendingProperty{scope: scope, prop: p})
		}
	}
	queue(sheet.ScopeGlobal, s.GlobalProperties)
	for _, sub := range s.SubSheets {
		queue(sub.ID, sub.Properties)
	}

	resolved := NewScope()
	reasons := make(map[string]string)
	res := &Resolution{Unresolved: []Pending{}}

	for len(pending) > 0 && res.Passes < MaxPasses {
		res.Passes++
		var remaining []pendingProperty

		for _, item := range pending {
			key := sheet.QualifiedKey(item.scope, item.prop.ID)
			trial := resolved
			if item.scope != sheet.ScopeGlobal {
				trial = siblingScope(resolved, s.SubSheet(item.scope))
			}

			out := e.roller.Roll(item.prop.Expression, roll.Options{Scope: NewScopeAdapter(trial, e.funcs)})
			if !out.OK() {
				if len(out.Errors) > 0 {
					reasons[key] = out.Errors[0]
				}
				remaining = append(remaining, item)
				continue
			}
			resolved.SetLocal(key, out.Result.Value)
		}

		progressed := len(remaining) < len(pending)
		pending = remaining
		if !progressed {
			break
		}
	}

	for _, item := range pending {
		key := sheet.QualifiedKey(item.scope, item.prop.ID)
		res.Unresolved = append(res.Unresolved, Pending{
			Scope:      item.scope,
			PropertyID: item.prop.ID,
			Name:       item.prop.Name,
			Reason:     reasons[key],
		})
	}
	if len(res.Unresolved) > 0 {
		e.log.Warn().
			Strs("properties", res.unresolvedNames()).
			Int("passes", res.Passes).
			Msg("could not resolve all properties, check for circular dependencies")
	}

	final := resolved
	if active := s.SubSheet(activeID); active != nil {
		final = siblingScope(resolved, active)
	}
	res.Context = final.Snapshot()
	return res
}

// siblingScope returns a child of resolved in which the already-resolved
// properties of sub are also visible by bare id.
func siblingScope(resolved *VariableScope, sub *sheet.SubSheet) *VariableScope {
	child := resolved.NewChildScope()
	if sub == nil {
		return child
	}
	for _, p := range sub.Properties {
		if v, ok := resolved.Get(sheet.QualifiedKey(sub.ID, p.ID)); ok {
			child.SetLocal(p.ID, v)
		}
	}
	return child
}

// PropertyRoll is the result of rolling a sheet property.
type PropertyRoll struct {
	Outcome    roll.Outcome `json:"outcome"`
	Resolution *Resolution  `json:"-"`
}

// RollProperty rolls the expression of a property against the sheet's
// context, with scope as the active sub-sheet.
func (e *Engine) RollProperty(s *sheet.Sheet, scope, propertyID string, format roll.FormatConfig) (*PropertyRoll, error) {
	prop, ok := s.Property(scope, propertyID)
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("property '%s' not found in %s", propertyID, scope))
	}
	active := s.ActiveSubSheetID
	if scope != sheet.ScopeGlobal {
		active = scope
	}
	resolution := e.BuildContextFor(s, active)

	out := e.roller.Roll(prop.Expression, e.rollOptions(resolution.Context, format))
	if out.Result != nil && out.Result.Title == "" {
		out.Result.Title = prop.Name
	}
	return &PropertyRoll{Outcome: out, Resolution: resolution}, nil
}

// ActionRoll is the result of rolling a sub-sheet action.
type ActionRoll struct {
	Outcome       roll.Outcome `json:"outcome"`
	Expression    string       `json:"expression"`
	Modifications []string     `json:"modifications"`
}

// RollAction applies matching qualities to an action's roll expression and
// rolls it against the sub-sheet's context.
func (e *Engine) RollAction(s *sheet.Sheet, subSheetID, actionID string, format roll.FormatConfig) (*ActionRoll, error) {
	action, ok := s.Action(subSheetID, actionID)
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("action '%s' not found in %s", actionID, subSheetID))
	}
	resolution := e.BuildContextFor(s, subSheetID)

	props := append([]sheet.Property(nil), s.GlobalProperties...)
	props = append(props, s.SubSheet(subSheetID).Properties...)
	expression, notes := sheet.ProcessAction(action, props, resolution.Context)

	out := e.roller.Roll(expression, e.rollOptions(resolution.Context, format))
	if out.Result != nil && out.Result.Title == "" {
		out.Result.Title = action.Name
	}
	if notes == nil {
		notes = []string{}
	}
	return &ActionRoll{Outcome: out, Expression: expression, Modifications: notes}, nil
}

// Roll rolls a free-form expression against a context using the engine's
// functions.
func (e *Engine) Roll(expression string, ctx expr.Context, format roll.FormatConfig) roll.Outcome {
	return e.roller.Roll(expression, e.rollOptions(ctx, format))
}

func (e *Engine) rollOptions(ctx expr.Context, format roll.FormatConfig) roll.Options {
	return roll.Options{
		Scope:  NewScopeAdapter(NewScopeFrom(ctx), e.funcs),
		Format: format,
	}
}
