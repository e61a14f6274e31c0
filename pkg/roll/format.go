package roll

import (
	"strconv"
	"strings"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
)

// FormatConfig holds the templates used to render each die. {n} is the
// die value; in Reroll, {m} is the rendering of what the die became.
type FormatConfig struct {
	Default   string `json:"default,omitempty" yaml:"default,omitempty"`
	Success   string `json:"success,omitempty" yaml:"success,omitempty"`
	Failure   string `json:"failure,omitempty" yaml:"failure,omitempty"`
	Reroll    string `json:"reroll,omitempty" yaml:"reroll,omitempty"`
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
}

// DefaultFormat renders successes in bold and rerolled values struck through.
var DefaultFormat = FormatConfig{
	Default:   "{n}",
	Success:   "**{n}**",
	Failure:   "{n}",
	Reroll:    "~~{n}~~ → {m}",
	Separator: " + ",
}

// WithDefaults fills every empty field from DefaultFormat.
func (c FormatConfig) WithDefaults() FormatConfig {
	if c.Default == "" {
		c.Default = DefaultFormat.Default
	}
	if c.Success == "" {
		c.Success = DefaultFormat.Success
	}
	if c.Failure == "" {
		c.Failure = DefaultFormat.Failure
	}
	if c.Reroll == "" {
		c.Reroll = DefaultFormat.Reroll
	}
	if c.Separator == "" {
		c.Separator = DefaultFormat.Separator
	}
	return c
}

// formatter re-walks the AST in evaluation order, consuming the recorded
// dice one group per dice node instead of rolling again.
type formatter struct {
	cfg    FormatConfig
	scope  expr.Scope
	rolls  []expr.DieRoll
	groups []int
}

func newFormatter(cfg FormatConfig, scope expr.Scope, ev *expr.Evaluation) *formatter {
	return &formatter{cfg: cfg, scope: scope, rolls: ev.Rolls, groups: ev.Groups}
}

func (f *formatter) render(node expr.Node) string {
	switch n := node.(type) {
	case *expr.NumberLiteral:
		return strconv.Itoa(n.Value)
	case *expr.Identifier:
		v, ok := f.scope.GetVariable(n.Name)
		if !ok {
			return "(undefined " + n.Name + ")"
		}
		return strconv.Itoa(v)
	case *expr.PrefixExpression:
		return n.Operator + f.render(n.Right)
	case *expr.InfixExpression:
		return "(" + f.render(n.Left) + " " + n.Operator + " " + f.render(n.Right) + ")"
	case *expr.CallExpression:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = f.render(a)
		}
		return n.Function + "(" + strings.Join(args, ", ") + ")"
	case *expr.DiceExpression:
		// Count and sides were evaluated first and may hold dice of their own.
		f.render(n.Count)
		f.render(n.Sides)
		return f.renderGroup(f.nextGroup())
	default:
		return ""
	}
}

func (f *formatter) nextGroup() []expr.DieRoll {
	if len(f.groups) == 0 {
		return nil
	}
	size := f.groups[0]
	f.groups = f.groups[1:]
	if size > len(f.rolls) {
		size = len(f.rolls)
	}
	group := f.rolls[:size]
	f.rolls = f.rolls[size:]
	return group
}

func (f *formatter) renderGroup(dice []expr.DieRoll) string {
	if len(dice) == 0 {
		return "(No dice rolled)"
	}
	parts := make([]string, len(dice))
	for i, d := range dice {
		parts[i] = f.renderDie(d)
	}
	return "(" + strings.Join(parts, f.cfg.Separator) + ")"
}

// renderDie styles the final value, then wraps it in the reroll template
// once per discarded value, innermost last.
func (f *formatter) renderDie(d expr.DieRoll) string {
	tpl := f.cfg.Default
	if d.IsSuccess != nil {
		if *d.IsSuccess {
			tpl = f.cfg.Success
		} else {
			tpl = f.cfg.Failure
		}
	}
	out := fill(tpl, d.FinalValue, "")
	for i := len(d.RerolledValues) - 1; i >= 0; i-- {
		out = fill(f.cfg.Reroll, d.RerolledValues[i], out)
	}
	return out
}

func fill(tpl string, n int, m string) string {
	s := strings.ReplaceAll(tpl, "{n}", strconv.Itoa(n))
	return strings.ReplaceAll(s, "{m}", m)
}
