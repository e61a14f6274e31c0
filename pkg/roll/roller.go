// Package roll is the entry point for rolling a dice expression: it splits
// an optional title, parses, evaluates against a scope and renders a
// human-readable breakdown of every die.
package roll

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// FunctionRegistry provides the functions callable from expressions.
type FunctionRegistry interface {
	CallFunction(name string, args []int) (int, error)
}

// Roller rolls expressions. A Roller holds no per-roll state and is safe
// for concurrent use when its Source is.
type Roller struct {
	source expr.Source
	funcs  FunctionRegistry
	log    zerolog.Logger
}

// Option configures a Roller.
type Option func(*Roller)

// WithSource sets the dice source. The default is seeded from crypto/rand.
func WithSource(s expr.Source) Option {
	return func(r *Roller) { r.source = s }
}

// WithFunctions makes the registry's functions callable when rolling
// against a plain Context.
func WithFunctions(f FunctionRegistry) Option {
	return func(r *Roller) { r.funcs = f }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Roller) { r.log = l }
}

// New creates a Roller.
func New(opts ...Option) *Roller {
	r := &Roller{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.source == nil {
		r.source = expr.NewRandomSource()
	}
	return r
}

// Options are the per-roll inputs. Scope, when set, takes precedence over Context.
type Options struct {
	Context expr.Context
	Scope   expr.Scope
	Format  FormatConfig
}

// Result is a successful roll.
type Result struct {
	Title           string         `json:"title,omitempty"`
	Expression      string         `json:"expression"`
	Value           int            `json:"value"`
	Successes       *int           `json:"successes,omitempty"`
	Rolls           []int          `json:"rolls"`
	Rerolled        []int          `json:"rerolled"`
	DetailedRolls   []expr.DieRoll `json:"detailedRolls"`
	FormattedString string         `json:"formattedString"`
}

// Outcome is either a Result or a list of errors.
type Outcome struct {
	Result      *Result                  `json:"result,omitempty"`
	Errors      []string                 `json:"errors,omitempty"`
	Diagnostics []*types.DiagnosticError `json:"-"`
}

// OK reports whether the roll produced a result.
func (o Outcome) OK() bool {
	return o.Result != nil && len(o.Errors) == 0
}

// Err returns the outcome's diagnostics joined into one error, or nil.
func (o Outcome) Err() error {
	if len(o.Diagnostics) == 0 {
		return nil
	}
	return types.Join(o.Diagnostics...)
}

func failed(diags ...*types.DiagnosticError) Outcome {
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Message
	}
	return Outcome{Errors: msgs, Diagnostics: diags}
}

// SplitTitle separates an optional "Title:" prefix from the expression.
func SplitTitle(input string) (title, expression string) {
	if idx := strings.Index(input, ":"); idx >= 0 {
		return strings.TrimSpace(input[:idx]), strings.TrimSpace(input[idx+1:])
	}
	return "", strings.TrimSpace(input)
}

// Roll parses and evaluates input. Parse errors are returned without
// evaluating; any evaluation diagnostic, including an undefined variable,
// fails the roll.
func (r *Roller) Roll(input string, opts Options) Outcome {
	title, body := SplitTitle(input)

	node, parseErrs := expr.Parse(body)
	if len(parseErrs) > 0 {
		diags := make([]*types.DiagnosticError, len(parseErrs))
		for i, msg := range parseErrs {
			diags[i] = types.NewParseError(msg)
		}
		r.log.Debug().Str("expression", body).Strs("errors", parseErrs).Msg("parse failed")
		return failed(diags...)
	}
	if node == nil {
		return failed(types.NewParseError("failed to parse the expression"))
	}

	scope := r.scope(opts)
	ev := expr.Evaluate(node, scope, r.source)
	if len(ev.Diagnostics) > 0 {
		r.log.Debug().Str("expression", body).Strs("errors", ev.Errors).Msg("evaluation failed")
		return failed(ev.Diagnostics...)
	}

	f := newFormatter(opts.Format.WithDefaults(), scope, ev)
	res := &Result{
		Title:           title,
		Expression:      body,
		Value:           ev.Value,
		Rolls:           make([]int, 0, len(ev.Rolls)),
		Rerolled:        []int{},
		DetailedRolls:   ev.Rolls,
		FormattedString: f.render(node),
	}
	if res.DetailedRolls == nil {
		res.DetailedRolls = []expr.DieRoll{}
	}
	for _, d := range ev.Rolls {
		res.Rolls = append(res.Rolls, d.FinalValue)
		res.Rerolled = append(res.Rerolled, d.RerolledValues...)
	}
	if dice, ok := node.(*expr.DiceExpression); ok && dice.Success != nil {
		successes := ev.Value
		res.Successes = &successes
	}

	r.log.Debug().
		Str("expression", body).
		Int("value", res.Value).
		Int("dice", len(res.Rolls)).
		Msg("rolled")
	return Outcome{Result: res}
}

func (r *Roller) scope(opts Options) expr.Scope {
	if opts.Scope != nil {
		return opts.Scope
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = expr.Context{}
	}
	if r.funcs == nil {
		return ctx
	}
	return contextScope{ctx: ctx, funcs: r.funcs}
}

// contextScope adds functions to a plain Context.
type contextScope struct {
	ctx   expr.Context
	funcs FunctionRegistry
}

func (s contextScope) GetVariable(name string) (int, bool) {
	return s.ctx.GetVariable(name)
}

func (s contextScope) CallFunction(name string, args []int) (int, error) {
	return s.funcs.CallFunction(name, args)
}
