package expr

import (
	"fmt"

	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

const (
	// MaxRerolls caps how many times a single die may be rerolled.
	MaxRerolls = 100
	// MaxDice caps the number of dice a single dice node may roll.
	MaxDice = 1000
)

// Scope provides variable lookup and function calls during evaluation.
type Scope interface {
	GetVariable(name string) (int, bool)
	CallFunction(name string, args []int) (int, error)
}

// Context is a flat name to value mapping. It is a Scope without functions.
type Context map[string]int

// GetVariable implements Scope.
func (c Context) GetVariable(name string) (int, bool) {
	v, ok := c[name]
	return v, ok
}

// CallFunction implements Scope. A plain Context defines no functions.
func (c Context) CallFunction(name string, args []int) (int, error) {
	return 0, types.NewEvalError(fmt.Sprintf("unknown function '%s'", name))
}

// DieRoll records a single die rolled during evaluation.
type DieRoll struct {
	Sides          int   `json:"sides"`
	InitialValue   int   `json:"initialValue"`
	FinalValue     int   `json:"finalValue"`
	WasRerolled    bool  `json:"wasRerolled"`
	RerolledValues []int `json:"rerolledValues"`
	IsSuccess      *bool `json:"isSuccess,omitempty"`
}

// Evaluation is the outcome of evaluating one expression. Rolls holds every
// die in the order it was rolled; Groups holds, per dice node in the same
// order, how many of those rolls it produced. Errors and Diagnostics are
// parallel: Errors[i] is Diagnostics[i].Message.
type Evaluation struct {
	Value       int
	Rolls       []DieRoll
	Groups      []int
	Errors      []string
	Diagnostics []*types.DiagnosticError
}

type evaluator struct {
	scope Scope
	dice  Source
	out   *Evaluation
}

// Evaluate walks node against scope, rolling dice from the given source.
// Undefined identifiers and division by zero evaluate to 0 and record an
// error. All state is local to the call.
func Evaluate(node Node, scope Scope, dice Source) *Evaluation {
	if scope == nil {
		scope = Context{}
	}
	if dice == nil {
		dice = NewRandomSource()
	}
	e := &evaluator{scope: scope, dice: dice, out: &Evaluation{}}
	if node == nil {
		e.errorf("nothing to evaluate")
		return e.out
	}
	e.out.Value = e.eval(node)
	return e.out
}

func (e *evaluator) report(d *types.DiagnosticError) {
	e.out.Errors = append(e.out.Errors, d.Message)
	e.out.Diagnostics = append(e.out.Diagnostics, d)
}

func (e *evaluator) errorf(format string, args ...any) {
	e.report(types.NewEvalError(fmt.Sprintf(format, args...)))
}

func (e *evaluator) eval(node Node) int {
	switch n := node.(type) {
	case *NumberLiteral:
		return n.Value
	case *Identifier:
		v, ok := e.scope.GetVariable(n.Name)
		if !ok {
			e.report(types.NewUndefinedVariableError(n.Name))
			return 0
		}
		return v
	case *PrefixExpression:
		right := e.eval(n.Right)
		if n.Operator == "-" {
			return -right
		}
		return 0
	case *InfixExpression:
		return e.evalInfix(n)
	case *DiceExpression:
		return e.evalDice(n)
	case *CallExpression:
		args := make([]int, len(n.Args))
		for i, a := range n.Args {
			args[i] = e.eval(a)
		}
		v, err := e.scope.CallFunction(n.Function, args)
		if err != nil {
			e.report(types.AsDiagnostic(err, types.TagEvalError))
			return 0
		}
		return v
	case *Comparison:
		e.errorf("comparison %s is only valid as a dice modifier", n.String())
		return 0
	default:
		e.errorf("unsupported node type %T", node)
		return 0
	}
}

func (e *evaluator) evalInfix(n *InfixExpression) int {
	left := e.eval(n.Left)
	right := e.eval(n.Right)

	switch n.Operator {
	case "+":
		return left + right
	case "-":
		return left - right
	case "*":
		return left * right
	case "/":
		if right == 0 {
			e.report(types.NewZeroDivisionError())
			return 0
		}
		return floorDiv(left, right)
	case ">", "<", ">=", "<=":
		if compare(n.Operator, left, right) {
			return 1
		}
		return 0
	default:
		e.errorf("unknown operator %s", n.Operator)
		return 0
	}
}

func (e *evaluator) evalDice(n *DiceExpression) int {
	count := e.eval(n.Count)
	sides := e.eval(n.Sides)

	if count <= 0 || sides <= 0 {
		e.out.Groups = append(e.out.Groups, 0)
		return 0
	}
	if count > MaxDice {
		e.report(types.NewResourceLimitError(fmt.Sprintf("too many dice: %d (max %d)", count, MaxDice)))
		e.out.Groups = append(e.out.Groups, 0)
		return 0
	}

	sum, successes := 0, 0
	for i := 0; i < count; i++ {
		first := e.dice.Roll(sides)
		roll := DieRoll{Sides: sides, InitialValue: first, FinalValue: first, RerolledValues: []int{}}

		if n.Reroll != nil {
			for n.Reroll.Test(roll.FinalValue) {
				if len(roll.RerolledValues) >= MaxRerolls {
					e.report(types.NewResourceLimitError(fmt.Sprintf("reroll limit of %d exceeded on d%dr%s", MaxRerolls, sides, n.Reroll)))
					break
				}
				roll.RerolledValues = append(roll.RerolledValues, roll.FinalValue)
				roll.FinalValue = e.dice.Roll(sides)
			}
			roll.WasRerolled = len(roll.RerolledValues) > 0
		}

		if n.Success != nil {
			ok := n.Success.Test(roll.FinalValue)
			roll.IsSuccess = &ok
			if ok {
				successes++
			}
		}

		sum += roll.FinalValue
		e.out.Rolls = append(e.out.Rolls, roll)
	}
	e.out.Groups = append(e.out.Groups, count)

	if n.Success != nil {
		return successes
	}
	return sum
}

func compare(op string, a, b int) bool {
	switch op {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
