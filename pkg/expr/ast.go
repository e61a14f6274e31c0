package expr

import (
	"strconv"
	"strings"
)

// Node is the interface for all expression AST nodes. The set of node
// types is closed; Evaluate and the roll formatter switch over all of them.
type Node interface {
	nodeType() string
	String() string
}

// NumberLiteral is an integer literal.
type NumberLiteral struct {
	Token Token
	Value int
}

func (n *NumberLiteral) nodeType() string { return "Number" }
func (n *NumberLiteral) String() string   { return strconv.Itoa(n.Value) }

// Identifier is a variable reference resolved from the scope at evaluation time.
type Identifier struct {
	Token Token
	Name  string
}

func (n *Identifier) nodeType() string { return "Identifier" }
func (n *Identifier) String() string   { return n.Name }

// PrefixExpression is a unary operation. Only "-" is produced by the parser.
type PrefixExpression struct {
	Token    Token
	Operator string
	Right    Node
}

func (n *PrefixExpression) nodeType() string { return "Prefix" }
func (n *PrefixExpression) String() string {
	return "(" + n.Operator + n.Right.String() + ")"
}

// InfixExpression is a binary arithmetic operation or a boolean comparison.
type InfixExpression struct {
	Token    Token
	Operator string
	Left     Node
	Right    Node
}

func (n *InfixExpression) nodeType() string { return "Infix" }
func (n *InfixExpression) String() string {
	return "(" + n.Left.String() + " " + n.Operator + " " + n.Right.String() + ")"
}

// Comparison is a modifier clause attached to a DiceExpression as its
// reroll or success condition. It is never evaluated on its own.
type Comparison struct {
	Token    Token
	Operator string
	Value    int
}

func (n *Comparison) nodeType() string { return "Comparison" }
func (n *Comparison) String() string   { return n.Operator + strconv.Itoa(n.Value) }

// Test reports whether v satisfies the comparison.
func (n *Comparison) Test(v int) bool {
	return compare(n.Operator, v, n.Value)
}

// DiceExpression rolls Count dice with Sides faces each.
type DiceExpression struct {
	Token   Token
	Count   Node
	Sides   Node
	Reroll  *Comparison
	Success *Comparison
}

func (n *DiceExpression) nodeType() string { return "Dice" }
func (n *DiceExpression) String() string {
	var sb strings.Builder
	sb.WriteString(wrapOperand(n.Count))
	sb.WriteString("d")
	sb.WriteString(wrapOperand(n.Sides))
	if n.Reroll != nil {
		sb.WriteString("r")
		sb.WriteString(n.Reroll.String())
	}
	if n.Success != nil {
		sb.WriteString(n.Success.String())
	}
	return sb.String()
}

// CallExpression is a function call such as max(a, b).
type CallExpression struct {
	Token    Token
	Function string
	Args     []Node
}

func (n *CallExpression) nodeType() string { return "Call" }
func (n *CallExpression) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Function + "(" + strings.Join(args, ", ") + ")"
}

// wrapOperand parenthesizes dice operands that are not simple atoms so the
// printed form parses back to the same tree.
func wrapOperand(n Node) string {
	switch n.(type) {
	case *NumberLiteral, *InfixExpression, *PrefixExpression:
		return n.String()
	default:
		return "(" + n.String() + ")"
	}
}
