package expr

import (
	"fmt"
	"strconv"
)

// MaxExpressionLength is the maximum allowed length for a single expression.
const MaxExpressionLength = 400

// Operator precedences, lowest to highest.
const (
	_ int = iota
	LOWEST
	COMPARE // > < >= <=
	SUM     // + -
	PRODUCT // * /
	DICE    // d r
	PREFIX  // -x
	CALL    // fn(x)
)

var precedences = map[TokenType]int{
	TokenGt:     COMPARE,
	TokenLt:     COMPARE,
	TokenGte:    COMPARE,
	TokenLte:    COMPARE,
	TokenPlus:   SUM,
	TokenMinus:  SUM,
	TokenStar:   PRODUCT,
	TokenSlash:  PRODUCT,
	TokenDice:   DICE,
	TokenReroll: DICE,
	TokenLParen: CALL,
}

type (
	prefixParseFn func() Node
	infixParseFn  func(Node) Node
)

// Parser is a Pratt parser over the token stream of a Lexer. Errors are
// collected rather than returned so a caller can report all of them.
type Parser struct {
	l      *Lexer
	errors []string

	cur  Token
	peek Token

	prefixParseFns map[TokenType]prefixParseFn
	infixParseFns  map[TokenType]infixParseFn
}

// Parse parses a complete expression. The returned node is nil whenever
// the error list is non-empty.
func Parse(input string) (Node, []string) {
	if len(input) > MaxExpressionLength {
		return nil, []string{fmt.Sprintf("expression exceeds maximum length of %d characters", MaxExpressionLength)}
	}

	p := NewParser(NewLexer(input))
	node := p.ParseExpression(LOWEST)

	if len(p.errors) == 0 && p.peek.Type != TokenEOF {
		p.errorf("unexpected token %q at position %d", p.peek.Literal, p.peek.Pos)
	}
	if len(p.errors) > 0 {
		return nil, p.errors
	}
	return node, nil
}

// NewParser creates a parser positioned on the first token of l.
func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixParseFns = map[TokenType]prefixParseFn{
		TokenNumber: p.parseNumberLiteral,
		TokenIdent:  p.parseIdentifier,
		TokenDice:   p.parsePrefixDice,
		TokenLParen: p.parseGroupedExpression,
		TokenMinus:  p.parsePrefixExpression,
	}
	p.infixParseFns = map[TokenType]infixParseFn{
		TokenPlus:   p.parseInfixExpression,
		TokenMinus:  p.parseInfixExpression,
		TokenStar:   p.parseInfixExpression,
		TokenSlash:  p.parseInfixExpression,
		TokenDice:   p.parseInfixDice,
		TokenReroll: p.parseReroll,
		TokenLParen: p.parseCallExpression,
	}

	// Read two tokens so cur and peek are both set.
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns the parse errors collected so far, in order.
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.cur.Type]; ok {
		return prec
	}
	return LOWEST
}

// expectPeek advances when the next token has type t and records an error otherwise.
func (p *Parser) expectPeek(t TokenType, want string) bool {
	if p.peek.Type == t {
		p.nextToken()
		return true
	}
	got := p.peek.Literal
	if p.peek.Type == TokenEOF {
		got = "end of expression"
	}
	p.errorf("expected '%s' but got %q", want, got)
	return false
}

// ParseExpression parses an expression whose operators bind tighter than
// precedence. The parser must be positioned on the expression's first token.
func (p *Parser) ParseExpression(precedence int) Node {
	prefix := p.prefixParseFns[p.cur.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.cur)
		return nil
	}
	left := prefix()

	for left != nil && p.peek.Type != TokenEOF && precedence < p.peekPrecedence() {
		if p.peek.Type.isComparison() {
			p.nextToken()
			left = p.parseComparison(left)
			continue
		}
		infix := p.infixParseFns[p.peek.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

func (p *Parser) noPrefixParseFnError(tok Token) {
	if tok.Type == TokenEOF {
		p.errorf("unexpected end of expression")
		return
	}
	p.errorf("cannot parse %q at position %d", tok.Literal, tok.Pos)
}

// operand advances past the operator in cur and parses its right-hand side.
func (p *Parser) operand(precedence int) Node {
	if p.peek.Type == TokenEOF {
		p.errorf("incomplete expression after operator %s", p.cur.Literal)
		return nil
	}
	p.nextToken()
	return p.ParseExpression(precedence)
}

func (p *Parser) parseNumberLiteral() Node {
	v, err := strconv.Atoi(p.cur.Literal)
	if err != nil {
		p.errorf("could not parse %q as integer", p.cur.Literal)
		return nil
	}
	return &NumberLiteral{Token: p.cur, Value: v}
}

func (p *Parser) parseIdentifier() Node {
	return &Identifier{Token: p.cur, Name: p.cur.Literal}
}

func (p *Parser) parseGroupedExpression() Node {
	if p.peek.Type == TokenEOF {
		p.errorf("expected ')' but got \"end of expression\"")
		return nil
	}
	p.nextToken()
	exp := p.ParseExpression(LOWEST)
	if exp == nil {
		return nil
	}
	if !p.expectPeek(TokenRParen, ")") {
		return nil
	}
	return exp
}

// parsePrefixExpression parses unary minus. The operand binds like a
// factor, so -2d6 negates the whole roll.
func (p *Parser) parsePrefixExpression() Node {
	tok := p.cur
	right := p.operand(PRODUCT)
	if right == nil {
		return nil
	}
	return &PrefixExpression{Token: tok, Operator: tok.Literal, Right: right}
}

func (p *Parser) parseInfixExpression(left Node) Node {
	tok := p.cur
	right := p.operand(p.curPrecedence())
	if right == nil {
		return nil
	}
	return &InfixExpression{Token: tok, Operator: tok.Literal, Left: left, Right: right}
}

// parsePrefixDice parses "dS", which rolls a single die.
func (p *Parser) parsePrefixDice() Node {
	tok := p.cur
	sides := p.operand(DICE)
	if sides == nil {
		return nil
	}
	one := &NumberLiteral{Token: Token{Type: TokenNumber, Literal: "1", Pos: tok.Pos}, Value: 1}
	return &DiceExpression{Token: tok, Count: one, Sides: sides}
}

func (p *Parser) parseInfixDice(count Node) Node {
	tok := p.cur
	sides := p.operand(DICE)
	if sides == nil {
		return nil
	}
	return &DiceExpression{Token: tok, Count: count, Sides: sides}
}

// parseReroll attaches an "r<cmp>" clause to the dice expression on its left.
func (p *Parser) parseReroll(left Node) Node {
	dice, ok := left.(*DiceExpression)
	if !ok {
		p.errorf("modifier '%s' can only apply to dice", p.cur.Literal)
		return nil
	}
	if dice.Reroll != nil {
		p.errorf("dice already have a reroll modifier")
		return nil
	}
	if !p.peek.Type.isComparison() {
		p.errorf("reroll '%s' needs a comparison like r<3", p.cur.Literal)
		return nil
	}
	p.nextToken()
	cmp := p.parseComparisonClause()
	if cmp == nil {
		return nil
	}
	dice.Reroll = cmp
	return dice
}

// parseComparison resolves the comparison ambiguity: directly after a dice
// expression with no success clause the comparison counts successes,
// anywhere else it is a boolean yielding 1 or 0.
func (p *Parser) parseComparison(left Node) Node {
	if dice, ok := left.(*DiceExpression); ok && dice.Success == nil {
		cmp := p.parseComparisonClause()
		if cmp == nil {
			return nil
		}
		dice.Success = cmp
		return dice
	}
	return p.parseInfixExpression(left)
}

// parseComparisonClause parses the number following the comparison in cur.
func (p *Parser) parseComparisonClause() *Comparison {
	tok := p.cur
	if p.peek.Type == TokenMinus {
		p.nextToken()
		if p.peek.Type == TokenNumber {
			p.nextToken()
			v, err := strconv.Atoi(p.cur.Literal)
			if err != nil {
				p.errorf("could not parse %q as integer", p.cur.Literal)
				return nil
			}
			return &Comparison{Token: tok, Operator: tok.Literal, Value: -v}
		}
	}
	if p.peek.Type != TokenNumber {
		p.errorf("comparison must be against a number")
		return nil
	}
	p.nextToken()
	if p.peek.Type == TokenDice {
		p.errorf("comparison must be against a number")
		return nil
	}
	v, err := strconv.Atoi(p.cur.Literal)
	if err != nil {
		p.errorf("could not parse %q as integer", p.cur.Literal)
		return nil
	}
	return &Comparison{Token: tok, Operator: tok.Literal, Value: v}
}

func (p *Parser) parseCallExpression(fn Node) Node {
	ident, ok := fn.(*Identifier)
	if !ok {
		p.errorf("cannot call %s at position %d", fn.String(), p.cur.Pos)
		return nil
	}
	call := &CallExpression{Token: p.cur, Function: ident.Name}

	if p.peek.Type == TokenRParen {
		p.nextToken()
		return call
	}
	for {
		if p.peek.Type == TokenEOF {
			p.errorf("expected ')' but got \"end of expression\"")
			return nil
		}
		p.nextToken()
		arg := p.ParseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if p.peek.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(TokenRParen, ")") {
		return nil
	}
	return call
}
