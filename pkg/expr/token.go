// Package expr implements the dice expression language: a lexer, a Pratt
// parser producing a closed set of AST nodes, and an evaluator that rolls
// dice, applies reroll and success modifiers, and resolves identifiers
// against a variable scope.
package expr

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenIllegal TokenType = iota // unrecognized character
	TokenEOF                      // end of expression

	// Literals
	TokenNumber // integer literal
	TokenIdent  // identifier, may contain '.' for scope.property

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /

	// Dice
	TokenDice   // d
	TokenReroll // r

	// Comparison
	TokenGt  // >
	TokenLt  // <
	TokenGte // >=
	TokenLte // <=

	// Grouping
	TokenLParen // (
	TokenRParen // )
	TokenComma  // ,
)

// Token represents a single lexical token.
type Token struct {
	Type    TokenType
	Literal string // raw source text
	Pos     int    // byte offset in source
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenIllegal:
		return "ILLEGAL"
	case TokenEOF:
		return "EOF"
	case TokenNumber:
		return "NUMBER"
	case TokenIdent:
		return "IDENT"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenDice:
		return "DICE"
	case TokenReroll:
		return "REROLL"
	case TokenGt:
		return "GT"
	case TokenLt:
		return "LT"
	case TokenGte:
		return "GTE"
	case TokenLte:
		return "LTE"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenComma:
		return "COMMA"
	default:
		return "UNKNOWN"
	}
}

// isComparison reports whether the token type is one of > < >= <=.
func (t TokenType) isComparison() bool {
	switch t {
	case TokenGt, TokenLt, TokenGte, TokenLte:
		return true
	}
	return false
}
