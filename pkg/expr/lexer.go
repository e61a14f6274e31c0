package expr

// Lexer tokenizes a dice expression string.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize scans the entire input and returns all tokens, ending with EOF.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

// NextToken returns the next token from the input. Unrecognized characters
// are returned as TokenIllegal; the parser reports them.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	ch := l.input[l.pos]

	if isDigit(ch) {
		return l.readNumber()
	}

	// 'd' and 'r' are operators unless they start a longer identifier such
	// as "dex" or "rank".
	if (ch == 'd' || ch == 'D' || ch == 'r' || ch == 'R') && !l.startsWord(l.pos+1) {
		typ := TokenDice
		if ch == 'r' || ch == 'R' {
			typ = TokenReroll
		}
		l.pos++
		return Token{Type: typ, Literal: string(ch), Pos: l.pos - 1}
	}

	if isIdentStart(ch) {
		return l.readIdentifier()
	}

	switch ch {
	case '>', '<':
		typ := TokenGt
		if ch == '<' {
			typ = TokenLt
		}
		if l.peek() == '=' {
			if typ == TokenGt {
				typ = TokenGte
			} else {
				typ = TokenLte
			}
			l.pos += 2
			return Token{Type: typ, Literal: l.input[l.pos-2 : l.pos], Pos: l.pos - 2}
		}
		l.pos++
		return Token{Type: typ, Literal: string(ch), Pos: l.pos - 1}
	}

	typ := TokenIllegal
	switch ch {
	case '+':
		typ = TokenPlus
	case '-':
		typ = TokenMinus
	case '*':
		typ = TokenStar
	case '/':
		typ = TokenSlash
	case '(':
		typ = TokenLParen
	case ')':
		typ = TokenRParen
	case ',':
		typ = TokenComma
	}
	l.pos++
	return Token{Type: typ, Literal: string(ch), Pos: l.pos - 1}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos+1 < len(l.input) {
		return l.input[l.pos+1]
	}
	return 0
}

// startsWord reports whether the byte at pos continues an identifier that
// began one byte earlier. Digits are excluded so that "d20" stays dice.
func (l *Lexer) startsWord(pos int) bool {
	if pos >= len(l.input) {
		return false
	}
	ch := l.input[pos]
	return isIdentStart(ch) || ch == '.'
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenIdent, Literal: l.input[start:l.pos], Pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '.'
}
