package extract

import "strings"

// tokenType classifies a lexed token.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenQuotedIdent
	tokenString
	tokenNumber
	tokenSymbol
	tokenStageRef // @stage_name references
)

// token is one lexed unit of the DDL text.
type token struct {
	typ     tokenType
	literal string
	line    int
}

// lexer tokenizes DDL text. It is deliberately shallow: it only needs to
// distinguish identifiers, literals, and punctuation well enough to find
// object references, not to build an AST.
type lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number (1-based)
}

func newLexer(input string) *lexer {
	l := &lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL = EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	if l.ch == '\n' {
		l.line++
	}
}

// peekChar returns the next character without advancing.
func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// next returns the next token. Comments and whitespace are skipped.
func (l *lexer) next() (token, error) {
	l.skipWhitespaceAndComments()

	tok := token{line: l.line}

	switch {
	case l.ch == 0:
		tok.typ = tokenEOF
		return tok, nil

	case l.ch == '"':
		lit, err := l.readQuotedIdent()
		if err != nil {
			return tok, err
		}
		tok.typ = tokenQuotedIdent
		tok.literal = lit
		return tok, nil

	case l.ch == '\'':
		lit, err := l.readString()
		if err != nil {
			return tok, err
		}
		tok.typ = tokenString
		tok.literal = lit
		return tok, nil

	case l.ch == '$' && l.peekChar() == '$':
		lit, err := l.readDollarQuoted()
		if err != nil {
			return tok, err
		}
		tok.typ = tokenString
		tok.literal = lit
		return tok, nil

	case l.ch == '@':
		l.readChar()
		start := l.pos
		for isIdentChar(l.ch) || l.ch == '.' || l.ch == '/' {
			l.readChar()
		}
		tok.typ = tokenStageRef
		tok.literal = l.input[start:l.pos]
		return tok, nil

	case isDigit(l.ch):
		start := l.pos
		for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' {
			l.readChar()
		}
		tok.typ = tokenNumber
		tok.literal = l.input[start:l.pos]
		return tok, nil

	case isIdentStart(l.ch):
		start := l.pos
		for isIdentChar(l.ch) {
			l.readChar()
		}
		tok.typ = tokenIdent
		tok.literal = l.input[start:l.pos]
		return tok, nil

	default:
		tok.typ = tokenSymbol
		tok.literal = string(l.ch)
		l.readChar()
		return tok, nil
	}
}

// readQuotedIdent reads a double-quoted identifier. Embedded "" is an
// escaped quote. Returns the identifier without the surrounding quotes.
func (l *lexer) readQuotedIdent() (string, error) {
	startLine := l.line
	l.readChar() // consume opening quote
	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return "", &ParseError{Message: "unterminated quoted identifier", Line: startLine}
		case '"':
			if l.peekChar() == '"' {
				b.WriteByte('"')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // consume closing quote
			return b.String(), nil
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readString reads a single-quoted string literal. Embedded '' and \'
// are escapes.
func (l *lexer) readString() (string, error) {
	startLine := l.line
	l.readChar() // consume opening quote
	var b strings.Builder
	for {
		switch l.ch {
		case 0:
			return "", &ParseError{Message: "unterminated string literal", Line: startLine}
		case '\\':
			b.WriteByte(l.ch)
			l.readChar()
			if l.ch != 0 {
				b.WriteByte(l.ch)
				l.readChar()
			}
		case '\'':
			if l.peekChar() == '\'' {
				b.WriteByte('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return b.String(), nil
		default:
			b.WriteByte(l.ch)
			l.readChar()
		}
	}
}

// readDollarQuoted reads a $$-delimited body (UDF and procedure
// definitions). The body is returned verbatim.
func (l *lexer) readDollarQuoted() (string, error) {
	startLine := l.line
	l.readChar() // first $
	l.readChar() // second $
	start := l.pos
	for {
		if l.ch == 0 {
			return "", &ParseError{Message: "unterminated $$ body", Line: startLine}
		}
		if l.ch == '$' && l.peekChar() == '$' {
			body := l.input[start:l.pos]
			l.readChar()
			l.readChar()
			return body, nil
		}
		l.readChar()
	}
}

// skipWhitespaceAndComments advances past whitespace, -- line comments,
// and /* */ block comments.
func (l *lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for !(l.ch == '*' && l.peekChar() == '/') && l.ch != 0 {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
