package lexer

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	// EOF represents the end of input
	EOF TokenType = iota
	// ILLEGAL represents a character the lexer does not understand
	ILLEGAL
	// KEYWORD represents a keyword token (AND, NULL)
	KEYWORD
	// IDENTIFIER represents a column name
	IDENTIFIER
	// NUMBER represents an integer literal
	NUMBER
	// STRING represents a quoted string literal, without its quotes
	STRING
	// OPERATOR represents a comparison or assignment operator
	OPERATOR
	// COMMA represents a comma
	COMMA
)

var tokenNames = map[TokenType]string{
	EOF:        "EOF",
	ILLEGAL:    "ILLEGAL",
	KEYWORD:    "KEYWORD",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	OPERATOR:   "OPERATOR",
	COMMA:      "COMMA",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset in the input
}

// Lexer represents a lexical analyzer
type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
}

// New creates a new lexer with the given input
func New(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()
	tok.Pos = l.position

	switch l.ch {
	case ',':
		tok.Type, tok.Literal = COMMA, ","
	case '=', '>', '<':
		tok.Type = OPERATOR
		if l.peekChar() == '=' {
			tok.Literal = string(l.ch) + "="
			l.readChar()
		} else {
			tok.Literal = string(l.ch)
		}
	case 0:
		tok.Type, tok.Literal = EOF, ""
		return tok
	case '"', '\'':
		quote := l.ch
		l.readChar()
		literal, ok := l.readString(quote)
		if !ok {
			tok.Type, tok.Literal = ILLEGAL, string(quote)+literal
			return tok
		}
		tok.Type, tok.Literal = STRING, literal
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			upperLiteral := strings.ToUpper(tok.Literal)
			if isKeyword(upperLiteral) {
				tok.Type = KEYWORD
				tok.Literal = upperLiteral
			} else {
				tok.Type = IDENTIFIER
			}
			return tok
		} else if isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())) {
			tok.Type = NUMBER
			tok.Literal = l.readNumber()
			return tok
		}
		tok.Type, tok.Literal = ILLEGAL, string(l.ch)
	}

	l.readChar()
	return tok
}

// Tokens returns every token up to and including EOF.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() string {
	position := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readString reads up to the closing quote. A backslash escapes the quote
// character. ok is false when the input ends first.
func (l *Lexer) readString(quote byte) (string, bool) {
	var sb strings.Builder
	for {
		switch l.ch {
		case 0:
			return sb.String(), false
		case quote:
			return sb.String(), true
		case '\\':
			if l.peekChar() == quote || l.peekChar() == '\\' {
				l.readChar()
			}
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}

func isKeyword(word string) bool {
	keywords := []string{"AND", "NULL"}
	for _, keyword := range keywords {
		if word == keyword {
			return true
		}
	}
	return false
}

func (t Token) String() string {
	return fmt.Sprintf("Token{Type: %v, Literal: %q}", t.Type, t.Literal)
}
