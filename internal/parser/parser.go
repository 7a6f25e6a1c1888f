package parser

import (
	"fmt"
	"strconv"

	"github.com/zakazai/enrichdb/internal/lexer"
	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

// SyntaxError reports malformed predicate or assignment text
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// Parser represents a parser over the predicate and assignment language
type Parser struct {
	l   *lexer.Lexer
	tok lexer.Token
}

// New creates a new parser with the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	return p
}

func (p *Parser) next() {
	p.tok = p.l.NextToken()
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Pos: p.tok.Pos, Msg: fmt.Sprintf(format, args...)}
}

// ParseWhere parses `column op value (AND column op value)*` into a
// predicate. Empty input yields an empty predicate that matches every row.
func ParseWhere(input string) (storage.Predicate, error) {
	return New(lexer.New(input)).ParseWhere()
}

// ParseAssignments parses `column = value (, column = value)*` into a
// change set.
func ParseAssignments(input string) (map[string]interface{}, error) {
	return New(lexer.New(input)).ParseAssignments()
}

func (p *Parser) ParseWhere() (storage.Predicate, error) {
	where := storage.Predicate{}
	if p.tok.Type == lexer.EOF {
		return where, nil
	}

	for {
		colPos := p.tok.Pos
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		if _, dup := where[col]; dup {
			return nil, &SyntaxError{Pos: colPos, Msg: fmt.Sprintf("column %s appears more than once", col)}
		}

		if p.tok.Type != lexer.OPERATOR {
			return nil, p.errorf("expected operator, got %q", p.tok.Literal)
		}
		op, err := storage.ParseOperator(p.tok.Literal)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		p.next()

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		where[col] = storage.Clause{Op: op, Operand: val}

		switch {
		case p.tok.Type == lexer.EOF:
			return where, nil
		case p.tok.Type == lexer.KEYWORD && p.tok.Literal == "AND":
			p.next()
		default:
			return nil, p.errorf("expected AND or end of input, got %q", p.tok.Literal)
		}
	}
}

func (p *Parser) ParseAssignments() (map[string]interface{}, error) {
	set := make(map[string]interface{})

	for {
		colPos := p.tok.Pos
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		if _, dup := set[col]; dup {
			return nil, &SyntaxError{Pos: colPos, Msg: fmt.Sprintf("column %s assigned more than once", col)}
		}

		if p.tok.Type != lexer.OPERATOR || p.tok.Literal != "=" {
			return nil, p.errorf("expected =, got %q", p.tok.Literal)
		}
		p.next()

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		set[col] = val

		switch p.tok.Type {
		case lexer.EOF:
			return set, nil
		case lexer.COMMA:
			p.next()
		default:
			return nil, p.errorf("expected comma or end of input, got %q", p.tok.Literal)
		}
	}
}

// parseColumn accepts an identifier naming a schema column. Unknown names
// are left for the store to reject so callers see the store's error type.
func (p *Parser) parseColumn() (string, error) {
	if p.tok.Type != lexer.IDENTIFIER {
		return "", p.errorf("expected column name, got %q", p.tok.Literal)
	}
	col := p.tok.Literal
	p.next()
	return col, nil
}

func (p *Parser) parseValue() (interface{}, error) {
	tok := p.tok
	switch {
	case tok.Type == lexer.NUMBER:
		val, err := strconv.Atoi(tok.Literal)
		if err != nil {
			return nil, p.errorf("invalid integer: %s", tok.Literal)
		}
		p.next()
		return val, nil
	case tok.Type == lexer.STRING:
		p.next()
		return tok.Literal, nil
	case tok.Type == lexer.KEYWORD && tok.Literal == "NULL":
		p.next()
		return nil, nil
	case tok.Type == lexer.IDENTIFIER:
		if _, ok := types.LookupColumn(tok.Literal); ok {
			return nil, p.errorf("column %s cannot be used as a value", tok.Literal)
		}
		return nil, p.errorf("unquoted string %s", tok.Literal)
	case tok.Type == lexer.EOF:
		return nil, p.errorf("expected value, got end of input")
	}
	return nil, p.errorf("expected value, got %q", tok.Literal)
}
