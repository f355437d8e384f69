package categories

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/atomstore/internal/common"
)

// Parse turns a textual category query into an Expression.
//
// Grammar:
//
//	expr    := andExpr ( "OR" andExpr )*
//	andExpr := operand ( "AND" operand )*
//	operand := term | "[" expr "]"
//	term    := "(" scheme ")" termtoken
//
// Operators are case-insensitive. Schemes may contain any character except a
// closing parenthesis, so URN schemes like "urn:acme.colors" need no
// escaping. Example:
//
//	(urn:hue)red AND [(urn:size)big OR (urn:size)small]
//
// Malformed input fails with common.ErrCategoryQueryParse before any store
// interaction takes place.
func Parse(query string) (Expression, error) {
	p := &parser{input: query}
	p.next()
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q after expression", p.tok.text)
	}
	return expr, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokTerm
	tokAnd
	tokOr
	tokOpenBracket
	tokCloseBracket
)

type token struct {
	kind   tokenKind
	text   string
	scheme string
	term   string
}

type parser struct {
	input string
	pos   int
	tok   token
	err   error
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s (at offset %d)", common.ErrCategoryQueryParse, fmt.Sprintf(format, args...), p.pos)
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
	if p.pos >= len(p.input) {
		p.tok = token{kind: tokEOF}
		return
	}
	switch c := p.input[p.pos]; c {
	case '[':
		p.pos++
		p.tok = token{kind: tokOpenBracket, text: "["}
	case ']':
		p.pos++
		p.tok = token{kind: tokCloseBracket, text: "]"}
	case '(':
		end := strings.IndexByte(p.input[p.pos:], ')')
		if end < 0 {
			p.err = p.errorf("unterminated scheme")
			return
		}
		scheme := p.input[p.pos+1 : p.pos+end]
		p.pos += end + 1
		start := p.pos
		for p.pos < len(p.input) && !unicode.IsSpace(rune(p.input[p.pos])) && p.input[p.pos] != ']' {
			p.pos++
		}
		term := p.input[start:p.pos]
		if scheme == "" || term == "" {
			p.err = p.errorf("category needs both scheme and term")
			return
		}
		p.tok = token{kind: tokTerm, text: "(" + scheme + ")" + term, scheme: scheme, term: term}
	default:
		start := p.pos
		for p.pos < len(p.input) && !unicode.IsSpace(rune(p.input[p.pos])) && p.input[p.pos] != ']' && p.input[p.pos] != '[' {
			p.pos++
		}
		word := p.input[start:p.pos]
		switch strings.ToUpper(word) {
		case "AND":
			p.tok = token{kind: tokAnd, text: word}
		case "OR":
			p.tok = token{kind: tokOr, text: word}
		default:
			p.err = p.errorf("unexpected token %q", word)
		}
	}
}

func (p *parser) parseExpr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	ops := []Expression{left}
	for p.err == nil && p.tok.kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		ops = append(ops, right)
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(ops) == 1 {
		return ops[0], nil
	}
	return NewOr(ops...), nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	ops := []Expression{left}
	for p.err == nil && p.tok.kind == tokAnd {
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		ops = append(ops, right)
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(ops) == 1 {
		return ops[0], nil
	}
	return NewAnd(ops...), nil
}

func (p *parser) parseOperand() (Expression, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokTerm:
		t := NewTerm(p.tok.scheme, p.tok.term)
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		return t, nil
	case tokOpenBracket:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokCloseBracket {
			return nil, p.errorf("missing closing bracket")
		}
		p.next()
		if p.err != nil {
			return nil, p.err
		}
		return inner, nil
	case tokEOF:
		return nil, p.errorf("unexpected end of query")
	default:
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
}
