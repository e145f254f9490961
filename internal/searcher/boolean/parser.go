package boolean

import "fmt"

// MaxDepth bounds parenthesis and NOT nesting.
const MaxDepth = 256

type parser struct {
	tokens []token
	pos    int
	depth  int
}

// Parse builds the expression tree for query. Adjacent operands without an
// operator, a missing operand, unbalanced parentheses and an empty query are
// all reported as *ParseError.
func Parse(query string) (Node, error) {
	p := &parser{tokens: lex(query)}
	if p.peek().kind == tokEOF {
		return nil, &ParseError{Pos: 0, Msg: "empty query"}
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, &ParseError{Pos: tok.pos, Msg: "unbalanced ')'"}
		}
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("expected an operator, got %s %q", tok.kind, tok.text)}
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind != tokNot {
		return p.parsePrimary()
	}
	tok := p.next()
	if err := p.enter(tok); err != nil {
		return nil, err
	}
	defer p.leave()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Not{Operand: operand}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokWord:
		return &Term{Word: tok.text}, nil
	case tokLParen:
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		switch closing.kind {
		case tokRParen:
		case tokEOF:
			return nil, &ParseError{Pos: tok.pos, Msg: "unbalanced '('"}
		default:
			return nil, &ParseError{Pos: closing.pos, Msg: fmt.Sprintf("expected ')', got %s", closing.kind)}
		}
		return &Group{Inner: inner}, nil
	case tokEOF:
		return nil, &ParseError{Pos: tok.pos, Msg: "expected a term, got end of query"}
	default:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("expected a term, got %s", tok.kind)}
	}
}

func (p *parser) enter(tok token) error {
	p.depth++
	if p.depth > MaxDepth {
		return &ParseError{Pos: tok.pos, Msg: "query nested too deeply"}
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}
