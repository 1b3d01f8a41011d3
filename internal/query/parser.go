package query

import (
	"strconv"
	"strings"
)

var aggFuncs = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// parser is a recursive-descent parser over a one-token lookahead
// buffer fed by the lexer.
type parser struct {
	lex     *lexer
	current token
}

func newParser(input string) (*parser, error) {
	p := &parser{lex: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *parser) isKeyword(kw string) bool {
	return p.current.kind == tokIdent && strings.EqualFold(p.current.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return &ParseError{p.current.pos, "expected " + kw}
	}
	return p.advance()
}

func (p *parser) expectSymbol(sym string) error {
	if p.current.kind != tokSymbol || p.current.text != sym {
		return &ParseError{p.current.pos, "expected " + sym}
	}
	return p.advance()
}

func (p *parser) expectIdent() (string, error) {
	if p.current.kind != tokIdent {
		return "", &ParseError{p.current.pos, "expected identifier"}
	}
	text := p.current.text
	return text, p.advance()
}

// Parse parses a single SELECT statement into a Query AST. Keywords
// are matched case-insensitively; string literals may be single- or
// double-quoted.
func Parse(sql string) (*Query, error) {
	p, err := newParser(sql)
	if err != nil {
		return nil, err
	}
	return p.parseQuery()
}

func (p *parser) parseQuery() (*Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	q := &Query{}
	if err := p.parseCols(q); err != nil {
		return nil, err
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	q.Table = table

	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.parseConds(q); err != nil {
			return nil, err
		}
	}

	if p.isKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if err := p.parseOrderBy(q); err != nil {
			return nil, err
		}
	}

	if p.isKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.kind != tokNumber {
			return nil, &ParseError{p.current.pos, "expected number after LIMIT"}
		}
		n, err := strconv.Atoi(p.current.text)
		if err != nil {
			return nil, &ParseError{p.current.pos, "invalid LIMIT value"}
		}
		q.Limit = &n
		if err := p.advance(); err != nil {
			return nil, err
		}

		if p.isKeyword("OFFSET") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.current.kind != tokNumber {
				return nil, &ParseError{p.current.pos, "expected number after OFFSET"}
			}
			m, err := strconv.Atoi(p.current.text)
			if err != nil {
				return nil, &ParseError{p.current.pos, "invalid OFFSET value"}
			}
			q.Offset = &m
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.current.kind != tokEOF {
		return nil, &ParseError{p.current.pos, "unexpected trailing input"}
	}
	return q, nil
}

func (p *parser) parseCols(q *Query) error {
	if p.current.kind == tokSymbol && p.current.text == "*" {
		q.Columns = []string{"*"}
		return p.advance()
	}

	if p.current.kind == tokIdent && aggFuncs[strings.ToUpper(p.current.text)] {
		fn := strings.ToUpper(p.current.text)
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.expectSymbol("("); err != nil {
			return err
		}
		var col string
		if p.current.kind == tokSymbol && p.current.text == "*" {
			col = "*"
			if err := p.advance(); err != nil {
				return err
			}
		} else {
			ident, err := p.expectIdent()
			if err != nil {
				return err
			}
			col = ident
		}
		if err := p.expectSymbol(")"); err != nil {
			return err
		}
		q.Agg = &Aggregate{Func: fn, Column: col}
		return nil
	}

	for {
		ident, err := p.expectIdent()
		if err != nil {
			return err
		}
		q.Columns = append(q.Columns, ident)
		if p.current.kind == tokSymbol && p.current.text == "," {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return nil
}

func (p *parser) parseConds(q *Query) error {
	for {
		cond, err := p.parseCond()
		if err != nil {
			return err
		}
		q.Where = append(q.Where, cond)

		if p.isKeyword("AND") {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return nil
}

func (p *parser) parseCond() (Cond, error) {
	col, err := p.expectIdent()
	if err != nil {
		return Cond{}, err
	}

	if p.isKeyword("LIKE") {
		if err := p.advance(); err != nil {
			return Cond{}, err
		}
		if p.current.kind != tokString {
			return Cond{}, &ParseError{p.current.pos, "expected string after LIKE"}
		}
		val := p.current.text
		return Cond{Column: col, Op: OpLike, Value: val}, p.advance()
	}

	if p.isKeyword("IN") {
		if err := p.advance(); err != nil {
			return Cond{}, err
		}
		return p.parseIn(col)
	}

	op, err := p.parseOp()
	if err != nil {
		return Cond{}, err
	}
	val, err := p.parseLiteral()
	if err != nil {
		return Cond{}, err
	}
	return Cond{Column: col, Op: op, Value: val}, nil
}

func (p *parser) parseOp() (Op, error) {
	if p.current.kind != tokSymbol {
		return "", &ParseError{p.current.pos, "expected comparison operator"}
	}
	var op Op
	switch p.current.text {
	case "=":
		op = OpEq
	case "!=":
		op = OpNe
	case "<":
		op = OpLt
	case ">":
		op = OpGt
	case "<=":
		op = OpLe
	case ">=":
		op = OpGe
	default:
		return "", &ParseError{p.current.pos, "unknown operator " + p.current.text}
	}
	return op, p.advance()
}

func (p *parser) parseLiteral() (string, error) {
	switch p.current.kind {
	case tokString, tokNumber, tokIdent:
		v := p.current.text
		return v, p.advance()
	default:
		return "", &ParseError{p.current.pos, "expected literal value"}
	}
}

func (p *parser) parseIn(col string) (Cond, error) {
	if err := p.expectSymbol("("); err != nil {
		return Cond{}, err
	}

	if p.isKeyword("SELECT") {
		sub, err := p.parseQuery0()
		if err != nil {
			return Cond{}, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return Cond{}, err
		}
		return Cond{Column: col, Op: OpIn, SubQuery: sub}, nil
	}

	var values []string
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return Cond{}, err
		}
		values = append(values, v)
		if p.current.kind == tokSymbol && p.current.text == "," {
			if err := p.advance(); err != nil {
				return Cond{}, err
			}
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return Cond{}, err
	}
	return Cond{Column: col, Op: OpIn, ValueList: values}, nil
}

// parseQuery0 parses a nested SELECT without requiring EOF at the end
// (the enclosing IN(...) still needs its closing paren consumed by the
// caller).
func (p *parser) parseQuery0() (*Query, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	q := &Query{}
	if err := p.parseCols(q); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	q.Table = table
	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.parseConds(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (p *parser) parseOrderBy(q *Query) error {
	for {
		col, err := p.expectIdent()
		if err != nil {
			return err
		}
		term := OrderTerm{Column: col}
		if p.isKeyword("ASC") {
			if err := p.advance(); err != nil {
				return err
			}
		} else if p.isKeyword("DESC") {
			term.Desc = true
			if err := p.advance(); err != nil {
				return err
			}
		}
		q.OrderBy = append(q.OrderBy, term)

		if p.current.kind == tokSymbol && p.current.text == "," {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return nil
}
