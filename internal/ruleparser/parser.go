// SPDX-License-Identifier: Apache-2.0

package ruleparser

import (
	"fmt"

	"github.com/cfgcenter/cfgcenter/internal/model"
)

// Parser implements model.ConditionParser with a hand-written
// recursive-descent parser over the rule expression grammar:
//
//	Expr       := OrExpr
//	OrExpr     := AndExpr ( "||" AndExpr )*
//	AndExpr    := UnaryExpr ( "&&" UnaryExpr )*
//	UnaryExpr  := "!" UnaryExpr | Atom
//	Atom       := "(" Expr ")" | "exist" "(" Ident ")" | Ident CmpOp Literal
//	CmpOp      := "==" | "!=" | ">" | ">=" | "<" | "<=" | "in"
//	Literal    := Int | Float | String | "true" | "false" | "[" Literal ("," Literal)* "]"
type Parser struct{}

// New returns a ready-to-use Parser. It holds no state and is safe for
// concurrent use.
func New() *Parser { return &Parser{} }

// Parse implements model.ConditionParser. consumed is the byte offset
// immediately after the last token the parser accepted; callers should
// treat consumed < len(expr) as trailing garbage.
func (Parser) Parse(expr string) (model.Condition, int, error) {
	p := &parserState{lex: newLexer(expr), src: expr}
	if err := p.advance(); err != nil {
		return model.Condition{}, 0, err
	}
	cond, err := p.parseOr()
	if err != nil {
		return model.Condition{}, 0, err
	}
	// lastEnd is the offset right after the last accepted token, captured
	// before the lexer skipped ahead to find cur -- if that lookahead hit
	// EOF, everything in between was whitespace and counts as consumed.
	consumed := p.lastEnd
	if p.cur.kind == tokEOF {
		consumed = len(expr)
	}
	return cond, consumed, nil
}

type parserState struct {
	lex     *lexer
	src     string
	cur     token
	lastEnd int
}

func (p *parserState) advance() error {
	p.lastEnd = p.lex.pos
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parserState) expect(k tokenKind, what string) error {
	if p.cur.kind != k {
		return fmt.Errorf("ruleparser: byte %d: expected %s", p.cur.pos, what)
	}
	return p.advance()
}

func (p *parserState) parseOr() (model.Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return model.Condition{}, err
	}
	children := []model.Condition{left}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return model.Condition{}, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return model.Or(children...), nil
}

func (p *parserState) parseAnd() (model.Condition, error) {
	left, err := p.parseUnary()
	if err != nil {
		return model.Condition{}, err
	}
	children := []model.Condition{left}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return model.Condition{}, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return model.And(children...), nil
}

func (p *parserState) parseUnary() (model.Condition, error) {
	if p.cur.kind == tokNot {
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return model.Condition{}, err
		}
		return model.Not(operand), nil
	}
	return p.parseAtom()
}

func (p *parserState) parseAtom() (model.Condition, error) {
	switch p.cur.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return model.Condition{}, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return model.Condition{}, err
		}
		return inner, nil
	case tokExist:
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		if err := p.expect(tokLParen, "'(' after exist"); err != nil {
			return model.Condition{}, err
		}
		if p.cur.kind != tokIdent {
			return model.Condition{}, fmt.Errorf("ruleparser: byte %d: expected identifier inside exist(...)", p.cur.pos)
		}
		ident := p.cur.text
		if err := p.advance(); err != nil {
			return model.Condition{}, err
		}
		if err := p.expect(tokRParen, "')' after exist identifier"); err != nil {
			return model.Condition{}, err
		}
		return model.LeafExist(ident), nil
	case tokIdent:
		return p.parseComparison()
	default:
		return model.Condition{}, fmt.Errorf("ruleparser: byte %d: expected '(', 'exist', '!' or identifier", p.cur.pos)
	}
}

func (p *parserState) parseComparison() (model.Condition, error) {
	ident := p.cur.text
	if err := p.advance(); err != nil {
		return model.Condition{}, err
	}
	op, err := p.leafOperator()
	if err != nil {
		return model.Condition{}, err
	}
	if err := p.advance(); err != nil {
		return model.Condition{}, err
	}
	rhs, err := p.parseLiteral()
	if err != nil {
		return model.Condition{}, err
	}
	return model.Leaf(ident, op, rhs), nil
}

func (p *parserState) leafOperator() (model.LeafOperator, error) {
	switch p.cur.kind {
	case tokEq:
		return model.OpEq, nil
	case tokNe:
		return model.OpNe, nil
	case tokGt:
		return model.OpGt, nil
	case tokGte:
		return model.OpGte, nil
	case tokLt:
		return model.OpLt, nil
	case tokLte:
		return model.OpLte, nil
	case tokIn:
		return model.OpInList, nil
	default:
		return 0, fmt.Errorf("ruleparser: byte %d: expected a comparison operator", p.cur.pos)
	}
}

func (p *parserState) parseLiteral() (model.Value, error) {
	switch p.cur.kind {
	case tokInt:
		v := model.Int(p.cur.ival)
		return v, p.advance()
	case tokFloat:
		v := model.Float(p.cur.fval)
		return v, p.advance()
	case tokString:
		v := model.Str(p.cur.text)
		return v, p.advance()
	case tokTrue:
		if err := p.advance(); err != nil {
			return model.Value{}, err
		}
		return model.Bool(true), nil
	case tokFalse:
		if err := p.advance(); err != nil {
			return model.Value{}, err
		}
		return model.Bool(false), nil
	case tokLBracket:
		return p.parseListLiteral()
	default:
		return model.Value{}, fmt.Errorf("ruleparser: byte %d: expected a literal value", p.cur.pos)
	}
}

func (p *parserState) parseListLiteral() (model.Value, error) {
	if err := p.advance(); err != nil { // consume '['
		return model.Value{}, err
	}
	var items []model.Value
	if p.cur.kind != tokRBracket {
		for {
			item, err := p.parseLiteral()
			if err != nil {
				return model.Value{}, err
			}
			items = append(items, item)
			if p.cur.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil { // consume ','
				return model.Value{}, err
			}
		}
	}
	if err := p.expect(tokRBracket, "']'"); err != nil {
		return model.Value{}, err
	}
	return model.List(items...), nil
}
