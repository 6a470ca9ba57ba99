// Package expr implements the boolean-expression layer that composes
// individual checks into vulnerabilities. Expressions are strings over
// variable identifiers, `&`, `|`, and parentheses; a variable is true when
// its slot holds a nonzero field element.
package expr

import (
	"fmt"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

// MaxVarID bounds the 14-bit variable identifier space.
const MaxVarID = 1<<14 - 1

// Slots is the engine's variable table: an indexed store of optional field
// elements. Absent and zero are both falsy. The table is owned by the
// single scorer goroutine and is not synchronized.
type Slots struct {
	p    *field.Prime
	vals map[uint16]field.Element
}

// NewSlots builds an empty table over p.
func NewSlots(p *field.Prime) *Slots {
	return &Slots{p: p, vals: make(map[uint16]field.Element)}
}

// Set writes v into slot id.
func (s *Slots) Set(id uint16, v field.Element) { s.vals[id] = v }

// Clear writes zero into slot id, the unset form a non-setter descriptor
// produces.
func (s *Slots) Clear(id uint16) { s.vals[id] = s.p.Zero() }

// Get returns the slot's value and whether it is truthy.
func (s *Slots) Get(id uint16) (field.Element, bool) {
	v, ok := s.vals[id]
	if !ok || v.IsZero() {
		return s.p.Zero(), false
	}
	return v, true
}

// Truthy reports whether the slot holds a nonzero element.
func (s *Slots) Truthy(id uint16) bool {
	_, ok := s.Get(id)
	return ok
}

// Expr is a parsed boolean expression.
type Expr struct {
	root   exprNode
	leaves []uint16
}

type exprNode interface {
	eval(truthy func(uint16) bool) bool
}

type andNode struct{ terms []exprNode }
type orNode struct{ terms []exprNode }
type leafNode struct{ id uint16 }

func (n andNode) eval(truthy func(uint16) bool) bool {
	for _, t := range n.terms {
		if !t.eval(truthy) {
			return false
		}
	}
	return true
}

func (n orNode) eval(truthy func(uint16) bool) bool {
	for _, t := range n.terms {
		if t.eval(truthy) {
			return true
		}
	}
	return false
}

func (n leafNode) eval(truthy func(uint16) bool) bool { return truthy(n.id) }

// Parse compiles the expression string. Identifiers are decimal variable
// ids; `&` binds tighter than `|`.
func Parse(s string) (*Expr, error) {
	p := &exprParser{src: s}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("expr %q: trailing input at offset %d", s, p.pos)
	}
	return &Expr{root: root, leaves: p.leaves}, nil
}

// Eval evaluates the expression against a truth assignment.
func (e *Expr) Eval(truthy func(id uint16) bool) bool { return e.root.eval(truthy) }

// EvalSlots evaluates against live slot state.
func (e *Expr) EvalSlots(s *Slots) bool { return e.Eval(s.Truthy) }

// Leaves returns the distinct variable identifiers referenced by the
// expression, in first-appearance order.
func (e *Expr) Leaves() []uint16 { return e.leaves }

// TrueLeafProduct computes the product in F_p of the values of every leaf
// slot that is currently truthy. The second return is false when the
// expression itself evaluates false, in which case no product exists and
// the caller retracts instead of unlocking.
func (e *Expr) TrueLeafProduct(s *Slots) (field.Element, bool) {
	if !e.EvalSlots(s) {
		return field.Element{}, false
	}
	acc := s.p.One()
	for _, id := range e.leaves {
		if v, ok := s.Get(id); ok {
			acc = acc.Mul(v)
		}
	}
	return acc, true
}

// ProductOver computes the same product for a hypothetical truth set whose
// true leaves take the given values. The compiler uses this to enumerate
// every satisfying combination.
func (e *Expr) ProductOver(p *field.Prime, vals map[uint16]field.Element, trueSet map[uint16]bool) (field.Element, bool) {
	if !e.Eval(func(id uint16) bool { return trueSet[id] }) {
		return field.Element{}, false
	}
	acc := p.One()
	for _, id := range e.leaves {
		if trueSet[id] {
			acc = acc.Mul(vals[id])
		}
	}
	return acc, true
}

type exprParser struct {
	src    string
	pos    int
	leaves []uint16
	seen   map[uint16]bool
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) parseOr() (exprNode, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := []exprNode{first}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '|' {
			break
		}
		p.pos++
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return orNode{terms: terms}, nil
}

func (p *exprParser) parseAnd() (exprNode, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	terms := []exprNode{first}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != '&' {
			break
		}
		p.pos++
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		terms = append(terms, next)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return andNode{terms: terms}, nil
}

func (p *exprParser) parseAtom() (exprNode, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, fmt.Errorf("expr %q: unexpected end of input", p.src)
	}
	if p.src[p.pos] == '(' {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.src) || p.src[p.pos] != ')' {
			return nil, fmt.Errorf("expr %q: unterminated parenthesis", p.src)
		}
		p.pos++
		return inner, nil
	}

	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("expr %q: expected identifier at offset %d", p.src, p.pos)
	}
	var id uint32
	for _, c := range p.src[start:p.pos] {
		id = id*10 + uint32(c-'0')
		if id > MaxVarID {
			return nil, fmt.Errorf("expr %q: identifier exceeds %d", p.src, MaxVarID)
		}
	}
	if p.seen == nil {
		p.seen = make(map[uint16]bool)
	}
	if !p.seen[uint16(id)] {
		p.seen[uint16(id)] = true
		p.leaves = append(p.leaves, uint16(id))
	}
	return leafNode{id: uint16(id)}, nil
}
