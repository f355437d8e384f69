// Package categories implements boolean category expressions: AND/OR
// combinators over (scheme, term) pairs, shape classification, and a small
// textual query parser.
//
// Classification matters for execution: a purely-AND expression can be run
// as a set intersection across per-term indexes, a purely-OR expression as a
// union, and anything mixing the two needs general evaluation or a
// decomposition into a union of AND clauses.
package categories

import (
	"fmt"
	"sort"
	"strings"
)

// ExprType classifies the shape of an expression tree.
type ExprType int

const (
	// TypeSimple is a single (scheme, term) predicate.
	TypeSimple ExprType = iota
	// TypeAnd marks a tree whose every combinator is AND.
	TypeAnd
	// TypeOr marks a tree whose every combinator is OR.
	TypeOr
	// TypeMixed marks a tree containing both combinators.
	TypeMixed
)

func (t ExprType) String() string {
	switch t {
	case TypeSimple:
		return "SIMPLE"
	case TypeAnd:
		return "AND"
	case TypeOr:
		return "OR"
	default:
		return "MIXED"
	}
}

// Category is a (scheme, term) pair as used in expressions.
type Category struct {
	Scheme string
	Term   string
}

func (c Category) String() string {
	return fmt.Sprintf("(%s)%s", c.Scheme, c.Term)
}

// Expression is a boolean predicate over an entry's category set.
type Expression interface {
	// Type reports the shape of the expression tree.
	Type() ExprType

	// Matches evaluates the predicate against a category set.
	Matches(set map[Category]bool) bool

	// Terms returns every leaf category in the tree, left to right.
	Terms() []Category

	String() string
}

// Term is a single-category predicate.
type Term struct {
	Category
}

// NewTerm builds a single-category predicate.
func NewTerm(scheme, term string) Term {
	return Term{Category{Scheme: scheme, Term: term}}
}

func (t Term) Type() ExprType { return TypeSimple }

func (t Term) Matches(set map[Category]bool) bool { return set[t.Category] }

func (t Term) Terms() []Category { return []Category{t.Category} }

// And is the conjunction of its operands.
type And struct {
	Operands []Expression
}

// NewAnd combines expressions under AND.
func NewAnd(ops ...Expression) And { return And{Operands: ops} }

func (a And) Type() ExprType { return combineType(TypeAnd, a.Operands) }

func (a And) Matches(set map[Category]bool) bool {
	for _, op := range a.Operands {
		if !op.Matches(set) {
			return false
		}
	}
	return true
}

func (a And) Terms() []Category { return collectTerms(a.Operands) }

func (a And) String() string { return renderCompound("AND", a.Operands) }

// Or is the disjunction of its operands.
type Or struct {
	Operands []Expression
}

// NewOr combines expressions under OR.
func NewOr(ops ...Expression) Or { return Or{Operands: ops} }

func (o Or) Type() ExprType { return combineType(TypeOr, o.Operands) }

func (o Or) Matches(set map[Category]bool) bool {
	for _, op := range o.Operands {
		if op.Matches(set) {
			return true
		}
	}
	return false
}

func (o Or) Terms() []Category { return collectTerms(o.Operands) }

func (o Or) String() string { return renderCompound("OR", o.Operands) }

// combineType degenerates an all-same-operator chain to that operator's
// type. A compound picks up MIXED as soon as any operand carries the other
// combinator.
func combineType(self ExprType, ops []Expression) ExprType {
	for _, op := range ops {
		switch op.Type() {
		case TypeSimple, self:
		default:
			return TypeMixed
		}
	}
	return self
}

func collectTerms(ops []Expression) []Category {
	var out []Category
	for _, op := range ops {
		out = append(out, op.Terms()...)
	}
	return out
}

func renderCompound(op string, ops []Expression) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = o.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// DNF rewrites the expression into a union of AND clauses, each clause being
// a set of categories that must all be present. Purely-AND input yields one
// clause; purely-OR input yields one single-category clause per term. The
// result lets a MIXED query run as a union of intersection scans.
func DNF(e Expression) [][]Category {
	switch x := e.(type) {
	case Term:
		return [][]Category{{x.Category}}
	case And:
		clauses := [][]Category{{}}
		for _, op := range x.Operands {
			sub := DNF(op)
			var next [][]Category
			for _, c := range clauses {
				for _, s := range sub {
					merged := make([]Category, 0, len(c)+len(s))
					merged = append(merged, c...)
					merged = append(merged, s...)
					next = append(next, dedupe(merged))
				}
			}
			clauses = next
		}
		return clauses
	case Or:
		var clauses [][]Category
		for _, op := range x.Operands {
			clauses = append(clauses, DNF(op)...)
		}
		return clauses
	default:
		return nil
	}
}

func dedupe(cats []Category) []Category {
	seen := make(map[Category]bool, len(cats))
	out := cats[:0]
	for _, c := range cats {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scheme != out[j].Scheme {
			return out[i].Scheme < out[j].Scheme
		}
		return out[i].Term < out[j].Term
	})
	return out
}
