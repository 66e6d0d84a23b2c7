// Package entail rule intermediate representation.
//
// This file implements the flattened Datalog-style IR the planner works
// over: atoms with either a normal predicate identity or a magic identity,
// and rules with a head atom and a body atom list. Custom predicate
// definitions are flattened into this form before the Magic-Set transform.
package entail

import (
	"fmt"
	"strings"
)

// PredicateIdent identifies an IR atom's predicate: a normal predicate or
// a magic predicate synthesized by the planner.
type PredicateIdent interface {
	isPredicateIdent()
	String() string
}

// NormalIdent wraps a native or custom predicate.
type NormalIdent struct {
	Pred Predicate
}

func (NormalIdent) isPredicateIdent() {}

// String implements PredicateIdent.
func (n NormalIdent) String() string { return n.Pred.String() }

// MagicIdent is an adorned magic predicate carrying the demand for a goal:
// the predicate name plus the indices of the bound argument positions.
type MagicIdent struct {
	Name         string
	BoundIndices []int
}

func (MagicIdent) isPredicateIdent() {}

// String implements PredicateIdent.
func (m MagicIdent) String() string {
	parts := make([]string, len(m.BoundIndices))
	for i, b := range m.BoundIndices {
		parts[i] = fmt.Sprintf("%d", b)
	}
	return fmt.Sprintf("magic[%s](%s)", m.Name, strings.Join(parts, ","))
}

// Atom is one literal of an IR rule. Order preserves the literal's source
// position (or, on heads of disjunctive rules, the disjunct index).
type Atom struct {
	Ident PredicateIdent
	Terms []TemplateArg
	Order int
}

// String returns the rendering Ident(term, ...).
func (a Atom) String() string {
	parts := make([]string, len(a.Terms))
	for i, t := range a.Terms {
		parts[i] = t.String()
	}
	return fmt.Sprintf("%s(%s)", a.Ident, strings.Join(parts, ", "))
}

// nativePred unwraps the atom's native predicate, if it has one.
func (a Atom) nativePred() (NativePredicate, bool) {
	n, ok := a.Ident.(NormalIdent)
	if !ok {
		return 0, false
	}
	np, ok := n.Pred.(NativePredicate)
	return np, ok
}

// customRef unwraps the atom's custom predicate reference, if it has one.
func (a Atom) customRef() (CustomRef, bool) {
	n, ok := a.Ident.(NormalIdent)
	if !ok {
		return CustomRef{}, false
	}
	cr, ok := n.Pred.(CustomRef)
	return cr, ok
}

// isMagic reports whether the atom is a magic literal.
func (a Atom) isMagic() bool {
	_, ok := a.Ident.(MagicIdent)
	return ok
}

// Rule is one flattened rule: head :- body.
type Rule struct {
	Head Atom
	Body []Atom
}

// String returns the rendering head :- b1, b2, ...
func (r Rule) String() string {
	if len(r.Body) == 0 {
		return r.Head.String() + "."
	}
	parts := make([]string, len(r.Body))
	for i, b := range r.Body {
		parts[i] = b.String()
	}
	return r.Head.String() + " :- " + strings.Join(parts, ", ") + "."
}

// QueryPlan is the planner output: magic rules carrying goal demand and
// guarded rules ready for goal-directed evaluation.
type QueryPlan struct {
	MagicRules   []Rule
	GuardedRules []Rule
}
