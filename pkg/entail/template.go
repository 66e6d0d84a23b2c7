// Package entail statement templates and custom predicate batches.
//
// This file implements the request language consumed by the planner and
// engine: wildcards, template arguments, statement templates, and
// user-defined custom predicates grouped into batches that may reference
// each other by index.
package entail

import (
	"fmt"
	"strings"
)

// Wildcard is a logical variable with a stable integer index within its
// scope (a request, or a custom predicate definition). The name is for
// display only; identity is the index.
type Wildcard struct {
	Name  string
	Index int
}

// NewWildcard builds a wildcard.
func NewWildcard(name string, index int) Wildcard {
	return Wildcard{Name: name, Index: index}
}

// String returns the display rendering ?Name.
func (w Wildcard) String() string {
	if w.Name != "" {
		return "?" + w.Name
	}
	return fmt.Sprintf("?_%d", w.Index)
}

// TemplateArg is one argument position of a statement template: a literal
// value, a wildcard, an anchored key whose root is a wildcard, or none.
type TemplateArg interface {
	isTemplateArg()
	String() string
}

// LiteralArg is a ground value in template position.
type LiteralArg struct {
	Value Value
}

func (LiteralArg) isTemplateArg() {}

// String implements TemplateArg.
func (a LiteralArg) String() string { return a.Value.String() }

// WildcardArg is a bare wildcard in template position.
type WildcardArg struct {
	Wildcard Wildcard
}

func (WildcardArg) isTemplateArg() {}

// String implements TemplateArg.
func (a WildcardArg) String() string { return a.Wildcard.String() }

// AnchoredKeyArg references key Key inside the container bound to the Root
// wildcard.
type AnchoredKeyArg struct {
	Root Wildcard
	Key  string
}

func (AnchoredKeyArg) isTemplateArg() {}

// String implements TemplateArg.
func (a AnchoredKeyArg) String() string {
	return fmt.Sprintf("%s[%q]", a.Root, a.Key)
}

// NoneArg is an absent argument. It is forbidden inside custom predicate
// bodies; the planner rejects it as malformed input.
type NoneArg struct{}

func (NoneArg) isTemplateArg() {}

// String implements TemplateArg.
func (NoneArg) String() string { return "none" }

// TLit builds a literal template argument.
func TLit(v Value) TemplateArg { return LiteralArg{Value: v} }

// TWild builds a wildcard template argument.
func TWild(name string, index int) TemplateArg {
	return WildcardArg{Wildcard: NewWildcard(name, index)}
}

// TKey builds an anchored-key template argument with a wildcard root.
func TKey(rootName string, rootIndex int, key string) TemplateArg {
	return AnchoredKeyArg{Root: NewWildcard(rootName, rootIndex), Key: key}
}

// StatementTmpl is a statement with template arguments. Wildcards are
// scoped per request (or per predicate definition) and reused across
// templates to induce joins.
type StatementTmpl struct {
	Pred Predicate
	Args []TemplateArg
}

// NewTmpl builds a statement template.
func NewTmpl(pred Predicate, args ...TemplateArg) StatementTmpl {
	return StatementTmpl{Pred: pred, Args: args}
}

// String returns the rendering Pred(arg, ...).
func (t StatementTmpl) String() string {
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", t.Pred, strings.Join(parts, ", "))
}

// WildcardIndices returns the distinct wildcard indices appearing in args,
// in first-appearance order.
func WildcardIndices(args []TemplateArg) []int {
	seen := make(map[int]bool)
	var out []int
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	for _, a := range args {
		switch t := a.(type) {
		case WildcardArg:
			add(t.Wildcard.Index)
		case AnchoredKeyArg:
			add(t.Root.Index)
		}
	}
	return out
}

// CustomPredicate is a user-defined predicate: an AND or OR of statement
// templates over a local wildcard space. The first ArgsLen wildcards are
// the public arguments; the rest are private to the definition.
type CustomPredicate struct {
	Name          string
	Conjunction   bool
	Statements    []StatementTmpl
	ArgsLen       int
	WildcardNames []string
}

// NewConjunction defines an AND-predicate.
func NewConjunction(name string, argsLen int, wildcardNames []string, body ...StatementTmpl) *CustomPredicate {
	return &CustomPredicate{
		Name:          name,
		Conjunction:   true,
		Statements:    body,
		ArgsLen:       argsLen,
		WildcardNames: wildcardNames,
	}
}

// NewDisjunction defines an OR-predicate.
func NewDisjunction(name string, argsLen int, wildcardNames []string, body ...StatementTmpl) *CustomPredicate {
	return &CustomPredicate{
		Name:          name,
		Conjunction:   false,
		Statements:    body,
		ArgsLen:       argsLen,
		WildcardNames: wildcardNames,
	}
}

// String returns the definition header rendering.
func (p *CustomPredicate) String() string {
	mode := "OR"
	if p.Conjunction {
		mode = "AND"
	}
	return fmt.Sprintf("%s/%d = %s(%d statements)", p.Name, p.ArgsLen, mode, len(p.Statements))
}

// CustomPredicateBatch is a finite, ordered collection of custom predicate
// definitions that may reference each other by index through BatchSelf.
type CustomPredicateBatch struct {
	Name       string
	Predicates []*CustomPredicate

	id Hash
}

// NewBatch builds a batch and fixes its identity hash over the definition
// shapes.
func NewBatch(name string, preds ...*CustomPredicate) *CustomPredicateBatch {
	b := &CustomPredicateBatch{Name: name, Predicates: preds}
	parts := make([][]byte, 0, len(preds)+1)
	parts = append(parts, []byte(name))
	for _, p := range preds {
		sig := fmt.Sprintf("%s/%d/%t/%d", p.Name, p.ArgsLen, p.Conjunction, len(p.Statements))
		parts = append(parts, []byte(sig))
	}
	b.id = hashParts(tagHash, parts...)
	return b
}

// ID returns the batch identity hash.
func (b *CustomPredicateBatch) ID() Hash { return b.id }

// Ref returns a reference to entry i of the batch.
func (b *CustomPredicateBatch) Ref(i int) CustomRef {
	return CustomRef{Batch: b, Index: i}
}

// CustomRef is a concrete (batch, index) pair naming one custom predicate.
// It is the resolved form of BatchSelf references.
type CustomRef struct {
	Batch *CustomPredicateBatch
	Index int
}

func (CustomRef) isPredicate() {}

// Predicate returns the referenced definition, or nil for an out-of-range
// index.
func (r CustomRef) Predicate() *CustomPredicate {
	if r.Batch == nil || r.Index < 0 || r.Index >= len(r.Batch.Predicates) {
		return nil
	}
	return r.Batch.Predicates[r.Index]
}

// Name returns the referenced predicate's name.
func (r CustomRef) Name() string {
	if p := r.Predicate(); p != nil {
		return p.Name
	}
	return fmt.Sprintf("custom(%d)", r.Index)
}

// Arity returns the referenced predicate's public argument count.
func (r CustomRef) Arity() int {
	if p := r.Predicate(); p != nil {
		return p.ArgsLen
	}
	return 0
}

// String implements Predicate.
func (r CustomRef) String() string { return r.Name() }

// key returns the identity used by rule sets and visited maps.
func (r CustomRef) key() string {
	if r.Batch == nil {
		return fmt.Sprintf("?/%d", r.Index)
	}
	return fmt.Sprintf("%s/%d", r.Batch.id.Hex(), r.Index)
}
