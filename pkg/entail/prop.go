// Package entail propagator contract and registry.
//
// This file implements the four-variant propagator result, the Propagator
// interface implemented by per-predicate handlers, the registry mapping
// native predicates to ordered handler lists, and the argument
// classification shared by the value-centric handlers.
package entail

import (
	"sort"
)

// ResultKind discriminates propagator outcomes.
type ResultKind int

const (
	// ResultEntailed proves the template with additional bindings and a
	// provenance tag.
	ResultEntailed ResultKind = iota

	// ResultChoices offers multiple admissible derivations; the engine
	// branches.
	ResultChoices

	// ResultSuspend reports insufficient information until the listed
	// wildcards are bound.
	ResultSuspend

	// ResultContradiction proves the template false in this frame.
	ResultContradiction
)

// Choice is one admissible derivation: bindings to apply plus the
// operation tag recording provenance.
type Choice struct {
	Bindings []Binding
	Tag      OpTag
}

// PropagatorResult is the outcome of consulting one propagator for one
// goal.
type PropagatorResult struct {
	Kind    ResultKind
	Choices []Choice
	WaitOn  []int
}

// Entailed builds an entailment result.
func Entailed(bindings []Binding, tag OpTag) PropagatorResult {
	return PropagatorResult{
		Kind:    ResultEntailed,
		Choices: []Choice{{Bindings: bindings, Tag: tag}},
	}
}

// Alternatives builds a multi-choice result.
func Alternatives(choices []Choice) PropagatorResult {
	return PropagatorResult{Kind: ResultChoices, Choices: choices}
}

// Suspend builds a suspension on the union of the given wildcard indices.
func Suspend(on ...int) PropagatorResult {
	sort.Ints(on)
	dedup := on[:0]
	for i, w := range on {
		if i == 0 || on[i-1] != w {
			dedup = append(dedup, w)
		}
	}
	return PropagatorResult{Kind: ResultSuspend, WaitOn: dedup}
}

// Contradicted builds a contradiction result.
func Contradicted() PropagatorResult {
	return PropagatorResult{Kind: ResultContradiction}
}

// Propagator is a per-predicate handler. It inspects the template
// arguments against the store and the EDB and reports whether the goal is
// entailed, branches, must wait, or is false. Handlers never mutate the
// store; bindings travel in the result.
type Propagator interface {
	Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult
}

// Registry maps each native predicate to an ordered list of propagators.
// All registered handlers are consulted for a goal; their results are
// merged into a candidate choice list by the engine.
type Registry struct {
	handlers map[NativePredicate][]Propagator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[NativePredicate][]Propagator)}
}

// Register appends a handler for a predicate.
func (r *Registry) Register(pred NativePredicate, h Propagator) {
	r.handlers[pred] = append(r.handlers[pred], h)
}

// Get returns the handlers registered for a predicate.
func (r *Registry) Get(pred NativePredicate) []Propagator {
	return r.handlers[pred]
}

// DefaultRegistry returns a registry with every native predicate wired to
// its standard handler family.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerEqualHandlers(r)
	registerComparisonHandlers(r)
	registerArithmeticHandlers(r)
	registerContainsHandlers(r)
	registerKeyHandlers(r)
	return r
}

// argClass classifies a resolved template argument.
type argClass int

const (
	// argGround resolved to a concrete value.
	argGround argClass = iota

	// argWait depends on an unbound wildcard.
	argWait

	// argNoFact has a bound anchored-key root with no supporting fact in
	// the EDB.
	argNoFact
)

// resolvedArg is the outcome of classifying one template argument.
type resolvedArg struct {
	class argClass

	// value is set for argGround.
	value Value

	// premises are the Contains facts justifying anchored-key extraction.
	premises []Premise

	// wait is the wildcard index for argWait.
	wait int
}

// resolveValueArg classifies a template argument into a concrete value if
// possible, together with any premises required to justify anchored-key
// extraction against the EDB's full-container entries.
func resolveValueArg(a TemplateArg, store *ConstraintStore, edb EdbView) resolvedArg {
	switch t := a.(type) {
	case LiteralArg:
		return resolvedArg{class: argGround, value: t.Value}
	case WildcardArg:
		if v, ok := store.Get(t.Wildcard.Index); ok {
			return resolvedArg{class: argGround, value: v}
		}
		return resolvedArg{class: argWait, wait: t.Wildcard.Index}
	case AnchoredKeyArg:
		bound, ok := store.Get(t.Root.Index)
		if !ok {
			return resolvedArg{class: argWait, wait: t.Root.Index}
		}
		root, ok := RootOf(bound)
		if !ok {
			return resolvedArg{class: argNoFact}
		}
		val, ok := edb.ContainsValue(root, t.Key)
		if !ok {
			return resolvedArg{class: argNoFact}
		}
		origin, ok := edb.ContainsSource(root, t.Key, val)
		if !ok {
			return resolvedArg{class: argNoFact}
		}
		return resolvedArg{
			class: argGround,
			value: val,
			premises: []Premise{{
				Statement: ContainsStatement(root, t.Key, val),
				Tag:       origin.Tag(root, t.Key),
			}},
		}
	default:
		return resolvedArg{class: argNoFact}
	}
}

// entailWithPremises wraps an entailment as FromLiterals when no
// anchored-key resolutions were needed and as Derived otherwise.
func entailWithPremises(bindings []Binding, premises []Premise) PropagatorResult {
	if len(premises) == 0 {
		return Entailed(bindings, TagFromLiterals{})
	}
	return Entailed(bindings, TagDerived{Premises: premises})
}

// unboundWildcardsInArgs lists the wildcard indices referenced by args that
// are not bound in the store.
func unboundWildcardsInArgs(args []TemplateArg, store *ConstraintStore) []int {
	var out []int
	for _, w := range WildcardIndices(args) {
		if !store.Bound(w) {
			out = append(out, w)
		}
	}
	return out
}

// suspendOrContradict is the standard tail of a copy handler: suspend on
// the goal's unbound wildcards if any remain, otherwise contradict.
func suspendOrContradict(args []TemplateArg, store *ConstraintStore) PropagatorResult {
	waits := unboundWildcardsInArgs(args, store)
	if len(waits) == 0 {
		return Contradicted()
	}
	return Suspend(waits...)
}
