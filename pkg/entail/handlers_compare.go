// Package entail integer comparison propagators.
//
// This file implements the value-centric handlers for the ordering natives
// Lt, LtEq, Gt and GtEq. Each resolves both arguments to integers (through
// literals, bound wildcards, or anchored keys backed by the EDB), then
// entails or contradicts; unresolved wildcards suspend the goal.
package entail

// intCompareHandler is the shared value propagator for ordering
// predicates.
type intCompareHandler struct {
	pred NativePredicate
	cmp  func(a, b int64) bool
}

// Propagate implements Propagator.
func (h intCompareHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	a0 := resolveValueArg(args[0], store, edb)
	a1 := resolveValueArg(args[1], store, edb)

	if a0.class == argNoFact || a1.class == argNoFact {
		return Contradicted()
	}
	var waits []int
	if a0.class == argWait {
		waits = append(waits, a0.wait)
	}
	if a1.class == argWait {
		waits = append(waits, a1.wait)
	}
	if len(waits) > 0 {
		return Suspend(waits...)
	}

	i0, ok0 := IntValue(a0.value)
	i1, ok1 := IntValue(a1.value)
	if !ok0 || !ok1 {
		return Contradicted()
	}
	if !h.cmp(i0, i1) {
		return Contradicted()
	}
	return entailWithPremises(nil, append(a0.premises, a1.premises...))
}

// registerComparisonHandlers wires the ordering handler families: the
// value propagator plus the structural copy handler for each predicate.
func registerComparisonHandlers(r *Registry) {
	r.Register(Lt, intCompareHandler{pred: Lt, cmp: func(a, b int64) bool { return a < b }})
	r.Register(Lt, copyBinaryHandler{pred: Lt})
	r.Register(LtEq, intCompareHandler{pred: LtEq, cmp: func(a, b int64) bool { return a <= b }})
	r.Register(LtEq, copyBinaryHandler{pred: LtEq})
	r.Register(Gt, intCompareHandler{pred: Gt, cmp: func(a, b int64) bool { return a > b }})
	r.Register(Gt, copyBinaryHandler{pred: Gt})
	r.Register(GtEq, intCompareHandler{pred: GtEq, cmp: func(a, b int64) bool { return a >= b }})
	r.Register(GtEq, copyBinaryHandler{pred: GtEq})
}
