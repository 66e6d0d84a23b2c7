// Package entail arithmetic propagators.
//
// This file implements the handler families for SumOf, ProductOf, MaxOf and
// HashOf. The integer handlers support constraint deduction: with two of
// the three arguments ground, the third is computed and bound. HashOf
// deduces in the forward direction only.
package entail

// arithDeduce computes the missing argument of a ternary arithmetic
// relation. known marks which of (result, a, b) are ground; vals carries
// their values. It returns the index to bind, the value, and whether
// deduction is possible.
type arithDeduce func(known [3]bool, vals [3]int64) (int, int64, bool)

// arithCheck verifies a fully ground triple.
type arithCheck func(vals [3]int64) bool

// arithHandler is the shared value propagator for ternary integer
// natives.
type arithHandler struct {
	pred   NativePredicate
	check  arithCheck
	deduce arithDeduce
}

// Propagate implements Propagator.
func (h arithHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 3 {
		return Contradicted()
	}
	var (
		known    [3]bool
		vals     [3]int64
		premises []Premise
		waits    []int
	)
	for i, a := range args {
		res := resolveValueArg(a, store, edb)
		switch res.class {
		case argGround:
			iv, ok := IntValue(res.value)
			if !ok {
				return Contradicted()
			}
			known[i] = true
			vals[i] = iv
			premises = append(premises, res.premises...)
		case argWait:
			waits = append(waits, res.wait)
		default:
			return Contradicted()
		}
	}

	groundCount := 0
	for _, k := range known {
		if k {
			groundCount++
		}
	}

	switch groundCount {
	case 3:
		if !h.check(vals) {
			return Contradicted()
		}
		return entailWithPremises(nil, premises)
	case 2:
		idx, v, ok := h.deduce(known, vals)
		if !ok {
			return Suspend(waits...)
		}
		// Deduction only lands on a bare wildcard; an anchored key cannot
		// receive a computed value.
		w, isWild := args[idx].(WildcardArg)
		if !isWild {
			return Suspend(waits...)
		}
		return entailWithPremises(
			[]Binding{{Wildcard: w.Wildcard.Index, Value: NewInt(v)}},
			premises,
		)
	default:
		return Suspend(waits...)
	}
}

// missingIndex returns the single unknown position.
func missingIndex(known [3]bool) int {
	for i, k := range known {
		if !k {
			return i
		}
	}
	return -1
}

// hashOfHandler is the value propagator for HashOf(result, a, b): result is
// the domain-separated hash of the two operand commitments. Deduction runs
// forward only.
type hashOfHandler struct{}

// Propagate implements Propagator.
func (hashOfHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 3 {
		return Contradicted()
	}
	ra := resolveValueArg(args[1], store, edb)
	rb := resolveValueArg(args[2], store, edb)
	var waits []int
	if ra.class == argWait {
		waits = append(waits, ra.wait)
	}
	if rb.class == argWait {
		waits = append(waits, rb.wait)
	}
	if ra.class == argNoFact || rb.class == argNoFact {
		return Contradicted()
	}
	if len(waits) > 0 {
		return Suspend(waits...)
	}

	computed := HashOfValues(ra.value, rb.value)
	premises := append(ra.premises, rb.premises...)

	rr := resolveValueArg(args[0], store, edb)
	switch rr.class {
	case argGround:
		if !valuesEqual(rr.value, computed) {
			return Contradicted()
		}
		return entailWithPremises(nil, append(premises, rr.premises...))
	case argWait:
		if w, ok := args[0].(WildcardArg); ok {
			return entailWithPremises(
				[]Binding{{Wildcard: w.Wildcard.Index, Value: computed}},
				premises,
			)
		}
		return Suspend(rr.wait)
	default:
		return Contradicted()
	}
}

// registerArithmeticHandlers wires the arithmetic handler families.
func registerArithmeticHandlers(r *Registry) {
	r.Register(SumOf, arithHandler{
		pred:  SumOf,
		check: func(v [3]int64) bool { return v[0] == v[1]+v[2] },
		deduce: func(known [3]bool, v [3]int64) (int, int64, bool) {
			switch missingIndex(known) {
			case 0:
				return 0, v[1] + v[2], true
			case 1:
				return 1, v[0] - v[2], true
			case 2:
				return 2, v[0] - v[1], true
			}
			return -1, 0, false
		},
	})
	r.Register(SumOf, copyTernaryHandler{pred: SumOf})

	r.Register(ProductOf, arithHandler{
		pred:  ProductOf,
		check: func(v [3]int64) bool { return v[0] == v[1]*v[2] },
		deduce: func(known [3]bool, v [3]int64) (int, int64, bool) {
			switch missingIndex(known) {
			case 0:
				return 0, v[1] * v[2], true
			case 1:
				if v[2] == 0 || v[0]%v[2] != 0 {
					return -1, 0, false
				}
				return 1, v[0] / v[2], true
			case 2:
				if v[1] == 0 || v[0]%v[1] != 0 {
					return -1, 0, false
				}
				return 2, v[0] / v[1], true
			}
			return -1, 0, false
		},
	})
	r.Register(ProductOf, copyTernaryHandler{pred: ProductOf})

	r.Register(MaxOf, arithHandler{
		pred: MaxOf,
		check: func(v [3]int64) bool {
			m := v[1]
			if v[2] > m {
				m = v[2]
			}
			return v[0] == m
		},
		deduce: func(known [3]bool, v [3]int64) (int, int64, bool) {
			// Only the forward direction is determined: max from both
			// operands. Knowing the max and one operand leaves the other
			// underconstrained.
			if missingIndex(known) == 0 {
				m := v[1]
				if v[2] > m {
					m = v[2]
				}
				return 0, m, true
			}
			return -1, 0, false
		},
	})
	r.Register(MaxOf, copyTernaryHandler{pred: MaxOf})

	r.Register(HashOf, hashOfHandler{})
	r.Register(HashOf, copyTernaryHandler{pred: HashOf})
}
