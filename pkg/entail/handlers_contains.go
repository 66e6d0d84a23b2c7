// Package entail container membership propagators.
//
// This file implements the handler families for Contains and NotContains:
// value-centric extraction against full containers known to the EDB, plus
// the structural copy handlers over pod-asserted rows.
package entail

// containsFromEntriesHandler proves Contains(container, key, value) by
// looking the key up inside a container that is ground in the frame or
// retrievable from the EDB by root.
type containsFromEntriesHandler struct{}

// Propagate implements Propagator.
func (containsFromEntriesHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 3 {
		return Contradicted()
	}
	container, root, waits, ok := resolveContainer(args[0], store, edb)
	if !ok {
		if len(waits) > 0 {
			return Suspend(waits...)
		}
		return Contradicted()
	}

	keyRes := resolveValueArg(args[1], store, edb)
	if keyRes.class == argWait {
		return Suspend(keyRes.wait)
	}
	if keyRes.class != argGround {
		return Contradicted()
	}
	key, ok := containerKeyString(keyRes.value)
	if !ok {
		return Contradicted()
	}

	found, ok := containerLookup(container, key)
	if !ok {
		return Contradicted()
	}
	tag := TagGeneratedContains{Root: root, Key: key}

	valRes := resolveValueArg(args[2], store, edb)
	switch valRes.class {
	case argGround:
		if !valuesEqual(valRes.value, found) {
			return Contradicted()
		}
		if len(valRes.premises) == 0 {
			return Entailed(nil, tag)
		}
		return Entailed(nil, TagDerived{
			Premises: append(valRes.premises, Premise{
				Statement: ContainsStatement(root, key, found),
				Tag:       tag,
			}),
		})
	case argWait:
		if w, isWild := args[2].(WildcardArg); isWild {
			return Entailed(
				[]Binding{{Wildcard: w.Wildcard.Index, Value: found}},
				tag,
			)
		}
		return Suspend(valRes.wait)
	default:
		return Contradicted()
	}
}

// notContainsFromEntriesHandler proves NotContains(container, key, value)
// by establishing the key's absence from a fully known container.
type notContainsFromEntriesHandler struct{}

// Propagate implements Propagator.
func (notContainsFromEntriesHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 3 {
		return Contradicted()
	}
	container, _, waits, ok := resolveContainer(args[0], store, edb)
	if !ok {
		if len(waits) > 0 {
			return Suspend(waits...)
		}
		return Contradicted()
	}
	keyRes := resolveValueArg(args[1], store, edb)
	if keyRes.class == argWait {
		return Suspend(keyRes.wait)
	}
	if keyRes.class != argGround {
		return Contradicted()
	}
	key, ok := containerKeyString(keyRes.value)
	if !ok {
		return Contradicted()
	}
	if _, present := containerLookup(container, key); present {
		return Contradicted()
	}
	return Entailed(nil, TagFromLiterals{})
}

// resolveContainer resolves the container argument of a membership goal to
// a concrete container value and its root. The argument may be a container
// literal, a wildcard bound to a container, or a wildcard bound to a root
// hash whose full container the EDB holds.
func resolveContainer(a TemplateArg, store *ConstraintStore, edb EdbView) (Value, Hash, []int, bool) {
	var v Value
	switch t := a.(type) {
	case LiteralArg:
		v = t.Value
	case WildcardArg:
		bound, ok := store.Get(t.Wildcard.Index)
		if !ok {
			return nil, Hash{}, []int{t.Wildcard.Index}, false
		}
		v = bound
	default:
		return nil, Hash{}, nil, false
	}

	switch t := v.(type) {
	case *Dictionary, *Array, *SetValue:
		root, _ := RootOf(t)
		return t, root, nil, true
	case HashValue:
		full, ok := edb.FullContainer(Hash(t))
		if !ok {
			return nil, Hash{}, nil, false
		}
		return full, Hash(t), nil, true
	default:
		return nil, Hash{}, nil, false
	}
}

// containerKeyString renders a key argument: dictionary keys are strings,
// array indices integers.
func containerKeyString(v Value) (string, bool) {
	switch t := v.(type) {
	case Str:
		return string(t), true
	case Int:
		return t.String(), true
	default:
		return "", false
	}
}

// registerContainsHandlers wires the membership handler families.
func registerContainsHandlers(r *Registry) {
	r.Register(Contains, containsFromEntriesHandler{})
	r.Register(Contains, copyTernaryHandler{pred: Contains})
	r.Register(NotContains, notContainsFromEntriesHandler{})
	r.Register(NotContains, copyTernaryHandler{pred: NotContains})
}
