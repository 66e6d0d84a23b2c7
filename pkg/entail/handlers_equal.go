// Package entail equality propagators.
//
// This file implements the handler family for Equal and NotEqual: the
// value-centric EqualFromEntries with constraint deduction, the NewEntry
// rule for the self container, transitive equality derivation over the
// EDB's anchored-key equality graph, the LtToNotEqual derivation, and the
// copy handlers.
package entail

import (
	"sort"
)

// equalFromEntriesHandler resolves both sides to values and entails or
// contradicts. With exactly one side ground and the other an unbound
// wildcard, it deduces the binding.
type equalFromEntriesHandler struct{}

// Propagate implements Propagator.
func (equalFromEntriesHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	a0 := resolveValueArg(args[0], store, edb)
	a1 := resolveValueArg(args[1], store, edb)

	if a0.class == argNoFact || a1.class == argNoFact {
		return Contradicted()
	}

	if a0.class == argGround && a1.class == argGround {
		if valuesEqual(a0.value, a1.value) {
			return entailWithPremises(nil, append(a0.premises, a1.premises...))
		}
		return Contradicted()
	}

	// Constraint deduction: one ground side binds a bare unbound wildcard
	// on the other. An anchored key with an unbound root instead
	// enumerates the EDB's container entries holding its key.
	if a0.class == argGround {
		if w, ok := args[1].(WildcardArg); ok {
			return entailWithPremises(
				[]Binding{{Wildcard: w.Wildcard.Index, Value: a0.value}},
				a0.premises,
			)
		}
		if ak, ok := args[1].(AnchoredKeyArg); ok {
			return enumerateEqualRoots(ak, a0, edb)
		}
		return Suspend(a1.wait)
	}
	if a1.class == argGround {
		if w, ok := args[0].(WildcardArg); ok {
			return entailWithPremises(
				[]Binding{{Wildcard: w.Wildcard.Index, Value: a1.value}},
				a1.premises,
			)
		}
		if ak, ok := args[0].(AnchoredKeyArg); ok {
			return enumerateEqualRoots(ak, a1, edb)
		}
		return Suspend(a0.wait)
	}
	return Suspend(a0.wait, a1.wait)
}

// enumerateEqualRoots resolves Equal between a ground value and an
// anchored key whose root is free: every container entry holding the key
// with the wanted value yields one choice binding the root, derived
// through the entry's Contains fact.
func enumerateEqualRoots(ak AnchoredKeyArg, ground resolvedArg, edb EdbView) PropagatorResult {
	var choices []Choice
	for _, m := range edb.ContainsMatches(ak.Key) {
		if !valuesEqual(m.Value, ground.value) {
			continue
		}
		premises := append(append([]Premise(nil), ground.premises...), Premise{
			Statement: ContainsStatement(m.Root, ak.Key, m.Value),
			Tag:       m.Origin.Tag(m.Root, ak.Key),
		})
		choices = append(choices, Choice{
			Bindings: []Binding{{Wildcard: ak.Root.Index, Value: HashValue(m.Root)}},
			Tag:      TagDerived{Premises: premises},
		})
	}
	if len(choices) == 0 {
		return Suspend(ak.Root.Index)
	}
	return Alternatives(choices)
}

// newEntryEqualHandler entails Equal goals whose left anchored key is
// rooted in the self marker. Such goals declare fresh entries of the pod
// under construction, so no EDB fact is consulted.
type newEntryEqualHandler struct{}

// Propagate implements Propagator.
func (newEntryEqualHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	ak, ok := args[0].(AnchoredKeyArg)
	if !ok {
		return Contradicted()
	}
	bound, ok := store.Get(ak.Root.Index)
	if !ok {
		return Suspend(ak.Root.Index)
	}
	root, ok := RootOf(bound)
	if !ok || root != SelfRoot {
		return Contradicted()
	}
	right := resolveValueArg(args[1], store, edb)
	if right.class != argGround {
		if right.class == argWait {
			return Suspend(right.wait)
		}
		return Contradicted()
	}
	return Entailed(nil, TagNewEntry{})
}

// equalityEdge is one Equal(ak, ak) row of the EDB, used as an undirected
// edge of the equality chain graph.
type equalityEdge struct {
	a, b   AnchoredKey
	source PodRef
}

// equalityGraph collects the anchored-key equality edges of the EDB.
func equalityGraph(edb EdbView) []equalityEdge {
	rows := edb.BinaryView(Equal, SelAK(), SelAK())
	out := make([]equalityEdge, 0, len(rows))
	for _, row := range rows {
		a, okA := row.Left.AsAnchoredKey()
		b, okB := row.Right.AsAnchoredKey()
		if okA && okB {
			out = append(out, equalityEdge{a: a, b: b, source: row.Source})
		}
	}
	return out
}

// chainStep is one traversed edge, oriented from the search origin.
type chainStep struct {
	from, to AnchoredKey
	source   PodRef
}

// equalityPaths runs a breadth-first search over the equality graph from
// start and returns, per reachable anchored key, the oriented edge path
// leading to it.
func equalityPaths(edges []equalityEdge, start AnchoredKey) map[AnchoredKey][]chainStep {
	paths := map[AnchoredKey][]chainStep{start: nil}
	queue := []AnchoredKey{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range edges {
			var next AnchoredKey
			switch cur {
			case e.a:
				next = e.b
			case e.b:
				next = e.a
			default:
				continue
			}
			if _, seen := paths[next]; seen {
				continue
			}
			path := append(append([]chainStep(nil), paths[cur]...), chainStep{
				from:   cur,
				to:     next,
				source: e.source,
			})
			paths[next] = path
			queue = append(queue, next)
		}
	}
	return paths
}

// chainPremises converts an oriented edge path into copied Equal premises.
func chainPremises(path []chainStep) []Premise {
	out := make([]Premise, len(path))
	for i, step := range path {
		out[i] = Premise{
			Statement: NewStatement(Equal,
				Key(step.from.Root, step.from.Key),
				Key(step.to.Root, step.to.Key)),
			Tag: TagCopyStatement{Source: step.source},
		}
	}
	return out
}

// transitiveEqualHandler derives Equal between two anchored keys connected
// by a chain of length at least two in the EDB's equality graph. Direct
// single-edge equalities are the copy handler's business.
type transitiveEqualHandler struct{}

// Propagate implements Propagator.
func (transitiveEqualHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	left, okL := args[0].(AnchoredKeyArg)
	right, okR := args[1].(AnchoredKeyArg)
	if !okL || !okR {
		return Contradicted()
	}

	leftRoot, leftBound := boundRoot(store, left.Root.Index)
	rightRoot, rightBound := boundRoot(store, right.Root.Index)

	switch {
	case leftBound && rightBound:
		start := AnchoredKey{Root: leftRoot, Key: left.Key}
		target := AnchoredKey{Root: rightRoot, Key: right.Key}
		paths := equalityPaths(equalityGraph(edb), start)
		if path, ok := paths[target]; ok && len(path) >= 2 {
			return Entailed(nil, TagDerived{Premises: chainPremises(path)})
		}
		return Contradicted()

	case leftBound:
		return transitiveEnumerate(edb, AnchoredKey{Root: leftRoot, Key: left.Key}, right.Key, right.Root.Index)

	case rightBound:
		return transitiveEnumerate(edb, AnchoredKey{Root: rightRoot, Key: right.Key}, left.Key, left.Root.Index)

	default:
		// Both roots free: try every graph node carrying the left key as
		// a chain origin.
		edges := equalityGraph(edb)
		var choices []Choice
		for _, start := range sortedGraphNodes(edges) {
			if start.Key != left.Key {
				continue
			}
			paths := equalityPaths(edges, start)
			for _, node := range sortedPathTargets(paths) {
				path := paths[node]
				if node.Key != right.Key || len(path) < 2 {
					continue
				}
				choices = append(choices, Choice{
					Bindings: []Binding{
						{Wildcard: left.Root.Index, Value: HashValue(start.Root)},
						{Wildcard: right.Root.Index, Value: HashValue(node.Root)},
					},
					Tag: TagDerived{Premises: chainPremises(path)},
				})
			}
		}
		if len(choices) == 0 {
			return Suspend(left.Root.Index, right.Root.Index)
		}
		return Alternatives(choices)
	}
}

// sortedGraphNodes lists the distinct anchored keys of the graph in a
// stable order.
func sortedGraphNodes(edges []equalityEdge) []AnchoredKey {
	seen := make(map[AnchoredKey]bool)
	var out []AnchoredKey
	for _, e := range edges {
		for _, n := range [2]AnchoredKey{e.a, e.b} {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sortAnchoredKeys(out)
	return out
}

// sortedPathTargets lists a path map's targets in a stable order.
func sortedPathTargets(paths map[AnchoredKey][]chainStep) []AnchoredKey {
	out := make([]AnchoredKey, 0, len(paths))
	for n := range paths {
		out = append(out, n)
	}
	sortAnchoredKeys(out)
	return out
}

func sortAnchoredKeys(ks []AnchoredKey) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].Root != ks[j].Root {
			return string(ks[i].Root[:]) < string(ks[j].Root[:])
		}
		return ks[i].Key < ks[j].Key
	})
}

// transitiveEnumerate walks chains from a bound anchored key and emits one
// choice per reachable key with the requested name, binding the free root.
func transitiveEnumerate(edb EdbView, start AnchoredKey, targetKey string, freeRoot int) PropagatorResult {
	paths := equalityPaths(equalityGraph(edb), start)
	var choices []Choice
	for _, node := range sortedPathTargets(paths) {
		path := paths[node]
		if node.Key != targetKey || len(path) < 2 {
			continue
		}
		choices = append(choices, Choice{
			Bindings: []Binding{{Wildcard: freeRoot, Value: HashValue(node.Root)}},
			Tag:      TagDerived{Premises: chainPremises(path)},
		})
	}
	if len(choices) == 0 {
		return Contradicted()
	}
	return Alternatives(choices)
}

// boundRoot resolves a root wildcard to a container commitment.
func boundRoot(store *ConstraintStore, w int) (Hash, bool) {
	v, ok := store.Get(w)
	if !ok {
		return Hash{}, false
	}
	return RootOf(v)
}

// notEqualFromEntriesHandler resolves both sides and entails when the
// values differ.
type notEqualFromEntriesHandler struct{}

// Propagate implements Propagator.
func (notEqualFromEntriesHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
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
	if valuesEqual(a0.value, a1.value) {
		return Contradicted()
	}
	return entailWithPremises(nil, append(a0.premises, a1.premises...))
}

// ltToNotEqualHandler derives NotEqual(a, b) from an asserted Lt(a, b):
// strict order implies inequality.
type ltToNotEqualHandler struct{}

// Propagate implements Propagator.
func (ltToNotEqualHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	left := normalizeSide(args[0], store)
	right := normalizeSide(args[1], store)
	if left.kind == sideInvalid || right.kind == sideInvalid {
		return Contradicted()
	}
	selL, _ := left.selector()
	selR, _ := right.selector()

	var choices []Choice
	for _, row := range edb.BinaryView(Lt, selL, selR) {
		bl, ok := left.rowBinding(row.Left)
		if !ok {
			continue
		}
		br, ok := right.rowBinding(row.Right)
		if !ok {
			continue
		}
		premise := Premise{
			Statement: Statement{Predicate: Lt, Args: []ValueRef{row.Left.ref, row.Right.ref}},
			Tag:       TagCopyStatement{Source: row.Source},
		}
		choices = append(choices, Choice{
			Bindings: append(bl, br...),
			Tag:      TagDerived{Premises: []Premise{premise}},
		})
	}
	if len(choices) == 0 {
		return Contradicted()
	}
	return Alternatives(choices)
}

// registerEqualHandlers wires the Equal and NotEqual handler families.
func registerEqualHandlers(r *Registry) {
	r.Register(Equal, equalFromEntriesHandler{})
	r.Register(Equal, newEntryEqualHandler{})
	r.Register(Equal, transitiveEqualHandler{})
	r.Register(Equal, copyBinaryHandler{pred: Equal})
	r.Register(NotEqual, notEqualFromEntriesHandler{})
	r.Register(NotEqual, ltToNotEqualHandler{})
	r.Register(NotEqual, copyBinaryHandler{pred: NotEqual})
}
