// Package entail copy propagators.
//
// This file implements the structural copy handlers shared by every binary
// and ternary native predicate: they enumerate ground statements in the EDB
// whose shape matches the goal template and emit one CopyStatement choice
// per match, binding whatever wildcards the row determines. When a template
// carries an anchored key with an unbound root, copy enumerates every EDB
// row with a matching key.
package entail

// sideKind is the normalized shape of one template argument for copy
// matching.
type sideKind int

const (
	sideGround sideKind = iota
	sideFreeWild
	sideAKBound
	sideAKFree
	sideInvalid
)

// side is a template argument normalized against the store.
type side struct {
	kind sideKind
	val  Value  // sideGround
	wild int    // sideFreeWild, sideAKFree (root wildcard)
	root Hash   // sideAKBound
	key  string // sideAKBound, sideAKFree
}

// normalizeSide folds bound wildcards into ground values and classifies
// anchored keys by whether their root is bound.
func normalizeSide(a TemplateArg, store *ConstraintStore) side {
	switch t := a.(type) {
	case LiteralArg:
		return side{kind: sideGround, val: t.Value}
	case WildcardArg:
		if v, ok := store.Get(t.Wildcard.Index); ok {
			return side{kind: sideGround, val: v}
		}
		return side{kind: sideFreeWild, wild: t.Wildcard.Index}
	case AnchoredKeyArg:
		if v, ok := store.Get(t.Root.Index); ok {
			root, ok := RootOf(v)
			if !ok {
				return side{kind: sideInvalid}
			}
			return side{kind: sideAKBound, root: root, key: t.Key}
		}
		return side{kind: sideAKFree, wild: t.Root.Index, key: t.Key}
	default:
		return side{kind: sideInvalid}
	}
}

// selector translates a normalized side into the row selector that
// enumerates compatible EDB rows.
func (s side) selector() (ArgSel, bool) {
	switch s.kind {
	case sideGround:
		return SelLiteral(s.val), true
	case sideFreeWild:
		return SelVal(), true
	case sideAKBound:
		return SelAKExact(s.root, s.key), true
	case sideAKFree:
		return SelAKKey(s.key), true
	default:
		return ArgSel{}, false
	}
}

// rowBinding derives the binding a matched row imposes for this side, if
// any.
func (s side) rowBinding(arg RowArg) ([]Binding, bool) {
	switch s.kind {
	case sideGround, sideAKBound:
		return nil, true
	case sideFreeWild:
		v, ok := arg.AsLiteral()
		if !ok {
			return nil, false
		}
		return []Binding{{Wildcard: s.wild, Value: v}}, true
	case sideAKFree:
		ak, ok := arg.AsAnchoredKey()
		if !ok {
			return nil, false
		}
		return []Binding{{Wildcard: s.wild, Value: HashValue(ak.Root)}}, true
	default:
		return nil, false
	}
}

// copyBinaryHandler enumerates copied ground statements of one binary
// predicate.
type copyBinaryHandler struct {
	pred NativePredicate
}

// Propagate implements Propagator.
func (h copyBinaryHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
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
	for _, row := range edb.BinaryView(h.pred, selL, selR) {
		bl, ok := left.rowBinding(row.Left)
		if !ok {
			continue
		}
		br, ok := right.rowBinding(row.Right)
		if !ok {
			continue
		}
		choices = append(choices, Choice{
			Bindings: append(bl, br...),
			Tag:      TagCopyStatement{Source: row.Source},
		})
	}
	if len(choices) == 0 {
		return suspendOrContradict(args, store)
	}
	return Alternatives(choices)
}

// copyTernaryHandler enumerates copied ground statements of one ternary
// predicate.
type copyTernaryHandler struct {
	pred NativePredicate
}

// Propagate implements Propagator.
func (h copyTernaryHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 3 {
		return Contradicted()
	}
	sides := make([]side, 3)
	sels := make([]ArgSel, 3)
	for i, a := range args {
		sides[i] = normalizeSide(a, store)
		if sides[i].kind == sideInvalid {
			return Contradicted()
		}
		sels[i], _ = sides[i].selector()
	}

	var choices []Choice
	for _, row := range edb.TernaryView(h.pred, sels[0], sels[1], sels[2]) {
		rowArgs := [3]RowArg{row.First, row.Second, row.Third}
		var bindings []Binding
		ok := true
		for i := range sides {
			b, bok := sides[i].rowBinding(rowArgs[i])
			if !bok {
				ok = false
				break
			}
			bindings = append(bindings, b...)
		}
		if !ok {
			continue
		}
		choices = append(choices, Choice{
			Bindings: bindings,
			Tag:      TagCopyStatement{Source: row.Source},
		})
	}
	if len(choices) == 0 {
		return suspendOrContradict(args, store)
	}
	return Alternatives(choices)
}
