// Package entail key derivation propagators.
//
// This file implements the handler families for PublicKeyOf and SignedBy.
// PublicKeyOf is multi-answer: with neither side bound it enumerates the
// EDB's known keypairs; otherwise it deduces one side from the other, in
// the forward direction by derivation and in reverse by keypair lookup.
package entail

// publicKeyOfHandler proves PublicKeyOf(publicKey, secretKey).
type publicKeyOfHandler struct{}

// Propagate implements Propagator.
func (publicKeyOfHandler) Propagate(args []TemplateArg, store *ConstraintStore, edb EdbView) PropagatorResult {
	if len(args) != 2 {
		return Contradicted()
	}
	pkRes := resolveValueArg(args[0], store, edb)
	skRes := resolveValueArg(args[1], store, edb)
	if pkRes.class == argNoFact || skRes.class == argNoFact {
		return Contradicted()
	}

	premises := append(pkRes.premises, skRes.premises...)

	// Secret side ground: derive forward.
	if skRes.class == argGround {
		sk, ok := skRes.value.(SecretKey)
		if !ok {
			return Contradicted()
		}
		derived := DerivePublicKey(sk)
		if pkRes.class == argGround {
			if !valuesEqual(pkRes.value, derived) {
				return Contradicted()
			}
			return entailWithPremises(nil, premises)
		}
		if w, ok := args[0].(WildcardArg); ok {
			return entailWithPremises(
				[]Binding{{Wildcard: w.Wildcard.Index, Value: derived}},
				premises,
			)
		}
		return Suspend(pkRes.wait)
	}

	// Public side ground: reverse lookup through the keypair index.
	if pkRes.class == argGround {
		pk, ok := pkRes.value.(PublicKey)
		if !ok {
			return Contradicted()
		}
		w, isWild := args[1].(WildcardArg)
		if !isWild {
			return Suspend(skRes.wait)
		}
		var choices []Choice
		for _, kp := range edb.Keypairs() {
			if kp.Public == pk {
				choices = append(choices, Choice{
					Bindings: []Binding{{Wildcard: w.Wildcard.Index, Value: kp.Secret}},
					Tag:      TagFromLiterals{},
				})
			}
		}
		if len(choices) == 0 {
			return Contradicted()
		}
		return Alternatives(choices)
	}

	// Neither side bound: enumerate every known keypair.
	wpk, okPk := args[0].(WildcardArg)
	wsk, okSk := args[1].(WildcardArg)
	if !okPk || !okSk {
		return Suspend(pkRes.wait, skRes.wait)
	}
	var choices []Choice
	for _, kp := range edb.Keypairs() {
		choices = append(choices, Choice{
			Bindings: []Binding{
				{Wildcard: wpk.Wildcard.Index, Value: kp.Public},
				{Wildcard: wsk.Wildcard.Index, Value: kp.Secret},
			},
			Tag: TagFromLiterals{},
		})
	}
	if len(choices) == 0 {
		return Suspend(wpk.Wildcard.Index, wsk.Wildcard.Index)
	}
	return Alternatives(choices)
}

// registerKeyHandlers wires the key handler families. SignedBy has no
// value propagator; signatures only enter the system as pod-asserted rows.
func registerKeyHandlers(r *Registry) {
	r.Register(PublicKeyOf, publicKeyOfHandler{})
	r.Register(SignedBy, copyBinaryHandler{pred: SignedBy})
}
