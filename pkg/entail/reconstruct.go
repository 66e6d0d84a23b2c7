// Package entail proof reconstruction.
//
// This file implements the conversion of an accepted answer's premise list
// into a topologically ordered operation list: each operation's inputs are
// prior operations' outputs, ground facts identified by source, or literal
// values. Derived premises emit their sub-operations first; duplicate
// conclusions collapse onto the first emission, so the output is idempotent
// given the same answer and EDB.
package entail

import (
	"fmt"
)

// OpKind enumerates the operations a verifier can re-execute.
type OpKind int

const (
	// OpCopyStatement copies a ground statement from a source pod.
	OpCopyStatement OpKind = iota

	// OpContainsFromEntries looks a key up inside a full container known
	// to the EDB.
	OpContainsFromEntries

	// OpNewEntry introduces a fresh entry of the pod under construction.
	OpNewEntry

	// OpEqualFromEntries through OpSignedBy are the native value
	// computations.
	OpEqualFromEntries
	OpNotEqualFromEntries
	OpLtFromEntries
	OpLtEqFromEntries
	OpGtFromEntries
	OpGtEqFromEntries
	OpNotContainsFromEntries
	OpSumOf
	OpProductOf
	OpMaxOf
	OpHashOf
	OpPublicKeyOf
	OpSignedBy

	// OpTransitiveEqualFromStatements chains two equality statements.
	OpTransitiveEqualFromStatements

	// OpLtToNotEqual derives inequality from strict order.
	OpLtToNotEqual

	// OpCustomDeduction concludes a custom predicate from its body
	// statements.
	OpCustomDeduction
)

// opKindNames is indexed by OpKind.
var opKindNames = [...]string{
	"CopyStatement", "ContainsFromEntries", "NewEntry",
	"EqualFromEntries", "NotEqualFromEntries", "LtFromEntries",
	"LtEqFromEntries", "GtFromEntries", "GtEqFromEntries",
	"NotContainsFromEntries", "SumOf", "ProductOf", "MaxOf", "HashOf",
	"PublicKeyOf", "SignedBy", "TransitiveEqualFromStatements",
	"LtToNotEqual", "CustomDeduction",
}

// String returns the operation kind name.
func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Operation is one step of the reconstructed proof. Inputs index earlier
// operations in the emitted list, so the list is topologically ordered by
// construction.
type Operation struct {
	Kind       OpKind
	Conclusion Statement
	Inputs     []int

	// Source identifies the pod for copy operations.
	Source *PodRef

	// Custom names the predicate for custom deductions.
	Custom *CustomRef

	// Public marks operations concluding the original request templates.
	Public bool
}

// String renders the operation for diagnostics.
func (o Operation) String() string {
	vis := "private"
	if o.Public {
		vis = "public"
	}
	return fmt.Sprintf("%s ⇒ %s [%s]", o.Kind, o.Conclusion, vis)
}

// nativeOpKind maps a native predicate to its from-entries operation.
func nativeOpKind(pred Predicate) (OpKind, bool) {
	np, ok := pred.(NativePredicate)
	if !ok {
		return 0, false
	}
	switch np {
	case Equal:
		return OpEqualFromEntries, true
	case NotEqual:
		return OpNotEqualFromEntries, true
	case Lt:
		return OpLtFromEntries, true
	case LtEq:
		return OpLtEqFromEntries, true
	case Gt:
		return OpGtFromEntries, true
	case GtEq:
		return OpGtEqFromEntries, true
	case Contains:
		return OpContainsFromEntries, true
	case NotContains:
		return OpNotContainsFromEntries, true
	case SumOf:
		return OpSumOf, true
	case ProductOf:
		return OpProductOf, true
	case MaxOf:
		return OpMaxOf, true
	case HashOf:
		return OpHashOf, true
	case PublicKeyOf:
		return OpPublicKeyOf, true
	case SignedBy:
		return OpSignedBy, true
	default:
		return 0, false
	}
}

// reconstructor accumulates the operation list and the dedup index keyed
// by conclusion.
type reconstructor struct {
	ops   []Operation
	index map[string]int
}

func newReconstructor() *reconstructor {
	return &reconstructor{index: make(map[string]int)}
}

// push appends an operation unless an earlier one already concludes the
// same statement.
func (r *reconstructor) push(op Operation) int {
	key := op.Conclusion.key()
	if idx, ok := r.index[key]; ok {
		return idx
	}
	r.ops = append(r.ops, op)
	idx := len(r.ops) - 1
	r.index[key] = idx
	return idx
}

// emit converts one premise into operations, returning the index of the
// operation concluding its statement.
func (r *reconstructor) emit(p Premise) (int, error) {
	switch tag := p.Tag.(type) {
	case TagCopyStatement:
		src := tag.Source
		return r.push(Operation{
			Kind:       OpCopyStatement,
			Conclusion: p.Statement,
			Source:     &src,
		}), nil

	case TagGeneratedContains:
		return r.push(Operation{
			Kind:       OpContainsFromEntries,
			Conclusion: p.Statement,
		}), nil

	case TagNewEntry:
		return r.push(Operation{
			Kind:       OpNewEntry,
			Conclusion: p.Statement,
		}), nil

	case TagFromLiterals:
		kind, ok := nativeOpKind(p.Statement.Predicate)
		if !ok {
			return 0, internalf("from-literals premise with non-native predicate %s", p.Statement.Predicate)
		}
		return r.push(Operation{Kind: kind, Conclusion: p.Statement}), nil

	case TagDerived:
		return r.emitDerived(p, tag)

	default:
		return 0, internalf("unknown operation tag %T", p.Tag)
	}
}

// emitDerived handles the Derived tag: sub-premises first, then the
// parent, specialized for transitive equality chains, Lt-to-NotEqual, and
// custom deductions.
func (r *reconstructor) emitDerived(p Premise, tag TagDerived) (int, error) {
	inputs := make([]int, 0, len(tag.Premises))
	for _, sub := range tag.Premises {
		idx, err := r.emit(sub)
		if err != nil {
			return 0, err
		}
		inputs = append(inputs, idx)
	}

	if cr, ok := p.Statement.Predicate.(CustomRef); ok {
		ref := cr
		return r.push(Operation{
			Kind:       OpCustomDeduction,
			Conclusion: p.Statement,
			Inputs:     inputs,
			Custom:     &ref,
		}), nil
	}

	if isEqualityChain(p.Statement, tag.Premises) {
		return r.emitTransitiveChain(p, tag.Premises, inputs)
	}

	if np, ok := p.Statement.Predicate.(NativePredicate); ok && np == NotEqual {
		if len(tag.Premises) == 1 {
			if sp, ok := tag.Premises[0].Statement.Predicate.(NativePredicate); ok && sp == Lt {
				return r.push(Operation{
					Kind:       OpLtToNotEqual,
					Conclusion: p.Statement,
					Inputs:     inputs,
				}), nil
			}
		}
	}

	kind, ok := nativeOpKind(p.Statement.Predicate)
	if !ok {
		return 0, internalf("derived premise with unmappable predicate %s", p.Statement.Predicate)
	}
	return r.push(Operation{Kind: kind, Conclusion: p.Statement, Inputs: inputs}), nil
}

// isEqualityChain recognizes a Derived Equal whose premises form a
// pairwise equality chain of length at least two.
func isEqualityChain(conclusion Statement, subs []Premise) bool {
	np, ok := conclusion.Predicate.(NativePredicate)
	if !ok || np != Equal || len(subs) < 2 {
		return false
	}
	for _, s := range subs {
		sp, ok := s.Statement.Predicate.(NativePredicate)
		if !ok || sp != Equal || len(s.Statement.Args) != 2 {
			return false
		}
	}
	return true
}

// emitTransitiveChain folds a chain of equalities into pairwise
// transitive-equality steps: Equal(a,b), Equal(b,c) yields Equal(a,c),
// which combines with Equal(c,d), and so on until the conclusion.
func (r *reconstructor) emitTransitiveChain(p Premise, subs []Premise, inputs []int) (int, error) {
	if len(inputs) != len(subs) {
		return 0, internalf("transitive chain arity mismatch")
	}
	left := subs[0].Statement.Args[0]
	cur := inputs[0]
	for k := 1; k < len(subs); k++ {
		right := subs[k].Statement.Args[1]
		conclusion := NewStatement(Equal, left, right)
		if k == len(subs)-1 {
			conclusion = p.Statement
		}
		cur = r.push(Operation{
			Kind:       OpTransitiveEqualFromStatements,
			Conclusion: conclusion,
			Inputs:     []int{cur, inputs[k]},
		})
	}
	return cur, nil
}

// ReconstructOperations walks an answer's premises in order and produces
// the topologically ordered operation list. Operations concluding the
// instantiated request templates are marked public, the rest private.
func ReconstructOperations(answer *ConstraintStore, request []StatementTmpl) ([]Operation, error) {
	if answer == nil {
		return nil, internalf("reconstruct: nil answer")
	}
	r := newReconstructor()
	for _, p := range answer.Premises {
		if _, err := r.emit(p); err != nil {
			return nil, err
		}
	}

	for _, tmpl := range request {
		stmt, ok := InstantiateGoal(tmpl, answer)
		if !ok {
			return nil, internalf("request template %s has unbound wildcards in the answer", tmpl)
		}
		if idx, ok := r.index[stmt.key()]; ok {
			r.ops[idx].Public = true
		}
	}
	return r.ops, nil
}

// VDSet stands in for the verifier data set of the surrounding pod
// system; the core treats it as opaque.
type VDSet struct {
	Root Hash
}

// ProveFn is the caller-supplied closure invoked once with the final
// operation list.
type ProveFn func(ops []Operation) error

// BuildPodFromAnswerTopLevelPublic orchestrates operation emission for one
// accepted answer: binding overrides are applied, the operation list is
// reconstructed with the request templates public, the proof-shape limits
// are enforced, and proveFn is invoked once with the result.
func BuildPodFromAnswerTopLevelPublic(
	answer *ConstraintStore,
	params Params,
	vdSet *VDSet,
	proveFn ProveFn,
	bindingsOverrides map[int]Value,
	request []StatementTmpl,
	edb EdbView,
) ([]Operation, error) {
	if answer == nil {
		return nil, internalf("build pod: nil answer")
	}
	effective := answer
	if len(bindingsOverrides) > 0 {
		effective = answer.Clone()
		for w, v := range bindingsOverrides {
			effective.Bindings[w] = v
		}
	}

	ops, err := ReconstructOperations(effective, request)
	if err != nil {
		return nil, err
	}

	if params.MaxStatements > 0 && len(ops) > params.MaxStatements {
		return nil, &SafetyLimitError{Limit: "operations", Value: len(ops), Budget: params.MaxStatements}
	}
	public := 0
	for _, op := range ops {
		if op.Public {
			public++
		}
	}
	if params.MaxPublicStatements > 0 && public > params.MaxPublicStatements {
		return nil, &SafetyLimitError{Limit: "public operations", Value: public, Budget: params.MaxPublicStatements}
	}

	if proveFn != nil {
		if err := proveFn(ops); err != nil {
			return nil, err
		}
	}
	return ops, nil
}
