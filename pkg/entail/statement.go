// Package entail ground statements and predicate identities.
//
// This file implements the Predicate union (native, custom, batch-self) and
// the instantiated Statement form recorded in premises and emitted by the
// proof reconstructor.
package entail

import (
	"fmt"
	"strings"
)

// NativePredicate enumerates the predicates with fixed semantics. Custom
// predicates are user-defined and resolved through batches.
type NativePredicate int

const (
	Equal NativePredicate = iota
	NotEqual
	Lt
	LtEq
	Gt
	GtEq
	Contains
	NotContains
	SumOf
	ProductOf
	MaxOf
	HashOf
	PublicKeyOf
	SignedBy
)

// nativeNames is indexed by NativePredicate.
var nativeNames = [...]string{
	"Equal", "NotEqual", "Lt", "LtEq", "Gt", "GtEq",
	"Contains", "NotContains", "SumOf", "ProductOf", "MaxOf",
	"HashOf", "PublicKeyOf", "SignedBy",
}

// String returns the predicate name.
func (p NativePredicate) String() string {
	if int(p) < len(nativeNames) {
		return nativeNames[p]
	}
	return fmt.Sprintf("Native(%d)", int(p))
}

// Arity returns the number of arguments the predicate takes.
func (p NativePredicate) Arity() int {
	switch p {
	case Contains, NotContains, SumOf, ProductOf, MaxOf, HashOf:
		return 3
	default:
		return 2
	}
}

// isPredicate marks NativePredicate as a Predicate union member.
func (p NativePredicate) isPredicate() {}

// Predicate identifies what a statement or template asserts: a native
// predicate, a concrete custom predicate, or a self-reference into the
// enclosing batch (resolved by the planner before execution).
type Predicate interface {
	isPredicate()
	String() string
}

// BatchSelf references entry i of the batch the containing definition
// belongs to. It is only legal inside custom predicate bodies.
type BatchSelf int

// String returns the reference rendering.
func (b BatchSelf) String() string { return fmt.Sprintf("self(%d)", int(b)) }

func (b BatchSelf) isPredicate() {}

// ValueRef is an instantiated statement argument: either a literal value or
// an anchored key into a container.
type ValueRef interface {
	isValueRef()
	String() string
}

// LiteralRef wraps a ground value.
type LiteralRef struct {
	Value Value
}

func (LiteralRef) isValueRef() {}

// String implements ValueRef.
func (r LiteralRef) String() string { return r.Value.String() }

// KeyRef wraps an anchored key.
type KeyRef struct {
	AK AnchoredKey
}

func (KeyRef) isValueRef() {}

// String implements ValueRef.
func (r KeyRef) String() string { return r.AK.String() }

// Lit builds a LiteralRef.
func Lit(v Value) ValueRef { return LiteralRef{Value: v} }

// Key builds a KeyRef.
func Key(root Hash, key string) ValueRef {
	return KeyRef{AK: AnchoredKey{Root: root, Key: key}}
}

// valueRefsEqual compares two refs structurally.
func valueRefsEqual(a, b ValueRef) bool {
	switch ta := a.(type) {
	case LiteralRef:
		tb, ok := b.(LiteralRef)
		return ok && valuesEqual(ta.Value, tb.Value)
	case KeyRef:
		tb, ok := b.(KeyRef)
		return ok && ta.AK == tb.AK
	default:
		return false
	}
}

// Statement is a fully instantiated assertion: a predicate applied to
// ground arguments. Statements appear as EDB rows, recorded premises and
// operation conclusions.
type Statement struct {
	Predicate Predicate
	Args      []ValueRef
}

// NewStatement builds a statement.
func NewStatement(pred Predicate, args ...ValueRef) Statement {
	return Statement{Predicate: pred, Args: args}
}

// ContainsStatement builds the Contains(root, key, value) fact justifying
// an anchored-key extraction.
func ContainsStatement(root Hash, key string, v Value) Statement {
	return NewStatement(Contains,
		Lit(HashValue(root)), Lit(NewString(key)), Lit(v))
}

// Equal reports structural equality of two statements.
func (s Statement) Equal(other Statement) bool {
	if s.Predicate.String() != other.Predicate.String() {
		return false
	}
	if len(s.Args) != len(other.Args) {
		return false
	}
	for i := range s.Args {
		if !valueRefsEqual(s.Args[i], other.Args[i]) {
			return false
		}
	}
	return true
}

// String returns the rendering Pred(arg, ...).
func (s Statement) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", s.Predicate, strings.Join(parts, ", "))
}

// key returns a canonical string identity used for dedup in the proof
// reconstructor.
func (s Statement) key() string {
	var b strings.Builder
	b.WriteString(s.Predicate.String())
	for _, a := range s.Args {
		b.WriteByte('|')
		switch t := a.(type) {
		case LiteralRef:
			c := t.Value.Commitment()
			b.WriteString(c.Hex())
		case KeyRef:
			b.WriteString(t.AK.Root.Hex())
			b.WriteByte(':')
			b.WriteString(t.AK.Key)
		}
	}
	return b.String()
}
