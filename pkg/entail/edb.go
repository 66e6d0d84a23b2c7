// Package entail fact database: the indexed read-only view of ground
// statements consumed by propagators.
//
// This file implements the EdbView interface and its immutable in-memory
// realization. The database holds two kinds of entries: copied ground
// statements asserted by pods (enumerable by predicate and argument shape)
// and full containers whose contents are known (allowing value extraction
// for any key). The database is immutable during a run and may be shared by
// reference across engines.
package entail

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// PodRef identifies the pod that asserted a copied statement.
type PodRef Hash

// String returns an abbreviated rendering.
func (p PodRef) String() string { return "pod:" + Hash(p).String() }

// ContainsOrigin reports how a (root, key, value) triple is known to the
// database: extracted from a full container (Generated) or copied from a
// pod statement.
type ContainsOrigin struct {
	Generated bool
	Pod       PodRef
}

// Tag converts the origin into the operation tag provenance for the
// Contains fact it justifies.
func (o ContainsOrigin) Tag(root Hash, key string) OpTag {
	if o.Generated {
		return TagGeneratedContains{Root: root, Key: key}
	}
	return TagCopyStatement{Source: o.Pod}
}

// selKind discriminates argument selectors.
type selKind int

const (
	selAny selKind = iota
	selAnyLiteral
	selLiteral
	selAnyAK
	selAKKey
	selAKExact
)

// ArgSel selects statement rows by argument shape during view enumeration.
type ArgSel struct {
	kind selKind
	lit  Value
	key  string
	root Hash
}

// SelAny matches any argument.
func SelAny() ArgSel { return ArgSel{kind: selAny} }

// SelVal matches any literal argument.
func SelVal() ArgSel { return ArgSel{kind: selAnyLiteral} }

// SelLiteral matches a literal argument equal to v.
func SelLiteral(v Value) ArgSel { return ArgSel{kind: selLiteral, lit: v} }

// SelAK matches any anchored-key argument.
func SelAK() ArgSel { return ArgSel{kind: selAnyAK} }

// SelAKKey matches an anchored-key argument with the given key name.
func SelAKKey(key string) ArgSel { return ArgSel{kind: selAKKey, key: key} }

// SelAKExact matches the anchored key (root, key) exactly.
func SelAKExact(root Hash, key string) ArgSel {
	return ArgSel{kind: selAKExact, root: root, key: key}
}

func (s ArgSel) matches(a ValueRef) bool {
	switch s.kind {
	case selAny:
		return true
	case selAnyLiteral:
		_, ok := a.(LiteralRef)
		return ok
	case selLiteral:
		l, ok := a.(LiteralRef)
		return ok && valuesEqual(l.Value, s.lit)
	case selAnyAK:
		_, ok := a.(KeyRef)
		return ok
	case selAKKey:
		k, ok := a.(KeyRef)
		return ok && k.AK.Key == s.key
	case selAKExact:
		k, ok := a.(KeyRef)
		return ok && k.AK.Root == s.root && k.AK.Key == s.key
	default:
		return false
	}
}

// ContainsMatch is one (root, value) pair known to hold a given key,
// together with how the database knows it.
type ContainsMatch struct {
	Root   Hash
	Value  Value
	Origin ContainsOrigin
}

// RowArg is one argument of an enumerated statement row.
type RowArg struct {
	ref ValueRef
}

// AsLiteral returns the literal value if the argument is one.
func (r RowArg) AsLiteral() (Value, bool) {
	l, ok := r.ref.(LiteralRef)
	if !ok {
		return nil, false
	}
	return l.Value, true
}

// AsAnchoredKey returns the anchored key if the argument is one.
func (r RowArg) AsAnchoredKey() (AnchoredKey, bool) {
	k, ok := r.ref.(KeyRef)
	if !ok {
		return AnchoredKey{}, false
	}
	return k.AK, true
}

// BinaryRow is one enumerated row of a binary predicate view.
type BinaryRow struct {
	Left   RowArg
	Right  RowArg
	Source PodRef
}

// TernaryRow is one enumerated row of a ternary predicate view.
type TernaryRow struct {
	First  RowArg
	Second RowArg
	Third  RowArg
	Source PodRef
}

// EdbView is the read-only fact database consumed by propagators and the
// proof reconstructor.
type EdbView interface {
	// ContainsValue looks a key up inside a full container known to the
	// database.
	ContainsValue(root Hash, key string) (Value, bool)

	// ContainsSource reports the origin of a (root, key, value) triple,
	// preferring full-container extraction over copied facts.
	ContainsSource(root Hash, key string, value Value) (ContainsOrigin, bool)

	// BinaryView enumerates rows of a binary predicate whose arguments
	// match the selectors.
	BinaryView(pred NativePredicate, left, right ArgSel) []BinaryRow

	// TernaryView enumerates rows of a ternary predicate whose arguments
	// match the selectors.
	TernaryView(pred NativePredicate, first, second, third ArgSel) []TernaryRow

	// FullContainer retrieves a full container by commitment.
	FullContainer(root Hash) (Value, bool)

	// FullDict retrieves a full dictionary by commitment.
	FullDict(root Hash) (*Dictionary, bool)

	// FullArray retrieves a full array by commitment.
	FullArray(root Hash) (*Array, bool)

	// FullSet retrieves a full set by commitment.
	FullSet(root Hash) (*SetValue, bool)

	// ContainsMatches enumerates every (root, value) pair holding the
	// given key: full-container entries first, then copied Contains
	// facts, each in root order. Equal uses it to bind anchored-key
	// roots that are still free.
	ContainsMatches(key string) []ContainsMatch

	// Keypairs enumerates the known keypairs for PublicKeyOf.
	Keypairs() []Keypair
}

type storedStatement struct {
	stmt Statement
	pod  PodRef
}

type containsEntry struct {
	root   Hash
	key    string
	value  Value
	origin ContainsOrigin
}

// ImmutableEdb is the standard in-memory EdbView. Build one with
// EdbBuilder; it is never mutated afterwards.
type ImmutableEdb struct {
	byPredicate map[NativePredicate][]storedStatement
	containers  map[Hash]Value
	contains    map[uint64][]containsEntry
	keypairs    []Keypair
}

func containsIndexKey(root Hash, key string) uint64 {
	d := xxhash.New()
	_, _ = d.Write(root[:])
	_, _ = d.WriteString(key)
	return d.Sum64()
}

// ContainsValue implements EdbView.
func (e *ImmutableEdb) ContainsValue(root Hash, key string) (Value, bool) {
	if c, ok := e.containers[root]; ok {
		if v, ok := containerLookup(c, key); ok {
			return v, true
		}
	}
	for _, ent := range e.contains[containsIndexKey(root, key)] {
		if ent.root == root && ent.key == key {
			return ent.value, true
		}
	}
	return nil, false
}

// ContainsSource implements EdbView. Full containers take precedence so
// that computed derivations are preferred over mere copies.
func (e *ImmutableEdb) ContainsSource(root Hash, key string, value Value) (ContainsOrigin, bool) {
	if c, ok := e.containers[root]; ok {
		if v, ok := containerLookup(c, key); ok && valuesEqual(v, value) {
			return ContainsOrigin{Generated: true}, true
		}
	}
	for _, ent := range e.contains[containsIndexKey(root, key)] {
		if ent.root == root && ent.key == key && valuesEqual(ent.value, value) {
			return ent.origin, true
		}
	}
	return ContainsOrigin{}, false
}

// BinaryView implements EdbView.
func (e *ImmutableEdb) BinaryView(pred NativePredicate, left, right ArgSel) []BinaryRow {
	var out []BinaryRow
	for _, st := range e.byPredicate[pred] {
		if len(st.stmt.Args) != 2 {
			continue
		}
		if left.matches(st.stmt.Args[0]) && right.matches(st.stmt.Args[1]) {
			out = append(out, BinaryRow{
				Left:   RowArg{ref: st.stmt.Args[0]},
				Right:  RowArg{ref: st.stmt.Args[1]},
				Source: st.pod,
			})
		}
	}
	return out
}

// TernaryView implements EdbView.
func (e *ImmutableEdb) TernaryView(pred NativePredicate, first, second, third ArgSel) []TernaryRow {
	var out []TernaryRow
	for _, st := range e.byPredicate[pred] {
		if len(st.stmt.Args) != 3 {
			continue
		}
		if first.matches(st.stmt.Args[0]) && second.matches(st.stmt.Args[1]) && third.matches(st.stmt.Args[2]) {
			out = append(out, TernaryRow{
				First:  RowArg{ref: st.stmt.Args[0]},
				Second: RowArg{ref: st.stmt.Args[1]},
				Third:  RowArg{ref: st.stmt.Args[2]},
				Source: st.pod,
			})
		}
	}
	return out
}

// FullContainer implements EdbView.
func (e *ImmutableEdb) FullContainer(root Hash) (Value, bool) {
	c, ok := e.containers[root]
	return c, ok
}

// FullDict implements EdbView.
func (e *ImmutableEdb) FullDict(root Hash) (*Dictionary, bool) {
	d, ok := e.containers[root].(*Dictionary)
	return d, ok
}

// FullArray implements EdbView.
func (e *ImmutableEdb) FullArray(root Hash) (*Array, bool) {
	a, ok := e.containers[root].(*Array)
	return a, ok
}

// FullSet implements EdbView.
func (e *ImmutableEdb) FullSet(root Hash) (*SetValue, bool) {
	s, ok := e.containers[root].(*SetValue)
	return s, ok
}

// ContainsMatches implements EdbView.
func (e *ImmutableEdb) ContainsMatches(key string) []ContainsMatch {
	var full, copied []ContainsMatch
	for root, c := range e.containers {
		if v, ok := containerLookup(c, key); ok {
			full = append(full, ContainsMatch{
				Root:   root,
				Value:  v,
				Origin: ContainsOrigin{Generated: true},
			})
		}
	}
	for _, entries := range e.contains {
		for _, ent := range entries {
			if ent.key == key {
				copied = append(copied, ContainsMatch{
					Root:   ent.root,
					Value:  ent.value,
					Origin: ent.origin,
				})
			}
		}
	}
	byRoot := func(ms []ContainsMatch) {
		sort.Slice(ms, func(i, j int) bool {
			return string(ms[i].Root[:]) < string(ms[j].Root[:])
		})
	}
	byRoot(full)
	byRoot(copied)
	return append(full, copied...)
}

// Keypairs implements EdbView.
func (e *ImmutableEdb) Keypairs() []Keypair {
	return e.keypairs
}

// EdbBuilder accumulates facts and produces an ImmutableEdb. The builder is
// single-use; Add methods must not be called after Build.
type EdbBuilder struct {
	edb *ImmutableEdb
}

// NewEdbBuilder creates an empty builder.
func NewEdbBuilder() *EdbBuilder {
	return &EdbBuilder{edb: &ImmutableEdb{
		byPredicate: make(map[NativePredicate][]storedStatement),
		containers:  make(map[Hash]Value),
		contains:    make(map[uint64][]containsEntry),
	}}
}

// AddStatement records a copied ground statement asserted by the given pod.
// Contains statements with a hash root additionally populate the contains
// index.
func (b *EdbBuilder) AddStatement(stmt Statement, pod PodRef) *EdbBuilder {
	np, ok := stmt.Predicate.(NativePredicate)
	if !ok {
		return b
	}
	b.edb.byPredicate[np] = append(b.edb.byPredicate[np], storedStatement{stmt: stmt, pod: pod})
	if np == Contains && len(stmt.Args) == 3 {
		rootLit, okR := stmt.Args[0].(LiteralRef)
		keyLit, okK := stmt.Args[1].(LiteralRef)
		valLit, okV := stmt.Args[2].(LiteralRef)
		if okR && okK && okV {
			if root, ok := RootOf(rootLit.Value); ok {
				if key, ok := keyLit.Value.(Str); ok {
					ik := containsIndexKey(root, string(key))
					b.edb.contains[ik] = append(b.edb.contains[ik], containsEntry{
						root:   root,
						key:    string(key),
						value:  valLit.Value,
						origin: ContainsOrigin{Pod: pod},
					})
				}
			}
		}
	}
	return b
}

// AddCopiedContains records a pod-asserted Contains(root, key, value) fact.
func (b *EdbBuilder) AddCopiedContains(root Hash, key string, value Value, pod PodRef) *EdbBuilder {
	return b.AddStatement(ContainsStatement(root, key, value), pod)
}

// AddFullDict registers a dictionary whose full contents are known.
func (b *EdbBuilder) AddFullDict(d *Dictionary) *EdbBuilder {
	b.edb.containers[d.Commitment()] = d
	return b
}

// AddFullArray registers an array whose full contents are known.
func (b *EdbBuilder) AddFullArray(a *Array) *EdbBuilder {
	b.edb.containers[a.Commitment()] = a
	return b
}

// AddFullSet registers a set whose full contents are known.
func (b *EdbBuilder) AddFullSet(s *SetValue) *EdbBuilder {
	b.edb.containers[s.Commitment()] = s
	return b
}

// AddKeypair registers a keypair for PublicKeyOf enumeration.
func (b *EdbBuilder) AddKeypair(sk SecretKey) *EdbBuilder {
	b.edb.keypairs = append(b.edb.keypairs, Keypair{
		Public: DerivePublicKey(sk),
		Secret: sk,
	})
	return b
}

// AddSignedDict registers a dictionary attested by the holder of sk: the
// full container, a SignedBy(dict, publicKey) row sourced to the dict's
// root, and the signer's keypair.
func (b *EdbBuilder) AddSignedDict(d *Dictionary, sk SecretKey) *EdbBuilder {
	b.AddFullDict(d)
	b.AddKeypair(sk)
	pk := DerivePublicKey(sk)
	b.AddStatement(
		NewStatement(SignedBy, Lit(d), Lit(pk)),
		PodRef(d.Commitment()),
	)
	return b
}

// Build finalizes the database.
func (b *EdbBuilder) Build() *ImmutableEdb {
	return b.edb
}
