// Package entail value model: tagged values with canonical equality and
// hashing.
//
// This file implements the primitive value kinds (int, string, bool, bytes,
// hash, public key, secret key) and the commitment scheme shared by all
// values. Containers (dictionary, array, set) live in containers.go.
//
// Every value exposes a stable 32-byte commitment computed with
// domain-separated SHA3-256. Two values are equal iff their commitments are
// equal; the engine relies on this to deduplicate bindings and to identify
// containers by root.
package entail

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte value commitment. Container roots, statement sources and
// derived keys are all hashes.
type Hash [32]byte

// Hex returns the full lowercase hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String returns an abbreviated hex form suitable for log output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:4]) + "…"
}

// Domain-separation tags for commitment hashing. Each value kind hashes its
// payload under a distinct leading tag so that, for example, the bytes value
// 0x01 can never collide with the integer 1.
const (
	tagInt byte = iota + 1
	tagString
	tagBool
	tagBytes
	tagHash
	tagPublicKey
	tagSecretKey
	tagDictionary
	tagArray
	tagSet
	tagSelf
	tagHashOf
)

// hashParts computes a domain-separated SHA3-256 over the concatenation of
// the given byte slices.
func hashParts(tag byte, parts ...[]byte) Hash {
	h := sha3.New256()
	h.Write([]byte{tag})
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// SelfRoot is the dedicated "self" container marker. An anchored key whose
// root resolves to SelfRoot refers to an entry of the pod currently under
// construction; the Equal propagator entails such goals with a NewEntry tag
// instead of consulting the EDB.
var SelfRoot = hashParts(tagSelf, []byte("entail/self"))

// ValueKind discriminates the members of the Value union.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindString
	KindBool
	KindBytes
	KindHash
	KindPublicKey
	KindSecretKey
	KindDictionary
	KindArray
	KindSet
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindHash:
		return "hash"
	case KindPublicKey:
		return "public-key"
	case KindSecretKey:
		return "secret-key"
	case KindDictionary:
		return "dictionary"
	case KindArray:
		return "array"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a member of the tagged value universe. Equality is value-deep:
// the invariant maintained across the package is that two values are equal
// iff their commitments are equal.
type Value interface {
	// Kind reports which member of the union this value is.
	Kind() ValueKind

	// Commitment returns the stable 32-byte identity of the value.
	Commitment() Hash

	// Equal reports deep value equality.
	Equal(other Value) bool

	// String returns a human-readable rendering.
	String() string
}

// valuesEqual is the shared commitment-based equality used by every Value
// implementation.
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Commitment() == b.Commitment()
}

// Int is a signed 64-bit integer value.
type Int int64

// NewInt wraps a Go int64 as a Value.
func NewInt(i int64) Int { return Int(i) }

// Kind implements Value.
func (v Int) Kind() ValueKind { return KindInt }

// Commitment implements Value.
func (v Int) Commitment() Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return hashParts(tagInt, buf[:])
}

// Equal implements Value.
func (v Int) Equal(other Value) bool {
	o, ok := other.(Int)
	return ok && v == o
}

// String implements Value.
func (v Int) String() string { return fmt.Sprintf("%d", int64(v)) }

// Str is a UTF-8 string value.
type Str string

// NewString wraps a Go string as a Value.
func NewString(s string) Str { return Str(s) }

// Kind implements Value.
func (v Str) Kind() ValueKind { return KindString }

// Commitment implements Value.
func (v Str) Commitment() Hash { return hashParts(tagString, []byte(v)) }

// Equal implements Value.
func (v Str) Equal(other Value) bool {
	o, ok := other.(Str)
	return ok && v == o
}

// String implements Value.
func (v Str) String() string { return fmt.Sprintf("%q", string(v)) }

// Bool is a boolean value.
type Bool bool

// NewBool wraps a Go bool as a Value.
func NewBool(b bool) Bool { return Bool(b) }

// Kind implements Value.
func (v Bool) Kind() ValueKind { return KindBool }

// Commitment implements Value.
func (v Bool) Commitment() Hash {
	if v {
		return hashParts(tagBool, []byte{1})
	}
	return hashParts(tagBool, []byte{0})
}

// Equal implements Value.
func (v Bool) Equal(other Value) bool {
	o, ok := other.(Bool)
	return ok && v == o
}

// String implements Value.
func (v Bool) String() string { return fmt.Sprintf("%t", bool(v)) }

// Bytes is an opaque byte-string value.
type Bytes []byte

// NewBytes copies b into a Value.
func NewBytes(b []byte) Bytes {
	out := make(Bytes, len(b))
	copy(out, b)
	return out
}

// Kind implements Value.
func (v Bytes) Kind() ValueKind { return KindBytes }

// Commitment implements Value.
func (v Bytes) Commitment() Hash { return hashParts(tagBytes, v) }

// Equal implements Value.
func (v Bytes) Equal(other Value) bool {
	o, ok := other.(Bytes)
	return ok && bytes.Equal(v, o)
}

// String implements Value.
func (v Bytes) String() string { return "0x" + hex.EncodeToString(v) }

// HashValue lifts a raw hash into the value universe. Container roots bound
// to wildcards travel as HashValue.
type HashValue Hash

// NewHashValue wraps a Hash as a Value.
func NewHashValue(h Hash) HashValue { return HashValue(h) }

// Kind implements Value.
func (v HashValue) Kind() ValueKind { return KindHash }

// Commitment implements Value. A hash commits to itself under the hash tag,
// so a HashValue carrying a container root compares equal to the container
// it names only through RootOf, never accidentally.
func (v HashValue) Commitment() Hash { return hashParts(tagHash, v[:]) }

// Equal implements Value.
func (v HashValue) Equal(other Value) bool {
	o, ok := other.(HashValue)
	return ok && Hash(v) == Hash(o)
}

// String implements Value.
func (v HashValue) String() string { return Hash(v).String() }

// PublicKey is a derived public key value.
type PublicKey [32]byte

// Kind implements Value.
func (v PublicKey) Kind() ValueKind { return KindPublicKey }

// Commitment implements Value.
func (v PublicKey) Commitment() Hash { return hashParts(tagPublicKey, v[:]) }

// Equal implements Value.
func (v PublicKey) Equal(other Value) bool {
	o, ok := other.(PublicKey)
	return ok && v == o
}

// String implements Value.
func (v PublicKey) String() string { return "pk:" + hex.EncodeToString(v[:4]) + "…" }

// SecretKey is a signing key value. The core performs no cryptography; keys
// are opaque 32-byte scalars and public keys are derived deterministically.
type SecretKey [32]byte

// NewSecretKey builds a secret key from a small integer seed, mirroring the
// fixture style used throughout the tests.
func NewSecretKey(seed uint64) SecretKey {
	var sk SecretKey
	binary.BigEndian.PutUint64(sk[24:], seed)
	return sk
}

// Kind implements Value.
func (v SecretKey) Kind() ValueKind { return KindSecretKey }

// Commitment implements Value.
func (v SecretKey) Commitment() Hash { return hashParts(tagSecretKey, v[:]) }

// Equal implements Value.
func (v SecretKey) Equal(other Value) bool {
	o, ok := other.(SecretKey)
	return ok && v == o
}

// String implements Value.
func (v SecretKey) String() string { return "sk:…" }

// DerivePublicKey computes the public key for a secret key. Derivation is a
// fixed one-way function of the secret key bytes; the PublicKeyOf propagator
// uses it in the forward direction and the EDB keypair index in reverse.
func DerivePublicKey(sk SecretKey) PublicKey {
	h := hashParts(tagPublicKey, []byte("entail/derive"), sk[:])
	return PublicKey(h)
}

// Keypair pairs a secret key with its derived public key for EDB
// enumeration.
type Keypair struct {
	Public PublicKey
	Secret SecretKey
}

// HashOfValues computes the result of the HashOf native predicate: a
// domain-separated hash over the commitments of the two operands.
func HashOfValues(a, b Value) HashValue {
	ca := a.Commitment()
	cb := b.Commitment()
	return HashValue(hashParts(tagHashOf, ca[:], cb[:]))
}

// IntValue extracts an int64 from a value, reporting false for non-integer
// kinds.
func IntValue(v Value) (int64, bool) {
	i, ok := v.(Int)
	return int64(i), ok
}

// RootOf returns the container root named by a value: the commitment for
// container kinds, the raw hash for HashValue, and false otherwise.
// Propagators use it to resolve anchored keys whose root wildcard was bound
// either to a container or to its bare root hash.
func RootOf(v Value) (Hash, bool) {
	switch t := v.(type) {
	case HashValue:
		return Hash(t), true
	case *Dictionary:
		return t.Commitment(), true
	case *Array:
		return t.Commitment(), true
	case *SetValue:
		return t.Commitment(), true
	default:
		return Hash{}, false
	}
}

// AnchoredKey references the value stored at Key inside the container whose
// commitment is Root. It is resolvable iff the EDB holds the full container
// or an explicit Contains fact for the triple.
type AnchoredKey struct {
	Root Hash
	Key  string
}

// String returns the rendering root["key"].
func (ak AnchoredKey) String() string {
	return fmt.Sprintf("%s[%q]", ak.Root, ak.Key)
}
