package entail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdbContainsValueFromFullDict(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1), "x": NewInt(5)})
	edb := NewEdbBuilder().AddFullDict(d).Build()

	v, ok := edb.ContainsValue(d.Commitment(), "k")
	require.True(t, ok)
	assert.True(t, v.Equal(NewInt(1)))

	_, ok = edb.ContainsValue(d.Commitment(), "missing")
	assert.False(t, ok)
	_, ok = edb.ContainsValue(Hash{1}, "k")
	assert.False(t, ok)
}

func TestEdbContainsSourcePrefersGenerated(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	root := d.Commitment()
	pod := PodRef{9}
	edb := NewEdbBuilder().
		AddCopiedContains(root, "k", NewInt(1), pod).
		AddFullDict(d).
		Build()

	origin, ok := edb.ContainsSource(root, "k", NewInt(1))
	require.True(t, ok)
	assert.True(t, origin.Generated, "full container should outrank the copied fact")

	// Without the full container the copied fact answers.
	edb2 := NewEdbBuilder().AddCopiedContains(root, "k", NewInt(1), pod).Build()
	origin2, ok := edb2.ContainsSource(root, "k", NewInt(1))
	require.True(t, ok)
	assert.False(t, origin2.Generated)
	assert.Equal(t, pod, origin2.Pod)
}

func TestEdbBinaryViewSelectors(t *testing.T) {
	rootA := Hash{0xa}
	pod := PodRef{1}
	edb := NewEdbBuilder().
		AddStatement(NewStatement(Lt, Key(rootA, "x"), Lit(NewInt(10))), pod).
		AddStatement(NewStatement(Lt, Lit(NewInt(3)), Lit(NewInt(5))), pod).
		Build()

	rows := edb.BinaryView(Lt, SelAKKey("x"), SelVal())
	require.Len(t, rows, 1)
	ak, ok := rows[0].Left.AsAnchoredKey()
	require.True(t, ok)
	assert.Equal(t, rootA, ak.Root)
	assert.Equal(t, "x", ak.Key)

	rows = edb.BinaryView(Lt, SelVal(), SelLiteral(NewInt(5)))
	require.Len(t, rows, 1)
	l, ok := rows[0].Left.AsLiteral()
	require.True(t, ok)
	assert.True(t, l.Equal(NewInt(3)))

	rows = edb.BinaryView(Lt, SelAKExact(rootA, "x"), SelAny())
	assert.Len(t, rows, 1)
	rows = edb.BinaryView(Lt, SelAKExact(Hash{0xb}, "x"), SelAny())
	assert.Empty(t, rows)
	rows = edb.BinaryView(Equal, SelAny(), SelAny())
	assert.Empty(t, rows)
}

func TestEdbContainsMatchesFullBeforeCopied(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	other := Hash{0xc}
	edb := NewEdbBuilder().
		AddFullDict(d).
		AddCopiedContains(other, "k", NewInt(1), PodRef{2}).
		Build()

	matches := edb.ContainsMatches("k")
	require.Len(t, matches, 2)
	assert.True(t, matches[0].Origin.Generated)
	assert.Equal(t, d.Commitment(), matches[0].Root)
	assert.False(t, matches[1].Origin.Generated)
	assert.Equal(t, other, matches[1].Root)
	assert.Empty(t, edb.ContainsMatches("zzz"))
}

func TestEdbAddSignedDict(t *testing.T) {
	sk := NewSecretKey(1)
	d := mustDict(t, map[string]Value{"attestation": DerivePublicKey(NewSecretKey(2))})
	edb := NewEdbBuilder().AddSignedDict(d, sk).Build()

	rows := edb.BinaryView(SignedBy, SelLiteral(d), SelLiteral(DerivePublicKey(sk)))
	require.Len(t, rows, 1)
	assert.Equal(t, PodRef(d.Commitment()), rows[0].Source)

	_, ok := edb.FullDict(d.Commitment())
	assert.True(t, ok)

	kps := edb.Keypairs()
	require.Len(t, kps, 1)
	assert.Equal(t, DerivePublicKey(sk), kps[0].Public)
}

func TestEdbFullContainerTypedAccess(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	a, err := NewArray(0, []Value{NewInt(7)})
	require.NoError(t, err)
	s, err := NewSet(0, []Value{NewInt(9)})
	require.NoError(t, err)

	edb := NewEdbBuilder().AddFullDict(d).AddFullArray(a).AddFullSet(s).Build()

	_, ok := edb.FullDict(d.Commitment())
	assert.True(t, ok)
	_, ok = edb.FullArray(a.Commitment())
	assert.True(t, ok)
	_, ok = edb.FullSet(s.Commitment())
	assert.True(t, ok)
	_, ok = edb.FullDict(a.Commitment())
	assert.False(t, ok, "typed access rejects kind mismatch")

	v, ok := edb.ContainsValue(a.Commitment(), "0")
	require.True(t, ok)
	assert.True(t, v.Equal(NewInt(7)))
}
