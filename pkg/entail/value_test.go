package entail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDict(t *testing.T, kv map[string]Value) *Dictionary {
	t.Helper()
	d, err := NewDictionary(0, kv)
	require.NoError(t, err)
	return d
}

func TestValueCommitmentIdentity(t *testing.T) {
	// Two values are equal iff their commitments are equal.
	cases := []struct {
		name string
		a, b Value
		same bool
	}{
		{"int equal", NewInt(42), NewInt(42), true},
		{"int differs", NewInt(42), NewInt(43), false},
		{"string equal", NewString("pod"), NewString("pod"), true},
		{"string differs", NewString("pod"), NewString("pods"), false},
		{"bool", NewBool(true), NewBool(true), true},
		{"bytes", NewBytes([]byte{1, 2}), NewBytes([]byte{1, 2}), true},
		{"cross kind int/string", NewInt(1), NewString("1"), false},
		{"cross kind bytes/string", NewBytes([]byte("a")), NewString("a"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.same, tc.a.Commitment() == tc.b.Commitment())
			assert.Equal(t, tc.same, valuesEqual(tc.a, tc.b))
		})
	}
}

func TestDictionaryCommitmentOrderIndependent(t *testing.T) {
	d1 := mustDict(t, map[string]Value{"k": NewInt(1), "x": NewInt(5)})
	d2 := mustDict(t, map[string]Value{"x": NewInt(5), "k": NewInt(1)})
	assert.Equal(t, d1.Commitment(), d2.Commitment())
	assert.True(t, d1.Equal(d2))

	d3 := mustDict(t, map[string]Value{"k": NewInt(1), "x": NewInt(6)})
	assert.NotEqual(t, d1.Commitment(), d3.Commitment())
}

func TestDictionaryLookup(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	v, ok := d.Get("k")
	require.True(t, ok)
	assert.True(t, v.Equal(NewInt(1)))
	_, ok = d.Get("missing")
	assert.False(t, ok)
}

func TestArrayCommitmentAndIndexing(t *testing.T) {
	a1, err := NewArray(0, []Value{NewInt(1), NewInt(2)})
	require.NoError(t, err)
	a2, err := NewArray(0, []Value{NewInt(2), NewInt(1)})
	require.NoError(t, err)
	assert.NotEqual(t, a1.Commitment(), a2.Commitment(), "arrays are ordered")

	v, ok := containerLookup(a1, "1")
	require.True(t, ok)
	assert.True(t, v.Equal(NewInt(2)))
	_, ok = containerLookup(a1, "7")
	assert.False(t, ok)
}

func TestSetCommitmentOrderIndependent(t *testing.T) {
	s1, err := NewSet(0, []Value{NewInt(1), NewInt(2)})
	require.NoError(t, err)
	s2, err := NewSet(0, []Value{NewInt(2), NewInt(1), NewInt(2)})
	require.NoError(t, err)
	assert.Equal(t, s1.Commitment(), s2.Commitment())
	assert.Equal(t, 2, s2.Len())
	assert.True(t, s1.Contains(NewInt(2)))
	assert.False(t, s1.Contains(NewInt(3)))
}

func TestContainerDepthLimit(t *testing.T) {
	inner := mustDict(t, map[string]Value{"a": NewInt(1)})
	_, err := NewDictionary(1, map[string]Value{"d": inner})
	assert.Error(t, err)
	_, err = NewDictionary(3, map[string]Value{"d": inner})
	assert.NoError(t, err)
}

func TestDerivePublicKeyDeterministic(t *testing.T) {
	sk := NewSecretKey(7)
	pk1 := DerivePublicKey(sk)
	pk2 := DerivePublicKey(sk)
	assert.Equal(t, pk1, pk2)
	assert.NotEqual(t, pk1, DerivePublicKey(NewSecretKey(8)))
}

func TestRootOf(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	root, ok := RootOf(d)
	require.True(t, ok)
	assert.Equal(t, d.Commitment(), root)

	hr, ok := RootOf(HashValue(root))
	require.True(t, ok)
	assert.Equal(t, root, hr)

	_, ok = RootOf(NewInt(3))
	assert.False(t, ok)
}

func TestHashOfValuesDistinguishesOperandOrder(t *testing.T) {
	a := NewInt(1)
	b := NewInt(2)
	assert.NotEqual(t, HashOfValues(a, b), HashOfValues(b, a))
	assert.Equal(t, HashOfValues(a, b), HashOfValues(NewInt(1), NewInt(2)))
}
