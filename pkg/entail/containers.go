// Package entail container values: dictionary, array and set.
//
// This file implements the three container kinds of the value model. Each
// container exposes a stable commitment over its contents which serves as
// its identity; anchored keys refer into dictionaries and arrays by that
// root. Containers are immutable after construction so commitments are
// computed once.
package entail

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/btree"
)

// DefaultMaxContainerDepth bounds container nesting when none is configured.
const DefaultMaxContainerDepth = 32

// Dictionary is an ordered key→value mapping. Keys are strings ordered
// lexicographically; iteration order is the key order, which also fixes the
// commitment.
type Dictionary struct {
	entries *btree.Map[string, Value]
	commit  Hash
}

// NewDictionary builds a dictionary from the given entries. maxDepth bounds
// the nesting of container values; exceeding it is an error.
func NewDictionary(maxDepth int, kv map[string]Value) (*Dictionary, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxContainerDepth
	}
	entries := btree.NewMap[string, Value](16)
	for k, v := range kv {
		if v == nil {
			return nil, fmt.Errorf("dictionary: nil value for key %q", k)
		}
		if err := checkDepth(v, maxDepth-1); err != nil {
			return nil, err
		}
		entries.Set(k, v)
	}
	d := &Dictionary{entries: entries}
	d.commit = d.computeCommitment()
	return d, nil
}

func (d *Dictionary) computeCommitment() Hash {
	parts := make([][]byte, 0, d.entries.Len()*2)
	d.entries.Scan(func(k string, v Value) bool {
		kh := hashParts(tagString, []byte(k))
		vh := v.Commitment()
		parts = append(parts, kh[:], vh[:])
		return true
	})
	return hashParts(tagDictionary, parts...)
}

// Get returns the value stored under key.
func (d *Dictionary) Get(key string) (Value, bool) {
	return d.entries.Get(key)
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return d.entries.Len() }

// Iterate visits entries in key order until the callback returns false.
func (d *Dictionary) Iterate(fn func(key string, v Value) bool) {
	d.entries.Scan(fn)
}

// Kind implements Value.
func (d *Dictionary) Kind() ValueKind { return KindDictionary }

// Commitment implements Value.
func (d *Dictionary) Commitment() Hash { return d.commit }

// Equal implements Value.
func (d *Dictionary) Equal(other Value) bool { return valuesEqual(d, other) }

// String implements Value.
func (d *Dictionary) String() string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	d.entries.Scan(func(k string, v Value) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%q: %s", k, v)
		return true
	})
	b.WriteString("}")
	return b.String()
}

// Array is an ordered indexed sequence of values. Anchored keys address
// elements by their decimal index.
type Array struct {
	elems  []Value
	commit Hash
}

// NewArray builds an array from the given elements.
func NewArray(maxDepth int, elems []Value) (*Array, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxContainerDepth
	}
	out := make([]Value, len(elems))
	for i, v := range elems {
		if v == nil {
			return nil, fmt.Errorf("array: nil element at index %d", i)
		}
		if err := checkDepth(v, maxDepth-1); err != nil {
			return nil, err
		}
		out[i] = v
	}
	a := &Array{elems: out}
	parts := make([][]byte, len(out))
	for i, v := range out {
		vh := v.Commitment()
		parts[i] = append([]byte(nil), vh[:]...)
	}
	a.commit = hashParts(tagArray, parts...)
	return a, nil
}

// Get returns the element at index i.
func (a *Array) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a.elems) {
		return nil, false
	}
	return a.elems[i], true
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.elems) }

// Iterate visits elements in index order until the callback returns false.
func (a *Array) Iterate(fn func(i int, v Value) bool) {
	for i, v := range a.elems {
		if !fn(i, v) {
			return
		}
	}
}

// Kind implements Value.
func (a *Array) Kind() ValueKind { return KindArray }

// Commitment implements Value.
func (a *Array) Commitment() Hash { return a.commit }

// Equal implements Value.
func (a *Array) Equal(other Value) bool { return valuesEqual(a, other) }

// String implements Value.
func (a *Array) String() string {
	parts := make([]string, len(a.elems))
	for i, v := range a.elems {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SetValue is an unordered collection of unique values. Membership and the
// commitment are keyed by member commitments, so insertion order never
// matters.
type SetValue struct {
	members map[Hash]Value
	commit  Hash
}

// NewSet builds a set from the given members, deduplicating by commitment.
func NewSet(maxDepth int, members []Value) (*SetValue, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxContainerDepth
	}
	ms := make(map[Hash]Value, len(members))
	for i, v := range members {
		if v == nil {
			return nil, fmt.Errorf("set: nil member at index %d", i)
		}
		if err := checkDepth(v, maxDepth-1); err != nil {
			return nil, err
		}
		ms[v.Commitment()] = v
	}
	s := &SetValue{members: ms}
	keys := make([]Hash, 0, len(ms))
	for h := range ms {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	parts := make([][]byte, len(keys))
	for i := range keys {
		parts[i] = append([]byte(nil), keys[i][:]...)
	}
	s.commit = hashParts(tagSet, parts...)
	return s, nil
}

// Contains reports membership of v.
func (s *SetValue) Contains(v Value) bool {
	_, ok := s.members[v.Commitment()]
	return ok
}

// Len returns the number of members.
func (s *SetValue) Len() int { return len(s.members) }

// Iterate visits members in commitment order until the callback returns
// false. The order is stable across runs.
func (s *SetValue) Iterate(fn func(v Value) bool) {
	keys := make([]Hash, 0, len(s.members))
	for h := range s.members {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	for _, h := range keys {
		if !fn(s.members[h]) {
			return
		}
	}
}

// Kind implements Value.
func (s *SetValue) Kind() ValueKind { return KindSet }

// Commitment implements Value.
func (s *SetValue) Commitment() Hash { return s.commit }

// Equal implements Value.
func (s *SetValue) Equal(other Value) bool { return valuesEqual(s, other) }

// String implements Value.
func (s *SetValue) String() string {
	parts := make([]string, 0, len(s.members))
	s.Iterate(func(v Value) bool {
		parts = append(parts, v.String())
		return true
	})
	return "#{" + strings.Join(parts, ", ") + "}"
}

// checkDepth rejects container nesting deeper than the remaining budget.
func checkDepth(v Value, remaining int) error {
	switch t := v.(type) {
	case *Dictionary:
		if remaining <= 0 {
			return fmt.Errorf("container nesting exceeds maximum depth")
		}
		var err error
		t.Iterate(func(_ string, inner Value) bool {
			err = checkDepth(inner, remaining-1)
			return err == nil
		})
		return err
	case *Array:
		if remaining <= 0 {
			return fmt.Errorf("container nesting exceeds maximum depth")
		}
		var err error
		t.Iterate(func(_ int, inner Value) bool {
			err = checkDepth(inner, remaining-1)
			return err == nil
		})
		return err
	case *SetValue:
		if remaining <= 0 {
			return fmt.Errorf("container nesting exceeds maximum depth")
		}
		var err error
		t.Iterate(func(inner Value) bool {
			err = checkDepth(inner, remaining-1)
			return err == nil
		})
		return err
	default:
		return nil
	}
}

// containerLookup extracts the value stored under key inside any container
// kind. Array keys are decimal indices; set "keys" are member commitments in
// hex, present iff the member is in the set.
func containerLookup(c Value, key string) (Value, bool) {
	switch t := c.(type) {
	case *Dictionary:
		return t.Get(key)
	case *Array:
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, false
		}
		return t.Get(i)
	case *SetValue:
		var found Value
		t.Iterate(func(v Value) bool {
			if v.Commitment().Hex() == key {
				found = v
				return false
			}
			return true
		})
		return found, found != nil
	default:
		return nil, false
	}
}
