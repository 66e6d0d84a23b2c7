package entail

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transitiveFixture seeds the equality chain A.k1 = B.k2 = C.k3 = D.k4.
func transitiveFixture() (*ImmutableEdb, Hash, Hash) {
	a, b, c, d := Hash{0xa}, Hash{0xb}, Hash{0xc}, Hash{0xd}
	edb := NewEdbBuilder().
		AddStatement(NewStatement(Equal, Key(a, "k1"), Key(b, "k2")), PodRef{1}).
		AddStatement(NewStatement(Equal, Key(b, "k2"), Key(c, "k3")), PodRef{2}).
		AddStatement(NewStatement(Equal, Key(c, "k3"), Key(d, "k4")), PodRef{3}).
		Build()
	return edb, a, d
}

func TestEngineTransitiveEquality(t *testing.T) {
	edb, a, d := transitiveFixture()
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("X", 0, "k1"), TKey("Y", 1, "k4")),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	require.Len(t, engine.Answers, 1)

	answer := engine.Answers[0]
	x, _ := answer.Get(0)
	y, _ := answer.Get(1)
	xr, _ := RootOf(x)
	yr, _ := RootOf(y)
	assert.Equal(t, a, xr)
	assert.Equal(t, d, yr)
}

func TestReconstructTransitiveChainEmitsPairwiseSteps(t *testing.T) {
	edb, _, _ := transitiveFixture()
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("X", 0, "k1"), TKey("Y", 1, "k4")),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	require.NotEmpty(t, engine.Answers)

	ops, err := ReconstructOperations(engine.Answers[0], request)
	require.NoError(t, err)

	copies, transitive := 0, 0
	for i, op := range ops {
		for _, in := range op.Inputs {
			assert.Less(t, in, i)
		}
		switch op.Kind {
		case OpCopyStatement:
			copies++
		case OpTransitiveEqualFromStatements:
			transitive++
		}
	}
	assert.Equal(t, 3, copies, "three copied equality leaves")
	assert.Equal(t, 2, transitive, "a three-edge chain folds into two pairwise steps")

	// The final transitive step concludes the public request statement.
	last := ops[len(ops)-1]
	assert.Equal(t, OpTransitiveEqualFromStatements, last.Kind)
	assert.True(t, last.Public)
}

func TestReconstructIdempotent(t *testing.T) {
	edb, _, _ := transitiveFixture()
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("X", 0, "k1"), TKey("Y", 1, "k4")),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)

	ops1, err := ReconstructOperations(engine.Answers[0], request)
	require.NoError(t, err)
	ops2, err := ReconstructOperations(engine.Answers[0], request)
	require.NoError(t, err)

	render := func(ops []Operation) []string {
		out := make([]string, len(ops))
		for i, op := range ops {
			out[i] = op.String()
		}
		return out
	}
	if diff := cmp.Diff(render(ops1), render(ops2)); diff != "" {
		t.Fatalf("reconstruction is not idempotent (-first +second):\n%s", diff)
	}
}

func TestReconstructDedupsSharedConclusions(t *testing.T) {
	// The same Contains fact justifies two goals; it must emit once.
	edb, d := func() (*ImmutableEdb, *Dictionary) {
		dict, _ := NewDictionary(0, map[string]Value{"k": NewInt(1)})
		return NewEdbBuilder().AddFullDict(dict).Build(), dict
	}()
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
		NewTmpl(LtEq, TKey("R", 0, "k"), TLit(NewInt(1))),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	require.NotEmpty(t, engine.Answers)

	ops, err := ReconstructOperations(engine.Answers[0], request)
	require.NoError(t, err)

	containsKey := ContainsStatement(d.Commitment(), "k", NewInt(1)).key()
	count := 0
	for _, op := range ops {
		if op.Conclusion.key() == containsKey {
			count++
		}
	}
	assert.Equal(t, 1, count, "the shared Contains leaf emits once")
}

func TestBuildPodEnforcesLimits(t *testing.T) {
	edb, _, _ := transitiveFixture()
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("X", 0, "k1"), TKey("Y", 1, "k4")),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)

	params := DefaultParams()
	params.MaxStatements = 1
	_, err = BuildPodFromAnswerTopLevelPublic(
		engine.Answers[0], params, &VDSet{}, nil, nil, request, edb)
	var limit *SafetyLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "operations", limit.Limit)
}

func TestBuildPodAppliesBindingOverrides(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	edb := NewEdbBuilder().AddFullDict(d).Build()
	request := []StatementTmpl{NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1)))}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)

	// Overriding an auxiliary wildcard still builds the pod, and the
	// original answer stays untouched.
	before, _ := engine.Answers[0].Get(0)
	_, err = BuildPodFromAnswerTopLevelPublic(
		engine.Answers[0], DefaultParams(), &VDSet{},
		func([]Operation) error { return nil },
		map[int]Value{99: NewInt(7)},
		request, edb)
	require.NoError(t, err)
	after, _ := engine.Answers[0].Get(0)
	assert.True(t, before.Equal(after))
	assert.False(t, engine.Answers[0].Bound(99))
}
