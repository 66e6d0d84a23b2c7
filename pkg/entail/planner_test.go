package entail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenConjunction(t *testing.T) {
	p := NewConjunction("p", 2, []string{"a", "b"},
		NewTmpl(Lt, TWild("a", 0), TWild("b", 1)),
		NewTmpl(NotEqual, TWild("a", 0), TWild("b", 1)),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0), TWild("Y", 1)}}}

	rules, err := NewPlanner(nil, nil).collectAndFlattenRules(request)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Len(t, rules[0].Body, 2)
	cr, ok := rules[0].Head.customRef()
	require.True(t, ok)
	assert.Equal(t, "p", cr.Name())
}

func TestFlattenDisjunctionPreservesDisjunctIndex(t *testing.T) {
	p := NewDisjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(5))),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	rules, err := NewPlanner(nil, nil).collectAndFlattenRules(request)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 0, rules[0].Head.Order)
	assert.Equal(t, 1, rules[1].Head.Order)
	assert.Len(t, rules[0].Body, 1)
}

func TestFlattenResolvesBatchSelf(t *testing.T) {
	base := NewConjunction("base", 1, []string{"x"},
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(0))),
	)
	wrapper := NewConjunction("wrapper", 1, []string{"x"},
		StatementTmpl{Pred: BatchSelf(0), Args: []TemplateArg{TWild("x", 0)}},
	)
	batch := NewBatch("test", base, wrapper)
	request := []StatementTmpl{{Pred: batch.Ref(1), Args: []TemplateArg{TWild("X", 0)}}}

	rules, err := NewPlanner(nil, nil).collectAndFlattenRules(request)
	require.NoError(t, err)
	require.Len(t, rules, 2, "the self-referenced predicate is collected transitively")

	cr, ok := rules[0].Body[0].customRef()
	require.True(t, ok)
	assert.Equal(t, "base", cr.Name())
}

func TestPlannerRejectsNoneArgs(t *testing.T) {
	p := NewConjunction("p", 1, []string{"x"},
		NewTmpl(Equal, TWild("x", 0), NoneArg{}),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	_, err := NewPlanner(nil, nil).CreatePlan(request)
	require.Error(t, err)
	var malformed *MalformedInputError
	assert.ErrorAs(t, err, &malformed)
}

func TestPlannerRejectsArityMismatch(t *testing.T) {
	p := NewConjunction("p", 2, []string{"a", "b"},
		NewTmpl(Equal, TWild("a", 0), TWild("b", 1)),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	_, err := NewPlanner(nil, nil).CreatePlan(request)
	var malformed *MalformedInputError
	assert.ErrorAs(t, err, &malformed)
}

func TestPlannerRejectsOutOfRangeBatchSelf(t *testing.T) {
	p := NewConjunction("p", 1, []string{"x"},
		StatementTmpl{Pred: BatchSelf(7), Args: []TemplateArg{TWild("x", 0)}},
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	_, err := NewPlanner(nil, nil).CreatePlan(request)
	var malformed *MalformedInputError
	assert.ErrorAs(t, err, &malformed)
}

func TestSynthesizeRequestGoalCanonicalOrder(t *testing.T) {
	request := []StatementTmpl{
		NewTmpl(Lt, TWild("b", 3), TLit(NewInt(10))),
		NewTmpl(Equal, TKey("a", 1, "k"), TWild("b", 3)),
	}
	rule, replaced := NewPlanner(nil, nil).synthesizeRequestGoal(request)

	require.Len(t, rule.Head.Terms, 2)
	w0 := rule.Head.Terms[0].(WildcardArg)
	w1 := rule.Head.Terms[1].(WildcardArg)
	assert.Equal(t, 1, w0.Wildcard.Index)
	assert.Equal(t, 3, w1.Wildcard.Index)
	assert.Len(t, rule.Body, 2)

	require.Len(t, replaced, 1)
	cr, ok := replaced[0].Pred.(CustomRef)
	require.True(t, ok)
	assert.Equal(t, requestGoalName, cr.Name())
}

func TestAdornmentWithArithmeticPropagation(t *testing.T) {
	p := NewPlanner(nil, nil)
	lit := Atom{
		Ident: NormalIdent{Pred: SumOf},
		Terms: []TemplateArg{TWild("s", 0), TWild("a", 1), TLit(NewInt(1))},
	}

	// Only the literal bound: nothing propagates.
	adorn := p.getAdornment(lit, wildcardSet{})
	assert.Equal(t, "ffb", adorn.String())

	// One wildcard bound raises the known count to two; the third
	// becomes bound through constraint propagation.
	adorn = p.getAdornment(lit, wildcardSet{1: true})
	assert.Equal(t, "bbb", adorn.String())
}

func TestSIPSSchedulesBindingNativesAfterProducers(t *testing.T) {
	q := NewConjunction("q", 2, []string{"a", "b"},
		NewTmpl(Lt, TWild("a", 0), TWild("b", 1)),
	)
	batch := NewBatch("test", q)

	body := []Atom{
		{Ident: NormalIdent{Pred: SumOf}, Terms: []TemplateArg{TWild("s", 2), TWild("b", 3), TLit(NewInt(1))}, Order: 0},
		{Ident: NormalIdent{Pred: batch.Ref(0)}, Terms: []TemplateArg{TWild("a", 0), TWild("b", 3)}, Order: 1},
	}
	reordered := NewPlanner(nil, nil).reorderBodyForSIPS(body, wildcardSet{0: true})

	require.Len(t, reordered, 2)
	_, isCustom := reordered[0].customRef()
	assert.True(t, isCustom, "the producer runs before the arithmetic filter")
	np, _ := reordered[1].nativePred()
	assert.Equal(t, SumOf, np)
}

func TestMagicTransformSeedsAndGuards(t *testing.T) {
	p := NewConjunction("p", 2, []string{"a", "b"},
		NewTmpl(Lt, TWild("a", 0), TWild("b", 1)),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{
		Pred: batch.Ref(0),
		Args: []TemplateArg{TLit(NewInt(3)), TWild("Y", 0)},
	}}

	plan, err := NewPlanner(nil, nil).CreatePlan(request)
	require.NoError(t, err)
	require.NotEmpty(t, plan.MagicRules)

	// The magic rule for p carries the bound argument positions of the
	// synthetic request goal's call into p.
	var sawP bool
	for _, r := range plan.MagicRules {
		m, ok := r.Head.Ident.(MagicIdent)
		if !ok {
			continue
		}
		if m.Name == "p" {
			sawP = true
			assert.Equal(t, []int{0}, m.BoundIndices)
		}
	}
	assert.True(t, sawP, "expected a magic rule for p")

	// Every guarded custom rule starts with its magic guard.
	for _, r := range plan.GuardedRules {
		if _, ok := r.Head.customRef(); !ok {
			continue
		}
		require.NotEmpty(t, r.Body)
		assert.True(t, r.Body[0].isMagic(), "guarded rule %s lacks a magic guard", r)
	}
}

func TestMagicTransformDedupsRepeatedAdornments(t *testing.T) {
	p := NewConjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{
		{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}},
		{Pred: batch.Ref(0), Args: []TemplateArg{TWild("Y", 1)}},
	}

	plan, err := NewPlanner(nil, nil).CreatePlan(request)
	require.NoError(t, err)

	count := 0
	for _, r := range plan.GuardedRules {
		if cr, ok := r.Head.customRef(); ok && cr.Name() == "p" {
			count++
		}
	}
	assert.Equal(t, 1, count, "identical guarded rules are emitted once")
}

func TestNaivePlanSkipsMagic(t *testing.T) {
	p := NewConjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
	)
	batch := NewBatch("test", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	plan, err := NewPlanner(nil, nil).CreatePlanNaive(request)
	require.NoError(t, err)
	assert.Empty(t, plan.MagicRules)
	// p's rule plus the synthetic request goal rule.
	assert.Len(t, plan.GuardedRules, 2)
	for _, r := range plan.GuardedRules {
		for _, b := range r.Body {
			assert.False(t, b.isMagic())
		}
	}
}

func TestIsGuardConstraint(t *testing.T) {
	p := NewPlanner(nil, nil)

	fullyBoundLt := Atom{Ident: NormalIdent{Pred: Lt}, Terms: []TemplateArg{TWild("a", 0), TLit(NewInt(5))}}
	assert.True(t, p.isGuardConstraint(fullyBoundLt, wildcardSet{0: true}))
	assert.False(t, p.isGuardConstraint(fullyBoundLt, wildcardSet{}))

	akEqual := Atom{Ident: NormalIdent{Pred: Equal}, Terms: []TemplateArg{TKey("r", 0, "k"), TLit(NewInt(1))}}
	assert.False(t, p.isGuardConstraint(akEqual, wildcardSet{0: true}),
		"anchored-key equalities never act as simple guards")

	simpleEqual := Atom{Ident: NormalIdent{Pred: Equal}, Terms: []TemplateArg{TWild("a", 0), TWild("b", 1)}}
	assert.True(t, p.isGuardConstraint(simpleEqual, wildcardSet{0: true, 1: true}))
}

func TestPlannerRejectsBodyLiteralArityMismatch(t *testing.T) {
	// The mismatch sits inside a rule body, not in the request: the
	// wrapper calls its two-argument sibling with a single argument.
	base := NewConjunction("base", 2, []string{"a", "b"},
		NewTmpl(Equal, TWild("a", 0), TWild("b", 1)),
	)
	wrapper := NewConjunction("wrapper", 1, []string{"x"},
		StatementTmpl{Pred: BatchSelf(0), Args: []TemplateArg{TWild("x", 0)}},
	)
	batch := NewBatch("test", base, wrapper)
	request := []StatementTmpl{{Pred: batch.Ref(1), Args: []TemplateArg{TWild("X", 0)}}}

	_, err := NewPlanner(nil, nil).CreatePlan(request)
	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)

	// The same check covers direct cross-batch references.
	other := NewBatch("other", base)
	caller := NewConjunction("caller", 1, []string{"x"},
		StatementTmpl{Pred: other.Ref(0), Args: []TemplateArg{TWild("x", 0)}},
	)
	callerBatch := NewBatch("test2", caller)
	request = []StatementTmpl{{Pred: callerBatch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}
	_, err = NewPlanner(nil, nil).CreatePlanNaive(request)
	assert.ErrorAs(t, err, &malformed)
}

func TestPlannerRejectsExcessivePredicateArity(t *testing.T) {
	names := make([]string, 4)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	wide := NewConjunction("wide", 4, names,
		NewTmpl(Equal, TWild("a", 0), TWild("b", 1)),
	)
	batch := NewBatch("test", wide)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{
		TWild("A", 0), TWild("B", 1), TWild("C", 2), TWild("D", 3),
	}}}

	params := DefaultParams()
	params.MaxCustomPredicateArity = 3
	_, err := NewPlannerWithParams(params, nil, nil).CreatePlan(request)
	var malformed *MalformedInputError
	require.ErrorAs(t, err, &malformed)

	// Within the limit the same definition plans fine.
	params.MaxCustomPredicateArity = 4
	_, err = NewPlannerWithParams(params, nil, nil).CreatePlan(request)
	assert.NoError(t, err)
}
