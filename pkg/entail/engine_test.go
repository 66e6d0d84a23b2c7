package entail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sharedRootEdb builds the two-goal fixture: a dictionary {k:1, x:5}.
func sharedRootEdb(t *testing.T) (*ImmutableEdb, *Dictionary) {
	t.Helper()
	d := mustDict(t, map[string]Value{"k": NewInt(1), "x": NewInt(5)})
	return NewEdbBuilder().AddFullDict(d).Build(), d
}

func runRequest(t *testing.T, edb EdbView, request []StatementTmpl) (*Engine, error) {
	t.Helper()
	engine := NewEngine(DefaultRegistry(), edb)
	require.NoError(t, engine.LoadProcessed(request))
	return engine, engine.Run()
}

func TestEngineTwoGoalsWithSharedRoot(t *testing.T) {
	edb, d := sharedRootEdb(t)
	root := d.Commitment()

	request := []StatementTmpl{
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
		NewTmpl(Lt, TKey("R", 0, "x"), TLit(NewInt(10))),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	require.Len(t, engine.Answers, 1)

	answer := engine.Answers[0]
	bound, ok := answer.Get(0)
	require.True(t, ok)
	gotRoot, ok := RootOf(bound)
	require.True(t, ok)
	assert.Equal(t, root, gotRoot)

	var sawEqual, sawLt bool
	for _, p := range answer.Premises {
		np, ok := p.Statement.Predicate.(NativePredicate)
		if !ok {
			continue
		}
		switch np {
		case Equal:
			if len(p.Statement.Args) == 2 {
				if kr, ok := p.Statement.Args[0].(KeyRef); ok && kr.AK.Root == root && kr.AK.Key == "k" {
					sawEqual = true
					derived, isDerived := p.Tag.(TagDerived)
					require.True(t, isDerived, "Equal proof step should be Derived")
					assert.True(t, derived.HasGeneratedContains())
				}
			}
		case Lt:
			if kr, ok := p.Statement.Args[0].(KeyRef); ok && kr.AK.Root == root && kr.AK.Key == "x" {
				sawLt = true
				assert.IsType(t, TagDerived{}, p.Tag)
			}
		}
	}
	assert.True(t, sawEqual && sawLt, "expected Equal and Lt proof steps recorded")
}

func TestEngineIntraFrameFixpoint(t *testing.T) {
	// The first goal suspends on ?R; the second binds it; the retried
	// first goal then grounds and succeeds without parking.
	edb, d := sharedRootEdb(t)

	request := []StatementTmpl{
		NewTmpl(Lt, TKey("R", 0, "x"), TLit(NewInt(10))),
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Sched.ParkedCount(), "no frame should stay parked")
	require.Len(t, engine.Answers, 1)

	bound, ok := engine.Answers[0].Get(0)
	require.True(t, ok)
	gotRoot, _ := RootOf(bound)
	assert.Equal(t, d.Commitment(), gotRoot)
	assert.Len(t, engine.Answers[0].Premises, 2)
}

func TestEngineSuspendsWithoutProgress(t *testing.T) {
	request := []StatementTmpl{
		NewTmpl(Lt, TKey("R", 0, "x"), TLit(NewInt(10))),
	}
	engine, err := runRequest(t, emptyEdb(), request)
	assert.ErrorIs(t, err, ErrNoProof)
	assert.Empty(t, engine.Answers)
	assert.Equal(t, 1, engine.Sched.ParkedCount(), "frame should be parked waiting on ?R")
}

func TestEnginePrefersGeneratedContainsOverCopy(t *testing.T) {
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	root := d.Commitment()
	edb := NewEdbBuilder().
		AddCopiedContains(root, "k", NewInt(1), PodRef(root)).
		AddFullDict(d).
		Build()

	request := []StatementTmpl{
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	require.Len(t, engine.Answers, 1, "dedup must collapse the copy and generate alternatives")

	answer := engine.Answers[0]
	var sawGenerated bool
	for _, p := range answer.Premises {
		derived, ok := p.Tag.(TagDerived)
		if !ok {
			continue
		}
		if derived.HasGeneratedContains() {
			sawGenerated = true
		}
		for _, sub := range derived.Premises {
			_, isCopy := sub.Tag.(TagCopyStatement)
			assert.False(t, isCopy, "the copy derivation should have lost the dedup")
		}
	}
	assert.True(t, sawGenerated, "expected the GeneratedContains premise to be preferred")
}

func TestEngineBindingWriteOnce(t *testing.T) {
	request := []StatementTmpl{
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(1))),
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(2))),
	}
	engine, err := runRequest(t, emptyEdb(), request)
	assert.ErrorIs(t, err, ErrNoProof)
	assert.Empty(t, engine.Answers)
}

func TestEngineCrossFrameWake(t *testing.T) {
	// One disjunct suspends on ?x, the other binds it; the parked frame
	// wakes on the sibling's binding and completes.
	p := NewDisjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(5))),
	)
	batch := NewBatch("wake", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	engine, err := runRequest(t, emptyEdb(), request)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Sched.ParkedCount())
	require.Len(t, engine.Answers, 2, "both disjuncts conclude once ?x is bound")
	for _, a := range engine.Answers {
		v, ok := a.Get(0)
		require.True(t, ok)
		assert.True(t, v.Equal(NewInt(5)))
	}
}

func TestSchedulerIncompatibleWakeLeavesFrameParked(t *testing.T) {
	s := NewScheduler()
	store := NewConstraintStore()
	goal := goalFromTmpl(NewTmpl(Lt, TWild("x", 5), TLit(NewInt(10))))
	f := &Frame{ID: s.NewID(), Goals: nil, Store: store}
	s.Park(f, []int{5}, goal)
	require.Equal(t, 1, s.ParkedCount())

	// Simulate a store that meanwhile bound the wildcard differently.
	s.parked[f.ID].frame.Store.Bindings[5] = NewInt(1)

	woken := s.WakeWithBindings([]Binding{{Wildcard: 5, Value: NewInt(2)}})
	assert.Empty(t, woken)
	assert.Equal(t, 1, s.ParkedCount(), "incompatible wake keeps the frame parked")

	woken = s.WakeWithBindings([]Binding{{Wildcard: 5, Value: NewInt(1)}})
	assert.Len(t, woken, 1)
	assert.Equal(t, 0, s.ParkedCount())
}

func TestSchedulerParkFiltersBoundWildcards(t *testing.T) {
	s := NewScheduler()
	store := NewConstraintStore()
	store.Apply([]Binding{{Wildcard: 3, Value: NewInt(1)}})
	goal := goalFromTmpl(NewTmpl(Lt, TWild("x", 3), TLit(NewInt(10))))

	s.Park(&Frame{ID: s.NewID(), Store: store}, []int{3}, goal)
	assert.Equal(t, 0, s.ParkedCount(), "nothing left to wait on")
	assert.NotNil(t, s.Dequeue(), "the frame is re-enqueued instead")
}

func TestEngineIterationSafetyCap(t *testing.T) {
	edb, _ := sharedRootEdb(t)
	cfg := NewEngineConfigBuilder().MaxIterations(1).Build()
	engine := NewEngineWithConfig(DefaultRegistry(), edb, cfg)
	require.NoError(t, engine.LoadProcessed([]StatementTmpl{
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
		NewTmpl(Lt, TKey("R", 0, "x"), TLit(NewInt(10))),
	}))
	err := engine.Run()
	var limit *SafetyLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "iterations", limit.Limit)
}

func TestEngineParkedSetCap(t *testing.T) {
	p := NewDisjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
		NewTmpl(Gt, TWild("x", 0), TLit(NewInt(0))),
	)
	batch := NewBatch("cap", p)
	cfg := NewEngineConfigBuilder().MaxParkedFrames(1).Build()
	engine := NewEngineWithConfig(DefaultRegistry(), emptyEdb(), cfg)
	require.NoError(t, engine.LoadProcessed([]StatementTmpl{
		{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}},
	}))
	err := engine.Run()
	var limit *SafetyLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, "parked frames", limit.Limit)
}

func TestEngineDedupMonotonicity(t *testing.T) {
	// Two EDB sources for the same binding must yield a single branch.
	d := mustDict(t, map[string]Value{"k": NewInt(1)})
	root := d.Commitment()
	edb := NewEdbBuilder().
		AddFullDict(d).
		AddCopiedContains(root, "k", NewInt(1), PodRef{7}).
		Build()

	request := []StatementTmpl{NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1)))}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)
	assert.Len(t, engine.Answers, 1)
}

func TestEnginePremisesAreGround(t *testing.T) {
	edb, _ := sharedRootEdb(t)
	request := []StatementTmpl{
		NewTmpl(Equal, TKey("R", 0, "k"), TLit(NewInt(1))),
		NewTmpl(Lt, TKey("R", 0, "x"), TLit(NewInt(10))),
	}
	engine, err := runRequest(t, edb, request)
	require.NoError(t, err)

	var checkGround func(ps []Premise)
	checkGround = func(ps []Premise) {
		for _, p := range ps {
			for _, arg := range p.Statement.Args {
				switch arg.(type) {
				case LiteralRef, KeyRef:
				default:
					t.Fatalf("premise %s carries a non-ground argument", p.Statement)
				}
			}
			if derived, ok := p.Tag.(TagDerived); ok {
				checkGround(derived.Premises)
			}
		}
	}
	for _, a := range engine.Answers {
		checkGround(a.Premises)
	}
}

func TestLoadProcessedWithExplicitBatch(t *testing.T) {
	// Passing the batch alongside the templates registers the same rules
	// the planner derives from the request; duplicates collapse.
	p := NewDisjunction("p", 1, []string{"x"},
		NewTmpl(Lt, TWild("x", 0), TLit(NewInt(10))),
		NewTmpl(Equal, TWild("x", 0), TLit(NewInt(5))),
	)
	batch := NewBatch("explicit", p)
	request := []StatementTmpl{{Pred: batch.Ref(0), Args: []TemplateArg{TWild("X", 0)}}}

	engine := NewEngine(DefaultRegistry(), emptyEdb())
	require.NoError(t, engine.LoadProcessed(request, batch))
	require.NoError(t, engine.Run())
	assert.Len(t, engine.Answers, 2)
}
