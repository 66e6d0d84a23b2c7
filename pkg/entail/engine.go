// Package entail engine: the frame scheduler driving goal resolution.
//
// This file implements the single-threaded deterministic main loop. Frames
// carry an ordered goal list and a constraint store; the loop pops frames
// LIFO, scans goals in order, branches on the first goal that yields
// choices, parks frames that can only suspend, and wakes parked frames when
// branches bind the wildcards they wait on. Custom predicate goals are
// never given to propagators: the scan expands them through the guarded
// rules produced by the planner, one branch per disjunct, with a closure
// marker that records the custom head as a derived premise once its body
// completes.
package entail

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FrameID identifies a scheduling unit within one engine run.
type FrameID int

// customClosure marks the point in a goal list where an expanded custom
// predicate's body ends. Reaching it records the instantiated head as a
// premise derived from everything the body added since mark.
type customClosure struct {
	ref      CustomRef
	headArgs []TemplateArg
	body     []StatementTmpl
	mark     int
}

// Goal is one entry of a frame's goal list: a statement template, or a
// closure marker for an expanded custom predicate.
type Goal struct {
	Tmpl    StatementTmpl
	closure *customClosure
}

// goalFromTmpl wraps a template.
func goalFromTmpl(t StatementTmpl) Goal { return Goal{Tmpl: t} }

// String renders the goal for log output.
func (g Goal) String() string {
	if g.closure != nil {
		return fmt.Sprintf("close(%s)", g.closure.ref.Name())
	}
	return g.Tmpl.String()
}

// Frame is a producer scheduling unit: a unique id, the ordered remaining
// goals, and the exclusively owned constraint store.
type Frame struct {
	ID    FrameID
	Goals []Goal
	Store *ConstraintStore
}

// parkedFrame additionally records the wildcard indices the frame waits
// on.
type parkedFrame struct {
	frame     *Frame
	waitingOn mapset.Set[int]
}

// Scheduler owns the runnable queue, the parked set, and the wake index.
type Scheduler struct {
	runnable []*Frame
	nextID   FrameID
	waitlist map[int]mapset.Set[FrameID]
	parked   map[FrameID]*parkedFrame
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		waitlist: make(map[int]mapset.Set[FrameID]),
		parked:   make(map[FrameID]*parkedFrame),
	}
}

// Enqueue pushes a frame onto the runnable stack.
func (s *Scheduler) Enqueue(f *Frame) {
	s.runnable = append(s.runnable, f)
}

// Dequeue pops the most recently pushed frame, giving depth-first
// exploration.
func (s *Scheduler) Dequeue() *Frame {
	if len(s.runnable) == 0 {
		return nil
	}
	f := s.runnable[len(s.runnable)-1]
	s.runnable = s.runnable[:len(s.runnable)-1]
	return f
}

// NewID allocates the next frame id.
func (s *Scheduler) NewID() FrameID {
	id := s.nextID
	s.nextID++
	return id
}

// ParkedCount reports the size of the parked set.
func (s *Scheduler) ParkedCount() int { return len(s.parked) }

// Park suspends a frame on the given wildcard indices. The retry goal is
// reinserted at the front of the goal list so it runs first on wake.
// Wildcards already bound in the store are filtered out; if none remain
// the frame is simply re-enqueued.
func (s *Scheduler) Park(f *Frame, on []int, retry Goal) {
	goals := append([]Goal{retry}, f.Goals...)
	waiting := mapset.NewThreadUnsafeSet[int]()
	for _, w := range on {
		if !f.Store.Bound(w) {
			waiting.Add(w)
		}
	}
	if waiting.Cardinality() == 0 {
		s.Enqueue(&Frame{ID: f.ID, Goals: goals, Store: f.Store})
		return
	}
	for _, w := range waiting.ToSlice() {
		set, ok := s.waitlist[w]
		if !ok {
			set = mapset.NewThreadUnsafeSet[FrameID]()
			s.waitlist[w] = set
		}
		set.Add(f.ID)
	}
	s.parked[f.ID] = &parkedFrame{
		frame:     &Frame{ID: f.ID, Goals: goals, Store: f.Store},
		waitingOn: waiting,
	}
}

// WakeWithBindings wakes the frames parked on any of the bound wildcards.
// An incompatible wake (the parked store already binds the wildcard to a
// different value) leaves the frame parked. Each frame wakes at most once
// per batch. Woken frames are removed from every waitlist entry; they
// re-park on the next loop iteration if they still cannot progress.
func (s *Scheduler) WakeWithBindings(bindings []Binding) []*Frame {
	var runnable []*Frame
	woken := mapset.NewThreadUnsafeSet[FrameID]()
	for _, b := range bindings {
		set, ok := s.waitlist[b.Wildcard]
		if !ok {
			continue
		}
		ids := set.ToSlice()
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			pf, ok := s.parked[id]
			if !ok {
				set.Remove(id)
				continue
			}
			if existing, bound := pf.frame.Store.Get(b.Wildcard); bound && !valuesEqual(existing, b.Value) {
				// Incompatible with this binding; the frame stays parked.
				continue
			}
			pf.frame.Store.Bindings[b.Wildcard] = b.Value
			pf.waitingOn.Remove(b.Wildcard)

			delete(s.parked, id)
			for _, rest := range pf.waitingOn.ToSlice() {
				if rs, ok := s.waitlist[rest]; ok {
					rs.Remove(id)
					if rs.Cardinality() == 0 {
						delete(s.waitlist, rest)
					}
				}
			}
			set.Remove(id)
			if woken.Add(id) {
				runnable = append(runnable, pf.frame)
			}
		}
		if set.Cardinality() == 0 {
			delete(s.waitlist, b.Wildcard)
		}
	}
	return runnable
}

// compiledRule is one guarded rule prepared for goal expansion: the head's
// local wildcards, the SIPS-ordered body with magic guards stripped, and
// the disjunct index fixing expansion order.
type compiledRule struct {
	headArity      int
	body           []StatementTmpl
	localWildcards int
	disjunct       int
}

// RuleSet maps custom predicate references to their compiled rules,
// ordered by disjunct index. Structurally identical rules register once.
type RuleSet struct {
	rules map[string][]compiledRule
	seen  mapset.Set[string]
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		rules: make(map[string][]compiledRule),
		seen:  mapset.NewThreadUnsafeSet[string](),
	}
}

func (rs *RuleSet) add(ref CustomRef, r compiledRule) {
	key := ref.key()
	sig := fmt.Sprintf("%s#%d", key, r.disjunct)
	for _, t := range r.body {
		sig += "|" + t.String()
	}
	if !rs.seen.Add(sig) {
		return
	}
	rs.rules[key] = append(rs.rules[key], r)
	sort.SliceStable(rs.rules[key], func(i, j int) bool {
		return rs.rules[key][i].disjunct < rs.rules[key][j].disjunct
	})
}

func (rs *RuleSet) get(ref CustomRef) []compiledRule {
	return rs.rules[ref.key()]
}

// registerPlan compiles the plan's guarded rules into the set. Magic
// guards are stripped: demand is satisfied by construction in a
// goal-driven engine; the plan's contribution at execution time is the
// SIPS body order and the disjunct bookkeeping.
func (rs *RuleSet) registerPlan(plan *QueryPlan) error {
	for _, rule := range plan.GuardedRules {
		ref, ok := rule.Head.customRef()
		if !ok {
			continue
		}
		cr := compiledRule{
			headArity: len(rule.Head.Terms),
			disjunct:  rule.Head.Order,
		}
		if cr.disjunct == orderSynthetic {
			cr.disjunct = 0
		}
		maxWild := -1
		for _, w := range WildcardIndices(rule.Head.Terms) {
			if w > maxWild {
				maxWild = w
			}
		}
		for _, atom := range rule.Body {
			if atom.isMagic() {
				continue
			}
			normal, ok := atom.Ident.(NormalIdent)
			if !ok {
				return internalf("guarded rule body carries non-normal, non-magic atom %s", atom)
			}
			cr.body = append(cr.body, StatementTmpl{Pred: normal.Pred, Args: atom.Terms})
			for _, w := range WildcardIndices(atom.Terms) {
				if w > maxWild {
					maxWild = w
				}
			}
		}
		cr.localWildcards = maxWild + 1
		rs.add(ref, cr)
	}
	return nil
}

// RegisterRulesFromBatch compiles a batch's definitions directly, without
// planning: bodies keep their source order. LoadProcessed is the normal
// path; this entry point serves callers assembling rule sets by hand.
func RegisterRulesFromBatch(rs *RuleSet, batch *CustomPredicateBatch) error {
	p := NewPlanner(nil, nil)
	for i := range batch.Predicates {
		ref := batch.Ref(i)
		seed := []StatementTmpl{{Pred: ref, Args: headWildcardArgs(ref)}}
		plan, err := p.CreatePlanNaive(seed)
		if err != nil {
			return err
		}
		if err := rs.registerPlan(plan); err != nil {
			return err
		}
	}
	return nil
}

// headWildcardArgs builds the fully free argument list for a predicate's
// public wildcards.
func headWildcardArgs(ref CustomRef) []TemplateArg {
	def := ref.Predicate()
	out := make([]TemplateArg, def.ArgsLen)
	for i := 0; i < def.ArgsLen; i++ {
		name := ""
		if i < len(def.WildcardNames) {
			name = def.WildcardNames[i]
		}
		out[i] = TWild(name, i)
	}
	return out
}

// Engine drives a plan to quiescence. All state is owned by the instance;
// the registry and EDB are shared read-only.
type Engine struct {
	Registry *Registry
	Edb      EdbView
	Rules    *RuleSet
	Sched    *Scheduler

	// Answers collects the completed constraint stores, in production
	// order.
	Answers []*ConstraintStore

	cfg     EngineConfig
	runID   uuid.UUID
	logger  *zap.Logger
	metrics MetricsSink
	request []StatementTmpl
}

// NewEngine creates an engine with the default configuration.
func NewEngine(registry *Registry, edb EdbView) *Engine {
	return NewEngineWithConfig(registry, edb, DefaultEngineConfig())
}

// NewEngineWithConfig creates an engine with an explicit configuration.
func NewEngineWithConfig(registry *Registry, edb EdbView, cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	runID := uuid.New()
	return &Engine{
		Registry: registry,
		Edb:      edb,
		Rules:    NewRuleSet(),
		Sched:    NewScheduler(),
		cfg:      cfg,
		runID:    runID,
		logger:   logger.With(zap.String("run_id", runID.String())),
		metrics:  metrics,
	}
}

// RunID returns the engine's run identifier.
func (e *Engine) RunID() uuid.UUID { return e.runID }

// LoadProcessed prepares goals and rules for a processed request: the
// planner rewrites the transitively referenced custom predicates, the
// guarded rules land in the rule set, and the root frame is seeded with
// the request templates. Batches referenced only indirectly (the parser
// hands them over alongside the templates) may be passed explicitly;
// batches already reachable from the request are planned either way.
func (e *Engine) LoadProcessed(request []StatementTmpl, batches ...*CustomPredicateBatch) error {
	for _, b := range batches {
		if err := RegisterRulesFromBatch(e.Rules, b); err != nil {
			return errors.Wrap(err, "load processed")
		}
	}
	planner := NewPlannerWithParams(e.cfg.Params, e.logger, e.metrics)
	var (
		plan *QueryPlan
		err  error
	)
	if e.cfg.NaivePlanner {
		plan, err = planner.CreatePlanNaive(request)
	} else {
		plan, err = planner.CreatePlan(request)
	}
	if err != nil {
		return errors.Wrap(err, "load processed")
	}
	if err := e.Rules.registerPlan(plan); err != nil {
		return errors.Wrap(err, "load processed")
	}

	e.request = request
	store := NewConstraintStore()
	maxWild := -1
	for _, tmpl := range request {
		for _, w := range WildcardIndices(tmpl.Args) {
			if w > maxWild {
				maxWild = w
			}
		}
	}
	store.reserveWildcards(maxWild)

	goals := make([]Goal, len(request))
	for i, tmpl := range request {
		goals[i] = goalFromTmpl(tmpl)
	}
	e.Sched.Enqueue(&Frame{ID: e.Sched.NewID(), Goals: goals, Store: store})
	return nil
}

// Request returns the templates the engine was loaded with.
func (e *Engine) Request() []StatementTmpl { return e.request }

// scanOutcome is the result of scanning one frame's goal list.
type scanOutcome struct {
	chosenIdx int
	choices   []Choice
	closure   *customClosure
	expand    *CustomRef
	waits     []int
	parkGoal  Goal
	hasPark   bool
	err       error
}

// scanGoals walks the frame's goals in order and stops at the first goal
// that can make progress: a native with choices, a custom predicate to
// expand, or a closure marker to finalize. Suspensions accumulate across
// scanned goals.
func (e *Engine) scanGoals(f *Frame) scanOutcome {
	out := scanOutcome{chosenIdx: -1}
	waitSet := mapset.NewThreadUnsafeSet[int]()

	for idx, g := range f.Goals {
		if g.closure != nil {
			// A closure is runnable only once every body goal before it
			// has resolved, i.e. when it reaches the front of the list.
			// Until then it is skipped like the custom goals it stands in
			// for.
			if idx == 0 {
				out.chosenIdx = idx
				out.closure = g.closure
				return out
			}
			continue
		}
		switch pred := g.Tmpl.Pred.(type) {
		case NativePredicate:
			var local []Choice
			for _, h := range e.Registry.Get(pred) {
				// Handlers see a clone so stray mutation can never leak
				// into the frame.
				res := h.Propagate(g.Tmpl.Args, f.Store.Clone(), e.Edb)
				switch res.Kind {
				case ResultEntailed, ResultChoices:
					local = append(local, res.Choices...)
				case ResultSuspend:
					if !out.hasPark {
						out.parkGoal = g
						out.hasPark = true
					}
					for _, w := range res.WaitOn {
						if !f.Store.Bound(w) {
							waitSet.Add(w)
						}
					}
				case ResultContradiction:
					// Local to this handler; other handlers may still
					// produce derivations.
				}
			}
			if len(local) > 0 {
				out.chosenIdx = idx
				out.choices = local
				return out
			}
		case CustomRef:
			ref := pred
			out.chosenIdx = idx
			out.expand = &ref
			return out
		case BatchSelf:
			out.err = internalf("unresolved batch self-reference %d reached the scheduler", int(pred))
			return out
		}
	}

	waits := waitSet.ToSlice()
	sort.Ints(waits)
	out.waits = waits
	return out
}

// dedupChoices collapses alternatives sharing the same canonical binding
// set, keeping the highest-quality operation tag. Computed derivations
// carrying GeneratedContains premises beat bare generated facts, which
// beat copies, which beat everything else; ties keep the earliest choice.
func (e *Engine) dedupChoices(choices []Choice) []Choice {
	type slot struct {
		score  int
		choice Choice
	}
	best := make(map[uint64]*slot)
	var order []uint64

	for _, ch := range choices {
		key := bindingSetKey(ch.Bindings)
		score := opTagQuality(ch.Tag)
		if existing, ok := best[key]; ok {
			if score > existing.score {
				existing.score = score
				existing.choice = ch
				e.metrics.RecordTraceEvent(TraceEvent{Type: TraceChoiceDeduped})
			} else {
				e.metrics.RecordTraceEvent(TraceEvent{Type: TraceChoiceDeduped})
			}
			continue
		}
		best[key] = &slot{score: score, choice: ch}
		order = append(order, key)
	}

	out := make([]Choice, 0, len(order))
	for _, key := range order {
		out = append(out, best[key].choice)
	}
	return out
}

// bindingSetKey hashes the canonical (index-sorted) binding list.
func bindingSetKey(bindings []Binding) uint64 {
	sorted := append([]Binding(nil), bindings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Wildcard < sorted[j].Wildcard })
	d := xxhash.New()
	var buf [8]byte
	for _, b := range sorted {
		for i := 0; i < 8; i++ {
			buf[i] = byte(b.Wildcard >> (8 * i))
		}
		_, _ = d.Write(buf[:])
		c := b.Value.Commitment()
		_, _ = d.Write(c[:])
	}
	return d.Sum64()
}

// opTagQuality scores provenance for dedup: derivations through full
// containers rank highest, bare generated facts next, copies after them,
// pure computation lowest.
func opTagQuality(tag OpTag) int {
	switch t := tag.(type) {
	case TagDerived:
		if t.HasGeneratedContains() {
			return 4
		}
		for _, p := range t.Premises {
			if _, ok := p.Tag.(TagCopyStatement); ok {
				return 2
			}
		}
		return 1
	case TagGeneratedContains:
		return 3
	case TagCopyStatement:
		return 2
	default:
		return 1
	}
}

// Run drives the scheduler to quiescence. It returns ErrNoProof when no
// answer was produced, a SafetyLimitError when a cap fires, and an
// InternalError when an invariant breaks. The scheduler's structures stay
// consistent if the caller abandons the loop early.
func (e *Engine) Run() error {
	iterations := 0
	for {
		if e.cfg.MaxIterations > 0 && iterations >= e.cfg.MaxIterations {
			return &SafetyLimitError{Limit: "iterations", Value: iterations, Budget: e.cfg.MaxIterations}
		}
		frame := e.Sched.Dequeue()
		if frame == nil {
			break
		}
		iterations++

		if len(frame.Goals) == 0 {
			e.logger.Debug("answer recorded",
				zap.Int("frame", int(frame.ID)),
				zap.Int("bindings", len(frame.Store.Bindings)),
			)
			e.metrics.IncrCounter([]string{"entail", "engine", "answers"}, 1)
			e.Answers = append(e.Answers, frame.Store)
			continue
		}

		outcome := e.scanGoals(frame)
		if outcome.err != nil {
			return outcome.err
		}

		switch {
		case outcome.closure != nil:
			if err := e.finalizeClosure(frame, outcome); err != nil {
				return err
			}
		case outcome.expand != nil:
			e.expandCustom(frame, outcome)
		case outcome.chosenIdx >= 0:
			e.branchOnChoices(frame, outcome)
		case len(outcome.waits) > 0:
			if e.cfg.MaxParkedFrames > 0 && e.Sched.ParkedCount() >= e.cfg.MaxParkedFrames {
				return &SafetyLimitError{Limit: "parked frames", Value: e.Sched.ParkedCount(), Budget: e.cfg.MaxParkedFrames}
			}
			retry := outcome.parkGoal
			rest := removeGoalMatching(frame.Goals, retry)
			e.Sched.Park(&Frame{ID: frame.ID, Goals: rest, Store: frame.Store}, outcome.waits, retry)
			e.metrics.RecordTraceEvent(TraceEvent{Type: TraceFrameParked})
			e.logger.Debug("frame parked",
				zap.Int("frame", int(frame.ID)),
				zap.Ints("waiting_on", outcome.waits),
			)
		default:
			// No choices, no suspensions: the frame cannot progress.
			e.logger.Debug("frame dropped", zap.Int("frame", int(frame.ID)))
		}
	}

	if len(e.Answers) == 0 {
		return ErrNoProof
	}
	return nil
}

// removeGoalMatching drops the first goal whose template matches retry so
// parking can reinsert it at the front without duplication.
func removeGoalMatching(goals []Goal, retry Goal) []Goal {
	for i, g := range goals {
		if g.closure == nil && retry.closure == nil && g.Tmpl.String() == retry.Tmpl.String() {
			out := make([]Goal, 0, len(goals)-1)
			out = append(out, goals[:i]...)
			out = append(out, goals[i+1:]...)
			return out
		}
	}
	return goals
}

// branchOnChoices resolves a native goal: deduplicated choices each clone
// the store, apply bindings (write-once; conflicting branches are
// discarded), wake parked frames, record the instantiated goal as a
// premise, and enqueue the continuation.
func (e *Engine) branchOnChoices(frame *Frame, outcome scanOutcome) {
	choices := e.dedupChoices(outcome.choices)
	chosen := frame.Goals[outcome.chosenIdx]

	for _, ch := range choices {
		contStore := frame.Store.Clone()
		if !contStore.Apply(ch.Bindings) {
			continue
		}
		for _, woke := range e.Sched.WakeWithBindings(ch.Bindings) {
			e.metrics.RecordTraceEvent(TraceEvent{Type: TraceFrameWoken})
			e.Sched.Enqueue(woke)
		}

		ng := make([]Goal, 0, len(frame.Goals)-1)
		ng = append(ng, frame.Goals[:outcome.chosenIdx]...)
		ng = append(ng, frame.Goals[outcome.chosenIdx+1:]...)

		if head, ok := InstantiateGoal(chosen.Tmpl, contStore); ok {
			contStore.Premises = append(contStore.Premises, Premise{Statement: head, Tag: ch.Tag})
		}

		if e.cfg.BranchAndBoundOnOps && e.cfg.MaxOperations > 0 &&
			len(contStore.Premises) > e.cfg.MaxOperations {
			e.logger.Debug("branch pruned by operation budget", zap.Int("frame", int(frame.ID)))
			continue
		}

		e.Sched.Enqueue(&Frame{ID: e.Sched.NewID(), Goals: ng, Store: contStore})
	}
}

// expandCustom resolves a custom goal through its compiled rules: one
// continuation per disjunct, enqueued in reverse so the lowest disjunct
// pops first. Rule-local wildcards map onto the call's arguments; private
// wildcards get fresh frame-local indices.
func (e *Engine) expandCustom(frame *Frame, outcome scanOutcome) {
	chosen := frame.Goals[outcome.chosenIdx]
	ref := *outcome.expand
	rules := e.Rules.get(ref)
	if len(rules) == 0 {
		e.logger.Debug("custom goal with no rules dropped",
			zap.String("predicate", ref.Name()),
		)
		return
	}

	if e.cfg.MaxRecursionDepth > 0 {
		open := 0
		for _, g := range frame.Goals {
			if g.closure != nil {
				open++
			}
		}
		if open >= e.cfg.MaxRecursionDepth {
			e.logger.Debug("expansion pruned by recursion depth",
				zap.String("predicate", ref.Name()),
				zap.Int("open_expansions", open),
			)
			return
		}
	}

	rest := make([]Goal, 0, len(frame.Goals)-1)
	rest = append(rest, frame.Goals[:outcome.chosenIdx]...)
	rest = append(rest, frame.Goals[outcome.chosenIdx+1:]...)

	for i := len(rules) - 1; i >= 0; i-- {
		rule := rules[i]
		if rule.headArity != len(chosen.Tmpl.Args) {
			continue
		}
		contStore := frame.Store.Clone()
		bodyGoals, ok := instantiateRuleBody(rule, chosen.Tmpl.Args, contStore)
		if !ok {
			continue
		}

		bodyTmpls := make([]StatementTmpl, len(bodyGoals))
		for j, bg := range bodyGoals {
			bodyTmpls[j] = bg.Tmpl
		}
		goals := make([]Goal, 0, len(bodyGoals)+1+len(rest))
		goals = append(goals, bodyGoals...)
		goals = append(goals, Goal{closure: &customClosure{
			ref:      ref,
			headArgs: chosen.Tmpl.Args,
			body:     bodyTmpls,
			mark:     len(contStore.Premises),
		}})
		goals = append(goals, rest...)

		e.Sched.Enqueue(&Frame{ID: e.Sched.NewID(), Goals: goals, Store: contStore})
	}
}

// instantiateRuleBody maps a rule's local wildcard space into the frame
// space. Public wildcards take the call arguments; literals in wildcard
// position pre-bind fresh wildcards; anchored-key call arguments bridge
// through a fresh wildcard joined by a prepended Equal goal; private
// wildcards allocate fresh indices.
func instantiateRuleBody(rule compiledRule, callArgs []TemplateArg, store *ConstraintStore) ([]Goal, bool) {
	mapping := make(map[int]Wildcard, rule.localWildcards)
	var bridges []Goal

	bindFresh := func(local int, v Value) {
		w := NewWildcard("", store.FreshWildcard())
		store.Bindings[w.Index] = v
		mapping[local] = w
	}

	for local, arg := range callArgs {
		switch t := arg.(type) {
		case WildcardArg:
			mapping[local] = t.Wildcard
		case LiteralArg:
			bindFresh(local, t.Value)
		case AnchoredKeyArg:
			// The call passes a container entry; join it to a fresh
			// wildcard with an explicit equality goal.
			w := NewWildcard("", store.FreshWildcard())
			mapping[local] = w
			bridges = append(bridges, goalFromTmpl(NewTmpl(Equal,
				WildcardArg{Wildcard: w}, t)))
		default:
			return nil, false
		}
	}
	for local := 0; local < rule.localWildcards; local++ {
		if _, ok := mapping[local]; !ok {
			mapping[local] = NewWildcard("", store.FreshWildcard())
		}
	}

	goals := make([]Goal, 0, len(bridges)+len(rule.body))
	goals = append(goals, bridges...)
	for _, tmpl := range rule.body {
		args := make([]TemplateArg, len(tmpl.Args))
		for i, a := range tmpl.Args {
			switch t := a.(type) {
			case LiteralArg:
				args[i] = t
			case WildcardArg:
				args[i] = WildcardArg{Wildcard: mapping[t.Wildcard.Index]}
			case AnchoredKeyArg:
				args[i] = AnchoredKeyArg{Root: mapping[t.Root.Index], Key: t.Key}
			default:
				return nil, false
			}
		}
		goals = append(goals, goalFromTmpl(StatementTmpl{Pred: tmpl.Pred, Args: args}))
	}
	return goals, true
}

// finalizeClosure records a completed custom predicate body: the
// instantiated head becomes a premise derived from the body's own
// statements recorded since expansion. A head with unbound public
// wildcards cannot conclude; the frame is dropped.
func (e *Engine) finalizeClosure(frame *Frame, outcome scanOutcome) error {
	closure := outcome.closure
	contStore := frame.Store.Clone()

	args := make([]ValueRef, len(closure.headArgs))
	for i, a := range closure.headArgs {
		ref, ok := instantiateArg(a, contStore)
		if !ok {
			e.logger.Debug("custom head with unbound projection dropped",
				zap.String("predicate", closure.ref.Name()),
			)
			return nil
		}
		args[i] = ref
	}
	if closure.mark > len(contStore.Premises) {
		return internalf("closure mark %d beyond premise list of length %d",
			closure.mark, len(contStore.Premises))
	}
	// The derived premises are the rule body's statements, located among
	// the steps recorded since expansion. Steps added by nested
	// expansions stay reachable through their own Derived tags.
	var sub []Premise
	for _, tmpl := range closure.body {
		stmt, ok := InstantiateGoal(tmpl, contStore)
		if !ok {
			continue
		}
		key := stmt.key()
		for _, p := range contStore.Premises[closure.mark:] {
			if p.Statement.key() == key {
				sub = append(sub, p)
				break
			}
		}
	}
	head := Statement{Predicate: closure.ref, Args: args}
	contStore.Premises = append(contStore.Premises, Premise{
		Statement: head,
		Tag:       TagDerived{Premises: sub},
	})

	if e.cfg.BranchAndBoundOnOps && e.cfg.MaxOperations > 0 &&
		len(contStore.Premises) > e.cfg.MaxOperations {
		return nil
	}

	ng := make([]Goal, 0, len(frame.Goals)-1)
	ng = append(ng, frame.Goals[:outcome.chosenIdx]...)
	ng = append(ng, frame.Goals[outcome.chosenIdx+1:]...)
	e.Sched.Enqueue(&Frame{ID: e.Sched.NewID(), Goals: ng, Store: contStore})
	return nil
}
