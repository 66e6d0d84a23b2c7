// Package entail query planner.
//
// This file implements the transformation from a proof request and its
// transitively referenced custom predicate definitions into an execution
// plan. The planner performs, in order:
//
//  1. Collection and flattening of custom predicates into IR rules, one
//     rule per conjunction body and one rule per disjunct otherwise, with
//     BatchSelf references resolved eagerly.
//  2. Synthesis of a top-level request goal rule covering every wildcard
//     of the request.
//  3. The Magic-Set transformation: adornments computed per call site
//     (with constraint propagation through arithmetic natives), guarded
//     rules with SIPS-reordered bodies behind a magic guard, and magic
//     propagation rules whose bodies accumulate the guards seen so far
//     plus fully bound native filters that bound recursive expansion.
//
// A naive variant skips the magic transform; it exists to isolate planner
// bugs from engine bugs.
package entail

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure/v2"
	"go.uber.org/zap"
)

// BindingMode is the bound/free status of one argument position.
type BindingMode int

const (
	// FreeMode marks an argument not yet known at call time.
	FreeMode BindingMode = iota

	// BoundMode marks an argument known at call time.
	BoundMode
)

// Adornment is the per-argument bound/free pattern of a predicate call
// site. A (name, adornment) pair constitutes a distinct adorned predicate.
type Adornment []BindingMode

// String renders the adornment in the conventional b/f notation.
func (a Adornment) String() string {
	out := make([]byte, len(a))
	for i, m := range a {
		if m == BoundMode {
			out[i] = 'b'
		} else {
			out[i] = 'f'
		}
	}
	return string(out)
}

// boundIndices lists the bound positions.
func (a Adornment) boundIndices() []int {
	var out []int
	for i, m := range a {
		if m == BoundMode {
			out = append(out, i)
		}
	}
	return out
}

// wildcardSet is the planner's working set of bound wildcards, keyed by
// index within the current rule's local space.
type wildcardSet map[int]bool

func (s wildcardSet) clone() wildcardSet {
	out := make(wildcardSet, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}

func (s wildcardSet) addAll(idxs []int) {
	for _, i := range idxs {
		s[i] = true
	}
}

// propagateConstraints determines which additional wildcards become bound
// when a native literal is evaluated against the current bound set:
// Equal binds either side from the other; SumOf and ProductOf bind the
// third argument once two are known; PublicKeyOf binds in both directions
// and enumerates when neither side is known. Other natives propagate
// nothing.
func propagateConstraints(pred NativePredicate, bound wildcardSet, args []TemplateArg) []int {
	wildAt := func(i int) (int, bool) {
		w, ok := args[i].(WildcardArg)
		if !ok {
			return 0, false
		}
		return w.Wildcard.Index, true
	}
	argBound := func(i int) bool {
		switch t := args[i].(type) {
		case LiteralArg:
			return true
		case WildcardArg:
			return bound[t.Wildcard.Index]
		default:
			return false
		}
	}

	var newly []int
	switch pred {
	case Equal:
		if len(args) != 2 {
			return nil
		}
		w0, ok0 := wildAt(0)
		w1, ok1 := wildAt(1)
		if ok1 && argBound(0) && !bound[w1] {
			newly = append(newly, w1)
		} else if ok0 && argBound(1) && !bound[w0] {
			newly = append(newly, w0)
		}
	case SumOf, ProductOf:
		if len(args) != 3 {
			return nil
		}
		boundCount := 0
		for i := range args {
			if argBound(i) {
				boundCount++
			}
		}
		if boundCount >= 2 {
			for i := range args {
				if w, ok := wildAt(i); ok && !bound[w] {
					newly = append(newly, w)
					break
				}
			}
		}
	case PublicKeyOf:
		if len(args) != 2 {
			return nil
		}
		wpk, okPk := wildAt(0)
		wsk, okSk := wildAt(1)
		if okPk && okSk {
			switch {
			case bound[wsk] && !bound[wpk]:
				newly = append(newly, wpk)
			case bound[wpk] && !bound[wsk]:
				newly = append(newly, wsk)
			case !bound[wpk] && !bound[wsk]:
				newly = append(newly, wpk, wsk)
			}
		}
	}
	return newly
}

// Planner transforms requests into query plans. The zero value is usable;
// NewPlanner attaches a logger.
type Planner struct {
	logger  *zap.Logger
	metrics MetricsSink
	params  Params
}

// NewPlanner creates a planner with the given logger and metrics sink
// and the default proof-shape limits. Either argument may be nil.
func NewPlanner(logger *zap.Logger, metrics MetricsSink) *Planner {
	return NewPlannerWithParams(DefaultParams(), logger, metrics)
}

// NewPlannerWithParams creates a planner enforcing the given proof-shape
// limits during rule validation.
func NewPlannerWithParams(params Params, logger *zap.Logger, metrics MetricsSink) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Planner{logger: logger, metrics: metrics, params: params}
}

func (p *Planner) log() *zap.Logger {
	if p.logger == nil {
		return zap.NewNop()
	}
	return p.logger
}

func (p *Planner) sink() MetricsSink {
	if p.metrics == nil {
		return NoOpMetrics{}
	}
	return p.metrics
}

// getAdornment computes a literal's adornment against the bound set,
// extended by constraint propagation for arithmetic natives.
func (p *Planner) getAdornment(lit Atom, bound wildcardSet) Adornment {
	effective := bound
	if np, ok := lit.nativePred(); ok {
		if newly := propagateConstraints(np, bound, lit.Terms); len(newly) > 0 {
			effective = bound.clone()
			effective.addAll(newly)
		}
	}
	out := make(Adornment, len(lit.Terms))
	for i, term := range lit.Terms {
		switch t := term.(type) {
		case LiteralArg:
			out[i] = BoundMode
		case WildcardArg:
			if effective[t.Wildcard.Index] {
				out[i] = BoundMode
			}
		case AnchoredKeyArg:
			if effective[t.Root.Index] {
				out[i] = BoundMode
			}
		case NoneArg:
			out[i] = FreeMode
		}
	}
	return out
}

// allVariablesBound reports whether every wildcard of the literal is in
// the bound set.
func (p *Planner) allVariablesBound(lit Atom, bound wildcardSet) bool {
	for _, w := range WildcardIndices(lit.Terms) {
		if !bound[w] {
			return false
		}
	}
	return true
}

// isGuardConstraint reports whether a literal is a fully bound native
// filter worth pushing into magic rule bodies to prevent unbounded
// expansion of magic facts in recursive predicates. Comparisons qualify
// when fully bound; Equal qualifies only in its simple form without
// anchored keys.
func (p *Planner) isGuardConstraint(lit Atom, bound wildcardSet) bool {
	np, ok := lit.nativePred()
	if !ok {
		return false
	}
	switch np {
	case Lt, Gt, LtEq, GtEq:
		return p.allVariablesBound(lit, bound)
	case Equal:
		for _, term := range lit.Terms {
			if _, isAK := term.(AnchoredKeyArg); isAK {
				return false
			}
		}
		return p.allVariablesBound(lit, bound)
	default:
		return false
	}
}

// reorderBodyForSIPS orders body literals by a stable most-bound-first
// strategy. Selection is two-phase: non-natives, plus natives whose
// constraint propagation can bind new wildcards, come first; pure filter
// natives follow. The score prefers more bound arguments, then natives
// that bind additional wildcards, with an extra bias toward Equal; ties
// fall back to source order.
func (p *Planner) reorderBodyForSIPS(body []Atom, initialBound wildcardSet) []Atom {
	reordered := make([]Atom, 0, len(body))
	remaining := append([]Atom(nil), body...)
	bound := initialBound.clone()
	nativePhase := false

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1
		for i, lit := range remaining {
			if !nativePhase {
				if np, ok := lit.nativePred(); ok {
					if len(propagateConstraints(np, bound, lit.Terms)) == 0 {
						continue
					}
				}
			}
			score := 0
			for _, m := range p.getAdornment(lit, bound) {
				if m == BoundMode {
					score++
				}
			}
			if np, ok := lit.nativePred(); ok {
				newly := propagateConstraints(np, bound, lit.Terms)
				for _, w := range newly {
					if !bound[w] {
						score++
					}
				}
				if np == Equal {
					score += 3
				}
			}
			// Strict comparison keeps source order on ties.
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			if !nativePhase {
				nativePhase = true
				continue
			}
			break
		}

		best := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		// Only wildcards in already-bound positions become available to
		// later literals; free positions stay free until the literal runs.
		adornment := p.getAdornment(best, bound)
		for i, term := range best.Terms {
			if adornment[i] == BoundMode {
				bound.addAll(WildcardIndices([]TemplateArg{term}))
			}
		}
		if np, ok := best.nativePred(); ok {
			bound.addAll(propagateConstraints(np, bound, best.Terms))
		}
		reordered = append(reordered, best)
	}
	return reordered
}

// magicPredicateIdent builds the adorned magic identity for a predicate.
func (p *Planner) magicPredicateIdent(name string, adornment Adornment) MagicIdent {
	return MagicIdent{Name: name, BoundIndices: adornment.boundIndices()}
}

// magicGuard builds the magic literal carrying the bound head terms.
func (p *Planner) magicGuard(name string, adornment Adornment, headTerms []TemplateArg) Atom {
	var terms []TemplateArg
	for i, t := range headTerms {
		if i < len(adornment) && adornment[i] == BoundMode {
			terms = append(terms, t)
		}
	}
	return Atom{Ident: p.magicPredicateIdent(name, adornment), Terms: terms, Order: orderSynthetic}
}

// guardedRule prefixes the rule body with the head's magic guard and
// reorders the remaining literals by SIPS.
func (p *Planner) guardedRule(rule Rule, headAdornment Adornment) Rule {
	cr, ok := rule.Head.customRef()
	if !ok {
		return rule
	}
	guard := p.magicGuard(cr.Name(), headAdornment, rule.Head.Terms)

	initiallyBound := make(wildcardSet)
	for i, term := range rule.Head.Terms {
		if i < len(headAdornment) && headAdornment[i] == BoundMode {
			initiallyBound.addAll(WildcardIndices([]TemplateArg{term}))
		}
	}
	reordered := p.reorderBodyForSIPS(rule.Body, initiallyBound)

	body := make([]Atom, 0, 1+len(reordered))
	body = append(body, guard)
	body = append(body, reordered...)
	return Rule{Head: rule.Head, Body: body}
}

// enhancedMagicBody extends the accumulated guards with guard constraints
// appearing later in the reordered body whose variables are already bound.
func (p *Planner) enhancedMagicBody(accumulated []Atom, reordered []Atom, currentIdx int, bound wildcardSet) []Atom {
	out := append([]Atom(nil), accumulated...)
	for _, later := range reordered[currentIdx+1:] {
		if p.isGuardConstraint(later, bound) {
			out = append(out, later)
		}
	}
	return out
}

// orderSynthetic marks planner-synthesized atoms with no source position.
const orderSynthetic = 1 << 30

// ruleSignature computes the structural identity used to deduplicate
// guarded rules across adornments that produce the same rewriting.
func ruleSignature(r Rule) (uint64, error) {
	type sig struct {
		Head string
		Body []string
	}
	s := sig{Head: r.Head.String(), Body: make([]string, len(r.Body))}
	for i, b := range r.Body {
		s.Body[i] = b.String()
	}
	return hashstructure.Hash(s, hashstructure.FormatV2, nil)
}

// magicSetTransform performs the Magic-Set rewrite over the flattened
// program for the given (already synthesized) request.
func (p *Planner) magicSetTransform(program []Rule, request []StatementTmpl) (*QueryPlan, error) {
	var magicRules, guardedRules []Rule
	seenGuarded := mapset.NewThreadUnsafeSet[uint64]()
	adorned := mapset.NewThreadUnsafeSet[string]()

	type workItem struct {
		name      string
		adornment Adornment
	}
	var worklist []workItem

	// Seed from the request's custom templates.
	for _, tmpl := range request {
		cr, ok := tmpl.Pred.(CustomRef)
		if !ok {
			continue
		}
		lit := Atom{Ident: NormalIdent{Pred: cr}, Terms: tmpl.Args, Order: orderSynthetic}
		adornment := p.getAdornment(lit, make(wildcardSet))
		if adorned.Add(cr.Name() + "/" + adornment.String()) {
			worklist = append(worklist, workItem{name: cr.Name(), adornment: adornment})
		}
		seed := Rule{Head: p.magicGuard(cr.Name(), adornment, tmpl.Args)}
		magicRules = append(magicRules, seed)
	}

	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]

		for _, rule := range program {
			headRef, ok := rule.Head.customRef()
			if !ok || headRef.Name() != item.name {
				continue
			}

			gr := p.guardedRule(rule, item.adornment)
			sig, err := ruleSignature(gr)
			if err != nil {
				return nil, internalf("planner: rule signature: %v", err)
			}
			if seenGuarded.Add(sig) {
				guardedRules = append(guardedRules, gr)
			}

			boundInBody := make(wildcardSet)
			for i, term := range rule.Head.Terms {
				if i < len(item.adornment) && item.adornment[i] == BoundMode {
					boundInBody.addAll(WildcardIndices([]TemplateArg{term}))
				}
			}

			reordered := p.reorderBodyForSIPS(rule.Body, boundInBody)

			accumulated := []Atom{p.magicGuard(item.name, item.adornment, rule.Head.Terms)}
			bindings := boundInBody.clone()

			for idx, lit := range reordered {
				// Constraint propagation runs before adornments of later
				// custom literals are computed.
				if np, ok := lit.nativePred(); ok {
					newly := propagateConstraints(np, bindings, lit.Terms)
					if len(newly) > 0 {
						p.sink().RecordTraceEvent(TraceEvent{
							Type:        TraceConstraintPropagated,
							PredicateID: np.String(),
							Detail:      fmt.Sprintf("newly bound: %v", newly),
						})
						bindings.addAll(newly)
					}
				}

				// A fully bound native filters this propagation step; its
				// constraint applies before any magic rule is emitted.
				adornmentNow := p.getAdornment(lit, bindings)
				fullyBoundNative := false
				if _, ok := lit.nativePred(); ok {
					fullyBoundNative = true
					for _, m := range adornmentNow {
						if m != BoundMode {
							fullyBoundNative = false
							break
						}
					}
				}
				if fullyBoundNative {
					accumulated = append(accumulated, lit)
				}

				if cr, ok := lit.customRef(); ok {
					bodyAdornment := p.getAdornment(lit, bindings)
					if adorned.Add(cr.Name() + "/" + bodyAdornment.String()) {
						worklist = append(worklist, workItem{name: cr.Name(), adornment: bodyAdornment})
					}

					magicBody := p.enhancedMagicBody(accumulated, reordered, idx, bindings)
					magicRules = append(magicRules, Rule{
						Head: p.magicGuard(cr.Name(), bodyAdornment, lit.Terms),
						Body: magicBody,
					})
					p.sink().RecordTraceEvent(TraceEvent{
						Type:        TraceMagicRuleGenerated,
						PredicateID: cr.Name(),
						Detail:      bodyAdornment.String(),
					})
					p.sink().IncrCounter([]string{"planner", "magic_rules"}, 1)
				}

				if !fullyBoundNative {
					accumulated = append(accumulated, lit)
				}
				bindings.addAll(WildcardIndices(lit.Terms))
			}
		}
	}

	return &QueryPlan{MagicRules: magicRules, GuardedRules: guardedRules}, nil
}

// CreatePlan builds the full goal-directed plan for a request: flattened
// rules, the synthetic request goal, and the Magic-Set rewriting.
func (p *Planner) CreatePlan(request []StatementTmpl) (*QueryPlan, error) {
	allRules, err := p.collectAndFlattenRules(request)
	if err != nil {
		return nil, err
	}
	finalRequest := request
	if len(request) > 0 {
		var synthetic Rule
		synthetic, finalRequest = p.synthesizeRequestGoal(request)
		allRules = append(allRules, synthetic)
	}
	plan, err := p.magicSetTransform(allRules, finalRequest)
	if err != nil {
		return nil, err
	}
	p.log().Debug("plan created",
		zap.Int("magic_rules", len(plan.MagicRules)),
		zap.Int("guarded_rules", len(plan.GuardedRules)),
	)
	return plan, nil
}

// CreatePlanNaive builds a plan without the Magic-Set transform: every
// flattened rule (plus the synthetic request goal) is returned as a
// guarded rule with no magic guard. Useful for isolating planner bugs
// from engine bugs.
func (p *Planner) CreatePlanNaive(request []StatementTmpl) (*QueryPlan, error) {
	allRules, err := p.collectAndFlattenRules(request)
	if err != nil {
		return nil, err
	}
	if len(request) > 0 {
		synthetic, _ := p.synthesizeRequestGoal(request)
		allRules = append(allRules, synthetic)
	}
	return &QueryPlan{GuardedRules: allRules}, nil
}

// requestGoalName is the predicate name of the synthesized top-level
// request rule.
const requestGoalName = "_request_goal"

// synthesizeRequestGoal wraps the entire request into a single rule
// _request_goal(w1, ..., wk) :- template_1, ..., template_m whose head
// covers the request's wildcards in canonical index order, and returns the
// replacement request naming only the synthetic goal.
func (p *Planner) synthesizeRequestGoal(request []StatementTmpl) (Rule, []StatementTmpl) {
	seen := make(map[int]string)
	var indices []int
	for _, tmpl := range request {
		for _, a := range tmpl.Args {
			switch t := a.(type) {
			case WildcardArg:
				if _, ok := seen[t.Wildcard.Index]; !ok {
					seen[t.Wildcard.Index] = t.Wildcard.Name
					indices = append(indices, t.Wildcard.Index)
				}
			case AnchoredKeyArg:
				if _, ok := seen[t.Root.Index]; !ok {
					seen[t.Root.Index] = t.Root.Name
					indices = append(indices, t.Root.Index)
				}
			}
		}
	}
	sort.Ints(indices)

	headArgs := make([]TemplateArg, len(indices))
	names := make([]string, len(indices))
	for i, idx := range indices {
		headArgs[i] = WildcardArg{Wildcard: NewWildcard(seen[idx], idx)}
		names[i] = seen[idx]
	}

	synthPred := NewConjunction(requestGoalName, len(indices), names, request...)
	synthBatch := NewBatch("SyntheticRequestBatch", synthPred)
	ref := synthBatch.Ref(0)

	body := make([]Atom, len(request))
	for i, tmpl := range request {
		body[i] = Atom{Ident: NormalIdent{Pred: tmpl.Pred}, Terms: tmpl.Args, Order: i}
	}
	rule := Rule{
		Head: Atom{Ident: NormalIdent{Pred: ref}, Terms: headArgs, Order: orderSynthetic},
		Body: body,
	}
	return rule, []StatementTmpl{{Pred: ref, Args: headArgs}}
}

// collectAndFlattenRules transitively collects the custom predicate
// definitions referenced by the request and flattens them into IR rules:
// one rule per conjunction, one rule per disjunct (tagged with the
// disjunct index on the head) otherwise. BatchSelf references resolve
// eagerly to concrete batch-plus-index pairs.
func (p *Planner) collectAndFlattenRules(request []StatementTmpl) ([]Rule, error) {
	var all []Rule
	visited := mapset.NewThreadUnsafeSet[string]()
	var worklist []CustomRef

	for _, tmpl := range request {
		switch pr := tmpl.Pred.(type) {
		case CustomRef:
			if pr.Predicate() == nil {
				return nil, malformedf("request references out-of-range custom predicate %d", pr.Index)
			}
			if len(tmpl.Args) != pr.Arity() {
				return nil, malformedf("request template %s: arity mismatch, want %d args, got %d",
					pr.Name(), pr.Arity(), len(tmpl.Args))
			}
			if visited.Add(pr.key()) {
				worklist = append(worklist, pr)
			}
		case BatchSelf:
			return nil, malformedf("request contains unresolved batch self-reference %d", int(pr))
		}
	}

	for len(worklist) > 0 {
		cr := worklist[0]
		worklist = worklist[1:]
		def := cr.Predicate()

		var verr *multierror.Error
		if p.params.MaxCustomPredicateArity > 0 && def.ArgsLen > p.params.MaxCustomPredicateArity {
			verr = multierror.Append(verr, malformedf(
				"custom predicate %s: arity %d exceeds maximum %d",
				def.Name, def.ArgsLen, p.params.MaxCustomPredicateArity))
		}
		for si, tmpl := range def.Statements {
			for ai, a := range tmpl.Args {
				if _, isNone := a.(NoneArg); isNone {
					verr = multierror.Append(verr, malformedf(
						"custom predicate %s: none argument at statement %d position %d",
						def.Name, si, ai))
				}
			}
		}
		if err := verr.ErrorOrNil(); err != nil {
			return nil, err
		}

		headArgs := make([]TemplateArg, def.ArgsLen)
		for i := 0; i < def.ArgsLen; i++ {
			name := ""
			if i < len(def.WildcardNames) {
				name = def.WildcardNames[i]
			}
			headArgs[i] = WildcardArg{Wildcard: NewWildcard(name, i)}
		}

		if def.Conjunction {
			rule, err := p.flattenBody(cr, headArgs, def.Statements, &worklist, visited)
			if err != nil {
				return nil, err
			}
			all = append(all, rule)
		} else {
			for di, tmpl := range def.Statements {
				rule, err := p.flattenBody(cr, headArgs, []StatementTmpl{tmpl}, &worklist, visited)
				if err != nil {
					return nil, err
				}
				// The disjunct index rides on the head so proof
				// reconstruction can restore the author-written order.
				rule.Head.Order = di
				all = append(all, rule)
			}
		}
	}
	return all, nil
}

// flattenBody translates one definition body into an IR rule, resolving
// BatchSelf references and scheduling newly seen predicates.
func (p *Planner) flattenBody(cr CustomRef, headArgs []TemplateArg, body []StatementTmpl, worklist *[]CustomRef, visited mapset.Set[string]) (Rule, error) {
	head := Atom{Ident: NormalIdent{Pred: cr}, Terms: headArgs, Order: orderSynthetic}
	literals := make([]Atom, 0, len(body))
	for i, tmpl := range body {
		switch pr := tmpl.Pred.(type) {
		case BatchSelf:
			resolved := cr.Batch.Ref(int(pr))
			if resolved.Predicate() == nil {
				return Rule{}, malformedf("custom predicate %s: batch self-reference %d out of range",
					cr.Name(), int(pr))
			}
			if len(tmpl.Args) != resolved.Arity() {
				return Rule{}, malformedf(
					"custom predicate %s: call to %s wants %d args, got %d",
					cr.Name(), resolved.Name(), resolved.Arity(), len(tmpl.Args))
			}
			literals = append(literals, Atom{Ident: NormalIdent{Pred: resolved}, Terms: tmpl.Args, Order: i})
			if visited.Add(resolved.key()) {
				*worklist = append(*worklist, resolved)
			}
		case CustomRef:
			if pr.Predicate() == nil {
				return Rule{}, malformedf("custom predicate %s: reference to out-of-range predicate %d",
					cr.Name(), pr.Index)
			}
			if len(tmpl.Args) != pr.Arity() {
				return Rule{}, malformedf(
					"custom predicate %s: call to %s wants %d args, got %d",
					cr.Name(), pr.Name(), pr.Arity(), len(tmpl.Args))
			}
			literals = append(literals, Atom{Ident: NormalIdent{Pred: pr}, Terms: tmpl.Args, Order: i})
			if visited.Add(pr.key()) {
				*worklist = append(*worklist, pr)
			}
		default:
			literals = append(literals, Atom{Ident: NormalIdent{Pred: tmpl.Pred}, Terms: tmpl.Args, Order: i})
		}
	}
	return Rule{Head: head, Body: literals}, nil
}
