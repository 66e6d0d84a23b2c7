// Package entail rendering helpers for diagnostics and examples.
package entail

import (
	"fmt"
	"sort"
	"strings"
)

// FormatBindings renders a store's bindings in canonical index order.
func FormatBindings(store *ConstraintStore) string {
	if store == nil || len(store.Bindings) == 0 {
		return "{}"
	}
	bindings := store.BindingsSorted()
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = fmt.Sprintf("?%d ↦ %s", b.Wildcard, b.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FormatPremises renders a store's premise list, one step per line.
func FormatPremises(store *ConstraintStore) string {
	var b strings.Builder
	for i, p := range store.Premises {
		fmt.Fprintf(&b, "%2d. %s  [%s]\n", i, p.Statement, p.Tag)
	}
	return b.String()
}

// FormatRequest renders a request template list.
func FormatRequest(request []StatementTmpl) string {
	parts := make([]string, len(request))
	for i, t := range request {
		parts[i] = t.String()
	}
	return "REQUEST(" + strings.Join(parts, ", ") + ")"
}

// FormatPlan renders a query plan, magic rules first.
func FormatPlan(plan *QueryPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "magic rules (%d):\n", len(plan.MagicRules))
	for _, r := range plan.MagicRules {
		fmt.Fprintf(&b, "  %s\n", r)
	}
	fmt.Fprintf(&b, "guarded rules (%d):\n", len(plan.GuardedRules))
	for _, r := range plan.GuardedRules {
		fmt.Fprintf(&b, "  %s\n", r)
	}
	return b.String()
}

// AnswerBindings projects an answer onto the request's wildcard indices,
// the view most callers want.
func AnswerBindings(answer *ConstraintStore, request []StatementTmpl) map[int]Value {
	want := make(map[int]bool)
	for _, tmpl := range request {
		for _, w := range WildcardIndices(tmpl.Args) {
			want[w] = true
		}
	}
	out := make(map[int]Value)
	for w := range want {
		if v, ok := answer.Get(w); ok {
			out[w] = v
		}
	}
	return out
}

// sortedWildcards returns the request wildcard indices in order.
func sortedWildcards(request []StatementTmpl) []int {
	seen := make(map[int]bool)
	var out []int
	for _, tmpl := range request {
		for _, w := range WildcardIndices(tmpl.Args) {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	sort.Ints(out)
	return out
}
