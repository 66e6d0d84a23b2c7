// Package entail implements a goal-directed deduction engine over
// authenticated ground facts.
//
// Given a fact database (EDB) of statements asserted by external pods and a
// proof request expressed as a conjunction of statement templates with
// logical variables, the engine searches for variable bindings that satisfy
// the request and records a proof DAG of operations whose leaves are ground
// facts and whose root concludes the requested statements.
//
// The package is organized around three subsystems:
//
//   - The Planner rewrites user-defined recursive rules (custom predicates
//     with conjunction or disjunction bodies) into a goal-directed execution
//     plan via a Magic-Set transformation with sideways-information-passing
//     ordering and constraint propagation.
//
//   - The Engine schedules frames through goal lists using pluggable
//     per-predicate propagators, with suspension and wake on unbound
//     variables and deduplication of alternative derivations by operation
//     quality.
//
//   - The Proof Reconstructor converts an accepted answer's premise list
//     into a topologically ordered operation list suitable for re-execution
//     by a verifier.
//
// The engine is strictly in-memory and single-threaded: the EDB and rule
// batches are read-only during a run, frames own their constraint stores
// exclusively, and suspension is cooperative parking rather than blocking.
// Persistence, networking, cryptographic proving, and user interfaces are
// external collaborators.
//
// A minimal session:
//
//	edb := entail.NewEdbBuilder().AddFullDict(dict).Build()
//	engine := entail.NewEngine(entail.DefaultRegistry(), edb)
//	if err := engine.LoadProcessed(request, batches); err != nil { ... }
//	err := engine.Run()
//	for _, answer := range engine.Answers { ... }
package entail
