// Package entail engine configuration.
//
// This file implements the proof-shape parameters shared with external
// collaborators and the engine configuration with its fluent builder.
package entail

import (
	"go.uber.org/zap"
)

// Params carries the proof-shape limits of the surrounding pod system.
// The engine consumes MaxStatements (as its default operation budget) and
// its planner MaxCustomPredicateArity; BuildPodFromAnswerTopLevelPublic
// checks MaxStatements and MaxPublicStatements. MaxInputPodsPublicStatements
// and MaxDepthContainers are carried but not read in this package.
type Params struct {
	MaxStatements                int
	MaxPublicStatements          int
	MaxInputPodsPublicStatements int
	MaxCustomPredicateArity      int
	MaxDepthContainers           int
}

// DefaultParams returns the standard limits.
func DefaultParams() Params {
	return Params{
		MaxStatements:                24,
		MaxPublicStatements:          8,
		MaxInputPodsPublicStatements: 8,
		MaxCustomPredicateArity:      20,
		MaxDepthContainers:           DefaultMaxContainerDepth,
	}
}

// EngineConfig tunes one engine instance. Zero values mean "no limit"
// except where noted.
type EngineConfig struct {
	// Params carries the proof-shape limits the planner validates rules
	// against.
	Params Params

	// MaxIterations caps scheduler loop iterations; 0 disables the cap.
	MaxIterations int

	// MaxParkedFrames caps the parked set; 0 disables the cap. Oversize
	// is a SafetyLimitError, not silent dropping.
	MaxParkedFrames int

	// MaxOperations is the per-frame premise budget used when
	// BranchAndBoundOnOps is set.
	MaxOperations int

	// BranchAndBoundOnOps drops frames whose recorded premises exceed
	// MaxOperations.
	BranchAndBoundOnOps bool

	// MaxRecursionDepth caps the nesting of open custom predicate
	// expansions within one frame, bounding depth-first recursion through
	// disjunctive predicates; 0 disables the cap.
	MaxRecursionDepth int

	// NaivePlanner skips the Magic-Set transform when loading a request.
	NaivePlanner bool

	// Logger receives scheduler trace output; nil means no logging.
	Logger *zap.Logger

	// Metrics receives counters and trace events; nil means none.
	Metrics MetricsSink
}

// DefaultEngineConfig returns a conservative configuration: a generous
// iteration cap so pathological inputs fail loudly, no operation budget.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Params:            DefaultParams(),
		MaxIterations:     1_000_000,
		MaxParkedFrames:   100_000,
		MaxRecursionDepth: 64,
	}
}

// EngineConfigBuilder assembles an EngineConfig fluently.
type EngineConfigBuilder struct {
	cfg EngineConfig
}

// NewEngineConfigBuilder starts from the default configuration.
func NewEngineConfigBuilder() *EngineConfigBuilder {
	return &EngineConfigBuilder{cfg: DefaultEngineConfig()}
}

// FromParams installs the proof-shape limits and seeds the operation
// budget from them.
func (b *EngineConfigBuilder) FromParams(p Params) *EngineConfigBuilder {
	b.cfg.Params = p
	b.cfg.MaxOperations = p.MaxStatements
	return b
}

// MaxIterations sets the scheduler iteration cap.
func (b *EngineConfigBuilder) MaxIterations(n int) *EngineConfigBuilder {
	b.cfg.MaxIterations = n
	return b
}

// MaxParkedFrames sets the parked-set cap.
func (b *EngineConfigBuilder) MaxParkedFrames(n int) *EngineConfigBuilder {
	b.cfg.MaxParkedFrames = n
	return b
}

// BranchAndBoundOnOps toggles the per-frame operation budget.
func (b *EngineConfigBuilder) BranchAndBoundOnOps(on bool) *EngineConfigBuilder {
	b.cfg.BranchAndBoundOnOps = on
	return b
}

// MaxRecursionDepth sets the custom-expansion nesting cap.
func (b *EngineConfigBuilder) MaxRecursionDepth(n int) *EngineConfigBuilder {
	b.cfg.MaxRecursionDepth = n
	return b
}

// NaivePlanner toggles the naive planning variant.
func (b *EngineConfigBuilder) NaivePlanner(on bool) *EngineConfigBuilder {
	b.cfg.NaivePlanner = on
	return b
}

// Logger attaches a logger.
func (b *EngineConfigBuilder) Logger(l *zap.Logger) *EngineConfigBuilder {
	b.cfg.Logger = l
	return b
}

// Metrics attaches a metrics sink.
func (b *EngineConfigBuilder) Metrics(m MetricsSink) *EngineConfigBuilder {
	b.cfg.Metrics = m
	return b
}

// Build returns the assembled configuration.
func (b *EngineConfigBuilder) Build() EngineConfig {
	return b.cfg
}
