// Package opt implements the mid-level optimizer: constant tracking
// across call sites and the performance inliner with its cost model.
package opt

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config carries the inliner cost model. Zero values are not
// meaningful; start from DefaultConfig and override.
type Config struct {
	// InlineCostThreshold overrides the base benefit when positive.
	// Zero disables inlining entirely; negative uses
	// RemovedCallBenefit.
	InlineCostThreshold int `yaml:"inline_cost_threshold"`

	// RemovedCallBenefit is the base value of every call site: the
	// benefit of removing the call overhead.
	RemovedCallBenefit int `yaml:"removed_call_benefit"`

	// ConstTerminatorBenefit applies when a terminator condition
	// becomes constant after inlining.
	ConstTerminatorBenefit int `yaml:"const_terminator_benefit"`

	// ConstCalleeBenefit applies when a callee operand of an apply
	// inside the callee becomes constant, e.g. a closure passed in.
	ConstCalleeBenefit int `yaml:"const_callee_benefit"`

	// LoopBenefitFactor scales the benefit per loop nesting level.
	LoopBenefitFactor int `yaml:"loop_benefit_factor"`

	// TrivialFunctionThreshold is the cost below which inlining never
	// grows code; it floors the caller-size penalty and bounds what
	// thunks may inline.
	TrivialFunctionThreshold int `yaml:"trivial_function_threshold"`

	// BlockLimitDenominator shapes the cubic caller-size penalty.
	BlockLimitDenominator int `yaml:"block_limit_denominator"`

	// CallsToCalleeThreshold drops candidates whose callee is called
	// more often than this from one caller.
	CallsToCalleeThreshold int `yaml:"calls_to_callee_threshold"`

	// TestThreshold switches on the deterministic test cost model
	// (1 per builtin, 0 otherwise) when non-negative.
	TestThreshold int `yaml:"test_threshold"`

	// ColdCalleeBudget bounds the callee cost inside statically cold
	// blocks. Deliberately independent of TrivialFunctionThreshold.
	ColdCalleeBudget int `yaml:"cold_callee_budget"`
}

// DefaultConfig returns the production cost model.
func DefaultConfig() Config {
	return Config{
		InlineCostThreshold:      -1,
		RemovedCallBenefit:       80,
		ConstTerminatorBenefit:   2,
		ConstCalleeBenefit:       150,
		LoopBenefitFactor:        40,
		TrivialFunctionThreshold: 20,
		BlockLimitDenominator:    10000,
		CallsToCalleeThreshold:   1024,
		TestThreshold:            -1,
		ColdCalleeBudget:         20,
	}
}

// LoadConfig overlays YAML settings on the defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing optimizer config: %w", err)
	}
	if cfg.BlockLimitDenominator <= 0 {
		return Config{}, fmt.Errorf("block_limit_denominator must be positive, got %d",
			cfg.BlockLimitDenominator)
	}
	return cfg, nil
}
