package opt

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vela-lang/vela/internal/diagnostics"
	"github.com/vela-lang/vela/internal/mir"
	"github.com/vela-lang/vela/internal/position"
)

// Stage selects one of the three inliner runs in the pipeline.
type Stage int

const (
	StageEarly Stage = iota
	StageMid
	StageLate
)

func (s Stage) String() string {
	switch s {
	case StageEarly:
		return "early"
	case StageMid:
		return "mid"
	default:
		return "late"
	}
}

// selection maps a stage to the functions it may inline: early passes
// leave semantics-tagged bodies alone so later passes can still match
// on the tags.
func (s Stage) selection() InlineSelection {
	switch s {
	case StageEarly:
		return InlineNoSemanticsAndGlobalInit
	case StageMid:
		return InlineNoGlobalInit
	default:
		return InlineEverything
	}
}

// maxPipelineRestarts bounds how often a single function is reprocessed
// after successful inlining before the pipeline moves on.
const maxPipelineRestarts = 16

// Pipeline drives the inliner over a module, one function at a time.
// A successful inlining pass invalidates that function's analyses and
// restarts its pipeline, so opportunities in the freshly spliced body
// get a fresh dominance-ordered pass.
type Pipeline struct {
	cfg   Config
	diags *diagnostics.Manager

	// ParallelVerify checks functions concurrently after the pass.
	ParallelVerify bool
}

// NewPipeline creates a pipeline reporting remarks through diags.
func NewPipeline(cfg Config, diags *diagnostics.Manager) *Pipeline {
	return &Pipeline{cfg: cfg, diags: diags}
}

// Run executes one inliner stage over the module, then verifies it.
func (p *Pipeline) Run(m *mir.Module, stage Stage) error {
	// An explicit zero threshold disables the inliner.
	if p.cfg.InlineCostThreshold == 0 {
		return nil
	}
	inliner := NewPerformanceInliner(p.cfg, stage.selection())

	for _, f := range m.Functions {
		if f.External || f.OptimizeNone {
			continue
		}
		for round := 0; round < maxPipelineRestarts; round++ {
			inlined := inliner.InlineCallsIntoFunction(f)
			if len(inlined) == 0 {
				break
			}
			for _, callee := range inlined {
				p.diags.Report(position.Span{}, diagnostics.Note,
					diagnostics.CategoryOptimizerRemark,
					"%s inliner: inlined %s into %s", stage, callee.Name, f.Name)
			}
		}
	}
	return p.verify(m)
}

// verify checks module well-formedness, in parallel when configured.
func (p *Pipeline) verify(m *mir.Module) error {
	if !p.ParallelVerify {
		for _, f := range m.Functions {
			if err := VerifyFunction(f); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	for _, f := range m.Functions {
		g.Go(func() error { return VerifyFunction(f) })
	}
	return g.Wait()
}

// VerifyFunction checks structural invariants of one function: every
// block ends in exactly one terminator, branch targets belong to the
// function, and direct calls pass the right argument count.
func VerifyFunction(f *mir.Function) error {
	if f.External {
		if len(f.Blocks) != 0 {
			return fmt.Errorf("%s: external function has a body", f.Name)
		}
		return nil
	}
	owned := make(map[*mir.Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		owned[b] = true
	}
	for _, b := range f.Blocks {
		if b.Terminator() == nil {
			return fmt.Errorf("%s: block %s has no terminator", f.Name, b.Name)
		}
		for i, inst := range b.Instrs {
			if mir.IsTerminator(inst) && i != len(b.Instrs)-1 {
				return fmt.Errorf("%s: block %s has a terminator before its end", f.Name, b.Name)
			}
			if apply, ok := inst.(*mir.Apply); ok {
				if callee := apply.CalleeFunction(); callee != nil && len(apply.Args) != len(callee.Params) {
					return fmt.Errorf("%s: call to %s passes %d arguments, want %d",
						f.Name, callee.Name, len(apply.Args), len(callee.Params))
				}
			}
		}
		for _, succ := range b.Successors() {
			if !owned[succ] {
				return fmt.Errorf("%s: block %s branches outside the function", f.Name, b.Name)
			}
		}
	}
	return nil
}
