package opt

import (
	"strings"

	"github.com/vela-lang/vela/internal/mir"
)

// InlineSelection controls which attribute-carrying functions a
// pipeline stage may inline.
type InlineSelection int

const (
	// InlineEverything inlines regardless of semantics and global-init
	// attributes.
	InlineEverything InlineSelection = iota
	// InlineNoGlobalInit skips global initializers and availability
	// semantics.
	InlineNoGlobalInit
	// InlineNoSemanticsAndGlobalInit also skips all semantics-tagged
	// functions.
	InlineNoSemanticsAndGlobalInit
)

func (s InlineSelection) String() string {
	switch s {
	case InlineEverything:
		return "everything"
	case InlineNoGlobalInit:
		return "no-global-init"
	default:
		return "no-semantics-and-global-init"
	}
}

// PerformanceInliner decides which calls to inline based on a
// benefit/cost model fed by constant tracking.
type PerformanceInliner struct {
	cfg       Config
	selection InlineSelection
}

// NewPerformanceInliner creates an inliner with the given cost model
// and attribute selection.
func NewPerformanceInliner(cfg Config, selection InlineSelection) *PerformanceInliner {
	return &PerformanceInliner{cfg: cfg, selection: selection}
}

// calleeIsSelfRecursive reports whether the function calls itself
// anywhere in its body.
func calleeIsSelfRecursive(callee *mir.Function) bool {
	for _, b := range callee.Blocks {
		for _, inst := range b.Instrs {
			if ai, ok := inst.(*mir.Apply); ok && ai.CalleeFunction() == callee {
				return true
			}
		}
	}
	return false
}

// getEligibleFunction returns the callee if the call site is basically
// inlineable, applying all categorical exclusions.
func (p *PerformanceInliner) getEligibleFunction(apply *mir.Apply) *mir.Function {
	callee := apply.CalleeFunction()
	if callee == nil {
		return nil
	}

	if callee.HasAnySemantics() {
		if p.selection == InlineNoSemanticsAndGlobalInit {
			return nil
		}
		// Availability semantics are treated like global-init.
		if p.selection != InlineEverything && hasSemanticsPrefix(callee, "availability") {
			return nil
		}
	} else if callee.GlobalInit {
		if p.selection != InlineEverything {
			return nil
		}
	}

	if callee.External || len(callee.Blocks) == 0 {
		return nil
	}
	if callee.Inline == mir.InlineNever {
		return nil
	}
	if callee.OptimizeNone {
		return nil
	}
	// A callee whose body still references its generic context cannot
	// be spliced without re-substitution.
	if !apply.Substitutions.Empty() || !callee.Substitutions.Empty() {
		return nil
	}

	caller := apply.Parent().Parent()
	if caller == callee {
		return nil
	}
	// A fragile caller may only pull in other fragile bodies.
	if caller.Fragile && !callee.Fragile {
		return nil
	}
	if calleeIsSelfRecursive(callee) {
		return nil
	}
	return callee
}

func hasSemanticsPrefix(f *mir.Function, prefix string) bool {
	for _, s := range f.Semantics {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// testCost is the deterministic test-mode cost: 1 per builtin.
func testCost(inst mir.Instruction) int {
	if _, ok := inst.(*mir.Builtin); ok {
		return 1
	}
	return 0
}

// instructionCost is the production per-instruction heuristic.
func instructionCost(inst mir.Instruction) int {
	switch inst.(type) {
	case *mir.IntegerLiteral, *mir.FunctionRef:
		return 0
	case *mir.Br, *mir.Return, *mir.Unreachable:
		return 0
	case *mir.ElementAddr, *mir.ExtractElement:
		return 0
	case *mir.Apply, *mir.PartialApply:
		return 3
	default:
		return 1
	}
}

// getTakenBlock returns the successor a terminator must take when its
// condition is a constant supplied by the caller, or nil.
func getTakenBlock(term mir.Instruction, tracker *ConstantTracker) *mir.Block {
	switch t := term.(type) {
	case *mir.CondBr:
		c := tracker.GetIntConst(t.Cond)
		if c.Valid && c.FromCaller {
			if c.Value != 0 {
				return t.TrueDest
			}
			return t.FalseDest
		}
	case *mir.SwitchValue:
		c := tracker.GetIntConst(t.Operand)
		if c.Valid && c.FromCaller {
			return t.DestForValue(c.Value)
		}
	}
	return nil
}

// isProfitableToInline runs the benefit/cost model for one call site.
// numCallerBlocks tracks the caller's projected growth across accepted
// candidates.
func (p *PerformanceInliner) isProfitableToInline(apply *mir.Apply, loopDepthOfAI int,
	callerTracker *ConstantTracker, numCallerBlocks *int) bool {

	callee := apply.CalleeFunction()
	if callee.Inline == mir.InlineAlways {
		return true
	}

	tracker := NewCalleeTracker(callee, callerTracker, apply)
	dom := mir.NewDominatorTree(callee)
	loops := mir.NewLoopInfo(callee, dom)
	preds := callee.Predecessors()

	calleeCost := 0
	benefit := p.cfg.RemovedCallBenefit
	if p.cfg.InlineCostThreshold > 0 {
		benefit = p.cfg.InlineCostThreshold
	}
	benefit += loopDepthOfAI * p.cfg.LoopBenefitFactor
	testThreshold := p.cfg.TestThreshold

	// Dominance-ordered cost walk; children of blocks with a constant
	// terminator are pruned so dead-after-inlining code is not counted.
	worklist := []*mir.Block{callee.Entry()}
	for next := 0; next < len(worklist); next++ {
		block := worklist[next]
		tracker.BeginBlock()
		for _, inst := range block.Instrs {
			tracker.TrackInst(inst)

			if testThreshold >= 0 {
				calleeCost += testCost(inst)
			} else {
				calleeCost += instructionCost(inst)
			}

			// A callee operand that is a caller-supplied closure will
			// likely disappear entirely after inlining.
			if ai, ok := inst.(*mir.Apply); ok {
				def := tracker.GetDefInCaller(ai.Callee)
				if def != nil {
					switch def.(type) {
					case *mir.FunctionRef, *mir.PartialApply:
						benefit += p.cfg.ConstCalleeBenefit + loops.Depth(block)*p.cfg.LoopBenefitFactor
						testThreshold *= 2
					}
				}
			}
		}

		taken := getTakenBlock(block.Terminator(), tracker)
		if taken != nil {
			benefit += p.cfg.ConstTerminatorBenefit
			for _, child := range dom.Children(block) {
				// Keep children reachable from elsewhere and the taken
				// branch itself; the rest is dead after inlining.
				if child == taken || !hasSinglePredecessor(child, block, preds) {
					worklist = append(worklist, child)
				}
			}
		} else {
			worklist = append(worklist, dom.Children(block)...)
		}
	}

	threshold := benefit
	switch {
	case testThreshold >= 0:
		threshold = testThreshold
	case apply.Parent().Parent().Thunk:
		// Only trivial bodies may grow a thunk.
		threshold = p.cfg.TrivialFunctionThreshold
	default:
		// Cubic penalty on caller size; starts to matter at several
		// hundred blocks.
		blockMinus := (*numCallerBlocks) * (*numCallerBlocks) / p.cfg.BlockLimitDenominator *
			(*numCallerBlocks) / p.cfg.BlockLimitDenominator
		if threshold > blockMinus+p.cfg.TrivialFunctionThreshold {
			threshold -= blockMinus
		} else {
			threshold = p.cfg.TrivialFunctionThreshold
		}
	}

	if calleeCost > threshold {
		return false
	}
	*numCallerBlocks += len(callee.Blocks)
	return true
}

func hasSinglePredecessor(child, pred *mir.Block, preds map[*mir.Block][]*mir.Block) bool {
	list := preds[child]
	return len(list) == 1 && list[0] == pred
}

// isProfitableInColdBlock applies the stricter cold-path model: only
// callees within the independent cold budget qualify.
func (p *PerformanceInliner) isProfitableInColdBlock(callee *mir.Function) bool {
	if callee.Inline == mir.InlineAlways {
		return true
	}
	// The test cost model disables cold-path inlining.
	if p.cfg.TestThreshold >= 0 {
		return false
	}
	cost := 0
	for _, b := range callee.Blocks {
		for _, inst := range b.Instrs {
			cost += instructionCost(inst)
			if cost > p.cfg.ColdCalleeBudget {
				return false
			}
		}
	}
	return true
}

// collectAppliesToInline walks the caller in dominance order, feeding
// the constant tracker, and gathers profitable candidates. Cold
// subtrees are handled by the stricter model. The result is filtered
// by the per-callee fanout cap.
func (p *PerformanceInliner) collectAppliesToInline(caller *mir.Function) []*mir.Apply {
	dom := mir.NewDominatorTree(caller)
	loops := mir.NewLoopInfo(caller, dom)
	cold := mir.NewColdBlockInfo(caller)
	tracker := NewConstantTracker(caller)

	numCallerBlocks := len(caller.Blocks)
	var initial []*mir.Apply

	worklist := []*mir.Block{caller.Entry()}
	for next := 0; next < len(worklist); next++ {
		block := worklist[next]
		tracker.BeginBlock()
		depth := loops.Depth(block)
		for _, inst := range block.Instrs {
			tracker.TrackInst(inst)
			apply, ok := inst.(*mir.Apply)
			if !ok {
				continue
			}
			callee := p.getEligibleFunction(apply)
			if callee == nil {
				continue
			}
			if p.isProfitableToInline(apply, depth, tracker, &numCallerBlocks) {
				initial = append(initial, apply)
			}
		}
		for _, child := range dom.Children(block) {
			if cold.IsCold(child) && !cold.IsCold(block) {
				p.visitColdBlocks(&initial, child, dom)
				continue
			}
			worklist = append(worklist, child)
		}
	}

	calleeCount := make(map[*mir.Function]int)
	for _, apply := range initial {
		calleeCount[apply.CalleeFunction()]++
	}
	var out []*mir.Apply
	for _, apply := range initial {
		if calleeCount[apply.CalleeFunction()] <= p.cfg.CallsToCalleeThreshold {
			out = append(out, apply)
		}
	}
	return out
}

// visitColdBlocks collects the few candidates worth inlining on a
// statically cold path.
func (p *PerformanceInliner) visitColdBlocks(applies *[]*mir.Apply, root *mir.Block, dom *mir.DominatorTree) {
	dom.Walk(root, func(block *mir.Block) bool {
		for _, inst := range block.Instrs {
			apply, ok := inst.(*mir.Apply)
			if !ok {
				continue
			}
			callee := p.getEligibleFunction(apply)
			if callee != nil && p.isProfitableInColdBlock(callee) {
				*applies = append(*applies, apply)
			}
		}
		return true
	})
}

// InlineCallsIntoFunction collects candidates with valid analyses,
// then performs the splices as a second pass. Returns whether anything
// was inlined; the caller's analyses are stale afterwards.
func (p *PerformanceInliner) InlineCallsIntoFunction(caller *mir.Function) []*mir.Function {
	if caller.OptimizeNone {
		return nil
	}
	applies := p.collectAppliesToInline(caller)
	if len(applies) == 0 {
		return nil
	}

	var inlined []*mir.Function
	for _, apply := range applies {
		callee := apply.CalleeFunction()
		if callee == nil || callee.OptimizeNone {
			continue
		}
		if mir.InlineCall(apply, callee) {
			inlined = append(inlined, callee)
		}
	}
	return inlined
}
