package opt

import (
	"strings"
	"testing"

	"github.com/vela-lang/vela/internal/diagnostics"
	"github.com/vela-lang/vela/internal/mir"
	"github.com/vela-lang/vela/internal/types"
)

func TestPipelineInlinesTransitively(t *testing.T) {
	intTy := intType(t)
	m := mir.NewModule("main")

	// c is trivial; b forwards to c; a forwards to b. Inlining b into
	// a exposes the call to c, which the pipeline restart picks up.
	c := costedCallee(m, intTy, "c", 1)
	b := m.AddFunction(mir.NewFunction("b", intTy))
	bb := mir.NewBuilder(b.NewBlock("entry"))
	bCall := bb.Apply(intTy, bb.FunctionRef(intTy, c), types.SubstitutionMap{}, b.Params[0])
	bb.Return(bCall)
	a := m.AddFunction(mir.NewFunction("a", intTy))
	ab := mir.NewBuilder(a.NewBlock("entry"))
	aCall := ab.Apply(intTy, ab.FunctionRef(intTy, b), types.SubstitutionMap{}, a.Params[0])
	ab.Return(aCall)

	cfg := DefaultConfig()
	cfg.TestThreshold = 10
	diags := diagnostics.NewManager()
	pipeline := NewPipeline(cfg, diags)
	if err := pipeline.Run(m, StageMid); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, blk := range a.Blocks {
		for _, inst := range blk.Instrs {
			if _, ok := inst.(*mir.Apply); ok {
				t.Fatalf("call survived transitive inlining:\n%s", a)
			}
		}
	}

	var remarks int
	for _, d := range diags.Diagnostics() {
		if d.Category == diagnostics.CategoryOptimizerRemark {
			remarks++
			if !strings.Contains(d.Message, "inlined") {
				t.Errorf("remark = %q", d.Message)
			}
		}
	}
	if remarks == 0 {
		t.Errorf("no optimizer remarks emitted")
	}
}

func TestPipelineZeroThresholdDisablesInlining(t *testing.T) {
	intTy := intType(t)
	m := mir.NewModule("main")
	callee := costedCallee(m, intTy, "tiny", 1)
	caller, call := callSite(m, intTy, "caller", callee)

	cfg := DefaultConfig()
	cfg.InlineCostThreshold = 0
	pipeline := NewPipeline(cfg, diagnostics.NewManager())
	if err := pipeline.Run(m, StageLate); err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, blk := range caller.Blocks {
		for _, inst := range blk.Instrs {
			if inst == mir.Instruction(call) {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("zero threshold still inlined the call")
	}
}

func TestParallelVerify(t *testing.T) {
	intTy := intType(t)
	m := mir.NewModule("main")
	for _, name := range []string{"one", "two", "three"} {
		costedCallee(m, intTy, name, 2)
	}

	pipeline := NewPipeline(DefaultConfig(), diagnostics.NewManager())
	pipeline.ParallelVerify = true
	if err := pipeline.Run(m, StageEarly); err != nil {
		t.Fatalf("Run with parallel verification: %v", err)
	}
}

func TestVerifyFunctionCatchesMissingTerminator(t *testing.T) {
	intTy := intType(t)
	f := mir.NewFunction("broken", intTy)
	blk := f.NewBlock("entry")
	mir.NewBuilder(blk).IntegerLiteral(intTy, 1)

	err := VerifyFunction(f)
	if err == nil || !strings.Contains(err.Error(), "terminator") {
		t.Fatalf("VerifyFunction = %v, want missing-terminator error", err)
	}
}

func TestVerifyFunctionCatchesArityMismatch(t *testing.T) {
	intTy := intType(t)
	m := mir.NewModule("main")
	callee := costedCallee(m, intTy, "unary", 1)

	caller := m.AddFunction(mir.NewFunction("caller", intTy))
	b := mir.NewBuilder(caller.NewBlock("entry"))
	call := b.Apply(intTy, b.FunctionRef(intTy, callee), types.SubstitutionMap{})
	b.Return(call)

	err := VerifyFunction(caller)
	if err == nil || !strings.Contains(err.Error(), "arguments") {
		t.Fatalf("VerifyFunction = %v, want arity error", err)
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	data := []byte("removed_call_benefit: 100\ncold_callee_budget: 5\n")
	cfg, err := LoadConfig(data)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RemovedCallBenefit != 100 {
		t.Errorf("RemovedCallBenefit = %d, want the overridden 100", cfg.RemovedCallBenefit)
	}
	if cfg.ColdCalleeBudget != 5 {
		t.Errorf("ColdCalleeBudget = %d, want the overridden 5", cfg.ColdCalleeBudget)
	}
	if cfg.LoopBenefitFactor != DefaultConfig().LoopBenefitFactor {
		t.Errorf("untouched knob changed: LoopBenefitFactor = %d", cfg.LoopBenefitFactor)
	}
	if _, err := LoadConfig([]byte("block_limit_denominator: 0\n")); err == nil {
		t.Errorf("zero denominator accepted")
	}
	if _, err := LoadConfig([]byte(":::not yaml")); err == nil {
		t.Errorf("malformed config accepted")
	}
}
