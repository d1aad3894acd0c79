package opt

import (
	"testing"

	"github.com/vela-lang/vela/internal/mir"
	"github.com/vela-lang/vela/internal/types"
)

func intType(t *testing.T) *types.Type {
	t.Helper()
	ctx := types.NewContext()
	mod := types.NewModule("main")
	decl := mod.AddMember(&types.Decl{Kind: types.DeclStruct, Name: types.SimpleName("Int"), Access: types.AccessPublic})
	return ctx.NominalType(decl, nil)
}

func noSubs() types.SubstitutionMap { return types.SubstitutionMap{} }

func TestConstantFromCallerArgument(t *testing.T) {
	intTy := intType(t)
	m := mir.NewModule("main")

	callee := m.AddFunction(mir.NewFunction("callee", intTy))
	cb := mir.NewBuilder(callee.NewBlock("entry"))
	sum := cb.Builtin(intTy, mir.BuiltinAdd, callee.Params[0], cb.IntegerLiteral(intTy, 1))
	cb.Return(sum)

	caller := m.AddFunction(mir.NewFunction("caller"))
	b := mir.NewBuilder(caller.NewBlock("entry"))
	lit := b.IntegerLiteral(intTy, 42)
	call := b.Apply(intTy, b.FunctionRef(intTy, callee), noSubs(), lit)
	b.Return(call)

	callerTracker := NewConstantTracker(caller)
	tracker := NewCalleeTracker(callee, callerTracker, call)

	got := tracker.GetIntConst(callee.Params[0])
	if !got.Valid || got.Value != 42 {
		t.Fatalf("GetIntConst(param) = %+v, want 42", got)
	}
	if !got.FromCaller {
		t.Errorf("constant crossing the call must be marked as from the caller")
	}

	folded := tracker.GetIntConst(sum)
	if !folded.Valid || folded.Value != 43 {
		t.Fatalf("GetIntConst(add) = %+v, want 43", folded)
	}
	if !folded.FromCaller {
		t.Errorf("a fold depending on a caller constant is from the caller")
	}

	// A literal defined in the callee itself is not caller-supplied.
	local := tracker.GetIntConst(sum.Args[1])
	if !local.Valid || local.FromCaller {
		t.Errorf("callee-local literal = %+v, want valid and not from caller", local)
	}
}

func TestMemoryMapResetsPerBlock(t *testing.T) {
	intTy := intType(t)
	f := mir.NewFunction("mem", intTy)
	entry := f.NewBlock("entry")
	next := f.NewBlock("next")

	b := mir.NewBuilder(entry)
	slot := b.Alloc(intTy, "x")
	lit := b.IntegerLiteral(intTy, 7)
	b.Store(lit, slot)
	sameBlock := b.Load(intTy, slot)
	b.Br(next)
	b.SetBlock(next)
	crossBlock := b.Load(intTy, slot)
	b.Return(crossBlock)

	tracker := NewConstantTracker(f)
	tracker.BeginBlock()
	for _, inst := range entry.Instrs {
		tracker.TrackInst(inst)
	}
	if got := tracker.GetIntConst(sameBlock); !got.Valid || got.Value != 7 {
		t.Errorf("same-block load = %+v, want 7", got)
	}

	tracker.BeginBlock()
	for _, inst := range next.Instrs {
		tracker.TrackInst(inst)
	}
	if got := tracker.GetIntConst(crossBlock); got.Valid {
		t.Errorf("cross-block load folded to %+v; stores must not survive block boundaries", got)
	}
}

func TestProjectionThroughAggregate(t *testing.T) {
	intTy := intType(t)
	f := mir.NewFunction("agg")
	entry := f.NewBlock("entry")

	b := mir.NewBuilder(entry)
	first := b.IntegerLiteral(intTy, 1)
	second := b.IntegerLiteral(intTy, 2)
	pair := b.MakeAggregate(intTy, first, second)
	elem := b.ExtractElement(intTy, pair, 1)
	b.Return(elem)

	tracker := NewConstantTracker(f)
	tracker.BeginBlock()
	for _, inst := range entry.Instrs {
		tracker.TrackInst(inst)
	}
	if got := tracker.GetIntConst(elem); !got.Valid || got.Value != 2 {
		t.Errorf("extract of a composed aggregate = %+v, want 2", got)
	}
}

func TestStoreLoadThroughElementAddr(t *testing.T) {
	intTy := intType(t)
	f := mir.NewFunction("fields")
	entry := f.NewBlock("entry")

	b := mir.NewBuilder(entry)
	slot := b.Alloc(intTy, "pair")
	field := b.ElementAddr(intTy, slot, 0)
	lit := b.IntegerLiteral(intTy, 9)
	b.Store(lit, field)
	same := b.Load(intTy, b.ElementAddr(intTy, slot, 0))
	other := b.Load(intTy, b.ElementAddr(intTy, slot, 1))
	b.Return(same)

	tracker := NewConstantTracker(f)
	tracker.BeginBlock()
	for _, inst := range entry.Instrs {
		tracker.TrackInst(inst)
	}
	if got := tracker.GetIntConst(same); !got.Valid || got.Value != 9 {
		t.Errorf("matching field load = %+v, want 9", got)
	}
	if got := tracker.GetIntConst(other); got.Valid {
		t.Errorf("load of an unrelated field folded to %+v", got)
	}
}

func TestRecursionDepthBound(t *testing.T) {
	intTy := intType(t)
	f := mir.NewFunction("deep")
	entry := f.NewBlock("entry")

	b := mir.NewBuilder(entry)
	var v mir.Value = b.IntegerLiteral(intTy, 1)
	var last *mir.Builtin
	for i := 0; i < maxConstDepth+2; i++ {
		last = b.Builtin(intTy, mir.BuiltinAdd, v, b.IntegerLiteral(intTy, 1))
		v = last
	}
	b.Return(v)

	tracker := NewConstantTracker(f)
	tracker.BeginBlock()
	for _, inst := range entry.Instrs {
		tracker.TrackInst(inst)
	}
	if got := tracker.GetIntConst(last); got.Valid {
		t.Errorf("evaluation beyond the depth bound returned %+v, want invalid", got)
	}
}
