package opt

import "github.com/vela-lang/vela/internal/mir"

// IntConst is the result of integer constant evaluation.
type IntConst struct {
	Value int64
	Valid bool
	// FromCaller means the constant only exists because of the
	// specific call site; the callee could not fold it on its own.
	FromCaller bool
}

// ConstantTracker estimates which values become constant when a callee
// is inlined. It simulates scalar replacement, mem2reg and constant
// propagation along one dominance-ordered pass, with the memory map
// reset at each block so no alias analysis across joins is needed.
// Trackers chain: a callee tracker follows function arguments up into
// the caller's tracker through the apply that would be inlined.
type ConstantTracker struct {
	fn        *mir.Function
	caller    *ConstantTracker
	applySite *mir.Apply

	// links maps a load (or copy_addr) to the store that produced the
	// loaded value. Persists across blocks.
	links map[mir.Instruction]mir.Instruction

	// memory maps a projection-stripped base address to the store
	// holding its current value. Valid within one block only.
	memory map[mir.Value]mir.Instruction

	constCache map[*mir.Builtin]IntConst
}

// NewConstantTracker creates the tracker of a caller function.
func NewConstantTracker(fn *mir.Function) *ConstantTracker {
	return &ConstantTracker{
		fn:         fn,
		links:      make(map[mir.Instruction]mir.Instruction),
		memory:     make(map[mir.Value]mir.Instruction),
		constCache: make(map[*mir.Builtin]IntConst),
	}
}

// NewCalleeTracker creates a tracker for callee chained to the
// caller's tracker through the call site.
func NewCalleeTracker(callee *mir.Function, caller *ConstantTracker, apply *mir.Apply) *ConstantTracker {
	t := NewConstantTracker(callee)
	t.caller = caller
	t.applySite = apply
	return t
}

// BeginBlock must be called when the dominance-ordered walk enters a
// new block; stored values are only trusted within one block.
func (t *ConstantTracker) BeginBlock() {
	for k := range t.memory {
		delete(t.memory, k)
	}
}

// TrackInst must be called for each instruction visited in dominance
// order.
func (t *ConstantTracker) TrackInst(inst mir.Instruction) {
	switch i := inst.(type) {
	case *mir.Load:
		base := t.scanProjections(i.Address, nil)
		if store := t.memoryContent(base); store != nil {
			t.links[i] = store
		}
	case *mir.Store:
		base := t.scanProjections(i.Address, nil)
		t.memory[base] = i
	case *mir.CopyAddr:
		if i.IsTake {
			return
		}
		// A non-take copy is a load followed by a store.
		loadBase := t.scanProjections(i.Source, nil)
		if store := t.memoryContent(loadBase); store != nil {
			t.links[i] = store
			storeBase := t.scanProjections(i.Dest, nil)
			t.memory[storeBase] = i
		}
	}
}

func (t *ConstantTracker) memoryContent(addr mir.Value) mir.Instruction {
	if store := t.memory[addr]; store != nil {
		return store
	}
	if t.caller != nil {
		return t.caller.memoryContent(addr)
	}
	return nil
}

// param maps a function argument of the tracked callee to the actual
// argument at the chained call site.
func (t *ConstantTracker) param(v mir.Value) mir.Value {
	arg, ok := v.(*mir.Argument)
	if !ok || t.applySite == nil || arg.Parent() != t.fn {
		return nil
	}
	return t.applySite.Args[arg.Index]
}

// scanProjections strips address projections, optionally collecting
// the field indexes, and follows argument edges into the caller. The
// result is the base address.
func (t *ConstantTracker) scanProjections(addr mir.Value, fields *[]int) mir.Value {
	for {
		if ea, ok := addr.(*mir.ElementAddr); ok {
			if fields != nil {
				*fields = append(*fields, ea.Field)
			}
			addr = ea.Base
			continue
		}
		if param := t.param(addr); param != nil {
			addr = param
			continue
		}
		return addr
	}
}

// storedValue resolves a load (or copy_addr) to the value its linked
// store wrote, keeping the projection stack consistent: the store's
// projection path must be a suffix of the load's.
func (t *ConstantTracker) storedValue(loadInst mir.Instruction, projStack *[]int) mir.Value {
	store := t.links[loadInst]
	if store == nil && t.caller != nil {
		store = t.caller.links[loadInst]
	}
	if store == nil {
		return nil
	}

	var loadAddr mir.Value
	switch li := loadInst.(type) {
	case *mir.Load:
		loadAddr = li.Address
	case *mir.CopyAddr:
		loadAddr = li.Source
	default:
		return nil
	}
	var loadFields []int
	t.scanProjections(loadAddr, &loadFields)
	*projStack = append(*projStack, loadFields...)

	var storeAddr mir.Value
	switch si := store.(type) {
	case *mir.Store:
		storeAddr = si.Address
	case *mir.CopyAddr:
		storeAddr = si.Dest
	default:
		return nil
	}
	var storeFields []int
	t.scanProjections(storeAddr, &storeFields)
	for i := len(storeFields) - 1; i >= 0; i-- {
		stack := *projStack
		if len(stack) == 0 || stack[len(stack)-1] != storeFields[i] {
			return nil
		}
		*projStack = stack[:len(stack)-1]
	}

	if si, ok := store.(*mir.Store); ok {
		return si.Source
	}
	// A copy_addr is a load and a store at once; follow its own link.
	return t.storedValue(store, projStack)
}

// member resolves the aggregate element named by the projection stack
// top out of a composing instruction.
func member(inst mir.Instruction, projStack []int) mir.Value {
	if len(projStack) == 0 {
		return nil
	}
	agg, ok := inst.(*mir.MakeAggregate)
	if !ok {
		return nil
	}
	field := projStack[len(projStack)-1]
	if field < 0 || field >= len(agg.Elements) {
		return nil
	}
	return agg.Elements[field]
}

// GetDef resolves a value to its estimated defining instruction,
// walking through projection/composition pairs, load-store links, and
// caller arguments.
func (t *ConstantTracker) GetDef(v mir.Value) mir.Instruction {
	var projStack []int
	return t.getDef(v, &projStack)
}

func (t *ConstantTracker) getDef(v mir.Value, projStack *[]int) mir.Instruction {
	for {
		if inst := mir.DefiningInstruction(v); inst != nil {
			if ex, ok := inst.(*mir.ExtractElement); ok {
				*projStack = append(*projStack, ex.Field)
				v = ex.Base
				continue
			}
			if m := member(inst, *projStack); m != nil {
				*projStack = (*projStack)[:len(*projStack)-1]
				v = m
				continue
			}
			switch inst.(type) {
			case *mir.Load, *mir.CopyAddr:
				if loaded := t.storedValue(inst, projStack); loaded != nil {
					v = loaded
					continue
				}
			}
			return inst
		}
		if param := t.param(v); param != nil {
			v = param
			continue
		}
		return nil
	}
}

// GetDefInCaller resolves a value to a defining instruction that lives
// in the caller, or nil when the definition stays inside the tracked
// function.
func (t *ConstantTracker) GetDefInCaller(v mir.Value) mir.Instruction {
	def := t.GetDef(v)
	if def != nil && def.Parent().Parent() != t.fn {
		return def
	}
	return nil
}

// maxConstDepth bounds the recursion of constant evaluation.
const maxConstDepth = 10

// GetIntConst evaluates a value to an integer constant if possible.
func (t *ConstantTracker) GetIntConst(v mir.Value) IntConst {
	return t.getIntConst(v, 0)
}

func (t *ConstantTracker) getIntConst(v mir.Value, depth int) IntConst {
	if depth >= maxConstDepth {
		return IntConst{}
	}
	def := t.GetDef(v)
	if def == nil {
		return IntConst{}
	}
	if lit, ok := def.(*mir.IntegerLiteral); ok {
		return IntConst{
			Value:      lit.Value,
			Valid:      true,
			FromCaller: lit.Parent().Parent() != t.fn,
		}
	}
	if bi, ok := def.(*mir.Builtin); ok {
		if cached, ok := t.constCache[bi]; ok {
			return cached
		}
		result := t.evalBuiltin(bi, depth+1)
		t.constCache[bi] = result
		return result
	}
	return IntConst{}
}

func (t *ConstantTracker) evalBuiltin(bi *mir.Builtin, depth int) IntConst {
	kind := bi.Kind
	switch {
	case kind.IsCast():
		// Casts are width changes; the model keeps the value.
		v := t.getIntConst(bi.Args[0], depth)
		if !v.Valid {
			return IntConst{}
		}
		return IntConst{Value: v.Value, Valid: true, FromCaller: v.FromCaller}

	case kind.IsArith(), kind.IsCompare():
		if len(bi.Args) != 2 {
			return IntConst{}
		}
		lhs := t.getIntConst(bi.Args[0], depth)
		rhs := t.getIntConst(bi.Args[1], depth)
		if !lhs.Valid || !rhs.Valid {
			return IntConst{}
		}
		value, ok := foldBuiltin(kind, lhs.Value, rhs.Value)
		if !ok {
			return IntConst{}
		}
		return IntConst{Value: value, Valid: true, FromCaller: lhs.FromCaller || rhs.FromCaller}
	}
	return IntConst{}
}

func foldBuiltin(kind mir.BuiltinKind, lhs, rhs int64) (int64, bool) {
	boolVal := func(b bool) int64 {
		if b {
			return 1
		}
		return 0
	}
	switch kind {
	case mir.BuiltinAdd:
		return lhs + rhs, true
	case mir.BuiltinSub:
		return lhs - rhs, true
	case mir.BuiltinMul:
		return lhs * rhs, true
	case mir.BuiltinSDiv:
		if rhs == 0 {
			return 0, false
		}
		return lhs / rhs, true
	case mir.BuiltinUDiv:
		if rhs == 0 {
			return 0, false
		}
		return int64(uint64(lhs) / uint64(rhs)), true
	case mir.BuiltinAnd:
		return lhs & rhs, true
	case mir.BuiltinOr:
		return lhs | rhs, true
	case mir.BuiltinXor:
		return lhs ^ rhs, true
	case mir.BuiltinShl:
		return lhs << uint64(rhs), true
	case mir.BuiltinLShr:
		return int64(uint64(lhs) >> uint64(rhs)), true
	case mir.BuiltinAShr:
		return lhs >> uint64(rhs), true
	case mir.BuiltinCmpEQ:
		return boolVal(lhs == rhs), true
	case mir.BuiltinCmpNE:
		return boolVal(lhs != rhs), true
	case mir.BuiltinCmpSLT:
		return boolVal(lhs < rhs), true
	case mir.BuiltinCmpSLE:
		return boolVal(lhs <= rhs), true
	case mir.BuiltinCmpSGT:
		return boolVal(lhs > rhs), true
	case mir.BuiltinCmpSGE:
		return boolVal(lhs >= rhs), true
	case mir.BuiltinCmpULT:
		return boolVal(uint64(lhs) < uint64(rhs)), true
	case mir.BuiltinCmpULE:
		return boolVal(uint64(lhs) <= uint64(rhs)), true
	case mir.BuiltinCmpUGT:
		return boolVal(uint64(lhs) > uint64(rhs)), true
	case mir.BuiltinCmpUGE:
		return boolVal(uint64(lhs) >= uint64(rhs)), true
	default:
		return 0, false
	}
}
