package mir

import "github.com/vela-lang/vela/internal/types"

// BuiltinKind enumerates the primitive operations of the Builtin
// instruction. Arithmetic, bitwise, comparison, and cast groups are
// what the constant evaluator understands.
type BuiltinKind int

const (
	BuiltinAdd BuiltinKind = iota
	BuiltinSub
	BuiltinMul
	BuiltinSDiv
	BuiltinUDiv
	BuiltinAnd
	BuiltinOr
	BuiltinXor
	BuiltinShl
	BuiltinLShr
	BuiltinAShr

	BuiltinCmpEQ
	BuiltinCmpNE
	BuiltinCmpSLT
	BuiltinCmpSLE
	BuiltinCmpSGT
	BuiltinCmpSGE
	BuiltinCmpULT
	BuiltinCmpULE
	BuiltinCmpUGT
	BuiltinCmpUGE

	BuiltinTrunc
	BuiltinZExt
	BuiltinSExt
)

// IsArith reports an arithmetic or bitwise builtin.
func (k BuiltinKind) IsArith() bool { return k >= BuiltinAdd && k <= BuiltinAShr }

// IsCompare reports a comparison builtin.
func (k BuiltinKind) IsCompare() bool { return k >= BuiltinCmpEQ && k <= BuiltinCmpUGE }

// IsCast reports an integer cast builtin.
func (k BuiltinKind) IsCast() bool { return k >= BuiltinTrunc && k <= BuiltinSExt }

func (k BuiltinKind) String() string {
	switch k {
	case BuiltinAdd:
		return "add"
	case BuiltinSub:
		return "sub"
	case BuiltinMul:
		return "mul"
	case BuiltinSDiv:
		return "sdiv"
	case BuiltinUDiv:
		return "udiv"
	case BuiltinAnd:
		return "and"
	case BuiltinOr:
		return "or"
	case BuiltinXor:
		return "xor"
	case BuiltinShl:
		return "shl"
	case BuiltinLShr:
		return "lshr"
	case BuiltinAShr:
		return "ashr"
	case BuiltinCmpEQ:
		return "cmp_eq"
	case BuiltinCmpNE:
		return "cmp_ne"
	case BuiltinCmpSLT:
		return "cmp_slt"
	case BuiltinCmpSLE:
		return "cmp_sle"
	case BuiltinCmpSGT:
		return "cmp_sgt"
	case BuiltinCmpSGE:
		return "cmp_sge"
	case BuiltinCmpULT:
		return "cmp_ult"
	case BuiltinCmpULE:
		return "cmp_ule"
	case BuiltinCmpUGT:
		return "cmp_ugt"
	case BuiltinCmpUGE:
		return "cmp_uge"
	case BuiltinTrunc:
		return "trunc"
	case BuiltinZExt:
		return "zext"
	case BuiltinSExt:
		return "sext"
	default:
		return "builtin?"
	}
}

// IntegerLiteral produces a constant integer.
type IntegerLiteral struct {
	instBase
	typ   *types.Type
	Value int64
}

func (i *IntegerLiteral) Type() *types.Type { return i.typ }
func (i *IntegerLiteral) Operands() []Value { return nil }

// Builtin applies a primitive operation to its arguments.
type Builtin struct {
	instBase
	typ  *types.Type
	Kind BuiltinKind
	Args []Value
}

func (i *Builtin) Type() *types.Type { return i.typ }
func (i *Builtin) Operands() []Value { return i.Args }

// FunctionRef produces a direct reference to a function.
type FunctionRef struct {
	instBase
	Callee *Function
	typ    *types.Type
}

func (i *FunctionRef) Type() *types.Type { return i.typ }
func (i *FunctionRef) Operands() []Value { return nil }

// Apply calls a function value with resolved generic substitutions.
type Apply struct {
	instBase
	typ           *types.Type
	Callee        Value
	Args          []Value
	Substitutions types.SubstitutionMap
}

func (i *Apply) Type() *types.Type { return i.typ }
func (i *Apply) Operands() []Value { return append([]Value{i.Callee}, i.Args...) }

// CalleeFunction resolves the statically-known callee through a direct
// function reference, or nil for indirect calls.
func (i *Apply) CalleeFunction() *Function {
	if ref, ok := i.Callee.(*FunctionRef); ok {
		return ref.Callee
	}
	return nil
}

// PartialApply captures arguments against a function value, producing
// a closure.
type PartialApply struct {
	instBase
	typ           *types.Type
	Callee        Value
	Args          []Value
	Substitutions types.SubstitutionMap
}

func (i *PartialApply) Type() *types.Type { return i.typ }
func (i *PartialApply) Operands() []Value { return append([]Value{i.Callee}, i.Args...) }

// Alloc reserves a stack slot and produces its address.
type Alloc struct {
	instBase
	Allocated *types.Type
	VarName   string
}

func (i *Alloc) Type() *types.Type { return i.Allocated }
func (i *Alloc) Operands() []Value { return nil }

// Load reads the value at an address.
type Load struct {
	instBase
	typ     *types.Type
	Address Value
}

func (i *Load) Type() *types.Type { return i.typ }
func (i *Load) Operands() []Value { return []Value{i.Address} }

// Store writes a value to an address. It produces no result.
type Store struct {
	instBase
	Source  Value
	Address Value
}

func (i *Store) Operands() []Value { return []Value{i.Source, i.Address} }

// CopyAddr copies the value at Source to Dest. A non-take copy behaves
// like a load followed by a store.
type CopyAddr struct {
	instBase
	Source Value
	Dest   Value
	IsTake bool
}

func (i *CopyAddr) Operands() []Value { return []Value{i.Source, i.Dest} }

// ElementAddr projects the address of one field out of an aggregate
// address.
type ElementAddr struct {
	instBase
	typ   *types.Type
	Base  Value
	Field int
}

func (i *ElementAddr) Type() *types.Type { return i.typ }
func (i *ElementAddr) Operands() []Value { return []Value{i.Base} }

// MakeAggregate composes element values into an aggregate.
type MakeAggregate struct {
	instBase
	typ      *types.Type
	Elements []Value
}

func (i *MakeAggregate) Type() *types.Type { return i.typ }
func (i *MakeAggregate) Operands() []Value { return i.Elements }

// ExtractElement projects one field out of an aggregate value.
type ExtractElement struct {
	instBase
	typ   *types.Type
	Base  Value
	Field int
}

func (i *ExtractElement) Type() *types.Type { return i.typ }
func (i *ExtractElement) Operands() []Value { return []Value{i.Base} }

// BranchHint marks one successor of a conditional branch as the
// expected direction; the other side is statically cold.
type BranchHint int

const (
	HintNone BranchHint = iota
	HintTrueLikely
	HintFalseLikely
)

// Br branches unconditionally.
type Br struct {
	instBase
	Dest *Block
}

func (i *Br) Operands() []Value { return nil }

// CondBr branches on a boolean-like value (zero is false).
type CondBr struct {
	instBase
	Cond      Value
	TrueDest  *Block
	FalseDest *Block
	Hint      BranchHint
}

func (i *CondBr) Operands() []Value { return []Value{i.Cond} }

// ColdSuccessor returns the successor the hint marks as unlikely, or
// nil without a hint.
func (i *CondBr) ColdSuccessor() *Block {
	switch i.Hint {
	case HintTrueLikely:
		return i.FalseDest
	case HintFalseLikely:
		return i.TrueDest
	default:
		return nil
	}
}

// SwitchCase is one arm of a SwitchValue.
type SwitchCase struct {
	Value int64
	Dest  *Block
}

// SwitchValue dispatches on an integer operand.
type SwitchValue struct {
	instBase
	Operand Value
	Cases   []SwitchCase
	Default *Block
}

func (i *SwitchValue) Operands() []Value { return []Value{i.Operand} }

// DestForValue returns the arm a constant operand would take.
func (i *SwitchValue) DestForValue(v int64) *Block {
	for _, c := range i.Cases {
		if c.Value == v {
			return c.Dest
		}
	}
	return i.Default
}

// CheckedCastBr branches on whether the operand dynamically casts to
// the target type.
type CheckedCastBr struct {
	instBase
	Operand Value
	Target  *types.Type
	Success *Block
	Failure *Block
}

func (i *CheckedCastBr) Operands() []Value { return []Value{i.Operand} }

// Return leaves the function. Value may be nil for void returns.
type Return struct {
	instBase
	Value Value
}

func (i *Return) Operands() []Value {
	if i.Value == nil {
		return nil
	}
	return []Value{i.Value}
}

// Unreachable marks control flow that must never arrive.
type Unreachable struct {
	instBase
}

func (i *Unreachable) Operands() []Value { return nil }

// Builder appends instructions to a block.
type Builder struct {
	block *Block
}

// NewBuilder creates a builder positioned at the end of block.
func NewBuilder(block *Block) *Builder { return &Builder{block: block} }

// SetBlock repositions the builder.
func (b *Builder) SetBlock(block *Block) { b.block = block }

func (b *Builder) IntegerLiteral(typ *types.Type, v int64) *IntegerLiteral {
	inst := &IntegerLiteral{typ: typ, Value: v}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Builtin(typ *types.Type, kind BuiltinKind, args ...Value) *Builtin {
	inst := &Builtin{typ: typ, Kind: kind, Args: args}
	b.block.Append(inst)
	return inst
}

func (b *Builder) FunctionRef(typ *types.Type, callee *Function) *FunctionRef {
	inst := &FunctionRef{typ: typ, Callee: callee}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Apply(typ *types.Type, callee Value, subs types.SubstitutionMap, args ...Value) *Apply {
	inst := &Apply{typ: typ, Callee: callee, Args: args, Substitutions: subs}
	b.block.Append(inst)
	return inst
}

func (b *Builder) PartialApply(typ *types.Type, callee Value, subs types.SubstitutionMap, args ...Value) *PartialApply {
	inst := &PartialApply{typ: typ, Callee: callee, Args: args, Substitutions: subs}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Alloc(typ *types.Type, name string) *Alloc {
	inst := &Alloc{Allocated: typ, VarName: name}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Load(typ *types.Type, addr Value) *Load {
	inst := &Load{typ: typ, Address: addr}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Store(src, addr Value) *Store {
	inst := &Store{Source: src, Address: addr}
	b.block.Append(inst)
	return inst
}

func (b *Builder) CopyAddr(src, dest Value, take bool) *CopyAddr {
	inst := &CopyAddr{Source: src, Dest: dest, IsTake: take}
	b.block.Append(inst)
	return inst
}

func (b *Builder) ElementAddr(typ *types.Type, base Value, field int) *ElementAddr {
	inst := &ElementAddr{typ: typ, Base: base, Field: field}
	b.block.Append(inst)
	return inst
}

func (b *Builder) MakeAggregate(typ *types.Type, elems ...Value) *MakeAggregate {
	inst := &MakeAggregate{typ: typ, Elements: elems}
	b.block.Append(inst)
	return inst
}

func (b *Builder) ExtractElement(typ *types.Type, base Value, field int) *ExtractElement {
	inst := &ExtractElement{typ: typ, Base: base, Field: field}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Br(dest *Block) *Br {
	inst := &Br{Dest: dest}
	b.block.Append(inst)
	return inst
}

func (b *Builder) CondBr(cond Value, trueDest, falseDest *Block, hint BranchHint) *CondBr {
	inst := &CondBr{Cond: cond, TrueDest: trueDest, FalseDest: falseDest, Hint: hint}
	b.block.Append(inst)
	return inst
}

func (b *Builder) SwitchValue(operand Value, def *Block, cases ...SwitchCase) *SwitchValue {
	inst := &SwitchValue{Operand: operand, Cases: cases, Default: def}
	b.block.Append(inst)
	return inst
}

func (b *Builder) CheckedCastBr(operand Value, target *types.Type, success, failure *Block) *CheckedCastBr {
	inst := &CheckedCastBr{Operand: operand, Target: target, Success: success, Failure: failure}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Return(v Value) *Return {
	inst := &Return{Value: v}
	b.block.Append(inst)
	return inst
}

func (b *Builder) Unreachable() *Unreachable {
	inst := &Unreachable{}
	b.block.Append(inst)
	return inst
}
