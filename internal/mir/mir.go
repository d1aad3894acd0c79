// Package mir defines a mid-level SSA IR used between type checking
// and lowering. Values are pointers: an instruction that produces a
// result is itself the value, so use-def chains are direct references.
package mir

import "github.com/vela-lang/vela/internal/types"

// Module is a compilation unit of MIR.
type Module struct {
	Name      string
	Functions []*Function

	byName map[string]*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, byName: make(map[string]*Function)}
}

// AddFunction appends a function to the module.
func (m *Module) AddFunction(f *Function) *Function {
	f.Module = m
	m.Functions = append(m.Functions, f)
	m.byName[f.Name] = f
	return f
}

// FunctionNamed finds a function by name, or nil.
func (m *Module) FunctionNamed(name string) *Function {
	return m.byName[name]
}

// InlineStrategy is the source-level inlining annotation.
type InlineStrategy int

const (
	// InlineDefault leaves the decision to the optimizer.
	InlineDefault InlineStrategy = iota
	// InlineAlways forces inlining regardless of cost.
	InlineAlways
	// InlineNever forbids inlining.
	InlineNever
)

func (s InlineStrategy) String() string {
	switch s {
	case InlineAlways:
		return "always"
	case InlineNever:
		return "never"
	default:
		return "default"
	}
}

// Function is a list of basic blocks in layout order. The first block
// is the entry.
type Function struct {
	Name   string
	Module *Module
	Params []*Argument
	Blocks []*Block

	Inline       InlineStrategy
	OptimizeNone bool // explicitly excluded from optimization
	Fragile      bool // ABI-stable body; may only inline other fragile bodies
	External     bool // declaration only, no body available
	GlobalInit   bool // lazy global initializer
	Thunk        bool // compiler-synthesized forwarding body
	Semantics    []string

	// Substitutions carries the generic context the body was cloned
	// under; a non-empty map means the body still references it.
	Substitutions types.SubstitutionMap

	nextID int
}

// NewFunction creates a function with the given parameter types.
func NewFunction(name string, paramTypes ...*types.Type) *Function {
	f := &Function{Name: name}
	for i, pt := range paramTypes {
		f.Params = append(f.Params, &Argument{fn: f, Index: i, typ: pt})
	}
	return f
}

// NewBlock appends an empty block to the function.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{fn: f, Name: name}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the entry block, or nil for external functions.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// HasSemantics reports whether the function carries the given
// semantics tag.
func (f *Function) HasSemantics(tag string) bool {
	for _, s := range f.Semantics {
		if s == tag {
			return true
		}
	}
	return false
}

// HasAnySemantics reports whether any semantics tag is attached.
func (f *Function) HasAnySemantics() bool { return len(f.Semantics) > 0 }

// InstructionCount is the total instruction count across all blocks.
func (f *Function) InstructionCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// Predecessors computes the predecessor lists of every block.
func (f *Function) Predecessors() map[*Block][]*Block {
	preds := make(map[*Block][]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, succ := range b.Successors() {
			preds[succ] = append(preds[succ], b)
		}
	}
	return preds
}

// Block is a sequence of instructions ending in a terminator.
type Block struct {
	fn     *Function
	Name   string
	Instrs []Instruction
}

// Parent returns the enclosing function.
func (b *Block) Parent() *Function { return b.fn }

// Append adds an instruction at the end of the block and assigns its
// value number.
func (b *Block) Append(inst Instruction) Instruction {
	base := inst.base()
	base.block = b
	base.id = b.fn.nextID
	b.fn.nextID++
	b.Instrs = append(b.Instrs, inst)
	return inst
}

// Terminator returns the block's terminator, or nil while the block is
// still under construction.
func (b *Block) Terminator() Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !IsTerminator(last) {
		return nil
	}
	return last
}

// Successors lists the blocks the terminator can branch to.
func (b *Block) Successors() []*Block {
	switch t := b.Terminator().(type) {
	case *Br:
		return []*Block{t.Dest}
	case *CondBr:
		return []*Block{t.TrueDest, t.FalseDest}
	case *SwitchValue:
		out := make([]*Block, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			out = append(out, c.Dest)
		}
		if t.Default != nil {
			out = append(out, t.Default)
		}
		return out
	case *CheckedCastBr:
		return []*Block{t.Success, t.Failure}
	default:
		return nil
	}
}

// Value is anything usable as an instruction operand: a function
// argument or a result-producing instruction.
type Value interface {
	Type() *types.Type
	String() string
}

// DefiningInstruction returns the instruction that produces v, or nil
// when v is a function argument.
func DefiningInstruction(v Value) Instruction {
	if inst, ok := v.(Instruction); ok {
		return inst
	}
	return nil
}

// Argument is a function parameter value.
type Argument struct {
	fn    *Function
	Index int
	typ   *types.Type
}

// Parent returns the function the argument belongs to.
func (a *Argument) Parent() *Function { return a.fn }

func (a *Argument) Type() *types.Type { return a.typ }

// Instruction is implemented by every MIR instruction. Instructions
// that produce a result also implement Value.
type Instruction interface {
	Parent() *Block
	Operands() []Value
	base() *instBase
}

// instBase carries the containing block and the value number shared by
// every instruction kind.
type instBase struct {
	block *Block
	id    int
}

func (i *instBase) Parent() *Block  { return i.block }
func (i *instBase) base() *instBase { return i }

// IsTerminator reports whether the instruction ends a block.
func IsTerminator(inst Instruction) bool {
	switch inst.(type) {
	case *Br, *CondBr, *SwitchValue, *CheckedCastBr, *Return, *Unreachable:
		return true
	default:
		return false
	}
}
