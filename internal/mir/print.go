package mir

import (
	"fmt"
	"strings"
)

func (m *Module) String() string {
	if m == nil {
		return "<nil-mir-module>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *Function) String() string {
	if f == nil {
		return "<nil-func>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", p, p.Type())
	}
	b.WriteString(")")
	if f.Inline != InlineDefault {
		fmt.Fprintf(&b, " [inline %s]", f.Inline)
	}
	if f.Fragile {
		b.WriteString(" [fragile]")
	}
	if f.External {
		b.WriteString(" [external]\n")
		return b.String()
	}
	b.WriteString(" {\n")
	for _, bb := range f.Blocks {
		b.WriteString(bb.String())
	}
	b.WriteString("}\n")
	return b.String()
}

func (b *Block) String() string {
	if b == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", b.Name)
	for _, inst := range b.Instrs {
		sb.WriteString("  ")
		sb.WriteString(render(inst))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (a *Argument) String() string { return fmt.Sprintf("%%arg%d", a.Index) }

// resultName names an instruction's SSA result.
func resultName(i *instBase) string { return fmt.Sprintf("%%%d", i.id) }

func (i *IntegerLiteral) String() string { return resultName(&i.instBase) }
func (i *Builtin) String() string        { return resultName(&i.instBase) }
func (i *FunctionRef) String() string    { return resultName(&i.instBase) }
func (i *Apply) String() string          { return resultName(&i.instBase) }
func (i *PartialApply) String() string   { return resultName(&i.instBase) }
func (i *Alloc) String() string          { return resultName(&i.instBase) }
func (i *Load) String() string           { return resultName(&i.instBase) }
func (i *ElementAddr) String() string    { return resultName(&i.instBase) }
func (i *MakeAggregate) String() string  { return resultName(&i.instBase) }
func (i *ExtractElement) String() string { return resultName(&i.instBase) }

// render prints one instruction in full for dumps.
func render(inst Instruction) string {
	switch i := inst.(type) {
	case *IntegerLiteral:
		return fmt.Sprintf("%s = literal %d", i, i.Value)
	case *Builtin:
		return fmt.Sprintf("%s = builtin %s %s", i, i.Kind, operandList(i.Args))
	case *FunctionRef:
		return fmt.Sprintf("%s = function_ref @%s", i, i.Callee.Name)
	case *Apply:
		return fmt.Sprintf("%s = apply %s(%s)", i, i.Callee, operandList(i.Args))
	case *PartialApply:
		return fmt.Sprintf("%s = partial_apply %s(%s)", i, i.Callee, operandList(i.Args))
	case *Alloc:
		if i.VarName != "" {
			return fmt.Sprintf("%s = alloc %s // %s", i, i.Allocated, i.VarName)
		}
		return fmt.Sprintf("%s = alloc %s", i, i.Allocated)
	case *Load:
		return fmt.Sprintf("%s = load %s", i, i.Address)
	case *Store:
		return fmt.Sprintf("store %s to %s", i.Source, i.Address)
	case *CopyAddr:
		if i.IsTake {
			return fmt.Sprintf("copy_addr [take] %s to %s", i.Source, i.Dest)
		}
		return fmt.Sprintf("copy_addr %s to %s", i.Source, i.Dest)
	case *ElementAddr:
		return fmt.Sprintf("%s = element_addr %s, #%d", i, i.Base, i.Field)
	case *MakeAggregate:
		return fmt.Sprintf("%s = aggregate (%s)", i, operandList(i.Elements))
	case *ExtractElement:
		return fmt.Sprintf("%s = extract %s, #%d", i, i.Base, i.Field)
	case *Br:
		return fmt.Sprintf("br %s", i.Dest.Name)
	case *CondBr:
		s := fmt.Sprintf("cond_br %s, %s, %s", i.Cond, i.TrueDest.Name, i.FalseDest.Name)
		switch i.Hint {
		case HintTrueLikely:
			s += " [likely true]"
		case HintFalseLikely:
			s += " [likely false]"
		}
		return s
	case *SwitchValue:
		var sb strings.Builder
		fmt.Fprintf(&sb, "switch %s", i.Operand)
		for _, c := range i.Cases {
			fmt.Fprintf(&sb, ", case %d: %s", c.Value, c.Dest.Name)
		}
		if i.Default != nil {
			fmt.Fprintf(&sb, ", default: %s", i.Default.Name)
		}
		return sb.String()
	case *CheckedCastBr:
		return fmt.Sprintf("checked_cast_br %s to %s, %s, %s",
			i.Operand, i.Target, i.Success.Name, i.Failure.Name)
	case *Return:
		if i.Value == nil {
			return "return"
		}
		return fmt.Sprintf("return %s", i.Value)
	case *Unreachable:
		return "unreachable"
	default:
		return "<instr>"
	}
}

func operandList(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
