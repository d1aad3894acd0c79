package mir

// InlineCall splices callee's body into the call site of apply. The
// caller block is split after the call, the callee's blocks are cloned
// with parameters bound to the call arguments, and every return
// branches to the continuation. Uses of the call result are rewritten
// to the returned value.
//
// Callees with no body or with more than one return are rejected; the
// decision layer above never selects them.
func InlineCall(apply *Apply, callee *Function) bool {
	block := apply.Parent()
	caller := block.Parent()
	if callee.External || len(callee.Blocks) == 0 {
		return false
	}
	if len(apply.Args) != len(callee.Params) {
		return false
	}
	var returns []*Return
	for _, cb := range callee.Blocks {
		for _, inst := range cb.Instrs {
			if ret, ok := inst.(*Return); ok {
				returns = append(returns, ret)
			}
		}
	}
	if len(returns) != 1 {
		return false
	}

	callIdx := -1
	for i, inst := range block.Instrs {
		if inst == Instruction(apply) {
			callIdx = i
			break
		}
	}
	if callIdx < 0 {
		return false
	}

	// Split: everything after the call moves to a continuation block.
	cont := caller.NewBlock(block.Name + ".cont")
	for _, inst := range block.Instrs[callIdx+1:] {
		inst.base().block = cont
		cont.Instrs = append(cont.Instrs, inst)
	}
	block.Instrs = block.Instrs[:callIdx]

	vmap := make(map[Value]Value, len(callee.Params))
	for i, p := range callee.Params {
		vmap[p] = apply.Args[i]
	}
	bmap := make(map[*Block]*Block, len(callee.Blocks))
	for _, cb := range callee.Blocks {
		bmap[cb] = caller.NewBlock(callee.Name + "." + cb.Name)
	}

	// Clone everything first, then remap operands: a block may use a
	// value defined in a later-listed block, so the value map is only
	// complete once all clones exist.
	var retValue Value
	var clones []Instruction
	for _, cb := range callee.Blocks {
		dest := bmap[cb]
		for _, inst := range cb.Instrs {
			if ret, ok := inst.(*Return); ok {
				retValue = ret.Value
				dest.Append(&Br{Dest: cont})
				continue
			}
			clone := cloneInstruction(inst, bmap)
			dest.Append(clone)
			if v, ok := inst.(Value); ok {
				vmap[v] = clone.(Value)
			}
			clones = append(clones, clone)
		}
	}
	for _, clone := range clones {
		rewriteOperands(clone, func(v Value) Value { return mapped(vmap, v) })
	}
	var returned Value
	if retValue != nil {
		returned = mapped(vmap, retValue)
	}

	// Enter the spliced body.
	block.Append(&Br{Dest: bmap[callee.Entry()]})

	if returned != nil {
		replaceUses(caller, apply, returned)
	}
	return true
}

func mapped(vmap map[Value]Value, v Value) Value {
	if m, ok := vmap[v]; ok {
		return m
	}
	return v
}

func copyValues(vals []Value) []Value {
	out := make([]Value, len(vals))
	copy(out, vals)
	return out
}

// cloneInstruction copies inst with block references remapped and
// value operands still naming the originals; rewriteOperands fixes
// those up once every clone is registered.
func cloneInstruction(inst Instruction, bmap map[*Block]*Block) Instruction {
	switch i := inst.(type) {
	case *IntegerLiteral:
		return &IntegerLiteral{typ: i.typ, Value: i.Value}
	case *Builtin:
		return &Builtin{typ: i.typ, Kind: i.Kind, Args: copyValues(i.Args)}
	case *FunctionRef:
		return &FunctionRef{typ: i.typ, Callee: i.Callee}
	case *Apply:
		return &Apply{typ: i.typ, Callee: i.Callee,
			Args: copyValues(i.Args), Substitutions: i.Substitutions}
	case *PartialApply:
		return &PartialApply{typ: i.typ, Callee: i.Callee,
			Args: copyValues(i.Args), Substitutions: i.Substitutions}
	case *Alloc:
		return &Alloc{Allocated: i.Allocated, VarName: i.VarName}
	case *Load:
		return &Load{typ: i.typ, Address: i.Address}
	case *Store:
		return &Store{Source: i.Source, Address: i.Address}
	case *CopyAddr:
		return &CopyAddr{Source: i.Source, Dest: i.Dest, IsTake: i.IsTake}
	case *ElementAddr:
		return &ElementAddr{typ: i.typ, Base: i.Base, Field: i.Field}
	case *MakeAggregate:
		return &MakeAggregate{typ: i.typ, Elements: copyValues(i.Elements)}
	case *ExtractElement:
		return &ExtractElement{typ: i.typ, Base: i.Base, Field: i.Field}
	case *Br:
		return &Br{Dest: bmap[i.Dest]}
	case *CondBr:
		return &CondBr{Cond: i.Cond,
			TrueDest: bmap[i.TrueDest], FalseDest: bmap[i.FalseDest], Hint: i.Hint}
	case *SwitchValue:
		cases := make([]SwitchCase, len(i.Cases))
		for n, c := range i.Cases {
			cases[n] = SwitchCase{Value: c.Value, Dest: bmap[c.Dest]}
		}
		var def *Block
		if i.Default != nil {
			def = bmap[i.Default]
		}
		return &SwitchValue{Operand: i.Operand, Cases: cases, Default: def}
	case *CheckedCastBr:
		return &CheckedCastBr{Operand: i.Operand, Target: i.Target,
			Success: bmap[i.Success], Failure: bmap[i.Failure]}
	case *Unreachable:
		return &Unreachable{}
	default:
		return &Unreachable{}
	}
}

// rewriteOperands applies sub to every value operand of inst in place.
func rewriteOperands(inst Instruction, sub func(Value) Value) {
	switch i := inst.(type) {
	case *Builtin:
		for n := range i.Args {
			i.Args[n] = sub(i.Args[n])
		}
	case *Apply:
		i.Callee = sub(i.Callee)
		for n := range i.Args {
			i.Args[n] = sub(i.Args[n])
		}
	case *PartialApply:
		i.Callee = sub(i.Callee)
		for n := range i.Args {
			i.Args[n] = sub(i.Args[n])
		}
	case *Load:
		i.Address = sub(i.Address)
	case *Store:
		i.Source = sub(i.Source)
		i.Address = sub(i.Address)
	case *CopyAddr:
		i.Source = sub(i.Source)
		i.Dest = sub(i.Dest)
	case *ElementAddr:
		i.Base = sub(i.Base)
	case *MakeAggregate:
		for n := range i.Elements {
			i.Elements[n] = sub(i.Elements[n])
		}
	case *ExtractElement:
		i.Base = sub(i.Base)
	case *CondBr:
		i.Cond = sub(i.Cond)
	case *SwitchValue:
		i.Operand = sub(i.Operand)
	case *CheckedCastBr:
		i.Operand = sub(i.Operand)
	case *Return:
		if i.Value != nil {
			i.Value = sub(i.Value)
		}
	}
}

// replaceUses rewrites every operand equal to old across fn.
func replaceUses(fn *Function, old, new Value) {
	sub := func(v Value) Value {
		if v == old {
			return new
		}
		return v
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			rewriteOperands(inst, sub)
		}
	}
}
