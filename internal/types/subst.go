package types

// SubstitutionFn maps a type parameter (or archetype) to its
// replacement. Returning nil means "no replacement here"; the walker
// leaves the parameter alone.
type SubstitutionFn func(*Type) *Type

// ConformanceLookupFn answers how a replaced type parameter conforms to
// a protocol. dep is the original dependent type, replacement what it
// became. ok=false means no answer, which surfaces as an error marker
// in the substituted type.
type ConformanceLookupFn func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool)

// SubstWithFns rewrites t bottom-up, replacing type parameters via
// subFn and projecting dependent members through conformances obtained
// from confFn. Substitution never fails: positions that cannot resolve
// become error markers wrapping the original type, and the error bit
// propagates upward.
func (t *Type) SubstWithFns(subFn SubstitutionFn, confFn ConformanceLookupFn) *Type {
	if t == nil {
		return nil
	}
	c := t.ctx
	switch t.kind {
	case KindError, KindModule:
		return t

	case KindGenericParam:
		if r := subFn(t); r != nil {
			return r
		}
		return t

	case KindArchetype:
		if t.openedID != 0 {
			// Opened archetypes are context-free constants.
			return t
		}
		if r := subFn(t); r != nil {
			return r
		}
		return t

	case KindDependentMember:
		// A replacement for the whole member chain wins over
		// projecting through the base.
		if t.IsTypeParameter() {
			if r := subFn(t); r != nil {
				return r
			}
		}
		base := t.parent.SubstWithFns(subFn, confFn)
		if base == t.parent {
			return t
		}
		if base.IsTypeParameter() || base.kind == KindArchetype {
			return c.DependentMemberType(base, t.name, t.assoc)
		}
		if base.IsError() {
			return c.ErrorTypeWrapping(t)
		}
		// The base became concrete: project the member through its
		// conformance's type witness.
		proto := t.memberProtocol()
		if proto == nil {
			return c.ErrorTypeWrapping(t)
		}
		ref, ok := confFn(t.parent, base, proto)
		if !ok || ref.IsInvalid() {
			return c.ErrorTypeWrapping(t)
		}
		if ref.IsAbstract() {
			return c.DependentMemberType(base, t.name, t.assoc)
		}
		witness, ok := ref.Concrete().TypeWitness(t.name)
		if !ok || witness == nil {
			return c.ErrorTypeWrapping(t)
		}
		return witness

	case KindNominal:
		parent := t.parent.SubstWithFns(subFn, confFn)
		args := substAll(t.args, subFn, confFn)
		if parent == t.parent && args == nil {
			return t
		}
		if args == nil {
			args = t.args
		}
		return c.NominalType(t.decl, parent, args...)

	case KindUnboundGeneric:
		parent := t.parent.SubstWithFns(subFn, confFn)
		if parent == t.parent {
			return t
		}
		return c.UnboundGenericType(t.decl, parent)

	case KindAlias:
		under := t.underlying.SubstWithFns(subFn, confFn)
		args := substAll(t.args, subFn, confFn)
		if under == t.underlying && args == nil {
			return t
		}
		if args == nil {
			args = t.args
		}
		// Keep the sugar when the expansion survived substitution.
		if under.IsError() {
			return under
		}
		return c.AliasType(t.decl, under, args)

	case KindTuple:
		elems := substAll(t.args, subFn, confFn)
		if elems == nil {
			return t
		}
		return c.TupleType(elems...)

	case KindFunction:
		var params []Param
		for i, p := range t.params {
			np := p.Type.SubstWithFns(subFn, confFn)
			if np != p.Type && params == nil {
				params = make([]Param, len(t.params))
				copy(params, t.params[:i])
			}
			if params != nil {
				params[i] = Param{Label: p.Label, Type: np}
			}
		}
		result := t.result.SubstWithFns(subFn, confFn)
		if params == nil && result == t.result {
			return t
		}
		if params == nil {
			params = t.params
		}
		return c.FunctionType(params, result, t.fnInfo)

	case KindOptional:
		obj := t.underlying.SubstWithFns(subFn, confFn)
		if obj == t.underlying {
			return t
		}
		return c.OptionalType(obj)

	case KindExistential:
		return t

	default:
		return t
	}
}

// substAll maps xs through substitution; returns nil when nothing
// changed so callers can keep the original slice.
func substAll(xs []*Type, subFn SubstitutionFn, confFn ConformanceLookupFn) []*Type {
	var out []*Type
	for i, x := range xs {
		nx := x.SubstWithFns(subFn, confFn)
		if nx != x && out == nil {
			out = make([]*Type, len(xs))
			copy(out, xs[:i])
		}
		if out != nil {
			out[i] = nx
		}
	}
	return out
}

// memberProtocol returns the protocol whose conformance resolves this
// dependent member: the protocol declaring the bound associated type.
func (t *Type) memberProtocol() *Decl {
	if t.assoc == nil {
		return nil
	}
	parent := t.assoc.Parent
	for parent != nil && parent.Kind != DeclProtocol {
		parent = parent.Parent
	}
	return parent
}

// Subst applies a substitution map to the type.
func (t *Type) SubstMap(m SubstitutionMap) *Type {
	if m.Empty() {
		return t
	}
	return t.SubstWithFns(func(sub *Type) *Type {
		return m.lookupSubstitution(sub)
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		res := m.LookupConformance(dep, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}
