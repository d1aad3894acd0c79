package types

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-set/v3"
)

// SubstitutionMap binds the generic parameters of a signature to
// replacement types and carries one conformance reference per
// conformance requirement, in requirement order. Replacement slots are
// populated lazily: a nil slot means the replacement has not been
// computed yet, never that the parameter maps to nothing.
type SubstitutionMap struct {
	storage *substStorage
}

type substStorage struct {
	sig          *GenericSignature
	replacements []*Type
	conformances []ProtocolConformanceRef
	invalid      bool
}

// Empty reports whether the map carries no substitutions at all.
func (m SubstitutionMap) Empty() bool { return m.storage == nil }

// GenericSignature returns the signature the map substitutes, or nil
// for the empty map.
func (m SubstitutionMap) GenericSignature() *GenericSignature {
	if m.storage == nil {
		return nil
	}
	return m.storage.sig
}

// IsInvalid reports whether any required conformance could not be
// found when the map was built.
func (m SubstitutionMap) IsInvalid() bool {
	return m.storage != nil && m.storage.invalid
}

// Conformances returns the conformance array in requirement order.
func (m SubstitutionMap) Conformances() []ProtocolConformanceRef {
	if m.storage == nil {
		return nil
	}
	return m.storage.conformances
}

// SubstitutionMapFromReplacements builds a map with eagerly supplied
// replacements, one per generic parameter in canonical order, and the
// given conformances, one per conformance requirement.
func SubstitutionMapFromReplacements(sig *GenericSignature, replacements []*Type, conformances []ProtocolConformanceRef) SubstitutionMap {
	if sig == nil {
		return SubstitutionMap{}
	}
	st := &substStorage{
		sig:          sig,
		replacements: make([]*Type, len(sig.params)),
		conformances: conformances,
	}
	copy(st.replacements, replacements)
	for _, ref := range conformances {
		if ref.IsInvalid() {
			st.invalid = true
		}
	}
	return SubstitutionMap{storage: st}
}

// GetSubstitutionMap builds a map for sig by querying subFn for each
// parameter and confFn for each conformance requirement. Replacements
// stay lazy: only parameters that are already canonical in the
// signature are resolved eagerly, the rest populate on first lookup.
func GetSubstitutionMap(sig *GenericSignature, subFn SubstitutionFn, confFn ConformanceLookupFn) SubstitutionMap {
	if sig == nil {
		return SubstitutionMap{}
	}
	st := &substStorage{
		sig:          sig,
		replacements: make([]*Type, len(sig.params)),
	}
	m := SubstitutionMap{storage: st}
	for i, p := range sig.params {
		if !sig.IsCanonicalTypeInContext(p) {
			continue
		}
		st.replacements[i] = p.SubstWithFns(subFn, confFn)
	}
	for _, req := range sig.ConformanceRequirements() {
		replaced := req.Subject.SubstWithFns(subFn, confFn)
		ref, ok := confFn(req.Subject, replaced, req.Proto)
		if !ok || ref.IsInvalid() {
			st.invalid = true
			st.conformances = append(st.conformances, InvalidConformance())
			continue
		}
		st.conformances = append(st.conformances, ref)
	}
	return m
}

// Get returns the substituted form of t under the map.
func (m SubstitutionMap) Get(t *Type) *Type { return t.SubstMap(m) }

// lookupSubstitution resolves a single generic parameter, populating
// its lazy slot. The set of parameters whose resolution is in flight
// is threaded through the recursion; a parameter that reaches itself
// again, as a self-referential concrete binding does, resolves to an
// error marker wrapping it.
func (m SubstitutionMap) lookupSubstitution(t *Type) *Type {
	return m.lookupSubstitutionIn(t, set.New[*Type](1))
}

func (m SubstitutionMap) lookupSubstitutionIn(t *Type, visiting *set.Set[*Type]) *Type {
	if m.storage == nil {
		return nil
	}
	if t.kind == KindArchetype {
		// Bound archetypes answer through their interface form; opened
		// and nested archetypes have none and never substitute.
		if t.openedID != 0 || t.IsNestedArchetype() || t.iface == nil {
			return nil
		}
		t = t.iface
	}
	if t.kind != KindGenericParam {
		return nil
	}
	sig := m.storage.sig
	c := sig.ctx
	if visiting.Contains(t) {
		return c.ErrorTypeWrapping(t)
	}
	can := sig.CanonicalTypeInContext(t)
	if can.kind != KindGenericParam {
		// The parameter is fixed to a concrete type by the signature.
		// The binding may mention the parameter itself.
		visiting.Insert(t)
		r := m.substVisiting(can, visiting)
		visiting.Remove(t)
		return r
	}
	idx := -1
	for i, p := range sig.params {
		if p == can {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if r := m.storage.replacements[idx]; r != nil {
		return r
	}
	resolved := sig.CanonicalTypeInContext(can)
	if resolved == can {
		// Nothing to resolve lazily; identity.
		m.storage.replacements[idx] = can
		return can
	}
	visiting.Insert(can)
	r := m.substVisiting(resolved, visiting)
	visiting.Remove(can)
	m.storage.replacements[idx] = r
	return r
}

// substVisiting applies the map to t while keeping the in-flight
// parameter set threaded through nested lookups.
func (m SubstitutionMap) substVisiting(t *Type, visiting *set.Set[*Type]) *Type {
	return t.SubstWithFns(func(sub *Type) *Type {
		return m.lookupSubstitutionIn(sub, visiting)
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		res := m.LookupConformance(dep, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}

// LookupConformance answers how the substituted form of t, a type
// parameter of the map's signature, conforms to proto. The lookup walks
// the conformance access path derived by the signature, stepping
// through associated conformances; when a step's conformance is
// abstract the walk falls back to a fresh global lookup of the
// substituted type.
func (m SubstitutionMap) LookupConformance(t *Type, proto *Decl) ConformanceLookupResult {
	if m.storage == nil {
		return ConformanceLookupResult{Kind: LookupNotApplicable}
	}
	sig := m.storage.sig
	if t.kind == KindArchetype {
		if t.openedID != 0 || t.iface == nil {
			return ConformanceLookupResult{Kind: LookupNotApplicable}
		}
		t = t.iface
	}
	can := sig.CanonicalTypeInContext(t)
	if !can.IsTypeParameter() {
		return sig.ctx.LookupConformance(can.SubstMap(m), proto)
	}

	path := sig.ConformanceAccessPath(can, proto)
	if path == nil {
		// No stated requirement implies the conformance; a superclass
		// bound on the parameter may still deliver it.
		if bound := sig.SuperclassBound(can); bound != nil {
			return sig.ctx.LookupConformance(bound.SubstMap(m), proto)
		}
		return ConformanceLookupResult{Kind: LookupNoConformance}
	}

	// The first step is a root conformance requirement of the
	// signature; find its index in the conformance array.
	root := path[0]
	idx := -1
	i := 0
	for _, req := range sig.ConformanceRequirements() {
		if sig.CanonicalTypeInContext(req.Subject) == root.Subject && req.Proto == root.Proto {
			idx = i
			break
		}
		i++
	}
	if idx < 0 || idx >= len(m.storage.conformances) {
		return ConformanceLookupResult{Kind: LookupNoConformance}
	}
	ref := m.storage.conformances[idx]
	if ref.IsInvalid() {
		return ConformanceLookupResult{Kind: LookupNoConformance}
	}

	subject := root.Subject
	for _, step := range path[1:] {
		if ref.IsAbstract() {
			// Lost the concrete trail; resolve the substituted subject
			// fresh against the global registry.
			concrete := subject.SubstMap(m)
			if concrete.IsTypeParameter() || concrete.kind == KindArchetype {
				ref = AbstractConformance(step.Proto)
				subject = step.Subject
				continue
			}
			res := sig.ctx.LookupConformance(concrete, step.Proto)
			if res.Kind != LookupFound {
				return res
			}
			ref = res.Ref
			subject = step.Subject
			continue
		}
		next, ok := ref.AssociatedConformance(step.Assoc, step.Proto)
		if !ok {
			return ConformanceLookupResult{Kind: LookupNotApplicable}
		}
		if next.IsInvalid() {
			return ConformanceLookupResult{Kind: LookupNoConformance}
		}
		ref = next
		subject = step.Subject
	}
	return FoundConformance(ref)
}

// Subst composes the map with another: every replacement is substituted
// through other, and each conformance is pushed through it. The
// composed map answers queries as if the two substitutions were applied
// in sequence.
func (m SubstitutionMap) Subst(other SubstitutionMap) SubstitutionMap {
	if m.storage == nil {
		return SubstitutionMap{}
	}
	if other.storage == nil {
		return m
	}
	return m.SubstWithFns(func(t *Type) *Type {
		return other.lookupSubstitution(t)
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		res := other.LookupConformance(dep, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}

// SubstWithFns composes the map with raw substitution callbacks.
func (m SubstitutionMap) SubstWithFns(subFn SubstitutionFn, confFn ConformanceLookupFn) SubstitutionMap {
	if m.storage == nil {
		return SubstitutionMap{}
	}
	sig := m.storage.sig
	st := &substStorage{
		sig:          sig,
		replacements: make([]*Type, len(sig.params)),
		invalid:      m.storage.invalid,
	}
	for i := range sig.params {
		// Force the slot so composition sees every replacement.
		r := m.lookupSubstitution(sig.params[i])
		if r == nil {
			continue
		}
		st.replacements[i] = r.SubstWithFns(subFn, confFn)
	}
	creqs := sig.ConformanceRequirements()
	st.conformances = make([]ProtocolConformanceRef, len(m.storage.conformances))
	for i, ref := range m.storage.conformances {
		switch {
		case ref.IsInvalid():
			st.conformances[i] = ref
		case ref.IsAbstract():
			// The conformance was abstract: after composition the
			// subject may be concrete, so ask the callbacks with the
			// intermediate form the abstract conformance was for.
			intermediate := creqs[i].Subject.SubstMap(m)
			replaced := intermediate.SubstWithFns(subFn, confFn)
			if replaced.IsTypeParameter() || replaced.Kind() == KindArchetype {
				st.conformances[i] = ref
				continue
			}
			next, ok := confFn(intermediate, replaced, ref.Protocol())
			if !ok {
				st.conformances[i] = InvalidConformance()
				st.invalid = true
				continue
			}
			st.conformances[i] = next
			if next.IsInvalid() {
				st.invalid = true
			}
		default:
			st.conformances[i] = substConcreteConformance(ref, subFn, confFn)
			if st.conformances[i].IsInvalid() {
				st.invalid = true
			}
		}
	}
	return SubstitutionMap{storage: st}
}

// substConcreteConformance rewrites a concrete conformance's
// conforming type and witness tables through a substitution.
func substConcreteConformance(ref ProtocolConformanceRef, subFn SubstitutionFn, confFn ConformanceLookupFn) ProtocolConformanceRef {
	pc := ref.Concrete()
	typ := pc.typ.SubstWithFns(subFn, confFn)
	if typ == pc.typ {
		return ref
	}
	if typ.IsError() {
		return InvalidConformance()
	}
	pc.force()
	out := pc.ctx.NewConformance(typ, pc.proto, nil)
	for assoc, w := range pc.typeWitnesses {
		out.SetTypeWitness(assoc, w.SubstWithFns(subFn, confFn))
	}
	refs := make([]ProtocolConformanceRef, len(pc.sigConformances))
	for i, sc := range pc.sigConformances {
		if sc.IsConcrete() {
			refs[i] = substConcreteConformance(sc, subFn, confFn)
		} else {
			refs[i] = sc
		}
	}
	out.SetSignatureConformances(refs)
	return ConcreteConformance(out)
}

// ReplacementTypes forces and returns every replacement slot, in
// canonical parameter order.
func (m SubstitutionMap) ReplacementTypes() []*Type {
	if m.storage == nil {
		return nil
	}
	out := make([]*Type, len(m.storage.sig.params))
	for i, p := range m.storage.sig.params {
		out[i] = m.lookupSubstitution(p)
		if out[i] == nil {
			out[i] = p
		}
	}
	return out
}

// Canonical returns a map whose replacements and conforming types are
// all canonical.
func (m SubstitutionMap) Canonical() SubstitutionMap {
	if m.storage == nil {
		return m
	}
	return m.SubstWithFns(func(t *Type) *Type {
		return nil
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		return AbstractConformance(proto), true
	}).canonicalizeSlots()
}

func (m SubstitutionMap) canonicalizeSlots() SubstitutionMap {
	st := m.storage
	for i, p := range st.sig.params {
		r := m.lookupSubstitution(p)
		if r != nil {
			st.replacements[i] = r.Canonical()
		}
	}
	return m
}

// Verify checks the map's structural invariants: one conformance per
// conformance requirement, each conformance's protocol matching its
// requirement, and every requirement whose substituted subject is
// concrete carrying a concrete conformance. Abstract conformances may
// survive only while the subject is still a parameter, archetype,
// unbound, or error placeholder, or when an existential conforms
// abstractly to a bridged protocol. On mismatch it dumps the map and
// panics; running under a released compiler this is never reachable.
func (m SubstitutionMap) Verify() {
	if m.storage == nil {
		return
	}
	creqs := m.storage.sig.ConformanceRequirements()
	if len(m.storage.conformances) != len(creqs) {
		spew.Fdump(os.Stderr, m.storage)
		panic(fmt.Sprintf("substitution map: %d conformances for %d requirements",
			len(m.storage.conformances), len(creqs)))
	}
	for i, ref := range m.storage.conformances {
		if ref.IsInvalid() {
			continue
		}
		if ref.Protocol() != creqs[i].Proto {
			spew.Fdump(os.Stderr, m.storage)
			panic(fmt.Sprintf("substitution map: conformance %d is for %s, requirement wants %s",
				i, ref.Protocol().Name, creqs[i].Proto.Name))
		}
		if ref.IsConcrete() {
			continue
		}
		sub := creqs[i].Subject.SubstMap(m)
		if sub == nil || sub.IsError() || sub.IsTypeParameter() ||
			sub.kind == KindArchetype || sub.kind == KindUnboundGeneric {
			continue
		}
		if sub.IsExistential() && creqs[i].Proto.Flags.Bridged {
			continue
		}
		spew.Fdump(os.Stderr, m.storage)
		panic(fmt.Sprintf("substitution map: abstract conformance to %s for concrete type %s",
			creqs[i].Proto.Name, sub))
	}
}

// CombineSubstitutionMaps merges two maps into one for combinedSig:
// parameters at depth below firstDepthOrIndex (or index below it, when
// how is CombineAtIndex) answer from first, the rest from second with
// their depth or index shifted down.
type CombineHow int

const (
	// CombineAtDepth splits parameters by depth.
	CombineAtDepth CombineHow = iota
	// CombineAtIndex splits depth-0 parameters by index.
	CombineAtIndex
)

func CombineSubstitutionMaps(first, second SubstitutionMap, how CombineHow, boundary int, combinedSig *GenericSignature) SubstitutionMap {
	c := combinedSig.ctx
	pick := func(t *Type) (SubstitutionMap, *Type) {
		if how == CombineAtDepth {
			if t.depth < boundary {
				return first, t
			}
			return second, c.GenericParamType(t.depth-boundary, t.index, t.name)
		}
		if t.depth == 0 && t.index < boundary {
			return first, t
		}
		if t.depth == 0 {
			return second, c.GenericParamType(0, t.index-boundary, t.name)
		}
		return second, t
	}
	return GetSubstitutionMap(combinedSig, func(t *Type) *Type {
		if t.kind != KindGenericParam {
			return nil
		}
		m, mapped := pick(t)
		if m.storage == nil {
			return mapped
		}
		if r := m.lookupSubstitution(mapped); r != nil {
			return r
		}
		return mapped
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		root := dep
		for root.kind == KindDependentMember {
			root = root.parent
		}
		if root.kind != KindGenericParam {
			return ProtocolConformanceRef{}, false
		}
		m, _ := pick(root)
		if m.storage == nil {
			return AbstractConformance(proto), true
		}
		mappedDep := dep.SubstWithFns(func(s *Type) *Type {
			if s.kind != KindGenericParam {
				return nil
			}
			_, ms := pick(s)
			return ms
		}, func(_, _ *Type, p *Decl) (ProtocolConformanceRef, bool) {
			return AbstractConformance(p), true
		})
		res := m.LookupConformance(mappedDep, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}

// ContextSubstitutionMap builds the substitution map taking decl's
// generic parameters to the arguments supplied by this type, walking
// parent types for outer parameters.
func (t *Type) ContextSubstitutionMap(decl *Decl) SubstitutionMap {
	sig := decl.InnermostSignature()
	if sig == nil {
		return SubstitutionMap{}
	}
	// Collect bound arguments by walking the nominal parent chain.
	byKey := make(map[GenericParamKey]*Type)
	cur := t
	d := decl
	for cur != nil && d != nil {
		if cur.Kind() == KindNominal && cur.decl == d {
			for i, gp := range d.GenericParams {
				if i < len(cur.args) {
					byKey[GenericParamKey{gp.Depth, gp.Index}] = cur.args[i]
				}
			}
		}
		cur = cur.parent
		if d.Parent == nil {
			break
		}
		d = d.Parent.NominalContext()
	}
	c := sig.ctx
	return GetSubstitutionMap(sig, func(sub *Type) *Type {
		if sub.kind != KindGenericParam {
			return nil
		}
		if r := byKey[sub.ParamKey()]; r != nil {
			return r
		}
		return nil
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		if replacement.IsTypeParameter() || replacement.Kind() == KindArchetype {
			return AbstractConformance(proto), true
		}
		res := c.LookupConformance(replacement, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}

// ProtocolSubstitutions builds the map binding a protocol's Self to a
// conforming type, with the given conformance answering Self's one
// conformance requirement.
func ProtocolSubstitutions(proto *Decl, selfType *Type, conformance ProtocolConformanceRef) SubstitutionMap {
	sig := proto.Signature
	if sig == nil {
		return SubstitutionMap{}
	}
	return GetSubstitutionMap(sig, func(t *Type) *Type {
		if t.kind == KindGenericParam && t.depth == 0 && t.index == 0 {
			return selfType
		}
		return nil
	}, func(dep, replacement *Type, p *Decl) (ProtocolConformanceRef, bool) {
		if p == proto || proto.InheritsFrom(p) {
			return conformance, true
		}
		return ProtocolConformanceRef{}, false
	})
}

// OverrideSubstitutions builds the map rewriting a base declaration's
// interface type into the overriding context: class generic parameters
// come from the derived class's relation to the base class, and the
// method's own parameters map across one to one.
func OverrideSubstitutions(base, derived *Decl, derivedSelf *Type) SubstitutionMap {
	baseSig := base.Signature
	if baseSig == nil {
		baseClass := base.ClassContext()
		if baseClass == nil || baseClass.InnermostSignature() == nil {
			return SubstitutionMap{}
		}
		baseSig = baseClass.InnermostSignature()
	}
	baseClass := base.ClassContext()
	var classMap SubstitutionMap
	if baseClass != nil && derivedSelf != nil {
		superSelf := derivedSelf
		for superSelf != nil && superSelf.TypeDecl() != baseClass {
			superSelf = superSelf.Superclass()
		}
		if superSelf != nil {
			classMap = superSelf.ContextSubstitutionMap(baseClass)
		}
	}
	classDepth := 0
	if baseClass != nil && baseClass.InnermostSignature() != nil {
		params := baseClass.InnermostSignature().GenericParams()
		if len(params) > 0 {
			classDepth = params[len(params)-1].depth + 1
		}
	}
	c := baseSig.ctx
	return GetSubstitutionMap(baseSig, func(t *Type) *Type {
		if t.kind != KindGenericParam {
			return nil
		}
		if t.depth < classDepth {
			if classMap.storage != nil {
				return classMap.lookupSubstitution(t)
			}
			return nil
		}
		// The method's own parameters line up positionally.
		return t
	}, func(dep, replacement *Type, proto *Decl) (ProtocolConformanceRef, bool) {
		if replacement.IsTypeParameter() || replacement.Kind() == KindArchetype {
			return AbstractConformance(proto), true
		}
		res := c.LookupConformance(replacement, proto)
		if res.Kind != LookupFound {
			return ProtocolConformanceRef{}, false
		}
		return res.Ref, true
	})
}
