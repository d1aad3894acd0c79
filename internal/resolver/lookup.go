package resolver

import (
	"github.com/vela-lang/vela/internal/position"
	"github.com/vela-lang/vela/internal/types"
)

// LookupResult is one candidate produced by name lookup: the
// declaration and the context it was found in, which presentation
// rules need to substitute the member correctly.
type LookupResult struct {
	Decl    *types.Decl
	FoundIn *types.Decl
}

// Lookup is the declaration-lookup collaborator the resolver and the
// substitution machinery consult. Implementations return candidates in
// a stable order; the resolver applies access control and ambiguity
// rules on top.
type Lookup interface {
	LookupUnqualified(context *types.Decl, name string, span position.Span, opts Options) []LookupResult
	LookupQualified(context *types.Decl, parent *types.Type, name string, opts Options) []LookupResult
	LookupConformance(t *types.Type, proto *types.Decl) types.ConformanceLookupResult
}

// ScopeLookup is the standard Lookup over the declaration tree: it
// walks enclosing contexts outward to module scope for unqualified
// names and searches a type's declaration (including protocol members
// and superclasses) for qualified ones.
type ScopeLookup struct {
	ctx *types.Context
}

// NewScopeLookup creates the standard lookup over ctx's declarations.
func NewScopeLookup(ctx *types.Context) *ScopeLookup {
	return &ScopeLookup{ctx: ctx}
}

// LookupUnqualified walks from context outward. Generic parameters of
// each enclosing generic context are visible before its members.
func (l *ScopeLookup) LookupUnqualified(context *types.Decl, name string, span position.Span, opts Options) []LookupResult {
	var out []LookupResult
	seen := make(map[*types.Decl]bool)
	add := func(d, foundIn *types.Decl) {
		if d == nil || seen[d] || !d.IsTypeDecl() {
			return
		}
		seen[d] = true
		out = append(out, LookupResult{Decl: d, FoundIn: foundIn})
	}
	for dc := context; dc != nil; dc = dc.Parent {
		for _, gp := range dc.GenericParams {
			if gp.Name.Base == name {
				add(gp, dc)
			}
		}
		nominal := dc.NominalContext()
		if nominal != nil && nominal.Name.Base == name {
			add(nominal, dc)
		}
		scope := dc
		if nominal != nil {
			scope = nominal
		}
		for _, m := range scope.LookupMember(name) {
			add(m, scope)
		}
		// Class members include inherited ones.
		if nominal != nil && nominal.Kind == types.DeclClass {
			for sup := nominal.Superclass; sup != nil; {
				supDecl := sup.TypeDecl()
				if supDecl == nil {
					break
				}
				for _, m := range supDecl.LookupMember(name) {
					add(m, supDecl)
				}
				sup = supDecl.Superclass
			}
		}
	}
	return out
}

// LookupQualified resolves a member type name against a parent type.
func (l *ScopeLookup) LookupQualified(context *types.Decl, parent *types.Type, name string, opts Options) []LookupResult {
	var out []LookupResult
	seen := make(map[*types.Decl]bool)
	add := func(d, foundIn *types.Decl) {
		if d == nil || seen[d] || !d.IsTypeDecl() {
			return
		}
		seen[d] = true
		out = append(out, LookupResult{Decl: d, FoundIn: foundIn})
	}

	switch parent.Kind() {
	case types.KindModule:
		for _, m := range parent.TypeDecl().LookupMember(name) {
			add(m, parent.TypeDecl())
		}
	case types.KindNominal, types.KindUnboundGeneric:
		for decl := parent.TypeDecl(); decl != nil; {
			for _, m := range decl.LookupMember(name) {
				add(m, decl)
			}
			// Protocols a nominal declares conformance to contribute
			// their associated types and typealiases.
			for _, p := range l.conformedProtocols(decl) {
				for _, m := range p.LookupMember(name) {
					add(m, p)
				}
			}
			if decl.Kind == types.DeclClass && decl.Superclass != nil {
				decl = decl.Superclass.TypeDecl()
				continue
			}
			break
		}
	case types.KindGenericParam, types.KindDependentMember, types.KindArchetype, types.KindExistential:
		for _, p := range l.visibleProtocols(context, parent) {
			if assoc := p.AssociatedType(name); assoc != nil {
				add(assoc, p)
			}
			for _, m := range p.LookupMember(name) {
				add(m, p)
			}
		}
	}
	return out
}

// LookupConformance defers to the module-wide registry.
func (l *ScopeLookup) LookupConformance(t *types.Type, proto *types.Decl) types.ConformanceLookupResult {
	return l.ctx.LookupConformance(t, proto)
}

func (l *ScopeLookup) conformedProtocols(decl *types.Decl) []*types.Decl {
	var out []*types.Decl
	for _, p := range decl.Inherited {
		if p.Kind == types.DeclProtocol {
			out = append(out, p)
			out = append(out, allInherited(p)...)
		}
	}
	return out
}

// visibleProtocols collects the protocols constraining a type
// parameter or existential, so member lookup can search them.
func (l *ScopeLookup) visibleProtocols(context *types.Decl, t *types.Type) []*types.Decl {
	var out []*types.Decl
	switch t.Kind() {
	case types.KindExistential, types.KindArchetype:
		for _, p := range t.Protocols() {
			out = append(out, p)
			out = append(out, allInherited(p)...)
		}
		if t.Kind() == types.KindArchetype && t.InterfaceType() != nil {
			out = append(out, l.visibleProtocols(context, t.InterfaceType())...)
		}
	case types.KindGenericParam, types.KindDependentMember:
		sig := context.InnermostSignature()
		if sig == nil {
			return nil
		}
		can := sig.CanonicalTypeInContext(t)
		for _, r := range sig.ConformanceRequirements() {
			if sig.CanonicalTypeInContext(r.Subject) == can {
				out = append(out, r.Proto)
				out = append(out, allInherited(r.Proto)...)
			}
		}
	}
	return out
}

func allInherited(p *types.Decl) []*types.Decl {
	var out []*types.Decl
	for _, q := range p.Inherited {
		out = append(out, q)
		out = append(out, allInherited(q)...)
	}
	return out
}
