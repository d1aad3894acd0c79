package resolver

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/vela-lang/vela/internal/diagnostics"
	"github.com/vela-lang/vela/internal/types"
)

// Resolver resolves surface type syntax to canonical types. It is
// stateless across calls apart from the remapping table; all
// per-resolution configuration travels in Options.
type Resolver struct {
	ctx    *types.Context
	diags  *diagnostics.Manager
	lookup Lookup

	// remapped maps case-folded misspellings to the intended type name.
	remapped map[string]string
	fold     cases.Caser
}

// New creates a resolver reporting through diags and finding
// declarations through lookup.
func New(ctx *types.Context, diags *diagnostics.Manager, lookup Lookup) *Resolver {
	return &Resolver{
		ctx:      ctx,
		diags:    diags,
		lookup:   lookup,
		remapped: make(map[string]string),
		fold:     cases.Fold(),
	}
}

// AddRemapping registers a known misspelling or legacy name. Lookups
// that fail consult the table under case folding before diagnosing.
func (r *Resolver) AddRemapping(from, to string) {
	r.remapped[r.fold.String(from)] = to
}

// Resolve turns repr into a type in the given declaration context.
// The result is never nil; failed positions yield error-marker types
// after reporting a diagnostic.
func (r *Resolver) Resolve(repr TypeRepr, dc *types.Decl, opts Options) *types.Type {
	t := r.resolve(repr, dc, opts)

	// Parameter-position function types default to non-escaping. The
	// default is applied on the canonical form so that alias sugar
	// cannot hide a function type from it; an explicit @escaping
	// suppresses it.
	if opts.Has(ParamPosition) && !t.IsError() && !hasEscapingAttr(repr) {
		if can := t.Canonical(); can.Kind() == types.KindFunction && !can.FuncInfo().NoEscape {
			info := can.FuncInfo()
			info.NoEscape = true
			t = r.ctx.FunctionType(can.Params(), can.Result(), info)
		}
	}

	if opts.Has(LoweredContext) && !t.IsError() {
		switch t.Canonical().Kind() {
		case types.KindUnboundGeneric, types.KindModule:
			r.diags.Report(repr.Span(), diagnostics.Error, diagnostics.CategoryLoweredTypeContext,
				"type %s is not representable in a lowered context", t)
			return r.ctx.ErrorTypeWrapping(t)
		}
	}
	return t
}

func hasEscapingAttr(repr TypeRepr) bool {
	attributed, ok := repr.(*AttributedRepr)
	if !ok {
		return false
	}
	for _, a := range attributed.Attrs {
		if a.Kind == AttrEscaping {
			return true
		}
	}
	return false
}

func (r *Resolver) resolve(repr TypeRepr, dc *types.Decl, opts Options) *types.Type {
	switch repr := repr.(type) {
	case *IdentRepr:
		return r.resolveIdent(repr, dc, opts)
	case *TupleRepr:
		elems := make([]*types.Type, len(repr.Elements))
		for i, e := range repr.Elements {
			elems[i] = r.Resolve(e, dc, opts.forSubPosition())
		}
		return r.ctx.TupleType(elems...)
	case *FunctionRepr:
		params := make([]types.Param, len(repr.Params))
		for i, p := range repr.Params {
			params[i] = types.Param{
				Label: p.Label,
				Type:  r.Resolve(p.Type, dc, opts.forSubPosition().With(ParamPosition)),
			}
		}
		result := r.Resolve(repr.Result, dc, opts.forSubPosition())
		return r.ctx.FunctionType(params, result, types.FunctionInfo{Throws: repr.Throws})
	case *OptionalRepr:
		base := r.Resolve(repr.Base, dc, opts.forSubPosition())
		if base.IsError() {
			return base
		}
		return r.ctx.OptionalType(base)
	case *AttributedRepr:
		return r.resolveAttributed(repr, dc, opts)
	default:
		r.diags.Report(repr.Span(), diagnostics.Error, diagnostics.CategoryUndeclaredType,
			"unsupported type syntax")
		return r.ctx.ErrorType()
	}
}

// resolveAttributed applies type attributes. Convention and escaping
// attributes are only legal on syntactic function types; elsewhere they
// are diagnosed and stripped, and resolution continues with the base.
func (r *Resolver) resolveAttributed(repr *AttributedRepr, dc *types.Decl, opts Options) *types.Type {
	fnRepr, isFunction := repr.Base.(*FunctionRepr)

	var info types.FunctionInfo
	escaping := false
	for _, a := range repr.Attrs {
		if !isFunction {
			r.diags.Report(a.AttrSpan, diagnostics.Error, diagnostics.CategoryInvalidAttribute,
				"attribute %s is only permitted on function types", a.Kind)
			continue
		}
		switch a.Kind {
		case AttrConventionThin:
			info.Convention = types.ConventionThin
		case AttrConventionC:
			info.Convention = types.ConventionC
		case AttrEscaping:
			escaping = true
		case AttrNoEscape:
			info.NoEscape = true
		}
	}
	if !isFunction {
		return r.resolve(repr.Base, dc, opts)
	}

	params := make([]types.Param, len(fnRepr.Params))
	for i, p := range fnRepr.Params {
		params[i] = types.Param{
			Label: p.Label,
			Type:  r.Resolve(p.Type, dc, opts.forSubPosition().With(ParamPosition)),
		}
	}
	result := r.Resolve(fnRepr.Result, dc, opts.forSubPosition())
	info.Throws = fnRepr.Throws
	if opts.Has(ParamPosition) && !escaping {
		info.NoEscape = true
	}
	return r.ctx.FunctionType(params, result, info)
}

// resolveIdent resolves a dotted identifier chain: unqualified lookup
// for the head, qualified member lookup for the rest.
func (r *Resolver) resolveIdent(ident *IdentRepr, dc *types.Decl, opts Options) *types.Type {
	if len(ident.Components) == 0 {
		return r.ctx.ErrorType()
	}
	current := r.resolveHead(ident.Components[0], dc, opts)
	for i := 1; i < len(ident.Components) && !current.IsError(); i++ {
		current = r.resolveMemberComponent(current, ident.Components[i], dc, opts)
	}
	return current
}

func (r *Resolver) resolveHead(head Component, dc *types.Decl, opts Options) *types.Type {
	if head.Name == "Self" {
		return r.resolveSelf(head, dc)
	}
	results := r.lookup.LookupUnqualified(dc, head.Name, head.NameSpan, opts)

	if len(results) == 0 {
		if to, ok := r.remapped[r.fold.String(head.Name)]; ok {
			results = r.lookup.LookupUnqualified(dc, to, head.NameSpan, opts)
			if len(results) > 0 {
				r.diags.Report(head.NameSpan, diagnostics.Error, diagnostics.CategoryUndeclaredType,
					"cannot find type %q; did you mean %q?", head.Name, to).
					WithFixIt(head.NameSpan, "replace with the known type name", to)
			}
		}
	}
	if len(results) == 0 {
		r.diags.Report(head.NameSpan, diagnostics.Error, diagnostics.CategoryUndeclaredType,
			"cannot find type %q in scope", head.Name)
		return r.ctx.ErrorType()
	}

	accessible := r.filterAccessible(results, dc)
	if len(accessible) == 0 {
		r.diags.Report(head.NameSpan, diagnostics.Error, diagnostics.CategoryInaccessible,
			"%q is inaccessible due to %s access level",
			head.Name, results[0].Decl.FormalAccess())
		return r.ctx.ErrorType()
	}

	// Resolve every candidate; results that present as the same
	// canonical type collapse silently, genuinely different ones are an
	// ambiguity.
	type candidate struct {
		res LookupResult
		t   *types.Type
	}
	var distinct []candidate
	for _, res := range accessible {
		t := r.resolveTypeInContext(res, dc, opts)
		if t.IsError() {
			continue
		}
		dup := false
		for _, d := range distinct {
			if d.t.IsEqual(t) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, candidate{res, t})
		}
	}
	if len(distinct) == 0 {
		return r.ctx.ErrorType()
	}
	if len(distinct) > 1 {
		names := make([]string, len(distinct))
		for i, d := range distinct {
			names[i] = d.t.String()
		}
		r.diags.Report(head.NameSpan, diagnostics.Error, diagnostics.CategoryAmbiguousType,
			"%q is ambiguous; candidates: %s", head.Name, strings.Join(names, ", "))
		return r.ctx.ErrorType()
	}

	return r.applyGenericArguments(distinct[0].t, distinct[0].res.Decl, head, dc, opts)
}

// resolveSelf resolves the Self keyword: inside a protocol it is the
// implicit Self parameter; inside any other nominal it stands for the
// enclosing nominal's type, with a fix-it naming it.
func (r *Resolver) resolveSelf(head Component, dc *types.Decl) *types.Type {
	for ctx := dc; ctx != nil; ctx = ctx.Parent {
		nominal := ctx.NominalContext()
		if nominal == nil {
			continue
		}
		if nominal.Kind == types.DeclProtocol {
			return r.ctx.GenericParamType(0, 0, "Self")
		}
		t := nominal.DeclaredInterfaceType(r.ctx)
		r.diags.Report(head.NameSpan, diagnostics.Warning, diagnostics.CategoryUndeclaredType,
			"%q here is equivalent to %q", "Self", nominal.Name.Base).
			WithFixIt(head.NameSpan, "use the nominal type name", nominal.Name.Base)
		return t
	}
	r.diags.Report(head.NameSpan, diagnostics.Error, diagnostics.CategoryUndeclaredType,
		"%q is only available inside a type", "Self")
	return r.ctx.ErrorType()
}

// resolveTypeInContext presents a looked-up declaration as a type
// relative to the use-site context.
func (r *Resolver) resolveTypeInContext(res LookupResult, dc *types.Decl, opts Options) *types.Type {
	decl := res.Decl
	switch decl.Kind {
	case types.DeclGenericParam, types.DeclAssociatedType:
		return decl.DeclaredInterfaceType(r.ctx)

	case types.DeclModule:
		return r.ctx.ModuleType(decl)

	case types.DeclTypeAlias:
		if decl.Flags.ProtoExtMem {
			if t := r.protocolExtensionMemberType(decl, res.FoundIn, dc); t != nil {
				return t
			}
		}
		return decl.DeclaredInterfaceType(r.ctx)

	case types.DeclClass, types.DeclStruct, types.DeclEnum, types.DeclProtocol:
		return decl.DeclaredInterfaceType(r.ctx)

	default:
		return r.ctx.ErrorType()
	}
}

// protocolExtensionMemberType handles a protocol-extension typealias
// referenced from a class context: Self binds to the class, and when
// the alias involves Self's superclass bound the bound substitutes in.
func (r *Resolver) protocolExtensionMemberType(decl, foundIn, dc *types.Decl) *types.Type {
	proto := foundIn
	for proto != nil && proto.Kind != types.DeclProtocol {
		proto = proto.Parent
	}
	if proto == nil || decl.Underlying == nil {
		return nil
	}
	nominal := dc
	for nominal != nil && nominal.NominalContext() == nil {
		nominal = nominal.Parent
	}
	if nominal == nil {
		return nil
	}
	selfType := nominal.NominalContext().DeclaredInterfaceType(r.ctx)
	conf := r.lookup.LookupConformance(selfType, proto)
	if conf.Kind != types.LookupFound {
		return nil
	}
	m := types.ProtocolSubstitutions(proto, selfType, conf.Ref)
	return decl.Underlying.SubstMap(m)
}

// resolveMemberComponent resolves one qualified component against the
// parent type resolved so far.
func (r *Resolver) resolveMemberComponent(parent *types.Type, comp Component, dc *types.Decl, opts Options) *types.Type {
	results := r.lookup.LookupQualified(dc, parent, comp.Name, opts)
	if len(results) == 0 {
		if to, ok := r.remapped[r.fold.String(comp.Name)]; ok {
			results = r.lookup.LookupQualified(dc, parent, to, opts)
			if len(results) > 0 {
				r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryUndeclaredType,
					"%s has no member type %q; did you mean %q?", parent, comp.Name, to).
					WithFixIt(comp.NameSpan, "replace with the known member name", to)
			}
		}
	}
	if len(results) == 0 {
		r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryInvalidMemberType,
			"%s has no member type %q", parent, comp.Name)
		return r.ctx.ErrorType()
	}

	accessible := r.filterAccessible(results, dc)
	if len(accessible) == 0 {
		r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryInaccessible,
			"%q is inaccessible due to %s access level",
			comp.Name, results[0].Decl.FormalAccess())
		return r.ctx.ErrorType()
	}

	var distinct []*types.Type
	for _, res := range accessible {
		t := r.memberType(parent, res, comp, dc, opts)
		if t.IsError() {
			continue
		}
		dup := false
		for _, d := range distinct {
			if d.IsEqual(t) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, t)
		}
	}
	if len(distinct) == 0 {
		return r.ctx.ErrorType()
	}
	if len(distinct) > 1 {
		names := make([]string, len(distinct))
		for i, d := range distinct {
			names[i] = d.String()
		}
		r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryAmbiguousType,
			"%q is ambiguous; candidates: %s", comp.Name, strings.Join(names, ", "))
		return r.ctx.ErrorType()
	}
	return distinct[0]
}

// memberType presents a member type declaration relative to its parent
// type, substituting the parent's generic arguments.
func (r *Resolver) memberType(parent *types.Type, res LookupResult, comp Component, dc *types.Decl, opts Options) *types.Type {
	decl := res.Decl
	switch decl.Kind {
	case types.DeclModule:
		return r.ctx.ModuleType(decl)

	case types.DeclAssociatedType:
		canParent := parent.Canonical()
		if canParent.IsTypeParameter() || canParent.Kind() == types.KindArchetype {
			return r.ctx.DependentMemberType(parent, decl.Name.Base, decl)
		}
		// Concrete parent: project the type witness.
		proto := res.FoundIn
		for proto != nil && proto.Kind != types.DeclProtocol {
			proto = proto.Parent
		}
		if proto == nil {
			return r.ctx.ErrorType()
		}
		conf := r.lookup.LookupConformance(canParent, proto)
		if conf.Kind != types.LookupFound || !conf.Ref.IsConcrete() {
			r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryInvalidMemberType,
				"%s does not conform to %s, so %q cannot be projected",
				parent, proto.Name, comp.Name)
			return r.ctx.ErrorType()
		}
		witness, ok := conf.Ref.Concrete().TypeWitness(decl.Name.Base)
		if !ok || witness == nil {
			return r.ctx.ErrorType()
		}
		return witness

	case types.DeclClass, types.DeclStruct, types.DeclEnum:
		t := r.ctx.NominalType(decl, parent)
		if decl.IsGeneric() && len(comp.GenericArgs) == 0 {
			t = r.ctx.UnboundGenericType(decl, parent)
		}
		return r.applyGenericArguments(t, decl, comp, dc, opts)

	case types.DeclProtocol:
		return r.ctx.ProtocolType(decl)

	case types.DeclTypeAlias:
		owner := res.FoundIn
		under := decl.Underlying
		if under == nil {
			return r.ctx.ErrorType()
		}
		if owner != nil && owner.IsNominal() && parent.Kind() == types.KindNominal {
			under = under.SubstMap(parent.ContextSubstitutionMap(owner))
		}
		t := r.ctx.AliasType(decl, under, nil)
		return r.applyGenericArguments(t, decl, comp, dc, opts)

	default:
		return r.ctx.ErrorType()
	}
}

// applyGenericArguments binds a component's generic argument syntax to
// a generic declaration: arity must match exactly, each argument is
// checked independently so one failure does not hide the others, and
// the signature's requirements are validated against the bound
// arguments.
func (r *Resolver) applyGenericArguments(t *types.Type, decl *types.Decl, comp Component, dc *types.Decl, opts Options) *types.Type {
	if len(comp.GenericArgs) == 0 {
		if decl.IsGeneric() && decl.Kind != types.DeclTypeAlias && decl.Kind != types.DeclProtocol {
			if opts.Has(AllowUnboundGeneric) || opts.Has(ExtensionBinding) {
				if t.Kind() == types.KindUnboundGeneric {
					return t
				}
				return r.ctx.UnboundGenericType(decl, t.Parent())
			}
			r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryUnboundGeneric,
				"generic type %q requires %d argument(s)", comp.Name, len(decl.GenericParams))
			return r.ctx.ErrorType()
		}
		return t
	}

	if !decl.IsGeneric() {
		r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericArity,
			"type %q is not generic and cannot take arguments", comp.Name)
		return r.ctx.ErrorType()
	}
	if len(comp.GenericArgs) != len(decl.GenericParams) {
		r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericArity,
			"generic type %q takes %d argument(s), got %d",
			comp.Name, len(decl.GenericParams), len(comp.GenericArgs))
		return r.ctx.ErrorType()
	}

	// Best-effort: every argument resolves even when an earlier sibling
	// failed; the failure propagates as an error type afterwards.
	args := make([]*types.Type, len(comp.GenericArgs))
	anyError := false
	for i, argRepr := range comp.GenericArgs {
		args[i] = r.Resolve(argRepr, dc, opts.forSubPosition())
		anyError = anyError || args[i].IsError()
	}
	if anyError {
		return r.ctx.ErrorTypeWrapping(t)
	}

	sig := decl.Signature
	byKey := make(map[types.GenericParamKey]*types.Type, len(args))
	for i, gp := range decl.GenericParams {
		byKey[types.GenericParamKey{Depth: gp.Depth, Index: gp.Index}] = args[i]
	}
	var m types.SubstitutionMap
	if sig != nil {
		m = types.GetSubstitutionMap(sig, func(p *types.Type) *types.Type {
			return byKey[p.ParamKey()]
		}, func(dep, replacement *types.Type, proto *types.Decl) (types.ProtocolConformanceRef, bool) {
			if replacement.IsTypeParameter() || replacement.Kind() == types.KindArchetype {
				return types.AbstractConformance(proto), true
			}
			res := r.lookup.LookupConformance(replacement, proto)
			if res.Kind != types.LookupFound {
				return types.ProtocolConformanceRef{}, false
			}
			return res.Ref, true
		})
		if !r.checkRequirements(sig, m, comp) {
			return r.ctx.ErrorType()
		}
	}

	switch decl.Kind {
	case types.DeclTypeAlias:
		under := decl.Underlying
		if under == nil {
			return r.ctx.ErrorType()
		}
		if !m.Empty() {
			under = under.SubstMap(m)
		}
		return r.ctx.AliasType(decl, under, args)
	default:
		return r.ctx.NominalType(decl, t.Parent(), args...)
	}
}

// checkRequirements validates a signature's requirements against bound
// arguments. Failures split into two classes: a substitution failure
// (the subject itself could not be formed, usually a cascading error)
// and a constraint failure (the formed type does not satisfy the
// requirement), each with its own diagnostic.
func (r *Resolver) checkRequirements(sig *types.GenericSignature, m types.SubstitutionMap, comp Component) bool {
	ok := true
	for _, req := range sig.Requirements() {
		subject := m.Get(req.Subject)
		if subject.HasError() {
			r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericRequirement,
				"could not substitute %s while checking requirements of %q", req.Subject, comp.Name)
			ok = false
			continue
		}
		if subject.IsTypeParameter() || subject.Canonical().Kind() == types.KindArchetype {
			// Still abstract; the enclosing signature vouches for it.
			continue
		}
		switch req.Kind {
		case types.ReqConformance:
			res := r.lookup.LookupConformance(subject, req.Proto)
			if res.Kind == types.LookupNoConformance {
				r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericRequirement,
					"type %s does not conform to %s", subject, req.Proto.Name)
				ok = false
			}
		case types.ReqSuperclass:
			bound := m.Get(req.Constraint)
			if bound.TypeDecl() == nil || subject.Canonical().SuperclassForDecl(bound.TypeDecl()) == nil {
				r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericRequirement,
					"type %s is not a subclass of %s", subject, bound)
				ok = false
			}
		case types.ReqSameType:
			other := m.Get(req.Constraint)
			if !subject.IsEqual(other) {
				r.diags.Report(comp.NameSpan, diagnostics.Error, diagnostics.CategoryGenericRequirement,
					"same-type requirement %s == %s not satisfied (%s != %s)",
					req.Subject, req.Constraint, subject, other)
				ok = false
			}
		}
	}
	return ok
}

// filterAccessible drops candidates the use site may not see. Private
// members are visible within their declaring nominal (and its
// extensions); internal ones within the module; public and open
// everywhere.
func (r *Resolver) filterAccessible(results []LookupResult, dc *types.Decl) []LookupResult {
	var out []LookupResult
	for _, res := range results {
		if r.accessible(res.Decl, dc) {
			out = append(out, res)
		}
	}
	return out
}

func (r *Resolver) accessible(decl *types.Decl, dc *types.Decl) bool {
	switch decl.FormalAccess() {
	case types.AccessPublic, types.AccessOpen:
		return true
	case types.AccessInternal:
		return decl.ModuleContext() == dc.ModuleContext()
	default:
		owner := decl.Parent.NominalContext()
		if owner == nil {
			return decl.ModuleContext() == dc.ModuleContext()
		}
		for ctx := dc; ctx != nil; ctx = ctx.Parent {
			if ctx.NominalContext() == owner {
				return true
			}
		}
		return false
	}
}
